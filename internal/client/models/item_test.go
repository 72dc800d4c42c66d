package models

import (
	"testing"

	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItem_Validate(t *testing.T) {
	shared := NewFile("x1", "f1", "a.txt", "U", "text/plain", 12)
	shared.Shared = true

	folderWithMeta := NewFolder("f1", RootID, "F", "U", false)
	folderWithMeta.File = &FileMeta{MimeType: "text/plain"}

	fileWithoutMeta := NewFile("x1", "f1", "a.txt", "U", "text/plain", 12)
	fileWithoutMeta.File = nil

	tests := []struct {
		name    string
		item    Item
		wantErr bool
	}{
		{name: "folder ok", item: NewFolder("f1", RootID, "F", "U", true)},
		{name: "file ok", item: NewFile("x1", "f1", "a.txt", "U", "text/plain", 12)},
		{name: "empty id", item: NewFolder("", RootID, "F", "U", false), wantErr: true},
		{name: "root id reserved", item: NewFolder(RootID, "p", "F", "U", false), wantErr: true},
		{name: "no parent", item: NewFolder("f1", "", "F", "U", false), wantErr: true},
		{name: "self parent", item: NewFolder("f1", "f1", "F", "U", false), wantErr: true},
		{name: "shared file", item: shared, wantErr: true},
		{name: "folder with file meta", item: folderWithMeta, wantErr: true},
		{name: "file without meta", item: fileWithoutMeta, wantErr: true},
		{name: "negative size", item: NewFile("x1", "f1", "a", "U", "text/plain", -1), wantErr: true},
		{name: "unknown kind", item: Item{ID: "z", ParentID: RootID, Kind: "link"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrInvalidItem)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestItem_Accessors(t *testing.T) {
	f := NewFile("x1", "f1", "a.txt", "U", "text/plain", 12)
	assert.True(t, f.IsFile())
	assert.Equal(t, "text/plain", f.MimeType())
	assert.EqualValues(t, 12, f.SizeBytes())

	d := NewFolder("f1", RootID, "F", "U", false)
	assert.True(t, d.IsFolder())
	assert.Empty(t, d.MimeType())
	assert.Zero(t, d.SizeBytes())
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".txt", ExtensionFor("text/plain"))
	assert.Equal(t, ".txt", ExtensionFor("text/plain; charset=utf-8"))
	assert.Equal(t, ".jpg", ExtensionFor("IMAGE/JPEG"))
	assert.Equal(t, ".pdf", ExtensionFor("application/pdf"))
	assert.Equal(t, ".bin", ExtensionFor("application/x-hammerspace-unknown"))
	assert.Equal(t, ".bin", ExtensionFor(""))
}

func TestViewerFor(t *testing.T) {
	assert.Equal(t, ViewerText, ViewerFor("text/markdown"))
	assert.Equal(t, ViewerText, ViewerFor("application/json"))
	assert.Equal(t, ViewerImage, ViewerFor("image/png"))
	assert.Equal(t, ViewerPDF, ViewerFor("application/pdf"))
	assert.Equal(t, ViewerUnsupported, ViewerFor("application/zip"))
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMimeType("report.PDF", nil))
	assert.Equal(t, "text/plain; charset=utf-8", DetectMimeType("notes", []byte("hello world!")))
	assert.Equal(t, "image/png", DetectMimeType("blob", []byte("\x89PNG\r\n\x1a\n0000")))
}
