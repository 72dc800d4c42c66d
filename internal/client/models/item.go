// Package models defines the client-side representation of the synced tree.
//
// An Item is a closed variant: Kind selects between a folder and a file, and
// the file-only fields live in FileMeta, which is non-nil exactly when Kind is
// KindFile.
package models

import (
	"fmt"

	"github.com/dmitrijs2005/hammerspace/internal/common"
)

// Kind discriminates the Item variant.
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// RootID is the parent of every top-level item.
const RootID = common.RootID

// FileMeta carries the fields that only make sense for files.
type FileMeta struct {
	MimeType  string
	SizeBytes int64
}

// Item is a folder or file record mirrored from the remote tree.
type Item struct {
	ID       string
	ParentID string
	Name     string
	Kind     Kind

	// OwnerID is the user whose identity roots the item's encryption.
	OwnerID string

	// Shared marks a folder that carries an explicit FolderKey record.
	Shared bool

	File *FileMeta

	// LocalPlaintextURI is empty until the content has been decrypted locally.
	LocalPlaintextURI string
}

// NewFolder builds a folder item.
func NewFolder(id, parentID, name, ownerID string, shared bool) Item {
	return Item{ID: id, ParentID: parentID, Name: name, Kind: KindFolder, OwnerID: ownerID, Shared: shared}
}

// NewFile builds a file item.
func NewFile(id, parentID, name, ownerID, mimeType string, size int64) Item {
	return Item{
		ID:       id,
		ParentID: parentID,
		Name:     name,
		Kind:     KindFile,
		OwnerID:  ownerID,
		File:     &FileMeta{MimeType: mimeType, SizeBytes: size},
	}
}

func (i Item) IsFolder() bool { return i.Kind == KindFolder }
func (i Item) IsFile() bool   { return i.Kind == KindFile }

// MimeType returns the file's MIME type, or "" for folders.
func (i Item) MimeType() string {
	if i.File == nil {
		return ""
	}
	return i.File.MimeType
}

// SizeBytes returns the declared content size, 0 for folders.
func (i Item) SizeBytes() int64 {
	if i.File == nil {
		return 0
	}
	return i.File.SizeBytes
}

// Validate checks the structural rules of the variant.
func (i Item) Validate() error {
	switch {
	case i.ID == "":
		return fmt.Errorf("%w: empty id", common.ErrInvalidItem)
	case i.ID == RootID:
		return fmt.Errorf("%w: id %q is reserved", common.ErrInvalidItem, RootID)
	case i.ParentID == "":
		return fmt.Errorf("%w: item %s has no parent", common.ErrInvalidItem, i.ID)
	case i.ParentID == i.ID:
		return fmt.Errorf("%w: item %s is its own parent", common.ErrInvalidItem, i.ID)
	}

	switch i.Kind {
	case KindFolder:
		if i.File != nil {
			return fmt.Errorf("%w: folder %s has file metadata", common.ErrInvalidItem, i.ID)
		}
	case KindFile:
		if i.File == nil {
			return fmt.Errorf("%w: file %s has no file metadata", common.ErrInvalidItem, i.ID)
		}
		if i.Shared {
			return fmt.Errorf("%w: file %s cannot carry a folder key", common.ErrInvalidItem, i.ID)
		}
		if i.File.SizeBytes < 0 {
			return fmt.Errorf("%w: file %s has negative size", common.ErrInvalidItem, i.ID)
		}
	default:
		return fmt.Errorf("%w: item %s has unknown kind %q", common.ErrInvalidItem, i.ID, i.Kind)
	}
	return nil
}
