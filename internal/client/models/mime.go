package models

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Viewer is the kind of viewer able to display a materialized file.
type Viewer string

const (
	ViewerText        Viewer = "text"
	ViewerImage       Viewer = "image"
	ViewerPDF         Viewer = "pdf"
	ViewerUnsupported Viewer = "unsupported"
)

// Viewers dispatch on file extension, so these take priority over whatever
// the host mime database returns.
var extensions = map[string]string{
	"text/plain":       ".txt",
	"text/csv":         ".csv",
	"text/css":         ".css",
	"text/javascript":  ".js",
	"text/html":        ".html",
	"text/markdown":    ".md",
	"application/json": ".json",
	"application/xml":  ".xml",
	"application/pdf":  ".pdf",
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/bmp":        ".bmp",
	"image/svg+xml":    ".svg",
}

const fallbackExtension = ".bin"

// ExtensionFor returns the file extension used when writing plaintext for a
// given MIME type. Parameters such as "; charset=utf-8" are ignored.
func ExtensionFor(mimeType string) string {
	mt := normalize(mimeType)
	if ext, ok := extensions[mt]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return fallbackExtension
}

// ViewerFor picks the viewer for a MIME type.
func ViewerFor(mimeType string) Viewer {
	mt := normalize(mimeType)
	switch {
	case mt == "application/pdf":
		return ViewerPDF
	case strings.HasPrefix(mt, "image/"):
		return ViewerImage
	case strings.HasPrefix(mt, "text/"), mt == "application/json", mt == "application/xml":
		return ViewerText
	default:
		return ViewerUnsupported
	}
}

func normalize(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// DetectMimeType guesses the MIME type of an upload from its name, falling
// back to sniffing the content.
func DetectMimeType(name string, content []byte) string {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); mt != "" {
		return mt
	}
	return http.DetectContentType(content)
}
