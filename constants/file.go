package constants

import (
	"path/filepath"
	"strings"
)

// Format is the coarse document family used to pick an extraction path.
type Format string

const (
	FormatPDF   Format = "PDF"
	FormatImage Format = "IMAGE"
	FormatOther Format = "OTHER"
)

// AllowedExtensions holds the attachment extensions the pipeline will look at.
var AllowedExtensions = map[string]Format{
	"pdf":  FormatPDF,
	"png":  FormatImage,
	"jpg":  FormatImage,
	"jpeg": FormatImage,
	"webp": FormatImage,
	"gif":  FormatImage,
	"tif":  FormatImage,
	"tiff": FormatImage,
}

var mimeByExt = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"gif":  "image/gif",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FormatFor classifies a file by extension first, then by mime type.
func FormatFor(filename, mimeType string) Format {
	if f, ok := AllowedExtensions[NormalizeExt(filepath.Ext(filename))]; ok {
		return f
	}
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case mt == "application/pdf":
		return FormatPDF
	case strings.HasPrefix(mt, "image/"):
		return FormatImage
	}
	return FormatOther
}

// IsSupported reports whether the pipeline can extract from the file at all.
func IsSupported(filename, mimeType string) bool {
	return FormatFor(filename, mimeType) != FormatOther
}

// MimeTypeFor guesses a mime type from the filename, falling back to octet-stream.
func MimeTypeFor(filename string) string {
	if mt, ok := mimeByExt[NormalizeExt(filepath.Ext(filename))]; ok {
		return mt
	}
	return "application/octet-stream"
}
