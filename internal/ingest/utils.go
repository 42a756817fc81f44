package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

const uploadPrefix = "upload-"

// AllowedExt checks if a file extension is one the pipeline can extract from.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

// KeyFor mints the synthetic key of an upload. It depends only on the bytes,
// so uploading the same file twice yields the same key.
func KeyFor(userID string, data []byte) (entity.InvoiceKey, string) {
	sum := sha256.Sum256(data)
	hexSum := hex.EncodeToString(sum[:])
	return entity.InvoiceKey{
		UserID:       userID,
		MessageID:    uploadPrefix + hexSum[:16],
		AttachmentID: uuid.NewSHA1(uuid.NameSpaceURL, sum[:]).String(),
	}, hexSum
}

// UserFor returns the user a path under root belongs to: the first
// directory below root.
func UserFor(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 || parts[0] == ".." || parts[0] == "." || IsHidden(parts[0]) {
		return "", false
	}
	return parts[0], true
}
