// Package storage keeps a copy of each accepted attachment.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

// Uploader is the storage collaborator.
type Uploader interface {
	Upload(ctx context.Context, userID, filename string, data []byte) (entity.UploadResult, error)
}

// Local writes files under <dir>/<user>/ and links them with file:// URLs.
type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

func (l *Local) Upload(ctx context.Context, userID, filename string, data []byte) (entity.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return entity.UploadResult{}, err
	}
	userDir := filepath.Join(l.dir, SafeName(userID))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return entity.UploadResult{}, fmt.Errorf("create user dir: %w", err)
	}
	name := SafeName(filename)
	path := filepath.Join(userDir, name)
	// never overwrite a different upload that happens to share a name
	for i := 1; ; i++ {
		existing, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return entity.UploadResult{}, fmt.Errorf("read existing file: %w", err)
		}
		if bytes.Equal(existing, data) {
			return result(path)
		}
		ext := filepath.Ext(name)
		path = filepath.Join(userDir, fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), i, ext))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return entity.UploadResult{}, fmt.Errorf("write file: %w", err)
	}
	return result(path)
}

func result(path string) (entity.UploadResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return entity.UploadResult{}, err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return entity.UploadResult{FileID: abs, ViewLink: u.String()}, nil
}

// SafeName strips path separators and control characters.
func SafeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r < 0x20:
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(s))
	s = strings.Trim(s, ".")
	if s == "" {
		return "unnamed"
	}
	return s
}
