package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalUpload(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir)
	ctx := context.Background()

	res, err := l.Upload(ctx, "a@example.com", "invoice.pdf", []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.ViewLink, "file://") {
		t.Fatalf("expected file link, got %q", res.ViewLink)
	}
	got, err := os.ReadFile(res.FileID)
	if err != nil || string(got) != "one" {
		t.Fatalf("stored bytes: %q %v", got, err)
	}

	again, err := l.Upload(ctx, "a@example.com", "invoice.pdf", []byte("one"))
	if err != nil || again.FileID != res.FileID {
		t.Fatalf("same bytes should reuse the file: %v %v", again, err)
	}

	other, err := l.Upload(ctx, "a@example.com", "invoice.pdf", []byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	if other.FileID == res.FileID || filepath.Base(other.FileID) != "invoice-1.pdf" {
		t.Fatalf("different bytes must not overwrite, got %q", other.FileID)
	}
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "_.._etc_passwd",
		"a@b.com":          "a@b.com",
		"  ":               "unnamed",
		"C:\\x.pdf":        "C__x.pdf",
	}
	for in, want := range cases {
		if got := SafeName(in); got != want {
			t.Fatalf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}
