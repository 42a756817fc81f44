package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// pageText joins per-page text under "--- Page N ---" markers, skipping
// pages that came back blank.
type pageText struct {
	b strings.Builder
}

func (p *pageText) add(page int, txt string) {
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return
	}
	if p.b.Len() > 0 {
		p.b.WriteString("\n\n")
	}
	fmt.Fprintf(&p.b, "--- Page %d ---\n", page)
	p.b.WriteString(txt)
}

func (p *pageText) String() string { return p.b.String() }

// pdfToText shells out to poppler's pdftotext, which separates pages with
// form feeds.
func (e *Extractor) pdfToText(ctx context.Context, path string) (string, int, []string, error) {
	out, stderr, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, []string{string(stderr)}, err
	}
	chunks := strings.Split(strings.TrimRight(string(out), "\f"), "\f")
	var pt pageText
	for i, chunk := range chunks {
		pt.add(i+1, chunk)
	}
	return pt.String(), len(chunks), nil, nil
}

// pdfToOCR rasterizes pages with pdftoppm and runs tesseract on each. Pages
// that fail OCR leave a warning and the rest still count.
func (e *Extractor) pdfToOCR(ctx context.Context, path string) (string, int, []string, error) {
	dir, err := os.MkdirTemp("", "inv-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("ocr.tmp.cleanup_failed", "dir", dir, "err", err)
		}
	}()

	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	prefix := filepath.Join(dir, "page")
	if _, stderr, err := e.runner.Run(ctx, e.cfg.Pdftoppm, append(args, path, prefix)...); err != nil {
		return "", 0, []string{string(stderr)}, err
	}

	images, _ := filepath.Glob(prefix + "-*.png")
	if len(images) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, fmt.Errorf("no pages rendered")
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(images)

	var (
		pt    pageText
		warns []string
	)
	for i, img := range images {
		txt, w, err := e.tesseractOCR(ctx, img)
		warns = append(warns, w...)
		if err != nil {
			warns = append(warns, fmt.Sprintf("page %d: %v", i+1, err))
			continue
		}
		pt.add(i+1, txt)
	}
	return pt.String(), len(images), warns, nil
}
