package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoices-tracker/constants"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	RenderDPI     int    // first-page render for vision models, default 150
	MaxPages      int    // 0 = no limit
	MaxImageEdge  int    // longest edge of images sent to vision models, default 2000

	// MinTextChars is how much text a cheaper method must yield before the
	// next, more expensive one is skipped.
	MinTextChars int

	TessdataDir         string
	EnableTSVConfidence bool

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default
}

type ExtractionResult struct {
	Text       string
	Pages      int
	SourceType constants.Format
	Method     string // "pdf-layer" | "pdf-text" | "pdf-ocr" | "image-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 150
	}
	if cfg.MaxImageEdge <= 0 {
		cfg.MaxImageEdge = 2000
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 40
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner; used by tests to stub external tools.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Extract picks a strategy based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("ocr.extract.start", "path", path, "ext", ext)
	switch constants.FormatFor(path, "") {
	case constants.FormatPDF:
		res, err := e.extractPDF(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	case constants.FormatImage:
		res, err := e.extractImage(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	default:
		e.logger.Warn("ocr.extract.unsupported", "extension", ext)
		return ExtractionResult{}, fmt.Errorf("unsupported extension: %q", ext)
	}
}

// ExtractBytes spools data to a temp file named like filename and extracts it.
func (e *Extractor) ExtractBytes(ctx context.Context, filename string, data []byte) (ExtractionResult, error) {
	path, cleanup, err := spool(filename, data)
	if err != nil {
		return ExtractionResult{}, err
	}
	defer cleanup()
	return e.Extract(ctx, path)
}

// ExtractText is the plain-text view used by the classifier and regex stage.
func (e *Extractor) ExtractText(ctx context.Context, filename string, data []byte) (string, error) {
	res, err := e.ExtractBytes(ctx, filename, data)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.FormatPDF, Language: e.cfg.TesseractLang}

	data, err := os.ReadFile(path)
	if err != nil {
		return res, err
	}
	if txt, pages, err := textLayer(data); err == nil {
		res.Pages = pages
		if e.enough(txt) {
			res.Text, res.Method = txt, "pdf-layer"
			res.Confidence = heuristicConfidence(txt)
			return res, nil
		}
	} else {
		res.Warnings = append(res.Warnings, "pdf-layer: "+err.Error())
	}

	if txt, pages, warns, err := e.pdfToText(ctx, path); err == nil {
		txt = Normalize(txt)
		res.Warnings = append(res.Warnings, warns...)
		if res.Pages == 0 {
			res.Pages = pages
		}
		if e.enough(txt) {
			res.Text, res.Method = txt, "pdf-text"
			res.Confidence = heuristicConfidence(txt)
			return res, nil
		}
	} else {
		res.Warnings = append(res.Warnings, "pdftotext: "+err.Error())
	}

	txt, pages, warns, err := e.pdfToOCR(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	if err != nil {
		e.logger.Warn("ocr.pdf.failed", "path", path, "err", err, "warnings", len(res.Warnings))
		return res, err
	}
	if res.Pages == 0 {
		res.Pages = pages
	}
	res.Text, res.Method = Normalize(txt), "pdf-ocr"
	res.Confidence = heuristicConfidence(res.Text)
	return res, nil
}

func (e *Extractor) enough(txt string) bool {
	return len([]rune(strings.TrimSpace(txt))) >= e.cfg.MinTextChars
}

func spool(filename string, data []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "inv-ocr-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "document"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
