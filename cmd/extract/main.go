package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/app"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/extract"
)

type report struct {
	File       string                  `json:"file"`
	IsInvoice  bool                    `json:"is_invoice"`
	Confidence float64                 `json:"classifier_confidence"`
	Signals    []string                `json:"signals"`
	Result     entity.ExtractionResult `json:"result"`
	Failures   []string                `json:"stage_failures,omitempty"`
	TextMethod string                  `json:"text_method,omitempty"`
	TextPages  int                     `json:"text_pages,omitempty"`
	TextChars  int                     `json:"text_chars"`
	ElapsedMS  int64                   `json:"elapsed_ms"`
}

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(os.Stderr, cfg.Logging)
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: extract <file> [times]")
		os.Exit(2)
	}
	path := os.Args[1]
	times := 1
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}
	mimeType := constants.MimeTypeFor(path)
	if !constants.IsSupported(path, mimeType) {
		logger.Error("unsupported file type", "file", path)
		os.Exit(2)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "file", path, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute*time.Duration(times))
	defer cancel()

	ex, err := app.NewExtraction(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build extraction", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	base := filepath.Base(path)
	for i := 1; i <= times; i++ {
		start := time.Now()
		logger.Info("extract.run.start", "iter", i, "file", base)

		rep := report{File: base}
		if txt, err := ex.OCR.ExtractBytes(ctx, base, data); err != nil {
			logger.Warn("extract.text.failed", "iter", i, "error", err)
		} else {
			rep.TextMethod, rep.TextPages, rep.TextChars = txt.Method, txt.Pages, len(txt.Text)
		}

		doc := extract.NewDocument(base, mimeType, data, ex.OCR)
		verdict := ex.Classifier.Classify(ctx, doc)
		rep.IsInvoice, rep.Confidence, rep.Signals = verdict.IsInvoice, verdict.Confidence, verdict.Signals
		out := ex.Cascade.Extract(ctx, doc)
		rep.Result = out.Result
		for _, f := range out.Failures {
			rep.Failures = append(rep.Failures, f.String())
		}
		rep.ElapsedMS = time.Since(start).Milliseconds()

		if err := enc.Encode(rep); err != nil {
			logger.Error("encode report", "error", err)
			os.Exit(1)
		}
		logger.Info("extract.run.ok", "iter", i, "method", rep.Result.Method, "elapsed_ms", rep.ElapsedMS)
	}
}
