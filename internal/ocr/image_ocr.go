package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoices-tracker/constants"
)

func (e *Extractor) extractImage(ctx context.Context, path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.FormatImage, Language: e.cfg.TesseractLang}
	txt, warns, err := e.tesseractOCR(ctx, path)
	res.Warnings = warns
	if err != nil {
		return res, err
	}
	res.Text, res.Pages, res.Method = Normalize(txt), 1, "image-ocr"
	res.Confidence = heuristicConfidence(res.Text)

	if !e.cfg.EnableTSVConfidence {
		return res, nil
	}
	// Word confidences from tesseract dominate when available.
	words, err := e.tesseractTSVConfidence(ctx, path)
	switch {
	case err != nil:
		res.Warnings = append(res.Warnings, err.Error())
	case words > 0:
		res.Confidence = min(0.7*words+0.3*res.Confidence, 1)
	}
	return res, nil
}

func (e *Extractor) tesseractArgs(path string) []string {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	out, stderr, err := e.runner.Run(ctx, e.cfg.Tesseract, e.tesseractArgs(path)...)
	if err != nil {
		return "", []string{string(stderr)}, fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil, nil
}

// tesseractTSVConfidence returns the mean word confidence in 0..1 from
// tesseract's TSV output. Rows with conf -1 are layout rows, not words.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path string) (float32, error) {
	out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, append(e.tesseractArgs(path), "tsv")...)
	if err != nil {
		return 0, fmt.Errorf("tesseract tsv: %w", err)
	}
	rows := strings.Split(strings.TrimSpace(string(out)), "\n")
	col := -1
	for i, name := range strings.Split(rows[0], "\t") {
		if name == "conf" {
			col = i
		}
	}
	if col < 0 {
		return 0, fmt.Errorf("tesseract tsv: no conf column")
	}
	var sum float64
	var n int
	for _, row := range rows[1:] {
		cols := strings.Split(row, "\t")
		if len(cols) <= col {
			continue
		}
		v, err := strconv.ParseFloat(cols[col], 64)
		if err != nil || v < 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return float32(sum / float64(n) / 100), nil
}
