package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoices-tracker/internal/llm"
)

// ExtractInvoice implements llm.VisionExtractor with chat/completions and an
// inline image part. A response that does not validate against the invoice
// schema (after one lenient repair pass) is an error.
func (c *Client) ExtractInvoice(ctx context.Context, req llm.VisionRequest) (llm.InvoiceFields, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"filename", req.Filename,
		"mime", req.MimeType,
		"image_bytes", len(req.Image),
	)
	if len(req.Image) == 0 {
		return llm.InvoiceFields{}, nil, fmt.Errorf("empty image")
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildVisionSystemPrompt()},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": llm.BuildVisionUserPrompt(req.Filename)},
				{"type": "image_url", "image_url": map[string]any{"url": llm.DataURL(req.MimeType, req.Image), "detail": "high"}},
			}},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.PostJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		var apiErr *llm.APIError
		retryable := errors.As(err, &apiErr) && apiErr.Retryable()
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err, "retryable", retryable,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.InvoiceFields{}, raw, fmt.Errorf("openai: %w", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return llm.InvoiceFields{}, raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return llm.InvoiceFields{}, raw, fmt.Errorf("no choices in openai response")
	}
	content := llm.StripCodeFence([]byte(cc.Choices[0].Message.Content))

	if err := llm.ValidateInvoiceJSON(content); err != nil {
		if c.cfg.Strict {
			c.logger.Warn("llm.extract.schema_validation_failed", "req_id", rid, "error", err)
			return llm.InvoiceFields{}, content, fmt.Errorf("schema validation failed: %w", err)
		}
		cleaned, changed, sErr := llm.NormalizeAndSanitizeJSON(content, c.logger)
		if sErr != nil {
			c.logger.Warn("llm.extract.sanitize_failed", "req_id", rid, "error", sErr)
			return llm.InvoiceFields{}, content, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := llm.ValidateInvoiceJSON(cleaned); vErr != nil {
			c.logger.Warn("llm.extract.schema_validation_failed", "req_id", rid, "error", vErr)
			return llm.InvoiceFields{}, cleaned, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.logger.Info("llm.extract.lenient_sanitize_applied", "req_id", rid, "changed", changed)
		content = cleaned
	}

	var out llm.InvoiceFields
	if err := json.Unmarshal(content, &out); err != nil {
		return llm.InvoiceFields{}, content, fmt.Errorf("unmarshal fields: %w", err)
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"has_vendor", out.VendorName != nil,
		"has_amount", out.Amount != nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, content, nil
}
