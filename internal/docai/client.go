// Package docai calls a Document AI processor for typed invoice entities.
package docai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	documentai "google.golang.org/api/documentai/v1"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/invoices-tracker/internal/extract"
)

type Config struct {
	// ProcessorName is projects/{p}/locations/{l}/processors/{id}.
	ProcessorName   string
	Endpoint        string
	CredentialsFile string
	Timeout         time.Duration
}

func (c Config) Enabled() bool { return c.ProcessorName != "" }

type Client struct {
	svc       *documentai.Service
	processor string
	timeout   time.Duration
	logger    *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("document ai processor name is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := documentai.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create document ai service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{svc: svc, processor: cfg.ProcessorName, timeout: timeout, logger: logger}, nil
}

// Parse sends the document inline and maps the response.
func (c *Client) Parse(ctx context.Context, filename, mimeType string, data []byte) (extract.ParsedDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &documentai.GoogleCloudDocumentaiV1ProcessRequest{
		RawDocument: &documentai.GoogleCloudDocumentaiV1RawDocument{
			Content:  base64.StdEncoding.EncodeToString(data),
			MimeType: mimeType,
		},
		SkipHumanReview: true,
	}
	start := time.Now()
	resp, err := c.svc.Projects.Locations.Processors.Process(c.processor, req).Context(ctx).Do()
	if err != nil {
		c.logger.Warn("docai.process.failed", "filename", filename, "err", err)
		return extract.ParsedDocument{}, fmt.Errorf("document ai process: %w", err)
	}
	out := FromDocument(resp.Document)
	c.logger.Info("docai.process.ok", "filename", filename, "entities", len(out.Entities), "text_len", len(out.Text), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

// FromDocument flattens top-level entities, then their properties.
func FromDocument(doc *documentai.GoogleCloudDocumentaiV1Document) extract.ParsedDocument {
	if doc == nil {
		return extract.ParsedDocument{}
	}
	out := extract.ParsedDocument{Text: doc.Text}
	var nested []*documentai.GoogleCloudDocumentaiV1DocumentEntity
	for _, e := range doc.Entities {
		if e == nil {
			continue
		}
		out.Entities = append(out.Entities, toEntity(e))
		nested = append(nested, e.Properties...)
	}
	for _, e := range nested {
		if e != nil {
			out.Entities = append(out.Entities, toEntity(e))
		}
	}
	return out
}

func toEntity(e *documentai.GoogleCloudDocumentaiV1DocumentEntity) extract.Entity {
	ent := extract.Entity{
		Type:       e.Type,
		Mention:    strings.TrimSpace(e.MentionText),
		Confidence: float32(e.Confidence),
	}
	nv := e.NormalizedValue
	if nv == nil {
		return ent
	}
	switch {
	case nv.MoneyValue != nil:
		ent.Normalized = moneyString(nv.MoneyValue.Units, nv.MoneyValue.Nanos)
		ent.Currency = nv.MoneyValue.CurrencyCode
	case nv.DateValue != nil && nv.DateValue.Year > 0:
		d := nv.DateValue
		ent.Normalized = fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	default:
		ent.Normalized = nv.Text
	}
	return ent
}

// moneyString renders google.type.Money units and nanos as a decimal string.
func moneyString(units, nanos int64) string {
	if nanos == 0 {
		return fmt.Sprintf("%d", units)
	}
	neg := units < 0 || nanos < 0
	if units < 0 {
		units = -units
	}
	if nanos < 0 {
		nanos = -nanos
	}
	frac := strings.TrimRight(fmt.Sprintf("%09d", nanos), "0")
	s := fmt.Sprintf("%d.%s", units, frac)
	if neg {
		s = "-" + s
	}
	return s
}
