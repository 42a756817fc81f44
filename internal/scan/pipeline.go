// Package scan runs attachments through classification, extraction, duplicate
// suppression and persistence, and drives whole mailbox scans on top of that.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoices-tracker/internal/classify"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/dedupe"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/extract"
	"github.com/joseph-ayodele/invoices-tracker/internal/sheets"
	"github.com/joseph-ayodele/invoices-tracker/internal/storage"
)

// Recorder persists accepted invoices. Save reports false when the key
// already existed.
type Recorder interface {
	Save(ctx context.Context, inv entity.Invoice) (bool, error)
}

// Outcome is what happened to one attachment.
type Outcome int

const (
	OutcomeSkipped Outcome = iota // not an invoice
	OutcomeDuplicate
	OutcomeSaved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeSaved:
		return "saved"
	default:
		return "skipped"
	}
}

// ItemResult carries the outcome of one attachment. Errors are per-item
// problems that did not stop the record from being written. SheetErr is
// reported separately because the projection is run-level.
type ItemResult struct {
	Outcome  Outcome
	Verdict  classify.Verdict
	Invoice  *entity.Invoice
	Reason   string
	Errors   []string
	SheetErr error
}

// Pipeline is the per-attachment path shared by mailbox scans and uploads.
type Pipeline struct {
	classifier *classify.Classifier
	cascade    *extract.Cascade
	resolver   *dedupe.Resolver
	recorder   Recorder
	text       extract.TextSource
	uploader   storage.Uploader
	sheet      sheets.Appender
	logger     *slog.Logger
	now        func() time.Time
}

type PipelineOption func(*Pipeline)

// WithUploader copies accepted attachments to a storage collaborator.
func WithUploader(u storage.Uploader) PipelineOption {
	return func(p *Pipeline) { p.uploader = u }
}

// WithSheet appends accepted records to a spreadsheet projection.
func WithSheet(a sheets.Appender) PipelineOption {
	return func(p *Pipeline) { p.sheet = a }
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPipeline(
	classifier *classify.Classifier,
	cascade *extract.Cascade,
	resolver *dedupe.Resolver,
	recorder Recorder,
	text extract.TextSource,
	logger *slog.Logger,
	opts ...PipelineOption,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		classifier: classifier,
		cascade:    cascade,
		resolver:   resolver,
		recorder:   recorder,
		text:       text,
		logger:     logger,
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Seen applies the key rule alone, before any bytes are downloaded.
func (p *Pipeline) Seen(ctx context.Context, key entity.InvoiceKey) (bool, error) {
	d, err := p.resolver.Check(ctx, key, nil)
	if err != nil {
		return false, err
	}
	return d.IsDuplicate, nil
}

// Process runs one downloaded attachment to completion. A returned error
// means nothing was recorded for it.
func (p *Pipeline) Process(ctx context.Context, userID string, att entity.CandidateAttachment) (ItemResult, error) {
	key := entity.InvoiceKey{UserID: userID, MessageID: att.MessageID, AttachmentID: att.AttachmentID}
	filename, data := att.Filename, att.Data
	log := common.LoggerFrom(ctx, p.logger).With("message_id", key.MessageID, "attachment_id", key.AttachmentID)
	doc := extract.NewDocument(filename, att.MimeType, data, p.text)

	var res ItemResult
	res.Verdict = p.classifier.Classify(ctx, doc)
	if !res.Verdict.IsInvoice {
		log.Debug("scan.item.not_invoice", "filename", filename, "confidence", res.Verdict.Confidence)
		return res, nil
	}

	out := p.cascade.Extract(ctx, doc)
	for _, f := range out.Failures {
		res.Errors = append(res.Errors, itemError(key, f.String()))
	}

	decision, err := p.resolver.Check(ctx, key, &out.Result)
	if err != nil {
		return res, err
	}
	if decision.IsDuplicate {
		log.Info("scan.item.duplicate", "reason", decision.Reason)
		res.Outcome, res.Reason = OutcomeDuplicate, decision.Reason
		return res, nil
	}

	inv := entity.NewInvoice(key, filename, out.Result, p.now())
	if p.uploader != nil {
		up, err := p.uploader.Upload(ctx, key.UserID, filename, data)
		if err != nil {
			log.Warn("scan.item.upload_failed", "err", err)
			res.Errors = append(res.Errors, itemError(key, "storage: "+err.Error()))
		} else {
			inv.StorageFileID = entity.StrPtr(up.FileID)
			inv.StorageLink = entity.StrPtr(up.ViewLink)
		}
	}

	inserted, err := p.recorder.Save(ctx, inv)
	if err != nil {
		return res, common.WrapError(err, "save invoice")
	}
	if !inserted {
		log.Info("scan.item.duplicate", "reason", dedupe.ReasonSameKey)
		res.Outcome, res.Reason = OutcomeDuplicate, dedupe.ReasonSameKey
		return res, nil
	}
	res.Outcome, res.Invoice = OutcomeSaved, &inv
	log.Info("scan.item.saved", "method", inv.ExtractionMethod, "confidence", inv.Confidence, "processed", inv.Processed)

	if p.sheet != nil {
		if err := p.sheet.AppendRow(ctx, key.UserID, sheets.Row(inv)); err != nil {
			log.Warn("scan.item.sheet_failed", "err", err)
			res.SheetErr = err
		}
	}
	return res, nil
}

func itemError(key entity.InvoiceKey, msg string) string {
	return fmt.Sprintf("%s/%s: %s", key.MessageID, key.AttachmentID, msg)
}
