package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/mailbox"
	"github.com/joseph-ayodele/invoices-tracker/internal/notify"
)

const (
	DefaultFirstScanLookback = 30 * 24 * time.Hour
	DefaultOverlap           = 12 * time.Hour
	DefaultBatchSize         = 5
	DefaultBatchPause        = time.Second
	DefaultTimeBudget        = 8 * time.Minute
)

// Config bounds a run.
type Config struct {
	FirstScanLookback time.Duration
	Overlap           time.Duration
	BatchSize         int
	BatchPause        time.Duration
	TimeBudget        time.Duration
}

func (c Config) withDefaults() Config {
	if c.FirstScanLookback <= 0 {
		c.FirstScanLookback = DefaultFirstScanLookback
	}
	if c.Overlap <= 0 {
		c.Overlap = DefaultOverlap
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = DefaultTimeBudget
	}
	return c
}

// Window returns where a run for cursor c starts looking.
func (c Config) Window(cur entity.ScanCursor, now time.Time) time.Time {
	if cur.IsFirstScan || cur.LastProcessedAt.IsZero() {
		return now.Add(-c.FirstScanLookback)
	}
	return cur.LastProcessedAt.Add(-c.Overlap)
}

// CursorStore is the cursor and log surface of the store.
type CursorStore interface {
	GetCursor(ctx context.Context, userID string) (entity.ScanCursor, error)
	SetCursor(ctx context.Context, c entity.ScanCursor) error
	AppendLog(ctx context.Context, l entity.ProcessingLog) (entity.ProcessingLog, error)
}

// Request is one scan invocation.
type Request struct {
	UserID    string
	Trigger   constants.TriggerType
	HistoryID uint64
}

// Orchestrator runs windowed, batched, time-boxed scans of one mailbox.
type Orchestrator struct {
	cfg       Config
	store     CursorStore
	mailboxes mailbox.Provider
	pipeline  *Pipeline
	notifier  notify.Notifier
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Orchestrator)

// WithClock replaces the wall clock used for windows and the time budget.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSleep replaces the inter-batch pause.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

func NewOrchestrator(
	cfg Config,
	store CursorStore,
	mailboxes mailbox.Provider,
	pipeline *Pipeline,
	notifier notify.Notifier,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLog(logger)
	}
	o := &Orchestrator{
		cfg:       cfg.withDefaults(),
		store:     store,
		mailboxes: mailboxes,
		pipeline:  pipeline,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the mutable state of a single invocation.
type run struct {
	req       Request
	cursor    entity.ScanCursor
	entry     entity.ProcessingLog
	newest    time.Time
	sheetErrs int
}

// Run executes one scan invocation and returns its processing log. Per-item
// failures land in the log's error list; the returned error is reserved for
// failures to record the run itself.
func (o *Orchestrator) Run(ctx context.Context, req Request) (entity.ProcessingLog, error) {
	if req.UserID == "" {
		return entity.ProcessingLog{}, common.NewAppError("INVALID_USER", "user id is required", common.ErrInvalidInput)
	}
	if req.Trigger == "" {
		req.Trigger = constants.TriggerInteractive
	}
	started := o.now()
	r := &run{req: req, entry: entity.ProcessingLog{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Trigger:   req.Trigger,
		StartedAt: started,
		Errors:    []string{},
	}}
	ctx = common.WithRunID(common.WithUserID(ctx, req.UserID), r.entry.ID)
	log := common.LoggerFrom(ctx, o.logger)

	// DeterminingWindow
	cursor, err := o.store.GetCursor(ctx, req.UserID)
	if err != nil {
		return o.abort(ctx, r, fmt.Errorf("read cursor: %w", err))
	}
	r.cursor = cursor
	r.entry.WindowStart = o.cfg.Window(cursor, started)
	log.Info("scan.window", "trigger", req.Trigger, "since", r.entry.WindowStart, "first_scan", cursor.IsFirstScan)

	// Fetching
	mb, err := o.mailboxes.Mailbox(ctx, req.UserID)
	if err != nil {
		return o.abort(ctx, r, fmt.Errorf("open mailbox: %w", err))
	}
	msgs, err := mb.ListAttachmentCandidates(ctx, r.entry.WindowStart)
	if err != nil {
		if len(msgs) == 0 {
			return o.abort(ctx, r, fmt.Errorf("list messages: %w", err))
		}
		log.Warn("scan.fetch.partial", "err", err, "messages", len(msgs))
		r.entry.Errors = append(r.entry.Errors, "list messages: "+err.Error())
	}
	mailbox.SortOldestFirst(msgs)
	log.Info("scan.fetch", "messages", len(msgs))

	// ProcessingChunk(i)
	status := constants.RunCompleted
	for start := 0; start < len(msgs); start += o.cfg.BatchSize {
		if start > 0 {
			if o.now().Sub(started) >= o.cfg.TimeBudget {
				log.Warn("scan.budget.exceeded", "processed", start, "remaining", len(msgs)-start)
				status = constants.RunTimedOut
				break
			}
			if err := o.sleep(ctx, o.cfg.BatchPause); err != nil {
				log.Warn("scan.cancelled", "processed", start, "err", err)
				status = constants.RunAborted
				break
			}
		}
		end := min(start+o.cfg.BatchSize, len(msgs))
		for _, msg := range msgs[start:end] {
			o.processMessage(ctx, r, mb, msg)
		}
	}

	return o.finalize(ctx, r, status)
}

func (o *Orchestrator) processMessage(ctx context.Context, r *run, mb mailbox.Mailbox, msg entity.MessageCandidate) {
	log := common.LoggerFrom(ctx, o.logger).With("message_id", msg.MessageID)
	r.entry.EmailsScanned++
	for _, att := range msg.Attachments {
		if !constants.IsSupported(att.Filename, att.MimeType) {
			log.Debug("scan.attachment.unsupported", "filename", att.Filename, "mime_type", att.MimeType)
			continue
		}
		key := entity.InvoiceKey{UserID: r.req.UserID, MessageID: msg.MessageID, AttachmentID: att.AttachmentID}
		r.entry.AttachmentsProcessed++

		seen, err := o.pipeline.Seen(ctx, key)
		if err != nil {
			r.entry.Errors = append(r.entry.Errors, itemError(key, err.Error()))
			continue
		}
		if seen {
			r.entry.DuplicatesSkipped++
			continue
		}

		data, err := mb.DownloadAttachment(ctx, msg.MessageID, att.AttachmentID)
		if err != nil {
			log.Warn("scan.attachment.download_failed", "attachment_id", att.AttachmentID, "err", err)
			r.entry.Errors = append(r.entry.Errors, itemError(key, "download: "+err.Error()))
			continue
		}

		res, err := o.pipeline.Process(ctx, key.UserID, entity.CandidateAttachment{
			MessageID:    msg.MessageID,
			AttachmentID: att.AttachmentID,
			Filename:     att.Filename,
			MimeType:     att.MimeType,
			Data:         data,
		})
		r.entry.Errors = append(r.entry.Errors, res.Errors...)
		if err != nil {
			log.Warn("scan.attachment.failed", "attachment_id", att.AttachmentID, "err", err)
			r.entry.Errors = append(r.entry.Errors, itemError(key, err.Error()))
			continue
		}
		switch res.Outcome {
		case OutcomeSaved:
			r.entry.InvoicesFound++
		case OutcomeDuplicate:
			r.entry.DuplicatesSkipped++
		}
		if res.SheetErr != nil {
			r.sheetErrs++
		}
	}
	if msg.InternalDate.After(r.newest) {
		r.newest = msg.InternalDate
	}
}

// finalize advances the cursor, notifies, and writes the log. Cursor and
// log writes are both attempted even when one of them fails.
func (o *Orchestrator) finalize(ctx context.Context, r *run, status constants.RunStatus) (entity.ProcessingLog, error) {
	ctx = context.WithoutCancel(ctx)
	log := common.LoggerFrom(ctx, o.logger)

	if r.sheetErrs > 0 {
		r.entry.Errors = append(r.entry.Errors, fmt.Sprintf("spreadsheet: %d rows not appended", r.sheetErrs))
	}

	next := r.cursor.Advance(r.newest, r.req.HistoryID, o.now())
	cursorErr := o.store.SetCursor(ctx, next)
	if cursorErr != nil {
		cursorErr = fmt.Errorf("write cursor: %w", cursorErr)
	}

	if r.entry.InvoicesFound > 0 {
		if err := o.notifier.Notify(ctx, r.req.UserID, r.entry.InvoicesFound); err != nil {
			log.Warn("scan.notify.failed", "err", err)
			r.entry.Errors = append(r.entry.Errors, "notify: "+err.Error())
		}
	}

	r.entry.Status = status
	r.entry.FinishedAt = o.now()
	saved, logErr := o.store.AppendLog(ctx, r.entry)
	if logErr != nil {
		logErr = fmt.Errorf("write processing log: %w", logErr)
	} else {
		r.entry = saved
	}

	log.Info("scan.finished",
		"status", status,
		"emails", r.entry.EmailsScanned,
		"attachments", r.entry.AttachmentsProcessed,
		"invoices", r.entry.InvoicesFound,
		"duplicates", r.entry.DuplicatesSkipped,
		"errors", len(r.entry.Errors),
		"cursor", next.LastProcessedAt,
		"elapsed", r.entry.FinishedAt.Sub(r.entry.StartedAt),
	)
	return r.entry, errors.Join(cursorErr, logErr)
}

// abort records a run that never reached a batch. The cursor is left alone.
func (o *Orchestrator) abort(ctx context.Context, r *run, cause error) (entity.ProcessingLog, error) {
	ctx = context.WithoutCancel(ctx)
	common.LoggerFrom(ctx, o.logger).Error("scan.aborted", "err", cause)
	r.entry.Status = constants.RunAborted
	r.entry.Errors = append(r.entry.Errors, cause.Error())
	r.entry.FinishedAt = o.now()
	saved, err := o.store.AppendLog(ctx, r.entry)
	if err != nil {
		return r.entry, errors.Join(cause, fmt.Errorf("write processing log: %w", err))
	}
	return saved, cause
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
