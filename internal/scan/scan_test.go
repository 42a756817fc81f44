package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/classify"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/dedupe"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/extract"
	"github.com/joseph-ayodele/invoices-tracker/internal/mailbox"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// memStore keeps records, cursors and logs in memory.
type memStore struct {
	mu       sync.Mutex
	invoices map[entity.InvoiceKey]entity.Invoice
	cursors  map[string]entity.ScanCursor
	logs     []entity.ProcessingLog

	cursorWrites int
	cursorErr    error
	logErr       error
}

func newMemStore() *memStore {
	return &memStore{invoices: map[entity.InvoiceKey]entity.Invoice{}, cursors: map[string]entity.ScanCursor{}}
}

func (s *memStore) FindByKey(_ context.Context, key entity.InvoiceKey) (*entity.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.invoices[key]; ok {
		return &inv, nil
	}
	return nil, nil
}

func (s *memStore) FindByContent(_ context.Context, userID, number string) ([]entity.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Invoice
	for _, inv := range s.invoices {
		if inv.UserID == userID && inv.InvoiceNumber != nil && entity.NormalizeInvoiceNumber(*inv.InvoiceNumber) == number {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *memStore) Save(_ context.Context, inv entity.Invoice) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[inv.InvoiceKey]; ok {
		return false, nil
	}
	s.invoices[inv.InvoiceKey] = inv
	return true, nil
}

func (s *memStore) GetCursor(_ context.Context, userID string) (entity.ScanCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cursors[userID]; ok {
		return c, nil
	}
	return entity.NewCursor(userID), nil
}

func (s *memStore) SetCursor(_ context.Context, c entity.ScanCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursorWrites++
	if s.cursorErr != nil {
		return s.cursorErr
	}
	s.cursors[c.UserID] = c
	return nil
}

func (s *memStore) AppendLog(_ context.Context, l entity.ProcessingLog) (entity.ProcessingLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logErr != nil {
		return l, s.logErr
	}
	s.logs = append(s.logs, l)
	return l, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invoices)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeMailbox serves "a1" attachments whose bytes are "invoice|<number>|<vendor>|<amount>".
type fakeMailbox struct {
	msgs      []entity.MessageCandidate
	data      map[string]string
	failing   map[string]bool
	listErr   error
	since     time.Time
	cost      time.Duration
	clock     *fakeClock
	downloads int
}

func (m *fakeMailbox) ListAttachmentCandidates(_ context.Context, since time.Time) ([]entity.MessageCandidate, error) {
	m.since = since
	out := make([]entity.MessageCandidate, len(m.msgs))
	copy(out, m.msgs)
	return out, m.listErr
}

func (m *fakeMailbox) DownloadAttachment(_ context.Context, messageID, attachmentID string) ([]byte, error) {
	m.downloads++
	if m.clock != nil {
		m.clock.Advance(m.cost)
	}
	id := messageID + "/" + attachmentID
	if m.failing[id] {
		return nil, errors.New("connection reset")
	}
	return []byte(m.data[id]), nil
}

func (m *fakeMailbox) add(id string, at time.Time, filename, body string) {
	if m.data == nil {
		m.data = map[string]string{}
	}
	m.msgs = append(m.msgs, entity.MessageCandidate{
		MessageID:    id,
		InternalDate: at,
		Attachments:  []entity.AttachmentMeta{{AttachmentID: "a1", Filename: filename}},
	})
	m.data[id+"/a1"] = body
}

type rawText struct{}

func (rawText) ExtractText(_ context.Context, _ string, data []byte) (string, error) {
	return string(data), nil
}

// pipeStage reads the fields out of the fake attachment body.
type pipeStage struct{}

func (pipeStage) Name() string { return constants.StageRegex }

func (pipeStage) Extract(ctx context.Context, doc *extract.Document) (entity.ExtractionResult, error) {
	parts := strings.Split(doc.Text(ctx), "|")
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	res := entity.ExtractionResult{
		InvoiceNumber: entity.StrPtr(parts[1]),
		VendorName:    entity.StrPtr(parts[2]),
		Confidence:    constants.ConfidenceRegex,
	}
	if d, err := decimal.NewFromString(parts[3]); err == nil {
		res.Amount = &d
	}
	return res, nil
}

type countingNotifier struct {
	calls []int
	err   error
}

func (n *countingNotifier) Notify(_ context.Context, _ string, count int) error {
	n.calls = append(n.calls, count)
	return n.err
}

type failingUploader struct{}

func (failingUploader) Upload(context.Context, string, string, []byte) (entity.UploadResult, error) {
	return entity.UploadResult{}, errors.New("quota exceeded")
}

type failingSheet struct{ appends int }

func (s *failingSheet) AppendRow(context.Context, string, []string) error {
	s.appends++
	return errors.New("sheet unavailable")
}

func (s *failingSheet) Rewrite(context.Context, string, [][]string) error { return nil }

type harness struct {
	orch     *Orchestrator
	store    *memStore
	mb       *fakeMailbox
	clock    *fakeClock
	notifier *countingNotifier
}

func newHarness(t *testing.T, cfg Config, popts ...PipelineOption) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(),
		clock:    &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		notifier: &countingNotifier{},
	}
	h.mb = &fakeMailbox{clock: h.clock}
	popts = append(popts, WithPipelineClock(h.clock.Now))
	p := NewPipeline(
		classify.New(nil, discard),
		extract.NewCascade(discard, pipeStage{}),
		dedupe.NewResolver(h.store, discard),
		h.store,
		rawText{},
		discard,
		popts...,
	)
	h.orch = NewOrchestrator(cfg, h.store, mailbox.Static(h.mb), p, h.notifier, discard,
		WithClock(h.clock.Now),
		WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	return h
}

func (h *harness) run(t *testing.T, req Request) entity.ProcessingLog {
	t.Helper()
	if req.UserID == "" {
		req.UserID = "u1"
	}
	entry, err := h.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return entry
}

var base = time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

func TestRunTimeoutProcessesStrictPrefix(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 5, TimeBudget: 10 * time.Minute})
	h.mb.cost = time.Minute
	// added newest first so the orchestrator has to sort
	for i := 12; i >= 1; i-- {
		h.mb.add(fmt.Sprintf("m%02d", i), base.Add(time.Duration(i)*time.Hour), "invoice.pdf", fmt.Sprintf("invoice|INV-%d||10", i))
	}

	entry := h.run(t, Request{Trigger: constants.TriggerUnattended})

	if entry.Status != constants.RunTimedOut {
		t.Fatalf("expected timed_out, got %s", entry.Status)
	}
	if entry.EmailsScanned != 10 || entry.InvoicesFound != 10 {
		t.Fatalf("expected 10 processed messages, got %+v", entry)
	}
	if h.mb.downloads != 10 {
		t.Fatalf("expected 10 downloads, got %d", h.mb.downloads)
	}
	for i := 1; i <= 10; i++ {
		key := entity.InvoiceKey{UserID: "u1", MessageID: fmt.Sprintf("m%02d", i), AttachmentID: "a1"}
		if _, ok := h.store.invoices[key]; !ok {
			t.Fatalf("expected %s to be recorded", key.MessageID)
		}
	}
	cur := h.store.cursors["u1"]
	if want := base.Add(10 * time.Hour); !cur.LastProcessedAt.Equal(want) {
		t.Fatalf("expected cursor %v, got %v", want, cur.LastProcessedAt)
	}
	if cur.IsFirstScan {
		t.Fatalf("expected first scan flag cleared")
	}

	// the next run picks the abandoned messages up through the overlap
	second := h.run(t, Request{Trigger: constants.TriggerUnattended})
	if second.Status != constants.RunCompleted {
		t.Fatalf("expected completed, got %s", second.Status)
	}
	if second.InvoicesFound != 2 || second.DuplicatesSkipped != 10 {
		t.Fatalf("expected 2 new and 10 duplicates, got %+v", second)
	}
	if want := base.Add(-2 * time.Hour); !second.WindowStart.Equal(want) {
		t.Fatalf("expected window %v, got %v", want, second.WindowStart)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	for i := 1; i <= 3; i++ {
		h.mb.add(fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute), "invoice.pdf", fmt.Sprintf("invoice|INV-%d|Acme|%d", i, i*10))
	}

	first := h.run(t, Request{})
	if first.InvoicesFound != 3 || first.Status != constants.RunCompleted {
		t.Fatalf("expected 3 invoices, got %+v", first)
	}
	if len(h.notifier.calls) != 1 || h.notifier.calls[0] != 3 {
		t.Fatalf("expected one notification for 3, got %v", h.notifier.calls)
	}

	downloads := h.mb.downloads
	second := h.run(t, Request{})
	if second.InvoicesFound != 0 || second.DuplicatesSkipped != 3 {
		t.Fatalf("expected only duplicates on rerun, got %+v", second)
	}
	if h.mb.downloads != downloads {
		t.Fatalf("expected no downloads for known keys, got %d more", h.mb.downloads-downloads)
	}
	if h.store.count() != 3 {
		t.Fatalf("expected 3 records, got %d", h.store.count())
	}
	if len(h.notifier.calls) != 1 {
		t.Fatalf("expected no notification without new invoices, got %v", h.notifier.calls)
	}
	if len(h.store.logs) != 2 {
		t.Fatalf("expected a log per run, got %d", len(h.store.logs))
	}
}

func TestRunPersistsPartialAndEmptyExtractions(t *testing.T) {
	h := newHarness(t, Config{})
	h.mb.add("partial", base, "invoice.pdf", "invoice|||42.50")
	h.mb.add("empty", base.Add(time.Minute), "invoice-scan.pdf", "invoice")

	entry := h.run(t, Request{})
	if entry.InvoicesFound != 2 {
		t.Fatalf("expected both records, got %+v", entry)
	}

	partial := h.store.invoices[entity.InvoiceKey{UserID: "u1", MessageID: "partial", AttachmentID: "a1"}]
	if partial.Amount == nil || !partial.Amount.Equal(decimal.RequireFromString("42.50")) {
		t.Fatalf("expected amount 42.50, got %v", partial.Amount)
	}
	if partial.VendorName != nil || partial.InvoiceNumber != nil || !partial.Processed {
		t.Fatalf("unexpected partial record %+v", partial)
	}

	empty := h.store.invoices[entity.InvoiceKey{UserID: "u1", MessageID: "empty", AttachmentID: "a1"}]
	if empty.Processed || empty.Confidence != 0 || empty.ExtractionMethod != constants.StageNone {
		t.Fatalf("expected unprocessed record with confidence 0, got %+v", empty)
	}
}

func TestRunRecordsPerItemErrors(t *testing.T) {
	h := newHarness(t, Config{})
	h.mb.add("m1", base, "invoice.pdf", "invoice|INV-1||10")
	h.mb.add("m2", base.Add(time.Minute), "invoice.pdf", "invoice|INV-2||20")
	h.mb.add("m3", base.Add(2*time.Minute), "photo.jpg", "holiday snapshot")
	h.mb.add("m4", base.Add(3*time.Minute), "notes.docx", "invoice")
	h.mb.failing = map[string]bool{"m1/a1": true}

	entry := h.run(t, Request{})

	if entry.Status != constants.RunCompleted {
		t.Fatalf("expected completed, got %s", entry.Status)
	}
	if entry.EmailsScanned != 4 || entry.AttachmentsProcessed != 3 || entry.InvoicesFound != 1 {
		t.Fatalf("unexpected counters %+v", entry)
	}
	if len(entry.Errors) != 1 || !strings.HasPrefix(entry.Errors[0], "m1/a1: download") {
		t.Fatalf("expected one download error, got %v", entry.Errors)
	}
	if want := base.Add(3 * time.Minute); !h.store.cursors["u1"].LastProcessedAt.Equal(want) {
		t.Fatalf("expected cursor %v, got %v", want, h.store.cursors["u1"].LastProcessedAt)
	}
}

func TestRunSkipsSameContentUnderNewKey(t *testing.T) {
	h := newHarness(t, Config{})
	h.mb.add("m1", base, "invoice.pdf", "invoice|INV-9|Acme Corp|99.99")
	h.mb.add("fwd", base.Add(time.Hour), "invoice.pdf", "invoice|inv-9 |ACME  corp|100.00")

	entry := h.run(t, Request{})
	if entry.InvoicesFound != 1 || entry.DuplicatesSkipped != 1 {
		t.Fatalf("expected the forward to be skipped, got %+v", entry)
	}
}

func TestRunCollaboratorFailuresDoNotDropRecords(t *testing.T) {
	sheet := &failingSheet{}
	h := newHarness(t, Config{}, WithUploader(failingUploader{}), WithSheet(sheet))
	h.mb.add("m1", base, "invoice.pdf", "invoice|INV-1||10")
	h.mb.add("m2", base.Add(time.Minute), "invoice.pdf", "invoice|INV-2||10")

	entry := h.run(t, Request{})
	if entry.InvoicesFound != 2 {
		t.Fatalf("expected both records, got %+v", entry)
	}
	inv := h.store.invoices[entity.InvoiceKey{UserID: "u1", MessageID: "m1", AttachmentID: "a1"}]
	if inv.StorageLink != nil {
		t.Fatalf("expected no storage link, got %v", *inv.StorageLink)
	}
	if sheet.appends != 2 {
		t.Fatalf("expected 2 append attempts, got %d", sheet.appends)
	}
	// two storage errors plus one run-level spreadsheet error
	if len(entry.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %v", entry.Errors)
	}
	if last := entry.Errors[2]; !strings.HasPrefix(last, "spreadsheet:") {
		t.Fatalf("expected spreadsheet error last, got %q", last)
	}
}

func TestRunAbortsWhenListingFails(t *testing.T) {
	h := newHarness(t, Config{})
	h.mb.listErr = errors.New("mailbox unavailable")

	entry, err := h.orch.Run(context.Background(), Request{UserID: "u1"})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if entry.Status != constants.RunAborted {
		t.Fatalf("expected aborted, got %s", entry.Status)
	}
	if h.store.cursorWrites != 0 {
		t.Fatalf("expected the cursor untouched, got %d writes", h.store.cursorWrites)
	}
	if len(h.store.logs) != 1 || h.store.logs[0].Status != constants.RunAborted {
		t.Fatalf("expected an aborted log, got %+v", h.store.logs)
	}
}

func TestRunToleratesPartialListing(t *testing.T) {
	h := newHarness(t, Config{})
	h.mb.add("m1", base, "invoice.pdf", "invoice|INV-1||10")
	h.mb.listErr = errors.New("page 2 failed")

	entry := h.run(t, Request{})
	if entry.Status != constants.RunCompleted || entry.InvoicesFound != 1 {
		t.Fatalf("expected the partial list to be processed, got %+v", entry)
	}
	if len(entry.Errors) != 1 {
		t.Fatalf("expected the list error recorded, got %v", entry.Errors)
	}
}

func TestFinalizeAttemptsBothWrites(t *testing.T) {
	h := newHarness(t, Config{})
	h.mb.add("m1", base, "invoice.pdf", "invoice|INV-1||10")
	cursorErr, logErr := errors.New("cursor down"), errors.New("log down")
	h.store.cursorErr, h.store.logErr = cursorErr, logErr

	_, err := h.orch.Run(context.Background(), Request{UserID: "u1"})
	if !errors.Is(err, cursorErr) || !errors.Is(err, logErr) {
		t.Fatalf("expected both errors joined, got %v", err)
	}
	if h.store.cursorWrites != 1 {
		t.Fatalf("expected one cursor write attempt, got %d", h.store.cursorWrites)
	}
}

func TestRunStoresPushHistoryID(t *testing.T) {
	h := newHarness(t, Config{})
	h.run(t, Request{Trigger: constants.TriggerPush, HistoryID: 4242})

	cur := h.store.cursors["u1"]
	if cur.LastHistoryID != 4242 {
		t.Fatalf("expected history id 4242, got %d", cur.LastHistoryID)
	}
	if !cur.LastProcessedAt.IsZero() || cur.IsFirstScan {
		t.Fatalf("expected an empty watermark past first scan, got %+v", cur)
	}
	// a zero watermark still gets the first-scan window
	entry := h.run(t, Request{})
	if want := h.clock.Now().Add(-DefaultFirstScanLookback); !entry.WindowStart.Equal(want) {
		t.Fatalf("expected window %v, got %v", want, entry.WindowStart)
	}
}

func TestRunRejectsMissingUser(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.orch.Run(context.Background(), Request{})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestWindow(t *testing.T) {
	cfg := Config{}.withDefaults()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 5, 31, 18, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		cursor entity.ScanCursor
		want   time.Time
	}{
		{"first scan", entity.NewCursor("u1"), now.Add(-30 * 24 * time.Hour)},
		{"subsequent", entity.ScanCursor{UserID: "u1", LastProcessedAt: last}, last.Add(-12 * time.Hour)},
		{"zero watermark", entity.ScanCursor{UserID: "u1"}, now.Add(-30 * 24 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cfg.Window(tc.cursor, now); !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
