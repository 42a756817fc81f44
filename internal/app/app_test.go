package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/notify"
	repo "github.com/joseph-ayodele/invoices-tracker/internal/repository"
	"github.com/joseph-ayodele/invoices-tracker/internal/sheets"
	"github.com/joseph-ayodele/invoices-tracker/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func localConfig(t *testing.T) *common.Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	dir := t.TempDir()
	return &common.Config{
		Scan: common.ScanConfig{Provider: "imap", MaxMessages: 10},
		IMAP: common.IMAPConfig{Addr: "imap.example.com:993", Username: "u", Password: "p"},
		OCR:  common.OCRConfig{Languages: "eng", MinTextChars: 40},
		Drive: common.DriveConfig{
			LocalDir: filepath.Join(dir, "files"),
		},
		Sheets: common.SheetsConfig{
			XLSXDir: filepath.Join(dir, "sheets"),
		},
	}
}

func TestNewExtractionFallsBackToRegex(t *testing.T) {
	ex, err := NewExtraction(context.Background(), localConfig(t), discard)
	if err != nil {
		t.Fatalf("extraction: %v", err)
	}
	if got := ex.Cascade.Stages(); !reflect.DeepEqual(got, []string{constants.StageRegex}) {
		t.Fatalf("expected only the regex stage, got %v", got)
	}
	if ex.Bank == nil || ex.Classifier == nil || ex.OCR == nil {
		t.Fatalf("incomplete extraction %+v", ex)
	}
}

func TestNewExtractionRejectsMissingPatternFile(t *testing.T) {
	cfg := localConfig(t)
	cfg.OCR.PatternsFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := NewExtraction(context.Background(), cfg, discard); err == nil {
		t.Fatalf("expected an error for a missing pattern file")
	}
}

func TestLocalBackends(t *testing.T) {
	cfg := localConfig(t)
	up, err := Uploader(context.Background(), cfg, discard)
	if err != nil {
		t.Fatalf("uploader: %v", err)
	}
	if _, ok := up.(*storage.Local); !ok {
		t.Fatalf("expected local storage, got %T", up)
	}
	sheet, err := Sheet(context.Background(), cfg, discard)
	if err != nil {
		t.Fatalf("sheet: %v", err)
	}
	if _, ok := sheet.(*sheets.XLSX); !ok {
		t.Fatalf("expected xlsx workbooks, got %T", sheet)
	}

	cfg.Drive.LocalDir, cfg.Sheets.XLSXDir = "", ""
	if up, _ := Uploader(context.Background(), cfg, discard); up != nil {
		t.Fatalf("expected no uploader, got %T", up)
	}
	if sheet, _ := Sheet(context.Background(), cfg, discard); sheet != nil {
		t.Fatalf("expected no sheet, got %T", sheet)
	}
}

func TestMailboxesValidatesProvider(t *testing.T) {
	cfg := localConfig(t)
	if _, err := Mailboxes(cfg, discard); err != nil {
		t.Fatalf("imap provider: %v", err)
	}

	cfg.IMAP.Addr = ""
	if _, err := Mailboxes(cfg, discard); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without an address, got %v", err)
	}

	cfg.Scan.Provider = "gmail"
	if _, err := Mailboxes(cfg, discard); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without oauth client, got %v", err)
	}
	cfg.Gmail = common.GmailConfig{ClientID: "id", ClientSecret: "secret", TokenDir: t.TempDir()}
	if _, err := Mailboxes(cfg, discard); err != nil {
		t.Fatalf("gmail provider: %v", err)
	}

	cfg.Scan.Provider = "pop3"
	if _, err := Mailboxes(cfg, discard); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for an unknown provider, got %v", err)
	}
}

func TestNewWiresStack(t *testing.T) {
	store, err := repo.Open(context.Background(), repo.Config{Driver: "sqlite", DSN: ":memory:"}, discard)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	cfg := localConfig(t)
	a, err := New(context.Background(), cfg, store, discard)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.Pipeline == nil || a.Sheet == nil {
		t.Fatalf("incomplete app %+v", a)
	}
	orch, err := a.Orchestrator(context.Background(), cfg, discard)
	if err != nil || orch == nil {
		t.Fatalf("orchestrator: %v", err)
	}

	cfg.Scan.Provider = "pop3"
	if _, err := a.Orchestrator(context.Background(), cfg, discard); err == nil {
		t.Fatalf("expected an unknown provider to fail")
	}
}

func TestNotifierAddsSMTP(t *testing.T) {
	cfg := localConfig(t)
	cfg.SMTP = common.SMTPConfig{Addr: "smtp.example.com:465", From: "bot@invoices.test"}
	n, err := Notifier(context.Background(), cfg, discard)
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	if multi := n.(notify.Multi); len(multi) != 2 {
		t.Fatalf("expected log and smtp notifiers, got %#v", n)
	}

	cfg.SMTP.Security = "ssl3"
	if _, err := Notifier(context.Background(), cfg, discard); err == nil {
		t.Fatalf("expected an unknown SMTP security mode to fail")
	}
}

func TestNotifierAlwaysLogs(t *testing.T) {
	n, err := Notifier(context.Background(), localConfig(t), discard)
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	multi, ok := n.(notify.Multi)
	if !ok || len(multi) != 1 {
		t.Fatalf("expected only the log notifier, got %#v", n)
	}
	if _, ok := multi[0].(*notify.Log); !ok {
		t.Fatalf("expected a log notifier, got %T", multi[0])
	}
}
