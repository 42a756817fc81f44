// Package app builds the scan stack from configuration. The binaries share
// it so the daemon and the one-shot tools extract the same way.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/invoices-tracker/internal/classify"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/dedupe"
	"github.com/joseph-ayodele/invoices-tracker/internal/docai"
	"github.com/joseph-ayodele/invoices-tracker/internal/extract"
	"github.com/joseph-ayodele/invoices-tracker/internal/gauth"
	"github.com/joseph-ayodele/invoices-tracker/internal/llm/openai"
	"github.com/joseph-ayodele/invoices-tracker/internal/mailbox"
	"github.com/joseph-ayodele/invoices-tracker/internal/mailbox/gmail"
	"github.com/joseph-ayodele/invoices-tracker/internal/mailbox/imap"
	"github.com/joseph-ayodele/invoices-tracker/internal/notify"
	"github.com/joseph-ayodele/invoices-tracker/internal/ocr"
	"github.com/joseph-ayodele/invoices-tracker/internal/patterns"
	repo "github.com/joseph-ayodele/invoices-tracker/internal/repository"
	"github.com/joseph-ayodele/invoices-tracker/internal/scan"
	"github.com/joseph-ayodele/invoices-tracker/internal/sheets"
	"github.com/joseph-ayodele/invoices-tracker/internal/storage"
	"github.com/joseph-ayodele/invoices-tracker/internal/storage/drive"
)

// Extraction is the store-free half of the stack.
type Extraction struct {
	Bank       *patterns.Bank
	OCR        *ocr.Extractor
	Classifier *classify.Classifier
	Cascade    *extract.Cascade
}

// NewExtraction loads the pattern bank and assembles the cascade. Vision and
// entity stages join only when their services are configured; regex is
// always last.
func NewExtraction(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*Extraction, error) {
	bank, err := patterns.LoadFile(cfg.OCR.PatternsFile)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	extractor := ocr.NewExtractor(ocr.Config{
		TesseractLang: cfg.OCR.Languages,
		RenderDPI:     cfg.OCR.RenderDPI,
		MaxImageEdge:  cfg.OCR.MaxImageEdge,
		MinTextChars:  cfg.OCR.MinTextChars,
		TessdataDir:   cfg.OCR.TessdataDir,
		PSM:           cfg.OCR.PSM,
		OEM:           cfg.OCR.OEM,

		EnableTSVConfidence: cfg.OCR.TSVConfidence,
	}, logger)
	regex := extract.NewRegexExtractor(bank)

	var stages []extract.Strategy
	vision := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	if vision.Enabled() {
		stages = append(stages, extract.NewVisionStage(vision, extractor))
		logger.Info("vision stage enabled", "model", cfg.LLM.Model)
	} else {
		logger.Warn("OpenAI API key not configured, vision stage skipped")
	}

	docCfg := docai.Config{
		ProcessorName:   cfg.DocumentAI.ProcessorName,
		Endpoint:        cfg.DocumentAI.Endpoint,
		CredentialsFile: cfg.DocumentAI.CredentialsFile,
	}
	if docCfg.Enabled() {
		parser, err := docai.NewClient(ctx, docCfg, logger)
		if err != nil {
			return nil, err
		}
		stages = append(stages, extract.NewEntityStage(parser, regex))
		logger.Info("entity stage enabled", "processor", docCfg.ProcessorName)
	}
	stages = append(stages, extract.NewRegexStage(regex))

	return &Extraction{
		Bank:       bank,
		OCR:        extractor,
		Classifier: classify.New(bank, logger),
		Cascade:    extract.NewCascade(logger, stages...),
	}, nil
}

// Uploader picks Drive when a root folder is set, else local files. It
// returns nil when neither is configured.
func Uploader(ctx context.Context, cfg *common.Config, logger *slog.Logger) (storage.Uploader, error) {
	switch {
	case cfg.Drive.RootFolderID != "":
		return drive.New(ctx, cfg.Drive.RootFolderID, logger, gauth.ServiceAccount(cfg.Drive.CredentialsFile)...)
	case cfg.Drive.LocalDir != "":
		return storage.NewLocal(cfg.Drive.LocalDir), nil
	}
	return nil, nil
}

// Sheet picks Google Sheets when a spreadsheet is set, else workbooks on
// disk. It returns nil when neither is configured.
func Sheet(ctx context.Context, cfg *common.Config, logger *slog.Logger) (sheets.Appender, error) {
	switch {
	case cfg.Sheets.SpreadsheetID != "":
		return sheets.NewGoogle(ctx, cfg.Sheets.SpreadsheetID, logger, gauth.ServiceAccount(cfg.Sheets.CredentialsFile)...)
	case cfg.Sheets.XLSXDir != "":
		return sheets.NewXLSX(cfg.Sheets.XLSXDir), nil
	}
	return nil, nil
}

// Mailboxes returns the provider named by MAILBOX_PROVIDER.
func Mailboxes(cfg *common.Config, logger *slog.Logger) (mailbox.Provider, error) {
	switch strings.ToLower(cfg.Scan.Provider) {
	case "imap":
		if cfg.IMAP.Addr == "" {
			return nil, common.NewAppError("IMAP_CONFIG", "IMAP_ADDR is required", common.ErrInvalidInput)
		}
		return mailbox.Static(imap.New(imap.Config{
			Addr:     cfg.IMAP.Addr,
			Username: cfg.IMAP.Username,
			Password: cfg.IMAP.Password,
			Mailbox:  cfg.IMAP.Mailbox,
			Max:      cfg.Scan.MaxMessages,
		}, logger)), nil
	case "gmail", "":
		if cfg.Gmail.ClientID == "" || cfg.Gmail.ClientSecret == "" {
			return nil, common.NewAppError("GMAIL_CONFIG", "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required", common.ErrInvalidInput)
		}
		oauth := gauth.NewOAuth(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RedirectURL,
			[]string{gauth.GmailReadonlyScope}, gauth.NewTokenStore(cfg.Gmail.TokenDir), logger)
		return gmail.NewProvider(oauth, cfg.Scan.MaxMessages, logger), nil
	default:
		return nil, common.NewAppError("MAILBOX_PROVIDER", "unknown mailbox provider "+cfg.Scan.Provider, common.ErrInvalidInput)
	}
}

// Notifier always logs, and also emails or pushes when those are configured.
func Notifier(ctx context.Context, cfg *common.Config, logger *slog.Logger) (notify.Notifier, error) {
	out := notify.Multi{notify.NewLog(logger)}
	if cfg.SMTP.Addr != "" {
		mail, err := notify.NewSMTP(notify.SMTPConfig{
			Addr:     cfg.SMTP.Addr,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Security: notify.Security(cfg.SMTP.Security),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, mail)
	}
	if cfg.FCM.CredentialsFile != "" {
		fcm, err := notify.NewFCM(ctx, cfg.FCM.TopicPrefix, gauth.ServiceAccount(cfg.FCM.CredentialsFile)...)
		if err != nil {
			return nil, err
		}
		out = append(out, fcm)
	}
	return out, nil
}

// App is the pipeline bound to one store.
type App struct {
	*Extraction
	Store    *repo.Store
	Sheet    sheets.Appender
	Pipeline *scan.Pipeline
}

// New wires extraction, storage and the spreadsheet over an open store.
func New(ctx context.Context, cfg *common.Config, store *repo.Store, logger *slog.Logger) (*App, error) {
	ex, err := NewExtraction(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	uploader, err := Uploader(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	sheet, err := Sheet(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: %w", err)
	}
	var popts []scan.PipelineOption
	if uploader != nil {
		popts = append(popts, scan.WithUploader(uploader))
	}
	if sheet != nil {
		popts = append(popts, scan.WithSheet(sheet))
	}
	resolver := dedupe.NewResolver(store, logger).WithTolerance(cfg.Scan.DedupeTolerance)
	pipeline := scan.NewPipeline(ex.Classifier, ex.Cascade, resolver, store, ex.OCR, logger, popts...)

	logger.Info("pipeline ready",
		"stages", ex.Cascade.Stages(),
		"uploader", uploader != nil,
		"sheet", sheet != nil)
	return &App{Extraction: ex, Store: store, Sheet: sheet, Pipeline: pipeline}, nil
}

// Orchestrator adds the mailbox provider and notifiers on top of the
// pipeline.
func (a *App) Orchestrator(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*scan.Orchestrator, error) {
	mailboxes, err := Mailboxes(cfg, logger)
	if err != nil {
		return nil, err
	}
	notifier, err := Notifier(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	logger.Info("mailbox provider ready", "provider", cfg.Scan.Provider)
	return scan.NewOrchestrator(scan.Config{
		FirstScanLookback: cfg.Scan.FirstScanLookback,
		Overlap:           cfg.Scan.Overlap,
		BatchSize:         cfg.Scan.BatchSize,
		BatchPause:        cfg.Scan.BatchPause,
		TimeBudget:        cfg.Scan.TimeBudget,
	}, a.Store, mailboxes, a.Pipeline, notifier, logger), nil
}
