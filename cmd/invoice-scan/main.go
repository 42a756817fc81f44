package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/app"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/ingest"
	"github.com/joseph-ayodele/invoices-tracker/internal/scan"
	svc "github.com/joseph-ayodele/invoices-tracker/internal/server"
	"github.com/joseph-ayodele/invoices-tracker/internal/sheets"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		user    = flag.String("user", "", "user id to scan (required)")
		inmem   = flag.Bool("inmem", false, "use an in-memory SQLite database")
		dir     = flag.String("dir", "", "ingest this directory instead of scanning the mailbox")
		xlsxDir = flag.String("xlsx", "", "rewrite the user's workbook in this directory when done")
		trig    = flag.String("trigger", string(constants.TriggerInteractive), "trigger recorded in the log")
	)
	flag.Parse()

	if *user == "" {
		printError("Error: --user is required\n")
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	if *inmem {
		cfg.Database.Driver, cfg.Database.DSN = "sqlite", ":memory:"
	}
	// Keep stdout for the JSON summary.
	logger := common.NewLogger(os.Stderr, cfg.Logging)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = common.WithUserID(ctx, *user)

	store, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		os.Exit(1)
	}
	defer svc.CloseDB(store, logger)

	stack, err := app.New(ctx, cfg, store, logger)
	if err != nil {
		logger.Error("failed to build scan stack", "error", err)
		os.Exit(1)
	}

	var out interface{}
	if *dir != "" {
		results, stats, err := ingest.NewFSIngestor(stack.Pipeline, store, logger).IngestDir(ctx, *user, *dir, true)
		if err != nil {
			logger.Error("directory ingest finished with errors", "error", err)
		}
		out = map[string]interface{}{"stats": stats, "results": results}
	} else {
		orch, err := stack.Orchestrator(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to build orchestrator", "error", err)
			os.Exit(1)
		}
		entry, err := orch.Run(ctx, scan.Request{UserID: *user, Trigger: constants.TriggerType(*trig)})
		if err != nil {
			logger.Error("scan failed", "error", err)
			if entry.ID == "" {
				os.Exit(1)
			}
		}
		out = entry
	}

	if *xlsxDir != "" {
		invs, err := store.ListByUser(ctx, *user)
		if err != nil {
			logger.Error("failed to list invoices", "error", err)
			os.Exit(1)
		}
		book := sheets.NewXLSX(*xlsxDir)
		if err := book.Rewrite(ctx, *user, sheets.Rows(invs)); err != nil {
			logger.Error("failed to write workbook", "error", err)
			os.Exit(1)
		}
		logger.Info("workbook written", "path", book.Path(*user), "rows", len(invs))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		printError("Error: encode summary: %v\n", err)
		os.Exit(1)
	}
}
