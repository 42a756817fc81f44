package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/scan"
)

// LogWriter records one processing log per directory ingest.
type LogWriter interface {
	AppendLog(ctx context.Context, l entity.ProcessingLog) (entity.ProcessingLog, error)
}

// FSIngestor reads uploads from the local filesystem.
type FSIngestor struct {
	pipeline *scan.Pipeline
	logs     LogWriter
	logger   *slog.Logger
	now      func() time.Time
}

func NewFSIngestor(pipeline *scan.Pipeline, logs LogWriter, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{pipeline: pipeline, logs: logs, logger: logger, now: time.Now}
}

func (i *FSIngestor) IngestFile(ctx context.Context, userID, path string) (Result, error) {
	out := Result{Path: path}
	if strings.TrimSpace(userID) == "" {
		return out, common.NewAppError("INVALID_USER", "user id is required", common.ErrInvalidInput)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.Path = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return out, common.NewAppError("UNSUPPORTED_FILE", fmt.Sprintf("extension %q", ext), common.ErrUnsupported)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return out, fmt.Errorf("read: %w", err)
	}
	key, hexSum := KeyFor(userID, data)
	out.Key, out.HashHex = key, hexSum

	log := common.LoggerFrom(ctx, i.logger).With("path", abs, "message_id", key.MessageID)
	seen, err := i.pipeline.Seen(ctx, key)
	if err != nil {
		return out, err
	}
	if seen {
		log.Info("ingest.file.duplicate")
		out.Outcome = scan.OutcomeDuplicate
		return out, nil
	}

	res, err := i.pipeline.Process(ctx, key.UserID, entity.CandidateAttachment{
		MessageID:    key.MessageID,
		AttachmentID: key.AttachmentID,
		Filename:     filepath.Base(abs),
		MimeType:     constants.MimeTypeFor(abs),
		Data:         data,
	})
	out.Errors = res.Errors
	if err != nil {
		return out, err
	}
	out.Outcome, out.Invoice = res.Outcome, res.Invoice
	if res.SheetErr != nil {
		out.Errors = append(out.Errors, "spreadsheet: "+res.SheetErr.Error())
	}
	log.Info("ingest.file.done", "outcome", res.Outcome.String())
	return out, nil
}

// IngestDir walks root, skips hidden entries if requested, ingests every
// supported file and writes a single processing log for the whole walk.
func (i *FSIngestor) IngestDir(ctx context.Context, userID, root string, skipHidden bool) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.NewAppError("INVALID_ROOT", "root path is required", common.ErrInvalidInput)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, DirStats{}, common.NewAppError("INVALID_USER", "user id is required", common.ErrInvalidInput)
	}

	entry := entity.ProcessingLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		Trigger:   constants.TriggerManual,
		StartedAt: i.now(),
		Errors:    []string{},
	}
	ctx = common.WithRunID(common.WithUserID(ctx, userID), entry.ID)

	var results []Result
	var stats DirStats

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{Path: path, Err: walkErr.Error()})
			entry.Errors = append(entry.Errors, path+": "+walkErr.Error())
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestFile(ctx, userID, path)
		entry.Errors = append(entry.Errors, r.Errors...)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			entry.Errors = append(entry.Errors, path+": "+err.Error())
			stats.Failed++
			return nil
		}
		results = append(results, r)
		switch r.Outcome {
		case scan.OutcomeSaved:
			stats.Succeeded++
		case scan.OutcomeDuplicate:
			stats.Deduplicated++
		default:
			stats.Skipped++
		}
		return nil
	})

	entry.AttachmentsProcessed = int(stats.Matched)
	entry.InvoicesFound = int(stats.Succeeded)
	entry.DuplicatesSkipped = int(stats.Deduplicated)
	entry.Status = constants.RunCompleted
	entry.FinishedAt = i.now()

	var errs []error
	if walkErr != nil {
		entry.Status = constants.RunAborted
		errs = append(errs, fmt.Errorf("walk: %w", walkErr))
	}
	if i.logs != nil {
		if _, err := i.logs.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
			errs = append(errs, fmt.Errorf("write processing log: %w", err))
		}
	}
	i.logger.Info("ingest.dir.done", "user_id", userID, "root", root,
		"matched", stats.Matched, "saved", stats.Succeeded, "duplicates", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, errors.Join(errs...)
}
