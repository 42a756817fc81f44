// Package server exposes the interactive trigger and record maintenance
// over gRPC.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/async"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/ingest"
	"github.com/joseph-ayodele/invoices-tracker/internal/sheets"
)

const (
	StatusStarted        = "started"
	StatusAlreadyRunning = "already_running"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) (async.Ack, error)
}

// Records is the read side of the store the service needs.
type Records interface {
	LatestLog(ctx context.Context, userID string) (entity.ProcessingLog, error)
	ListByUser(ctx context.Context, userID string) ([]entity.Invoice, error)
}

type ScanService struct {
	UnimplementedScanServiceServer
	queue    Enqueuer
	records  Records
	sheet    sheets.Appender
	ingestor ingest.Ingestor
	logger   *slog.Logger
}

// NewScanService wires the service. sheet and ingestor may be nil, in which
// case their RPCs report FailedPrecondition.
func NewScanService(queue Enqueuer, records Records, sheet sheets.Appender, ingestor ingest.Ingestor, logger *slog.Logger) *ScanService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanService{queue: queue, records: records, sheet: sheet, ingestor: ingestor, logger: logger}
}

// maxUserIDLen matches the width mailbox addresses are allowed to reach.
const maxUserIDLen = 254

func userID(req *wrapperspb.StringValue) (string, error) {
	id := strings.TrimSpace(req.GetValue())
	err := common.NewValidator().Field("user_id", id, common.Required, common.MaxLength(maxUserIDLen)).Error()
	if err != nil {
		return "", common.ToStatus(err)
	}
	return id, nil
}

// StartScan queues an interactive scan and returns without waiting for it.
func (s *ScanService) StartScan(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	uid, err := userID(req)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	ack, err := s.queue.Enqueue(ctx, async.Job{
		UserID:      uid,
		Trigger:     constants.TriggerInteractive,
		SubmittedAt: time.Now(),
		RequestID:   requestID,
	})
	switch {
	case errors.Is(err, common.ErrScanInFlight):
		s.logger.Info("start scan: already running", "user_id", uid, "job_id", ack.JobID)
		return structpb.NewStruct(map[string]interface{}{
			"status":  StatusAlreadyRunning,
			"user_id": uid,
			"job_id":  ack.JobID,
		})
	case err != nil:
		s.logger.Error("start scan failed", "user_id", uid, "error", err)
		return nil, common.ToStatus(err)
	}
	s.logger.Info("scan started", "user_id", uid, "job_id", ack.JobID, "request_id", requestID)
	return structpb.NewStruct(map[string]interface{}{
		"status":     StatusStarted,
		"user_id":    uid,
		"job_id":     ack.JobID,
		"request_id": requestID,
		"queued_at":  ack.QueuedAt.UTC().Format(time.RFC3339),
	})
}

func (s *ScanService) LatestLog(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	uid, err := userID(req)
	if err != nil {
		return nil, err
	}
	l, err := s.records.LatestLog(ctx, uid)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Error("latest log failed", "user_id", uid, "error", err)
		}
		return nil, common.ToStatus(err)
	}
	return logStruct(l)
}

// RebuildSheet rewrites the user's spreadsheet projection from the records.
func (s *ScanService) RebuildSheet(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	uid, err := userID(req)
	if err != nil {
		return nil, err
	}
	if s.sheet == nil {
		return nil, status.Error(codes.FailedPrecondition, "no spreadsheet configured")
	}
	invs, err := s.records.ListByUser(ctx, uid)
	if err != nil {
		s.logger.Error("list invoices failed", "user_id", uid, "error", err)
		return nil, common.ToStatus(err)
	}
	if err := s.sheet.Rewrite(ctx, uid, sheets.Rows(invs)); err != nil {
		s.logger.Error("rewrite sheet failed", "user_id", uid, "error", err)
		return nil, status.Errorf(codes.Unavailable, "rewrite sheet: %v", err)
	}
	s.logger.Info("sheet rebuilt", "user_id", uid, "rows", len(invs))
	return structpb.NewStruct(map[string]interface{}{"user_id": uid, "rows": len(invs)})
}

// IngestPath ingests a file or a directory on the server's filesystem.
func (s *ScanService) IngestPath(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.ingestor == nil {
		return nil, status.Error(codes.FailedPrecondition, "manual ingestion is disabled")
	}
	fields := req.GetFields()
	uid := strings.TrimSpace(fields["user_id"].GetStringValue())
	path := strings.TrimSpace(fields["path"].GetStringValue())
	err := common.NewValidator().
		Field("user_id", uid, common.Required, common.MaxLength(maxUserIDLen)).
		Field("path", path, common.Required).
		Error()
	if err != nil {
		return nil, common.ToStatus(err)
	}
	skipHidden := true
	if v, ok := fields["skip_hidden"]; ok {
		skipHidden = v.GetBoolValue()
	}

	if fields["directory"].GetBoolValue() {
		results, stats, err := s.ingestor.IngestDir(ctx, uid, path, skipHidden)
		if err != nil && len(results) == 0 {
			return nil, common.ToStatus(err)
		}
		items := make([]interface{}, 0, len(results))
		for _, r := range results {
			items = append(items, resultMap(r))
		}
		out := map[string]interface{}{
			"user_id":      uid,
			"scanned":      int(stats.Scanned),
			"matched":      int(stats.Matched),
			"succeeded":    int(stats.Succeeded),
			"deduplicated": int(stats.Deduplicated),
			"skipped":      int(stats.Skipped),
			"failed":       int(stats.Failed),
			"results":      items,
		}
		if err != nil {
			out["error"] = err.Error()
		}
		return structpb.NewStruct(out)
	}

	r, err := s.ingestor.IngestFile(ctx, uid, path)
	if err != nil {
		s.logger.Warn("ingest file failed", "user_id", uid, "path", path, "error", err)
		return nil, common.ToStatus(err)
	}
	return structpb.NewStruct(resultMap(r))
}

func resultMap(r ingest.Result) map[string]interface{} {
	m := map[string]interface{}{
		"path":          r.Path,
		"outcome":       r.Outcome.String(),
		"message_id":    r.Key.MessageID,
		"attachment_id": r.Key.AttachmentID,
		"hash":          r.HashHex,
		"errors":        toAnySlice(r.Errors),
	}
	if r.Err != "" {
		m["error"] = r.Err
	}
	return m
}

func logStruct(l entity.ProcessingLog) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"id":                    l.ID,
		"user_id":               l.UserID,
		"trigger":               string(l.Trigger),
		"status":                string(l.Status),
		"emails_scanned":        l.EmailsScanned,
		"attachments_processed": l.AttachmentsProcessed,
		"invoices_found":        l.InvoicesFound,
		"duplicates_skipped":    l.DuplicatesSkipped,
		"errors":                toAnySlice(l.Errors),
		"window_start":          rfc3339(l.WindowStart),
		"started_at":            rfc3339(l.StartedAt),
		"finished_at":           rfc3339(l.FinishedAt),
	})
}

func toAnySlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
