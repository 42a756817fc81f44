package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

// GetCursor returns the stored cursor, or a first-scan cursor for unknown users.
func (s *Store) GetCursor(ctx context.Context, userID string) (entity.ScanCursor, error) {
	b := s.builder()
	query, args := b.Select("user_id", "last_processed_at", "last_history_id", "is_first_scan", "updated_at").
		From(b.Table(tableCursors)).
		Where(entsql.EQ("user_id", userID)).
		Query()

	var (
		c                  entity.ScanCursor
		processed, updated int64
		historyID          int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&c.UserID, &processed, &historyID, &c.IsFirstScan, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.NewCursor(userID), nil
	}
	if err != nil {
		s.logger.Error("failed to read cursor", "user_id", userID, "error", err)
		return entity.ScanCursor{}, err
	}
	c.LastProcessedAt = fromMillis(processed)
	c.LastHistoryID = uint64(historyID)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

// SetCursor writes the cursor; the last writer wins.
func (s *Store) SetCursor(ctx context.Context, c entity.ScanCursor) error {
	if c.UserID == "" {
		return common.NewAppError("INVALID_CURSOR", "cursor has no user", common.ErrInvalidInput)
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = s.now().UTC()
	}
	query, args := s.builder().Insert(tableCursors).
		Columns("user_id", "last_processed_at", "last_history_id", "is_first_scan", "updated_at").
		Values(c.UserID, toMillis(c.LastProcessedAt), int64(c.LastHistoryID), c.IsFirstScan, toMillis(c.UpdatedAt)).
		OnConflict(
			entsql.ConflictColumns("user_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error("failed to write cursor", "user_id", c.UserID, "error", err)
		return fmt.Errorf("write cursor: %w: %w", common.ErrDatabase, err)
	}
	return nil
}

// ListUsers returns every user that has a cursor.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	b := s.builder()
	query, args := b.Select("user_id").
		From(b.Table(tableCursors)).
		OrderBy("user_id").
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

var logColumns = []string{
	"id", "user_id", "trigger_type", "status",
	"emails_scanned", "attachments_processed", "invoices_found", "duplicates_skipped",
	"errors", "window_start", "started_at", "finished_at",
}

// AppendLog inserts a processing log, minting an id when it has none.
func (s *Store) AppendLog(ctx context.Context, l entity.ProcessingLog) (entity.ProcessingLog, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Errors == nil {
		l.Errors = []string{}
	}
	errs, err := json.Marshal(l.Errors)
	if err != nil {
		return l, fmt.Errorf("encode log errors: %w", err)
	}
	query, args := s.builder().Insert(tableLogs).
		Columns(logColumns...).
		Values(
			l.ID, l.UserID, string(l.Trigger), string(l.Status),
			l.EmailsScanned, l.AttachmentsProcessed, l.InvoicesFound, l.DuplicatesSkipped,
			string(errs), toMillis(l.WindowStart), toMillis(l.StartedAt), toMillis(l.FinishedAt),
		).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error("failed to append processing log", "user_id", l.UserID, "error", err)
		return l, fmt.Errorf("append log: %w: %w", common.ErrDatabase, err)
	}
	return l, nil
}

// ListLogs returns up to limit logs for the user, newest first.
func (s *Store) ListLogs(ctx context.Context, userID string, limit int) ([]entity.ProcessingLog, error) {
	b := s.builder()
	sel := b.Select(logColumns...).
		From(b.Table(tableLogs)).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("started_at"), entsql.Desc("finished_at"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.ProcessingLog
	for rows.Next() {
		var (
			l                         entity.ProcessingLog
			trigger, status, errs     string
			window, started, finished int64
		)
		if err := rows.Scan(&l.ID, &l.UserID, &trigger, &status,
			&l.EmailsScanned, &l.AttachmentsProcessed, &l.InvoicesFound, &l.DuplicatesSkipped,
			&errs, &window, &started, &finished); err != nil {
			return nil, err
		}
		l.Trigger = constants.TriggerType(trigger)
		l.Status = constants.RunStatus(status)
		if err := json.Unmarshal([]byte(errs), &l.Errors); err != nil {
			l.Errors = []string{errs}
		}
		l.WindowStart = fromMillis(window)
		l.StartedAt = fromMillis(started)
		l.FinishedAt = fromMillis(finished)
		out = append(out, l)
	}
	return out, rows.Err()
}

// LatestLog returns the user's newest log, or ErrNotFound.
func (s *Store) LatestLog(ctx context.Context, userID string) (entity.ProcessingLog, error) {
	logs, err := s.ListLogs(ctx, userID, 1)
	if err != nil {
		return entity.ProcessingLog{}, err
	}
	if len(logs) == 0 {
		return entity.ProcessingLog{}, common.NewAppError("NOT_FOUND", "no processing log for user "+userID, common.ErrNotFound)
	}
	return logs[0], nil
}
