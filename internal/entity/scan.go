package entity

import (
	"time"

	"github.com/joseph-ayodele/invoices-tracker/constants"
)

// ScanCursor is the per-user scan watermark. It only ever moves forward.
type ScanCursor struct {
	UserID          string    `json:"user_id"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	LastHistoryID   uint64    `json:"last_history_id,omitempty"`
	IsFirstScan     bool      `json:"is_first_scan"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewCursor is the state of a user who has never been scanned.
func NewCursor(userID string) ScanCursor {
	return ScanCursor{UserID: userID, IsFirstScan: true}
}

// Advance returns a copy moved to newest (and historyID), never backwards.
func (c ScanCursor) Advance(newest time.Time, historyID uint64, now time.Time) ScanCursor {
	next := c
	if newest.After(next.LastProcessedAt) {
		next.LastProcessedAt = newest
	}
	if historyID > next.LastHistoryID {
		next.LastHistoryID = historyID
	}
	next.IsFirstScan = false
	next.UpdatedAt = now
	return next
}

// ProcessingLog is written once per orchestrator run. Append-only.
type ProcessingLog struct {
	ID                   string                `json:"id"`
	UserID               string                `json:"user_id"`
	Trigger              constants.TriggerType `json:"trigger"`
	Status               constants.RunStatus   `json:"status"`
	EmailsScanned        int                   `json:"emails_scanned"`
	AttachmentsProcessed int                   `json:"attachments_processed"`
	InvoicesFound        int                   `json:"invoices_found"`
	DuplicatesSkipped    int                   `json:"duplicates_skipped"`
	Errors               []string              `json:"errors"`
	WindowStart          time.Time             `json:"window_start"`
	StartedAt            time.Time             `json:"started_at"`
	FinishedAt           time.Time             `json:"finished_at"`
}
