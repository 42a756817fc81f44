// Package notify tells a user that a scan found invoices.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Notifier is the notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, userID string, invoiceCount int) error
}

// Log records the notification and nothing else.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, userID string, invoiceCount int) error {
	l.logger.Info("notify.invoices_found", "user_id", userID, "count", invoiceCount)
	return nil
}

// Multi sends through every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID string, invoiceCount int) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, userID, invoiceCount); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func subject(count int) string {
	if count == 1 {
		return "1 new invoice found"
	}
	return fmt.Sprintf("%d new invoices found", count)
}
