package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/async"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
)

// GmailNotification is the payload Gmail publishes for a watched mailbox.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

type PubSubConfig struct {
	ProjectID       string
	Subscription    string
	CredentialsFile string
}

// Listener turns watch notifications into push-triggered scans.
type Listener struct {
	client  *pubsub.Client
	sub     *pubsub.Subscription
	queue   Enqueuer
	resolve func(email string) (string, bool)
	logger  *slog.Logger

	mu   sync.Mutex
	last map[string]uint64
}

type ListenerOption func(*Listener)

// WithUserResolver maps a mailbox address to a user id. The default uses
// the lowercased address itself.
func WithUserResolver(fn func(email string) (string, bool)) ListenerOption {
	return func(l *Listener) {
		if fn != nil {
			l.resolve = fn
		}
	}
}

func NewListener(ctx context.Context, cfg PubSubConfig, queue Enqueuer, logger *slog.Logger, opts ...ListenerOption) (*Listener, error) {
	if cfg.ProjectID == "" || cfg.Subscription == "" {
		return nil, common.NewAppError("PUBSUB_CONFIG", "project id and subscription are required", common.ErrInvalidInput)
	}
	var copts []option.ClientOption
	if cfg.CredentialsFile != "" {
		copts = append(copts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, copts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	l := newListener(queue, logger, opts...)
	l.client = client
	l.sub = client.Subscription(cfg.Subscription)
	return l, nil
}

func newListener(queue Enqueuer, logger *slog.Logger, opts ...ListenerOption) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		queue:  queue,
		logger: logger,
		last:   map[string]uint64{},
		resolve: func(email string) (string, bool) {
			email = strings.ToLower(strings.TrimSpace(email))
			return email, email != ""
		},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run receives until ctx ends.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("pubsub.listening", "subscription", l.sub.ID())
	err := l.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if l.handle(ctx, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

func (l *Listener) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

// handle reports whether the message should be acked. Malformed and stale
// notifications are acked and dropped. So is one that arrives while the
// user's scan is in flight: that scan's overlap or the next tick picks the
// new mail up. A full or closed queue leaves the message for redelivery.
func (l *Listener) handle(ctx context.Context, data []byte) bool {
	var n GmailNotification
	if err := json.Unmarshal(data, &n); err != nil {
		l.logger.Warn("pubsub.malformed", "err", err)
		return true
	}
	userID, ok := l.resolve(n.EmailAddress)
	if !ok {
		l.logger.Warn("pubsub.unknown_mailbox", "email", n.EmailAddress)
		return true
	}

	l.mu.Lock()
	last, seen := l.last[userID]
	l.mu.Unlock()
	if seen && n.HistoryID <= last {
		l.logger.Debug("pubsub.stale", "user_id", userID, "history_id", n.HistoryID, "last", last)
		return true
	}

	_, err := l.queue.Enqueue(ctx, async.Job{
		UserID:      userID,
		Trigger:     constants.TriggerPush,
		HistoryID:   n.HistoryID,
		SubmittedAt: time.Now(),
	})
	switch {
	case errors.Is(err, common.ErrScanInFlight):
		l.logger.Info("pubsub.scan_in_flight", "user_id", userID, "history_id", n.HistoryID)
		return true
	case err != nil:
		l.logger.Info("pubsub.enqueue_deferred", "user_id", userID, "history_id", n.HistoryID, "err", err)
		return false
	}

	l.mu.Lock()
	if n.HistoryID > l.last[userID] {
		l.last[userID] = n.HistoryID
	}
	l.mu.Unlock()
	return true
}
