// Package trigger starts scans without an interactive caller: on an
// interval, and on Gmail watch pushes delivered through Pub/Sub.
package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/async"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
)

// Enqueuer is the part of the scan queue triggers use.
type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) (async.Ack, error)
}

// UserLister reports users already known to the store.
type UserLister interface {
	ListUsers(ctx context.Context) ([]string, error)
}

// Scheduler enqueues an unattended scan for every user on each tick.
type Scheduler struct {
	queue    Enqueuer
	users    []string
	lister   UserLister
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(queue Enqueuer, users []string, lister UserLister, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{queue: queue, users: users, lister: lister, interval: interval, logger: logger}
}

// Run ticks once immediately, then every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler.started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick enqueues one round and returns how many jobs were accepted.
func (s *Scheduler) Tick(ctx context.Context) int {
	users := s.targets(ctx)
	accepted := 0
	for _, u := range users {
		_, err := s.queue.Enqueue(ctx, async.Job{UserID: u, Trigger: constants.TriggerUnattended, SubmittedAt: time.Now()})
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, common.ErrScanInFlight):
			s.logger.Debug("scheduler.skip.in_flight", "user_id", u)
		default:
			s.logger.Warn("scheduler.enqueue_failed", "user_id", u, "err", err)
		}
	}
	s.logger.Info("scheduler.tick", "users", len(users), "accepted", accepted)
	return accepted
}

func (s *Scheduler) targets(ctx context.Context) []string {
	seen := map[string]bool{}
	var out []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, u := range s.users {
		add(u)
	}
	if s.lister != nil {
		known, err := s.lister.ListUsers(ctx)
		if err != nil {
			s.logger.Warn("scheduler.list_users_failed", "err", err)
		}
		for _, u := range known {
			add(u)
		}
	}
	sort.Strings(out)
	return out
}
