// Package async runs scans in the background so triggers return at once.
package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
	"github.com/joseph-ayodele/invoices-tracker/internal/scan"
)

// Job is one requested scan.
type Job struct {
	UserID      string
	Trigger     constants.TriggerType
	HistoryID   uint64
	SubmittedAt time.Time
	RequestID   string
}

// Ack is returned as soon as a job is accepted.
type Ack struct {
	JobID    string
	UserID   string
	QueuedAt time.Time
}

// Runner executes a scan to completion.
type Runner interface {
	Run(ctx context.Context, req scan.Request) (entity.ProcessingLog, error)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) (Ack, error)
	Shutdown(ctx context.Context)
}

// ScanQueue is a fixed worker pool over a bounded channel.
type ScanQueue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration
	guard   bool
	onDone  func(Job, entity.ProcessingLog, error)

	ch   chan queued
	wg   sync.WaitGroup
	once sync.Once

	mu       sync.Mutex
	closed   bool
	inflight map[string]string
}

type queued struct {
	id  string
	job Job
}

type Option func(*ScanQueue)

func WithWorkers(n int) Option {
	return func(q *ScanQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithCapacity(n int) Option {
	return func(q *ScanQueue) {
		if n > 0 {
			q.ch = make(chan queued, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(q *ScanQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithUserGuard toggles the one-scan-per-user rule.
func WithUserGuard(on bool) Option {
	return func(q *ScanQueue) { q.guard = on }
}

// WithOnDone registers a hook called after every job.
func WithOnDone(fn func(Job, entity.ProcessingLog, error)) Option {
	return func(q *ScanQueue) { q.onDone = fn }
}

func NewScanQueue(runner Runner, logger *slog.Logger, opts ...Option) *ScanQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ScanQueue{
		runner:   runner,
		logger:   logger,
		workers:  2,
		timeout:  10 * time.Minute,
		guard:    true,
		ch:       make(chan queued, 64),
		inflight: map[string]string{},
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ScanQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", "worker_id", workerID)
				for item := range q.ch {
					q.process(workerID, item)
				}
				q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ScanQueue) process(workerID int, item queued) {
	job := item.job
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}
	entry, err := q.runner.Run(ctx, scan.Request{UserID: job.UserID, Trigger: job.Trigger, HistoryID: job.HistoryID})
	cancel()

	q.release(job.UserID, item.id)
	if err != nil {
		q.logger.Error("queue.job.failed", "worker_id", workerID, "job_id", item.id, "user_id", job.UserID, "err", err)
	} else {
		q.logger.Info("queue.job.done", "worker_id", workerID, "job_id", item.id, "user_id", job.UserID,
			"status", entry.Status, "invoices", entry.InvoicesFound, "waited", time.Since(job.SubmittedAt))
	}
	if q.onDone != nil {
		q.onDone(job, entry, err)
	}
}

func (q *ScanQueue) release(userID, id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight[userID] == id {
		delete(q.inflight, userID)
	}
}

// Enqueue never blocks. A full queue and a user with a scan already queued
// or running are both rejected.
func (q *ScanQueue) Enqueue(_ context.Context, job Job) (Ack, error) {
	if job.UserID == "" {
		return Ack{}, common.NewAppError("INVALID_USER", "user id is required", common.ErrInvalidInput)
	}
	if job.Trigger == "" {
		job.Trigger = constants.TriggerInteractive
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "user_id", job.UserID)
		return Ack{}, common.ErrQueueClosed
	}
	if running, ok := q.inflight[job.UserID]; ok && q.guard {
		q.logger.Info("queue.enqueue.in_flight", "user_id", job.UserID, "job_id", running)
		return Ack{JobID: running, UserID: job.UserID}, common.NewAppError("SCAN_IN_FLIGHT", "user "+job.UserID, common.ErrScanInFlight)
	}

	item := queued{id: uuid.NewString(), job: job}
	select {
	case q.ch <- item:
	default:
		q.logger.Warn("queue.enqueue.full", "user_id", job.UserID, "capacity", cap(q.ch))
		return Ack{}, common.ErrQueueFull
	}
	if q.guard {
		q.inflight[job.UserID] = item.id
	}
	q.logger.Info("queue.enqueue.ok", "user_id", job.UserID, "job_id", item.id, "trigger", job.Trigger)
	return Ack{JobID: item.id, UserID: job.UserID, QueuedAt: job.SubmittedAt}, nil
}

// InFlight reports whether the user has a scan queued or running.
func (q *ScanQueue) InFlight(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[userID]
	return ok
}

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (q *ScanQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.drained")
	}
}
