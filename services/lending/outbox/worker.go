package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"foxylend/native/lending"
	"foxylend/observability"
)

// Executor performs transfer instructions against the custody backend.
type Executor interface {
	TransferFunds(ctx context.Context, job Job) error
	TransferAsset(ctx context.Context, job Job) error
}

// Repository is the persistence surface the worker depends on.
type Repository interface {
	ClaimPending(ctx context.Context, limit int) ([]Job, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, next time.Time, lastError string) error
	MarkFailed(ctx context.Context, job Job, lastError string) error
}

var errUnsupportedKind = errors.New("unsupported_kind")

// Worker drains the outbox in position order. A job that fails stops the pass
// so that later transfers never overtake it.
type Worker struct {
	repo         Repository
	exec         Executor
	logger       *slog.Logger
	metrics      *observability.LendingMetricsRegistry
	maxAttempts  int
	now          func() time.Time
	retryBackoff func(attempt int) time.Duration
}

// WorkerOption customises a Worker.
type WorkerOption func(*Worker)

// WithMaxAttempts bounds the retries of a single job.
func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithClock overrides the time source. Tests use it to step through backoff.
func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics publishes job outcomes.
func WithMetrics(m *observability.LendingMetricsRegistry) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(repo Repository, exec Executor, opts ...WorkerOption) *Worker {
	w := &Worker{
		repo:        repo,
		exec:        exec,
		logger:      slog.Default(),
		maxAttempts: 5,
		now:         func() time.Time { return time.Now().UTC() },
		retryBackoff: func(attempt int) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			return time.Duration(attempt*15) * time.Second
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// RunOnce processes at most batchSize jobs and returns how many completed.
func (w *Worker) RunOnce(ctx context.Context, batchSize int) (int, error) {
	jobs, err := w.repo.ClaimPending(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	w.metrics.SetOutboxPending(len(jobs))

	done := 0
	for _, job := range jobs {
		if job.AvailableAt.After(w.now()) {
			break
		}
		ok, err := w.processJob(ctx, job)
		if err != nil {
			return done, err
		}
		if !ok {
			break
		}
		done++
	}
	return done, nil
}

// Run polls the outbox every interval until ctx ends.
func (w *Worker) Run(ctx context.Context, interval time.Duration, batchSize int) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx, batchSize); err != nil && ctx.Err() == nil {
			w.logger.Error("outbox pass failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// processJob executes one job. ok is false when the job did not complete and
// the pass must stop.
func (w *Worker) processJob(ctx context.Context, job Job) (bool, error) {
	var execErr error
	switch lending.TransferKind(job.Kind) {
	case lending.TransferFunds:
		execErr = w.exec.TransferFunds(ctx, job)
	case lending.TransferAsset:
		execErr = w.exec.TransferAsset(ctx, job)
	default:
		execErr = errUnsupportedKind
	}
	if execErr == nil {
		if err := w.repo.MarkDone(ctx, job.ID); err != nil {
			return false, err
		}
		w.metrics.RecordOutboxJob(job.Kind, string(StatusDone))
		return true, nil
	}
	return false, w.handleJobError(ctx, job, execErr)
}

func (w *Worker) handleJobError(ctx context.Context, job Job, err error) error {
	msg := err.Error()
	if job.Attempts+1 >= w.maxAttempts || errors.Is(err, errUnsupportedKind) {
		w.logger.Error("outbox job failed",
			slog.String("job_id", job.ID.String()),
			slog.String("action", job.Action),
			slog.Int("offer_id", job.OfferID),
			slog.String("error", msg))
		w.metrics.RecordOutboxJob(job.Kind, string(StatusFailed))
		if ferr := w.repo.MarkFailed(ctx, job, msg); ferr != nil {
			return fmt.Errorf("mark failed: %w", ferr)
		}
		return nil
	}
	w.logger.Warn("outbox job retry scheduled",
		slog.String("job_id", job.ID.String()),
		slog.Int("attempt", job.Attempts+1),
		slog.String("error", msg))
	w.metrics.RecordOutboxJob(job.Kind, "retry")
	next := w.now().Add(w.retryBackoff(job.Attempts + 1))
	return w.repo.MarkRetry(ctx, job.ID, next, msg)
}
