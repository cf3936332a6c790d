package outbox

import (
	"context"
	"log/slog"
	"time"

	"orgcore/internal/audit"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
)

// Worker polls the audit store for events past its cursor and publishes them
// in recorded order. Delivery is at-least-once: if publishing fails mid-batch
// the cursor stays at the last acknowledged event and the next poll resumes
// from there.
type Worker struct {
	store     audit.Store
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int

	cursor audit.Cursor
}

type WorkerOption func(w *Worker)

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		w.interval = interval
	}
}

func WithBatchSize(size int) WorkerOption {
	return func(w *Worker) {
		w.batchSize = size
	}
}

// WithCursor resumes from a previously acknowledged position instead of the
// start of the trail.
func WithCursor(cursor audit.Cursor) WorkerOption {
	return func(w *Worker) {
		w.cursor = cursor
	}
}

func NewWorker(store audit.Store, publisher Publisher, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:     store,
		publisher: publisher,
		logger:    slog.New(slog.DiscardHandler),
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil {
				w.logger.ErrorContext(ctx, "audit outbox drain failed", "error", err)
			}
		}
	}
}

// Drain ships every event past the cursor, batch by batch, and returns the
// number published. The cursor advances once per acknowledged event, so a
// failure leaves it pointing at the last event the broker accepted.
func (w *Worker) Drain(ctx context.Context) error {
	published := 0
	defer func() {
		if published > 0 {
			w.logger.DebugContext(ctx, "published audit events", "count", published)
		}
	}()

	for {
		events, err := w.store.ListAfter(ctx, w.cursor, w.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		for _, event := range events {
			if err := w.publisher.Publish(ctx, event); err != nil {
				return err
			}
			w.cursor = audit.Cursor{RecordedAt: event.RecordedAt, ID: event.ID}
			published++
		}
		if len(events) < w.batchSize {
			return nil
		}
	}
}

// Cursor reports the last acknowledged position.
func (w *Worker) Cursor() audit.Cursor {
	return w.cursor
}
