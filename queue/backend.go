package queue

import (
	"compass/core"
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Backend performs the durable write for a save. Which implementation is
// active is decided once at startup.
type Backend interface {
	Persist(ctx context.Context, job Job) error
	// Close stops accepting jobs.
	Close(ctx context.Context) error
}

// QueuedBackend enqueues the write for a worker. Persist returns once the
// job is in the broker.
type QueuedBackend struct {
	broker Broker
	closed atomic.Bool
}

func NewQueuedBackend(broker Broker) *QueuedBackend {
	return &QueuedBackend{broker: broker}
}

func (b *QueuedBackend) Persist(ctx context.Context, job Job) error {
	if b.closed.Load() {
		return ErrClosed
	}
	added, err := b.broker.Push(ctx, job)
	if err != nil {
		return err
	}
	if !added {
		logrus.WithFields(logrus.Fields{"job_id": job.ID, "project_id": job.ProjectID}).Debug("Duplicate save skipped")
	}
	return nil
}

func (b *QueuedBackend) Close(ctx context.Context) error {
	b.closed.Store(true)
	return b.broker.Close()
}

// DirectBackend writes synchronously in the request.
type DirectBackend struct {
	handle Handler
	closed atomic.Bool
}

func NewDirectBackend(handle Handler) *DirectBackend {
	return &DirectBackend{handle: handle}
}

func (b *DirectBackend) Persist(ctx context.Context, job Job) error {
	if b.closed.Load() {
		return ErrClosed
	}
	job.Attempts = 1
	return b.handle(ctx, job)
}

func (b *DirectBackend) Close(ctx context.Context) error {
	b.closed.Store(true)
	return nil
}

// NewUpsertHandler writes the job's canvas into store. Validation failures
// are final; everything else is retryable.
func NewUpsertHandler(store core.CanvasStore) Handler {
	return func(ctx context.Context, job Job) error {
		err := store.UpsertCanvas(ctx, &core.CanvasRecord{
			ProjectID:   job.ProjectID,
			UserID:      job.UserID,
			CanvasState: job.CanvasState,
			Timestamp:   job.Timestamp,
		})
		if err == nil || errors.Is(err, core.ErrValidation) {
			return err
		}
		return Retryable(err)
	}
}
