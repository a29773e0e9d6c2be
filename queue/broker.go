package queue

import (
	"context"
	"sync"
	"time"
)

// Broker stores pending jobs and records their outcome.
type Broker interface {
	// Push enqueues job unless a job with the same ID was seen within the
	// retention window. It reports whether the job was added.
	Push(ctx context.Context, job Job) (bool, error)

	// Pop blocks until a job is available. It returns ErrClosed once the
	// broker is closed and has nothing left to hand out.
	Pop(ctx context.Context) (Job, error)

	Complete(ctx context.Context, job Job) error
	Fail(ctx context.Context, job Job, cause error) error

	// Close stops accepting pushes. Jobs already popped can still be
	// completed or failed.
	Close() error
}

// Retention bounds how many finished jobs are kept for inspection and for
// how long a completed job blocks its dedup key.
type Retention struct {
	CompletedAge time.Duration
	CompletedMax int64
	FailedMax    int64
}

func DefaultRetention() Retention {
	return Retention{
		CompletedAge: time.Hour,
		CompletedMax: 100,
		FailedMax:    1000,
	}
}

// MemoryBroker is an in-process broker. Jobs left in it when the process
// exits are lost; Close lets workers drain what is queued.
type MemoryBroker struct {
	mu        sync.Mutex
	pending   []Job
	active    map[string]struct{}
	seen      map[string]time.Time
	completed []Job
	failed    []Job
	wake      chan struct{}
	closed    bool
	retention Retention
	now       func() time.Time
}

func NewMemoryBroker(retention Retention) *MemoryBroker {
	return &MemoryBroker{
		active:    make(map[string]struct{}),
		seen:      make(map[string]time.Time),
		wake:      make(chan struct{}),
		retention: retention,
		now:       time.Now,
	}
}

// signal wakes every blocked Pop. Callers hold mu.
func (b *MemoryBroker) signal() {
	close(b.wake)
	b.wake = make(chan struct{})
}

func (b *MemoryBroker) Push(ctx context.Context, job Job) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false, ErrClosed
	}
	if _, ok := b.active[job.ID]; ok {
		return false, nil
	}
	if exp, ok := b.seen[job.ID]; ok && b.now().Before(exp) {
		return false, nil
	}
	b.active[job.ID] = struct{}{}
	b.pending = append(b.pending, job)
	b.signal()
	return true, nil
}

func (b *MemoryBroker) Pop(ctx context.Context) (Job, error) {
	for {
		b.mu.Lock()
		if len(b.pending) > 0 {
			job := b.pending[0]
			b.pending = b.pending[1:]
			b.mu.Unlock()
			return job, nil
		}
		if b.closed {
			b.mu.Unlock()
			return Job{}, ErrClosed
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-wake:
		}
	}
}

func (b *MemoryBroker) Complete(ctx context.Context, job Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.active, job.ID)
	b.seen[job.ID] = b.now().Add(b.retention.CompletedAge)
	b.completed = keepLast(append(b.completed, job), b.retention.CompletedMax)
	b.prune()
	return nil
}

func (b *MemoryBroker) Fail(ctx context.Context, job Job, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cause != nil {
		job.LastError = cause.Error()
	}
	// A failed save can be retried by the client with the same timestamp.
	delete(b.active, job.ID)
	b.failed = keepLast(append(b.failed, job), b.retention.FailedMax)
	b.prune()
	return nil
}

// prune drops expired dedup keys. Callers hold mu.
func (b *MemoryBroker) prune() {
	now := b.now()
	for id, exp := range b.seen {
		if !now.Before(exp) {
			delete(b.seen, id)
		}
	}
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.signal()
	}
	return nil
}

// Len returns the number of jobs waiting to be popped.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *MemoryBroker) Completed() []Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Job(nil), b.completed...)
}

func (b *MemoryBroker) Failed() []Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Job(nil), b.failed...)
}

func keepLast(jobs []Job, max int64) []Job {
	if max <= 0 || int64(len(jobs)) <= max {
		return jobs
	}
	return append([]Job(nil), jobs[int64(len(jobs))-max:]...)
}

var _ Broker = (*MemoryBroker)(nil)
