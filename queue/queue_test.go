package queue

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"compass/core"
	"compass/stores/memory"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{Concurrency: 2, RatePerSecond: 1000, Attempts: 3, Backoff: time.Millisecond}
}

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "canvas-p1-1700000000000", DedupKey("p1", 1700000000000))

	a, b := DedupKey("p1", 0), DedupKey("p1", 0)
	assert.True(t, strings.HasPrefix(a, "canvas-p1-"))
	assert.NotEqual(t, a, b)
}

func TestMemoryBrokerDeduplicates(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(DefaultRetention())

	added, err := b.Push(ctx, NewJob("p1", "u1", "{}", 42))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = b.Push(ctx, NewJob("p1", "u1", "{}", 42))
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, b.Len())

	job, err := b.Pop(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Complete(ctx, job))

	// still inside the completed retention window
	added, _ = b.Push(ctx, NewJob("p1", "u1", "{}", 42))
	assert.False(t, added)
}

func TestMemoryBrokerRetentionExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewMemoryBroker(DefaultRetention())
	b.now = func() time.Time { return now }

	_, _ = b.Push(ctx, NewJob("p1", "u1", "{}", 42))
	job, _ := b.Pop(ctx)
	require.NoError(t, b.Complete(ctx, job))

	now = now.Add(time.Hour)
	added, err := b.Push(ctx, NewJob("p1", "u1", "{}", 42))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestMemoryBrokerFailedReleasesKey(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(DefaultRetention())

	_, _ = b.Push(ctx, NewJob("p1", "u1", "{}", 7))
	job, _ := b.Pop(ctx)
	require.NoError(t, b.Fail(ctx, job, errors.New("boom")))

	failed := b.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].LastError)

	added, _ := b.Push(ctx, NewJob("p1", "u1", "{}", 7))
	assert.True(t, added)
}

func TestMemoryBrokerKeepsLastCompleted(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(Retention{CompletedAge: time.Hour, CompletedMax: 2, FailedMax: 2})
	for ts := int64(1); ts <= 3; ts++ {
		_, _ = b.Push(ctx, NewJob("p1", "u1", "{}", ts))
		job, _ := b.Pop(ctx)
		require.NoError(t, b.Complete(ctx, job))
	}
	completed := b.Completed()
	require.Len(t, completed, 2)
	assert.Equal(t, int64(2), completed[0].Timestamp)
	assert.Equal(t, int64(3), completed[1].Timestamp)
}

func TestMemoryBrokerCloseDrains(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(DefaultRetention())
	_, _ = b.Push(ctx, NewJob("p1", "u1", "{}", 1))
	require.NoError(t, b.Close())

	_, err := b.Push(ctx, NewJob("p1", "u1", "{}", 2))
	assert.ErrorIs(t, err, ErrClosed)

	job, err := b.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.Timestamp)

	_, err = b.Pop(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBrokerPopHonorsContext(t *testing.T) {
	b := NewMemoryBroker(DefaultRetention())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerRetriesRetryableErrors(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(DefaultRetention())

	var calls atomic.Int32
	handle := func(ctx context.Context, job Job) error {
		if calls.Add(1) < 3 {
			return Retryable(errors.New("database is locked"))
		}
		return nil
	}
	w := NewWorker(b, handle, fastOptions(), nil)
	w.Start()

	_, err := b.Push(ctx, NewJob("p1", "u1", "{}", 1))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(b.Completed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, b.Completed()[0].Attempts)
	require.NoError(t, w.Shutdown(ctx))
}

func TestWorkerGivesUpAfterAttempts(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(DefaultRetention())

	var calls atomic.Int32
	handle := func(ctx context.Context, job Job) error {
		calls.Add(1)
		return Retryable(errors.New("connection refused"))
	}
	w := NewWorker(b, handle, fastOptions(), nil)
	w.Start()
	_, _ = b.Push(ctx, NewJob("p1", "u1", "{}", 1))

	require.Eventually(t, func() bool { return len(b.Failed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "connection refused", b.Failed()[0].LastError)
	require.NoError(t, w.Shutdown(ctx))
}

func TestWorkerDoesNotRetryPermanentErrors(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(DefaultRetention())

	var calls atomic.Int32
	handle := func(ctx context.Context, job Job) error {
		calls.Add(1)
		return core.ValidationFailed("canvasState", "bad")
	}
	w := NewWorker(b, handle, fastOptions(), nil)
	w.Start()
	_, _ = b.Push(ctx, NewJob("p1", "u1", "{}", 1))

	require.Eventually(t, func() bool { return len(b.Failed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	require.NoError(t, w.Shutdown(ctx))
}

func TestWorkerBoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(DefaultRetention())

	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	handle := func(ctx context.Context, job Job) error {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}
	w := NewWorker(b, handle, fastOptions(), nil)
	w.Start()
	for ts := int64(1); ts <= 8; ts++ {
		_, _ = b.Push(ctx, NewJob("p1", "u1", "{}", ts))
	}

	require.Eventually(t, func() bool { return len(b.Completed()) == 8 }, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.LessOrEqual(t, peak, 2)
	mu.Unlock()
	require.NoError(t, w.Shutdown(ctx))
}

func TestWorkerShutdownFinishesInFlight(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(DefaultRetention())

	started := make(chan struct{})
	release := make(chan struct{})
	handle := func(ctx context.Context, job Job) error {
		close(started)
		<-release
		return nil
	}
	w := NewWorker(b, handle, Options{Concurrency: 1}, nil)
	w.Start()
	_, _ = b.Push(ctx, NewJob("p1", "u1", "{}", 1))
	<-started

	done := make(chan error, 1)
	go func() { done <- w.Shutdown(ctx) }()

	select {
	case <-done:
		t.Fatal("shutdown returned before the in-flight job finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)
	assert.Len(t, b.Completed(), 1)
}

func TestWorkerShutdownTimeoutCancelsHandlers(t *testing.T) {
	b := NewMemoryBroker(DefaultRetention())

	started := make(chan struct{})
	handle := func(ctx context.Context, job Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	w := NewWorker(b, handle, Options{Concurrency: 1}, nil)
	w.Start()
	_, _ = b.Push(context.Background(), NewJob("p1", "u1", "{}", 1))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Shutdown(ctx), context.DeadlineExceeded)
	assert.Len(t, b.Failed(), 1)
}

func TestQueuedBackend(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroker(DefaultRetention())
	backend := NewQueuedBackend(b)

	require.NoError(t, backend.Persist(ctx, NewJob("p1", "u1", "{}", 5)))
	require.NoError(t, backend.Persist(ctx, NewJob("p1", "u1", "{}", 5)))
	assert.Equal(t, 1, b.Len())

	require.NoError(t, backend.Close(ctx))
	assert.ErrorIs(t, backend.Persist(ctx, NewJob("p1", "u1", "{}", 6)), ErrClosed)
}

func TestDirectBackendUpserts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	backend := NewDirectBackend(NewUpsertHandler(store))

	require.NoError(t, backend.Persist(ctx, NewJob("p1", "u1", `{"elements":[]}`, 5)))
	require.NoError(t, backend.Persist(ctx, NewJob("p1", "u1", `{"elements":[]}`, 6)))

	rec, err := store.GetCanvas(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), rec.Timestamp)
}

func TestWorkerUpsertsThroughStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	b := NewMemoryBroker(DefaultRetention())
	w := NewWorker(b, NewUpsertHandler(store), fastOptions(), nil)
	w.Start()

	backend := NewQueuedBackend(b)
	require.NoError(t, backend.Persist(ctx, NewJob("p1", "u1", `{"elements":[]}`, 1)))
	require.NoError(t, backend.Persist(ctx, NewJob("p1", "u1", `{"elements":[]}`, 1)))

	require.NoError(t, backend.Close(ctx))
	require.NoError(t, w.Shutdown(ctx))

	rec, err := store.GetCanvas(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Timestamp)
	assert.Len(t, b.Completed(), 1)
}

func TestRedisBroker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	b := NewRedisBroker(client, DefaultRetention())
	job := NewJob("redis-test", "u1", "{}", time.Now().UnixNano())

	added, err := b.Push(ctx, job)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = b.Push(ctx, job)
	require.NoError(t, err)
	assert.False(t, added)

	popped, err := b.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, popped.ID)
	require.NoError(t, b.Complete(ctx, popped))

	n, err := client.LLen(ctx, processingKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, b.Close())
	_, err = b.Pop(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
