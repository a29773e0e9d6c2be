package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// activeTTL bounds how long a queued or in-flight job holds its dedup
	// key if the worker dies before acknowledging it.
	activeTTL   = 24 * time.Hour
	popInterval = time.Second
)

// RedisBroker keeps jobs in redis lists so they survive restarts and can be
// consumed by a separate worker process. Popped jobs move to a processing
// list until acknowledged.
type RedisBroker struct {
	client    *redis.Client
	retention Retention
	closed    atomic.Bool
}

// NewRedisBroker uses client for all queue keys. The client is shared and
// stays open after Close; its owner closes it.
func NewRedisBroker(client *redis.Client, retention Retention) *RedisBroker {
	return &RedisBroker{client: client, retention: retention}
}

func waitKey() string       { return Name + ":wait" }
func processingKey() string { return Name + ":processing" }
func completedKey() string  { return Name + ":completed" }
func failedKey() string     { return Name + ":failed" }
func jobKey(id string) string {
	return Name + ":job:" + id
}

func (b *RedisBroker) Push(ctx context.Context, job Job) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	data, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	added, err := b.client.SetNX(ctx, jobKey(job.ID), job.EnqueuedAt.UnixMilli(), activeTTL).Result()
	if err != nil || !added {
		return false, err
	}
	if err := b.client.LPush(ctx, waitKey(), data).Err(); err != nil {
		b.client.Del(context.WithoutCancel(ctx), jobKey(job.ID))
		return false, err
	}
	return true, nil
}

func (b *RedisBroker) Pop(ctx context.Context) (Job, error) {
	for {
		if b.closed.Load() {
			return Job{}, ErrClosed
		}
		raw, err := b.client.BLMove(ctx, waitKey(), processingKey(), "RIGHT", "LEFT", popInterval).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			if b.closed.Load() {
				return Job{}, ErrClosed
			}
			return Job{}, err
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			logrus.WithError(err).Error("Dropping undecodable queue entry")
			b.client.LRem(ctx, processingKey(), 1, raw)
			continue
		}
		job.raw = raw
		return job, nil
	}
}

func (b *RedisBroker) Complete(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey(), 1, job.raw)
		pipe.Expire(ctx, jobKey(job.ID), b.retention.CompletedAge)
		pipe.LPush(ctx, completedKey(), data)
		if b.retention.CompletedMax > 0 {
			pipe.LTrim(ctx, completedKey(), 0, b.retention.CompletedMax-1)
		}
		pipe.Expire(ctx, completedKey(), b.retention.CompletedAge)
		return nil
	})
	return err
}

func (b *RedisBroker) Fail(ctx context.Context, job Job, cause error) error {
	if cause != nil {
		job.LastError = cause.Error()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey(), 1, job.raw)
		pipe.Del(ctx, jobKey(job.ID))
		pipe.LPush(ctx, failedKey(), data)
		if b.retention.FailedMax > 0 {
			pipe.LTrim(ctx, failedKey(), 0, b.retention.FailedMax-1)
		}
		return nil
	})
	return err
}

// Recover moves jobs abandoned in the processing list back onto the wait
// list. Run it only while no other worker is consuming the queue.
func (b *RedisBroker) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		_, err := b.client.LMove(ctx, processingKey(), waitKey(), "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Failed returns up to limit of the most recently failed jobs.
func (b *RedisBroker) Failed(ctx context.Context, limit int64) ([]Job, error) {
	entries, err := b.client.LRange(ctx, failedKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(entries))
	for _, e := range entries {
		var job Job
		if err := json.Unmarshal([]byte(e), &job); err == nil {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// Close stops accepting and handing out jobs. Queued jobs stay in redis
// for the next worker; in-flight jobs can still be acknowledged.
func (b *RedisBroker) Close() error {
	b.closed.Store(true)
	return nil
}

var _ Broker = (*RedisBroker)(nil)
