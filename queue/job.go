// Package queue moves canvas saves from the request path to the durable
// store. Jobs are deduplicated on enqueue, retried with backoff and
// processed by a bounded, rate limited worker pool.
package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

const Name = "canvas-queue"

var (
	ErrClosed = errors.New("queue closed")
)

type Job struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	UserID      string    `json:"userId"`
	CanvasState string    `json:"canvasState"`
	Timestamp   int64     `json:"timestamp"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
	Attempts    int       `json:"attempts,omitempty"`
	LastError   string    `json:"lastError,omitempty"`

	// raw is the payload as popped from a durable broker; used to
	// acknowledge the exact entry.
	raw string
}

// DedupKey identifies one logical save. Saves without a client timestamp
// get a random suffix and are never deduplicated.
func DedupKey(projectID string, timestamp int64) string {
	if timestamp == 0 {
		return fmt.Sprintf("canvas-%s-%s", projectID, ulid.Make().String())
	}
	return fmt.Sprintf("canvas-%s-%d", projectID, timestamp)
}

func NewJob(projectID, userID, canvasState string, timestamp int64) Job {
	return Job{
		ID:          DedupKey(projectID, timestamp),
		ProjectID:   projectID,
		UserID:      userID,
		CanvasState: canvasState,
		Timestamp:   timestamp,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// RetryableError marks a failure worth another attempt.
type RetryableError struct{ Err error }

func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
