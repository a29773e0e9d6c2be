package core

import (
	"context"
	"time"
)

type (
	// CanvasRecord is the durable copy of a project's latest canvas. There
	// is at most one per project.
	CanvasRecord struct {
		ProjectID   string `json:"projectId" bson:"_id"`
		UserID      string `json:"userId" bson:"user_id"`
		CanvasState string `json:"canvasState" bson:"canvas_state"`
		// Timestamp is the client save time in unix milliseconds. It is kept
		// for observability and does not order writes.
		Timestamp int64     `json:"timestamp" bson:"timestamp"`
		CreatedAt time.Time `json:"createdAt" bson:"created_at"`
		UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
	}

	// CanvasStore persists canvas records keyed by project id.
	CanvasStore interface {
		// GetCanvas returns ErrNotFound when the project has no canvas yet.
		GetCanvas(ctx context.Context, projectID string) (*CanvasRecord, error)

		// UpsertCanvas inserts the record or replaces the state, user and
		// timestamp of the existing one. CreatedAt is preserved and UpdatedAt
		// set to the write time.
		UpsertCanvas(ctx context.Context, record *CanvasRecord) error
	}
)
