package core

import (
	"context"
	"time"
)

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityUnlisted:
		return true
	}
	return false
}

type (
	// Project is the unit of ownership; every canvas belongs to one.
	Project struct {
		ID         string     `json:"id" bson:"_id"`
		UserID     string     `json:"userId" bson:"user_id"`
		Name       string     `json:"name" bson:"name"`
		Visibility Visibility `json:"visibility" bson:"visibility"`
		CreatedAt  time.Time  `json:"createdAt" bson:"created_at"`
		UpdatedAt  time.Time  `json:"updatedAt" bson:"updated_at"`
	}

	// ProjectStore persists projects.
	ProjectStore interface {
		// CreateProject stores a new project. ID and UserID must be set.
		CreateProject(ctx context.Context, project *Project) error

		// GetProject returns ErrNotFound when no project has the id.
		GetProject(ctx context.Context, id string) (*Project, error)

		// ListProjects returns the user's projects, newest first.
		ListProjects(ctx context.Context, userID string) ([]*Project, error)
	}
)
