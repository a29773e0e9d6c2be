// Package service holds the server-side rules for projects and canvases:
// ownership checks, payload validation and the cache/store write path.
package service

import (
	"compass/core"
	"context"
)

// Authorize returns the project if userID owns it. A missing project is
// reported before an ownership mismatch.
func Authorize(ctx context.Context, projects core.ProjectStore, userID, projectID string) (*core.Project, error) {
	if userID == "" {
		return nil, core.Unauthorized("authentication required")
	}
	project, err := projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, core.Forbidden("you do not have access to this project")
	}
	return project, nil
}
