package service

import (
	"compass/core"
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const MaxProjectNameLength = 255

type ProjectService struct {
	store core.ProjectStore
}

func NewProjectService(store core.ProjectStore) *ProjectService {
	return &ProjectService{store: store}
}

// Create stores a new project owned by userID. An empty visibility means
// private.
func (s *ProjectService) Create(ctx context.Context, userID, name string, visibility core.Visibility) (*core.Project, error) {
	if userID == "" {
		return nil, core.Unauthorized("authentication required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.ValidationFailed("name", "name is required")
	}
	if utf8.RuneCountInString(name) > MaxProjectNameLength {
		return nil, core.ValidationFailed("name", "name must be at most 255 characters")
	}
	if visibility == "" {
		visibility = core.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, core.ValidationFailed("visibility", "visibility must be public, private or unlisted")
	}

	project := &core.Project{
		ID:         ulid.Make().String(),
		UserID:     userID,
		Name:       name,
		Visibility: visibility,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		var appErr *core.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to create project")
		return nil, core.Unavailable("failed to create project", err)
	}
	return project, nil
}

func (s *ProjectService) List(ctx context.Context, userID string) ([]*core.Project, error) {
	if userID == "" {
		return nil, core.Unauthorized("authentication required")
	}
	projects, err := s.store.ListProjects(ctx, userID)
	if err != nil {
		return nil, core.Unavailable("failed to list projects", err)
	}
	return projects, nil
}

func (s *ProjectService) Get(ctx context.Context, userID, projectID string) (*core.Project, error) {
	return Authorize(ctx, s.store, userID, projectID)
}
