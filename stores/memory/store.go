package memory

import (
	"compass/core"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// memStore keeps projects and canvases in process memory.
type memStore struct {
	mu       sync.RWMutex
	projects map[string]core.Project
	canvases map[string]core.CanvasRecord
	now      func() time.Time
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		projects: make(map[string]core.Project),
		canvases: make(map[string]core.CanvasRecord),
		now:      time.Now,
	}
}

// WithClock replaces the time source used for timestamps.
func (s *memStore) WithClock(now func() time.Time) *memStore {
	s.now = now
	return s
}

func (s *memStore) CreateProject(ctx context.Context, project *core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if project.ID == "" || project.UserID == "" {
		return core.ValidationFailed("id", "project id and owner are required")
	}
	now := s.now()
	project.CreatedAt = now
	project.UpdatedAt = now
	s.projects[project.ID] = *project

	logrus.WithFields(logrus.Fields{"project_id": project.ID, "user_id": project.UserID}).Info("Project created")
	return nil
}

func (s *memStore) GetProject(ctx context.Context, id string) (*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, core.NotFound("project", id)
	}
	return &p, nil
}

func (s *memStore) ListProjects(ctx context.Context, userID string) ([]*core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]*core.Project, 0)
	for _, p := range s.projects {
		if p.UserID == userID {
			p := p
			projects = append(projects, &p)
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].CreatedAt.After(projects[j].CreatedAt) })

	logrus.WithField("user_id", userID).Debugf("Listed %d projects", len(projects))
	return projects, nil
}

func (s *memStore) GetCanvas(ctx context.Context, projectID string) (*core.CanvasRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.canvases[projectID]
	if !ok {
		return nil, core.NotFound("canvas", projectID)
	}
	return &rec, nil
}

func (s *memStore) UpsertCanvas(ctx context.Context, record *core.CanvasRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	log := logrus.WithFields(logrus.Fields{"project_id": record.ProjectID, "user_id": record.UserID})
	if existing, ok := s.canvases[record.ProjectID]; ok {
		record.CreatedAt = existing.CreatedAt
		log.Debug("Updating canvas")
	} else {
		record.CreatedAt = now
		log.Debug("Inserting canvas")
	}
	record.UpdatedAt = now
	s.canvases[record.ProjectID] = *record
	return nil
}

func (s *memStore) Close() error { return nil }
