package filesystem

import (
	"compass/core"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// fsStore keeps one JSON file per project and per canvas.
type fsStore struct {
	basePath string
	// mu serializes read-modify-write of canvas files.
	mu sync.Mutex
}

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) (*fsStore, error) {
	for _, dir := range []string{"projects", "canvases"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", dir, err)
		}
	}
	return &fsStore{basePath: basePath}, nil
}

// path resolves an id inside dir and rejects anything that escapes it.
func (s *fsStore) path(dir, id string) (string, error) {
	root, err := filepath.Abs(filepath.Join(s.basePath, dir))
	if err != nil {
		return "", err
	}
	p, err := filepath.Abs(filepath.Join(root, id+".json"))
	if err != nil {
		return "", err
	}
	if id == "" || filepath.Dir(p) != root || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid id %q", id)
	}
	return p, nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fsStore) CreateProject(ctx context.Context, project *core.Project) error {
	p, err := s.path("projects", project.ID)
	if err != nil {
		return core.ValidationFailed("id", err.Error())
	}
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	log := logrus.WithFields(logrus.Fields{"project_id": project.ID, "path": p})
	if err := writeJSON(p, project); err != nil {
		log.WithError(err).Error("Failed to write project file")
		return err
	}
	log.Info("Project created")
	return nil
}

func (s *fsStore) GetProject(ctx context.Context, id string) (*core.Project, error) {
	p, err := s.path("projects", id)
	if err != nil {
		return nil, core.NotFound("project", id)
	}
	var project core.Project
	ok, err := readJSON(p, &project)
	if err != nil {
		logrus.WithError(err).WithField("path", p).Error("Failed to read project file")
		return nil, err
	}
	if !ok {
		return nil, core.NotFound("project", id)
	}
	return &project, nil
}

func (s *fsStore) ListProjects(ctx context.Context, userID string) ([]*core.Project, error) {
	dir := filepath.Join(s.basePath, "projects")
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "path": dir})

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	projects := make([]*core.Project, 0)
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		var project core.Project
		if _, err := readJSON(filepath.Join(dir, file.Name()), &project); err != nil {
			log.WithError(err).Warnf("Failed to read project file %s, skipping", file.Name())
			continue
		}
		if project.UserID == userID {
			projects = append(projects, &project)
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].CreatedAt.After(projects[j].CreatedAt) })
	return projects, nil
}

func (s *fsStore) GetCanvas(ctx context.Context, projectID string) (*core.CanvasRecord, error) {
	p, err := s.path("canvases", projectID)
	if err != nil {
		return nil, core.NotFound("canvas", projectID)
	}
	var rec core.CanvasRecord
	ok, err := readJSON(p, &rec)
	if err != nil {
		logrus.WithError(err).WithField("path", p).Error("Failed to read canvas file")
		return nil, err
	}
	if !ok {
		return nil, core.NotFound("canvas", projectID)
	}
	return &rec, nil
}

func (s *fsStore) UpsertCanvas(ctx context.Context, record *core.CanvasRecord) error {
	p, err := s.path("canvases", record.ProjectID)
	if err != nil {
		return core.ValidationFailed("projectId", err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var existing core.CanvasRecord
	found, err := readJSON(p, &existing)
	if err != nil {
		return err
	}
	if found {
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if err := writeJSON(p, record); err != nil {
		logrus.WithError(err).WithField("path", p).Error("Failed to write canvas file")
		return err
	}
	return nil
}

func (s *fsStore) Close() error { return nil }
