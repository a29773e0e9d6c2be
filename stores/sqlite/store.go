package sqlite

import (
	"compass/core"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	visibility TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_user_id ON projects(user_id);
CREATE TABLE IF NOT EXISTS canvases (
	project_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	canvas_state TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens the database and creates the tables if needed.
func NewStore(dataSourceName string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &sqliteStore{db: db, now: time.Now}, nil
}

func (s *sqliteStore) CreateProject(ctx context.Context, project *core.Project) error {
	now := s.now()
	project.CreatedAt = now
	project.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO projects (id, user_id, name, visibility, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		project.ID, project.UserID, project.Name, string(project.Visibility), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		logrus.WithError(err).WithField("project_id", project.ID).Error("Failed to create project")
		return err
	}
	logrus.WithFields(logrus.Fields{"project_id": project.ID, "user_id": project.UserID}).Info("Project created")
	return nil
}

func (s *sqliteStore) GetProject(ctx context.Context, id string) (*core.Project, error) {
	var (
		p                    core.Project
		visibility           string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, visibility, created_at, updated_at FROM projects WHERE id = ?", id).
		Scan(&p.ID, &p.UserID, &p.Name, &visibility, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFound("project", id)
	}
	if err != nil {
		return nil, err
	}
	p.Visibility = core.Visibility(visibility)
	p.CreatedAt = time.UnixMilli(createdAt)
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return &p, nil
}

func (s *sqliteStore) ListProjects(ctx context.Context, userID string) ([]*core.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name, visibility, created_at, updated_at FROM projects WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]*core.Project, 0)
	for rows.Next() {
		var (
			p                    core.Project
			visibility           string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &visibility, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.Visibility = core.Visibility(visibility)
		p.CreatedAt = time.UnixMilli(createdAt)
		p.UpdatedAt = time.UnixMilli(updatedAt)
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (s *sqliteStore) GetCanvas(ctx context.Context, projectID string) (*core.CanvasRecord, error) {
	var (
		rec                  core.CanvasRecord
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT project_id, user_id, canvas_state, timestamp, created_at, updated_at FROM canvases WHERE project_id = ?", projectID).
		Scan(&rec.ProjectID, &rec.UserID, &rec.CanvasState, &rec.Timestamp, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFound("canvas", projectID)
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}

func (s *sqliteStore) UpsertCanvas(ctx context.Context, record *core.CanvasRecord) error {
	now := s.now()
	log := logrus.WithFields(logrus.Fields{"project_id": record.ProjectID, "user_id": record.UserID})

	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO canvases (project_id, user_id, canvas_state, timestamp, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			user_id = excluded.user_id,
			canvas_state = excluded.canvas_state,
			timestamp = excluded.timestamp,
			updated_at = excluded.updated_at
		RETURNING created_at`,
		record.ProjectID, record.UserID, record.CanvasState, record.Timestamp, now.UnixMilli(), now.UnixMilli()).
		Scan(&createdAt)
	if err != nil {
		log.WithError(err).Error("Failed to upsert canvas")
		return err
	}
	record.CreatedAt = time.UnixMilli(createdAt)
	record.UpdatedAt = time.UnixMilli(now.UnixMilli())
	log.Debug("Canvas upserted")
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
