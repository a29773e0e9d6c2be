package service

import (
	"compass/cache"
	"compass/core"
	"compass/queue"
	"compass/scene"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Source string

const (
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
	SourceNone     Source = "none"
)

type LoadResult struct {
	// CanvasState is nil when the project has never been saved.
	CanvasState *string
	Source      Source
}

// SaveNotifier is told about every accepted save.
type SaveNotifier interface {
	CanvasSaved(projectID string, timestamp int64)
}

type CanvasService struct {
	projects core.ProjectStore
	canvases core.CanvasStore
	cache    cache.Cache
	backend  queue.Backend
	notifier SaveNotifier
	ttl      time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
}

type Option func(*CanvasService)

func WithTTL(ttl time.Duration) Option { return func(s *CanvasService) { s.ttl = ttl } }

func WithNotifier(n SaveNotifier) Option { return func(s *CanvasService) { s.notifier = n } }

func WithClock(now func() time.Time) Option { return func(s *CanvasService) { s.now = now } }

func WithLogger(log logrus.FieldLogger) Option { return func(s *CanvasService) { s.log = log } }

func NewCanvasService(projects core.ProjectStore, canvases core.CanvasStore, c cache.Cache, backend queue.Backend, opts ...Option) *CanvasService {
	s := &CanvasService{
		projects: projects,
		canvases: canvases,
		cache:    c,
		backend:  backend,
		ttl:      cache.DefaultTTL,
		now:      time.Now,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.NewNullCache()
	}
	return s
}

// Save validates state, writes it to the cache and hands the durable write
// to the backend. A zero timestamp is replaced by the server time. The
// returned timestamp is the one persisted.
func (s *CanvasService) Save(ctx context.Context, userID, projectID, state string, timestamp int64) (int64, error) {
	log := s.log.WithFields(logrus.Fields{"project_id": projectID, "user_id": userID, "op": "save_canvas"})

	if _, err := Authorize(ctx, s.projects, userID, projectID); err != nil {
		return 0, err
	}
	if strings.TrimSpace(state) == "" {
		return 0, core.ValidationFailed("canvasState", "canvasState is required")
	}
	if err := scene.Validate([]byte(state)); err != nil {
		return 0, core.ValidationFailed("canvasState", "canvasState is not valid canvas data")
	}
	if timestamp < 0 {
		return 0, core.ValidationFailed("timestamp", "timestamp must not be negative")
	}
	if timestamp == 0 {
		timestamp = s.now().UnixMilli()
	}

	key := cache.CanvasKey(projectID)
	if err := s.cache.Set(ctx, key, []byte(state), s.ttl); err != nil {
		log.WithError(err).Warn("Failed to cache canvas")
		// A stale entry would shadow the store on the next read.
		if derr := s.cache.Delete(ctx, key); derr != nil {
			log.WithError(derr).Error("Failed to evict stale canvas")
			return 0, core.Unavailable("canvas cache unavailable", err)
		}
	}

	job := queue.NewJob(projectID, userID, state, timestamp)
	if err := s.backend.Persist(ctx, job); err != nil {
		log.WithError(err).Error("Failed to persist canvas")
		return 0, core.Unavailable("failed to save canvas", err)
	}

	if s.notifier != nil {
		s.notifier.CanvasSaved(projectID, timestamp)
	}
	log.WithField("timestamp", timestamp).Debug("Canvas saved")
	return timestamp, nil
}

// Load returns the latest canvas, preferring the cache. Cache errors are
// treated as misses.
func (s *CanvasService) Load(ctx context.Context, userID, projectID string) (LoadResult, error) {
	log := s.log.WithFields(logrus.Fields{"project_id": projectID, "user_id": userID, "op": "load_canvas"})

	if _, err := Authorize(ctx, s.projects, userID, projectID); err != nil {
		return LoadResult{}, err
	}

	key := cache.CanvasKey(projectID)
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Canvas cache read failed")
	}
	if err == nil && ok {
		state := string(data)
		return LoadResult{CanvasState: &state, Source: SourceCache}, nil
	}

	rec, err := s.canvases.GetCanvas(ctx, projectID)
	if errors.Is(err, core.ErrNotFound) {
		return LoadResult{Source: SourceNone}, nil
	}
	if err != nil {
		log.WithError(err).Error("Failed to load canvas")
		return LoadResult{}, core.Unavailable("failed to load canvas", err)
	}

	if err := s.cache.Set(ctx, key, []byte(rec.CanvasState), s.ttl); err != nil {
		log.WithError(err).Warn("Failed to repopulate canvas cache")
	}
	state := rec.CanvasState
	return LoadResult{CanvasState: &state, Source: SourceDatabase}, nil
}
