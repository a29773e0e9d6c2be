package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"compass/cache"
	"compass/core"
	"compass/queue"
	"compass/stores/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validState = `{"elements":[{"id":"r1","type":"rect","left":10,"top":10,"width":40,"height":40}]}`

type recordingBackend struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (b *recordingBackend) Persist(ctx context.Context, job queue.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.jobs = append(b.jobs, job)
	return nil
}

func (b *recordingBackend) Close(ctx context.Context) error { return nil }

type brokenCache struct {
	cache.NullCache
	deleteErr error
}

func (c *brokenCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}

func (c *brokenCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return errors.New("cache down")
}

func (c *brokenCache) Delete(ctx context.Context, key string) error { return c.deleteErr }

type savedEvent struct {
	projectID string
	timestamp int64
}

type recordingNotifier struct{ events []savedEvent }

func (n *recordingNotifier) CanvasSaved(projectID string, timestamp int64) {
	n.events = append(n.events, savedEvent{projectID, timestamp})
}

func setup(t *testing.T) (*CanvasService, *cache.MemoryCache, *recordingBackend, core.ProjectStore) {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.CreateProject(context.Background(), &core.Project{
		ID: "p1", UserID: "owner", Name: "Board", Visibility: core.VisibilityPrivate,
	}))
	c := cache.NewMemoryCache()
	backend := &recordingBackend{}
	return NewCanvasService(store, store, c, backend), c, backend, store
}

func TestAuthorizeOrdering(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Load(ctx, "stranger", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = svc.Load(ctx, "stranger", "p1")
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = svc.Load(ctx, "", "p1")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestSaveThenLoadServesCache(t *testing.T) {
	svc, _, backend, _ := setup(t)
	ctx := context.Background()

	ts, err := svc.Save(ctx, "owner", "p1", validState, 1700000000000)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), ts)
	require.Len(t, backend.jobs, 1)
	assert.Equal(t, "canvas-p1-1700000000000", backend.jobs[0].ID)

	res, err := svc.Load(ctx, "owner", "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	require.NotNil(t, res.CanvasState)
	assert.Equal(t, validState, *res.CanvasState)
}

func TestSaveRejectsMalformedState(t *testing.T) {
	svc, c, backend, _ := setup(t)
	ctx := context.Background()

	for _, state := range []string{"", "   ", "not json", `{"elements":{}}`, `{"elements":[{"type":"rect"}]}`} {
		_, err := svc.Save(ctx, "owner", "p1", state, 1)
		assert.ErrorIs(t, err, core.ErrValidation, state)
	}
	assert.Empty(t, backend.jobs)
	_, ok, _ := c.Get(ctx, cache.CanvasKey("p1"))
	assert.False(t, ok)
}

func TestSaveChecksOwnershipBeforeValidation(t *testing.T) {
	svc, _, _, _ := setup(t)
	_, err := svc.Save(context.Background(), "stranger", "p1", "not json", 1)
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestSaveDefaultsTimestamp(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.CreateProject(context.Background(), &core.Project{ID: "p1", UserID: "owner"}))
	backend := &recordingBackend{}
	now := time.UnixMilli(1700000000123)
	svc := NewCanvasService(store, store, cache.NewMemoryCache(), backend, WithClock(func() time.Time { return now }))

	ts, err := svc.Save(context.Background(), "owner", "p1", validState, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ts)
	assert.Equal(t, int64(1700000000123), backend.jobs[0].Timestamp)
}

func TestLoadFallsBackToStoreAndRepopulates(t *testing.T) {
	svc, c, _, store := setup(t)
	ctx := context.Background()
	canvases := store.(core.CanvasStore)
	require.NoError(t, canvases.UpsertCanvas(ctx, &core.CanvasRecord{ProjectID: "p1", UserID: "owner", CanvasState: validState, Timestamp: 1}))

	res, err := svc.Load(ctx, "owner", "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, res.Source)
	assert.Equal(t, validState, *res.CanvasState)

	data, ok, _ := c.Get(ctx, cache.CanvasKey("p1"))
	assert.True(t, ok)
	assert.Equal(t, validState, string(data))

	res, err = svc.Load(ctx, "owner", "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
}

func TestLoadNewProjectReturnsNone(t *testing.T) {
	svc, _, _, _ := setup(t)
	res, err := svc.Load(context.Background(), "owner", "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceNone, res.Source)
	assert.Nil(t, res.CanvasState)
}

func TestCacheFailureFallsThrough(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateProject(ctx, &core.Project{ID: "p1", UserID: "owner"}))
	require.NoError(t, store.UpsertCanvas(ctx, &core.CanvasRecord{ProjectID: "p1", UserID: "owner", CanvasState: validState}))
	backend := &recordingBackend{}
	svc := NewCanvasService(store, store, &brokenCache{}, backend)

	_, err := svc.Save(ctx, "owner", "p1", validState, 5)
	require.NoError(t, err)
	assert.Len(t, backend.jobs, 1)

	res, err := svc.Load(ctx, "owner", "p1")
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, res.Source)
}

func TestCacheFailureWithoutEvictionIsUnavailable(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateProject(ctx, &core.Project{ID: "p1", UserID: "owner"}))
	backend := &recordingBackend{}
	svc := NewCanvasService(store, store, &brokenCache{deleteErr: errors.New("still down")}, backend)

	_, err := svc.Save(ctx, "owner", "p1", validState, 5)
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.Empty(t, backend.jobs)
}

func TestSaveBackendFailure(t *testing.T) {
	svc, _, backend, _ := setup(t)
	backend.err = queue.ErrClosed
	_, err := svc.Save(context.Background(), "owner", "p1", validState, 5)
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestSaveNotifies(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateProject(ctx, &core.Project{ID: "p1", UserID: "owner"}))
	n := &recordingNotifier{}
	svc := NewCanvasService(store, store, nil, &recordingBackend{}, WithNotifier(n))

	_, err := svc.Save(ctx, "owner", "p1", validState, 9)
	require.NoError(t, err)
	assert.Equal(t, []savedEvent{{"p1", 9}}, n.events)
}

func TestRepeatedSaveKeepsOneRecord(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateProject(ctx, &core.Project{ID: "p1", UserID: "owner"}))
	svc := NewCanvasService(store, store, cache.NewMemoryCache(), queue.NewDirectBackend(queue.NewUpsertHandler(store)))

	_, err := svc.Save(ctx, "owner", "p1", validState, 1)
	require.NoError(t, err)
	_, err = svc.Save(ctx, "owner", "p1", validState, 2)
	require.NoError(t, err)

	rec, err := store.GetCanvas(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Timestamp)
	assert.False(t, rec.UpdatedAt.Before(rec.CreatedAt))
}

func TestProjectService(t *testing.T) {
	ctx := context.Background()
	svc := NewProjectService(memory.NewStore())

	p, err := svc.Create(ctx, "owner", "  Moodboard  ", "")
	require.NoError(t, err)
	assert.Equal(t, "Moodboard", p.Name)
	assert.Equal(t, core.VisibilityPrivate, p.Visibility)
	assert.Len(t, p.ID, 26)

	_, err = svc.Create(ctx, "owner", "", core.VisibilityPublic)
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = svc.Create(ctx, "owner", strings.Repeat("a", 256), core.VisibilityPublic)
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = svc.Create(ctx, "owner", "x", "secret")
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = svc.Create(ctx, "", "x", core.VisibilityPublic)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	list, err := svc.List(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got, err := svc.Get(ctx, "owner", p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.Get(ctx, "someone", p.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)
}
