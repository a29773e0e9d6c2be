package filesystem

import (
	"context"
	"testing"

	"compass/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanvasUpsert(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.GetCanvas(ctx, "p1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	first := &core.CanvasRecord{ProjectID: "p1", UserID: "u1", CanvasState: `{"elements":[]}`, Timestamp: 1}
	require.NoError(t, s.UpsertCanvas(ctx, first))
	require.NoError(t, s.UpsertCanvas(ctx, &core.CanvasRecord{ProjectID: "p1", UserID: "u1", CanvasState: `{"elements":[]}`, Timestamp: 2}))

	rec, err := s.GetCanvas(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Timestamp)
	assert.True(t, rec.CreatedAt.Equal(first.CreatedAt))
	assert.False(t, rec.UpdatedAt.Before(rec.CreatedAt))
}

func TestRejectsTraversal(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.GetProject(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, core.ErrNotFound)
	err = s.UpsertCanvas(context.Background(), &core.CanvasRecord{ProjectID: "../x"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestProjectsByOwner(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &core.Project{ID: "a", UserID: "u1", Name: "A", Visibility: core.VisibilityPublic}))
	require.NoError(t, s.CreateProject(ctx, &core.Project{ID: "b", UserID: "u2", Name: "B", Visibility: core.VisibilityPublic}))

	list, err := s.ListProjects(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].Name)
}
