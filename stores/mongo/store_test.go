package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"compass/core"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	db := "compass_test_" + ulid.Make().String()
	s, err := NewStore(ctx, uri, db)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.client.Database(db).Drop(context.Background())
		s.Close()
	})

	require.NoError(t, s.CreateProject(ctx, &core.Project{ID: "p1", UserID: "u1", Name: "One", Visibility: core.VisibilityPublic}))
	p, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)

	_, err = s.GetCanvas(ctx, "p1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	first := &core.CanvasRecord{ProjectID: "p1", UserID: "u1", CanvasState: "a", Timestamp: 1}
	require.NoError(t, s.UpsertCanvas(ctx, first))
	second := &core.CanvasRecord{ProjectID: "p1", UserID: "u1", CanvasState: "b", Timestamp: 2}
	require.NoError(t, s.UpsertCanvas(ctx, second))
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))

	n, err := s.canvases.CountDocuments(ctx, map[string]any{"_id": "p1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
