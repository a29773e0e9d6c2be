package localcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	_, ok, err := fs.Get("canvas-state-p1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fs.Set("canvas-state-p1", []byte(`{"zoom":1}`)))
	data, ok, err := fs.Get("canvas-state-p1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"zoom":1}`, string(data))

	require.NoError(t, fs.Delete("canvas-state-p1"))
	require.NoError(t, fs.Delete("canvas-state-p1"))
	_, ok, _ = fs.Get("canvas-state-p1")
	assert.False(t, ok)
}

func TestFileStorageRejectsTraversal(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "..", "../escape", "a/b"} {
		assert.Error(t, fs.Set(key, []byte("x")), key)
	}
}
