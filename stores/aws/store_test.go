package aws

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"compass/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := newStore(fake, "bucket")
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &core.Project{ID: "p1", UserID: "u1", Name: "One", Visibility: core.VisibilityPrivate}))
	require.NoError(t, s.CreateProject(ctx, &core.Project{ID: "p2", UserID: "u2", Name: "Two", Visibility: core.VisibilityPrivate}))

	list, err := s.ListProjects(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID)

	_, err = s.GetCanvas(ctx, "p1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.UpsertCanvas(ctx, &core.CanvasRecord{ProjectID: "p1", UserID: "u1", CanvasState: "a", Timestamp: 1}))
	require.NoError(t, s.UpsertCanvas(ctx, &core.CanvasRecord{ProjectID: "p1", UserID: "u1", CanvasState: "b", Timestamp: 2}))

	rec, err := s.GetCanvas(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "b", rec.CanvasState)
	assert.Contains(t, fake.objects, "canvases/p1.json")
}

func TestObjectKeyRejectsPaths(t *testing.T) {
	_, err := objectKey("projects", "../secret")
	assert.Error(t, err)
	key, err := objectKey("projects", "01HX")
	require.NoError(t, err)
	assert.Equal(t, "projects/01HX.json", key)
}
