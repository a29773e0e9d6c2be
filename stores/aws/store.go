package aws

import (
	"bytes"
	"compass/core"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// s3API is the subset of the S3 client the store uses.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3Store keeps projects and canvases as JSON objects in one bucket.
type s3Store struct {
	s3Client s3API
	bucket   string
	// mu serializes canvas read-modify-write within this process.
	mu sync.Mutex
}

// NewStore creates a new S3-based store using the default AWS config chain.
func NewStore(ctx context.Context, bucketName string) (*s3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newStore(s3.NewFromConfig(cfg), bucketName), nil
}

func newStore(client s3API, bucket string) *s3Store {
	return &s3Store{s3Client: client, bucket: bucket}
}

func objectKey(dir, id string) (string, error) {
	// ids are plain names, never paths
	if id == "" || id == "." || id == ".." || path.Base(id) != id || strings.Contains(id, `\`) {
		return "", fmt.Errorf("invalid id %q", id)
	}
	return path.Join(dir, id+".json"), nil
}

func (s *s3Store) get(ctx context.Context, key string, v any) (bool, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return false, nil
		}
		return false, fmt.Errorf("get object %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read object %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode object %s: %w", key, err)
	}
	return true, nil
}

func (s *s3Store) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) CreateProject(ctx context.Context, project *core.Project) error {
	key, err := objectKey("projects", project.ID)
	if err != nil {
		return core.ValidationFailed("id", err.Error())
	}
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now
	if err := s.put(ctx, key, project); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"project_id": project.ID, "bucket": s.bucket}).Info("Project created")
	return nil
}

func (s *s3Store) GetProject(ctx context.Context, id string) (*core.Project, error) {
	key, err := objectKey("projects", id)
	if err != nil {
		return nil, core.NotFound("project", id)
	}
	var project core.Project
	ok, err := s.get(ctx, key, &project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NotFound("project", id)
	}
	return &project, nil
}

func (s *s3Store) ListProjects(ctx context.Context, userID string) ([]*core.Project, error) {
	projects := make([]*core.Project, 0)
	paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("projects/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		for _, object := range page.Contents {
			var project core.Project
			if _, err := s.get(ctx, aws.ToString(object.Key), &project); err != nil {
				logrus.WithError(err).WithField("key", aws.ToString(object.Key)).Warn("Skipping unreadable project")
				continue
			}
			if project.UserID == userID {
				projects = append(projects, &project)
			}
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].CreatedAt.After(projects[j].CreatedAt) })
	return projects, nil
}

func (s *s3Store) GetCanvas(ctx context.Context, projectID string) (*core.CanvasRecord, error) {
	key, err := objectKey("canvases", projectID)
	if err != nil {
		return nil, core.NotFound("canvas", projectID)
	}
	var rec core.CanvasRecord
	ok, err := s.get(ctx, key, &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NotFound("canvas", projectID)
	}
	return &rec, nil
}

func (s *s3Store) UpsertCanvas(ctx context.Context, record *core.CanvasRecord) error {
	key, err := objectKey("canvases", record.ProjectID)
	if err != nil {
		return core.ValidationFailed("projectId", err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var existing core.CanvasRecord
	found, err := s.get(ctx, key, &existing)
	if err != nil {
		return err
	}
	if found {
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	return s.put(ctx, key, record)
}

func (s *s3Store) Close() error { return nil }
