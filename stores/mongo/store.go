package mongo

import (
	"compass/core"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DefaultDatabase = "compass"

type mongoStore struct {
	client   *mongo.Client
	projects *mongo.Collection
	canvases *mongo.Collection
}

// NewStore connects to uri and prepares the collections. Canvas documents
// use the project id as _id, which makes the upsert key unique.
func NewStore(ctx context.Context, uri, database string) (*mongoStore, error) {
	if database == "" {
		database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &mongoStore{
		client:   client,
		projects: db.Collection("projects"),
		canvases: db.Collection("canvases"),
	}
	_, err = s.projects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create project index: %w", err)
	}
	return s, nil
}

func (s *mongoStore) CreateProject(ctx context.Context, project *core.Project) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	project.CreatedAt = now
	project.UpdatedAt = now
	if _, err := s.projects.InsertOne(ctx, project); err != nil {
		logrus.WithError(err).WithField("project_id", project.ID).Error("Failed to create project")
		return err
	}
	logrus.WithFields(logrus.Fields{"project_id": project.ID, "user_id": project.UserID}).Info("Project created")
	return nil
}

func (s *mongoStore) GetProject(ctx context.Context, id string) (*core.Project, error) {
	var p core.Project
	err := s.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.NotFound("project", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *mongoStore) ListProjects(ctx context.Context, userID string) ([]*core.Project, error) {
	cur, err := s.projects.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	projects := make([]*core.Project, 0)
	if err := cur.All(ctx, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *mongoStore) GetCanvas(ctx context.Context, projectID string) (*core.CanvasRecord, error) {
	var rec core.CanvasRecord
	err := s.canvases.FindOne(ctx, bson.M{"_id": projectID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.NotFound("canvas", projectID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *mongoStore) UpsertCanvas(ctx context.Context, record *core.CanvasRecord) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"user_id":      record.UserID,
			"canvas_state": record.CanvasState,
			"timestamp":    record.Timestamp,
			"updated_at":   now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored core.CanvasRecord
	err := s.canvases.FindOneAndUpdate(ctx, bson.M{"_id": record.ProjectID}, update, opts).Decode(&stored)
	if err != nil {
		logrus.WithError(err).WithField("project_id", record.ProjectID).Error("Failed to upsert canvas")
		return err
	}
	record.CreatedAt = stored.CreatedAt
	record.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
