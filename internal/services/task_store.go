package services

import (
	"context"
	"fmt"
	"time"

	"mindgraph/internal/database"
	"mindgraph/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TaskStore persists generation task records so a process restart leaves an
// inspectable trail instead of a silently vanished task
type TaskStore interface {
	Insert(ctx context.Context, task *models.GraphTask) error
	SetStatus(ctx context.Context, taskID, status, lastError string) error
	ListByStatus(ctx context.Context, status string) ([]models.GraphTask, error)
}

// MongoTaskStore is the datastore-backed TaskStore
type MongoTaskStore struct {
	collection *mongo.Collection
}

// NewMongoTaskStore creates a task record store
func NewMongoTaskStore(mongodb *database.MongoDB) *MongoTaskStore {
	return &MongoTaskStore{
		collection: mongodb.Collection(database.CollectionGraphTasks),
	}
}

// Insert writes the record of a freshly accepted task
func (s *MongoTaskStore) Insert(ctx context.Context, task *models.GraphTask) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if _, err := s.collection.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to insert task record: %w", err)
	}
	return nil
}

// SetStatus moves a task record to a terminal (or recovered) status
func (s *MongoTaskStore) SetStatus(ctx context.Context, taskID, status, lastError string) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"finishedAt": now,
		},
	}
	if lastError != "" {
		update["$set"].(bson.M)["lastError"] = lastError
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"taskId": taskID}, update)
	if err != nil {
		return fmt.Errorf("failed to update task record: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListByStatus returns all task records in the given status, oldest first
func (s *MongoTaskStore) ListByStatus(ctx context.Context, status string) ([]models.GraphTask, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"status": status})
	if err != nil {
		return nil, fmt.Errorf("failed to find task records: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []models.GraphTask
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode task records: %w", err)
	}
	return tasks, nil
}
