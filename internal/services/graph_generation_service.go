package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"mindgraph/internal/models"

	gocache "github.com/patrickmn/go-cache"
)

// Submitter posts a corpus to the engine and returns the accepted task id
type Submitter interface {
	Submit(ctx context.Context, userID, taskType string) (string, error)
}

// PollerStarter launches the detached poll loop for an accepted task
type PollerStarter interface {
	Start(ctx context.Context, task *models.GraphTask)
}

// ConversationCounter reports how many conversations a user has
type ConversationCounter interface {
	CountConversations(ctx context.Context, userID string) (int64, error)
}

// SnapshotStore is the read and maintenance surface of the graph store that
// the orchestration layer touches
type SnapshotStore interface {
	MarkGenerationStarted(ctx context.Context, userID string) error
	GetSnapshotForUser(ctx context.Context, userID string) (*models.GraphSnapshot, error)
	GetStats(ctx context.Context, userID string) (*models.GraphStats, error)
	GetSummary(ctx context.Context, userID string) (*models.GraphSummary, error)
	ListNodesByCluster(ctx context.Context, userID, clusterID string) ([]models.GraphNode, error)
	ListEdges(ctx context.Context, userID string) ([]models.GraphEdge, error)
	DeleteNode(ctx context.Context, userID string, nodeID int) error
	DeleteCluster(ctx context.Context, userID, clusterID string) error
	DeleteAllGraphData(ctx context.Context, userID string) error
}

// GraphGenerationService orchestrates the pipeline: guard the per-user
// registry slot, submit the corpus, hand the accepted task to the poller,
// and serve the read side with a short-lived cache. Submission is
// synchronous up to "task accepted"; everything after is fire-and-forget.
type GraphGenerationService struct {
	conversations ConversationCounter
	submitter     Submitter
	poller        PollerStarter
	registry      TaskRegistry
	store         SnapshotStore
	events        *PubSubService
	metrics       *Metrics
	cache         *gocache.Cache

	// background context for pollers, detached from the request
	pollCtx context.Context
}

// NewGraphGenerationService creates the orchestration service. events and
// metrics may be nil.
func NewGraphGenerationService(conversations ConversationCounter, submitter Submitter, poller PollerStarter,
	registry TaskRegistry, store SnapshotStore, events *PubSubService, metrics *Metrics, pollCtx context.Context) *GraphGenerationService {
	if pollCtx == nil {
		pollCtx = context.Background()
	}
	return &GraphGenerationService{
		conversations: conversations,
		submitter:     submitter,
		poller:        poller,
		registry:      registry,
		store:         store,
		events:        events,
		metrics:       metrics,
		cache:         gocache.New(30*time.Second, time.Minute),
		pollCtx:       pollCtx,
	}
}

// StartGeneration kicks off a generation (or summary) task for a user and
// returns the accepted engine task id. The caller gets the id as soon as
// the engine accepts; completion is observable only through the stats and
// summary read paths.
func (s *GraphGenerationService) StartGeneration(ctx context.Context, userID, taskType string) (string, error) {
	if userID == "" {
		return "", &models.ValidationError{Field: "userId", Message: "user id is required"}
	}
	if taskType == "" {
		taskType = models.TaskTypeGraph
	}

	count, err := s.conversations.CountConversations(ctx, userID)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", fmt.Errorf("user has no conversations: %w", models.ErrNotFound)
	}

	acquired, err := s.registry.TryAcquire(ctx, userID)
	if err != nil {
		return "", err
	}
	if !acquired {
		s.metrics.ObserveSubmission("conflict")
		return "", models.ErrConflict
	}

	taskID, err := s.submitter.Submit(ctx, userID, taskType)
	if err != nil {
		// Submission never started a poller, so the slot is released here
		if releaseErr := s.registry.Release(ctx, userID); releaseErr != nil {
			log.Printf("❌ [GENERATION] Failed to release slot after submit error for user %s: %v", userID, releaseErr)
		}
		s.metrics.ObserveSubmission("error")
		return "", err
	}

	if err := s.store.MarkGenerationStarted(ctx, userID); err != nil {
		log.Printf("⚠️ [GENERATION] Failed to mark generation started for user %s: %v", userID, err)
	}
	s.events.PublishUserEvent(ctx, userID, "graph.generation.started", map[string]interface{}{
		"task_id":   taskID,
		"task_type": taskType,
	})
	s.metrics.ObserveSubmission("accepted")
	s.invalidate(userID)

	s.poller.Start(s.pollCtx, &models.GraphTask{
		TaskID:      taskID,
		UserID:      userID,
		Type:        taskType,
		Status:      models.TaskStatusProcessing,
		SubmittedAt: time.Now(),
	})

	log.Printf("🚀 [GENERATION] Started %s task %s for user %s (%d conversations)", taskType, taskID, userID, count)
	return taskID, nil
}

// GetSnapshot returns the user's full graph, cached for a few seconds
func (s *GraphGenerationService) GetSnapshot(ctx context.Context, userID string) (*models.GraphSnapshot, error) {
	cacheKey := "snapshot:" + userID
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.(*models.GraphSnapshot), nil
	}

	snapshot, err := s.store.GetSnapshotForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, snapshot, gocache.DefaultExpiration)
	return snapshot, nil
}

// GetStats returns the user's cached aggregate document
func (s *GraphGenerationService) GetStats(ctx context.Context, userID string) (*models.GraphStats, error) {
	cacheKey := "stats:" + userID
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.(*models.GraphStats), nil
	}

	stats, err := s.store.GetStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, stats, gocache.DefaultExpiration)
	return stats, nil
}

// GetSummary returns the user's narrative insight report
func (s *GraphGenerationService) GetSummary(ctx context.Context, userID string) (*models.GraphSummary, error) {
	return s.store.GetSummary(ctx, userID)
}

// ListNodesByCluster returns the live members of a cluster
func (s *GraphGenerationService) ListNodesByCluster(ctx context.Context, userID, clusterID string) ([]models.GraphNode, error) {
	return s.store.ListNodesByCluster(ctx, userID, clusterID)
}

// ListEdges returns all of the user's edges
func (s *GraphGenerationService) ListEdges(ctx context.Context, userID string) ([]models.GraphEdge, error) {
	return s.store.ListEdges(ctx, userID)
}

// DeleteNode removes a node and its edges
func (s *GraphGenerationService) DeleteNode(ctx context.Context, userID string, nodeID int) error {
	if err := s.store.DeleteNode(ctx, userID, nodeID); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// DeleteCluster removes a cluster with its member nodes and edges
func (s *GraphGenerationService) DeleteCluster(ctx context.Context, userID, clusterID string) error {
	if err := s.store.DeleteCluster(ctx, userID, clusterID); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// DeleteAllGraphData wipes the user's graph (account-level reset)
func (s *GraphGenerationService) DeleteAllGraphData(ctx context.Context, userID string) error {
	if err := s.store.DeleteAllGraphData(ctx, userID); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

func (s *GraphGenerationService) invalidate(userID string) {
	s.cache.Delete("snapshot:" + userID)
	s.cache.Delete("stats:" + userID)
}
