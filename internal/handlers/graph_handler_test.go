package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"mindgraph/internal/models"
	"mindgraph/internal/services"

	"github.com/gofiber/fiber/v2"
)

type stubCounter struct{ count int64 }

func (s *stubCounter) CountConversations(ctx context.Context, userID string) (int64, error) {
	return s.count, nil
}

type stubSubmitter struct{ err error }

func (s *stubSubmitter) Submit(ctx context.Context, userID, taskType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "task-1", nil
}

type stubPoller struct{}

func (s *stubPoller) Start(ctx context.Context, task *models.GraphTask) {}

type stubRegistry struct {
	mu   sync.Mutex
	held map[string]bool
}

func (r *stubRegistry) TryAcquire(ctx context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held == nil {
		r.held = make(map[string]bool)
	}
	if r.held[userID] {
		return false, nil
	}
	r.held[userID] = true
	return true, nil
}

func (r *stubRegistry) Release(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, userID)
	return nil
}

type stubStore struct {
	stats       *models.GraphStats
	nodeMissing bool
}

func (s *stubStore) MarkGenerationStarted(ctx context.Context, userID string) error { return nil }

func (s *stubStore) GetSnapshotForUser(ctx context.Context, userID string) (*models.GraphSnapshot, error) {
	return &models.GraphSnapshot{}, nil
}

func (s *stubStore) GetStats(ctx context.Context, userID string) (*models.GraphStats, error) {
	if s.stats == nil {
		return nil, models.ErrNotFound
	}
	return s.stats, nil
}

func (s *stubStore) GetSummary(ctx context.Context, userID string) (*models.GraphSummary, error) {
	return nil, models.ErrNotFound
}

func (s *stubStore) ListNodesByCluster(ctx context.Context, userID, clusterID string) ([]models.GraphNode, error) {
	return nil, nil
}

func (s *stubStore) ListEdges(ctx context.Context, userID string) ([]models.GraphEdge, error) {
	return nil, nil
}

func (s *stubStore) DeleteNode(ctx context.Context, userID string, nodeID int) error {
	if s.nodeMissing {
		return models.ErrNotFound
	}
	return nil
}

func (s *stubStore) DeleteCluster(ctx context.Context, userID, clusterID string) error { return nil }

func (s *stubStore) DeleteAllGraphData(ctx context.Context, userID string) error { return nil }

func testApp(counter *stubCounter, store *stubStore) *fiber.App {
	service := services.NewGraphGenerationService(counter, &stubSubmitter{}, &stubPoller{},
		&stubRegistry{}, store, nil, nil, context.Background())
	handler := NewGraphHandler(service)

	app := fiber.New()
	// Stand-in for the auth middleware
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	})
	graph := app.Group("/api/v1/graph")
	graph.Post("/generate", handler.Generate)
	graph.Get("/stats", handler.GetStats)
	graph.Get("/summary", handler.GetSummary)
	graph.Delete("/nodes/:id", handler.DeleteNode)
	return app
}

func TestGenerate_Accepted(t *testing.T) {
	app := testApp(&stubCounter{count: 5}, &stubStore{})

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/graph/generate", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["task_id"] != "task-1" || body["status"] != "processing" {
		t.Errorf("body = %v", body)
	}
}

func TestGenerate_ConflictWhileTaskInFlight(t *testing.T) {
	app := testApp(&stubCounter{count: 5}, &stubStore{})

	if resp, _ := app.Test(httptest.NewRequest("POST", "/api/v1/graph/generate", nil)); resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("first submission status = %d, want 202", resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/graph/generate", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestGenerate_NoConversationsIsNotFound(t *testing.T) {
	app := testApp(&stubCounter{count: 0}, &stubStore{})

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/graph/generate", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetStats_NotFoundBeforeFirstGeneration(t *testing.T) {
	app := testApp(&stubCounter{count: 5}, &stubStore{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/graph/stats", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetStats_ReturnsAggregate(t *testing.T) {
	store := &stubStore{stats: &models.GraphStats{UserID: "user-1", NodeCount: 12, Status: models.GraphStatusCompleted}}
	app := testApp(&stubCounter{count: 5}, store)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/graph/stats", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var stats models.GraphStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.NodeCount != 12 || stats.Status != models.GraphStatusCompleted {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDeleteNode_BadIDRejected(t *testing.T) {
	app := testApp(&stubCounter{count: 5}, &stubStore{})

	resp, err := app.Test(httptest.NewRequest("DELETE", "/api/v1/graph/nodes/not-a-number", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteNode_MissingNodeIsNotFound(t *testing.T) {
	app := testApp(&stubCounter{count: 5}, &stubStore{nodeMissing: true})

	resp, err := app.Test(httptest.NewRequest("DELETE", "/api/v1/graph/nodes/7", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
