package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"mindgraph/internal/models"
	"mindgraph/internal/services"

	"github.com/gofiber/fiber/v2"
)

// GraphHandler exposes the graph generation pipeline over HTTP
type GraphHandler struct {
	generationService *services.GraphGenerationService
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(generationService *services.GraphGenerationService) *GraphHandler {
	return &GraphHandler{generationService: generationService}
}

// Generate starts a graph generation task for the authenticated user.
// POST /api/v1/graph/generate
// Returns 202 with the accepted task id; the client polls the stats and
// summary read endpoints for completion.
func (h *GraphHandler) Generate(c *fiber.Ctx) error {
	return h.startTask(c, models.TaskTypeGraph)
}

// GenerateSummary starts a summary regeneration task.
// POST /api/v1/graph/summary
func (h *GraphHandler) GenerateSummary(c *fiber.Ctx) error {
	return h.startTask(c, models.TaskTypeSummary)
}

func (h *GraphHandler) startTask(c *fiber.Ctx, taskType string) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	taskID, err := h.generationService.StartGeneration(ctx, userID, taskType)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":  "A generation task is already running",
				"status": "processing",
			})
		}
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No conversations to analyze",
			})
		}
		var validation *models.ValidationError
		if errors.As(err, &validation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": validation.Error(),
			})
		}
		log.Printf("❌ [GRAPH-API] Failed to start %s task: %v", taskType, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Analysis engine unavailable",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"task_id": taskID,
		"status":  "processing",
	})
}

// GetGraph returns the user's full graph snapshot.
// GET /api/v1/graph
func (h *GraphHandler) GetGraph(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snapshot, err := h.generationService.GetSnapshot(ctx, userID)
	if err != nil {
		log.Printf("❌ [GRAPH-API] Failed to read graph: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve graph",
		})
	}

	return c.JSON(snapshot)
}

// GetStats returns the user's cached graph aggregate.
// GET /api/v1/graph/stats
func (h *GraphHandler) GetStats(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := h.generationService.GetStats(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No graph has been generated yet",
			})
		}
		log.Printf("❌ [GRAPH-API] Failed to read stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve stats",
		})
	}

	return c.JSON(stats)
}

// GetSummary returns the user's narrative insight report.
// GET /api/v1/graph/summary
func (h *GraphHandler) GetSummary(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := h.generationService.GetSummary(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No summary has been generated yet",
			})
		}
		log.Printf("❌ [GRAPH-API] Failed to read summary: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve summary",
		})
	}

	return c.JSON(summary)
}

// ListClusterNodes returns the nodes currently assigned to a cluster.
// GET /api/v1/graph/clusters/:id/nodes
func (h *GraphHandler) ListClusterNodes(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}
	clusterID := c.Params("id")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nodes, err := h.generationService.ListNodesByCluster(ctx, userID, clusterID)
	if err != nil {
		log.Printf("❌ [GRAPH-API] Failed to list cluster nodes: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve cluster nodes",
		})
	}

	return c.JSON(fiber.Map{
		"cluster_id": clusterID,
		"nodes":      nodes,
	})
}

// ListEdges returns all of the user's edges.
// GET /api/v1/graph/edges
func (h *GraphHandler) ListEdges(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	edges, err := h.generationService.ListEdges(ctx, userID)
	if err != nil {
		log.Printf("❌ [GRAPH-API] Failed to list edges: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve edges",
		})
	}

	return c.JSON(fiber.Map{"edges": edges})
}

// DeleteNode removes a node and all edges touching it.
// DELETE /api/v1/graph/nodes/:id
func (h *GraphHandler) DeleteNode(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	nodeID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid node ID",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.generationService.DeleteNode(ctx, userID, nodeID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Node not found",
			})
		}
		log.Printf("❌ [GRAPH-API] Failed to delete node %d: %v", nodeID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete node",
		})
	}

	return c.JSON(fiber.Map{"deleted": true})
}

// DeleteCluster removes a cluster with its member nodes and edges.
// DELETE /api/v1/graph/clusters/:id
func (h *GraphHandler) DeleteCluster(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}
	clusterID := c.Params("id")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := h.generationService.DeleteCluster(ctx, userID, clusterID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Cluster not found",
			})
		}
		log.Printf("❌ [GRAPH-API] Failed to delete cluster %s: %v", clusterID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete cluster",
		})
	}

	return c.JSON(fiber.Map{"deleted": true})
}

// DeleteGraph wipes all of the user's graph data (account-level reset).
// DELETE /api/v1/graph
func (h *GraphHandler) DeleteGraph(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := h.generationService.DeleteAllGraphData(ctx, userID); err != nil {
		log.Printf("❌ [GRAPH-API] Failed to wipe graph: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete graph data",
		})
	}

	return c.JSON(fiber.Map{"deleted": true})
}
