package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"mindgraph/internal/database"
	"mindgraph/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GraphStore is the sole writer of a user's graph data. Every mutating
// operation is scoped to one userId; multi-entity mutations run inside one
// multi-document transaction so partial application is never observable.
type GraphStore struct {
	mongodb     *database.MongoDB
	nodes       *mongo.Collection
	edges       *mongo.Collection
	clusters    *mongo.Collection
	subclusters *mongo.Collection
	stats       *mongo.Collection
	summaries   *mongo.Collection
}

// NewGraphStore creates a graph snapshot store
func NewGraphStore(mongodb *database.MongoDB) *GraphStore {
	return &GraphStore{
		mongodb:     mongodb,
		nodes:       mongodb.Collection(database.CollectionGraphNodes),
		edges:       mongodb.Collection(database.CollectionGraphEdges),
		clusters:    mongodb.Collection(database.CollectionGraphClusters),
		subclusters: mongodb.Collection(database.CollectionGraphSubclusters),
		stats:       mongodb.Collection(database.CollectionGraphStats),
		summaries:   mongodb.Collection(database.CollectionGraphSummaries),
	}
}

// upsertOptions is shared by all create-or-replace writes
var upsertOptions = options.Update().SetUpsert(true)

// UpsertNode creates or replaces a node by its (userId, nodeId) natural key
func (s *GraphStore) UpsertNode(ctx context.Context, node *models.GraphNode) error {
	if err := validateNode(node); err != nil {
		return err
	}
	return s.upsertNode(ctx, node, time.Now())
}

func (s *GraphStore) upsertNode(ctx context.Context, node *models.GraphNode, now time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"origConversationId": node.OrigConversationID,
			"clusterId":          node.ClusterID,
			"clusterName":        node.ClusterName,
			"timestamp":          node.Timestamp,
			"messageCount":       node.MessageCount,
			"keywords":           node.Keywords,
			"updatedAt":          now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := s.nodes.UpdateOne(ctx, bson.M{"userId": node.UserID, "nodeId": node.NodeID}, update, upsertOptions)
	if err != nil {
		return fmt.Errorf("failed to upsert node %d: %w", node.NodeID, err)
	}
	return nil
}

// UpsertEdge creates or replaces an edge by its (userId, edgeId) natural key
func (s *GraphStore) UpsertEdge(ctx context.Context, edge *models.GraphEdge) error {
	if err := validateEdge(edge); err != nil {
		return err
	}
	return s.upsertEdge(ctx, edge, time.Now())
}

func (s *GraphStore) upsertEdge(ctx context.Context, edge *models.GraphEdge, now time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"source":       edge.Source,
			"target":       edge.Target,
			"weight":       edge.Weight,
			"type":         edge.Type,
			"intraCluster": edge.IntraCluster,
			"updatedAt":    now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := s.edges.UpdateOne(ctx, bson.M{"userId": edge.UserID, "edgeId": edge.EdgeID}, update, upsertOptions)
	if err != nil {
		return fmt.Errorf("failed to upsert edge %s: %w", edge.EdgeID, err)
	}
	return nil
}

// UpsertCluster creates or replaces a cluster by its (userId, clusterId) key
func (s *GraphStore) UpsertCluster(ctx context.Context, cluster *models.GraphCluster) error {
	if cluster.UserID == "" || cluster.ClusterID == "" {
		return &models.ValidationError{Field: "cluster", Message: "userId and clusterId are required"}
	}
	return s.upsertCluster(ctx, cluster, time.Now())
}

func (s *GraphStore) upsertCluster(ctx context.Context, cluster *models.GraphCluster, now time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"name":        cluster.Name,
			"description": cluster.Description,
			"size":        cluster.Size,
			"themes":      cluster.Themes,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := s.clusters.UpdateOne(ctx, bson.M{"userId": cluster.UserID, "clusterId": cluster.ClusterID}, update, upsertOptions)
	if err != nil {
		return fmt.Errorf("failed to upsert cluster %s: %w", cluster.ClusterID, err)
	}
	return nil
}

// UpsertSubcluster creates or replaces a subcluster
func (s *GraphStore) UpsertSubcluster(ctx context.Context, subcluster *models.GraphSubcluster) error {
	if subcluster.UserID == "" || subcluster.SubclusterID == "" {
		return &models.ValidationError{Field: "subcluster", Message: "userId and subclusterId are required"}
	}
	return s.upsertSubcluster(ctx, subcluster, time.Now())
}

func (s *GraphStore) upsertSubcluster(ctx context.Context, subcluster *models.GraphSubcluster, now time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"clusterId":            subcluster.ClusterID,
			"nodeIds":              subcluster.NodeIDs,
			"representativeNodeId": subcluster.RepresentativeNodeID,
			"size":                 subcluster.Size,
			"density":              subcluster.Density,
			"topKeywords":          subcluster.TopKeywords,
			"updatedAt":            now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := s.subclusters.UpdateOne(ctx, bson.M{"userId": subcluster.UserID, "subclusterId": subcluster.SubclusterID}, update, upsertOptions)
	if err != nil {
		return fmt.Errorf("failed to upsert subcluster %s: %w", subcluster.SubclusterID, err)
	}
	return nil
}

// SaveStats overwrites the user's cached aggregate document
func (s *GraphStore) SaveStats(ctx context.Context, stats *models.GraphStats) error {
	if stats.UserID == "" {
		return &models.ValidationError{Field: "stats", Message: "userId is required"}
	}
	return s.saveStats(ctx, stats, time.Now())
}

func (s *GraphStore) saveStats(ctx context.Context, stats *models.GraphStats, now time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"nodeCount":    stats.NodeCount,
			"edgeCount":    stats.EdgeCount,
			"clusterCount": stats.ClusterCount,
			"status":       stats.Status,
			"generatedAt":  stats.GeneratedAt,
			"metadata":     stats.Metadata,
			"updatedAt":    now,
		},
	}
	_, err := s.stats.UpdateOne(ctx, bson.M{"userId": stats.UserID}, update, upsertOptions)
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// MarkGenerationStarted flips the stats document's status marker to
// "processing" without touching the cached counts
func (s *GraphStore) MarkGenerationStarted(ctx context.Context, userID string) error {
	return s.setStatsStatus(ctx, userID, models.GraphStatusProcessing)
}

// MarkGenerationFailed records a failed generation on the stats marker.
// Used by the poller's terminal failure paths; best effort.
func (s *GraphStore) MarkGenerationFailed(ctx context.Context, userID string) error {
	return s.setStatsStatus(ctx, userID, models.GraphStatusFailed)
}

func (s *GraphStore) setStatsStatus(ctx context.Context, userID, status string) error {
	update := bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}}
	_, err := s.stats.UpdateOne(ctx, bson.M{"userId": userID}, update, upsertOptions)
	if err != nil {
		return fmt.Errorf("failed to set stats status: %w", err)
	}
	return nil
}

// PersistSnapshot writes every node, edge, cluster, subcluster and the stats
// document of a snapshot inside one transaction. If any individual upsert
// fails the whole transaction aborts and none of the snapshot is visible.
func (s *GraphStore) PersistSnapshot(ctx context.Context, userID string, snapshot *models.GraphSnapshot) error {
	if err := ValidateSnapshot(userID, snapshot); err != nil {
		return err
	}
	if s.mongodb == nil {
		return fmt.Errorf("graph store: no transaction-capable datastore configured")
	}

	now := time.Now()
	err := s.mongodb.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		for i := range snapshot.Nodes {
			if err := s.upsertNode(sessCtx, &snapshot.Nodes[i], now); err != nil {
				return err
			}
		}
		for i := range snapshot.Edges {
			if err := s.upsertEdge(sessCtx, &snapshot.Edges[i], now); err != nil {
				return err
			}
		}
		for i := range snapshot.Clusters {
			if err := s.upsertCluster(sessCtx, &snapshot.Clusters[i], now); err != nil {
				return err
			}
		}
		for i := range snapshot.Subclusters {
			if err := s.upsertSubcluster(sessCtx, &snapshot.Subclusters[i], now); err != nil {
				return err
			}
		}

		stats := snapshot.Stats
		stats.UserID = userID
		stats.GeneratedAt = now
		return s.saveStats(sessCtx, &stats, now)
	})
	if err != nil {
		return &models.UpstreamError{Op: "persist snapshot", Err: err}
	}

	log.Printf("💾 [GRAPH-STORE] Persisted snapshot for user %s (%d nodes, %d edges, %d clusters)",
		userID, len(snapshot.Nodes), len(snapshot.Edges), len(snapshot.Clusters))
	return nil
}

// DeleteNode removes a node and cascades to every edge where the node is
// source or target, in one transaction.
func (s *GraphStore) DeleteNode(ctx context.Context, userID string, nodeID int) error {
	err := s.mongodb.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		result, err := s.nodes.DeleteOne(sessCtx, bson.M{"userId": userID, "nodeId": nodeID})
		if err != nil {
			return fmt.Errorf("failed to delete node %d: %w", nodeID, err)
		}
		if result.DeletedCount == 0 {
			return models.ErrNotFound
		}

		_, err = s.edges.DeleteMany(sessCtx, bson.M{
			"userId": userID,
			"$or":    []bson.M{{"source": nodeID}, {"target": nodeID}},
		})
		if err != nil {
			return fmt.Errorf("failed to cascade edges of node %d: %w", nodeID, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return &models.UpstreamError{Op: "delete node", Err: err}
	}

	log.Printf("🗑️ [GRAPH-STORE] Deleted node %d and its edges for user %s", nodeID, userID)
	return nil
}

// DeleteCluster atomically removes a cluster, its member nodes and every
// edge touching those nodes
func (s *GraphStore) DeleteCluster(ctx context.Context, userID, clusterID string) error {
	err := s.mongodb.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		cursor, err := s.nodes.Find(sessCtx, bson.M{"userId": userID, "clusterId": clusterID},
			options.Find().SetProjection(bson.M{"nodeId": 1}))
		if err != nil {
			return fmt.Errorf("failed to list cluster nodes: %w", err)
		}
		var members []struct {
			NodeID int `bson:"nodeId"`
		}
		if err := cursor.All(sessCtx, &members); err != nil {
			return fmt.Errorf("failed to decode cluster nodes: %w", err)
		}

		nodeIDs := make([]int, len(members))
		for i, member := range members {
			nodeIDs[i] = member.NodeID
		}

		if len(nodeIDs) > 0 {
			_, err = s.edges.DeleteMany(sessCtx, bson.M{
				"userId": userID,
				"$or":    []bson.M{{"source": bson.M{"$in": nodeIDs}}, {"target": bson.M{"$in": nodeIDs}}},
			})
			if err != nil {
				return fmt.Errorf("failed to cascade cluster edges: %w", err)
			}

			_, err = s.nodes.DeleteMany(sessCtx, bson.M{"userId": userID, "nodeId": bson.M{"$in": nodeIDs}})
			if err != nil {
				return fmt.Errorf("failed to delete cluster nodes: %w", err)
			}
		}

		result, err := s.clusters.DeleteOne(sessCtx, bson.M{"userId": userID, "clusterId": clusterID})
		if err != nil {
			return fmt.Errorf("failed to delete cluster %s: %w", clusterID, err)
		}
		if result.DeletedCount == 0 {
			return models.ErrNotFound
		}

		_, err = s.subclusters.DeleteMany(sessCtx, bson.M{"userId": userID, "clusterId": clusterID})
		if err != nil {
			return fmt.Errorf("failed to delete cluster subclusters: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return &models.UpstreamError{Op: "delete cluster", Err: err}
	}

	log.Printf("🗑️ [GRAPH-STORE] Deleted cluster %s with members and edges for user %s", clusterID, userID)
	return nil
}

// DeleteAllGraphData wipes the user's nodes, edges, clusters, subclusters
// and stats in one transaction. The summary document has an independent
// lifecycle and is left in place.
func (s *GraphStore) DeleteAllGraphData(ctx context.Context, userID string) error {
	err := s.mongodb.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		filter := bson.M{"userId": userID}
		for _, collection := range []*mongo.Collection{s.nodes, s.edges, s.clusters, s.subclusters, s.stats} {
			if _, err := collection.DeleteMany(sessCtx, filter); err != nil {
				return fmt.Errorf("failed to wipe %s: %w", collection.Name(), err)
			}
		}
		return nil
	})
	if err != nil {
		return &models.UpstreamError{Op: "delete graph data", Err: err}
	}

	log.Printf("🗑️ [GRAPH-STORE] Wiped all graph data for user %s", userID)
	return nil
}

// GetSnapshotForUser is a fan-out read of the user's nodes, edges, clusters
// and stats. It is an aggregate read, not a mutation, and is not
// transactionally consistent with concurrent writes.
func (s *GraphStore) GetSnapshotForUser(ctx context.Context, userID string) (*models.GraphSnapshot, error) {
	snapshot := &models.GraphSnapshot{}

	cursor, err := s.nodes.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	if err := cursor.All(ctx, &snapshot.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode nodes: %w", err)
	}

	cursor, err = s.edges.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	if err := cursor.All(ctx, &snapshot.Edges); err != nil {
		return nil, fmt.Errorf("failed to decode edges: %w", err)
	}

	cursor, err = s.clusters.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	if err := cursor.All(ctx, &snapshot.Clusters); err != nil {
		return nil, fmt.Errorf("failed to decode clusters: %w", err)
	}

	cursor, err = s.subclusters.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list subclusters: %w", err)
	}
	if err := cursor.All(ctx, &snapshot.Subclusters); err != nil {
		return nil, fmt.Errorf("failed to decode subclusters: %w", err)
	}

	stats, err := s.GetStats(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if stats != nil {
		snapshot.Stats = *stats
	}

	return snapshot, nil
}

// ListNodesByCluster returns the nodes currently assigned to a cluster
func (s *GraphStore) ListNodesByCluster(ctx context.Context, userID, clusterID string) ([]models.GraphNode, error) {
	cursor, err := s.nodes.Find(ctx, bson.M{"userId": userID, "clusterId": clusterID})
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster nodes: %w", err)
	}
	defer cursor.Close(ctx)

	var nodes []models.GraphNode
	if err := cursor.All(ctx, &nodes); err != nil {
		return nil, fmt.Errorf("failed to decode cluster nodes: %w", err)
	}
	return nodes, nil
}

// ListEdges returns all of a user's edges
func (s *GraphStore) ListEdges(ctx context.Context, userID string) ([]models.GraphEdge, error) {
	cursor, err := s.edges.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer cursor.Close(ctx)

	var edges []models.GraphEdge
	if err := cursor.All(ctx, &edges); err != nil {
		return nil, fmt.Errorf("failed to decode edges: %w", err)
	}
	return edges, nil
}

// GetStats returns the user's cached aggregate document
func (s *GraphStore) GetStats(ctx context.Context, userID string) (*models.GraphStats, error) {
	var stats models.GraphStats
	err := s.stats.FindOne(ctx, bson.M{"userId": userID}).Decode(&stats)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &stats, nil
}

// SaveSummary overwrites the user's narrative insight report
func (s *GraphStore) SaveSummary(ctx context.Context, userID string, report map[string]interface{}) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"report":      report,
			"generatedAt": now,
			"updatedAt":   now,
		},
	}
	_, err := s.summaries.UpdateOne(ctx, bson.M{"userId": userID}, update, upsertOptions)
	if err != nil {
		return &models.UpstreamError{Op: "save summary", Err: err}
	}

	log.Printf("💾 [GRAPH-STORE] Saved summary for user %s", userID)
	return nil
}

// GetSummary returns the user's narrative insight report
func (s *GraphStore) GetSummary(ctx context.Context, userID string) (*models.GraphSummary, error) {
	var summary models.GraphSummary
	err := s.summaries.FindOne(ctx, bson.M{"userId": userID}).Decode(&summary)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &summary, nil
}

// ValidateSnapshot checks a snapshot's required fields before any write
// touches the datastore
func ValidateSnapshot(userID string, snapshot *models.GraphSnapshot) error {
	if snapshot == nil {
		return &models.ValidationError{Field: "snapshot", Message: "snapshot is nil"}
	}
	for i := range snapshot.Nodes {
		node := &snapshot.Nodes[i]
		if node.UserID != userID {
			return &models.ValidationError{Field: "nodes", Message: fmt.Sprintf("node %d belongs to another user", node.NodeID)}
		}
		if err := validateNode(node); err != nil {
			return err
		}
	}
	for i := range snapshot.Edges {
		edge := &snapshot.Edges[i]
		if edge.UserID != userID {
			return &models.ValidationError{Field: "edges", Message: fmt.Sprintf("edge %s belongs to another user", edge.EdgeID)}
		}
		if err := validateEdge(edge); err != nil {
			return err
		}
	}
	for i := range snapshot.Clusters {
		if snapshot.Clusters[i].ClusterID == "" {
			return &models.ValidationError{Field: "clusters", Message: "cluster is missing its id"}
		}
	}
	return nil
}

func validateNode(node *models.GraphNode) error {
	if node.UserID == "" {
		return &models.ValidationError{Field: "node.userId", Message: "userId is required"}
	}
	if node.OrigConversationID == "" {
		return &models.ValidationError{Field: "node.origConversationId", Message: fmt.Sprintf("node %d is missing its source conversation", node.NodeID)}
	}
	if node.ClusterID == "" {
		return &models.ValidationError{Field: "node.clusterId", Message: fmt.Sprintf("node %d is missing its cluster", node.NodeID)}
	}
	return nil
}

func validateEdge(edge *models.GraphEdge) error {
	if edge.UserID == "" || edge.EdgeID == "" {
		return &models.ValidationError{Field: "edge", Message: "userId and edgeId are required"}
	}
	if edge.Type != models.EdgeTypeHard && edge.Type != models.EdgeTypeInsight {
		return &models.ValidationError{Field: "edge.type", Message: fmt.Sprintf("edge %s has invalid type %q", edge.EdgeID, edge.Type)}
	}
	if edge.Weight < 0 || edge.Weight > 1 {
		return &models.ValidationError{Field: "edge.weight", Message: fmt.Sprintf("edge %s weight %f out of range", edge.EdgeID, edge.Weight)}
	}
	return nil
}
