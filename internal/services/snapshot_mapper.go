package services

import (
	"fmt"
	"sort"
	"time"

	"mindgraph/internal/models"
)

// SnapshotMapper converts the engine's native output schema into the
// internal graph schema. It is a pure function over its inputs: no network
// or storage I/O, and the same engine output always yields the same
// snapshot. Malformed input fails loudly so a broken engine contract is
// caught by the poller instead of being written to the store.
type SnapshotMapper struct{}

// NewSnapshotMapper creates a snapshot mapper
func NewSnapshotMapper() *SnapshotMapper {
	return &SnapshotMapper{}
}

// Map translates an engine result into a persistable snapshot for one user
func (m *SnapshotMapper) Map(result *models.EngineResult, userID string) (*models.GraphSnapshot, error) {
	if result == nil {
		return nil, fmt.Errorf("mapping failed: engine result is nil")
	}
	if result.Nodes == nil {
		return nil, fmt.Errorf("mapping failed: engine result has no nodes array")
	}
	if result.Metadata == nil || result.Metadata.Clusters == nil {
		return nil, fmt.Errorf("mapping failed: engine result has no cluster metadata")
	}
	if userID == "" {
		return nil, fmt.Errorf("mapping failed: user id is empty")
	}

	nodes := make([]models.GraphNode, 0, len(result.Nodes))
	nodeIDs := make(map[int]bool, len(result.Nodes))
	for _, engineNode := range result.Nodes {
		if engineNode.OrigID == "" {
			return nil, fmt.Errorf("mapping failed: node %d has no orig_id", engineNode.ID)
		}
		if engineNode.ClusterID == "" {
			return nil, fmt.Errorf("mapping failed: node %d has no cluster_id", engineNode.ID)
		}
		if nodeIDs[engineNode.ID] {
			return nil, fmt.Errorf("mapping failed: duplicate node id %d", engineNode.ID)
		}
		nodeIDs[engineNode.ID] = true

		node := models.GraphNode{
			NodeID:             engineNode.ID,
			UserID:             userID,
			OrigConversationID: engineNode.OrigID,
			ClusterID:          engineNode.ClusterID,
			ClusterName:        engineNode.ClusterName,
			MessageCount:       engineNode.NumMessages,
			Keywords:           engineNode.Keywords,
		}
		if engineNode.Timestamp != "" {
			parsed, err := time.Parse(time.RFC3339, engineNode.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("mapping failed: node %d has unparseable timestamp %q: %w", engineNode.ID, engineNode.Timestamp, err)
			}
			node.Timestamp = &parsed
		}
		nodes = append(nodes, node)
	}

	edges := make([]models.GraphEdge, 0, len(result.Edges))
	for _, engineEdge := range result.Edges {
		if !nodeIDs[engineEdge.Source] || !nodeIDs[engineEdge.Target] {
			return nil, fmt.Errorf("mapping failed: edge %d->%d references unknown node", engineEdge.Source, engineEdge.Target)
		}
		edgeID := engineEdge.ID
		if edgeID == "" {
			edgeID = models.DeriveEdgeID(userID, engineEdge.Source, engineEdge.Target)
		}
		edges = append(edges, models.GraphEdge{
			EdgeID: edgeID,
			UserID: userID,
			Source: engineEdge.Source,
			Target: engineEdge.Target,
			Weight: engineEdge.Weight,
			// The engine's literal "type" field is constant and carries no
			// signal; the internal type comes from confidence alone.
			Type:         models.EdgeTypeFromConfidence(engineEdge.Confidence),
			IntraCluster: engineEdge.IsIntraCluster,
		})
	}

	clusters := make([]models.GraphCluster, 0, len(result.Metadata.Clusters))
	clusterIDs := make([]string, 0, len(result.Metadata.Clusters))
	for clusterID := range result.Metadata.Clusters {
		clusterIDs = append(clusterIDs, clusterID)
	}
	sort.Strings(clusterIDs)
	for _, clusterID := range clusterIDs {
		engineCluster := result.Metadata.Clusters[clusterID]
		clusters = append(clusters, models.GraphCluster{
			ClusterID:   clusterID,
			UserID:      userID,
			Name:        engineCluster.Name,
			Description: engineCluster.Description,
			Size:        engineCluster.Size,
			Themes:      engineCluster.Themes,
		})
	}

	subclusters := make([]models.GraphSubcluster, 0, len(result.Metadata.Subclusters))
	subclusterIDs := make([]string, 0, len(result.Metadata.Subclusters))
	for subclusterID := range result.Metadata.Subclusters {
		subclusterIDs = append(subclusterIDs, subclusterID)
	}
	sort.Strings(subclusterIDs)
	for _, subclusterID := range subclusterIDs {
		engineSubcluster := result.Metadata.Subclusters[subclusterID]
		subclusters = append(subclusters, models.GraphSubcluster{
			SubclusterID:         subclusterID,
			UserID:               userID,
			ClusterID:            engineSubcluster.ClusterID,
			NodeIDs:              engineSubcluster.NodeIDs,
			RepresentativeNodeID: engineSubcluster.RepresentativeNodeID,
			Size:                 len(engineSubcluster.NodeIDs),
			Density:              engineSubcluster.Density,
			TopKeywords:          engineSubcluster.TopKeywords,
		})
	}

	return &models.GraphSnapshot{
		Nodes:       nodes,
		Edges:       edges,
		Clusters:    clusters,
		Subclusters: subclusters,
		Stats: models.GraphStats{
			UserID:       userID,
			NodeCount:    len(nodes),
			EdgeCount:    len(edges),
			ClusterCount: len(clusters),
			Status:       models.GraphStatusCompleted,
			Metadata:     result.Metadata.Extra,
		},
	}, nil
}
