package models

import (
	"fmt"
	"time"
)

// Edge types derived from the engine's confidence signal
const (
	EdgeTypeHard    = "hard"    // confidence "high"
	EdgeTypeInsight = "insight" // everything else
)

// Graph generation status values stored on the stats document
const (
	GraphStatusProcessing = "processing"
	GraphStatusCompleted  = "completed"
	GraphStatusFailed     = "failed"
)

// Keyword is a weighted term attached to a graph node
type Keyword struct {
	Term  string  `bson:"term" json:"term"`
	Score float64 `bson:"score" json:"score"`
}

// GraphNode represents one conversation topic in a user's knowledge graph.
// Node IDs are assigned by the analysis engine and are unique per user.
type GraphNode struct {
	NodeID             int        `bson:"nodeId" json:"id"`
	UserID             string     `bson:"userId" json:"user_id"`
	OrigConversationID string     `bson:"origConversationId" json:"orig_conversation_id"`
	ClusterID          string     `bson:"clusterId" json:"cluster_id"`
	ClusterName        string     `bson:"clusterName" json:"cluster_name"`
	Timestamp          *time.Time `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	MessageCount       int        `bson:"messageCount" json:"message_count"`
	Keywords           []Keyword  `bson:"keywords,omitempty" json:"keywords,omitempty"`
	CreatedAt          time.Time  `bson:"createdAt" json:"created_at"`
	UpdatedAt          time.Time  `bson:"updatedAt" json:"updated_at"`
}

// GraphEdge represents a relation between two topic nodes.
// The edge type is derived from the engine's confidence signal, never
// supplied by clients as free text.
type GraphEdge struct {
	EdgeID       string    `bson:"edgeId" json:"id"`
	UserID       string    `bson:"userId" json:"user_id"`
	Source       int       `bson:"source" json:"source"`
	Target       int       `bson:"target" json:"target"`
	Weight       float64   `bson:"weight" json:"weight"`
	Type         string    `bson:"type" json:"type"` // EdgeTypeHard | EdgeTypeInsight
	IntraCluster bool      `bson:"intraCluster" json:"intra_cluster"`
	CreatedAt    time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updated_at"`
}

// DeriveEdgeID builds the natural key for an edge when the engine does not
// supply an explicit one.
func DeriveEdgeID(userID string, source, target int) string {
	return fmt.Sprintf("%s::%d->%d", userID, source, target)
}

// EdgeTypeFromConfidence maps the engine's confidence signal onto an edge type.
func EdgeTypeFromConfidence(confidence string) string {
	if confidence == "high" {
		return EdgeTypeHard
	}
	return EdgeTypeInsight
}

// GraphCluster groups topic nodes under a shared theme
type GraphCluster struct {
	ClusterID   string    `bson:"clusterId" json:"id"`
	UserID      string    `bson:"userId" json:"user_id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description" json:"description"`
	Size        int       `bson:"size" json:"size"`
	Themes      []string  `bson:"themes,omitempty" json:"themes,omitempty"`
	CreatedAt   time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updated_at"`
}

// GraphSubcluster is a denser sub-grouping inside a cluster
type GraphSubcluster struct {
	SubclusterID         string    `bson:"subclusterId" json:"id"`
	UserID               string    `bson:"userId" json:"user_id"`
	ClusterID            string    `bson:"clusterId" json:"cluster_id"`
	NodeIDs              []int     `bson:"nodeIds" json:"node_ids"`
	RepresentativeNodeID int       `bson:"representativeNodeId" json:"representative_node_id"`
	Size                 int       `bson:"size" json:"size"`
	Density              float64   `bson:"density" json:"density"`
	TopKeywords          []string  `bson:"topKeywords,omitempty" json:"top_keywords,omitempty"`
	CreatedAt            time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt            time.Time `bson:"updatedAt" json:"updated_at"`
}

// GraphStats is the cached per-user aggregate, recomputed on every snapshot
// persist. Its Status field doubles as the "generation in progress" marker
// written by the submission path.
type GraphStats struct {
	UserID       string                 `bson:"userId" json:"user_id"`
	NodeCount    int                    `bson:"nodeCount" json:"node_count"`
	EdgeCount    int                    `bson:"edgeCount" json:"edge_count"`
	ClusterCount int                    `bson:"clusterCount" json:"cluster_count"`
	Status       string                 `bson:"status" json:"status"`
	GeneratedAt  time.Time              `bson:"generatedAt" json:"generated_at"`
	Metadata     map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	UpdatedAt    time.Time              `bson:"updatedAt" json:"updated_at"`
}

// GraphSummary is the per-user narrative insight report. Its lifecycle is
// independent from the node/edge/cluster set and it can be regenerated by a
// summary task without touching the graph.
type GraphSummary struct {
	UserID      string                 `bson:"userId" json:"user_id"`
	Report      map[string]interface{} `bson:"report" json:"report"`
	GeneratedAt time.Time              `bson:"generatedAt" json:"generated_at"`
	UpdatedAt   time.Time              `bson:"updatedAt" json:"updated_at"`
}

// GraphSnapshot is the full mapped output of one generation run, persisted
// atomically by the snapshot store.
type GraphSnapshot struct {
	Nodes       []GraphNode       `json:"nodes"`
	Edges       []GraphEdge       `json:"edges"`
	Clusters    []GraphCluster    `json:"clusters"`
	Subclusters []GraphSubcluster `json:"subclusters"`
	Stats       GraphStats        `json:"stats"`
}
