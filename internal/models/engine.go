package models

// Wire types for the external analysis engine. The engine consumes the
// exported conversation corpus (POST /analysis) and produces a clustered
// topic graph fetched from GET /result/{task_id}.

// Engine task status values returned by GET /status/{task_id}
const (
	EngineStatusProcessing = "processing"
	EngineStatusCompleted  = "completed"
	EngineStatusFailed     = "failed"
)

// Engine task types
const (
	TaskTypeGraph   = "graph"
	TaskTypeSummary = "summary"
)

// EngineTaskResponse is the engine's reply to a submission or status poll
type EngineTaskResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// MessageNode is one entry in a conversation envelope's parent-linked
// message map. Parent is nil for the first message.
type MessageNode struct {
	ID       string   `json:"id"`
	Role     string   `json:"role"`
	Content  string   `json:"content"`
	Created  int64    `json:"create_time"` // epoch seconds
	Parent   *string  `json:"parent"`
	Children []string `json:"children"`
}

// ConversationEnvelope is one element of the exported corpus array
type ConversationEnvelope struct {
	ID      string                 `json:"id"`
	Title   string                 `json:"title"`
	Created int64                  `json:"create_time"` // epoch seconds
	Updated int64                  `json:"update_time"` // epoch seconds
	Mapping map[string]MessageNode `json:"mapping"`
}

// EngineNode is a topic node in the engine's native output schema
type EngineNode struct {
	ID          int       `json:"id"`
	OrigID      string    `json:"orig_id"` // source conversation id
	ClusterID   string    `json:"cluster_id"`
	ClusterName string    `json:"cluster_name"`
	Confidence  string    `json:"confidence"`
	Timestamp   string    `json:"timestamp,omitempty"` // RFC3339, may be empty
	NumMessages int       `json:"num_messages"`
	Keywords    []Keyword `json:"keywords,omitempty"`
}

// EngineEdge is a relation in the engine's native output schema. The engine
// also emits a literal "type" field, but it is constant and uninformative;
// the internal edge type is derived from Confidence instead.
type EngineEdge struct {
	ID             string  `json:"id,omitempty"`
	Source         int     `json:"source"`
	Target         int     `json:"target"`
	Weight         float64 `json:"weight"`
	Confidence     string  `json:"confidence"`
	Type           string  `json:"type,omitempty"`
	IsIntraCluster bool    `json:"is_intra_cluster"`
}

// EngineCluster is one entry of the result's metadata.clusters map
type EngineCluster struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Size        int      `json:"size"`
	Themes      []string `json:"themes,omitempty"`
}

// EngineSubcluster is one entry of the result's metadata.subclusters map
type EngineSubcluster struct {
	ClusterID            string   `json:"cluster_id"`
	NodeIDs              []int    `json:"node_ids"`
	RepresentativeNodeID int      `json:"representative_node_id"`
	Density              float64  `json:"density"`
	TopKeywords          []string `json:"top_keywords,omitempty"`
}

// EngineResultMetadata carries the cluster map plus any engine extras
type EngineResultMetadata struct {
	Clusters    map[string]EngineCluster    `json:"clusters"`
	Subclusters map[string]EngineSubcluster `json:"subclusters,omitempty"`
	Extra       map[string]interface{}      `json:"extra,omitempty"`
}

// EngineResult is the engine-native graph output for a completed graph task
type EngineResult struct {
	Nodes    []EngineNode           `json:"nodes"`
	Edges    []EngineEdge           `json:"edges"`
	Metadata *EngineResultMetadata  `json:"metadata"`
	Summary  map[string]interface{} `json:"summary,omitempty"` // set for summary tasks
}
