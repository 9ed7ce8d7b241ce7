package services

import (
	"reflect"
	"strings"
	"testing"

	"mindgraph/internal/models"
)

func sampleEngineResult() *models.EngineResult {
	return &models.EngineResult{
		Nodes: []models.EngineNode{
			{ID: 0, OrigID: "conv-a", ClusterID: "cl-0", ClusterName: "Programming", Timestamp: "2025-03-01T12:00:00Z", NumMessages: 10},
			{ID: 1, OrigID: "conv-b", ClusterID: "cl-0", ClusterName: "Programming", NumMessages: 4},
			{ID: 2, OrigID: "conv-c", ClusterID: "cl-1", ClusterName: "Cooking", NumMessages: 7},
			{ID: 3, OrigID: "conv-d", ClusterID: "cl-1", ClusterName: "Cooking", NumMessages: 2},
			{ID: 4, OrigID: "conv-e", ClusterID: "cl-1", ClusterName: "Cooking", NumMessages: 5},
		},
		Edges: []models.EngineEdge{
			{Source: 0, Target: 1, Weight: 0.9, Confidence: "high", IsIntraCluster: true},
			{Source: 2, Target: 3, Weight: 0.8, Confidence: "high", IsIntraCluster: true},
			{Source: 1, Target: 2, Weight: 0.4, Confidence: "medium"},
			{Source: 3, Target: 4, Weight: 0.3, Confidence: "low", IsIntraCluster: true},
		},
		Metadata: &models.EngineResultMetadata{
			Clusters: map[string]models.EngineCluster{
				"cl-1": {Name: "Cooking", Size: 3},
				"cl-0": {Name: "Programming", Size: 2},
			},
			Subclusters: map[string]models.EngineSubcluster{
				"sub-0": {ClusterID: "cl-1", NodeIDs: []int{2, 3}, RepresentativeNodeID: 2, Density: 0.75},
			},
		},
	}
}

func TestSnapshotMapper_MapsFullResult(t *testing.T) {
	mapper := NewSnapshotMapper()

	snapshot, err := mapper.Map(sampleEngineResult(), "user-1")
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	if len(snapshot.Nodes) != 5 {
		t.Errorf("node count = %d, want 5", len(snapshot.Nodes))
	}
	if len(snapshot.Edges) != 4 {
		t.Errorf("edge count = %d, want 4", len(snapshot.Edges))
	}
	if len(snapshot.Clusters) != 2 {
		t.Errorf("cluster count = %d, want 2", len(snapshot.Clusters))
	}
	if len(snapshot.Subclusters) != 1 {
		t.Errorf("subcluster count = %d, want 1", len(snapshot.Subclusters))
	}

	hard := 0
	for _, edge := range snapshot.Edges {
		if edge.Type == models.EdgeTypeHard {
			hard++
		} else if edge.Type != models.EdgeTypeInsight {
			t.Errorf("edge %s has unexpected type %q", edge.EdgeID, edge.Type)
		}
	}
	if hard != 2 {
		t.Errorf("hard edge count = %d, want 2", hard)
	}

	// Derived edge id when the engine supplies none
	if snapshot.Edges[0].EdgeID != "user-1::0->1" {
		t.Errorf("derived edge id = %q", snapshot.Edges[0].EdgeID)
	}

	// Cluster metadata map comes out in sorted key order
	if snapshot.Clusters[0].ClusterID != "cl-0" || snapshot.Clusters[1].ClusterID != "cl-1" {
		t.Errorf("clusters not in sorted order: %s, %s", snapshot.Clusters[0].ClusterID, snapshot.Clusters[1].ClusterID)
	}

	// Stats recomputed from the mapped payload
	stats := snapshot.Stats
	if stats.NodeCount != 5 || stats.EdgeCount != 4 || stats.ClusterCount != 2 {
		t.Errorf("stats = %d nodes / %d edges / %d clusters", stats.NodeCount, stats.EdgeCount, stats.ClusterCount)
	}
	if stats.Status != models.GraphStatusCompleted {
		t.Errorf("stats status = %q, want %q", stats.Status, models.GraphStatusCompleted)
	}
	if stats.UserID != "user-1" {
		t.Errorf("stats user = %q", stats.UserID)
	}

	// Timestamp parsed only where present
	if snapshot.Nodes[0].Timestamp == nil {
		t.Error("node 0 timestamp should be parsed")
	}
	if snapshot.Nodes[1].Timestamp != nil {
		t.Error("node 1 has no timestamp, mapped value should be nil")
	}
}

func TestSnapshotMapper_IsDeterministic(t *testing.T) {
	mapper := NewSnapshotMapper()

	first, err := mapper.Map(sampleEngineResult(), "user-1")
	if err != nil {
		t.Fatalf("first Map failed: %v", err)
	}
	second, err := mapper.Map(sampleEngineResult(), "user-1")
	if err != nil {
		t.Fatalf("second Map failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("mapping the same result twice produced different snapshots")
	}
}

func TestSnapshotMapper_RejectsMalformedResults(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *models.EngineResult) *models.EngineResult
		userID  string
		wantErr string
	}{
		{
			name:    "nil result",
			mutate:  func(r *models.EngineResult) *models.EngineResult { return nil },
			userID:  "user-1",
			wantErr: "nil",
		},
		{
			name:    "missing nodes array",
			mutate:  func(r *models.EngineResult) *models.EngineResult { r.Nodes = nil; return r },
			userID:  "user-1",
			wantErr: "no nodes",
		},
		{
			name:    "missing cluster metadata",
			mutate:  func(r *models.EngineResult) *models.EngineResult { r.Metadata = nil; return r },
			userID:  "user-1",
			wantErr: "cluster metadata",
		},
		{
			name:    "empty user id",
			mutate:  func(r *models.EngineResult) *models.EngineResult { return r },
			userID:  "",
			wantErr: "user id",
		},
		{
			name:    "node without orig id",
			mutate:  func(r *models.EngineResult) *models.EngineResult { r.Nodes[2].OrigID = ""; return r },
			userID:  "user-1",
			wantErr: "orig_id",
		},
		{
			name:    "node without cluster id",
			mutate:  func(r *models.EngineResult) *models.EngineResult { r.Nodes[2].ClusterID = ""; return r },
			userID:  "user-1",
			wantErr: "cluster_id",
		},
		{
			name:    "duplicate node ids",
			mutate:  func(r *models.EngineResult) *models.EngineResult { r.Nodes[1].ID = 0; return r },
			userID:  "user-1",
			wantErr: "duplicate",
		},
		{
			name:    "edge referencing unknown node",
			mutate:  func(r *models.EngineResult) *models.EngineResult { r.Edges[0].Target = 99; return r },
			userID:  "user-1",
			wantErr: "unknown node",
		},
		{
			name:    "unparseable node timestamp",
			mutate:  func(r *models.EngineResult) *models.EngineResult { r.Nodes[0].Timestamp = "yesterday"; return r },
			userID:  "user-1",
			wantErr: "timestamp",
		},
	}

	mapper := NewSnapshotMapper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot, err := mapper.Map(tt.mutate(sampleEngineResult()), tt.userID)
			if err == nil {
				t.Fatal("expected mapping to fail")
			}
			if snapshot != nil {
				t.Error("failed mapping must not return a partial snapshot")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestEdgeTypeFromConfidence(t *testing.T) {
	tests := []struct {
		confidence string
		want       string
	}{
		{"high", models.EdgeTypeHard},
		{"medium", models.EdgeTypeInsight},
		{"low", models.EdgeTypeInsight},
		{"", models.EdgeTypeInsight},
		{"HIGH", models.EdgeTypeInsight}, // signal is case-sensitive
	}

	for _, tt := range tests {
		if got := models.EdgeTypeFromConfidence(tt.confidence); got != tt.want {
			t.Errorf("EdgeTypeFromConfidence(%q) = %q, want %q", tt.confidence, got, tt.want)
		}
	}
}
