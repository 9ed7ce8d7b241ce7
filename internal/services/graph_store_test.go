package services

import (
	"errors"
	"testing"

	"mindgraph/internal/models"
)

func validSnapshot() *models.GraphSnapshot {
	return &models.GraphSnapshot{
		Nodes: []models.GraphNode{
			{NodeID: 0, UserID: "user-1", OrigConversationID: "conv-a", ClusterID: "cl-0"},
			{NodeID: 1, UserID: "user-1", OrigConversationID: "conv-b", ClusterID: "cl-0"},
		},
		Edges: []models.GraphEdge{
			{EdgeID: "user-1::0->1", UserID: "user-1", Source: 0, Target: 1, Weight: 0.5, Type: models.EdgeTypeHard},
		},
		Clusters: []models.GraphCluster{
			{ClusterID: "cl-0", UserID: "user-1", Name: "Programming"},
		},
		Stats: models.GraphStats{UserID: "user-1", NodeCount: 2, EdgeCount: 1, ClusterCount: 1},
	}
}

func TestValidateSnapshot_AcceptsWellFormedSnapshot(t *testing.T) {
	if err := ValidateSnapshot("user-1", validSnapshot()); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}
}

func TestValidateSnapshot_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *models.GraphSnapshot) *models.GraphSnapshot
	}{
		{"nil snapshot", func(s *models.GraphSnapshot) *models.GraphSnapshot { return nil }},
		{"node for another user", func(s *models.GraphSnapshot) *models.GraphSnapshot {
			s.Nodes[0].UserID = "someone-else"
			return s
		}},
		{"node without source conversation", func(s *models.GraphSnapshot) *models.GraphSnapshot {
			s.Nodes[1].OrigConversationID = ""
			return s
		}},
		{"node without cluster", func(s *models.GraphSnapshot) *models.GraphSnapshot {
			s.Nodes[1].ClusterID = ""
			return s
		}},
		{"edge for another user", func(s *models.GraphSnapshot) *models.GraphSnapshot {
			s.Edges[0].UserID = "someone-else"
			return s
		}},
		{"edge with free-text type", func(s *models.GraphSnapshot) *models.GraphSnapshot {
			s.Edges[0].Type = "related-to"
			return s
		}},
		{"edge weight above 1", func(s *models.GraphSnapshot) *models.GraphSnapshot {
			s.Edges[0].Weight = 1.5
			return s
		}},
		{"edge weight below 0", func(s *models.GraphSnapshot) *models.GraphSnapshot {
			s.Edges[0].Weight = -0.1
			return s
		}},
		{"cluster without id", func(s *models.GraphSnapshot) *models.GraphSnapshot {
			s.Clusters[0].ClusterID = ""
			return s
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSnapshot("user-1", tt.mutate(validSnapshot()))
			if err == nil {
				t.Fatal("expected validation to fail")
			}
			var validation *models.ValidationError
			if !errors.As(err, &validation) {
				t.Errorf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

// The mapper's output must pass stored-snapshot validation unchanged;
// anything less means a completed task could fail at persist time.
func TestMapperOutputPassesStoreValidation(t *testing.T) {
	snapshot, err := NewSnapshotMapper().Map(sampleEngineResult(), "user-1")
	if err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if err := ValidateSnapshot("user-1", snapshot); err != nil {
		t.Fatalf("mapped snapshot failed validation: %v", err)
	}
}
