package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"mindgraph/internal/models"
)

// ConversationSource is the conversation read API the export pages from
type ConversationSource interface {
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error)
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// CorpusExportService serializes a user's conversation corpus into the JSON
// array the analysis engine expects, one batch of conversations in memory at
// a time. The stream is not restartable mid-flight: every Export call re-runs
// the paging query from the beginning, so retrying callers must request a
// fresh stream per attempt.
type CorpusExportService struct {
	conversations ConversationSource
	batchSize     int
}

// NewCorpusExportService creates a new corpus export service
func NewCorpusExportService(conversations ConversationSource, batchSize int) *CorpusExportService {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &CorpusExportService{
		conversations: conversations,
		batchSize:     batchSize,
	}
}

// Export returns a reader whose bytes concatenate to a JSON array of
// conversation envelopes. Conversations without messages are skipped.
func (s *CorpusExportService) Export(ctx context.Context, userID string) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		if err := s.writeCorpus(ctx, pw, userID); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	return pr
}

func (s *CorpusExportService) writeCorpus(ctx context.Context, w io.Writer, userID string) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	written := 0
	offset := 0

	for {
		batch, err := s.conversations.ListConversations(ctx, userID, s.batchSize, offset)
		if err != nil {
			return fmt.Errorf("failed to page conversations: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		offset += len(batch)

		for _, conversation := range batch {
			messages, err := s.conversations.GetMessages(ctx, conversation.ConversationID)
			if err != nil {
				return fmt.Errorf("failed to load messages for %s: %w", conversation.ConversationID, err)
			}
			if len(messages) == 0 {
				continue
			}

			if written > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			if err := encoder.Encode(buildEnvelope(conversation, messages)); err != nil {
				return fmt.Errorf("failed to encode conversation %s: %w", conversation.ConversationID, err)
			}
			written++
		}

		if len(batch) < s.batchSize {
			break
		}
	}

	_, err := io.WriteString(w, "]")
	return err
}

// buildEnvelope renders one conversation in the engine's expected shape:
// a parent-linked map of message nodes, threaded in creation order.
func buildEnvelope(conversation models.Conversation, messages []models.Message) models.ConversationEnvelope {
	sorted := make([]models.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	mapping := make(map[string]models.MessageNode, len(sorted))
	for i, message := range sorted {
		node := models.MessageNode{
			ID:      message.MessageID,
			Role:    message.Role,
			Content: message.Content,
			Created: message.CreatedAt.Unix(),
		}
		if i > 0 {
			parent := sorted[i-1].MessageID
			node.Parent = &parent
		}
		if i < len(sorted)-1 {
			node.Children = []string{sorted[i+1].MessageID}
		}
		mapping[message.MessageID] = node
	}

	return models.ConversationEnvelope{
		ID:      conversation.ConversationID,
		Title:   conversation.Title,
		Created: conversation.CreatedAt.Unix(),
		Updated: conversation.UpdatedAt.Unix(),
		Mapping: mapping,
	}
}
