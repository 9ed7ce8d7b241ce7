package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"mindgraph/internal/models"
)

// fakeConversationSource serves a fixed conversation set with paging
type fakeConversationSource struct {
	conversations []models.Conversation
	messages      map[string][]models.Message
	listOffsets   []int
	listErr       error
}

func (f *fakeConversationSource) ListConversations(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.listOffsets = append(f.listOffsets, offset)
	if offset >= len(f.conversations) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.conversations) {
		end = len(f.conversations)
	}
	return f.conversations[offset:end], nil
}

func (f *fakeConversationSource) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return f.messages[conversationID], nil
}

func makeConversation(id string, messageCount int) (models.Conversation, []models.Message) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	conv := models.Conversation{
		ConversationID: id,
		UserID:         "user-1",
		Title:          "Conversation " + id,
		CreatedAt:      base,
		UpdatedAt:      base.Add(time.Hour),
	}
	messages := make([]models.Message, 0, messageCount)
	for i := 0; i < messageCount; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		messages = append(messages, models.Message{
			MessageID: id + "-m" + string(rune('a'+i)),
			Role:      role,
			Content:   "message content",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return conv, messages
}

func exportEnvelopes(t *testing.T, source *fakeConversationSource, batchSize int) []models.ConversationEnvelope {
	t.Helper()

	exporter := NewCorpusExportService(source, batchSize)
	reader := exporter.Export(context.Background(), "user-1")
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("failed to read export stream: %v", err)
	}

	var envelopes []models.ConversationEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		t.Fatalf("export is not a valid JSON array: %v\npayload: %s", err, data)
	}
	return envelopes
}

func TestCorpusExport_StreamsJSONArray(t *testing.T) {
	source := &fakeConversationSource{messages: map[string][]models.Message{}}
	for _, id := range []string{"c1", "c2", "c3"} {
		conv, msgs := makeConversation(id, 3)
		source.conversations = append(source.conversations, conv)
		source.messages[id] = msgs
	}

	envelopes := exportEnvelopes(t, source, 2)

	if len(envelopes) != 3 {
		t.Fatalf("expected 3 envelopes, got %d", len(envelopes))
	}
	if envelopes[0].ID != "c1" || envelopes[2].ID != "c3" {
		t.Errorf("envelopes out of order: %s, %s, %s", envelopes[0].ID, envelopes[1].ID, envelopes[2].ID)
	}
	for _, env := range envelopes {
		if len(env.Mapping) != 3 {
			t.Errorf("envelope %s: expected 3 mapped messages, got %d", env.ID, len(env.Mapping))
		}
	}
}

func TestCorpusExport_ThreadsMessagesInCreationOrder(t *testing.T) {
	conv, msgs := makeConversation("c1", 3)
	// Shuffle storage order; threading must still follow CreatedAt
	shuffled := []models.Message{msgs[2], msgs[0], msgs[1]}
	source := &fakeConversationSource{
		conversations: []models.Conversation{conv},
		messages:      map[string][]models.Message{"c1": shuffled},
	}

	envelopes := exportEnvelopes(t, source, 10)
	mapping := envelopes[0].Mapping

	first := mapping[msgs[0].MessageID]
	if first.Parent != nil {
		t.Errorf("first message should have nil parent, got %q", *first.Parent)
	}
	if len(first.Children) != 1 || first.Children[0] != msgs[1].MessageID {
		t.Errorf("first message children = %v, want [%s]", first.Children, msgs[1].MessageID)
	}

	middle := mapping[msgs[1].MessageID]
	if middle.Parent == nil || *middle.Parent != msgs[0].MessageID {
		t.Errorf("middle message parent wrong: %v", middle.Parent)
	}

	last := mapping[msgs[2].MessageID]
	if last.Parent == nil || *last.Parent != msgs[1].MessageID {
		t.Errorf("last message parent wrong: %v", last.Parent)
	}
	if len(last.Children) != 0 {
		t.Errorf("last message should have no children, got %v", last.Children)
	}
}

func TestCorpusExport_SkipsEmptyConversations(t *testing.T) {
	source := &fakeConversationSource{messages: map[string][]models.Message{}}
	full, fullMsgs := makeConversation("c1", 2)
	empty, _ := makeConversation("c2", 0)
	source.conversations = []models.Conversation{full, empty}
	source.messages["c1"] = fullMsgs

	envelopes := exportEnvelopes(t, source, 10)

	if len(envelopes) != 1 {
		t.Fatalf("expected 1 envelope (empty conversation skipped), got %d", len(envelopes))
	}
	if envelopes[0].ID != "c1" {
		t.Errorf("wrong conversation exported: %s", envelopes[0].ID)
	}
}

func TestCorpusExport_EmptyCorpusIsEmptyArray(t *testing.T) {
	source := &fakeConversationSource{messages: map[string][]models.Message{}}

	envelopes := exportEnvelopes(t, source, 10)

	if len(envelopes) != 0 {
		t.Fatalf("expected empty array, got %d envelopes", len(envelopes))
	}
}

func TestCorpusExport_PagesInBatches(t *testing.T) {
	source := &fakeConversationSource{messages: map[string][]models.Message{}}
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		conv, msgs := makeConversation(id, 1)
		source.conversations = append(source.conversations, conv)
		source.messages[id] = msgs
	}

	envelopes := exportEnvelopes(t, source, 2)

	if len(envelopes) != 5 {
		t.Fatalf("expected 5 envelopes, got %d", len(envelopes))
	}
	wantOffsets := []int{0, 2, 4}
	if len(source.listOffsets) != len(wantOffsets) {
		t.Fatalf("expected %d list calls, got %d (%v)", len(wantOffsets), len(source.listOffsets), source.listOffsets)
	}
	for i, offset := range wantOffsets {
		if source.listOffsets[i] != offset {
			t.Errorf("list call %d: offset = %d, want %d", i, source.listOffsets[i], offset)
		}
	}
}

func TestCorpusExport_PropagatesSourceError(t *testing.T) {
	source := &fakeConversationSource{listErr: errors.New("datastore down")}
	exporter := NewCorpusExportService(source, 10)

	reader := exporter.Export(context.Background(), "user-1")
	defer reader.Close()

	if _, err := io.ReadAll(reader); err == nil {
		t.Fatal("expected read to surface the paging error")
	}
}
