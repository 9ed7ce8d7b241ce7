package services

import (
	"context"
	"fmt"

	"mindgraph/internal/database"
	"mindgraph/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationService is the read side of the conversation store used by the
// corpus export. The chat write path lives in a separate service.
type ConversationService struct {
	mongodb    *database.MongoDB
	collection *mongo.Collection
}

// NewConversationService creates a new conversation read service
func NewConversationService(mongodb *database.MongoDB) *ConversationService {
	return &ConversationService{
		mongodb:    mongodb,
		collection: mongodb.Collection(database.CollectionConversations),
	}
}

// ListConversations returns one page of a user's conversations, oldest first,
// without their message bodies.
func (s *ConversationService) ListConversations(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"messages": 0})

	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var conversations []models.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	return conversations, nil
}

// GetMessages returns the messages of a single conversation
func (s *ConversationService) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var conversation models.Conversation
	err := s.collection.FindOne(
		ctx,
		bson.M{"conversationId": conversationID},
		options.FindOne().SetProjection(bson.M{"messages": 1}),
	).Decode(&conversation)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation messages: %w", err)
	}

	return conversation.Messages, nil
}

// CountConversations returns the number of conversations a user has
func (s *ConversationService) CountConversations(ctx context.Context, userID string) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}
