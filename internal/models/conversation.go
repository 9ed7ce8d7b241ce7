package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation is a stored chat, partitioned by user. The pipeline only
// reads these; the chat write path lives elsewhere.
type Conversation struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID         string             `bson:"userId" json:"user_id"`
	ConversationID string             `bson:"conversationId" json:"id"`
	Title          string             `bson:"title" json:"title"`
	Messages       []Message          `bson:"messages,omitempty" json:"messages,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updated_at"`
}

// Message is a single chat message inside a conversation
type Message struct {
	MessageID string    `bson:"messageId" json:"id"`
	Role      string    `bson:"role" json:"role"` // "user", "assistant", "system"
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}
