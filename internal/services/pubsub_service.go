package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// PubSubService publishes graph lifecycle events over Redis so other
// instances (and the frontend's event gateway) learn when a generation
// starts or settles. A nil receiver is a no-op, so the server runs without
// Redis configured.
type PubSubService struct {
	redis      *RedisService
	instanceID string
}

// PubSubMessage is the envelope published on user channels
type PubSubMessage struct {
	Type       string                 `json:"type"`
	UserID     string                 `json:"userId"`
	InstanceID string                 `json:"instanceId"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// NewPubSubService creates a pub/sub publisher
func NewPubSubService(redisService *RedisService, instanceID string) *PubSubService {
	return &PubSubService{
		redis:      redisService,
		instanceID: instanceID,
	}
}

// PublishUserEvent publishes an event on the user's channel. Failures are
// logged, never propagated: events are advisory.
func (s *PubSubService) PublishUserEvent(ctx context.Context, userID, eventType string, payload map[string]interface{}) {
	if s == nil || s.redis == nil {
		return
	}

	message := PubSubMessage{
		Type:       eventType,
		UserID:     userID,
		InstanceID: s.instanceID,
		Payload:    payload,
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to marshal event %s: %v", eventType, err)
		return
	}

	channel := fmt.Sprintf("user:%s:graph", userID)
	if err := s.redis.Client().Publish(ctx, channel, data).Err(); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to publish %s to %s: %v", eventType, channel, err)
	}
}
