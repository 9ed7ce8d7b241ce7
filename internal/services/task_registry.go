package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"mindgraph/internal/database"
	"mindgraph/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TaskRegistry enforces at most one in-flight generation task per user
type TaskRegistry interface {
	TryAcquire(ctx context.Context, userID string) (bool, error)
	Release(ctx context.Context, userID string) error
}

// LeaseRegistry implements TaskRegistry with a lease document in the shared
// datastore, so multiple server instances cannot start duplicate generations
// for the same user. Acquisition is a conditional insert against the unique
// userId index; the TTL index on expiresAt reaps leases leaked by a crash.
type LeaseRegistry struct {
	collection *mongo.Collection
	ttl        time.Duration
}

// NewLeaseRegistry creates a lease-backed task registry
func NewLeaseRegistry(mongodb *database.MongoDB) *LeaseRegistry {
	return &LeaseRegistry{
		collection: mongodb.Collection(database.CollectionGraphLeases),
		ttl:        time.Duration(database.LeaseExpirySeconds) * time.Second,
	}
}

// TryAcquire attempts to take the user's generation slot. Returns false when
// another task already holds it.
func (r *LeaseRegistry) TryAcquire(ctx context.Context, userID string) (bool, error) {
	now := time.Now()
	lease := models.GenerationLease{
		UserID:     userID,
		Token:      uuid.NewString(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(r.ttl),
	}

	_, err := r.collection.InsertOne(ctx, lease)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire generation lease: %w", err)
	}

	log.Printf("🔒 [REGISTRY] Acquired generation lease for user %s", userID)
	return true, nil
}

// Release frees the user's generation slot. Releasing a slot that is not
// held is a no-op, so terminal paths can release unconditionally.
func (r *LeaseRegistry) Release(ctx context.Context, userID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"userId": userID})
	if err != nil {
		return fmt.Errorf("failed to release generation lease: %w", err)
	}
	if result.DeletedCount > 0 {
		log.Printf("🔓 [REGISTRY] Released generation lease for user %s", userID)
	}
	return nil
}
