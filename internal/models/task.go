package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task record status values. A record is written when the engine accepts a
// submission and updated on every terminal poller transition, so a restart
// mid-poll leaves a visible "processing" record for the recovery sweep.
const (
	TaskStatusProcessing       = "processing"
	TaskStatusCompleted        = "completed"
	TaskStatusFailed           = "failed"
	TaskStatusTimedOut         = "timed_out"
	TaskStatusAbortedClientErr = "aborted_client_error"
	TaskStatusAbandoned        = "abandoned" // expired by the recovery sweep
)

// GraphTask is the durable record of one generation task
type GraphTask struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	TaskID            string             `bson:"taskId" json:"task_id"` // opaque engine id
	UserID            string             `bson:"userId" json:"user_id"`
	Type              string             `bson:"type" json:"type"` // TaskTypeGraph | TaskTypeSummary
	Status            string             `bson:"status" json:"status"`
	Attempts          int                `bson:"attempts" json:"attempts"`
	ConsecutiveErrors int                `bson:"consecutiveErrors" json:"consecutive_errors"`
	SubmittedAt       time.Time          `bson:"submittedAt" json:"submitted_at"`
	FinishedAt        *time.Time         `bson:"finishedAt,omitempty" json:"finished_at,omitempty"`
	LastError         string             `bson:"lastError,omitempty" json:"last_error,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt" json:"created_at"`
}

// GenerationLease is the per-user exclusivity token for an in-flight
// generation. Acquired with a conditional insert against a unique userId
// index; the TTL on ExpiresAt is the backstop for leaked leases.
type GenerationLease struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID     string             `bson:"userId" json:"user_id"`
	Token      string             `bson:"token" json:"token"`
	AcquiredAt time.Time          `bson:"acquiredAt" json:"acquired_at"`
	ExpiresAt  time.Time          `bson:"expiresAt" json:"expires_at"`
}
