package jobs

import (
	"context"
	"log"
	"time"

	"mindgraph/internal/models"
	"mindgraph/internal/services"
)

// TaskRecoveryJob expires generation tasks orphaned by a process restart.
// A task that is still "processing" long after its poll deadline has no
// poller goroutine attached to it anymore; this sweep marks the record
// abandoned and releases the user's generation lease so new submissions
// are not blocked until the lease TTL fires.
type TaskRecoveryJob struct {
	tasks    services.TaskStore
	registry services.TaskRegistry
	interval time.Duration
	deadline time.Duration
}

// NewTaskRecoveryJob creates a recovery sweep. deadline should exceed the
// poller's worst case (pollInterval * maxPolls) with margin.
func NewTaskRecoveryJob(tasks services.TaskStore, registry services.TaskRegistry, interval, deadline time.Duration) *TaskRecoveryJob {
	return &TaskRecoveryJob{
		tasks:    tasks,
		registry: registry,
		interval: interval,
		deadline: deadline,
	}
}

// Run expires all orphaned processing tasks
func (j *TaskRecoveryJob) Run(ctx context.Context) error {
	processing, err := j.tasks.ListByStatus(ctx, models.TaskStatusProcessing)
	if err != nil {
		log.Printf("❌ [RECOVERY] Failed to list processing tasks: %v", err)
		return err
	}

	cutoff := time.Now().Add(-j.deadline)
	expired := 0
	for _, task := range processing {
		if task.SubmittedAt.After(cutoff) {
			continue
		}

		if err := j.tasks.SetStatus(ctx, task.TaskID, models.TaskStatusAbandoned, "expired by recovery sweep"); err != nil {
			log.Printf("❌ [RECOVERY] Failed to expire task %s: %v", task.TaskID, err)
			continue
		}
		if err := j.registry.Release(ctx, task.UserID); err != nil {
			log.Printf("⚠️  [RECOVERY] Failed to release lease for user %s: %v", task.UserID, err)
		}
		expired++
		log.Printf("🧹 [RECOVERY] Expired orphaned task %s (user %s, submitted %s)",
			task.TaskID, task.UserID, task.SubmittedAt.Format(time.RFC3339))
	}

	if expired > 0 {
		log.Printf("✅ [RECOVERY] Sweep complete: expired %d of %d processing tasks", expired, len(processing))
	}
	return nil
}

// GetNextRunTime returns when the sweep should run next
func (j *TaskRecoveryJob) GetNextRunTime() time.Time {
	return time.Now().Add(j.interval)
}
