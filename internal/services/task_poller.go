package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"mindgraph/internal/logging"
	"mindgraph/internal/models"
)

// SnapshotSink is the persistence surface the poller hands completed
// results to
type SnapshotSink interface {
	PersistSnapshot(ctx context.Context, userID string, snapshot *models.GraphSnapshot) error
	SaveSummary(ctx context.Context, userID string, report map[string]interface{}) error
	MarkGenerationFailed(ctx context.Context, userID string) error
}

// TaskPoller drives submitted tasks to a terminal state:
//
//	SUBMITTED → (polling) → COMPLETED | FAILED | TIMED_OUT | ABORTED_BY_CLIENT_ERROR
//
// Each task gets exactly one detached poll loop; no caller blocks on it.
// Every terminal transition releases the user's registry slot and updates
// the durable task record. Transient poll errors count only against the
// consecutive-error ceiling and reset on any successful poll; a 4xx poll
// error aborts immediately because the task is gone or was malformed.
type TaskPoller struct {
	engine   EngineAPI
	mapper   *SnapshotMapper
	store    SnapshotSink
	tasks    TaskStore
	registry TaskRegistry
	events   *PubSubService
	metrics  *Metrics
	clock    Clock

	interval       time.Duration
	maxPolls       int
	maxConsecutive int

	wg sync.WaitGroup
}

// NewTaskPoller creates a poller. events and metrics may be nil.
func NewTaskPoller(engine EngineAPI, mapper *SnapshotMapper, store SnapshotSink, tasks TaskStore, registry TaskRegistry,
	events *PubSubService, metrics *Metrics, interval time.Duration, maxPolls, maxConsecutive int, clock Clock) *TaskPoller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxPolls <= 0 {
		maxPolls = 120
	}
	if maxConsecutive <= 0 {
		maxConsecutive = 5
	}
	if clock == nil {
		clock = SystemClock
	}
	return &TaskPoller{
		engine:         engine,
		mapper:         mapper,
		store:          store,
		tasks:          tasks,
		registry:       registry,
		events:         events,
		metrics:        metrics,
		clock:          clock,
		interval:       interval,
		maxPolls:       maxPolls,
		maxConsecutive: maxConsecutive,
	}
}

// Start launches the detached poll loop for one task. It returns
// immediately; the loop runs until a terminal transition.
func (p *TaskPoller) Start(ctx context.Context, task *models.GraphTask) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, task)
	}()
}

// Wait blocks until all poll loops have reached a terminal state. Used by
// graceful shutdown and tests.
func (p *TaskPoller) Wait() {
	p.wg.Wait()
}

func (p *TaskPoller) run(ctx context.Context, task *models.GraphTask) {
	logger := logging.WithTask(task.TaskID, task.Type, task.UserID)
	logger.Info("poller started", "interval", p.interval)

	polls := 0
	consecutiveErrors := 0

	for {
		if polls >= p.maxPolls {
			logger.Warn("poll ceiling reached, giving up on task", "polls", polls)
			p.finish(ctx, task, models.TaskStatusTimedOut, "poll ceiling reached")
			return
		}

		select {
		case <-ctx.Done():
			// Shutdown: leave the record processing for the recovery sweep
			logger.Warn("poller stopped before task settled")
			return
		case <-p.clock.After(p.interval):
		}
		polls++
		p.metrics.ObservePoll()

		status, err := p.engine.GetTaskStatus(ctx, task.TaskID)
		if err != nil {
			var upstream *models.UpstreamError
			if errors.As(err, &upstream) && upstream.IsClientError() {
				// Task disappeared or was malformed; polling further is futile
				logger.Error("engine rejected status poll", "status", upstream.StatusCode, "error", err)
				p.finish(ctx, task, models.TaskStatusAbortedClientErr, err.Error())
				return
			}

			consecutiveErrors++
			logger.Warn("status poll failed", "consecutive_errors", consecutiveErrors, "error", err)
			if consecutiveErrors >= p.maxConsecutive {
				p.finish(ctx, task, models.TaskStatusAbortedClientErr, err.Error())
				return
			}
			continue
		}
		consecutiveErrors = 0

		switch status.Status {
		case models.EngineStatusCompleted:
			p.complete(ctx, task)
			return
		case models.EngineStatusFailed:
			logger.Warn("engine reported task failed")
			p.finish(ctx, task, models.TaskStatusFailed, "engine reported failure")
			return
		default:
			// Still processing, keep polling
		}
	}
}

// complete fetches and persists the result. A failure inside this step is a
// store-level concern, not a poll-level one: it is logged, the stats marker
// records the failed generation, and the task still terminates as completed
// so the registry slot is freed.
func (p *TaskPoller) complete(ctx context.Context, task *models.GraphTask) {
	logger := logging.WithTask(task.TaskID, task.Type, task.UserID)

	result, err := p.engine.GetTaskResult(ctx, task.TaskID)
	if err != nil {
		logger.Error("failed to fetch task result", "error", err)
		p.markFailed(ctx, task)
		p.finish(ctx, task, models.TaskStatusCompleted, err.Error())
		return
	}

	switch task.Type {
	case models.TaskTypeSummary:
		if result.Summary == nil {
			logger.Error("summary task returned no summary payload")
			p.markFailed(ctx, task)
			p.finish(ctx, task, models.TaskStatusCompleted, "missing summary payload")
			return
		}
		if err := p.store.SaveSummary(ctx, task.UserID, result.Summary); err != nil {
			logger.Error("failed to save summary", "error", err)
			p.markFailed(ctx, task)
			p.finish(ctx, task, models.TaskStatusCompleted, err.Error())
			return
		}
	default:
		snapshot, err := p.mapper.Map(result, task.UserID)
		if err != nil {
			logger.Error("failed to map engine result", "error", err)
			p.metrics.ObservePersist(false)
			p.markFailed(ctx, task)
			p.finish(ctx, task, models.TaskStatusCompleted, err.Error())
			return
		}
		if err := p.store.PersistSnapshot(ctx, task.UserID, snapshot); err != nil {
			logger.Error("failed to persist snapshot", "error", err)
			p.metrics.ObservePersist(false)
			p.markFailed(ctx, task)
			p.finish(ctx, task, models.TaskStatusCompleted, err.Error())
			return
		}
		p.metrics.ObservePersist(true)
	}

	logger.Info("task completed")
	p.finish(ctx, task, models.TaskStatusCompleted, "")
}

// markFailed flips the user-visible stats marker; best effort
func (p *TaskPoller) markFailed(ctx context.Context, task *models.GraphTask) {
	if err := p.store.MarkGenerationFailed(ctx, task.UserID); err != nil {
		logging.WithTask(task.TaskID, task.Type, task.UserID).Warn("failed to mark generation failed", "error", err)
	}
}

// finish performs the terminal transition: stats marker for failure states,
// durable record update, lifecycle event, registry release. Release always
// runs last so a half-finished terminal step cannot leak the slot.
func (p *TaskPoller) finish(ctx context.Context, task *models.GraphTask, status, lastError string) {
	logger := logging.WithTask(task.TaskID, task.Type, task.UserID)

	if status == models.TaskStatusFailed || status == models.TaskStatusTimedOut || status == models.TaskStatusAbortedClientErr {
		p.markFailed(ctx, task)
	}

	if err := p.tasks.SetStatus(ctx, task.TaskID, status, lastError); err != nil {
		logger.Warn("failed to update task record", "status", status, "error", err)
	}

	p.events.PublishUserEvent(ctx, task.UserID, taskEventType(status), map[string]interface{}{
		"task_id":   task.TaskID,
		"task_type": task.Type,
		"status":    status,
	})
	p.metrics.ObserveTaskFinished(status, p.clock.Now().Sub(task.SubmittedAt))

	if err := p.registry.Release(ctx, task.UserID); err != nil {
		logger.Error("failed to release registry slot", "error", err)
	}
}

func taskEventType(status string) string {
	if status == models.TaskStatusCompleted {
		return "graph.generation.completed"
	}
	return "graph.generation.failed"
}
