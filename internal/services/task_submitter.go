package services

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"mindgraph/internal/models"
)

// CorpusExporter produces the streamed corpus body for one submission
// attempt. A streamed body cannot be replayed, so every attempt asks for a
// fresh stream.
type CorpusExporter interface {
	Export(ctx context.Context, userID string) io.ReadCloser
}

// EngineAPI is the protocol surface of the external analysis engine
type EngineAPI interface {
	SubmitAnalysis(ctx context.Context, taskType string, corpus io.Reader) (*models.EngineTaskResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*models.EngineTaskResponse, error)
	GetTaskResult(ctx context.Context, taskID string) (*models.EngineResult, error)
}

// TaskSubmitter posts a user's corpus to the engine with bounded retries.
// Transient failures back off linearly (attempt * base); a 4xx-class
// rejection aborts immediately because retrying a malformed payload cannot
// succeed. On acceptance the durable task record is written before the task
// id is returned.
type TaskSubmitter struct {
	exporter    CorpusExporter
	engine      EngineAPI
	tasks       TaskStore
	maxAttempts int
	backoffBase time.Duration
	clock       Clock
}

// NewTaskSubmitter creates a task submitter
func NewTaskSubmitter(exporter CorpusExporter, engine EngineAPI, tasks TaskStore, maxAttempts int, backoffBase time.Duration, clock Clock) *TaskSubmitter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	if clock == nil {
		clock = SystemClock
	}
	return &TaskSubmitter{
		exporter:    exporter,
		engine:      engine,
		tasks:       tasks,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		clock:       clock,
	}
}

// Submit exports the user's corpus and posts it to the engine, returning the
// accepted task id. The caller does not block on task completion.
func (s *TaskSubmitter) Submit(ctx context.Context, userID, taskType string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		corpus := s.exporter.Export(ctx, userID)
		response, err := s.engine.SubmitAnalysis(ctx, taskType, corpus)
		corpus.Close()

		if err == nil {
			task := &models.GraphTask{
				TaskID:      response.TaskID,
				UserID:      userID,
				Type:        taskType,
				Status:      models.TaskStatusProcessing,
				SubmittedAt: s.clock.Now(),
			}
			if insertErr := s.tasks.Insert(ctx, task); insertErr != nil {
				log.Printf("⚠️ [SUBMITTER] Failed to persist task record %s: %v", response.TaskID, insertErr)
			}
			log.Printf("📤 [SUBMITTER] Task %s accepted for user %s (attempt %d)", response.TaskID, userID, attempt)
			return response.TaskID, nil
		}

		lastErr = err

		var upstream *models.UpstreamError
		if errors.As(err, &upstream) && upstream.IsClientError() {
			// Client-side problem, retrying will not fix it
			log.Printf("❌ [SUBMITTER] Engine rejected payload for user %s (status %d), not retrying", userID, upstream.StatusCode)
			return "", err
		}

		if attempt < s.maxAttempts {
			wait := time.Duration(attempt) * s.backoffBase
			log.Printf("⚠️ [SUBMITTER] Submit attempt %d/%d failed for user %s: %v (retrying in %v)", attempt, s.maxAttempts, userID, err, wait)
			select {
			case <-s.clock.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	log.Printf("❌ [SUBMITTER] All %d submit attempts exhausted for user %s", s.maxAttempts, userID)
	return "", lastErr
}
