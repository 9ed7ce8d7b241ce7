package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"mindgraph/internal/models"

	"golang.org/x/time/rate"
)

// EngineClient talks HTTP to the external analysis engine. A single shared
// rate limiter caps status/result traffic across all pollers so a burst of
// concurrent tasks cannot hammer the engine.
type EngineClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewEngineClient creates a client for the analysis engine
func NewEngineClient(baseURL string, timeout time.Duration) *EngineClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &EngineClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		// 10 req/s with a small burst is far above any sane poll cadence
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// SubmitAnalysis posts an exported corpus to POST /analysis. The corpus
// reader is streamed as the "data" array of the request body.
func (c *EngineClient) SubmitAnalysis(ctx context.Context, taskType string, corpus io.Reader) (*models.EngineTaskResponse, error) {
	body := io.MultiReader(
		strings.NewReader(`{"data":`),
		corpus,
		strings.NewReader(`}`),
	)

	url := c.baseURL + "/analysis"
	if taskType != "" && taskType != models.TaskTypeGraph {
		url += "?task_type=" + taskType
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var response models.EngineTaskResponse
	if err := c.do(req, "submit", &response); err != nil {
		return nil, err
	}
	if response.TaskID == "" {
		return nil, &models.UpstreamError{Op: "submit", Err: errors.New("engine accepted task without a task_id")}
	}
	return &response, nil
}

// GetTaskStatus polls GET /status/{task_id}
func (c *EngineClient) GetTaskStatus(ctx context.Context, taskID string) (*models.EngineTaskResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	var response models.EngineTaskResponse
	if err := c.do(req, "status", &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetTaskResult fetches GET /result/{task_id} for a completed task
func (c *EngineClient) GetTaskResult(ctx context.Context, taskID string) (*models.EngineResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/result/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create result request: %w", err)
	}

	var result models.EngineResult
	if err := c.do(req, "result", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do executes a request and decodes the JSON response, classifying failures
// into the upstream error taxonomy.
func (c *EngineClient) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return &models.UpstreamTimeout{Op: op, Err: err}
		}
		return &models.UpstreamError{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little of the body for the error message
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &models.UpstreamError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode >= 500,
			Err:        fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.UpstreamError{Op: op, Retryable: true, Err: fmt.Errorf("failed to decode engine response: %w", err)}
	}
	return nil
}
