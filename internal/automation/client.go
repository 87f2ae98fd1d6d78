// Package automation defines the capability interface for the external
// browser-automation worker that executes contest submissions, plus its HTTP
// implementation. The orchestrator only sees the narrow submit/status/cancel
// surface so it can be tested against a fake.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// JobState is the worker's view of a job.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// SubmitRequest describes a contest submission.
type SubmitRequest struct {
	TicketReference string   `json:"ticket_reference"`
	IssuerName      string   `json:"issuer_name"`
	Reason          string   `json:"reason"`
	Detail          string   `json:"detail"`
	EvidenceRefs    []string `json:"evidence_refs"`
}

// StatusReport is the worker's progress/outcome report.
type StatusReport struct {
	State        JobState `json:"status"`
	Progress     int      `json:"progress"`
	Error        string   `json:"error,omitempty"`
	ResultRef    string   `json:"result_ref,omitempty"`
	ArtefactRefs []string `json:"artefact_refs,omitempty"`
}

// Client is the worker capability interface. All calls block on network I/O
// with a bounded timeout; any returned error is a transport-level failure
// and must never be interpreted as a job outcome.
type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Status(ctx context.Context, workerJobID string) (*StatusReport, error)
	Cancel(ctx context.Context, workerJobID string) error
}

// HTTPClient talks to the worker over its JSON HTTP API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPClient constructs a client with a bounded request timeout.
func NewHTTPClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit hands a contest job to the worker and returns its job id.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("worker accepted submission without a job id")
	}
	return resp.JobID, nil
}

// Status fetches the worker's report for a job.
func (c *HTTPClient) Status(ctx context.Context, workerJobID string) (*StatusReport, error) {
	var report StatusReport
	if err := c.do(ctx, http.MethodGet, "/jobs/"+workerJobID, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Cancel asks the worker to abandon a job. Best effort; callers log failures
// rather than propagate them.
func (c *HTTPClient) Cancel(ctx context.Context, workerJobID string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+workerJobID+"/cancel", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("worker request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("worker returned non-2xx",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("worker responded %d: %s", resp.StatusCode, string(snippet))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
