// Package goalflow is a client for the goalflow HTTP API's batch status and
// retrigger endpoints.
package goalflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/resilience"
)

// ErrBatchNotFound is returned when the server has no such batch.
var ErrBatchNotFound = eris.New("goalflow: batch not found")

// Client defines the batch operations used by watchers.
type Client interface {
	// CheckStatus returns the batch's current status view.
	CheckStatus(ctx context.Context, batchID string) (*BatchStatus, error)
	// Retrigger asks the server to resend the webhook the batch waits on.
	Retrigger(ctx context.Context, batchID string) (*RetriggerResponse, error)
}

// BatchStatus mirrors GET /api/check-status/{batch_id}.
type BatchStatus struct {
	BatchID          string    `json:"batch_id"`
	BatchName        string    `json:"batch_name"`
	Status           string    `json:"status"`
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	HasSummary       bool      `json:"has_summary"`
	AwaitingExternal bool      `json:"awaiting_external"`
	PollTargets      []string  `json:"poll_targets"`
}

// RetriggerResponse mirrors POST /api/batches/{batch_id}/retrigger.
type RetriggerResponse struct {
	BatchID      string          `json:"batch_id"`
	Status       string          `json:"status"`
	DryRun       bool            `json:"dev_mode"`
	Notification json.RawMessage `json:"notification,omitempty"`
}

// APIError is a non-2xx answer carrying the server's error body.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
	Committed  bool   `json:"committed"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("goalflow: status %d: %s", e.StatusCode, msg)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) CheckStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	var out BatchStatus
	if err := c.do(ctx, http.MethodGet, "/api/check-status/"+url.PathEscape(batchID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Retrigger(ctx context.Context, batchID string) (*RetriggerResponse, error) {
	var out RetriggerResponse
	if err := c.do(ctx, http.MethodPost, "/api/batches/"+url.PathEscape(batchID)+"/retrigger", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends a bodiless request and decodes a JSON answer into out. Transport
// failures and retryable statuses come back as resilience.TransientError.
func (c *httpClient) do(ctx context.Context, method, path string, out any) error {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "goalflow: create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return resilience.NewTransientError(eris.Wrapf(err, "goalflow: %s %s", method, path), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "goalflow: read response body"), 0)
	}

	if resp.StatusCode == http.StatusNotFound {
		return eris.Wrapf(ErrBatchNotFound, "goalflow: %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrap(err, "goalflow: unmarshal response")
	}
	return nil
}
