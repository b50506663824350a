// Package dispatch posts JSON payloads to the workflow engine's webhooks.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/resilience"
)

// ErrNotConfigured is returned when a phase has no webhook URL.
var ErrNotConfigured = eris.New("dispatch: webhook url not configured")

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 1 << 20

// snippetLen caps the upstream body carried in errors and logs.
const snippetLen = 500

// Options configures a Dispatcher.
type Options struct {
	URLs       map[model.Phase]string
	Timeout    time.Duration
	Policy     resilience.Policy
	RatePerSec float64

	// Client overrides the default HTTP client. Its timeout is left alone.
	Client *http.Client
}

// Dispatcher sends one payload per call, retrying transient failures.
type Dispatcher struct {
	client  *http.Client
	urls    map[model.Phase]string
	policy  resilience.Policy
	limiter *rate.Limiter
}

// New builds a Dispatcher. Unset options fall back to a 5s timeout, the
// default retry policy and 5 requests per second.
func New(opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Policy.Attempts == 0 {
		opts.Policy = resilience.DefaultPolicy()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	urls := make(map[model.Phase]string, len(opts.URLs))
	for p, u := range opts.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls[p] = u
		}
	}
	burst := int(opts.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Dispatcher{
		client:  client,
		urls:    urls,
		policy:  opts.Policy,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), burst),
	}
}

// Configured reports whether phase has a webhook URL.
func (d *Dispatcher) Configured(phase model.Phase) bool {
	return d.urls[phase] != ""
}

// URL returns the webhook URL of phase, or "".
func (d *Dispatcher) URL(phase model.Phase) string {
	return d.urls[phase]
}

// Response is a successful webhook answer.
type Response struct {
	StatusCode int             `json:"status"`
	Body       json.RawMessage `json:"body"`
	Attempts   int             `json:"attempts"`
}

// StatusError is an engine answer that cannot count as success: a non-2xx
// status or an HTML page where JSON was expected.
type StatusError struct {
	StatusCode int
	Body       string
	HTML       bool
}

func (e *StatusError) Error() string {
	if e.HTML {
		return fmt.Sprintf("dispatch: webhook returned an HTML page (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("dispatch: webhook returned status %d", e.StatusCode)
}

// Failure wraps a failed send with the number of attempts made.
type Failure struct {
	Attempts int
	Err      error
}

func (f *Failure) Error() string { return f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// AttemptsOf returns the attempt count carried by a send error, or 1.
func AttemptsOf(err error) int {
	var f *Failure
	if errors.As(err, &f) {
		return f.Attempts
	}
	return 1
}

// Send posts payload to phase's webhook. Failures come back as
// apperr.KindUnavailable (transport) or apperr.KindBadGateway (bad answer).
func (d *Dispatcher) Send(ctx context.Context, phase model.Phase, payload any) (*Response, error) {
	url := d.urls[phase]
	if url == "" {
		return nil, eris.Wrapf(ErrNotConfigured, "phase %s", phase)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrapf(err, "dispatch: marshal %s payload", phase)
	}

	policy := d.policy
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetries(string(phase))
	}

	var resp *Response
	attempts, err := resilience.Do(ctx, policy, func(ctx context.Context) error {
		r, err := d.post(ctx, url, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, &Failure{Attempts: attempts, Err: classify(phase, err)}
	}
	resp.Attempts = attempts
	zap.L().Info("webhook dispatched",
		zap.String("phase", string(phase)),
		zap.Int("status", resp.StatusCode),
		zap.Int("attempts", attempts),
	)
	return resp, nil
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) (*Response, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "dispatch: rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "dispatch: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := d.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "dispatch: post")
	}
	defer res.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "dispatch: read body"), 0)
	}
	text := strings.TrimSpace(string(raw))
	html := looksLikeHTML(text)

	if res.StatusCode < 200 || res.StatusCode > 299 || html {
		se := &StatusError{StatusCode: res.StatusCode, Body: snippet(text), HTML: html}
		if !html && resilience.IsTransientHTTPStatus(res.StatusCode) {
			return nil, resilience.NewTransientError(se, res.StatusCode)
		}
		return nil, se
	}
	return &Response{StatusCode: res.StatusCode, Body: normalizeBody(text)}, nil
}

// classify turns a send error into its apperr kind and logs it.
func classify(phase model.Phase, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		zap.L().Error("webhook returned an unusable response",
			zap.String("phase", string(phase)),
			zap.Int("status", se.StatusCode),
			zap.Bool("html", se.HTML),
			zap.String("body", se.Body),
		)
		detail := se.Body
		if se.HTML {
			detail = "webhook returned an HTML page instead of JSON; check that the workflow exists and is active"
		}
		return apperr.BadGateway(err, "bad gateway response").WithDetail(detail)
	}
	zap.L().Error("webhook unreachable", zap.String("phase", string(phase)), zap.Error(err))
	return apperr.Unavailable(err, "network error")
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}

// normalizeBody returns the answer as JSON. An empty body is a success and
// plain text is wrapped as {"message": text}.
func normalizeBody(text string) json.RawMessage {
	if text == "" {
		return json.RawMessage(`{"message":"workflow triggered (empty response)"}`)
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	wrapped, _ := json.Marshal(map[string]string{"message": text})
	return wrapped
}

func snippet(s string) string {
	if len(s) <= snippetLen {
		return s
	}
	return s[:snippetLen] + "..."
}
