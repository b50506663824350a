// Package poller watches a batch until it reaches one of a set of target
// statuses.
package poller

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/resilience"
)

const (
	defaultInterval    = 3 * time.Second
	defaultMaxAttempts = 60
)

// State is the poller's lifecycle position.
type State int

const (
	Idle State = iota
	Polling
	Resolved
	TimedOut
	Cancelled
)

func (s State) String() string {
	switch s {
	case Polling:
		return "polling"
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Done reports whether s is final.
func (s State) Done() bool {
	return s == Resolved || s == TimedOut || s == Cancelled
}

// FetchFunc reads the current status of the watched batch.
type FetchFunc func(ctx context.Context) (model.BatchStatus, error)

// Result is how a Run ended. Err is set only for Cancelled.
type Result struct {
	State    State
	Status   model.BatchStatus
	Attempts int
	Err      error
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the delay between fetches.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts overrides the fetch cap.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithObserver is called after every fetch.
func WithObserver(fn func(attempt int, status model.BatchStatus, err error)) Option {
	return func(p *Poller) {
		p.observe = fn
	}
}

// Poller is a single-use status watcher.
type Poller struct {
	interval    time.Duration
	maxAttempts int
	observe     func(int, model.BatchStatus, error)

	mu    sync.Mutex
	state State
}

// New returns an idle Poller.
func New(opts ...Option) *Poller {
	p := &Poller{interval: defaultInterval, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current state. Safe to call while Run is in progress.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) set(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Poller) finish(r Result) Result {
	p.set(r.State)
	return r
}

// Run fetches until the status is one of targets, the attempt cap is hit,
// ctx is cancelled or fetch fails permanently. Transient fetch errors use up
// an attempt and polling continues. Cancelling ctx only stops the watch.
func (p *Poller) Run(ctx context.Context, fetch FetchFunc, targets ...model.BatchStatus) Result {
	p.set(Polling)
	var last model.BatchStatus
	for attempt := 1; ; attempt++ {
		status, err := fetch(ctx)
		if p.observe != nil {
			p.observe(attempt, status, err)
		}
		switch {
		case ctx.Err() != nil:
			return p.finish(Result{State: Cancelled, Status: last, Attempts: attempt, Err: ctx.Err()})
		case err != nil && !resilience.IsTransient(err):
			return p.finish(Result{State: Cancelled, Status: last, Attempts: attempt, Err: err})
		case err != nil:
			zap.L().Debug("poll attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		default:
			last = status
			if slices.Contains(targets, status) {
				return p.finish(Result{State: Resolved, Status: status, Attempts: attempt})
			}
		}

		if attempt >= p.maxAttempts {
			return p.finish(Result{State: TimedOut, Status: last, Attempts: attempt})
		}

		t := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return p.finish(Result{State: Cancelled, Status: last, Attempts: attempt, Err: ctx.Err()})
		case <-t.C:
		}
	}
}
