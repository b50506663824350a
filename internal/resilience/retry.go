package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy bounds how a call is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first. Default 2.
	Attempts int

	// Backoff is the delay before the first retry. Default 250ms.
	Backoff time.Duration

	// MaxBackoff caps any single delay. Default 5s.
	MaxBackoff time.Duration

	// Jitter is the ± fraction applied to each delay. Default 0.2.
	Jitter float64

	// Retryable overrides IsTransient when set.
	Retryable func(err error) bool

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is the policy used for workflow webhooks.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   2,
		Backoff:    250 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
		Jitter:     0.2,
	}
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 2
	}
	if p.Backoff <= 0 {
		p.Backoff = 250 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, the policy's
// attempts run out, or ctx is done. It returns how many attempts ran
// alongside the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (int, error) {
	p = p.normalized()

	var err error
	attempt := 0
	for attempt < p.Attempts {
		attempt++
		if err = fn(ctx); err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt == p.Attempts {
			return attempt, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(p.delay(attempt - 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		case <-timer.C:
		}
	}
	return attempt, err
}

func (p Policy) delay(retry int) time.Duration {
	d := float64(p.Backoff) * math.Pow(2, float64(retry))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// LogRetries returns an OnRetry hook that logs through the global logger.
func LogRetries(target string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying outbound call",
			zap.String("target", target),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
