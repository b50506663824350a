package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/resilience"
)

// sequence returns the given statuses in order, repeating the last one.
func sequence(statuses ...model.BatchStatus) (FetchFunc, *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context) (model.BatchStatus, error) {
		n := int(calls.Add(1))
		if n > len(statuses) {
			n = len(statuses)
		}
		return statuses[n-1], nil
	}, &calls
}

func TestRun_ResolvesOnTarget(t *testing.T) {
	fetch, calls := sequence(model.BatchStatusAnalyzing, model.BatchStatusAnalyzing, model.BatchStatusReviewPending)
	p := New(WithInterval(time.Millisecond))
	assert.Equal(t, Idle, p.State())

	r := p.Run(context.Background(), fetch, model.BatchStatusReviewPending)
	assert.Equal(t, Resolved, r.State)
	assert.Equal(t, model.BatchStatusReviewPending, r.Status)
	assert.Equal(t, 3, r.Attempts)
	assert.NoError(t, r.Err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, Resolved, p.State())
}

func TestRun_AnyTargetResolves(t *testing.T) {
	fetch, _ := sequence(model.BatchStatusCompleted)
	r := New(WithInterval(time.Millisecond)).Run(context.Background(), fetch, model.BatchStatusActive, model.BatchStatusCompleted)
	assert.Equal(t, Resolved, r.State)
	assert.Equal(t, 1, r.Attempts)
}

func TestRun_TimesOutAfterCap(t *testing.T) {
	fetch, calls := sequence(model.BatchStatusKPILoading)
	r := New(WithInterval(time.Millisecond), WithMaxAttempts(4)).Run(context.Background(), fetch, model.BatchStatusKPIAssignmentPending)
	assert.Equal(t, TimedOut, r.State)
	assert.Equal(t, model.BatchStatusKPILoading, r.Status)
	assert.Equal(t, 4, r.Attempts)
	assert.NoError(t, r.Err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestRun_TransientErrorsCountAsAttempts(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context) (model.BatchStatus, error) {
		if calls.Add(1) <= 2 {
			return "", resilience.NewTransientError(errors.New("service unavailable"), 503)
		}
		return model.BatchStatusReviewPending, nil
	}
	var seen []int
	p := New(WithInterval(time.Millisecond), WithMaxAttempts(5), WithObserver(func(attempt int, _ model.BatchStatus, _ error) {
		seen = append(seen, attempt)
	}))

	r := p.Run(context.Background(), fetch, model.BatchStatusReviewPending)
	assert.Equal(t, Resolved, r.State)
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestRun_TransientErrorsExhaustCap(t *testing.T) {
	fetch := func(context.Context) (model.BatchStatus, error) {
		return "", resilience.NewTransientError(errors.New("bad gateway"), 502)
	}
	r := New(WithInterval(time.Millisecond), WithMaxAttempts(2)).Run(context.Background(), fetch, model.BatchStatusActive)
	assert.Equal(t, TimedOut, r.State)
	assert.Equal(t, 2, r.Attempts)
}

func TestRun_PermanentErrorCancels(t *testing.T) {
	notFound := errors.New("batch not found")
	fetch := func(context.Context) (model.BatchStatus, error) { return "", notFound }

	p := New(WithInterval(time.Millisecond))
	r := p.Run(context.Background(), fetch, model.BatchStatusActive)
	assert.Equal(t, Cancelled, r.State)
	assert.ErrorIs(t, r.Err, notFound)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, Cancelled, p.State())
}

func TestRun_ContextCancelStopsWatching(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch, calls := sequence(model.BatchStatusAnalyzing)

	done := make(chan Result, 1)
	p := New(WithInterval(time.Hour))
	go func() { done <- p.Run(ctx, fetch, model.BatchStatusReviewPending) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case r := <-done:
		assert.Equal(t, Cancelled, r.State)
		assert.ErrorIs(t, r.Err, context.Canceled)
		assert.Equal(t, model.BatchStatusAnalyzing, r.Status)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}

func TestNew_IgnoresNonPositiveOptions(t *testing.T) {
	p := New(WithInterval(0), WithMaxAttempts(-1))
	assert.Equal(t, defaultInterval, p.interval)
	assert.Equal(t, defaultMaxAttempts, p.maxAttempts)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "idle", Idle.String())
	assert.True(t, Cancelled.Done())
	assert.False(t, Polling.Done())
}
