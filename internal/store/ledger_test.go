package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/goalflow/internal/model"
)

func TestUpsertAnalysisResult_Overwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &model.AnalysisResult{
		AnalysisID:     "an-1",
		AnalyzedAt:     time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
		GoalsAnalyzed:  3,
		PortfolioScore: 71.5,
		Status:         "ok",
		QuickSummary:   "Solid",
		FullAnalysis:   []byte(`{"score":71.5}`),
	}
	require.NoError(t, s.UpsertAnalysisResult(ctx, r))

	r.PortfolioScore = 80
	r.QuickSummary = "Better"
	require.NoError(t, s.UpsertAnalysisResult(ctx, r))

	got, err := s.GetAnalysisResult(ctx, "an-1")
	require.NoError(t, err)
	assert.InDelta(t, 80.0, got.PortfolioScore, 0.001)
	assert.Equal(t, "Better", got.QuickSummary)
	assert.JSONEq(t, `{"score":71.5}`, string(got.FullAnalysis))
	assert.Nil(t, got.BatchID)

	_, err = s.GetAnalysisResult(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestMarkCallbackProcessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.MarkCallbackProcessed(ctx, "evt-1", "daily-tasks")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := s.MarkCallbackProcessed(ctx, "evt-1", "daily-tasks")
	require.NoError(t, err)
	assert.False(t, second)
}

func TestDispatchFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	b := seedBatch(t, s, f, model.BatchStatusAnalyzing)

	require.NoError(t, s.RecordDispatchFailure(ctx, &model.DispatchFailure{
		BatchID: b.ID, Phase: model.PhaseAnalysis, Error: "connection refused", ErrorType: "transient", Attempts: 2,
	}))
	require.NoError(t, s.RecordDispatchFailure(ctx, &model.DispatchFailure{
		BatchID: b.ID, Phase: model.PhaseDailyTasks, Error: "bad gateway", ErrorType: "permanent", Attempts: 1,
	}))

	open, err := s.ListDispatchFailures(ctx, DispatchFailureFilter{BatchID: b.ID, UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	n, err := s.ResolveDispatchFailures(ctx, b.ID, model.PhaseAnalysis)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	open, err = s.ListDispatchFailures(ctx, DispatchFailureFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, model.PhaseDailyTasks, open[0].Phase)

	all, err := s.ListDispatchFailures(ctx, DispatchFailureFilter{BatchID: b.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
