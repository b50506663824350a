package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/goalflow/internal/model"
)

func TestCreateGoals_Defaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	g := seedGoal(t, s, f, "Revenue", "1.500.000.000")
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, model.DefaultTargetUnit, g.TargetUnit)
	assert.Equal(t, model.GoalStatusDraft, g.Status)

	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "1500000000", got.TargetValue.String())
	assert.Equal(t, "2025-01-01", got.StartDate.String())
	assert.Equal(t, "2025-12-31", got.EndDate.String())
	assert.Nil(t, got.BatchID)
}

func TestGoal_AmountBeyondInt64(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	g := seedGoal(t, s, f, "Huge", "123456789012345678901234567890")
	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", got.TargetValue.String())
}

func TestStampAndHeldGoals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	g1 := seedGoal(t, s, f, "Revenue", "100")
	g2 := seedGoal(t, s, f, "Retention", "90")
	free := seedGoal(t, s, f, "Hiring", "5")

	inflight := seedBatch(t, s, f, model.BatchStatusAnalyzing)
	n, err := s.StampGoals(ctx, inflight.ID, []string{g1.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	done := seedBatch(t, s, f, model.BatchStatusActive)
	_, err = s.StampGoals(ctx, done.ID, []string{g2.ID})
	require.NoError(t, err)

	held, err := s.HeldGoals(ctx, []string{g1.ID, g2.ID, free.ID})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{g1.ID: inflight.ID}, held)

	stamped, err := s.ListGoals(ctx, GoalFilter{BatchID: inflight.ID})
	require.NoError(t, err)
	require.Len(t, stamped, 1)
	assert.Equal(t, model.GoalStatusAnalyzing, stamped[0].Status)
	require.NotNil(t, stamped[0].BatchID)
	assert.Equal(t, inflight.ID, *stamped[0].BatchID)
}

func TestGoalsByIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	g1 := seedGoal(t, s, f, "A", "1")
	g2 := seedGoal(t, s, f, "B", "2")

	got, err := s.GoalsByIDs(ctx, []string{g2.ID, "missing", g1.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Name)
	assert.Equal(t, "B", got[1].Name)

	none, err := s.GoalsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGoalSummaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	g := seedGoal(t, s, f, "Revenue", "1.000")
	b := seedBatch(t, s, f, model.BatchStatusAnalyzing)
	_, err := s.StampGoals(ctx, b.ID, []string{g.ID})
	require.NoError(t, err)

	require.NoError(t, s.InsertKPI(ctx, &model.ProposedKPI{GoalID: g.ID, Description: "Close deals", IsApproved: true}))
	require.NoError(t, s.InsertKPI(ctx, &model.ProposedKPI{GoalID: g.ID, Description: "Book demos"}))

	sums, err := s.GoalSummaries(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	gs := sums[0]
	assert.Equal(t, "Revenue", gs.Name)
	assert.Equal(t, "Sales", gs.BusinessUnitName)
	require.NotNil(t, gs.BusinessUnitDescription)
	assert.Equal(t, "Regional sales", *gs.BusinessUnitDescription)
	assert.Equal(t, "Ayu", gs.CreatorName)
	require.NotNil(t, gs.CreatorRole)
	assert.Equal(t, "Manager", *gs.CreatorRole)
	assert.Equal(t, 2, gs.KPICount)
	assert.Equal(t, 1, gs.KPIApproved)
}
