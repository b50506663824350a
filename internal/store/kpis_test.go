package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
)

func TestAssignKPI_MembershipChecked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)

	b := seedBatch(t, s, f, model.BatchStatusKPIAssignmentPending)
	g := seedGoal(t, s, f, "Revenue", "1.000")
	_, err := s.StampGoals(ctx, b.ID, []string{g.ID})
	require.NoError(t, err)
	viaGoal := &model.ProposedKPI{GoalID: g.ID, Description: "Close deals"}
	require.NoError(t, s.InsertKPI(ctx, viaGoal))

	loose := seedGoal(t, s, f, "Other", "1")
	outside := &model.ProposedKPI{GoalID: loose.ID, Description: "Unrelated"}
	require.NoError(t, s.InsertKPI(ctx, outside))

	require.NoError(t, s.AssignKPI(ctx, b.ID, viaGoal.ID, f.user.ID))
	got, err := s.GetKPI(ctx, viaGoal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.KPIStatusAssigned, got.Status)
	assert.True(t, got.IsApproved)
	require.NotNil(t, got.AssignedUserID)
	assert.Equal(t, f.user.ID, *got.AssignedUserID)

	err = s.AssignKPI(ctx, b.ID, outside.ID, f.user.ID)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Message, outside.ID)
}

func TestBatchKPIs_WithContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	b := seedBatch(t, s, f, model.BatchStatusKPIAssignmentPending)
	g := seedGoal(t, s, f, "Revenue", "1.000")

	role := &model.RecommendedRole{BatchID: b.ID, Name: "Growth lead"}
	require.NoError(t, s.InsertBatchRole(ctx, role))
	target := model.MustParseAmount("5.000")
	k := &model.ProposedKPI{GoalID: g.ID, BatchID: &b.ID, RoleRecommendationID: &role.ID, Description: "Demos booked", TargetValue: &target}
	require.NoError(t, s.InsertKPI(ctx, k))

	list, err := s.BatchKPIs(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Revenue", list[0].GoalName)
	require.NotNil(t, list[0].RoleName)
	assert.Equal(t, "Growth lead", *list[0].RoleName)
	assert.Nil(t, list[0].BreakdownName)
	require.NotNil(t, list[0].TargetValue)
	assert.Equal(t, "5000", list[0].TargetValue.String())
	assert.Equal(t, model.DefaultTargetUnit, list[0].TargetUnit)
}

func TestUpdateKPI(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	g := seedGoal(t, s, f, "Revenue", "1.000")
	k := &model.ProposedKPI{GoalID: g.ID, Description: "Close deals"}
	require.NoError(t, s.InsertKPI(ctx, k))

	approve := true
	got, err := s.UpdateKPI(ctx, k.ID, KPIPatch{AssignedUserID: &f.user.ID, IsApproved: &approve})
	require.NoError(t, err)
	assert.Equal(t, model.KPIStatusAssigned, got.Status)
	assert.True(t, got.IsApproved)

	unassign := ""
	got, err = s.UpdateKPI(ctx, k.ID, KPIPatch{AssignedUserID: &unassign})
	require.NoError(t, err)
	assert.Nil(t, got.AssignedUserID)
	assert.Equal(t, model.KPIStatusProposed, got.Status)

	missing := "nobody"
	_, err = s.UpdateKPI(ctx, k.ID, KPIPatch{AssignedUserID: &missing})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	approved := true
	list, err := s.ListKPIs(ctx, KPIFilter{GoalID: g.ID, IsApproved: &approved})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReplaceGoalKPIs_KeepsAssigned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := seed(t, s)
	g := seedGoal(t, s, f, "Revenue", "1.000")

	assigned := &model.ProposedKPI{GoalID: g.ID, Description: "Kept", AssignedUserID: &f.user.ID, Status: model.KPIStatusAssigned}
	require.NoError(t, s.InsertKPI(ctx, assigned))
	require.NoError(t, s.InsertKPI(ctx, &model.ProposedKPI{GoalID: g.ID, Description: "Dropped"}))

	inserted, err := s.ReplaceGoalKPIs(ctx, g.ID, []model.ProposedKPI{{Description: "Fresh", AssignedUserID: &f.user.ID}})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Nil(t, inserted[0].AssignedUserID)

	all, err := s.ListKPIs(ctx, KPIFilter{GoalID: g.ID})
	require.NoError(t, err)
	var names []string
	for _, k := range all {
		names = append(names, k.Description)
	}
	assert.ElementsMatch(t, []string{"Kept", "Fresh"}, names)
}
