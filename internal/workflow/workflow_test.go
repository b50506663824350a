package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/dispatch"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/reconcile"
	"github.com/sells-group/goalflow/internal/resilience"
	"github.com/sells-group/goalflow/internal/store"
)

type sentCall struct {
	phase   model.Phase
	payload any
}

// fakeDispatcher records webhook calls instead of sending them.
type fakeDispatcher struct {
	mu         sync.Mutex
	configured map[model.Phase]bool
	err        error
	calls      []sentCall
}

func allPhases() *fakeDispatcher {
	return &fakeDispatcher{configured: map[model.Phase]bool{
		model.PhaseAnalysis:     true,
		model.PhaseKPIBreakdown: true,
		model.PhaseDailyTasks:   true,
	}}
}

func (f *fakeDispatcher) Configured(phase model.Phase) bool {
	return f.configured[phase]
}

func (f *fakeDispatcher) Send(_ context.Context, phase model.Phase, payload any) (*dispatch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{phase: phase, payload: payload})
	if f.err != nil {
		return nil, f.err
	}
	return &dispatch.Response{StatusCode: 200, Body: []byte(`{"message":"ok"}`), Attempts: 1}, nil
}

func (f *fakeDispatcher) phases() []model.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Phase, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.phase
	}
	return out
}

type env struct {
	store *store.Store
	ctrl  *Controller
	disp  *fakeDispatcher
	bu    *model.BusinessUnit
	user  *model.User
}

func newEnv(t *testing.T, d *fakeDispatcher, production bool) *env {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "workflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(ctx))

	bu, err := s.CreateBusinessUnit(ctx, "Sales", nil)
	require.NoError(t, err)
	role, err := s.CreateRole(ctx, "Manager", nil)
	require.NoError(t, err)
	user, err := s.CreateUser(ctx, model.User{Name: "Ayu", Email: "ayu@example.com", RoleID: &role.ID, BusinessUnitID: &bu.ID})
	require.NoError(t, err)

	c := New(s, d, production)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return &env{store: s, ctrl: c, disp: d, bu: bu, user: user}
}

func (e *env) goal(t *testing.T, name, target string) model.StrategicGoal {
	t.Helper()
	goals, err := e.store.CreateGoals(context.Background(), []model.StrategicGoal{{
		Name:            name,
		TargetValue:     model.MustParseAmount(target),
		StartDate:       model.NewDate(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		EndDate:         model.NewDate(time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)),
		BusinessUnitID:  e.bu.ID,
		CreatedByUserID: e.user.ID,
	}})
	require.NoError(t, err)
	return goals[0]
}

// batchIn creates a batch directly in status, holding goal.
func (e *env) batchIn(t *testing.T, status model.BatchStatus, goal model.StrategicGoal) *model.AnalysisBatch {
	t.Helper()
	ctx := context.Background()
	b := &model.AnalysisBatch{Name: "seeded", Status: status, CreatedByUserID: e.user.ID, BusinessUnitID: e.bu.ID}
	require.NoError(t, e.store.CreateBatch(ctx, b))
	_, err := e.store.StampGoals(ctx, b.ID, []string{goal.ID})
	require.NoError(t, err)
	return b
}

func (e *env) status(t *testing.T, batchID string) model.BatchStatus {
	t.Helper()
	b, err := e.store.GetBatch(context.Background(), batchID)
	require.NoError(t, err)
	return b.Status
}

func kindOf(t *testing.T, err error) apperr.Kind {
	t.Helper()
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %v", err)
	return ae.Kind
}

func TestRequestAnalysis_CreatesBatchAndSends(t *testing.T) {
	e := newEnv(t, allPhases(), true)
	ctx := context.Background()
	g := e.goal(t, "Grow revenue", "1.000.000")

	out, err := e.ctrl.RequestAnalysis(ctx, AnalysisRequest{GoalIDs: []string{g.ID}, UserID: e.user.ID, BusinessUnitID: e.bu.ID})
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusAnalyzing, out.Status)
	assert.Equal(t, 1, out.GoalsAnalyzed)
	require.NotNil(t, out.Notification)
	assert.True(t, out.Notification.Sent)

	require.Len(t, e.disp.calls, 1)
	payload, ok := e.disp.calls[0].payload.(*AnalysisPayload)
	require.True(t, ok)
	assert.Equal(t, "portfolio_review", payload.AnalysisType)
	require.Len(t, payload.GoalsSummary, 1)
	assert.Equal(t, "1000000", payload.GoalsSummary[0].TargetValue)
	assert.Equal(t, "Sales", payload.GoalsSummary[0].BusinessUnit)
	assert.Equal(t, "Manager", payload.GoalsSummary[0].CreatorRole)
	assert.Equal(t, 6, payload.GoalsSummary[0].DurationMonths)
	assert.Equal(t, analysisAreas, payload.AnalysisRequest.AnalysisAreas)

	stored, err := e.store.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.BatchID)
	assert.Equal(t, out.BatchID, *stored.BatchID)
	assert.Equal(t, "Analysis 2025-03-01 09:00", mustBatch(t, e, out.BatchID).Name)
}

func mustBatch(t *testing.T, e *env, id string) *model.AnalysisBatch {
	t.Helper()
	b, err := e.store.GetBatch(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestRequestAnalysis_DryRunWithoutURL(t *testing.T) {
	e := newEnv(t, &fakeDispatcher{}, false)
	g := e.goal(t, "Grow revenue", "500")

	out, err := e.ctrl.RequestAnalysis(context.Background(), AnalysisRequest{GoalIDs: []string{g.ID}, UserID: e.user.ID, BusinessUnitID: e.bu.ID, BatchName: " Q1 "})
	require.NoError(t, err)
	assert.True(t, out.DryRun)
	require.NotNil(t, out.Payload)
	assert.Equal(t, 1, out.Payload.TotalGoals)
	assert.Nil(t, out.Notification)
	assert.Empty(t, e.disp.calls)
	assert.Equal(t, "Q1", mustBatch(t, e, out.BatchID).Name)
}

func TestRequestAnalysis_ProductionWithoutURL(t *testing.T) {
	e := newEnv(t, &fakeDispatcher{}, true)
	g := e.goal(t, "Grow revenue", "500")

	_, err := e.ctrl.RequestAnalysis(context.Background(), AnalysisRequest{GoalIDs: []string{g.ID}, UserID: e.user.ID, BusinessUnitID: e.bu.ID})
	assert.Equal(t, apperr.KindUnavailable, kindOf(t, err))
	assert.ErrorIs(t, err, dispatch.ErrNotConfigured)

	n, err := e.store.CountBatches(context.Background(), model.BatchStatusAnalyzing)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRequestAnalysis_RejectsBadReferences(t *testing.T) {
	e := newEnv(t, allPhases(), true)
	ctx := context.Background()
	g := e.goal(t, "Grow revenue", "500")

	_, err := e.ctrl.RequestAnalysis(ctx, AnalysisRequest{GoalIDs: []string{"missing"}, UserID: e.user.ID, BusinessUnitID: e.bu.ID})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	_, err = e.ctrl.RequestAnalysis(ctx, AnalysisRequest{GoalIDs: []string{g.ID}, UserID: "nobody", BusinessUnitID: e.bu.ID})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))
	ae, _ := apperr.As(err)
	assert.Equal(t, []string{"user_id"}, ae.Fields)

	_, err = e.ctrl.RequestAnalysis(ctx, AnalysisRequest{UserID: e.user.ID, BusinessUnitID: e.bu.ID})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))
	assert.Empty(t, e.disp.calls)
}

func TestRequestAnalysis_GoalHeldByOpenBatch(t *testing.T) {
	e := newEnv(t, allPhases(), true)
	g := e.goal(t, "Grow revenue", "500")
	e.batchIn(t, model.BatchStatusReviewPending, g)

	_, err := e.ctrl.RequestAnalysis(context.Background(), AnalysisRequest{GoalIDs: []string{g.ID}, UserID: e.user.ID, BusinessUnitID: e.bu.ID})
	assert.Equal(t, apperr.KindConflict, kindOf(t, err))
	assert.Empty(t, e.disp.calls)
}

func TestRequestAnalysis_WebhookFailureKeepsBatch(t *testing.T) {
	d := allPhases()
	d.err = apperr.Unavailable(errors.New("dial tcp: connection refused"), "network error")
	e := newEnv(t, d, true)
	g := e.goal(t, "Grow revenue", "500")

	out, err := e.ctrl.RequestAnalysis(context.Background(), AnalysisRequest{GoalIDs: []string{g.ID}, UserID: e.user.ID, BusinessUnitID: e.bu.ID})
	assert.Equal(t, apperr.KindUnavailable, kindOf(t, err))
	require.NotNil(t, out)
	assert.Equal(t, model.BatchStatusAnalyzing, e.status(t, out.BatchID))

	failures, err := e.store.ListDispatchFailures(context.Background(), store.DispatchFailureFilter{BatchID: out.BatchID, UnresolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, model.PhaseAnalysis, failures[0].Phase)
}

func TestRetrigger_ResendsAwaitedPhaseAndResolvesFailures(t *testing.T) {
	d := allPhases()
	d.err = errors.New("connection refused")
	e := newEnv(t, d, true)
	ctx := context.Background()
	g := e.goal(t, "Grow revenue", "500")
	b := e.batchIn(t, model.BatchStatusKPIAssignmentPending, g)

	_, err := e.ctrl.Retrigger(ctx, b.ID)
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	require.NoError(t, e.store.TransitionBatch(ctx, b.ID, model.BatchStatusKPIAssignmentPending, model.BatchStatusGeneratingDailyTasks))
	_, err = e.ctrl.Retrigger(ctx, b.ID)
	require.Error(t, err)

	d.err = nil
	out, err := e.ctrl.Retrigger(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusGeneratingDailyTasks, out.Status)
	assert.Equal(t, []model.Phase{model.PhaseDailyTasks, model.PhaseDailyTasks}, d.phases())

	failures, err := e.store.ListDispatchFailures(ctx, store.DispatchFailureFilter{BatchID: b.ID, UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestFullLifecycle(t *testing.T) {
	e := newEnv(t, allPhases(), true)
	ctx := context.Background()
	g := e.goal(t, "Grow revenue", "1.000.000")

	// Analysis.
	started, err := e.ctrl.RequestAnalysis(ctx, AnalysisRequest{GoalIDs: []string{g.ID}, UserID: e.user.ID, BusinessUnitID: e.bu.ID})
	require.NoError(t, err)
	batchID := started.BatchID

	summary, recommendation := "Focus on enterprise", "Hire two account executives"
	rec, err := e.ctrl.ApplyRecommendations(ctx, "evt-rec-1", Recommendations{
		BatchID:        batchID,
		Summary:        &summary,
		Recommendation: &recommendation,
		Roles: []reconcile.RoleInput{
			{Name: "Account Executive", Responsibilities: "Close deals"},
			{Name: "Sales Analyst", Responsibilities: "Pipeline reports"},
		},
		Breakdowns: breakdowns("North:400.000", "South:300.000", "West:300.000"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusReviewPending, rec.Status)
	assert.True(t, rec.Changed)
	assert.Equal(t, 5, rec.Count)
	assert.Equal(t, 2, rec.Summary.Version)

	// Review.
	detail, err := e.store.GetBatchDetail(ctx, batchID)
	require.NoError(t, err)
	require.NotNil(t, detail.Summary)
	assert.Equal(t, summary, *detail.Summary)
	require.Len(t, detail.Roles, 2)
	require.Len(t, detail.Breakdowns, 3)

	set := reviewFrom(detail)
	set.Roles = set.Roles[:1]
	set.Breakdowns[0].Value = "450.000"
	changedID := set.Breakdowns[0].ID
	set.Assets = append(set.Assets, assetInput("crm", "Salesforce", "12.500"))

	version := detail.Version
	reviewed, err := e.ctrl.SubmitReview(ctx, batchID, set, &version)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusKPIBreakdownPending, reviewed.Status)
	assert.Equal(t, 1, reviewed.Roles.Kept)
	assert.Equal(t, 1, reviewed.Roles.Deleted)
	assert.Equal(t, 3, reviewed.Breakdowns.Kept)
	assert.Equal(t, 1, reviewed.Assets.Inserted)
	assert.Equal(t, version+2, reviewed.Version)

	detail, err = e.store.GetBatchDetail(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, detail.Roles, 1)
	assert.Equal(t, "Account Executive", detail.Roles[0].Name)
	for _, bd := range detail.Breakdowns {
		if bd.ID == changedID {
			assert.Equal(t, "450000", bd.Value.String())
		}
	}
	require.Len(t, detail.Assets, 1)
	assert.Equal(t, "12500", detail.Assets[0].MetricValue.String())

	// KPI generation.
	trig, err := e.ctrl.TriggerKPIGeneration(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusKPILoading, trig.Status)
	again, err := e.ctrl.TriggerKPIGeneration(ctx, batchID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyInProgress)

	roleID := detail.Roles[0].ID
	gen, err := e.ctrl.ApplyKPIGeneration(ctx, "evt-kpi-1", KPIGeneration{
		GoalID:  g.ID,
		KPIs:    []KPIInput{{RoleRecommendationID: &roleID, Description: "Closed deals", TargetValue: "40", TargetUnit: "deals"}},
		Advance: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, gen.Count)
	assert.Equal(t, model.BatchStatusKPIAssignmentPending, gen.Status)

	// Assignment and daily tasks.
	kpis, err := e.store.ListKPIs(ctx, store.KPIFilter{GoalID: g.ID})
	require.NoError(t, err)
	require.Len(t, kpis, 1)
	assigned, err := e.ctrl.AssignKPIs(ctx, batchID, []model.Assignment{{KPIID: kpis[0].ID, AssignedUserID: e.user.ID}})
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusGeneratingDailyTasks, assigned.Status)
	assert.True(t, assigned.Notification.Sent)

	tasks := DailyTasks{KPIID: kpis[0].ID, UserID: e.user.ID, Tasks: []TaskItem{
		{TaskDate: "2025-03-03", Description: "Call five prospects"},
		{TaskDate: "2025-03-04", Description: "Send proposals"},
	}}
	created, err := e.ctrl.ApplyDailyTasks(ctx, "evt-tasks-1", tasks)
	require.NoError(t, err)
	assert.Equal(t, 2, created.Count)
	repeat, err := e.ctrl.ApplyDailyTasks(ctx, "evt-tasks-2", tasks)
	require.NoError(t, err)
	assert.Equal(t, 0, repeat.Count)
	assert.Equal(t, 2, repeat.Skipped)

	// Activation and close.
	_, err = e.ctrl.ApplyBatchStatus(ctx, "evt-active", batchID, model.BatchStatusActive)
	require.NoError(t, err)
	done, err := e.ctrl.CompleteBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, done.Status)

	assert.Equal(t, []model.Phase{model.PhaseAnalysis, model.PhaseKPIBreakdown, model.PhaseDailyTasks}, e.disp.phases())

	// A closed batch releases its goals.
	held, err := e.store.HeldGoals(ctx, []string{g.ID})
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestSubmitReview_StaleVersion(t *testing.T) {
	e := newEnv(t, allPhases(), true)
	b := e.batchIn(t, model.BatchStatusReviewPending, e.goal(t, "Grow revenue", "500"))

	wrong := b.Version + 5
	_, err := e.ctrl.SubmitReview(context.Background(), b.ID, reconcileSet(), &wrong)
	assert.Equal(t, apperr.KindStale, kindOf(t, err))
	assert.Equal(t, model.BatchStatusReviewPending, e.status(t, b.ID))
}

func TestSaveReview_StatusGate(t *testing.T) {
	e := newEnv(t, allPhases(), true)
	ctx := context.Background()
	g := e.goal(t, "Grow revenue", "500")
	b := e.batchIn(t, model.BatchStatusKPIBreakdownPending, g)

	out, err := e.ctrl.SaveReview(ctx, b.ID, reconcileSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusKPIBreakdownPending, out.Status)

	_, err = e.ctrl.SubmitReview(ctx, b.ID, reconcileSet(), nil)
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))
}

func TestTriggerKPIGeneration_WebhookFailureCommitsTransition(t *testing.T) {
	d := allPhases()
	d.err = apperr.BadGateway(errors.New("status 500"), "bad gateway response")
	e := newEnv(t, d, true)
	b := e.batchIn(t, model.BatchStatusKPIBreakdownPending, e.goal(t, "Grow revenue", "500"))

	out, err := e.ctrl.TriggerKPIGeneration(context.Background(), b.ID)
	assert.Equal(t, apperr.KindBadGateway, kindOf(t, err))
	require.NotNil(t, out)
	require.NotNil(t, out.Notification)
	assert.NotEmpty(t, out.Notification.Error)
	assert.Equal(t, model.BatchStatusKPILoading, e.status(t, b.ID))
}

func TestAssignKPIs_NotificationFailureIsReported(t *testing.T) {
	d := allPhases()
	d.err = errors.New("connection refused")
	e := newEnv(t, d, true)
	ctx := context.Background()
	g := e.goal(t, "Grow revenue", "500")
	b := e.batchIn(t, model.BatchStatusKPIAssignmentPending, g)
	k := &model.ProposedKPI{GoalID: g.ID, BatchID: &b.ID, Description: "Calls"}
	require.NoError(t, e.store.InsertKPI(ctx, k))

	out, err := e.ctrl.AssignKPIs(ctx, b.ID, []model.Assignment{{KPIID: k.ID, AssignedUserID: e.user.ID}})
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusGeneratingDailyTasks, out.Status)
	assert.False(t, out.Notification.Sent)
	assert.Contains(t, out.Notification.Error, "connection refused")

	got, err := e.store.GetKPI(ctx, k.ID)
	require.NoError(t, err)
	assert.True(t, got.IsApproved)

	failures, err := e.store.ListDispatchFailures(ctx, store.DispatchFailureFilter{BatchID: b.ID})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, resilience.ClassTransient, failures[0].ErrorType)
}

func TestAssignKPIs_UnknownUserRollsBack(t *testing.T) {
	e := newEnv(t, allPhases(), true)
	ctx := context.Background()
	g := e.goal(t, "Grow revenue", "500")
	b := e.batchIn(t, model.BatchStatusKPIAssignmentPending, g)
	k := &model.ProposedKPI{GoalID: g.ID, BatchID: &b.ID, Description: "Calls"}
	require.NoError(t, e.store.InsertKPI(ctx, k))

	_, err := e.ctrl.AssignKPIs(ctx, b.ID, []model.Assignment{{KPIID: k.ID, AssignedUserID: "ghost"}})
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))
	assert.Equal(t, model.BatchStatusKPIAssignmentPending, e.status(t, b.ID))
	assert.Empty(t, e.disp.calls)

	_, err = e.ctrl.AssignKPIs(ctx, b.ID, nil)
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))
}

func TestCompleteBatch_RequiresActive(t *testing.T) {
	e := newEnv(t, allPhases(), true)
	b := e.batchIn(t, model.BatchStatusReviewPending, e.goal(t, "Grow revenue", "500"))

	_, err := e.ctrl.CompleteBatch(context.Background(), b.ID)
	assert.Equal(t, apperr.KindValidation, kindOf(t, err))

	_, err = e.ctrl.CompleteBatch(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatus_PollTargets(t *testing.T) {
	e := newEnv(t, allPhases(), true)
	ctx := context.Background()
	b := e.batchIn(t, model.BatchStatusAnalyzing, e.goal(t, "Grow revenue", "500"))

	v, err := e.ctrl.Status(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, v.AwaitingExternal)
	assert.Equal(t, []model.BatchStatus{model.BatchStatusReviewPending}, v.PollTargets)
	assert.False(t, v.HasSummary)

	other := e.batchIn(t, model.BatchStatusKPIAssignmentPending, e.goal(t, "Hire", "3"))
	v, err = e.ctrl.Status(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, v.AwaitingExternal)
	assert.NotNil(t, v.PollTargets)
	assert.Empty(t, v.PollTargets)
}
