package workflow

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/reconcile"
	"github.com/sells-group/goalflow/internal/store"
)

// Callback kinds recorded in the processed-callback ledger.
const (
	KindAnalysisResult    = "analysis-result"
	KindRecommendations   = "recommendations"
	KindKPIGeneration     = "kpi-generation"
	KindStrategyBreakdown = "strategy-breakdown"
	KindDailyTasks        = "daily-tasks"
	KindBatchStatus       = "batch-status"
)

// CallbackResult is returned by every inbound callback.
type CallbackResult struct {
	Duplicate bool               `json:"duplicate,omitempty"`
	BatchID   string             `json:"batch_id,omitempty"`
	Status    model.BatchStatus  `json:"status,omitempty"`
	Changed   bool               `json:"changed"`
	Count     int                `json:"count"`
	Skipped   int                `json:"skipped,omitempty"`
	Summary   *reconcile.Summary `json:"summary,omitempty"`
}

// once runs fn in a transaction that also records eventID. A repeated
// eventID skips fn and reports a duplicate. An empty eventID always runs.
func (c *Controller) once(ctx context.Context, eventID, kind string, fn func(tx *store.Tx, res *CallbackResult) error) (*CallbackResult, error) {
	res := &CallbackResult{}
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		if eventID != "" {
			fresh, err := tx.MarkCallbackProcessed(ctx, eventID, kind)
			if err != nil {
				return err
			}
			if !fresh {
				res.Duplicate = true
				return nil
			}
		}
		return fn(tx, res)
	})
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		zap.L().Info("duplicate callback ignored", zap.String("event_id", eventID), zap.String("kind", kind))
	}
	return res, nil
}

// advance applies an engine-driven status change. Reaching a status the
// batch is already in is a no-op.
func advance(ctx context.Context, tx *store.Tx, b *model.AnalysisBatch, to model.BatchStatus) (bool, error) {
	if b.Status == to {
		return false, nil
	}
	phase, waiting := externalFrom[b.Status]
	if !waiting || !CanTransition(b.Status, to) {
		return false, apperr.Validation("batch %s cannot move from %s to %s", b.ID, b.Status, to).WithFields("status")
	}
	if err := transition(ctx, tx, b, to); err != nil {
		return false, err
	}
	if _, err := tx.ResolveDispatchFailures(ctx, b.ID, phase); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyBatchStatus moves a batch on behalf of the engine.
func (c *Controller) ApplyBatchStatus(ctx context.Context, eventID, batchID string, to model.BatchStatus) (*CallbackResult, error) {
	if !to.Valid() {
		return nil, apperr.Validation("unknown status %q", to).WithFields("status")
	}
	res, err := c.once(ctx, eventID, KindBatchStatus, func(tx *store.Tx, res *CallbackResult) error {
		b, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if res.Changed, err = advance(ctx, tx, b, to); err != nil {
			return err
		}
		res.BatchID, res.Status = b.ID, b.Status
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Changed {
		zap.L().Info("batch status advanced by engine", zap.String("batch_id", batchID), zap.String("status", string(to)))
	}
	return res, nil
}

// Recommendations is the engine's analysis output for a batch.
type Recommendations struct {
	BatchID        string                     `json:"batch_id" validate:"required"`
	Summary        *string                    `json:"summary"`
	Recommendation *string                    `json:"recommendation"`
	Roles          []reconcile.RoleInput      `json:"roles" validate:"dive"`
	Breakdowns     []reconcile.BreakdownInput `json:"breakdowns" validate:"dive"`
	Assets         []reconcile.AssetInput     `json:"assets" validate:"dive"`
}

// recommendationSources are the statuses a recommendations callback may
// arrive in.
var recommendationSources = []model.BatchStatus{
	model.BatchStatusAnalyzing,
	model.BatchStatusKPILoading,
	model.BatchStatusReviewPending,
}

// ApplyRecommendations replaces a batch's roles, breakdowns and assets with
// the engine's and moves the batch to review_pending.
func (c *Controller) ApplyRecommendations(ctx context.Context, eventID string, rec Recommendations) (*CallbackResult, error) {
	set := reconcile.ReviewSet{
		Roles:      slices.Clone(rec.Roles),
		Breakdowns: slices.Clone(rec.Breakdowns),
		Assets:     slices.Clone(rec.Assets),
	}
	// Engine rows are always new.
	for i := range set.Roles {
		set.Roles[i].ID = ""
	}
	for i := range set.Breakdowns {
		set.Breakdowns[i].ID = ""
	}
	for i := range set.Assets {
		set.Assets[i].ID = ""
	}

	return c.once(ctx, eventID, KindRecommendations, func(tx *store.Tx, res *CallbackResult) error {
		b, err := tx.GetBatch(ctx, rec.BatchID)
		if err != nil {
			return err
		}
		if !slices.Contains(recommendationSources, b.Status) {
			return apperr.Validation("batch %s is %s and cannot take recommendations", b.ID, b.Status).WithFields("status")
		}
		sum, err := reconcile.Apply(ctx, tx, b.ID, set)
		if err != nil {
			return err
		}
		b.Version = sum.Version
		if err := tx.SetBatchNarrative(ctx, b.ID, rec.Summary, rec.Recommendation); err != nil {
			return err
		}
		if res.Changed, err = advance(ctx, tx, b, model.BatchStatusReviewPending); err != nil {
			return err
		}
		sum.Version = b.Version
		res.BatchID, res.Status, res.Summary = b.ID, b.Status, sum
		res.Count = sum.Roles.Inserted + sum.Breakdowns.Inserted + sum.Assets.Inserted
		return nil
	})
}

// SaveAnalysisResult stores the engine's portfolio analysis. A repeated
// analysis id overwrites the earlier one.
func (c *Controller) SaveAnalysisResult(ctx context.Context, eventID string, r *model.AnalysisResult) (*CallbackResult, error) {
	if r.AnalysisID == "" {
		return nil, apperr.Validation("analysis_id is required").WithFields("analysis_id")
	}
	return c.once(ctx, eventID, KindAnalysisResult, func(tx *store.Tx, res *CallbackResult) error {
		if err := tx.UpsertAnalysisResult(ctx, r); err != nil {
			return err
		}
		res.Changed, res.Count = true, 1
		if r.BatchID != nil {
			res.BatchID = *r.BatchID
		}
		return nil
	})
}

// KPIInput is one KPI proposed by the engine.
type KPIInput struct {
	RoleRecommendationID *string          `json:"role_recommendation_id"`
	BreakdownID          *string          `json:"breakdown_id"`
	Description          string           `json:"kpi_description" validate:"required"`
	TargetValue          reconcile.Number `json:"target_value"`
	TargetUnit           string           `json:"target_unit"`
}

// KPIGeneration is the engine's KPI output for one goal.
type KPIGeneration struct {
	BatchID *string    `json:"batch_id"`
	GoalID  string     `json:"goal_id" validate:"required"`
	KPIs    []KPIInput `json:"kpis" validate:"required,min=1,dive"`
	Advance bool       `json:"advance"`
}

// ApplyKPIGeneration replaces a goal's unassigned KPIs. With Advance set
// the goal's batch moves from kpi_loading to KPI_Assignment_Pending.
func (c *Controller) ApplyKPIGeneration(ctx context.Context, eventID string, in KPIGeneration) (*CallbackResult, error) {
	if len(in.KPIs) == 0 {
		return nil, apperr.Validation("kpis must not be empty").WithFields("kpis")
	}
	kpis := make([]model.ProposedKPI, 0, len(in.KPIs))
	for i, k := range in.KPIs {
		row := model.ProposedKPI{
			RoleRecommendationID: k.RoleRecommendationID,
			BreakdownID:          k.BreakdownID,
			Description:          k.Description,
			TargetUnit:           k.TargetUnit,
		}
		if k.TargetValue != "" {
			v, err := model.ParseAmount(string(k.TargetValue))
			if err != nil {
				field := fmt.Sprintf("kpis[%d].target_value", i)
				return nil, apperr.Validation("%s: %q is not a whole non-negative number", field, k.TargetValue).WithFields(field)
			}
			row.TargetValue = &v
		}
		kpis = append(kpis, row)
	}

	return c.once(ctx, eventID, KindKPIGeneration, func(tx *store.Tx, res *CallbackResult) error {
		goal, err := tx.GetGoal(ctx, in.GoalID)
		if err != nil {
			return err
		}
		batchID := in.BatchID
		if batchID == nil {
			batchID = goal.BatchID
		}
		if err := c.checkKPIRefs(ctx, tx, batchID, in.KPIs); err != nil {
			return err
		}
		for i := range kpis {
			kpis[i].BatchID = batchID
		}
		inserted, err := tx.ReplaceGoalKPIs(ctx, goal.ID, kpis)
		if err != nil {
			return err
		}
		res.Count = len(inserted)
		if batchID == nil {
			return nil
		}
		res.BatchID = *batchID
		if !in.Advance {
			return nil
		}
		b, err := tx.GetBatch(ctx, *batchID)
		if err != nil {
			return err
		}
		if b.Status == model.BatchStatusKPILoading || b.Status == model.BatchStatusKPIAssignmentPending {
			if res.Changed, err = advance(ctx, tx, b, model.BatchStatusKPIAssignmentPending); err != nil {
				return err
			}
		}
		res.Status = b.Status
		return nil
	})
}

// checkKPIRefs verifies that referenced roles belong to the batch and
// referenced breakdowns exist.
func (c *Controller) checkKPIRefs(ctx context.Context, tx *store.Tx, batchID *string, in []KPIInput) error {
	var roles map[string]bool
	for i, k := range in {
		if k.RoleRecommendationID != nil {
			if roles == nil {
				roles = map[string]bool{}
				if batchID != nil {
					ids, err := tx.ChildIDs(ctx, store.CollectionRoles, *batchID)
					if err != nil {
						return err
					}
					for _, id := range ids {
						roles[id] = true
					}
				}
			}
			if !roles[*k.RoleRecommendationID] {
				field := fmt.Sprintf("kpis[%d].role_recommendation_id", i)
				return apperr.Validation("%s: %s is not a role of this batch", field, *k.RoleRecommendationID).WithFields(field)
			}
		}
		if k.BreakdownID != nil {
			if _, err := tx.GetBreakdown(ctx, *k.BreakdownID); err != nil {
				return referenceError(err, fmt.Sprintf("kpis[%d].breakdown_id", i), *k.BreakdownID)
			}
		}
	}
	return nil
}

// BreakdownItem is one goal-level breakdown proposed by the engine.
type BreakdownItem struct {
	Name        string           `json:"name" validate:"required"`
	Value       reconcile.Number `json:"value"`
	Unit        string           `json:"unit"`
	Description string           `json:"description"`
}

// StrategyBreakdown is the engine's breakdown of one goal.
type StrategyBreakdown struct {
	GoalID     string          `json:"goal_id" validate:"required"`
	Breakdowns []BreakdownItem `json:"breakdowns" validate:"required,min=1,dive"`
}

// ApplyStrategyBreakdown replaces a goal's pending breakdowns.
func (c *Controller) ApplyStrategyBreakdown(ctx context.Context, eventID string, in StrategyBreakdown) (*CallbackResult, error) {
	if len(in.Breakdowns) == 0 {
		return nil, apperr.Validation("breakdowns must not be empty").WithFields("breakdowns")
	}
	rows := make([]model.ProposedBreakdown, 0, len(in.Breakdowns))
	for i, b := range in.Breakdowns {
		v, err := model.ParseAmount(string(b.Value))
		if err != nil {
			field := fmt.Sprintf("breakdowns[%d].value", i)
			return nil, apperr.Validation("%s: %q is not a whole non-negative number", field, b.Value).WithFields(field)
		}
		rows = append(rows, model.ProposedBreakdown{Name: b.Name, Value: v, Unit: b.Unit, Description: b.Description})
	}

	return c.once(ctx, eventID, KindStrategyBreakdown, func(tx *store.Tx, res *CallbackResult) error {
		goal, err := tx.GetGoal(ctx, in.GoalID)
		if err != nil {
			return err
		}
		inserted, err := tx.ReplaceGoalBreakdowns(ctx, goal.ID, rows)
		if err != nil {
			return err
		}
		res.Changed, res.Count = true, len(inserted)
		if goal.BatchID != nil {
			res.BatchID = *goal.BatchID
		}
		return nil
	})
}

// TaskItem is one dated task proposed by the engine.
type TaskItem struct {
	TaskDate    string `json:"task_date" validate:"required"`
	Description string `json:"task_description" validate:"required"`
}

// DailyTasks is the engine's task plan for one assigned KPI.
type DailyTasks struct {
	KPIID  string     `json:"kpi_id" validate:"required"`
	UserID string     `json:"user_id" validate:"required"`
	Tasks  []TaskItem `json:"tasks" validate:"required,min=1,dive"`
}

// ApplyDailyTasks stores tasks for an approved KPI. Tasks that already exist
// for the same KPI, user, date and description are skipped.
func (c *Controller) ApplyDailyTasks(ctx context.Context, eventID string, in DailyTasks) (*CallbackResult, error) {
	if len(in.Tasks) == 0 {
		return nil, apperr.Validation("tasks must not be empty").WithFields("tasks")
	}
	tasks := make([]model.DailyTask, 0, len(in.Tasks))
	for i, t := range in.Tasks {
		d, err := model.ParseDate(t.TaskDate)
		if err != nil {
			field := fmt.Sprintf("tasks[%d].task_date", i)
			return nil, apperr.Validation("%s: %q is not a date", field, t.TaskDate).WithFields(field)
		}
		tasks = append(tasks, model.DailyTask{KPIID: in.KPIID, UserID: in.UserID, Description: t.Description, TaskDate: d})
	}

	return c.once(ctx, eventID, KindDailyTasks, func(tx *store.Tx, res *CallbackResult) error {
		kpi, err := tx.GetKPI(ctx, in.KPIID)
		if err != nil {
			return err
		}
		if !kpi.IsApproved {
			return apperr.Validation("kpi %s must be approved before generating tasks", kpi.ID).WithFields("kpi_id")
		}
		if _, err := tx.GetUser(ctx, in.UserID); err != nil {
			return err
		}
		added, err := tx.InsertTasksIgnoringDuplicates(ctx, tasks)
		if err != nil {
			return err
		}
		res.Changed = added > 0
		res.Count, res.Skipped = added, len(tasks)-added
		if kpi.BatchID != nil {
			res.BatchID = *kpi.BatchID
		}
		return nil
	})
}
