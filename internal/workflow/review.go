package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/reconcile"
	"github.com/sells-group/goalflow/internal/store"
)

// ReviewOutcome reports a saved or submitted review.
type ReviewOutcome struct {
	*reconcile.Summary
	Status model.BatchStatus `json:"status"`
}

func (c *Controller) review(ctx context.Context, batchID string, set reconcile.ReviewSet, expected *int, submit bool) (*ReviewOutcome, error) {
	action := ActionSaveReview
	if submit {
		action = ActionSubmitReview
	}
	var out *ReviewOutcome
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		b, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if err := checkVersion(b, expected); err != nil {
			return err
		}
		if err := checkAllowed(b, action); err != nil {
			return err
		}
		sum, err := reconcile.Apply(ctx, tx, batchID, set)
		if err != nil {
			return err
		}
		b.Version = sum.Version
		if submit {
			if err := transition(ctx, tx, b, model.BatchStatusKPIBreakdownPending); err != nil {
				return err
			}
			sum.Version = b.Version
		}
		out = &ReviewOutcome{Summary: sum, Status: b.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("review applied",
		zap.String("batch_id", batchID),
		zap.String("action", string(action)),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

// SaveReview reconciles the batch's children without changing its status.
func (c *Controller) SaveReview(ctx context.Context, batchID string, set reconcile.ReviewSet, expectedVersion *int) (*ReviewOutcome, error) {
	return c.review(ctx, batchID, set, expectedVersion, false)
}

// SubmitReview reconciles the children and moves the batch to
// kpi_breakdown_pending in the same transaction.
func (c *Controller) SubmitReview(ctx context.Context, batchID string, set reconcile.ReviewSet, expectedVersion *int) (*ReviewOutcome, error) {
	return c.review(ctx, batchID, set, expectedVersion, true)
}

// TriggerOutcome reports a KPI generation request.
type TriggerOutcome struct {
	BatchID           string            `json:"batch_id"`
	Status            model.BatchStatus `json:"status"`
	AlreadyInProgress bool              `json:"already_in_progress"`
	Notification      *Notification     `json:"notification,omitempty"`
}

// TriggerKPIGeneration moves the batch to kpi_loading and asks the engine
// for KPIs. A batch already in kpi_loading is left alone.
func (c *Controller) TriggerKPIGeneration(ctx context.Context, batchID string) (*TriggerOutcome, error) {
	if err := c.requireConfigured(model.PhaseKPIBreakdown); err != nil {
		return nil, err
	}
	var out *TriggerOutcome
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		b, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if err := checkAllowed(b, ActionTriggerKPI); err != nil {
			return err
		}
		out = &TriggerOutcome{BatchID: batchID, Status: b.Status}
		if b.Status == model.BatchStatusKPILoading {
			out.AlreadyInProgress = true
			return nil
		}
		if err := transition(ctx, tx, b, model.BatchStatusKPILoading); err != nil {
			return err
		}
		out.Status = b.Status
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.AlreadyInProgress {
		zap.L().Info("kpi generation already in progress", zap.String("batch_id", batchID))
		return out, nil
	}

	n, err := c.notify(ctx, batchID, model.PhaseKPIBreakdown, batchRef{BatchID: batchID})
	out.Notification = &n
	return out, err
}

// AssignOutcome reports KPI assignment. A failed daily-task webhook is
// reported in Notification rather than as an error.
type AssignOutcome struct {
	BatchID      string            `json:"batch_id"`
	Status       model.BatchStatus `json:"status"`
	Assigned     int               `json:"assigned"`
	Notification Notification      `json:"notification"`
}

// AssignKPIs gives each KPI to its user, approves it and moves the batch
// to Generating_Daily_Tasks, all in one transaction. The daily-task webhook
// is sent afterwards.
func (c *Controller) AssignKPIs(ctx context.Context, batchID string, assignments []model.Assignment) (*AssignOutcome, error) {
	if len(assignments) == 0 {
		return nil, apperr.Validation("at least one assignment is required").WithFields("assignments")
	}
	if err := c.requireConfigured(model.PhaseDailyTasks); err != nil {
		return nil, err
	}

	out := &AssignOutcome{BatchID: batchID}
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		b, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if err := checkAllowed(b, ActionAssign); err != nil {
			return err
		}
		for i, a := range assignments {
			if _, err := tx.GetUser(ctx, a.AssignedUserID); err != nil {
				return referenceError(err, fmt.Sprintf("assignments[%d].assigned_user_id", i), a.AssignedUserID)
			}
			if err := tx.AssignKPI(ctx, batchID, a.KPIID, a.AssignedUserID); err != nil {
				return err
			}
		}
		if err := transition(ctx, tx, b, model.BatchStatusGeneratingDailyTasks); err != nil {
			return err
		}
		out.Status = b.Status
		out.Assigned = len(assignments)
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("kpis assigned", zap.String("batch_id", batchID), zap.Int("count", out.Assigned))

	out.Notification, _ = c.notify(ctx, batchID, model.PhaseDailyTasks, batchRef{BatchID: batchID})
	return out, nil
}
