package workflow

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/store"
)

// analysisAreas are the review topics requested from the engine.
var analysisAreas = []string{
	"goal_overlap",
	"resource_allocation",
	"priority_recommendations",
	"gap_analysis",
	"timeline_conflicts",
	"team_capacity",
}

// AnalysisRequest starts a batch over a set of goals.
type AnalysisRequest struct {
	GoalIDs        []string `json:"goal_ids" validate:"required,min=1,dive,required"`
	UserID         string   `json:"user_id" validate:"required"`
	BusinessUnitID string   `json:"business_unit_id" validate:"required"`
	BatchName      string   `json:"batch_name"`
}

// GoalPayload is one goal as the engine reads it.
type GoalPayload struct {
	GoalID                  string `json:"goal_id"`
	GoalName                string `json:"goal_name"`
	TargetValue             string `json:"target_value"`
	TargetUnit              string `json:"target_unit"`
	Status                  string `json:"status"`
	BusinessUnit            string `json:"business_unit"`
	BusinessUnitDescription string `json:"business_unit_description"`
	CreatedBy               string `json:"created_by"`
	CreatorRole             string `json:"creator_role"`
	StartDate               string `json:"start_date"`
	EndDate                 string `json:"end_date"`
	DurationMonths          int    `json:"duration_months"`
	KPICount                int    `json:"kpi_count"`
	KPIApproved             int    `json:"kpi_approved"`
}

// AnalysisPayload is the body sent to the analysis webhook.
type AnalysisPayload struct {
	AnalysisType    string        `json:"analysis_type"`
	BatchID         string        `json:"batch_id"`
	TotalGoals      int           `json:"total_goals"`
	GoalsSummary    []GoalPayload `json:"goals_summary"`
	AnalysisRequest struct {
		RequestedAt   time.Time `json:"requested_at"`
		AnalysisAreas []string  `json:"analysis_areas"`
	} `json:"analysis_request"`
}

// DispatchOutcome reports a webhook sent for a batch after a commit.
type DispatchOutcome struct {
	BatchID       string            `json:"batch_id"`
	Status        model.BatchStatus `json:"status"`
	GoalsAnalyzed int               `json:"goals_analyzed,omitempty"`
	DryRun        bool              `json:"dev_mode,omitempty"`
	Payload       *AnalysisPayload  `json:"payload_preview,omitempty"`
	Notification  *Notification     `json:"notification,omitempty"`
}

// durationMonths rounds the span between two dates to 30-day months.
func durationMonths(start, end model.Date) int {
	days := end.Sub(start.Time).Hours() / 24
	return int(math.Round(days / 30))
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// buildAnalysisPayload flattens a batch's goals for the engine.
func (c *Controller) buildAnalysisPayload(ctx context.Context, batchID string) (*AnalysisPayload, error) {
	sums, err := c.store.GoalSummaries(ctx, batchID)
	if err != nil {
		return nil, err
	}
	p := &AnalysisPayload{
		AnalysisType: "portfolio_review",
		BatchID:      batchID,
		TotalGoals:   len(sums),
		GoalsSummary: make([]GoalPayload, 0, len(sums)),
	}
	p.AnalysisRequest.RequestedAt = c.now()
	p.AnalysisRequest.AnalysisAreas = analysisAreas
	for _, g := range sums {
		p.GoalsSummary = append(p.GoalsSummary, GoalPayload{
			GoalID:                  g.ID,
			GoalName:                g.Name,
			TargetValue:             g.TargetValue.String(),
			TargetUnit:              g.TargetUnit,
			Status:                  g.Status,
			BusinessUnit:            orUnknown(g.BusinessUnitName),
			BusinessUnitDescription: deref(g.BusinessUnitDescription),
			CreatedBy:               orUnknown(g.CreatorName),
			CreatorRole:             orUnknown(deref(g.CreatorRole)),
			StartDate:               g.StartDate.String(),
			EndDate:                 g.EndDate.String(),
			DurationMonths:          durationMonths(g.StartDate, g.EndDate),
			KPICount:                g.KPICount,
			KPIApproved:             g.KPIApproved,
		})
	}
	return p, nil
}

// referenceError turns a missing referenced row into a validation error.
func referenceError(err error, field, id string) error {
	if eris.Is(err, store.ErrNotFound) {
		return apperr.Validation("%s: %s does not exist", field, id).WithFields(field)
	}
	return err
}

// RequestAnalysis creates a batch in Analyzing over the given goals and
// sends the analysis webhook. When the webhook fails the batch still
// exists; the outcome is returned alongside the error.
func (c *Controller) RequestAnalysis(ctx context.Context, req AnalysisRequest) (*DispatchOutcome, error) {
	if len(req.GoalIDs) == 0 {
		return nil, apperr.Validation("at least one goal is required").WithFields("goal_ids")
	}
	if err := c.requireConfigured(model.PhaseAnalysis); err != nil {
		return nil, err
	}

	batch := &model.AnalysisBatch{
		Name:            strings.TrimSpace(req.BatchName),
		Status:          model.BatchStatusDraft,
		CreatedByUserID: req.UserID,
		BusinessUnitID:  req.BusinessUnitID,
	}
	if batch.Name == "" {
		batch.Name = fmt.Sprintf("Analysis %s", c.now().Format("2006-01-02 15:04"))
	}

	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetUser(ctx, req.UserID); err != nil {
			return referenceError(err, "user_id", req.UserID)
		}
		if _, err := tx.GetBusinessUnit(ctx, req.BusinessUnitID); err != nil {
			return referenceError(err, "business_unit_id", req.BusinessUnitID)
		}

		goals, err := tx.GoalsByIDs(ctx, req.GoalIDs)
		if err != nil {
			return err
		}
		found := make(map[string]bool, len(goals))
		for _, g := range goals {
			found[g.ID] = true
		}
		for _, id := range req.GoalIDs {
			if !found[id] {
				return apperr.Validation("goal %s does not exist", id).WithFields("goal_ids")
			}
		}

		held, err := tx.HeldGoals(ctx, req.GoalIDs)
		if err != nil {
			return err
		}
		for _, id := range req.GoalIDs {
			if other, ok := held[id]; ok {
				return apperr.Conflict("goal %s is already part of batch %s", id, other).WithFields("goal_ids")
			}
		}

		if err := checkTransition(batch.Status, model.BatchStatusAnalyzing); err != nil {
			return err
		}
		batch.Status = model.BatchStatusAnalyzing
		if err := tx.CreateBatch(ctx, batch); err != nil {
			return err
		}
		_, err = tx.StampGoals(ctx, batch.ID, req.GoalIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("analysis batch created",
		zap.String("batch_id", batch.ID),
		zap.Int("goals", len(req.GoalIDs)),
	)

	return c.sendAnalysis(ctx, batch)
}

// sendAnalysis builds and sends the analysis payload for batch. Without a
// configured URL it returns the payload as a dry run.
func (c *Controller) sendAnalysis(ctx context.Context, batch *model.AnalysisBatch) (*DispatchOutcome, error) {
	payload, err := c.buildAnalysisPayload(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	out := &DispatchOutcome{BatchID: batch.ID, Status: batch.Status, GoalsAnalyzed: payload.TotalGoals}

	if !c.dispatcher.Configured(model.PhaseAnalysis) {
		zap.L().Warn("analysis webhook not configured, returning payload preview",
			zap.String("batch_id", batch.ID))
		out.DryRun = true
		out.Payload = payload
		return out, nil
	}

	n, err := c.notify(ctx, batch.ID, model.PhaseAnalysis, payload)
	out.Notification = &n
	return out, err
}

// Retrigger resends the webhook of the phase the batch is waiting on. The
// status does not change.
func (c *Controller) Retrigger(ctx context.Context, batchID string) (*DispatchOutcome, error) {
	b, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := checkAllowed(b, ActionRetrigger); err != nil {
		return nil, err
	}
	phase, _ := AwaitedPhase(b.Status)
	if err := c.requireConfigured(phase); err != nil {
		return nil, err
	}
	zap.L().Info("retriggering webhook",
		zap.String("batch_id", batchID),
		zap.String("phase", string(phase)),
	)

	if phase == model.PhaseAnalysis {
		return c.sendAnalysis(ctx, b)
	}
	n, err := c.notify(ctx, batchID, phase, batchRef{BatchID: batchID})
	return &DispatchOutcome{BatchID: batchID, Status: b.Status, Notification: &n}, err
}

// batchRef is the body of the KPI and daily-task webhooks.
type batchRef struct {
	BatchID string `json:"batch_id"`
}
