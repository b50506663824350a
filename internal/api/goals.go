package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/reconcile"
	"github.com/sells-group/goalflow/internal/store"
	"github.com/sells-group/goalflow/internal/workflow"
)

type goalInput struct {
	Name        string           `json:"goal_name" validate:"required"`
	TargetValue reconcile.Number `json:"target_value" validate:"required"`
	TargetUnit  string           `json:"target_unit"`
}

type dateRange struct {
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

type createGoalsRequest struct {
	Goals          []goalInput `json:"goals" validate:"required,min=1,dive"`
	DateRange      dateRange   `json:"date_range"`
	UserID         string      `json:"user_id" validate:"required"`
	BusinessUnitID string      `json:"business_unit_id" validate:"required"`
}

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.store.ListGoals(r.Context(), store.GoalFilter{
		BatchID:        r.URL.Query().Get("batch_id"),
		BusinessUnitID: r.URL.Query().Get("business_unit_id"),
		Status:         r.URL.Query().Get("status"),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(goals))
}

func (s *Server) getGoal(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.GetGoal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// parseGoals checks a create request and converts it into goals.
func parseGoals(req createGoalsRequest) ([]model.StrategicGoal, error) {
	start, err := model.ParseDate(req.DateRange.StartDate)
	if err != nil {
		return nil, apperr.Validation("date_range.start_date: %q is not a date", req.DateRange.StartDate).WithFields("date_range.start_date")
	}
	end, err := model.ParseDate(req.DateRange.EndDate)
	if err != nil {
		return nil, apperr.Validation("date_range.end_date: %q is not a date", req.DateRange.EndDate).WithFields("date_range.end_date")
	}
	if !start.Before(end) {
		return nil, apperr.Validation("start_date must be before end_date").WithFields("date_range.end_date")
	}

	goals := make([]model.StrategicGoal, 0, len(req.Goals))
	for i, in := range req.Goals {
		v, err := model.ParseAmount(string(in.TargetValue))
		if err != nil {
			field := fmt.Sprintf("goals[%d].target_value", i)
			return nil, apperr.Validation("%s: %q is not a whole non-negative number", field, in.TargetValue).WithFields(field)
		}
		goals = append(goals, model.StrategicGoal{
			Name:            in.Name,
			TargetValue:     v,
			TargetUnit:      in.TargetUnit,
			StartDate:       start,
			EndDate:         end,
			BusinessUnitID:  req.BusinessUnitID,
			CreatedByUserID: req.UserID,
		})
	}
	return goals, nil
}

func (s *Server) createGoals(w http.ResponseWriter, r *http.Request) {
	var req createGoalsRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	goals, err := parseGoals(req)
	if err != nil {
		fail(w, r, err)
		return
	}

	ctx := r.Context()
	var created []model.StrategicGoal
	err = s.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetUser(ctx, req.UserID); err != nil {
			return missingRef(err, "user_id", req.UserID)
		}
		if _, err := tx.GetBusinessUnit(ctx, req.BusinessUnitID); err != nil {
			return missingRef(err, "business_unit_id", req.BusinessUnitID)
		}
		created, err = tx.CreateGoals(ctx, goals)
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"goals": created, "count": len(created)})
}

func (s *Server) analyzeGoals(w http.ResponseWriter, r *http.Request) {
	var req workflow.AnalysisRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	out, err := s.flow.RequestAnalysis(r.Context(), req)
	if err != nil {
		failWith(w, r, err, outcomeOrNil(out))
		return
	}
	writeJSON(w, http.StatusOK, out)
}
