package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/reconcile"
	"github.com/sells-group/goalflow/internal/store"
)

type createBreakdownRequest struct {
	BatchID     *string          `json:"batch_id"`
	GoalID      *string          `json:"goal_id"`
	Name        string           `json:"name" validate:"required"`
	Value       reconcile.Number `json:"value" validate:"required"`
	Unit        string           `json:"unit"`
	Description string           `json:"description"`
	Status      string           `json:"status" validate:"omitempty,oneof=pending_approval approved rejected"`
}

type patchBreakdownRequest struct {
	Name        *string           `json:"name" validate:"omitempty,min=1"`
	Value       *reconcile.Number `json:"value"`
	Unit        *string           `json:"unit"`
	Description *string           `json:"description"`
	Status      *string           `json:"status" validate:"omitempty,oneof=pending_approval approved rejected"`
}

type patchKPIRequest struct {
	AssignedUserID *string `json:"assigned_user_id"`
	IsApproved     *bool   `json:"is_approved"`
}

type createTaskRequest struct {
	KPIID       string `json:"kpi_id" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
	Description string `json:"task_description" validate:"required"`
	TaskDate    string `json:"task_date" validate:"required"`
}

type patchTaskRequest struct {
	IsCompleted *bool `json:"is_completed" validate:"required"`
}

func parseValue(raw reconcile.Number, field string) (model.Amount, error) {
	v, err := model.ParseAmount(string(raw))
	if err != nil {
		return model.Amount{}, apperr.Validation("%s: %q is not a whole non-negative number", field, raw).WithFields(field)
	}
	return v, nil
}

func (s *Server) listBreakdowns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := s.store.ListBreakdowns(r.Context(), store.BreakdownFilter{
		BatchID: q.Get("batch_id"),
		GoalID:  q.Get("goal_id"),
		Status:  q.Get("status"),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) createBreakdown(w http.ResponseWriter, r *http.Request) {
	var req createBreakdownRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	owner, err := model.OwnerFrom(req.BatchID, req.GoalID)
	if err != nil {
		fail(w, r, apperr.Validation("exactly one of batch_id or goal_id is required").WithFields("batch_id", "goal_id"))
		return
	}
	value, err := parseValue(req.Value, "value")
	if err != nil {
		fail(w, r, err)
		return
	}

	ctx := r.Context()
	b := &model.ProposedBreakdown{
		Owner:       owner,
		Name:        req.Name,
		Value:       value,
		Unit:        req.Unit,
		Description: req.Description,
		Status:      req.Status,
	}
	err = s.store.InTx(ctx, func(tx *store.Tx) error {
		switch owner.Kind {
		case model.OwnerBatch:
			if _, err := tx.GetBatch(ctx, owner.ID); err != nil {
				return missingRef(err, "batch_id", owner.ID)
			}
		case model.OwnerGoal:
			if _, err := tx.GetGoal(ctx, owner.ID); err != nil {
				return missingRef(err, "goal_id", owner.ID)
			}
		}
		return tx.InsertBreakdown(ctx, b)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) patchBreakdown(w http.ResponseWriter, r *http.Request) {
	var req patchBreakdownRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	var out *model.ProposedBreakdown
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		b, err := tx.GetBreakdown(ctx, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			b.Name = *req.Name
		}
		if req.Value != nil {
			if b.Value, err = parseValue(*req.Value, "value"); err != nil {
				return err
			}
		}
		if req.Unit != nil {
			b.Unit = *req.Unit
		}
		if req.Description != nil {
			b.Description = *req.Description
		}
		if req.Status != nil {
			b.Status = *req.Status
		}
		if err := tx.UpdateBreakdown(ctx, *b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteBreakdown(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteBreakdown(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listKPIs(w http.ResponseWriter, r *http.Request) {
	approved, err := queryBool(r, "is_approved")
	if err != nil {
		fail(w, r, err)
		return
	}
	rows, err := s.store.ListKPIs(r.Context(), store.KPIFilter{
		GoalID:     r.URL.Query().Get("goal_id"),
		BatchID:    r.URL.Query().Get("batch_id"),
		IsApproved: approved,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) patchKPI(w http.ResponseWriter, r *http.Request) {
	var req patchKPIRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.AssignedUserID == nil && req.IsApproved == nil {
		fail(w, r, apperr.Validation("nothing to update").WithFields("assigned_user_id", "is_approved"))
		return
	}
	k, err := s.store.UpdateKPI(r.Context(), chi.URLParam(r, "id"), store.KPIPatch{
		AssignedUserID: req.AssignedUserID,
		IsApproved:     req.IsApproved,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	done, err := queryBool(r, "is_completed")
	if err != nil {
		fail(w, r, err)
		return
	}
	day, err := queryDate(r, "task_date")
	if err != nil {
		fail(w, r, err)
		return
	}
	rows, err := s.store.ListTasks(r.Context(), store.TaskFilter{
		UserID:      r.URL.Query().Get("user_id"),
		KPIID:       r.URL.Query().Get("kpi_id"),
		TaskDate:    day,
		IsCompleted: done,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	day, err := model.ParseDate(req.TaskDate)
	if err != nil {
		fail(w, r, apperr.Validation("task_date: %q is not a date", req.TaskDate).WithFields("task_date"))
		return
	}

	ctx := r.Context()
	t := &model.DailyTask{KPIID: req.KPIID, UserID: req.UserID, Description: req.Description, TaskDate: day}
	err = s.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetKPI(ctx, req.KPIID); err != nil {
			return missingRef(err, "kpi_id", req.KPIID)
		}
		if _, err := tx.GetUser(ctx, req.UserID); err != nil {
			return missingRef(err, "user_id", req.UserID)
		}
		existing, err := tx.ListTasks(ctx, store.TaskFilter{KPIID: req.KPIID, UserID: req.UserID, TaskDate: &day})
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Description == req.Description {
				return apperr.Conflict("task already exists for this kpi, user and date").WithFields("task_description")
			}
		}
		return tx.InsertTask(ctx, t)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) patchTask(w http.ResponseWriter, r *http.Request) {
	var req patchTaskRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	t, err := s.store.SetTaskCompleted(r.Context(), chi.URLParam(r, "id"), *req.IsCompleted)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
