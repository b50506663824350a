package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/reconcile"
	"github.com/sells-group/goalflow/internal/store"
)

// reviewRequest is the body of the review save and submit endpoints.
type reviewRequest struct {
	Roles           []reconcile.RoleInput      `json:"teamRoles" validate:"dive"`
	Breakdowns      []reconcile.BreakdownInput `json:"breakdowns" validate:"dive"`
	Assets          []reconcile.AssetInput     `json:"assets" validate:"dive"`
	ExpectedVersion *int                       `json:"expected_version"`
}

func (r reviewRequest) set() reconcile.ReviewSet {
	return reconcile.ReviewSet{Roles: r.Roles, Breakdowns: r.Breakdowns, Assets: r.Assets}
}

type assignRequest struct {
	Assignments []model.Assignment `json:"assignments" validate:"required,min=1,dive"`
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	status, err := queryStatus(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	batches, err := s.store.ListBatches(r.Context(), store.BatchFilter{Status: status})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(batches))
}

func (s *Server) pendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountBatches(r.Context(), model.BatchStatusReviewPending)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) reviewBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.store.ListBatches(r.Context(), store.BatchFilter{Status: model.BatchStatusReviewPending})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(batches))
}

func (s *Server) checkStatus(w http.ResponseWriter, r *http.Request) {
	v, err := s.flow.Status(r.Context(), chi.URLParam(r, "batch_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetBatchDetail(r.Context(), chi.URLParam(r, "batch_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	d.Roles = nonNil(d.Roles)
	d.Breakdowns = nonNil(d.Breakdowns)
	d.Assets = nonNil(d.Assets)
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) saveReview(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, false)
}

func (s *Server) submitReview(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, true)
}

func (s *Server) review(w http.ResponseWriter, r *http.Request, submit bool) {
	var req reviewRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	batchID := chi.URLParam(r, "batch_id")
	run := s.flow.SaveReview
	if submit {
		run = s.flow.SubmitReview
	}
	out, err := run(r.Context(), batchID, req.set(), req.ExpectedVersion)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) triggerBreakdown(w http.ResponseWriter, r *http.Request) {
	out, err := s.flow.TriggerKPIGeneration(r.Context(), chi.URLParam(r, "batch_id"))
	if err != nil {
		failWith(w, r, err, outcomeOrNil(out))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) retrigger(w http.ResponseWriter, r *http.Request) {
	out, err := s.flow.Retrigger(r.Context(), chi.URLParam(r, "batch_id"))
	if err != nil {
		failWith(w, r, err, outcomeOrNil(out))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) completeBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.flow.CompleteBatch(r.Context(), chi.URLParam(r, "batch_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) dispatchFailures(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if _, err := s.store.GetBatch(r.Context(), batchID); err != nil {
		fail(w, r, err)
		return
	}
	unresolved, err := queryBool(r, "unresolved")
	if err != nil {
		fail(w, r, err)
		return
	}
	f := store.DispatchFailureFilter{BatchID: batchID, UnresolvedOnly: unresolved != nil && *unresolved}
	rows, err := s.store.ListDispatchFailures(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) getAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := chi.URLParam(r, "batch_id")
	b, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		fail(w, r, err)
		return
	}
	kpis, err := s.store.BatchKPIs(ctx, batchID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": b, "kpis": nonNil(kpis)})
}

func (s *Server) assignKPIs(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	out, err := s.flow.AssignKPIs(r.Context(), chi.URLParam(r, "batch_id"), req.Assignments)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
