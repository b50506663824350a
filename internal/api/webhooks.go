package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/workflow"
)

// event carries the optional idempotency key of an engine callback.
type event struct {
	EventID string `json:"event_id"`
}

// eventID prefers the X-Event-ID header over the body field.
func eventID(r *http.Request, e event) string {
	if h := r.Header.Get("X-Event-ID"); h != "" {
		return h
	}
	return e.EventID
}

type analysisResultRequest struct {
	event
	AnalysisID     string          `json:"analysis_id" validate:"required"`
	BatchID        *string         `json:"batch_id"`
	AnalyzedAt     *time.Time      `json:"analyzed_at"`
	GoalsAnalyzed  int             `json:"goals_analyzed" validate:"gte=0"`
	PortfolioScore float64         `json:"skor_portfolio"`
	Status         string          `json:"status"`
	QuickSummary   string          `json:"ringkasan"`
	FullAnalysis   json.RawMessage `json:"full_analysis"`
}

type recommendationsRequest struct {
	event
	workflow.Recommendations
}

type kpiGenerationRequest struct {
	event
	workflow.KPIGeneration
}

type strategyBreakdownRequest struct {
	event
	workflow.StrategyBreakdown
}

type dailyTasksRequest struct {
	event
	workflow.DailyTasks
}

type batchStatusRequest struct {
	event
	BatchID string            `json:"batch_id" validate:"required"`
	Status  model.BatchStatus `json:"status" validate:"required"`
}

func (s *Server) hookAnalysisResult(w http.ResponseWriter, r *http.Request) {
	var req analysisResultRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	res := &model.AnalysisResult{
		AnalysisID:     req.AnalysisID,
		BatchID:        req.BatchID,
		AnalyzedAt:     time.Now().UTC(),
		GoalsAnalyzed:  req.GoalsAnalyzed,
		PortfolioScore: req.PortfolioScore,
		Status:         req.Status,
		QuickSummary:   req.QuickSummary,
		FullAnalysis:   req.FullAnalysis,
	}
	if req.AnalyzedAt != nil {
		res.AnalyzedAt = req.AnalyzedAt.UTC()
	}
	out, err := s.flow.SaveAnalysisResult(r.Context(), eventID(r, req.event), res)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) hookRecommendations(w http.ResponseWriter, r *http.Request) {
	var req recommendationsRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	out, err := s.flow.ApplyRecommendations(r.Context(), eventID(r, req.event), req.Recommendations)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) hookKPIGeneration(w http.ResponseWriter, r *http.Request) {
	var req kpiGenerationRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	out, err := s.flow.ApplyKPIGeneration(r.Context(), eventID(r, req.event), req.KPIGeneration)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) hookStrategyBreakdown(w http.ResponseWriter, r *http.Request) {
	var req strategyBreakdownRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	out, err := s.flow.ApplyStrategyBreakdown(r.Context(), eventID(r, req.event), req.StrategyBreakdown)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) hookDailyTasks(w http.ResponseWriter, r *http.Request) {
	var req dailyTasksRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	out, err := s.flow.ApplyDailyTasks(r.Context(), eventID(r, req.event), req.DailyTasks)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) hookBatchStatus(w http.ResponseWriter, r *http.Request) {
	var req batchStatusRequest
	if err := s.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	out, err := s.flow.ApplyBatchStatus(r.Context(), eventID(r, req.event), req.BatchID, req.Status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
