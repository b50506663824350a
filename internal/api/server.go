// Package api serves the goalflow HTTP API.
package api

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/sells-group/goalflow/internal/store"
	"github.com/sells-group/goalflow/internal/workflow"
)

// Options configures the router.
type Options struct {
	CORSOrigins   []string
	InboundSecret string
}

// Server holds the dependencies shared by all handlers.
type Server struct {
	store    *store.Store
	flow     *workflow.Controller
	validate *validator.Validate
	opts     Options
}

// New returns a Server over an open store and a workflow controller.
func New(s *store.Store, flow *workflow.Controller, opts Options) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{store: s, flow: flow, validate: v, opts: opts}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Event-ID", "X-Webhook-Secret"},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/goals", func(r chi.Router) {
			r.Get("/", s.listGoals)
			r.Post("/", s.createGoals)
			r.Post("/analyze", s.analyzeGoals)
			r.Get("/{id}", s.getGoal)
		})

		r.Get("/analysis/batches", s.listBatches)
		r.Get("/analysis/pending-count", s.pendingCount)
		r.Get("/review-batches", s.reviewBatches)
		r.Get("/check-status/{batch_id}", s.checkStatus)

		r.Route("/review/{batch_id}", func(r chi.Router) {
			r.Get("/", s.getReview)
			r.Put("/", s.saveReview)
			r.Post("/", s.submitReview)
		})
		r.Post("/trigger-ai-breakdown/{batch_id}", s.triggerBreakdown)
		r.Post("/batches/{batch_id}/retrigger", s.retrigger)
		r.Post("/batches/{batch_id}/complete", s.completeBatch)
		r.Get("/batches/{batch_id}/dispatch-failures", s.dispatchFailures)
		r.Route("/assign/{batch_id}", func(r chi.Router) {
			r.Get("/", s.getAssignments)
			r.Post("/", s.assignKPIs)
		})

		r.Route("/breakdowns", func(r chi.Router) {
			r.Get("/", s.listBreakdowns)
			r.Post("/", s.createBreakdown)
			r.Patch("/{id}", s.patchBreakdown)
			r.Delete("/{id}", s.deleteBreakdown)
		})
		r.Route("/kpis", func(r chi.Router) {
			r.Get("/", s.listKPIs)
			r.Patch("/{id}", s.patchKPI)
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Patch("/{id}", s.patchTask)
		})

		r.Route("/business-units", func(r chi.Router) {
			r.Get("/", s.listBusinessUnits)
			r.Post("/", s.createBusinessUnit)
			r.Get("/{id}", s.getBusinessUnit)
			r.Put("/{id}", s.updateBusinessUnit)
			r.Delete("/{id}", s.deleteBusinessUnit)
		})
		r.Route("/roles", func(r chi.Router) {
			r.Get("/", s.listRoles)
			r.Post("/", s.createRole)
			r.Put("/{id}", s.updateRole)
			r.Delete("/{id}", s.deleteRole)
		})
		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.listUsers)
			r.Post("/", s.createUser)
			r.Put("/{id}", s.updateUser)
			r.Delete("/{id}", s.deleteUser)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Use(s.requireSecret)
			r.Post("/analysis-result", s.hookAnalysisResult)
			r.Post("/recommendations", s.hookRecommendations)
			r.Post("/kpi-generation", s.hookKPIGeneration)
			r.Post("/strategy-breakdown", s.hookStrategyBreakdown)
			r.Post("/daily-tasks", s.hookDailyTasks)
			r.Post("/batch-status", s.hookBatchStatus)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
