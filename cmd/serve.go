package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/goalflow/internal/api"
	"github.com/sells-group/goalflow/internal/config"
	"github.com/sells-group/goalflow/internal/dispatch"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/resilience"
	"github.com/sells-group/goalflow/internal/store"
	"github.com/sells-group/goalflow/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the goalflow HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildHandler(st, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		return runServer(ctx, srv, time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newDispatcher builds the outbound webhook client from the workflow section.
func newDispatcher(c *config.Config) *dispatch.Dispatcher {
	policy := resilience.DefaultPolicy()
	if c.Workflow.MaxAttempts > 0 {
		policy.Attempts = c.Workflow.MaxAttempts
	}
	return dispatch.New(dispatch.Options{
		URLs: map[model.Phase]string{
			model.PhaseAnalysis:     c.Workflow.AnalysisWebhookURL,
			model.PhaseKPIBreakdown: c.Workflow.BreakdownWebhookURL,
			model.PhaseDailyTasks:   c.Workflow.DailyTaskWebhookURL,
		},
		Timeout:    time.Duration(c.Workflow.TimeoutSecs) * time.Second,
		Policy:     policy,
		RatePerSec: c.Workflow.RatePerSec,
	})
}

// buildHandler wires store, dispatcher and workflow controller into the router.
func buildHandler(st *store.Store, c *config.Config) http.Handler {
	d := newDispatcher(c)
	for _, phase := range []model.Phase{model.PhaseAnalysis, model.PhaseKPIBreakdown, model.PhaseDailyTasks} {
		if !d.Configured(phase) {
			zap.L().Warn("webhook url not configured", zap.String("phase", string(phase)), zap.String("env", c.Workflow.Env))
		}
	}
	flow := workflow.New(st, d, c.IsProduction())
	return api.New(st, flow, api.Options{
		CORSOrigins:   c.Server.CORSOrigins,
		InboundSecret: c.Workflow.InboundSecret,
	}).Handler()
}

// runServer serves until ctx is cancelled, then drains in-flight requests
// for at most grace.
func runServer(ctx context.Context, srv *http.Server, grace time.Duration) error {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
	})

	return g.Wait()
}
