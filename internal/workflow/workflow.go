// Package workflow drives analysis batches through their lifecycle. User
// actions and engine callbacks change status through compare-and-set
// updates; outbound webhooks are sent only after the local change commits.
package workflow

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/dispatch"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/resilience"
	"github.com/sells-group/goalflow/internal/store"
)

// Dispatcher sends webhook payloads to the engine.
type Dispatcher interface {
	Configured(phase model.Phase) bool
	Send(ctx context.Context, phase model.Phase, payload any) (*dispatch.Response, error)
}

// Controller runs batch lifecycle operations.
type Controller struct {
	store      *store.Store
	dispatcher Dispatcher
	production bool
	now        func() time.Time
}

// New returns a Controller. In production a missing webhook URL is an
// error; otherwise the call is dry-run or skipped.
func New(s *store.Store, d Dispatcher, production bool) *Controller {
	return &Controller{
		store:      s,
		dispatcher: d,
		production: production,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Notification reports the outcome of a webhook sent after commit.
type Notification struct {
	Phase   model.Phase        `json:"phase"`
	Sent    bool               `json:"sent"`
	Skipped bool               `json:"skipped,omitempty"`
	Error   string             `json:"error,omitempty"`
	Webhook *dispatch.Response `json:"webhook,omitempty"`
}

// requireConfigured fails early in production when phase has no URL.
func (c *Controller) requireConfigured(phase model.Phase) error {
	if !c.production || c.dispatcher.Configured(phase) {
		return nil
	}
	return apperr.Unavailable(dispatch.ErrNotConfigured, "%s webhook is not configured", phase)
}

// notify sends payload for phase after a commit. A failure is recorded in
// the dispatch ledger and returned; the local change stands.
func (c *Controller) notify(ctx context.Context, batchID string, phase model.Phase, payload any) (Notification, error) {
	n := Notification{Phase: phase}
	if !c.dispatcher.Configured(phase) {
		zap.L().Warn("webhook not configured, skipping",
			zap.String("batch_id", batchID),
			zap.String("phase", string(phase)),
		)
		n.Skipped = true
		return n, nil
	}
	resp, err := c.dispatcher.Send(ctx, phase, payload)
	if err != nil {
		c.recordFailure(ctx, batchID, phase, err)
		n.Error = err.Error()
		return n, err
	}
	n.Sent = true
	n.Webhook = resp
	if _, err := c.store.ResolveDispatchFailures(ctx, batchID, phase); err != nil {
		zap.L().Warn("resolve dispatch failures", zap.String("batch_id", batchID), zap.Error(err))
	}
	return n, nil
}

func (c *Controller) recordFailure(ctx context.Context, batchID string, phase model.Phase, sendErr error) {
	f := &model.DispatchFailure{
		BatchID:   batchID,
		Phase:     phase,
		Error:     sendErr.Error(),
		ErrorType: resilience.Classify(sendErr),
		Attempts:  dispatch.AttemptsOf(sendErr),
	}
	zap.L().Error("webhook dispatch failed after commit",
		zap.String("batch_id", batchID),
		zap.String("phase", string(phase)),
		zap.String("error_type", f.ErrorType),
		zap.Int("attempts", f.Attempts),
		zap.Error(sendErr),
	)
	// The request context may already be cancelled; the ledger write must
	// still land.
	if err := c.store.RecordDispatchFailure(context.WithoutCancel(ctx), f); err != nil {
		zap.L().Error("record dispatch failure", zap.String("batch_id", batchID), zap.Error(err))
	}
}

// transition flips status with compare-and-set inside tx.
func transition(ctx context.Context, tx *store.Tx, b *model.AnalysisBatch, to model.BatchStatus) error {
	if err := checkTransition(b.Status, to); err != nil {
		return err
	}
	err := tx.TransitionBatch(ctx, b.ID, b.Status, to)
	if eris.Is(err, store.ErrStatusChanged) {
		return apperr.Stale("batch %s changed status concurrently; reload and retry", b.ID)
	}
	if err != nil {
		return err
	}
	b.Status = to
	b.Version++
	return nil
}

// CompleteBatch closes an Active batch.
func (c *Controller) CompleteBatch(ctx context.Context, batchID string) (*model.AnalysisBatch, error) {
	var out *model.AnalysisBatch
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		b, err := tx.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if err := checkAllowed(b, ActionComplete); err != nil {
			return err
		}
		if err := transition(ctx, tx, b, model.BatchStatusCompleted); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("batch completed", zap.String("batch_id", batchID))
	return out, nil
}

// StatusView is the polling view of a batch.
type StatusView struct {
	BatchID          string              `json:"batch_id"`
	BatchName        string              `json:"batch_name"`
	Status           model.BatchStatus   `json:"status"`
	Version          int                 `json:"version"`
	CreatedAt        time.Time           `json:"created_at"`
	HasSummary       bool                `json:"has_summary"`
	AwaitingExternal bool                `json:"awaiting_external"`
	PollTargets      []model.BatchStatus `json:"poll_targets"`
}

// Status reads a batch's status without touching its children.
func (c *Controller) Status(ctx context.Context, batchID string) (*StatusView, error) {
	b, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	targets := PollTargets(b.Status)
	if targets == nil {
		targets = []model.BatchStatus{}
	}
	return &StatusView{
		BatchID:          b.ID,
		BatchName:        b.Name,
		Status:           b.Status,
		Version:          b.Version,
		CreatedAt:        b.CreatedAt,
		HasSummary:       b.Summary != nil,
		AwaitingExternal: len(targets) > 0,
		PollTargets:      targets,
	}, nil
}
