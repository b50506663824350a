// Package reconcile makes a batch's roles, breakdowns and assets match a
// reviewed set. Rows are matched by id: missing ids are deleted, known ids
// updated and new entries inserted, all in one transaction.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
	"github.com/sells-group/goalflow/internal/store"
)

// Engine reconciles batches against a store.
type Engine struct {
	store *store.Store
}

// New returns an Engine on s.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Reconcile applies set to the batch in its own transaction.
func (e *Engine) Reconcile(ctx context.Context, batchID string, set ReviewSet) (*Summary, error) {
	var sum *Summary
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		sum, err = Apply(ctx, tx, batchID, set)
		return err
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("batch reconciled",
		zap.String("batch_id", batchID),
		zap.Int("version", sum.Version),
		zap.Any("roles", sum.Roles),
		zap.Any("breakdowns", sum.Breakdowns),
		zap.Any("assets", sum.Assets),
	)
	return sum, nil
}

// parsed holds the numeric fields of a ReviewSet after validation.
type parsed struct {
	breakdownValues []model.Amount
	metricValues    []*model.Amount
}

// parseSet validates every numeric and status field before anything is
// written.
func parseSet(set ReviewSet) (parsed, error) {
	var p parsed
	for i, b := range set.Breakdowns {
		v, err := model.ParseAmount(string(b.Value))
		if err != nil {
			field := fmt.Sprintf("breakdowns[%d].value", i)
			return p, apperr.Validation("%s: %q is not a whole non-negative number", field, b.Value).WithFields(field)
		}
		if b.Status != "" && !model.ValidBreakdownStatus(b.Status) {
			field := fmt.Sprintf("breakdowns[%d].status", i)
			return p, apperr.Validation("%s: unknown status %q", field, b.Status).WithFields(field)
		}
		p.breakdownValues = append(p.breakdownValues, v)
	}
	for i, a := range set.Assets {
		raw := strings.TrimSpace(string(a.MetricValue))
		if raw == "" {
			p.metricValues = append(p.metricValues, nil)
			continue
		}
		v, err := model.ParseAmount(raw)
		if err != nil {
			field := fmt.Sprintf("assets[%d].metric_value", i)
			return p, apperr.Validation("%s: %q is not a whole non-negative number", field, a.MetricValue).WithFields(field)
		}
		p.metricValues = append(p.metricValues, &v)
	}
	return p, nil
}

// plan splits incoming ids against the existing ones. It rejects ids that
// are not children of the batch and ids given twice.
func plan(coll, idField string, existing, incoming []string) (stale []string, err error) {
	known := make(map[string]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}
	seen := make(map[string]bool, len(incoming))
	for i, id := range incoming {
		if id == "" {
			continue
		}
		field := fmt.Sprintf("%s[%d].%s", coll, i, idField)
		if !known[id] {
			return nil, apperr.Validation("%s: %s does not belong to this batch", field, id).WithFields(field)
		}
		if seen[id] {
			return nil, apperr.Validation("%s: %s appears more than once", field, id).WithFields(field)
		}
		seen[id] = true
	}
	for _, id := range existing {
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// Apply reconciles set into the batch using the caller's transaction. It
// does not change the batch status and bumps its version once.
func Apply(ctx context.Context, tx *store.Tx, batchID string, set ReviewSet) (*Summary, error) {
	batch, err := tx.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	values, err := parseSet(set)
	if err != nil {
		return nil, err
	}

	sum := &Summary{BatchID: batchID}
	if sum.Roles, err = applyRoles(ctx, tx, batchID, set.Roles); err != nil {
		return nil, err
	}
	if sum.Breakdowns, err = applyBreakdowns(ctx, tx, batchID, set.Breakdowns, values.breakdownValues); err != nil {
		return nil, err
	}
	if sum.Assets, err = applyAssets(ctx, tx, batchID, set.Assets, values.metricValues); err != nil {
		return nil, err
	}

	if err := tx.BumpBatchVersion(ctx, batchID); err != nil {
		return nil, err
	}
	sum.Version = batch.Version + 1
	return sum, nil
}

func deleteStale(ctx context.Context, tx *store.Tx, c store.Collection, batchID string, stale []string) (int, error) {
	n, err := tx.DeleteChildren(ctx, c, batchID, stale)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func applyRoles(ctx context.Context, tx *store.Tx, batchID string, in []RoleInput) (Counts, error) {
	var c Counts
	existing, err := tx.ChildIDs(ctx, store.CollectionRoles, batchID)
	if err != nil {
		return c, err
	}
	ids := make([]string, len(in))
	for i, r := range in {
		ids[i] = r.ID
	}
	stale, err := plan("roles", "role_recommendation_id", existing, ids)
	if err != nil {
		return c, err
	}
	if c.Deleted, err = deleteStale(ctx, tx, store.CollectionRoles, batchID, stale); err != nil {
		return c, err
	}

	for _, r := range in {
		row := model.RecommendedRole{ID: r.ID, BatchID: batchID, Name: r.Name, Responsibilities: r.Responsibilities}
		if r.ID != "" {
			if err := tx.UpdateBatchRole(ctx, row); err != nil {
				return c, err
			}
			c.Kept++
			continue
		}
		if err := tx.InsertBatchRole(ctx, &row); err != nil {
			return c, err
		}
		c.Inserted++
	}
	return c, nil
}

func applyBreakdowns(ctx context.Context, tx *store.Tx, batchID string, in []BreakdownInput, values []model.Amount) (Counts, error) {
	var c Counts
	current, err := tx.ListBreakdowns(ctx, store.BreakdownFilter{BatchID: batchID})
	if err != nil {
		return c, err
	}
	status := make(map[string]string, len(current))
	existing := make([]string, len(current))
	for i, b := range current {
		existing[i] = b.ID
		status[b.ID] = b.Status
	}
	ids := make([]string, len(in))
	for i, b := range in {
		ids[i] = b.ID
	}
	stale, err := plan("breakdowns", "breakdown_id", existing, ids)
	if err != nil {
		return c, err
	}
	if c.Deleted, err = deleteStale(ctx, tx, store.CollectionBreakdowns, batchID, stale); err != nil {
		return c, err
	}

	for i, b := range in {
		row := model.ProposedBreakdown{
			ID:          b.ID,
			Owner:       model.BatchRef(batchID),
			Name:        b.Name,
			Value:       values[i],
			Unit:        b.Unit,
			Description: b.Description,
			Status:      b.Status,
		}
		if b.ID != "" {
			if row.Status == "" {
				row.Status = status[b.ID]
			}
			if err := tx.UpdateBreakdown(ctx, row); err != nil {
				return c, err
			}
			c.Kept++
			continue
		}
		if err := tx.InsertBreakdown(ctx, &row); err != nil {
			return c, err
		}
		c.Inserted++
	}
	return c, nil
}

func applyAssets(ctx context.Context, tx *store.Tx, batchID string, in []AssetInput, metrics []*model.Amount) (Counts, error) {
	var c Counts
	existing, err := tx.ChildIDs(ctx, store.CollectionAssets, batchID)
	if err != nil {
		return c, err
	}
	ids := make([]string, len(in))
	for i, a := range in {
		ids[i] = a.ID
	}
	stale, err := plan("assets", "asset_id", existing, ids)
	if err != nil {
		return c, err
	}
	if c.Deleted, err = deleteStale(ctx, tx, store.CollectionAssets, batchID, stale); err != nil {
		return c, err
	}

	for i, a := range in {
		row := model.ManagedAsset{
			ID:          a.ID,
			BatchID:     batchID,
			Category:    a.Category,
			Name:        a.Name,
			Identifier:  blankToNil(a.Identifier),
			MetricName:  blankToNil(a.MetricName),
			MetricValue: metrics[i],
		}
		if a.ID != "" {
			if err := tx.UpdateAsset(ctx, row); err != nil {
				return c, err
			}
			c.Kept++
			continue
		}
		if err := tx.InsertAsset(ctx, &row); err != nil {
			return c, err
		}
		c.Inserted++
	}
	return c, nil
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
