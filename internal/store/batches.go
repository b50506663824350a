package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/db"
	"github.com/sells-group/goalflow/internal/model"
)

// BatchFilter narrows ListBatches.
type BatchFilter struct {
	Status model.BatchStatus
	Limit  int
}

const batchColumns = `id, name, status, created_by_user_id, business_unit_id, summary, recommendation, version, created_at, updated_at`

func scanBatch(row db.Row) (*model.AnalysisBatch, error) {
	var b model.AnalysisBatch
	var status string
	if err := row.Scan(&b.ID, &b.Name, &status, &b.CreatedByUserID, &b.BusinessUnitID,
		&b.Summary, &b.Recommendation, &b.Version, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BatchStatus(status)
	return &b, nil
}

// CreateBatch inserts b, assigning its id and timestamps.
func (q queries) CreateBatch(ctx context.Context, b *model.AnalysisBatch) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	ts := now()
	b.CreatedAt, b.UpdatedAt = ts, ts
	_, err := q.q.Exec(ctx,
		`INSERT INTO analysis_batches (`+batchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, string(b.Status), b.CreatedByUserID, b.BusinessUnitID,
		b.Summary, b.Recommendation, b.Version, b.CreatedAt, b.UpdatedAt,
	)
	return eris.Wrap(err, "store: insert batch")
}

// GetBatch returns the batch row without its children.
func (q queries) GetBatch(ctx context.Context, id string) (*model.AnalysisBatch, error) {
	b, err := scanBatch(q.q.QueryRow(ctx, `SELECT `+batchColumns+` FROM analysis_batches WHERE id = ?`, id))
	if db.IsNoRows(err) {
		return nil, notFound("batch", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get batch %s", id)
	}
	return b, nil
}

// ListBatches returns batches newest first.
func (q queries) ListBatches(ctx context.Context, f BatchFilter) ([]model.AnalysisBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM analysis_batches`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list batches")
	}
	defer rows.Close()

	var out []model.AnalysisBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan batch")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate batches")
}

// CountBatches counts batches in a status.
func (q queries) CountBatches(ctx context.Context, status model.BatchStatus) (int, error) {
	n, err := q.count(ctx, `SELECT COUNT(*) FROM analysis_batches WHERE status = ?`, string(status))
	return n, eris.Wrap(err, "store: count batches")
}

// TransitionBatch moves a batch from one status to another only if it is
// still in from. A batch found in any other status yields ErrStatusChanged.
func (q queries) TransitionBatch(ctx context.Context, id string, from, to model.BatchStatus) error {
	n, err := q.q.Exec(ctx,
		`UPDATE analysis_batches SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now(), id, string(from))
	if err != nil {
		return eris.Wrapf(err, "store: transition batch %s", id)
	}
	if n > 0 {
		return nil
	}
	if _, err := q.GetBatch(ctx, id); err != nil {
		return err
	}
	return eris.Wrapf(ErrStatusChanged, "batch %s is no longer %s", id, from)
}

// BumpBatchVersion marks the batch's children as changed.
func (q queries) BumpBatchVersion(ctx context.Context, id string) error {
	n, err := q.q.Exec(ctx,
		`UPDATE analysis_batches SET version = version + 1, updated_at = ? WHERE id = ?`, now(), id)
	if err != nil {
		return eris.Wrapf(err, "store: bump batch version %s", id)
	}
	if n == 0 {
		return notFound("batch", id)
	}
	return nil
}

// SetBatchNarrative stores the engine's summary and recommendation text.
// Nil values leave the stored text untouched.
func (q queries) SetBatchNarrative(ctx context.Context, id string, summary, recommendation *string) error {
	if summary == nil && recommendation == nil {
		return nil
	}
	_, err := q.q.Exec(ctx,
		`UPDATE analysis_batches SET summary = COALESCE(?, summary), recommendation = COALESCE(?, recommendation), updated_at = ? WHERE id = ?`,
		summary, recommendation, now(), id)
	return eris.Wrapf(err, "store: set narrative for batch %s", id)
}

// GetBatchDetail returns a batch with its roles, breakdowns and assets.
func (q queries) GetBatchDetail(ctx context.Context, id string) (*model.BatchDetail, error) {
	b, err := q.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &model.BatchDetail{AnalysisBatch: *b}
	if d.Roles, err = q.ListBatchRoles(ctx, id); err != nil {
		return nil, err
	}
	if d.Breakdowns, err = q.ListBreakdowns(ctx, BreakdownFilter{BatchID: id}); err != nil {
		return nil, err
	}
	if d.Assets, err = q.ListAssets(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}
