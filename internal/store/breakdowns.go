package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/db"
	"github.com/sells-group/goalflow/internal/model"
)

// BreakdownFilter narrows ListBreakdowns.
type BreakdownFilter struct {
	BatchID string
	GoalID  string
	Status  string
}

const (
	breakdownColumns      = `id, batch_id, goal_id, name, CAST(value AS TEXT), unit, description, status, created_at`
	breakdownColumnsPlain = `id, batch_id, goal_id, name, value, unit, description, status, created_at`
)

func scanBreakdown(row db.Row) (*model.ProposedBreakdown, error) {
	var b model.ProposedBreakdown
	var batchID, goalID *string
	var value string
	if err := row.Scan(&b.ID, &batchID, &goalID, &b.Name, &value, &b.Unit, &b.Description, &b.Status, &b.CreatedAt); err != nil {
		return nil, err
	}
	owner, err := model.OwnerFrom(batchID, goalID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: breakdown %s", b.ID)
	}
	b.Owner = owner
	if b.Value, err = scanAmount(value); err != nil {
		return nil, err
	}
	return &b, nil
}

// InsertBreakdown adds a breakdown, assigning an id and default status.
func (q queries) InsertBreakdown(ctx context.Context, b *model.ProposedBreakdown) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = model.BreakdownPendingApproval
	}
	b.CreatedAt = now()
	batchID, goalID := b.Owner.Columns()
	_, err := q.q.Exec(ctx,
		`INSERT INTO proposed_breakdowns (`+breakdownColumnsPlain+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, batchID, goalID, b.Name, q.amount(b.Value), b.Unit, b.Description, b.Status, b.CreatedAt)
	return eris.Wrap(err, "store: insert breakdown")
}

// UpdateBreakdown overwrites a breakdown's editable fields. The owner is
// fixed at creation.
func (q queries) UpdateBreakdown(ctx context.Context, b model.ProposedBreakdown) error {
	n, err := q.q.Exec(ctx,
		`UPDATE proposed_breakdowns SET name = ?, value = ?, unit = ?, description = ?, status = ? WHERE id = ?`,
		b.Name, q.amount(b.Value), b.Unit, b.Description, b.Status, b.ID)
	if err != nil {
		return eris.Wrapf(err, "store: update breakdown %s", b.ID)
	}
	if n == 0 {
		return notFound("breakdown", b.ID)
	}
	return nil
}

// GetBreakdown returns one breakdown.
func (q queries) GetBreakdown(ctx context.Context, id string) (*model.ProposedBreakdown, error) {
	b, err := scanBreakdown(q.q.QueryRow(ctx, `SELECT `+breakdownColumns+` FROM proposed_breakdowns WHERE id = ?`, id))
	if db.IsNoRows(err) {
		return nil, notFound("breakdown", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get breakdown %s", id)
	}
	return b, nil
}

// ListBreakdowns returns breakdowns matching f in creation order.
func (q queries) ListBreakdowns(ctx context.Context, f BreakdownFilter) ([]model.ProposedBreakdown, error) {
	query := `SELECT ` + breakdownColumns + ` FROM proposed_breakdowns WHERE 1=1`
	var args []any
	if f.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, f.BatchID)
	}
	if f.GoalID != "" {
		query += ` AND goal_id = ?`
		args = append(args, f.GoalID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list breakdowns")
	}
	defer rows.Close()

	out := []model.ProposedBreakdown{}
	for rows.Next() {
		b, err := scanBreakdown(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan breakdown")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate breakdowns")
}

// DeleteBreakdown removes one breakdown. KPIs pointing at it lose the link.
func (q queries) DeleteBreakdown(ctx context.Context, id string) error {
	n, err := q.q.Exec(ctx, `DELETE FROM proposed_breakdowns WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "store: delete breakdown %s", id)
	}
	if n == 0 {
		return notFound("breakdown", id)
	}
	return nil
}

// ReplaceGoalBreakdowns swaps a goal's pending breakdowns for bds. Approved
// and rejected rows stay.
func (q queries) ReplaceGoalBreakdowns(ctx context.Context, goalID string, bds []model.ProposedBreakdown) ([]model.ProposedBreakdown, error) {
	if _, err := q.q.Exec(ctx,
		`DELETE FROM proposed_breakdowns WHERE goal_id = ? AND status = ?`,
		goalID, model.BreakdownPendingApproval); err != nil {
		return nil, eris.Wrapf(err, "store: clear pending breakdowns of goal %s", goalID)
	}
	out := make([]model.ProposedBreakdown, 0, len(bds))
	for _, b := range bds {
		b.ID = ""
		b.Owner = model.GoalRef(goalID)
		b.Status = model.BreakdownPendingApproval
		if err := q.InsertBreakdown(ctx, &b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
