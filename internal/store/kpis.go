package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/db"
	"github.com/sells-group/goalflow/internal/model"
)

// KPIFilter narrows ListKPIs.
type KPIFilter struct {
	GoalID     string
	BatchID    string
	IsApproved *bool
}

// KPIPatch holds the fields a reviewer may change on one KPI.
type KPIPatch struct {
	AssignedUserID *string
	IsApproved     *bool
}

const kpiColumnTemplate = `@id, @goal_id, @batch_id, @role_recommendation_id, @breakdown_id, @description,
	CAST(@target_value AS TEXT), @target_unit, @is_approved, @assigned_user_id, @status, @created_at`

func kpiColumns(alias string) string {
	return replaceAlias(kpiColumnTemplate, alias)
}

type kpiScan struct {
	k      model.ProposedKPI
	target *string
}

func (s *kpiScan) dest() []any {
	return []any{&s.k.ID, &s.k.GoalID, &s.k.BatchID, &s.k.RoleRecommendationID, &s.k.BreakdownID,
		&s.k.Description, &s.target, &s.k.TargetUnit, &s.k.IsApproved, &s.k.AssignedUserID, &s.k.Status, &s.k.CreatedAt}
}

func (s *kpiScan) kpi() (model.ProposedKPI, error) {
	t, err := scanOptAmount(s.target)
	if err != nil {
		return model.ProposedKPI{}, err
	}
	s.k.TargetValue = t
	return s.k, nil
}

// batchKPIScope matches KPIs generated for a batch directly or through one
// of its goals. It takes the batch id twice.
const batchKPIScope = `(batch_id = ? OR goal_id IN (SELECT id FROM strategic_goals WHERE batch_id = ?))`

// InsertKPI adds a KPI, assigning its id and defaults.
func (q queries) InsertKPI(ctx context.Context, k *model.ProposedKPI) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	if k.TargetUnit == "" {
		k.TargetUnit = model.DefaultTargetUnit
	}
	if k.Status == "" {
		k.Status = model.KPIStatusProposed
	}
	k.CreatedAt = now()
	_, err := q.q.Exec(ctx,
		`INSERT INTO proposed_kpis (id, goal_id, batch_id, role_recommendation_id, breakdown_id, description,
			target_value, target_unit, is_approved, assigned_user_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.GoalID, k.BatchID, k.RoleRecommendationID, k.BreakdownID, k.Description,
		q.optAmount(k.TargetValue), k.TargetUnit, k.IsApproved, k.AssignedUserID, k.Status, k.CreatedAt)
	return eris.Wrap(err, "store: insert kpi")
}

// GetKPI returns one KPI.
func (q queries) GetKPI(ctx context.Context, id string) (*model.ProposedKPI, error) {
	var s kpiScan
	err := q.q.QueryRow(ctx, `SELECT `+kpiColumns("")+` FROM proposed_kpis WHERE id = ?`, id).Scan(s.dest()...)
	if db.IsNoRows(err) {
		return nil, notFound("kpi", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get kpi %s", id)
	}
	k, err := s.kpi()
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListKPIs returns KPIs matching f in creation order.
func (q queries) ListKPIs(ctx context.Context, f KPIFilter) ([]model.ProposedKPI, error) {
	query := `SELECT ` + kpiColumns("") + ` FROM proposed_kpis WHERE 1=1`
	var args []any
	if f.GoalID != "" {
		query += ` AND goal_id = ?`
		args = append(args, f.GoalID)
	}
	if f.BatchID != "" {
		query += ` AND ` + batchKPIScope
		args = append(args, f.BatchID, f.BatchID)
	}
	if f.IsApproved != nil {
		query += ` AND is_approved = ?`
		args = append(args, *f.IsApproved)
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list kpis")
	}
	defer rows.Close()

	out := []model.ProposedKPI{}
	for rows.Next() {
		var s kpiScan
		if err := rows.Scan(s.dest()...); err != nil {
			return nil, eris.Wrap(err, "store: scan kpi")
		}
		k, err := s.kpi()
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate kpis")
}

// BatchKPIs returns a batch's KPIs with the goal, role and breakdown names
// an assigner needs.
func (q queries) BatchKPIs(ctx context.Context, batchID string) ([]model.KPIWithContext, error) {
	rows, err := q.q.Query(ctx,
		`SELECT `+kpiColumns("k.")+`, g.name, r.role_name, b.name
		FROM proposed_kpis k
		JOIN strategic_goals g ON g.id = k.goal_id
		LEFT JOIN ai_recommended_roles r ON r.id = k.role_recommendation_id
		LEFT JOIN proposed_breakdowns b ON b.id = k.breakdown_id
		WHERE k.batch_id = ? OR g.batch_id = ?
		ORDER BY g.name, k.created_at, k.id`,
		batchID, batchID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: kpis of batch %s", batchID)
	}
	defer rows.Close()

	out := []model.KPIWithContext{}
	for rows.Next() {
		var s kpiScan
		var kc model.KPIWithContext
		if err := rows.Scan(append(s.dest(), &kc.GoalName, &kc.RoleName, &kc.BreakdownName)...); err != nil {
			return nil, eris.Wrap(err, "store: scan batch kpi")
		}
		if kc.ProposedKPI, err = s.kpi(); err != nil {
			return nil, err
		}
		out = append(out, kc)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate batch kpis")
}

// UpdateKPI applies a reviewer patch and returns the updated row.
func (q queries) UpdateKPI(ctx context.Context, id string, p KPIPatch) (*model.ProposedKPI, error) {
	k, err := q.GetKPI(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.AssignedUserID != nil {
		if *p.AssignedUserID == "" {
			k.AssignedUserID = nil
			k.Status = model.KPIStatusProposed
		} else {
			if _, err := q.GetUser(ctx, *p.AssignedUserID); err != nil {
				return nil, refError(err, "assigned_user_id", *p.AssignedUserID)
			}
			k.AssignedUserID = p.AssignedUserID
			k.Status = model.KPIStatusAssigned
		}
	}
	if p.IsApproved != nil {
		k.IsApproved = *p.IsApproved
	}
	_, err = q.q.Exec(ctx,
		`UPDATE proposed_kpis SET assigned_user_id = ?, is_approved = ?, status = ? WHERE id = ?`,
		k.AssignedUserID, k.IsApproved, k.Status, id)
	if err != nil {
		return nil, eris.Wrapf(err, "store: update kpi %s", id)
	}
	return k, nil
}

// AssignKPI gives a batch's KPI to a user and approves it. A KPI outside the
// batch is a validation error.
func (q queries) AssignKPI(ctx context.Context, batchID, kpiID, userID string) error {
	n, err := q.q.Exec(ctx,
		`UPDATE proposed_kpis SET assigned_user_id = ?, status = ?, is_approved = ? WHERE id = ? AND `+batchKPIScope,
		userID, model.KPIStatusAssigned, true, kpiID, batchID, batchID)
	if err != nil {
		return eris.Wrapf(err, "store: assign kpi %s", kpiID)
	}
	if n == 0 {
		return apperr.Validation("kpi %s does not belong to batch %s", kpiID, batchID).WithFields("kpi_id")
	}
	return nil
}

// ReplaceGoalKPIs swaps a goal's unassigned KPIs for kpis and returns the
// inserted rows. Assigned KPIs are kept.
func (q queries) ReplaceGoalKPIs(ctx context.Context, goalID string, kpis []model.ProposedKPI) ([]model.ProposedKPI, error) {
	if _, err := q.q.Exec(ctx,
		`DELETE FROM proposed_kpis WHERE goal_id = ? AND assigned_user_id IS NULL`, goalID); err != nil {
		return nil, eris.Wrapf(err, "store: clear unassigned kpis of goal %s", goalID)
	}
	out := make([]model.ProposedKPI, 0, len(kpis))
	for _, k := range kpis {
		k.ID = ""
		k.GoalID = goalID
		k.AssignedUserID = nil
		k.Status = model.KPIStatusProposed
		if err := q.InsertKPI(ctx, &k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
