package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/db"
	"github.com/sells-group/goalflow/internal/model"
)

// GoalFilter narrows ListGoals.
type GoalFilter struct {
	BatchID        string
	BusinessUnitID string
	Status         string
}

const goalColumnTemplate = `@id, @name, CAST(@target_value AS TEXT), @target_unit, @start_date, @end_date,
	@business_unit_id, @created_by_user_id, @batch_id, @status, @created_at`

// goalColumns returns the goal select list, qualified with alias when given.
func goalColumns(alias string) string {
	return replaceAlias(goalColumnTemplate, alias)
}

// replaceAlias expands @ markers in a column template to alias.
func replaceAlias(template, alias string) string {
	return strings.ReplaceAll(template, "@", alias)
}

// goalScan collects the raw columns of a goal row.
type goalScan struct {
	g          model.StrategicGoal
	target     string
	start, end time.Time
}

func (s *goalScan) dest() []any {
	return []any{&s.g.ID, &s.g.Name, &s.target, &s.g.TargetUnit, &s.start, &s.end,
		&s.g.BusinessUnitID, &s.g.CreatedByUserID, &s.g.BatchID, &s.g.Status, &s.g.CreatedAt}
}

func (s *goalScan) goal() (model.StrategicGoal, error) {
	target, err := scanAmount(s.target)
	if err != nil {
		return model.StrategicGoal{}, err
	}
	s.g.TargetValue = target
	s.g.StartDate = model.NewDate(s.start)
	s.g.EndDate = model.NewDate(s.end)
	return s.g, nil
}

func (q queries) queryGoals(ctx context.Context, query string, args ...any) ([]model.StrategicGoal, error) {
	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query goals")
	}
	defer rows.Close()

	var out []model.StrategicGoal
	for rows.Next() {
		var s goalScan
		if err := rows.Scan(s.dest()...); err != nil {
			return nil, eris.Wrap(err, "store: scan goal")
		}
		g, err := s.goal()
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate goals")
}

// CreateGoals inserts goals, filling in ids, defaults and timestamps.
func (q queries) CreateGoals(ctx context.Context, goals []model.StrategicGoal) ([]model.StrategicGoal, error) {
	created := now()
	out := make([]model.StrategicGoal, 0, len(goals))
	for _, g := range goals {
		g.ID = uuid.New().String()
		if g.TargetUnit == "" {
			g.TargetUnit = model.DefaultTargetUnit
		}
		if g.Status == "" {
			g.Status = model.GoalStatusDraft
		}
		g.CreatedAt = created
		_, err := q.q.Exec(ctx,
			`INSERT INTO strategic_goals (id, name, target_value, target_unit, start_date, end_date,
				business_unit_id, created_by_user_id, batch_id, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.Name, q.amount(g.TargetValue), g.TargetUnit, g.StartDate.Time, g.EndDate.Time,
			g.BusinessUnitID, g.CreatedByUserID, g.BatchID, g.Status, g.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "store: insert goal %q", g.Name)
		}
		out = append(out, g)
	}
	return out, nil
}

// GetGoal returns one goal.
func (q queries) GetGoal(ctx context.Context, id string) (*model.StrategicGoal, error) {
	var s goalScan
	err := q.q.QueryRow(ctx, `SELECT `+goalColumns("")+` FROM strategic_goals WHERE id = ?`, id).Scan(s.dest()...)
	if db.IsNoRows(err) {
		return nil, notFound("goal", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get goal %s", id)
	}
	g, err := s.goal()
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGoals returns goals newest first.
func (q queries) ListGoals(ctx context.Context, f GoalFilter) ([]model.StrategicGoal, error) {
	query := `SELECT ` + goalColumns("") + ` FROM strategic_goals WHERE 1=1`
	var args []any
	if f.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, f.BatchID)
	}
	if f.BusinessUnitID != "" {
		query += ` AND business_unit_id = ?`
		args = append(args, f.BusinessUnitID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC, name`
	return q.queryGoals(ctx, query, args...)
}

// GoalsByIDs returns the goals that exist among ids.
func (q queries) GoalsByIDs(ctx context.Context, ids []string) ([]model.StrategicGoal, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return q.queryGoals(ctx,
		`SELECT `+goalColumns("")+` FROM strategic_goals WHERE id IN (`+db.Placeholders(len(ids))+`) ORDER BY name`,
		stringArgs(ids)...)
}

// HeldGoals returns, for each of ids attached to a batch that is still in
// flight, the id of that batch.
func (q queries) HeldGoals(ctx context.Context, ids []string) (map[string]string, error) {
	held := make(map[string]string)
	if len(ids) == 0 {
		return held, nil
	}
	rows, err := q.q.Query(ctx,
		`SELECT g.id, b.id FROM strategic_goals g
		JOIN analysis_batches b ON b.id = g.batch_id
		WHERE g.id IN (`+db.Placeholders(len(ids))+`) AND b.status NOT IN (?, ?)`,
		append(stringArgs(ids), string(model.BatchStatusActive), string(model.BatchStatusCompleted))...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query held goals")
	}
	defer rows.Close()
	for rows.Next() {
		var goalID, batchID string
		if err := rows.Scan(&goalID, &batchID); err != nil {
			return nil, eris.Wrap(err, "store: scan held goal")
		}
		held[goalID] = batchID
	}
	return held, eris.Wrap(rows.Err(), "store: iterate held goals")
}

// StampGoals attaches goals to a batch and marks them as analyzing.
func (q queries) StampGoals(ctx context.Context, batchID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := q.q.Exec(ctx,
		`UPDATE strategic_goals SET batch_id = ?, status = ? WHERE id IN (`+db.Placeholders(len(ids))+`)`,
		stringArgs(ids, batchID, model.GoalStatusAnalyzing)...)
	return n, eris.Wrapf(err, "store: stamp goals for batch %s", batchID)
}

// GoalSummaries returns the batch's goals with the names and KPI counts the
// analysis payload carries.
func (q queries) GoalSummaries(ctx context.Context, batchID string) ([]model.GoalSummary, error) {
	rows, err := q.q.Query(ctx,
		`SELECT `+goalColumns("g.")+`,
			bu.name, bu.description, u.name, r.name,
			(SELECT COUNT(*) FROM proposed_kpis k WHERE k.goal_id = g.id),
			(SELECT COUNT(*) FROM proposed_kpis k WHERE k.goal_id = g.id AND k.is_approved = ?)
		FROM strategic_goals g
		JOIN business_units bu ON bu.id = g.business_unit_id
		JOIN users u ON u.id = g.created_by_user_id
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE g.batch_id = ?
		ORDER BY g.name`,
		true, batchID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: goal summaries for batch %s", batchID)
	}
	defer rows.Close()

	var out []model.GoalSummary
	for rows.Next() {
		var s goalScan
		var gs model.GoalSummary
		dest := append(s.dest(), &gs.BusinessUnitName, &gs.BusinessUnitDescription, &gs.CreatorName,
			&gs.CreatorRole, &gs.KPICount, &gs.KPIApproved)
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "store: scan goal summary")
		}
		g, err := s.goal()
		if err != nil {
			return nil, err
		}
		gs.StrategicGoal = g
		out = append(out, gs)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate goal summaries")
}
