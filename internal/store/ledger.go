package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/db"
	"github.com/sells-group/goalflow/internal/model"
)

// UpsertAnalysisResult stores an engine analysis keyed by its analysis id.
// A repeated id overwrites the earlier row.
func (q queries) UpsertAnalysisResult(ctx context.Context, r *model.AnalysisResult) error {
	ts := now()
	var full any
	if len(r.FullAnalysis) > 0 {
		full = string(r.FullAnalysis)
	}
	_, err := q.q.Exec(ctx,
		`INSERT INTO analysis_results (analysis_id, batch_id, analyzed_at, goals_analyzed, portfolio_score,
			status, quick_summary, full_analysis, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (analysis_id) DO UPDATE SET
			batch_id = excluded.batch_id,
			analyzed_at = excluded.analyzed_at,
			goals_analyzed = excluded.goals_analyzed,
			portfolio_score = excluded.portfolio_score,
			status = excluded.status,
			quick_summary = excluded.quick_summary,
			full_analysis = excluded.full_analysis,
			updated_at = excluded.updated_at`,
		r.AnalysisID, r.BatchID, r.AnalyzedAt, r.GoalsAnalyzed, r.PortfolioScore,
		r.Status, r.QuickSummary, full, ts, ts)
	if err != nil {
		return eris.Wrapf(err, "store: upsert analysis result %s", r.AnalysisID)
	}
	r.UpdatedAt = ts
	return nil
}

// GetAnalysisResult returns one stored analysis.
func (q queries) GetAnalysisResult(ctx context.Context, analysisID string) (*model.AnalysisResult, error) {
	var r model.AnalysisResult
	var full *string
	err := q.q.QueryRow(ctx,
		`SELECT analysis_id, batch_id, analyzed_at, goals_analyzed, portfolio_score, status, quick_summary,
			CAST(full_analysis AS TEXT), created_at, updated_at
		FROM analysis_results WHERE analysis_id = ?`, analysisID,
	).Scan(&r.AnalysisID, &r.BatchID, &r.AnalyzedAt, &r.GoalsAnalyzed, &r.PortfolioScore, &r.Status,
		&r.QuickSummary, &full, &r.CreatedAt, &r.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, notFound("analysis result", analysisID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get analysis result %s", analysisID)
	}
	if full != nil {
		r.FullAnalysis = []byte(*full)
	}
	return &r, nil
}

// MarkCallbackProcessed records an inbound event id. It returns false when
// the id was already recorded.
func (q queries) MarkCallbackProcessed(ctx context.Context, eventID, kind string) (bool, error) {
	n, err := q.q.Exec(ctx,
		`INSERT INTO processed_callbacks (event_id, kind, processed_at) VALUES (?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, kind, now())
	if err != nil {
		return false, eris.Wrapf(err, "store: mark callback %s", eventID)
	}
	return n == 1, nil
}

// DispatchFailureFilter narrows ListDispatchFailures.
type DispatchFailureFilter struct {
	BatchID        string
	UnresolvedOnly bool
	Limit          int
}

// RecordDispatchFailure appends to the failed-dispatch ledger.
func (q queries) RecordDispatchFailure(ctx context.Context, f *model.DispatchFailure) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = now()
	_, err := q.q.Exec(ctx,
		`INSERT INTO dispatch_failures (id, batch_id, phase, error, error_type, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.BatchID, string(f.Phase), f.Error, f.ErrorType, f.Attempts, f.CreatedAt)
	return eris.Wrapf(err, "store: record dispatch failure for batch %s", f.BatchID)
}

// ListDispatchFailures returns ledger entries newest first.
func (q queries) ListDispatchFailures(ctx context.Context, f DispatchFailureFilter) ([]model.DispatchFailure, error) {
	query := `SELECT id, batch_id, phase, error, error_type, attempts, created_at, resolved_at FROM dispatch_failures WHERE 1=1`
	var args []any
	if f.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, f.BatchID)
	}
	if f.UnresolvedOnly {
		query += ` AND resolved_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list dispatch failures")
	}
	defer rows.Close()

	out := []model.DispatchFailure{}
	for rows.Next() {
		var d model.DispatchFailure
		var phase string
		if err := rows.Scan(&d.ID, &d.BatchID, &phase, &d.Error, &d.ErrorType, &d.Attempts, &d.CreatedAt, &d.ResolvedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan dispatch failure")
		}
		d.Phase = model.Phase(phase)
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate dispatch failures")
}

// ResolveDispatchFailures closes a batch's open failures for a phase.
func (q queries) ResolveDispatchFailures(ctx context.Context, batchID string, phase model.Phase) (int64, error) {
	n, err := q.q.Exec(ctx,
		`UPDATE dispatch_failures SET resolved_at = ? WHERE batch_id = ? AND phase = ? AND resolved_at IS NULL`,
		now(), batchID, string(phase))
	return n, eris.Wrapf(err, "store: resolve dispatch failures for batch %s", batchID)
}
