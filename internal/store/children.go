package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/db"
	"github.com/sells-group/goalflow/internal/model"
)

// Collection names a set of rows owned by a batch.
type Collection int

const (
	CollectionRoles Collection = iota
	CollectionBreakdowns
	CollectionAssets
)

func (c Collection) String() string {
	switch c {
	case CollectionRoles:
		return "roles"
	case CollectionBreakdowns:
		return "breakdowns"
	default:
		return "assets"
	}
}

func (c Collection) table() string {
	switch c {
	case CollectionRoles:
		return "ai_recommended_roles"
	case CollectionBreakdowns:
		return "proposed_breakdowns"
	default:
		return "batch_managed_assets"
	}
}

// ChildIDs returns the ids of a batch's rows in a collection.
func (q queries) ChildIDs(ctx context.Context, c Collection, batchID string) ([]string, error) {
	rows, err := q.q.Query(ctx, `SELECT id FROM `+c.table()+` WHERE batch_id = ? ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list %s ids", c)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrapf(err, "store: scan %s id", c)
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrapf(rows.Err(), "store: iterate %s ids", c)
}

// DeleteChildren removes the given rows of a batch's collection in one
// statement. Ids that belong to another batch are not touched.
func (q queries) DeleteChildren(ctx context.Context, c Collection, batchID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := q.q.Exec(ctx,
		`DELETE FROM `+c.table()+` WHERE batch_id = ? AND id IN (`+db.Placeholders(len(ids))+`)`,
		stringArgs(ids, batchID)...)
	return n, eris.Wrapf(err, "store: delete %s", c)
}

// InsertBatchRole adds a recommended role, assigning an id when empty.
func (q queries) InsertBatchRole(ctx context.Context, r *model.RecommendedRole) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.CreatedAt = now()
	_, err := q.q.Exec(ctx,
		`INSERT INTO ai_recommended_roles (id, batch_id, role_name, responsibilities, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.BatchID, r.Name, r.Responsibilities, r.CreatedAt)
	return eris.Wrap(err, "store: insert recommended role")
}

// UpdateBatchRole overwrites a recommended role's fields.
func (q queries) UpdateBatchRole(ctx context.Context, r model.RecommendedRole) error {
	n, err := q.q.Exec(ctx,
		`UPDATE ai_recommended_roles SET role_name = ?, responsibilities = ? WHERE id = ? AND batch_id = ?`,
		r.Name, r.Responsibilities, r.ID, r.BatchID)
	if err != nil {
		return eris.Wrapf(err, "store: update recommended role %s", r.ID)
	}
	if n == 0 {
		return notFound("recommended role", r.ID)
	}
	return nil
}

// ListBatchRoles returns a batch's recommended roles in creation order.
func (q queries) ListBatchRoles(ctx context.Context, batchID string) ([]model.RecommendedRole, error) {
	rows, err := q.q.Query(ctx,
		`SELECT id, batch_id, role_name, responsibilities, created_at FROM ai_recommended_roles
		WHERE batch_id = ? ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list recommended roles")
	}
	defer rows.Close()

	out := []model.RecommendedRole{}
	for rows.Next() {
		var r model.RecommendedRole
		if err := rows.Scan(&r.ID, &r.BatchID, &r.Name, &r.Responsibilities, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan recommended role")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate recommended roles")
}

const assetColumns = `id, batch_id, asset_category, asset_name, asset_identifier, metric_name, CAST(metric_value AS TEXT), created_at`

// InsertAsset adds a managed asset, assigning an id when empty.
func (q queries) InsertAsset(ctx context.Context, a *model.ManagedAsset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = now()
	_, err := q.q.Exec(ctx,
		`INSERT INTO batch_managed_assets (id, batch_id, asset_category, asset_name, asset_identifier, metric_name, metric_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BatchID, a.Category, a.Name, a.Identifier, a.MetricName, q.optAmount(a.MetricValue), a.CreatedAt)
	return eris.Wrap(err, "store: insert asset")
}

// UpdateAsset overwrites a managed asset's fields.
func (q queries) UpdateAsset(ctx context.Context, a model.ManagedAsset) error {
	n, err := q.q.Exec(ctx,
		`UPDATE batch_managed_assets SET asset_category = ?, asset_name = ?, asset_identifier = ?, metric_name = ?, metric_value = ?
		WHERE id = ? AND batch_id = ?`,
		a.Category, a.Name, a.Identifier, a.MetricName, q.optAmount(a.MetricValue), a.ID, a.BatchID)
	if err != nil {
		return eris.Wrapf(err, "store: update asset %s", a.ID)
	}
	if n == 0 {
		return notFound("asset", a.ID)
	}
	return nil
}

// ListAssets returns a batch's managed assets in creation order.
func (q queries) ListAssets(ctx context.Context, batchID string) ([]model.ManagedAsset, error) {
	rows, err := q.q.Query(ctx,
		`SELECT `+assetColumns+` FROM batch_managed_assets WHERE batch_id = ? ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list assets")
	}
	defer rows.Close()

	out := []model.ManagedAsset{}
	for rows.Next() {
		var a model.ManagedAsset
		var metric *string
		if err := rows.Scan(&a.ID, &a.BatchID, &a.Category, &a.Name, &a.Identifier, &a.MetricName, &metric, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan asset")
		}
		if a.MetricValue, err = scanOptAmount(metric); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate assets")
}
