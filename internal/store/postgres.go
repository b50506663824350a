package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/db"
)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres opens a pgx pool and returns a Store on it.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return New(db.FromPgx(pool, pool.Close)), nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS business_units (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS roles (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	email            TEXT NOT NULL UNIQUE,
	role_id          TEXT REFERENCES roles(id),
	business_unit_id TEXT REFERENCES business_units(id),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_batches (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	status             TEXT NOT NULL,
	created_by_user_id TEXT NOT NULL REFERENCES users(id),
	business_unit_id   TEXT NOT NULL REFERENCES business_units(id),
	summary            TEXT,
	recommendation     TEXT,
	version            INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS strategic_goals (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	target_value       NUMERIC NOT NULL CHECK (target_value >= 0),
	target_unit        TEXT NOT NULL DEFAULT 'units',
	start_date         DATE NOT NULL,
	end_date           DATE NOT NULL,
	business_unit_id   TEXT NOT NULL REFERENCES business_units(id),
	created_by_user_id TEXT NOT NULL REFERENCES users(id),
	batch_id           TEXT REFERENCES analysis_batches(id) ON DELETE SET NULL,
	status             TEXT NOT NULL DEFAULT 'draft',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (start_date < end_date)
);

CREATE TABLE IF NOT EXISTS ai_recommended_roles (
	id               TEXT PRIMARY KEY,
	batch_id         TEXT NOT NULL REFERENCES analysis_batches(id) ON DELETE CASCADE,
	role_name        TEXT NOT NULL,
	responsibilities TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proposed_breakdowns (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT REFERENCES analysis_batches(id) ON DELETE CASCADE,
	goal_id     TEXT REFERENCES strategic_goals(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	value       NUMERIC NOT NULL CHECK (value >= 0),
	unit        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending_approval',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK ((batch_id IS NULL) <> (goal_id IS NULL))
);

CREATE TABLE IF NOT EXISTS batch_managed_assets (
	id               TEXT PRIMARY KEY,
	batch_id         TEXT NOT NULL REFERENCES analysis_batches(id) ON DELETE CASCADE,
	asset_category   TEXT NOT NULL,
	asset_name       TEXT NOT NULL,
	asset_identifier TEXT,
	metric_name      TEXT,
	metric_value     NUMERIC CHECK (metric_value >= 0),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proposed_kpis (
	id                     TEXT PRIMARY KEY,
	goal_id                TEXT NOT NULL REFERENCES strategic_goals(id) ON DELETE CASCADE,
	batch_id               TEXT REFERENCES analysis_batches(id) ON DELETE SET NULL,
	role_recommendation_id TEXT REFERENCES ai_recommended_roles(id) ON DELETE SET NULL,
	breakdown_id           TEXT REFERENCES proposed_breakdowns(id) ON DELETE SET NULL,
	description            TEXT NOT NULL,
	target_value           NUMERIC CHECK (target_value >= 0),
	target_unit            TEXT NOT NULL DEFAULT 'units',
	is_approved            BOOLEAN NOT NULL DEFAULT false,
	assigned_user_id       TEXT REFERENCES users(id),
	status                 TEXT NOT NULL DEFAULT 'proposed',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS daily_tasks (
	id           TEXT PRIMARY KEY,
	kpi_id       TEXT NOT NULL REFERENCES proposed_kpis(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL REFERENCES users(id),
	description  TEXT NOT NULL,
	task_date    DATE NOT NULL,
	is_completed BOOLEAN NOT NULL DEFAULT false,
	completed_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (kpi_id, user_id, task_date, description)
);

CREATE TABLE IF NOT EXISTS analysis_results (
	analysis_id     TEXT PRIMARY KEY,
	batch_id        TEXT,
	analyzed_at     TIMESTAMPTZ NOT NULL,
	goals_analyzed  INTEGER NOT NULL DEFAULT 0,
	portfolio_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT '',
	quick_summary   TEXT NOT NULL DEFAULT '',
	full_analysis   JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processed_callbacks (
	event_id     TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dispatch_failures (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT NOT NULL REFERENCES analysis_batches(id) ON DELETE CASCADE,
	phase       TEXT NOT NULL,
	error       TEXT NOT NULL,
	error_type  TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_goals_batch_id ON strategic_goals(batch_id);
CREATE INDEX IF NOT EXISTS idx_batches_status ON analysis_batches(status);
CREATE INDEX IF NOT EXISTS idx_roles_batch_id ON ai_recommended_roles(batch_id);
CREATE INDEX IF NOT EXISTS idx_breakdowns_batch_id ON proposed_breakdowns(batch_id);
CREATE INDEX IF NOT EXISTS idx_breakdowns_goal_id ON proposed_breakdowns(goal_id);
CREATE INDEX IF NOT EXISTS idx_assets_batch_id ON batch_managed_assets(batch_id);
CREATE INDEX IF NOT EXISTS idx_kpis_goal_id ON proposed_kpis(goal_id);
CREATE INDEX IF NOT EXISTS idx_kpis_batch_id ON proposed_kpis(batch_id);
CREATE INDEX IF NOT EXISTS idx_tasks_user_date ON daily_tasks(user_id, task_date);
CREATE INDEX IF NOT EXISTS idx_dispatch_failures_batch ON dispatch_failures(batch_id, phase);
`
