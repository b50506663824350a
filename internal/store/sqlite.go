package store

import (
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/goalflow/internal/db"
)

// connPragmas apply to every pooled connection through the DSN.
var connPragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range connPragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, eris.Wrap(err, "sqlite: exec PRAGMA journal_mode=WAL")
	}
	return New(db.FromSQL(sqlDB, db.SQLite)), nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS business_units (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS roles (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	email            TEXT NOT NULL UNIQUE,
	role_id          TEXT REFERENCES roles(id),
	business_unit_id TEXT REFERENCES business_units(id),
	created_at       DATETIME NOT NULL
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
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS strategic_goals (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	target_value       TEXT NOT NULL,
	target_unit        TEXT NOT NULL DEFAULT 'units',
	start_date         DATE NOT NULL,
	end_date           DATE NOT NULL,
	business_unit_id   TEXT NOT NULL REFERENCES business_units(id),
	created_by_user_id TEXT NOT NULL REFERENCES users(id),
	batch_id           TEXT REFERENCES analysis_batches(id) ON DELETE SET NULL,
	status             TEXT NOT NULL DEFAULT 'draft',
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ai_recommended_roles (
	id               TEXT PRIMARY KEY,
	batch_id         TEXT NOT NULL REFERENCES analysis_batches(id) ON DELETE CASCADE,
	role_name        TEXT NOT NULL,
	responsibilities TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS proposed_breakdowns (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT REFERENCES analysis_batches(id) ON DELETE CASCADE,
	goal_id     TEXT REFERENCES strategic_goals(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	value       TEXT NOT NULL,
	unit        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending_approval',
	created_at  DATETIME NOT NULL,
	CHECK ((batch_id IS NULL) <> (goal_id IS NULL))
);

CREATE TABLE IF NOT EXISTS batch_managed_assets (
	id               TEXT PRIMARY KEY,
	batch_id         TEXT NOT NULL REFERENCES analysis_batches(id) ON DELETE CASCADE,
	asset_category   TEXT NOT NULL,
	asset_name       TEXT NOT NULL,
	asset_identifier TEXT,
	metric_name      TEXT,
	metric_value     TEXT,
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS proposed_kpis (
	id                     TEXT PRIMARY KEY,
	goal_id                TEXT NOT NULL REFERENCES strategic_goals(id) ON DELETE CASCADE,
	batch_id               TEXT REFERENCES analysis_batches(id) ON DELETE SET NULL,
	role_recommendation_id TEXT REFERENCES ai_recommended_roles(id) ON DELETE SET NULL,
	breakdown_id           TEXT REFERENCES proposed_breakdowns(id) ON DELETE SET NULL,
	description            TEXT NOT NULL,
	target_value           TEXT,
	target_unit            TEXT NOT NULL DEFAULT 'units',
	is_approved            INTEGER NOT NULL DEFAULT 0,
	assigned_user_id       TEXT REFERENCES users(id),
	status                 TEXT NOT NULL DEFAULT 'proposed',
	created_at             DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_tasks (
	id           TEXT PRIMARY KEY,
	kpi_id       TEXT NOT NULL REFERENCES proposed_kpis(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL REFERENCES users(id),
	description  TEXT NOT NULL,
	task_date    DATE NOT NULL,
	is_completed INTEGER NOT NULL DEFAULT 0,
	completed_at DATETIME,
	created_at   DATETIME NOT NULL,
	UNIQUE (kpi_id, user_id, task_date, description)
);

CREATE TABLE IF NOT EXISTS analysis_results (
	analysis_id     TEXT PRIMARY KEY,
	batch_id        TEXT,
	analyzed_at     DATETIME NOT NULL,
	goals_analyzed  INTEGER NOT NULL DEFAULT 0,
	portfolio_score REAL NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT '',
	quick_summary   TEXT NOT NULL DEFAULT '',
	full_analysis   TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS processed_callbacks (
	event_id     TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	processed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dispatch_failures (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT NOT NULL REFERENCES analysis_batches(id) ON DELETE CASCADE,
	phase       TEXT NOT NULL,
	error       TEXT NOT NULL,
	error_type  TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 1,
	created_at  DATETIME NOT NULL,
	resolved_at DATETIME
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
