package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/goalflow/internal/db"
	"github.com/sells-group/goalflow/internal/model"
)

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	UserID      string
	KPIID       string
	TaskDate    *model.Date
	IsCompleted *bool
}

const taskColumns = `id, kpi_id, user_id, description, task_date, is_completed, completed_at, created_at`

func scanTask(row db.Row) (*model.DailyTask, error) {
	var t model.DailyTask
	var day time.Time
	if err := row.Scan(&t.ID, &t.KPIID, &t.UserID, &t.Description, &day, &t.IsCompleted, &t.CompletedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.TaskDate = model.NewDate(day)
	return &t, nil
}

// InsertTask adds a task, assigning its id.
func (q queries) InsertTask(ctx context.Context, t *model.DailyTask) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = now()
	_, err := q.q.Exec(ctx,
		`INSERT INTO daily_tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.KPIID, t.UserID, t.Description, t.TaskDate.Time, t.IsCompleted, t.CompletedAt, t.CreatedAt)
	return eris.Wrap(err, "store: insert task")
}

// InsertTasksIgnoringDuplicates adds tasks, skipping any whose (kpi, user,
// date, description) already exists. It returns how many rows were added.
func (q queries) InsertTasksIgnoringDuplicates(ctx context.Context, tasks []model.DailyTask) (int, error) {
	added := 0
	for _, t := range tasks {
		n, err := q.q.Exec(ctx,
			`INSERT INTO daily_tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (kpi_id, user_id, task_date, description) DO NOTHING`,
			uuid.New().String(), t.KPIID, t.UserID, t.Description, t.TaskDate.Time, false, nil, now())
		if err != nil {
			return added, eris.Wrap(err, "store: insert task")
		}
		added += int(n)
	}
	return added, nil
}

// GetTask returns one task.
func (q queries) GetTask(ctx context.Context, id string) (*model.DailyTask, error) {
	t, err := scanTask(q.q.QueryRow(ctx, `SELECT `+taskColumns+` FROM daily_tasks WHERE id = ?`, id))
	if db.IsNoRows(err) {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get task %s", id)
	}
	return t, nil
}

// ListTasks returns tasks matching f ordered by date.
func (q queries) ListTasks(ctx context.Context, f TaskFilter) ([]model.DailyTask, error) {
	query := `SELECT ` + taskColumns + ` FROM daily_tasks WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.KPIID != "" {
		query += ` AND kpi_id = ?`
		args = append(args, f.KPIID)
	}
	if f.TaskDate != nil {
		query += ` AND task_date = ?`
		args = append(args, f.TaskDate.Time)
	}
	if f.IsCompleted != nil {
		query += ` AND is_completed = ?`
		args = append(args, *f.IsCompleted)
	}
	query += ` ORDER BY task_date, created_at, id`

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list tasks")
	}
	defer rows.Close()

	out := []model.DailyTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan task")
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate tasks")
}

// SetTaskCompleted flips a task's completion flag. The completion time is
// stamped on false to true and cleared on true to false.
func (q queries) SetTaskCompleted(ctx context.Context, id string, done bool) (*model.DailyTask, error) {
	t, err := q.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	t.SetCompleted(done, now())
	_, err = q.q.Exec(ctx,
		`UPDATE daily_tasks SET is_completed = ?, completed_at = ? WHERE id = ?`,
		t.IsCompleted, t.CompletedAt, id)
	if err != nil {
		return nil, eris.Wrapf(err, "store: update task %s", id)
	}
	return t, nil
}
