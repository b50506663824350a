package model

import "time"

// DailyTask is a dated action item derived from an assigned KPI.
type DailyTask struct {
	ID          string     `json:"task_id"`
	KPIID       string     `json:"kpi_id"`
	UserID      string     `json:"user_id"`
	Description string     `json:"task_description"`
	TaskDate    Date       `json:"task_date"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SetCompleted flips the completion flag. The timestamp is set on a
// false-to-true change and cleared on true-to-false; repeating the current
// value leaves it alone.
func (t *DailyTask) SetCompleted(done bool, now time.Time) {
	if done == t.IsCompleted {
		return
	}
	t.IsCompleted = done
	if done {
		ts := now.UTC()
		t.CompletedAt = &ts
		return
	}
	t.CompletedAt = nil
}
