package model

import "time"

// Phase names one outbound webhook of the workflow.
type Phase string

const (
	PhaseAnalysis     Phase = "analysis"
	PhaseKPIBreakdown Phase = "kpi_breakdown"
	PhaseDailyTasks   Phase = "daily_tasks"
)

// DispatchFailure records an outbound call that failed after its batch
// transition was already committed.
type DispatchFailure struct {
	ID         string     `json:"id" yaml:"id"`
	BatchID    string     `json:"batch_id" yaml:"batch_id"`
	Phase      Phase      `json:"phase" yaml:"phase"`
	Error      string     `json:"error" yaml:"error"`
	ErrorType  string     `json:"error_type" yaml:"error_type"`
	Attempts   int        `json:"attempts" yaml:"attempts"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at" yaml:"resolved_at,omitempty"`
}

// ProcessedCallback marks an inbound event id as handled.
type ProcessedCallback struct {
	EventID     string    `json:"event_id"`
	Kind        string    `json:"kind"`
	ProcessedAt time.Time `json:"processed_at"`
}
