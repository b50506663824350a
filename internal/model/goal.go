package model

import "time"

// Goal statuses written by this service. Other values may come from the engine.
const (
	GoalStatusDraft     = "draft"
	GoalStatusAnalyzing = "analyzing"
)

// DefaultTargetUnit applies when a goal or KPI is created without a unit.
const DefaultTargetUnit = "units"

// StrategicGoal is a manager-defined objective with a numeric target.
type StrategicGoal struct {
	ID              string    `json:"goal_id" yaml:"goal_id"`
	Name            string    `json:"goal_name" yaml:"goal_name"`
	TargetValue     Amount    `json:"target_value" yaml:"target_value"`
	TargetUnit      string    `json:"target_unit" yaml:"target_unit"`
	StartDate       Date      `json:"start_date" yaml:"start_date"`
	EndDate         Date      `json:"end_date" yaml:"end_date"`
	BusinessUnitID  string    `json:"business_unit_id" yaml:"business_unit_id"`
	CreatedByUserID string    `json:"created_by_user_id" yaml:"created_by_user_id"`
	BatchID         *string   `json:"batch_id" yaml:"batch_id,omitempty"`
	Status          string    `json:"status" yaml:"status"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}

// GoalSummary is a goal flattened with the names the analysis engine needs.
type GoalSummary struct {
	StrategicGoal
	BusinessUnitName        string
	BusinessUnitDescription *string
	CreatorName             string
	CreatorRole             *string
	KPICount                int
	KPIApproved             int
}
