package model

import "time"

// KPI statuses.
const (
	KPIStatusProposed = "proposed"
	KPIStatusAssigned = "assigned"
)

// ProposedKPI is a measurable indicator generated for a goal.
type ProposedKPI struct {
	ID                   string    `json:"kpi_id"`
	GoalID               string    `json:"goal_id"`
	BatchID              *string   `json:"batch_id"`
	RoleRecommendationID *string   `json:"role_recommendation_id"`
	BreakdownID          *string   `json:"breakdown_id"`
	Description          string    `json:"kpi_description"`
	TargetValue          *Amount   `json:"kpi_target_value"`
	TargetUnit           string    `json:"target_unit"`
	IsApproved           bool      `json:"is_approved"`
	AssignedUserID       *string   `json:"assigned_user_id"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
}

// KPIWithContext carries the role and breakdown a KPI was generated for.
type KPIWithContext struct {
	ProposedKPI
	GoalName      string  `json:"goal_name"`
	RoleName      *string `json:"role_name"`
	BreakdownName *string `json:"breakdown_name"`
}

// Assignment binds one KPI to one user.
type Assignment struct {
	KPIID          string `json:"kpi_id" validate:"required"`
	AssignedUserID string `json:"assigned_user_id" validate:"required"`
}
