package model

import (
	"time"
)

// BatchStatus is the lifecycle state of an analysis batch. The string values
// match what the external workflow engine reads and writes.
type BatchStatus string

const (
	BatchStatusDraft                BatchStatus = "Draft"
	BatchStatusAnalyzing            BatchStatus = "Analyzing"
	BatchStatusReviewPending        BatchStatus = "review_pending"
	BatchStatusKPIBreakdownPending  BatchStatus = "kpi_breakdown_pending"
	BatchStatusKPILoading           BatchStatus = "kpi_loading"
	BatchStatusKPIAssignmentPending BatchStatus = "KPI_Assignment_Pending"
	BatchStatusGeneratingDailyTasks BatchStatus = "Generating_Daily_Tasks"
	BatchStatusActive               BatchStatus = "Active"
	BatchStatusCompleted            BatchStatus = "completed"
)

// AllBatchStatuses lists every status in lifecycle order.
var AllBatchStatuses = []BatchStatus{
	BatchStatusDraft,
	BatchStatusAnalyzing,
	BatchStatusReviewPending,
	BatchStatusKPIBreakdownPending,
	BatchStatusKPILoading,
	BatchStatusKPIAssignmentPending,
	BatchStatusGeneratingDailyTasks,
	BatchStatusActive,
	BatchStatusCompleted,
}

// Valid reports whether s is a known status.
func (s BatchStatus) Valid() bool {
	for _, known := range AllBatchStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the batch no longer holds its goals.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusActive || s == BatchStatusCompleted
}

// AnalysisBatch groups goals submitted together for external analysis.
type AnalysisBatch struct {
	ID              string      `json:"batch_id" yaml:"batch_id"`
	Name            string      `json:"batch_name" yaml:"batch_name"`
	Status          BatchStatus `json:"status" yaml:"status"`
	CreatedByUserID string      `json:"created_by_user_id" yaml:"created_by_user_id"`
	BusinessUnitID  string      `json:"business_unit_id" yaml:"business_unit_id"`
	Summary         *string     `json:"summary" yaml:"summary,omitempty"`
	Recommendation  *string     `json:"recommendation" yaml:"recommendation,omitempty"`
	Version         int         `json:"version" yaml:"version"`
	CreatedAt       time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" yaml:"updated_at"`
}

// BatchDetail is a batch with the child collections edited during review.
type BatchDetail struct {
	AnalysisBatch `yaml:",inline"`
	Roles         []RecommendedRole   `json:"ai_recommended_roles" yaml:"ai_recommended_roles"`
	Breakdowns    []ProposedBreakdown `json:"proposed_breakdowns" yaml:"proposed_breakdowns"`
	Assets        []ManagedAsset      `json:"batch_managed_assets" yaml:"batch_managed_assets"`
}

// RecommendedRole is a team role proposed for a batch.
type RecommendedRole struct {
	ID               string    `json:"role_recommendation_id" yaml:"role_recommendation_id"`
	BatchID          string    `json:"batch_id" yaml:"batch_id"`
	Name             string    `json:"role_name" yaml:"role_name"`
	Responsibilities string    `json:"responsibilities" yaml:"responsibilities"`
	CreatedAt        time.Time `json:"created_at" yaml:"created_at"`
}

// ManagedAsset is an account, channel or other resource tracked by a batch.
type ManagedAsset struct {
	ID          string    `json:"asset_id" yaml:"asset_id"`
	BatchID     string    `json:"batch_id" yaml:"batch_id"`
	Category    string    `json:"asset_category" yaml:"asset_category"`
	Name        string    `json:"asset_name" yaml:"asset_name"`
	Identifier  *string   `json:"asset_identifier" yaml:"asset_identifier,omitempty"`
	MetricName  *string   `json:"metric_name" yaml:"metric_name,omitempty"`
	MetricValue *Amount   `json:"metric_value" yaml:"metric_value,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// AnalysisResult is the portfolio analysis posted back by the engine, keyed
// by the engine's own analysis id.
type AnalysisResult struct {
	AnalysisID     string    `json:"analysis_id"`
	BatchID        *string   `json:"batch_id"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
	GoalsAnalyzed  int       `json:"goals_analyzed"`
	PortfolioScore float64   `json:"skor_portfolio"`
	Status         string    `json:"status"`
	QuickSummary   string    `json:"ringkasan"`
	FullAnalysis   []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
