package workflow

import (
	"slices"

	"github.com/sells-group/goalflow/internal/apperr"
	"github.com/sells-group/goalflow/internal/model"
)

// Action is a user operation gated on the batch status.
type Action string

const (
	ActionSaveReview   Action = "save-review"
	ActionSubmitReview Action = "submit-review"
	ActionTriggerKPI   Action = "trigger-kpi"
	ActionAssign       Action = "assign"
	ActionComplete     Action = "complete"
	ActionRetrigger    Action = "retrigger"
)

// transitions is the complete set of legal status changes.
var transitions = map[model.BatchStatus][]model.BatchStatus{
	model.BatchStatusDraft:                {model.BatchStatusAnalyzing},
	model.BatchStatusAnalyzing:            {model.BatchStatusReviewPending},
	model.BatchStatusReviewPending:        {model.BatchStatusKPIBreakdownPending},
	model.BatchStatusKPIBreakdownPending:  {model.BatchStatusKPILoading},
	model.BatchStatusKPILoading:           {model.BatchStatusKPIAssignmentPending, model.BatchStatusReviewPending},
	model.BatchStatusKPIAssignmentPending: {model.BatchStatusGeneratingDailyTasks},
	model.BatchStatusGeneratingDailyTasks: {model.BatchStatusActive, model.BatchStatusCompleted},
	model.BatchStatusActive:               {model.BatchStatusCompleted},
}

// externalFrom lists the statuses in which the batch waits on the engine.
// Only transitions out of these may be driven by engine callbacks.
var externalFrom = map[model.BatchStatus]model.Phase{
	model.BatchStatusAnalyzing:            model.PhaseAnalysis,
	model.BatchStatusKPILoading:           model.PhaseKPIBreakdown,
	model.BatchStatusGeneratingDailyTasks: model.PhaseDailyTasks,
}

var allowed = map[Action][]model.BatchStatus{
	ActionSaveReview:   {model.BatchStatusReviewPending, model.BatchStatusKPIBreakdownPending},
	ActionSubmitReview: {model.BatchStatusReviewPending},
	ActionTriggerKPI:   {model.BatchStatusKPIBreakdownPending, model.BatchStatusKPILoading},
	ActionAssign:       {model.BatchStatusKPIAssignmentPending},
	ActionComplete:     {model.BatchStatusActive},
	ActionRetrigger:    {model.BatchStatusAnalyzing, model.BatchStatusKPILoading, model.BatchStatusGeneratingDailyTasks},
}

// CanTransition reports whether a batch may move from one status to another.
func CanTransition(from, to model.BatchStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Allowed reports whether action may run while the batch is in status.
func Allowed(action Action, status model.BatchStatus) bool {
	return slices.Contains(allowed[action], status)
}

// AwaitedPhase returns the webhook phase a batch in status is waiting on.
func AwaitedPhase(status model.BatchStatus) (model.Phase, bool) {
	p, ok := externalFrom[status]
	return p, ok
}

// PollTargets returns the statuses that end a wait in status, or nil when
// the batch is not waiting on the engine.
func PollTargets(status model.BatchStatus) []model.BatchStatus {
	if _, ok := externalFrom[status]; !ok {
		return nil
	}
	return slices.Clone(transitions[status])
}

func checkAllowed(b *model.AnalysisBatch, action Action) error {
	if Allowed(action, b.Status) {
		return nil
	}
	return apperr.Validation("cannot %s: batch %s is %s", action, b.ID, b.Status).WithFields("status")
}

func checkTransition(from, to model.BatchStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return apperr.Validation("batch cannot move from %s to %s", from, to).WithFields("status")
}

func checkVersion(b *model.AnalysisBatch, expected *int) error {
	if expected == nil || *expected == b.Version {
		return nil
	}
	return apperr.Stale("batch %s is at version %d, not %d; reload and retry", b.ID, b.Version, *expected)
}
