package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Breakdown statuses.
const (
	BreakdownPendingApproval = "pending_approval"
	BreakdownApproved        = "approved"
	BreakdownRejected        = "rejected"
)

// ValidBreakdownStatus reports whether s is an accepted breakdown status.
func ValidBreakdownStatus(s string) bool {
	switch s {
	case BreakdownPendingApproval, BreakdownApproved, BreakdownRejected:
		return true
	}
	return false
}

// OwnerKind says which parent a breakdown hangs off.
type OwnerKind string

const (
	OwnerBatch OwnerKind = "batch"
	OwnerGoal  OwnerKind = "goal"
)

// BreakdownOwner references exactly one parent: a batch or a goal.
type BreakdownOwner struct {
	Kind OwnerKind
	ID   string
}

// BatchRef returns an owner pointing at a batch.
func BatchRef(batchID string) BreakdownOwner {
	return BreakdownOwner{Kind: OwnerBatch, ID: batchID}
}

// GoalRef returns an owner pointing at a goal.
func GoalRef(goalID string) BreakdownOwner {
	return BreakdownOwner{Kind: OwnerGoal, ID: goalID}
}

// OwnerFrom builds an owner from the two nullable columns. Exactly one
// must be set.
func OwnerFrom(batchID, goalID *string) (BreakdownOwner, error) {
	switch {
	case batchID != nil && goalID == nil:
		return BatchRef(*batchID), nil
	case goalID != nil && batchID == nil:
		return GoalRef(*goalID), nil
	default:
		return BreakdownOwner{}, eris.New("breakdown: exactly one of batch_id or goal_id is required")
	}
}

// Columns splits the owner back into (batch_id, goal_id).
func (o BreakdownOwner) Columns() (batchID, goalID *string) {
	id := o.ID
	if o.Kind == OwnerGoal {
		return nil, &id
	}
	return &id, nil
}

// ProposedBreakdown is a numeric sub-target of a batch or a goal.
type ProposedBreakdown struct {
	ID          string         `json:"breakdown_id"`
	Owner       BreakdownOwner `json:"-"`
	Name        string         `json:"name"`
	Value       Amount         `json:"value"`
	Unit        string         `json:"unit"`
	Description string         `json:"description"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

type breakdownJSON struct {
	ID          string    `json:"breakdown_id" yaml:"breakdown_id"`
	OwnerKind   OwnerKind `json:"owner_kind" yaml:"owner_kind"`
	BatchID     *string   `json:"batch_id" yaml:"batch_id,omitempty"`
	GoalID      *string   `json:"goal_id" yaml:"goal_id,omitempty"`
	Name        string    `json:"name" yaml:"name"`
	Value       Amount    `json:"value" yaml:"value"`
	Unit        string    `json:"unit" yaml:"unit"`
	Description string    `json:"description" yaml:"description"`
	Status      string    `json:"status" yaml:"status"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

func (b ProposedBreakdown) wire() breakdownJSON {
	batchID, goalID := b.Owner.Columns()
	return breakdownJSON{
		ID:          b.ID,
		OwnerKind:   b.Owner.Kind,
		BatchID:     batchID,
		GoalID:      goalID,
		Name:        b.Name,
		Value:       b.Value,
		Unit:        b.Unit,
		Description: b.Description,
		Status:      b.Status,
		CreatedAt:   b.CreatedAt,
	}
}

// MarshalJSON flattens the owner into batch_id / goal_id.
func (b ProposedBreakdown) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.wire())
}

// MarshalYAML flattens the owner the same way as MarshalJSON.
func (b ProposedBreakdown) MarshalYAML() (any, error) {
	return b.wire(), nil
}
