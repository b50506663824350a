package reconcile

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Number is a numeric field kept as the client sent it. Review forms send
// both JSON numbers and grouped strings like "360.000.000"; parsing waits
// until the values are applied so a bad one can be reported by field.
type Number string

// UnmarshalJSON accepts a JSON string, an integer literal or null.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "reconcile: decode number")
		}
		*n = Number(s)
	case bytes.ContainsAny(b, ".eE"):
		return eris.Errorf("reconcile: %s is not an integer", b)
	default:
		*n = Number(b)
	}
	return nil
}

// RoleInput is one recommended role as edited by the reviewer. An empty ID
// asks for a new row.
type RoleInput struct {
	ID               string `json:"role_recommendation_id,omitempty"`
	Name             string `json:"role_name" validate:"required"`
	Responsibilities string `json:"responsibilities"`
}

// BreakdownInput is one batch-level breakdown as edited by the reviewer.
type BreakdownInput struct {
	ID          string `json:"breakdown_id,omitempty"`
	Name        string `json:"name" validate:"required"`
	Value       Number `json:"value"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
}

// AssetInput is one managed asset as edited by the reviewer.
type AssetInput struct {
	ID          string  `json:"asset_id,omitempty"`
	Category    string  `json:"asset_category" validate:"required"`
	Name        string  `json:"asset_name" validate:"required"`
	Identifier  *string `json:"asset_identifier"`
	MetricName  *string `json:"metric_name"`
	MetricValue Number  `json:"metric_value"`
}

// ReviewSet is the complete desired state of a batch's child collections.
type ReviewSet struct {
	Roles      []RoleInput
	Breakdowns []BreakdownInput
	Assets     []AssetInput
}

// Counts tallies what happened to one collection.
type Counts struct {
	Kept     int `json:"kept"`
	Inserted int `json:"inserted"`
	Deleted  int `json:"deleted"`
}

// Summary reports a reconciliation per collection.
type Summary struct {
	BatchID    string `json:"batch_id"`
	Version    int    `json:"version"`
	Roles      Counts `json:"roles"`
	Breakdowns Counts `json:"breakdowns"`
	Assets     Counts `json:"assets"`
}
