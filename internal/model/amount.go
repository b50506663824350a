package model

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/rotisserie/eris"
)

// Amount is a non-negative integer of arbitrary precision. It is always
// serialized as a decimal string so clients that parse JSON numbers as
// float64 never lose digits.
type Amount struct {
	v *big.Int
}

// NewAmount returns an Amount for n. Negative inputs are clamped to zero.
func NewAmount(n int64) Amount {
	if n < 0 {
		n = 0
	}
	return Amount{v: big.NewInt(n)}
}

// AmountFromBig copies b into an Amount.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, eris.New("amount: must not be negative")
	}
	return Amount{v: new(big.Int).Set(b)}, nil
}

// ParseAmount parses a decimal integer, optionally grouped with dots in the
// id-ID style ("360.000.000"). Grouping must be well formed: a leading group
// of one to three digits followed by groups of exactly three.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, eris.New("amount: empty value")
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, eris.Errorf("amount: %q must not be negative", s)
	}
	s = strings.TrimPrefix(s, "+")

	digits := s
	if strings.Contains(s, ".") {
		groups := strings.Split(s, ".")
		if len(groups[0]) == 0 || len(groups[0]) > 3 {
			return Amount{}, eris.Errorf("amount: %q has malformed digit grouping", s)
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return Amount{}, eris.Errorf("amount: %q has malformed digit grouping", s)
			}
		}
		digits = strings.Join(groups, "")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Amount{}, eris.Errorf("amount: %q is not an integer", s)
		}
	}

	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, eris.Errorf("amount: %q is not an integer", s)
	}
	return Amount{v: v}, nil
}

// MustParseAmount is ParseAmount for literals in tests and defaults.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the plain decimal form without grouping.
func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

// BigInt returns a copy of the underlying value.
func (a Amount) BigInt() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.v == nil || a.v.Sign() == 0
}

// Cmp compares two amounts like big.Int.Cmp.
func (a Amount) Cmp(b Amount) int {
	return a.BigInt().Cmp(b.BigInt())
}

// MarshalJSON encodes the amount as a JSON string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a JSON string (grouped or plain) or an integer literal.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return eris.New("amount: null value")
	}
	var raw string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return eris.Wrap(err, "amount: decode string")
		}
	} else {
		raw = string(b)
		if strings.ContainsAny(raw, ".eE") {
			return eris.Errorf("amount: %s is not an integer", raw)
		}
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalYAML renders the amount as a string scalar.
func (a Amount) MarshalYAML() (any, error) {
	return a.String(), nil
}
