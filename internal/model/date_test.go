package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-31", d.String())

	d, err = ParseDate("2025-03-01T23:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", d.String())

	_, err = ParseDate("31/01/2025")
	assert.Error(t, err)
}

func TestDate_JSON(t *testing.T) {
	t.Parallel()

	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2025-06-30"`), &d))
	assert.Equal(t, time.UTC, d.Location())

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-06-30"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`20250630`), &d))
}

func TestDate_Before(t *testing.T) {
	t.Parallel()

	a := NewDate(time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC))
	b := NewDate(time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC))
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.False(t, a.Before(a))
}
