package history

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &Run{Kind: "documento", Duration: 1500 * time.Millisecond}
	prepareRun(run, now)

	_, err := uuid.Parse(run.ID)
	require.NoError(t, err)
	assert.Equal(t, now, run.CreatedAt)
	assert.Equal(t, int64(1500), run.DurationMs)
	assert.NotNil(t, run.ByType)

	kept := &Run{ID: "fixed", CreatedAt: now.Add(-time.Hour)}
	prepareRun(kept, now)
	assert.Equal(t, "fixed", kept.ID)
	assert.Equal(t, now.Add(-time.Hour), kept.CreatedAt)
}

func TestCountsValueAndScan(t *testing.T) {
	v, err := Counts{"email": 2}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":2}`, string(v.([]byte)))

	v, err = Counts(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), v)

	var c Counts
	require.NoError(t, c.Scan([]byte(`{"iban":1,"telefono":3}`)))
	assert.Equal(t, Counts{"iban": 1, "telefono": 3}, c)

	require.NoError(t, c.Scan(`{"cif":4}`))
	assert.Equal(t, Counts{"cif": 4}, c)

	require.NoError(t, c.Scan(nil))
	assert.Empty(t, c)

	assert.Error(t, c.Scan(42))
	assert.Error(t, c.Scan([]byte("not json")))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultRecentLimit, clampLimit(0))
	assert.Equal(t, defaultRecentLimit, clampLimit(-3))
	assert.Equal(t, 10, clampLimit(10))
	assert.Equal(t, maxRecentLimit, clampLimit(10000))
}

func TestMaskDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://app:***@db:5432/runs", maskDatabaseURL("postgres://app:secret@db:5432/runs"))
	assert.Equal(t, "postgres://db:5432/runs", maskDatabaseURL("postgres://db:5432/runs"))
}
