package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_JSON(t *testing.T) {
	for _, st := range []JobStatus{JobStatusUnknown, JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed} {
		data, err := json.Marshal(st)
		require.NoError(t, err)

		var got JobStatus
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, st, got)
	}

	var got JobStatus
	require.NoError(t, json.Unmarshal([]byte(`"SOMETHING"`), &got))
	assert.Equal(t, JobStatusUnknown, got)

	assert.Error(t, json.Unmarshal([]byte(`3`), &got))
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.False(t, JobStatusUnknown.Terminal())
}

func TestSeverity_Rank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityWarning.Rank())
	assert.Greater(t, SeverityWarning.Rank(), SeverityInfo.Rank())
	assert.Equal(t, 3, Severity("CRITICAL").Rank())
	assert.False(t, Severity("bogus").Valid())
}

func TestStitchedRow_CloneIsDeep(t *testing.T) {
	row := StitchedRow{Time: time.Unix(0, 0), Values: map[string]float64{"a": 1}}

	rows := CloneRows([]StitchedRow{row})
	rows[0].Values["a"] = 2

	assert.InDelta(t, 1.0, row.Values["a"], 0)
	assert.Nil(t, CloneRows(nil))

	v, ok := row.Value("a")
	assert.True(t, ok)
	assert.InDelta(t, 1.0, v, 0)
}
