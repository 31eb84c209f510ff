package jobs

import (
	"testing"
	"time"

	"github.com/carverauto/clusterwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(t *testing.T) (*Reconciler, *[]models.JobTransition) {
	t.Helper()

	var got []models.JobTransition

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	r := NewReconciler(
		WithClock(func() time.Time { return now }),
		WithChangeFunc(func(tr models.JobTransition) { got = append(got, tr) }),
	)

	return r, &got
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want models.JobStatus
		ok   bool
	}{
		{"PENDING", models.JobStatusPending, true},
		{"queued", models.JobStatusPending, true},
		{"Running", models.JobStatusRunning, true},
		{"in_progress", models.JobStatusRunning, true},
		{"completed", models.JobStatusCompleted, true},
		{"success", models.JobStatusCompleted, true},
		{"Succeeded", models.JobStatusCompleted, true},
		{"FAILED", models.JobStatusFailed, true},
		{"error", models.JobStatusFailed, true},
		{" running ", models.JobStatusRunning, true},
		{"", models.JobStatusUnknown, false},
		{"paused", models.JobStatusUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseStatus(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestReconciler_Precedence(t *testing.T) {
	tests := []struct {
		name    string
		initial models.JobStatus
		log     models.ProcessLog
		want    models.JobStatus
		changed bool
		source  string
	}{
		{
			name:    "final_status_wins",
			initial: models.JobStatusRunning,
			log:     models.ProcessLog{FinalStatus: "failed", ProcessStatus: "running"},
			want:    models.JobStatusFailed,
			changed: true,
			source:  SourceFinal,
		},
		{
			name:    "process_status_when_no_final",
			initial: models.JobStatusPending,
			log:     models.ProcessLog{ProcessStatus: "running"},
			want:    models.JobStatusRunning,
			changed: true,
			source:  SourceProcess,
		},
		{
			name:    "neither_present_is_no_change",
			initial: models.JobStatusRunning,
			log:     models.ProcessLog{Logs: []string{"step 1"}},
			want:    models.JobStatusRunning,
		},
		{
			name:    "same_status_is_no_change",
			initial: models.JobStatusRunning,
			log:     models.ProcessLog{ProcessStatus: "RUNNING"},
			want:    models.JobStatusRunning,
		},
		{
			name:    "unparseable_final_status_is_no_signal",
			initial: models.JobStatusRunning,
			log:     models.ProcessLog{FinalStatus: "???", ProcessStatus: "completed"},
			want:    models.JobStatusRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestReconciler(t)
			r.Track("j1", "backup", tt.initial)

			tr, changed := r.ObserveLog("j1", tt.log)
			assert.Equal(t, tt.changed, changed)

			if changed {
				assert.Equal(t, tt.initial, tr.From)
				assert.Equal(t, tt.want, tr.To)
				assert.Equal(t, tt.source, tr.Source)
			}

			got, ok := r.Status("j1")
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconciler_TerminalIsSticky(t *testing.T) {
	r, got := newTestReconciler(t)
	r.Track("j1", "", models.JobStatusRunning)

	_, changed := r.ObserveLog("j1", models.ProcessLog{FinalStatus: "FAILED"})
	require.True(t, changed)

	for _, s := range []string{"running", "completed", "pending"} {
		_, changed = r.ObserveLog("j1", models.ProcessLog{ProcessStatus: s})
		assert.False(t, changed, s)

		_, changed = r.ObserveList(models.JobSummary{ID: "j1", Status: s})
		assert.False(t, changed, s)
	}

	st, _ := r.Status("j1")
	assert.Equal(t, models.JobStatusFailed, st)

	// Track + one transition, nothing after the terminal state.
	require.Len(t, *got, 2)
	assert.Equal(t, models.JobStatusFailed, (*got)[1].To)
}

func TestReconciler_EmitsOnlyOnChange(t *testing.T) {
	r, got := newTestReconciler(t)

	r.ObserveList(models.JobSummary{ID: "j1", Name: "reindex", Status: "pending"})
	r.ObserveList(models.JobSummary{ID: "j1", Status: "pending"})
	r.ObserveLog("j1", models.ProcessLog{ProcessStatus: "running"})
	r.ObserveLog("j1", models.ProcessLog{ProcessStatus: "running"})
	r.ObserveList(models.JobSummary{ID: "j1", Status: "running"})
	r.ObserveLog("j1", models.ProcessLog{FinalStatus: "completed"})

	require.Len(t, *got, 3)
	assert.Equal(t, models.JobTransition{
		JobID: "j1", From: models.JobStatusUnknown, To: models.JobStatusPending, Source: SourceTracking, At: (*got)[0].At,
	}, (*got)[0])
	assert.Equal(t, models.JobStatusRunning, (*got)[1].To)
	assert.Equal(t, models.JobStatusCompleted, (*got)[2].To)

	st, ok := r.Job("j1")
	require.True(t, ok)
	assert.Equal(t, "reindex", st.Name)
}

func TestReconciler_LaggingListDoesNotRegress(t *testing.T) {
	r, got := newTestReconciler(t)

	// The list keeps reporting pending while the process log already says
	// running. Each refresh observes the list first, then the log.
	for tick := 0; tick < 3; tick++ {
		r.ObserveList(models.JobSummary{ID: "j1", Name: "reindex", Status: "pending"})
		r.ObserveLog("j1", models.ProcessLog{ProcessStatus: "running"})

		st, ok := r.Status("j1")
		require.True(t, ok)
		assert.Equal(t, models.JobStatusRunning, st, "tick %d", tick)
	}

	require.Len(t, *got, 2)
	assert.Equal(t, models.JobStatusPending, (*got)[0].To)
	assert.Equal(t, SourceTracking, (*got)[0].Source)
	assert.Equal(t, models.JobStatusPending, (*got)[1].From)
	assert.Equal(t, models.JobStatusRunning, (*got)[1].To)
	assert.Equal(t, SourceProcess, (*got)[1].Source)

	// A list entry that moves the job forward still applies.
	tr, changed := r.ObserveList(models.JobSummary{ID: "j1", Status: "completed"})
	require.True(t, changed)
	assert.Equal(t, SourceList, tr.Source)
	assert.Equal(t, models.JobStatusCompleted, tr.To)
}

func TestReconciler_UnknownJobLogIsIgnored(t *testing.T) {
	r, got := newTestReconciler(t)

	_, changed := r.ObserveLog("ghost", models.ProcessLog{FinalStatus: "completed"})
	assert.False(t, changed)
	assert.Empty(t, *got)

	_, ok := r.Status("ghost")
	assert.False(t, ok)
}

func TestReconciler_TrackIsIdempotent(t *testing.T) {
	r, got := newTestReconciler(t)

	assert.True(t, r.Track("j1", "", models.JobStatusPending))
	assert.False(t, r.Track("j1", "", models.JobStatusRunning))

	st, _ := r.Status("j1")
	assert.Equal(t, models.JobStatusPending, st)
	assert.Len(t, *got, 1)
}

func TestReconciler_UnknownListStatusTracksWithoutEmitting(t *testing.T) {
	r, got := newTestReconciler(t)

	r.ObserveList(models.JobSummary{ID: "j1", Status: "mystery"})
	assert.Empty(t, *got)

	st, ok := r.Status("j1")
	require.True(t, ok)
	assert.Equal(t, models.JobStatusUnknown, st)

	_, changed := r.ObserveLog("j1", models.ProcessLog{ProcessStatus: "running"})
	assert.True(t, changed)
}

func TestReconciler_JobsAndActive(t *testing.T) {
	r, _ := newTestReconciler(t)

	r.Track("b", "", models.JobStatusRunning)
	r.Track("a", "", models.JobStatusCompleted)
	r.Track("c", "", models.JobStatusPending)

	jobs := r.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, []string{"b", "c"}, r.Active())
}
