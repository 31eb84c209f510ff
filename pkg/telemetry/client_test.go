package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carverauto/clusterwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL + "/")
	require.NoError(t, err)

	return c
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestNewHTTPClient_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient("")
	assert.ErrorIs(t, err, ErrMissingBaseURL)
}

func TestHTTPClient_FetchSamples(t *testing.T) {
	ts := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		body    string
		want    []models.Sample
		wantErr error
	}{
		{
			name: "bare_array",
			body: `{"status":"success","data":[
				{"timestamp":"2025-01-01T10:00:00Z","field":"cpu_usage","value":42,"tags":{"node":"db1"}}
			]}`,
			want: []models.Sample{{Timestamp: ts, Field: "cpu_usage", Value: 42, Tags: map[string]string{"node": "db1"}}},
		},
		{
			name: "all_data_object",
			body: `{"status":"success","data":{"all_data":[
				{"timestamp":1735725600,"field":"conn","value":"7"}
			],"summary":{"max":7}}}`,
			want: []models.Sample{{Timestamp: ts, Field: "conn", Value: 7}},
		},
		{
			name: "unix_millis",
			body: `{"status":"success","data":[{"timestamp":1735725600000,"field":"conn","value":1}]}`,
			want: []models.Sample{{Timestamp: ts, Field: "conn", Value: 1}},
		},
		{
			name: "invalid_samples_are_dropped",
			body: `{"status":"success","data":[
				{"timestamp":"2025-01-01T10:00:00Z","field":"","value":1},
				{"timestamp":"yesterday","field":"a","value":1},
				{"timestamp":"2025-01-01T10:00:00Z","field":"a","value":"n/a"},
				{"timestamp":"2025-01-01T10:00:00Z","field":"a","value":null}
			]}`,
			want: []models.Sample{},
		},
		{
			name: "null_data_is_empty",
			body: `{"status":"success","data":null}`,
			want: []models.Sample{},
		},
		{
			name:    "non_success_status",
			body:    `{"status":"error","data":[]}`,
			wantErr: ErrUnsuccessfulStatus,
		},
		{
			name:    "missing_status",
			body:    `{"data":[]}`,
			wantErr: ErrUnsuccessfulStatus,
		},
		{
			name:    "object_without_all_data",
			body:    `{"status":"success","data":{"summary":{}}}`,
			want:    []models.Sample{},
			wantErr: ErrUnexpectedShape,
		},
		{
			name:    "scalar_data",
			body:    `{"status":"success","data":5}`,
			want:    []models.Sample{},
			wantErr: ErrUnexpectedShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, respond(tt.body))

			got, err := c.FetchSamples(context.Background(), SampleQuery{System: "db", Category: "cpu"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			if tt.want != nil {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestHTTPClient_FetchSamplesRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metrics/mongodb/replica%20set", r.URL.EscapedPath())
		assert.Equal(t, "agent-1", r.URL.Query().Get("agent_id"))
		assert.Equal(t, "1h", r.URL.Query().Get("range"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		respond(`{"status":"success","data":[]}`)(w, r)
	})

	_, err := c.FetchSamples(context.Background(), SampleQuery{
		System: "mongodb", Category: "replica set", AgentID: "agent-1", Range: "1h",
	})
	require.NoError(t, err)
}

func TestHTTPClient_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	_, err := c.FetchSamples(context.Background(), SampleQuery{System: "db", Category: "cpu"})
	require.ErrorIs(t, err, ErrHTTPStatus)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPClient_RecentAlarms(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status/alarms/recent", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("unacknowledged"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		respond(`{"data":{"alarms":[
			{"id":"a1","severity":"CRITICAL","message":"disk full","timestamp":"2025-01-01T10:00:00Z"},
			{"id":17,"severity":"info","message":"backup done"}
		]}}`)(w, r)
	})

	got, err := c.RecentAlarms(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, models.SeverityCritical, got[0].Severity)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), got[0].Timestamp)
	assert.Equal(t, "17", got[1].ID)
	assert.True(t, got[1].Timestamp.IsZero())
}

func TestHTTPClient_ListJobs(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		wantErr error
	}{
		{name: "bare_array", body: `[{"id":"j1","status":"running"},{"id":2,"status":"pending"}]`, want: []string{"j1", "2"}},
		{name: "jobs_key", body: `{"jobs":[{"id":"j1","status":"running"}]}`, want: []string{"j1"}},
		{name: "data_key", body: `{"status":"success","data":[{"id":"j1","status":"running"}]}`, want: []string{"j1"}},
		{name: "nested_data_jobs", body: `{"data":{"jobs":[{"id":"j1"}]}}`, want: []string{"j1"}},
		{name: "missing_ids_skipped", body: `[{"status":"running"}]`, want: []string{}},
		{name: "failure_status", body: `{"status":"error"}`, wantErr: ErrUnsuccessfulStatus},
		{name: "wrong_shape", body: `{"items":[]}`, wantErr: ErrUnexpectedShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, respond(tt.body))

			got, err := c.ListJobs(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, j := range got {
				ids = append(ids, j.ID)
			}

			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestHTTPClient_ProcessLog(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/process-logs", r.URL.Path)
		assert.Equal(t, "j1", r.URL.Query().Get("process_id"))
		respond(`{"status":"success","logs":["start","step 2"],"metadata":{"final_status":"FAILED"},"process_status":"running"}`)(w, r)
	})

	got, err := c.ProcessLog(context.Background(), "j1")
	require.NoError(t, err)

	assert.Equal(t, models.ProcessLog{
		Status:        "success",
		Logs:          []string{"start", "step 2"},
		FinalStatus:   "FAILED",
		ProcessStatus: "running",
	}, got)
}

func TestHTTPClient_ProcessLogFailure(t *testing.T) {
	c := newTestClient(t, respond(`{"status":"error"}`))

	_, err := c.ProcessLog(context.Background(), "j1")
	assert.ErrorIs(t, err, ErrUnsuccessfulStatus)
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, respond(`{"status":"success","data":[]}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchSamples(ctx, SampleQuery{System: "db", Category: "cpu"})
	assert.ErrorIs(t, err, context.Canceled)
}
