package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carverauto/clusterwatch/pkg/config"
	"github.com/carverauto/clusterwatch/pkg/engine"
	"github.com/carverauto/clusterwatch/pkg/models"
	"github.com/carverauto/clusterwatch/pkg/observability"
	"github.com/carverauto/clusterwatch/pkg/telemetry"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	waitFor = 2 * time.Second
	tickFor = 5 * time.Millisecond
)

var t0 = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*APIServer, *engine.Engine, *telemetry.MockClient, *prometheus.Registry) {
	t.Helper()

	cfg := &config.Config{
		TelemetryURL: "http://telemetry",
		Datasets: map[string]config.DatasetConfig{
			"cpu":     {System: "mongodb", Category: "cpu"},
			"storage": {System: "mongodb", Category: "storage"},
		},
	}
	require.NoError(t, cfg.Validate())

	reg := prometheus.NewRegistry()

	rec, err := observability.NewProm(reg)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	client := telemetry.NewMockClient(ctrl)

	e, err := engine.New(cfg, client, nil,
		engine.WithRecorder(rec),
		engine.WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)

	t.Cleanup(func() { _ = e.Stop(context.Background()) })

	return NewAPIServer(e, WithGatherer(reg), WithPingInterval(time.Hour)), e, client, reg
}

func do(t *testing.T, s *APIServer, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestAPI_WatchSeriesThenRead(t *testing.T) {
	s, _, client, _ := newTestServer(t)

	client.EXPECT().
		FetchSamples(gomock.Any(), telemetry.SampleQuery{System: "mongodb", Category: "cpu", AgentID: "db1", Range: "1h"}).
		Return([]models.Sample{
			{Timestamp: t0, Field: "cpu_usage", Value: 40},
			{Timestamp: t0, Field: "cpu_system", Value: 2},
		}, nil).
		MinTimes(1)

	w := do(t, s, http.MethodPost, "/api/views/dash/series",
		`{"entity":"db1","dataset":"cpu","range":"1h","interval":"1h"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		return do(t, s, http.MethodGet, "/api/series?entity=db1&dataset=cpu&range=1h", "").Code == http.StatusOK
	}, waitFor, tickFor)

	w = do(t, s, http.MethodGet, "/api/series?entity=db1&dataset=cpu&range=1h", "")

	var view engine.SeriesView
	decodeBody(t, w, &view)
	require.Len(t, view.Rows, 1)
	assert.InDelta(t, 40.0, view.Rows[0].Values["cpu_usage"], 0)
	assert.InDelta(t, 2.0, view.Rows[0].Values["cpu_system"], 0)

	w = do(t, s, http.MethodGet, "/api/pollers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status PollerStatus
	decodeBody(t, w, &status)
	assert.Equal(t, []string{engine.SeriesPollerKey(models.SeriesKey{Entity: "db1", Dataset: "cpu", Range: "1h"})},
		status.Views["dash"])
	assert.False(t, status.AlarmListOpen)

	w = do(t, s, http.MethodDelete, "/api/views/dash", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	decodeBody(t, do(t, s, http.MethodGet, "/api/pollers", ""), &status)
	assert.NotContains(t, status.Views, "dash")
}

func TestAPI_WatchSeriesErrors(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"unknown dataset", "/api/views/dash/series", `{"entity":"db1","dataset":"nope","range":"1h"}`, http.StatusBadRequest},
		{"missing entity", "/api/views/dash/series", `{"dataset":"cpu","range":"1h"}`, http.StatusBadRequest},
		{"bad json", "/api/views/dash/series", `{"entity":`, http.StatusBadRequest},
		{"bad interval", "/api/views/dash/series", `{"entity":"db1","dataset":"cpu","interval":"soon"}`, http.StatusBadRequest},
		{"reserved view", "/api/views/_engine/alarms", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, w.Code)

			var resp errorResponse
			decodeBody(t, w, &resp)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestAPI_ReadModelErrors(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"series missing entity", "/api/series?dataset=cpu", http.StatusBadRequest},
		{"series unknown", "/api/series?entity=db1&dataset=cpu&range=1h", http.StatusNotFound},
		{"capacity missing field", "/api/capacity?entity=db1&dataset=storage&remaining=10", http.StatusBadRequest},
		{"capacity bad remaining", "/api/capacity?entity=db1&dataset=storage&field=x&remaining=lots", http.StatusBadRequest},
		{"capacity unknown series", "/api/capacity?entity=db1&dataset=storage&field=x&remaining=10", http.StatusNotFound},
		{"workingset no fields", "/api/workingset?entity=db1&dataset=storage&ram_mb=1024", http.StatusBadRequest},
		{"workingset missing ram", "/api/workingset?entity=db1&dataset=storage&index_field=i", http.StatusBadRequest},
		{"job unknown", "/api/jobs/42", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, s, http.MethodGet, tt.target, "").Code)
		})
	}
}

func TestAPI_CapacityAndWorkingSet(t *testing.T) {
	s, _, client, _ := newTestServer(t)

	start := t0.Add(-7 * 24 * time.Hour)

	client.EXPECT().
		FetchSamples(gomock.Any(), gomock.Any()).
		Return([]models.Sample{
			{Timestamp: start, Field: "data_mb", Value: 100},
			{Timestamp: t0, Field: "data_mb", Value: 170},
			{Timestamp: t0, Field: "index_mb", Value: 50},
			{Timestamp: t0, Field: "connections", Value: 10},
		}, nil).
		MinTimes(1)

	require.Equal(t, http.StatusAccepted,
		do(t, s, http.MethodPost, "/api/views/dash/series", `{"entity":"db1","dataset":"storage","range":"7d"}`).Code)

	require.Eventually(t, func() bool {
		return do(t, s, http.MethodGet, "/api/series?entity=db1&dataset=storage&range=7d", "").Code == http.StatusOK
	}, waitFor, tickFor)

	// 10 MB/day with 200 MB left is 20 days out.
	w := do(t, s, http.MethodGet, "/api/capacity?entity=db1&dataset=storage&range=7d&field=data_mb&remaining=200", "")
	require.Equal(t, http.StatusOK, w.Code)

	var forecast struct {
		Status string              `json:"status"`
		Sample models.GrowthSample `json:"sample"`
	}
	decodeBody(t, w, &forecast)
	assert.Equal(t, "critical", forecast.Status)
	assert.InDelta(t, 10.0, forecast.Sample.DailyRate, 1e-9)
	assert.InDelta(t, 20.0, forecast.Sample.ProjectedExhaustionDays, 1e-9)

	w = do(t, s, http.MethodGet,
		"/api/workingset?entity=db1&dataset=storage&range=7d&index_field=index_mb&data_field=data_mb&connections_field=connections&ram_mb=100000", "")
	require.Equal(t, http.StatusOK, w.Code)

	var est struct {
		Fit string `json:"fit"`
	}
	decodeBody(t, w, &est)
	assert.NotEmpty(t, est.Fit)

	w = do(t, s, http.MethodGet, "/api/workingset?entity=db1&dataset=storage&range=7d&index_field=absent&data_field=data_mb&connections_field=connections&ram_mb=1024", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAPI_JobsAndControls(t *testing.T) {
	s, _, client, _ := newTestServer(t)

	client.EXPECT().ListJobs(gomock.Any()).
		Return([]models.JobSummary{{ID: "7", Name: "backup", Status: "RUNNING"}}, nil).
		MinTimes(1)
	client.EXPECT().ProcessLog(gomock.Any(), "7").
		Return(models.ProcessLog{Status: "RUNNING"}, nil).
		AnyTimes()

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/views/jobs/jobs", "").Code)

	require.Eventually(t, func() bool {
		return do(t, s, http.MethodGet, "/api/jobs/7", "").Code == http.StatusOK
	}, waitFor, tickFor)

	var jobs JobsResponse
	decodeBody(t, do(t, s, http.MethodGet, "/api/jobs", ""), &jobs)
	require.Len(t, jobs.Jobs, 1)
	assert.Equal(t, "7", jobs.Jobs[0].ID)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/alarms/list/open", "").Code)

	var status PollerStatus
	decodeBody(t, do(t, s, http.MethodGet, "/api/pollers", ""), &status)
	assert.True(t, status.AlarmListOpen)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/alarms/list/close", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/alarms/reset", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/cache/invalidate", "").Code)
}

func TestAPI_CORSPreflight(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	w := do(t, s, http.MethodOptions, "/api/jobs", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAPI_Metrics(t *testing.T) {
	s, e, client, _ := newTestServer(t)

	client.EXPECT().FetchSamples(gomock.Any(), gomock.Any()).Return(nil, errors.New("down")).MinTimes(1)

	require.NoError(t, e.WatchSeries("dash", models.SeriesKey{Entity: "db1", Dataset: "cpu", Range: "1h"}, time.Hour))

	require.Eventually(t, func() bool {
		return strings.Contains(do(t, s, http.MethodGet, "/metrics", "").Body.String(),
			`clusterwatch_poll_ticks_total{kind="series",outcome="error"}`)
	}, waitFor, tickFor)
}

func TestAPI_StreamPushesAlarms(t *testing.T) {
	s, _, client, _ := newTestServer(t)

	client.EXPECT().RecentAlarms(gomock.Any(), gomock.Any()).
		Return([]models.AlarmEvent{
			{ID: "a1", Severity: models.SeverityCritical, Message: "disk full", Timestamp: t0},
			{ID: "a2", Severity: models.SeverityInfo, Message: "noise", Timestamp: t0},
		}, nil).
		MinTimes(1)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/stream", nil)
	require.NoError(t, err)

	defer conn.Close()
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/views/dash/alarms", `{"interval":"1h"}`).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))

	var u engine.Update
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, engine.UpdateAlarm, u.Kind)
	require.NotNil(t, u.Alarm)
	assert.Equal(t, "a1", u.Alarm.ID)
}

func TestAPI_PollersReportWarnings(t *testing.T) {
	s, _, client, _ := newTestServer(t)

	client.EXPECT().ListJobs(gomock.Any()).Return(nil, errors.New("connection refused")).MinTimes(1)

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/views/jobs/jobs", `{"interval":"1h"}`).Code)

	require.Eventually(t, func() bool {
		var status PollerStatus
		decodeBody(t, do(t, s, http.MethodGet, "/api/pollers", ""), &status)

		return len(status.Warnings) == 1 &&
			status.Warnings[0].Source == "jobs" &&
			strings.Contains(status.Warnings[0].Message, "connection refused")
	}, waitFor, tickFor)
}
