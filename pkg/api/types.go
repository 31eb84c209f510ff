package api

import (
	"github.com/carverauto/clusterwatch/pkg/config"
	"github.com/carverauto/clusterwatch/pkg/engine"
	"github.com/carverauto/clusterwatch/pkg/models"
	"github.com/carverauto/clusterwatch/pkg/poller"
)

// WatchRequest is the body of the view watch endpoints. Interval is
// optional; the configured default is used when omitted.
type WatchRequest struct {
	Interval config.Duration `json:"interval,omitempty"`
}

// SeriesWatchRequest is the body of POST /api/views/{view}/series.
type SeriesWatchRequest struct {
	Entity   string          `json:"entity"`
	Dataset  string          `json:"dataset"`
	Range    string          `json:"range"`
	Interval config.Duration `json:"interval,omitempty"`
}

// PollerStatus is the body of GET /api/pollers.
type PollerStatus struct {
	Pollers       []poller.Stats      `json:"pollers"`
	Views         map[string][]string `json:"views"`
	AlarmListOpen bool                `json:"alarm_list_open"`
	Warnings      []engine.Warning    `json:"warnings,omitempty"`
}

// JobsResponse is the body of GET /api/jobs.
type JobsResponse struct {
	Jobs []models.JobState `json:"jobs"`
}

type errorResponse struct {
	Error string `json:"error"`
}
