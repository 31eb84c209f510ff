/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api pkg/api/interfaces.go
package api

import (
	"time"

	"github.com/carverauto/clusterwatch/pkg/capacity"
	"github.com/carverauto/clusterwatch/pkg/engine"
	"github.com/carverauto/clusterwatch/pkg/models"
	"github.com/carverauto/clusterwatch/pkg/poller"
)

// Engine is the part of the engine served over HTTP.
type Engine interface {
	WatchSeries(view string, key models.SeriesKey, interval time.Duration) error
	WatchAlarms(view string, interval time.Duration) error
	WatchJobs(view string, interval time.Duration) error
	WatchJobLog(view, jobID string, interval time.Duration) error
	CloseView(view string)
	Views() map[string][]string
	Pollers() []poller.Stats

	Series(key models.SeriesKey) (engine.SeriesView, bool)
	Capacity(key models.SeriesKey, field string, remaining float64) (capacity.Forecast, error)
	WorkingSet(key models.SeriesKey, fields capacity.WorkingSetFields, ramMB float64) (capacity.WorkingSetEstimate, error)
	Jobs() []models.JobState
	Job(id string) (models.JobState, bool)
	AlarmListOpen() bool
	AlarmWarning() *engine.Warning
	JobsWarning() *engine.Warning

	OpenAlarmList()
	CloseAlarmList()
	ResetAlarms()
	InvalidateCache()

	Subscribe() *engine.Subscription
}

var _ Engine = (*engine.Engine)(nil)
