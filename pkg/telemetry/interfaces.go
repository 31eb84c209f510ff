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

// Package telemetry pkg/telemetry/interfaces.go

//go:generate mockgen -destination=mock_telemetry.go -package=telemetry github.com/carverauto/clusterwatch/pkg/telemetry Client

package telemetry

import (
	"context"

	"github.com/carverauto/clusterwatch/pkg/models"
)

// SampleQuery selects one metric series from the Telemetry API.
type SampleQuery struct {
	System   string
	Category string
	AgentID  string
	Range    string
}

// Client is the boundary to the Telemetry, Alarm and Job APIs.
type Client interface {
	// FetchSamples returns the raw samples of one series.
	FetchSamples(ctx context.Context, q SampleQuery) ([]models.Sample, error)

	// RecentAlarms returns up to limit unacknowledged alarms.
	RecentAlarms(ctx context.Context, limit int) ([]models.AlarmEvent, error)

	// ListJobs returns every job with its coarse status.
	ListJobs(ctx context.Context) ([]models.JobSummary, error)

	// ProcessLog returns the current process log of one job.
	ProcessLog(ctx context.Context, jobID string) (models.ProcessLog, error)
}
