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

// Package models pkg/models/metrics.go
package models

import (
	"fmt"
	"time"
)

// Sample is a single raw point as returned by the telemetry API.
type Sample struct {
	Timestamp time.Time         `json:"timestamp"`
	Field     string            `json:"field"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// StitchedRow holds every field observed at one timestamp.
type StitchedRow struct {
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
}

// Value returns the value stored under name, if any.
func (r StitchedRow) Value(name string) (float64, bool) {
	v, ok := r.Values[name]

	return v, ok
}

// Clone returns a deep copy of the row.
func (r StitchedRow) Clone() StitchedRow {
	values := make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}

	return StitchedRow{Time: r.Time, Values: values}
}

// CloneRows deep copies a row slice. A nil input stays nil.
func CloneRows(rows []StitchedRow) []StitchedRow {
	if rows == nil {
		return nil
	}

	out := make([]StitchedRow, len(rows))
	for i := range rows {
		out[i] = rows[i].Clone()
	}

	return out
}

// SeriesKey identifies one logical cacheable series, e.g. node "db1",
// dataset "collections", range "1h".
type SeriesKey struct {
	Entity  string `json:"entity"`
	Dataset string `json:"dataset"`
	Range   string `json:"range"`
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Entity, k.Dataset, k.Range)
}

// GrowthSample is the derived trend between the two rows bounding a
// lookback window.
type GrowthSample struct {
	WindowDays              float64 `json:"window_days"`
	StartValue              float64 `json:"start_value"`
	EndValue                float64 `json:"end_value"`
	DailyRate               float64 `json:"daily_rate"`
	ProjectedExhaustionDays float64 `json:"projected_exhaustion_days"`
}
