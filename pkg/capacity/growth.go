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

// Package capacity derives forward-looking capacity estimates from stitched
// series: growth-to-exhaustion projections and working-set fit.
package capacity

import (
	"math"
	"time"

	"github.com/carverauto/clusterwatch/pkg/models"
)

const (
	// DefaultLookback is the window used for capacity dimensions. Shorter
	// windows are dominated by write bursts.
	DefaultLookback = 7 * 24 * time.Hour

	DefaultCriticalDays = 30
	DefaultWarningDays  = 90

	hoursPerDay = 24
)

// Status classifies a growth forecast.
type Status string

const (
	StatusGood         Status = "good"
	StatusWarning      Status = "warning"
	StatusCritical     Status = "critical"
	StatusStable       Status = "stable"
	StatusNoPrediction Status = "unavailable"
)

// Thresholds are the day counts below which a projection is flagged.
type Thresholds struct {
	CriticalDays float64 `json:"critical_days"`
	WarningDays  float64 `json:"warning_days"`
}

// DefaultThresholds returns the 30/90 day thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CriticalDays: DefaultCriticalDays,
		WarningDays:  DefaultWarningDays,
	}
}

// Forecast is the result of a growth projection.
type Forecast struct {
	Field  string              `json:"field"`
	Sample models.GrowthSample `json:"sample"`
	Status Status              `json:"status"`
	Reason string              `json:"reason,omitempty"`
}

// Predictor projects time-to-threshold over a fixed lookback window. It holds
// no state between calls.
type Predictor struct {
	Lookback   time.Duration
	Thresholds Thresholds
}

// NewPredictor returns a predictor using DefaultLookback.
func NewPredictor(th Thresholds) *Predictor {
	if th.CriticalDays <= 0 {
		th.CriticalDays = DefaultCriticalDays
	}

	if th.WarningDays <= 0 {
		th.WarningDays = DefaultWarningDays
	}

	return &Predictor{
		Lookback:   DefaultLookback,
		Thresholds: th,
	}
}

// Predict takes the first and last rows carrying field inside the lookback
// window that ends at the newest such row, and projects when remaining
// capacity runs out at the observed daily rate.
func (p *Predictor) Predict(rows []models.StitchedRow, field string, remaining float64) Forecast {
	first, last, ok := p.bounds(rows, field)
	if !ok {
		return Forecast{Field: field, Status: StatusNoPrediction, Reason: "not enough rows in window"}
	}

	windowDays := last.Time.Sub(first.Time).Hours() / hoursPerDay

	f := Project(first.Values[field], last.Values[field], windowDays, remaining, p.Thresholds)
	f.Field = field

	return f
}

func (p *Predictor) bounds(rows []models.StitchedRow, field string) (first, last models.StitchedRow, ok bool) {
	var newest time.Time

	found := false

	for _, r := range rows {
		if _, has := r.Values[field]; !has {
			continue
		}

		if !found || r.Time.After(newest) {
			newest = r.Time
			last = r
			found = true
		}
	}

	if !found {
		return first, last, false
	}

	lookback := p.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	cutoff := newest.Add(-lookback)
	found = false

	for _, r := range rows {
		if _, has := r.Values[field]; !has || r.Time.Before(cutoff) {
			continue
		}

		if !found || r.Time.Before(first.Time) {
			first = r
			found = true
		}
	}

	if !found || !first.Time.Before(last.Time) {
		return first, last, false
	}

	return first, last, true
}

// Project derives a forecast from two values windowDays apart and the
// remaining capacity.
func Project(startValue, endValue, windowDays, remaining float64, th Thresholds) Forecast {
	sample := models.GrowthSample{
		WindowDays: windowDays,
		StartValue: startValue,
		EndValue:   endValue,
	}

	if windowDays <= 0 || math.IsNaN(windowDays) || math.IsInf(windowDays, 0) {
		return Forecast{Sample: sample, Status: StatusNoPrediction, Reason: "empty window"}
	}

	rate := (endValue - startValue) / windowDays
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return Forecast{Sample: sample, Status: StatusNoPrediction, Reason: "invalid rate"}
	}

	sample.DailyRate = rate

	if rate <= 0 {
		return Forecast{Sample: sample, Status: StatusStable}
	}

	days := math.Max(remaining, 0) / rate
	sample.ProjectedExhaustionDays = days

	return Forecast{Sample: sample, Status: th.classify(days)}
}

func (th Thresholds) classify(days float64) Status {
	switch {
	case days < th.CriticalDays:
		return StatusCritical
	case days < th.WarningDays:
		return StatusWarning
	default:
		return StatusGood
	}
}
