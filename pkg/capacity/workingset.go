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

package capacity

import (
	"github.com/carverauto/clusterwatch/pkg/models"
)

// Fit classifies how a working set compares to available RAM.
type Fit string

const (
	FitExcellent Fit = "excellent"
	FitTight     Fit = "tight"
	FitTooLarge  Fit = "too-large"
	FitUnknown   Fit = "unknown"
)

// WorkingSetConfig holds the calibration constants of the working-set
// heuristic. They are not derived from database internals.
type WorkingSetConfig struct {
	ActiveDataFraction float64 `json:"active_data_fraction"`
	PerConnectionMB    float64 `json:"per_connection_mb"`
	ExcellentRatio     float64 `json:"excellent_ratio"`
	TightRatio         float64 `json:"tight_ratio"`
}

// DefaultWorkingSetConfig returns 25% active data, 1 MB per connection and
// 0.7/0.9 RAM thresholds.
func DefaultWorkingSetConfig() WorkingSetConfig {
	return WorkingSetConfig{
		ActiveDataFraction: 0.25,
		PerConnectionMB:    1,
		ExcellentRatio:     0.7,
		TightRatio:         0.9,
	}
}

// WithDefaults fills unset constants from DefaultWorkingSetConfig.
func (c WorkingSetConfig) WithDefaults() WorkingSetConfig {
	d := DefaultWorkingSetConfig()

	if c.ActiveDataFraction <= 0 {
		c.ActiveDataFraction = d.ActiveDataFraction
	}

	if c.PerConnectionMB <= 0 {
		c.PerConnectionMB = d.PerConnectionMB
	}

	if c.ExcellentRatio <= 0 {
		c.ExcellentRatio = d.ExcellentRatio
	}

	if c.TightRatio <= 0 {
		c.TightRatio = d.TightRatio
	}

	return c
}

// WorkingSetInput carries the latest observed sizes, in MB.
type WorkingSetInput struct {
	IndexSizeMB float64 `json:"index_size_mb"`
	DataSizeMB  float64 `json:"data_size_mb"`
	Connections float64 `json:"connections"`
}

// WorkingSetEstimate is the classified result.
type WorkingSetEstimate struct {
	WorkingSetMB float64 `json:"working_set_mb"`
	RAMMB        float64 `json:"ram_mb"`
	Ratio        float64 `json:"ratio"`
	Fit          Fit     `json:"fit"`
}

// WorkingSetFields names the row columns feeding the heuristic.
type WorkingSetFields struct {
	Index       string `json:"index"`
	Data        string `json:"data"`
	Connections string `json:"connections"`
}

// Estimate computes indexSize + dataSize*fraction + connections*perConnection.
func (c WorkingSetConfig) Estimate(in WorkingSetInput) float64 {
	return in.IndexSizeMB + in.DataSizeMB*c.ActiveDataFraction + in.Connections*c.PerConnectionMB
}

// Classify maps the estimated working set against ramMB.
func (c WorkingSetConfig) Classify(in WorkingSetInput, ramMB float64) WorkingSetEstimate {
	ws := c.Estimate(in)
	est := WorkingSetEstimate{WorkingSetMB: ws, RAMMB: ramMB, Fit: FitUnknown}

	if ramMB <= 0 {
		return est
	}

	est.Ratio = ws / ramMB

	switch {
	case ws <= ramMB*c.ExcellentRatio:
		est.Fit = FitExcellent
	case ws <= ramMB*c.TightRatio:
		est.Fit = FitTight
	default:
		est.Fit = FitTooLarge
	}

	return est
}

// ClassifyRow reads the inputs from a stitched row. It reports false when the
// row lacks any of the named fields.
func (c WorkingSetConfig) ClassifyRow(row models.StitchedRow, fields WorkingSetFields, ramMB float64) (WorkingSetEstimate, bool) {
	index, ok := row.Value(fields.Index)
	if !ok {
		return WorkingSetEstimate{Fit: FitUnknown, RAMMB: ramMB}, false
	}

	data, ok := row.Value(fields.Data)
	if !ok {
		return WorkingSetEstimate{Fit: FitUnknown, RAMMB: ramMB}, false
	}

	conns, ok := row.Value(fields.Connections)
	if !ok {
		return WorkingSetEstimate{Fit: FitUnknown, RAMMB: ramMB}, false
	}

	return c.Classify(WorkingSetInput{IndexSizeMB: index, DataSizeMB: data, Connections: conns}, ramMB), true
}
