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

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/clusterwatch/pkg/capacity"
	"github.com/carverauto/clusterwatch/pkg/config"
	"github.com/carverauto/clusterwatch/pkg/models"
	"github.com/carverauto/clusterwatch/pkg/stitch"
	"github.com/carverauto/clusterwatch/pkg/telemetry"
	"go.uber.org/zap"
)

const sourceSeries = "series"

// seriesState is the latest good result for a key. It outlives cache
// expiry so the UI keeps its last value across fetch failures.
type seriesState struct {
	rows      []models.StitchedRow
	fetchedAt time.Time
	warning   *Warning
}

type seriesWatch struct {
	key  models.SeriesKey
	view string
}

// SeriesView is the read model for one series.
type SeriesView struct {
	Key       models.SeriesKey     `json:"key"`
	Rows      []models.StitchedRow `json:"rows"`
	FetchedAt time.Time            `json:"fetched_at"`
	Warning   *Warning             `json:"warning,omitempty"`
	Fresh     bool                 `json:"fresh"`
}

// SeriesPollerKey returns the poller key used for key.
func SeriesPollerKey(key models.SeriesKey) string {
	return "series:" + key.String()
}

// watchID identifies one view's watch of an entity/dataset pair. Views
// keep their own ranges.
func watchID(view string, key models.SeriesKey) string {
	return view + "|" + key.Entity + "/" + key.Dataset
}

// WatchSeries polls key on behalf of view. When view already watches the
// same entity/dataset pair under another range, the range changed: the
// view's old poller is stopped and the whole cache is invalidated. Other
// views are not affected. A non-positive interval uses the configured
// series interval.
func (e *Engine) WatchSeries(view string, key models.SeriesKey, interval time.Duration) error {
	if view == "" {
		return ErrEmptyView
	}

	if key.Entity == "" {
		return ErrEmptyEntity
	}

	ds, ok := e.cfg.Datasets[key.Dataset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDataset, key.Dataset)
	}

	id := watchID(view, key)
	g := e.group(view)

	e.mu.Lock()
	prev, had := e.watches[id]
	e.watches[id] = seriesWatch{key: key, view: view}
	e.mu.Unlock()

	if had && prev.key != key {
		g.Stop(SeriesPollerKey(prev.key))
		e.cache.InvalidateAll()

		e.logger.Info("Series range changed, cache invalidated",
			zap.String("view", view),
			zap.String("series", key.Entity+"/"+key.Dataset),
			zap.String("from", prev.key.Range),
			zap.String("to", key.Range))
	}

	interval = e.intervalOr(interval, e.cfg.Poll.SeriesInterval)

	return g.Start(SeriesPollerKey(key), interval, func(ctx context.Context) error {
		return e.refreshSeries(ctx, key, ds)
	}, nil)
}

// refreshSeries is one series tick: a cache hit does nothing, a miss fetches,
// stitches and stores.
func (e *Engine) refreshSeries(ctx context.Context, key models.SeriesKey, ds config.DatasetConfig) error {
	if _, ok := e.cache.Get(key); ok {
		e.recorder.CacheLookup(true)
		return nil
	}

	e.recorder.CacheLookup(false)

	samples, err := e.client.FetchSamples(ctx, telemetry.SampleQuery{
		System:   ds.System,
		Category: ds.Category,
		AgentID:  key.Entity,
		Range:    key.Range,
	})

	if ctx.Err() != nil {
		return ctx.Err()
	}

	switch {
	case err == nil:
	case errors.Is(err, telemetry.ErrUnexpectedShape):
		e.logger.Debug("Unexpected series shape, storing empty result",
			zap.String("series", key.String()), zap.Error(err))

		samples = nil
	default:
		e.seriesFailed(key, err)

		return err
	}

	rows := stitch.Stitch(samples, stitch.ByTag(ds.EntityTag))
	fetchedAt := e.now()

	e.cache.Put(key, rows, fetchedAt)

	e.mu.Lock()
	e.latest[key] = &seriesState{rows: rows, fetchedAt: fetchedAt}
	e.mu.Unlock()

	return nil
}

func (e *Engine) seriesFailed(key models.SeriesKey, err error) {
	w := &Warning{Source: sourceSeries, Key: key.String(), Message: err.Error()}

	e.mu.Lock()
	st, ok := e.latest[key]
	if !ok {
		st = &seriesState{}
		e.latest[key] = st
	}

	st.warning = w
	e.mu.Unlock()

	e.publishWarning(w)
}

// Series returns the latest rows for key, which may be older than the cache
// TTL when recent fetches failed.
func (e *Engine) Series(key models.SeriesKey) (SeriesView, bool) {
	e.mu.RLock()
	st, ok := e.latest[key]

	var view SeriesView
	if ok {
		view = SeriesView{
			Key:       key,
			Rows:      models.CloneRows(st.rows),
			FetchedAt: st.fetchedAt,
			Warning:   st.warning,
		}
	}
	e.mu.RUnlock()

	if !ok {
		return SeriesView{}, false
	}

	if view.Rows == nil {
		view.Rows = []models.StitchedRow{}
	}

	_, view.Fresh = e.cache.Get(key)

	return view, true
}

// Capacity projects growth of field over the latest rows of key.
func (e *Engine) Capacity(key models.SeriesKey, field string, remaining float64) (capacity.Forecast, error) {
	view, ok := e.Series(key)
	if !ok {
		return capacity.Forecast{}, fmt.Errorf("%w: %s", ErrUnknownSeries, key)
	}

	return e.predictor.Predict(view.Rows, field, remaining), nil
}

// WorkingSet classifies the newest row of key that carries every field.
func (e *Engine) WorkingSet(key models.SeriesKey, fields capacity.WorkingSetFields, ramMB float64) (capacity.WorkingSetEstimate, error) {
	view, ok := e.Series(key)
	if !ok {
		return capacity.WorkingSetEstimate{}, fmt.Errorf("%w: %s", ErrUnknownSeries, key)
	}

	for i := len(view.Rows) - 1; i >= 0; i-- {
		if est, ok := e.workingSet.ClassifyRow(view.Rows[i], fields, ramMB); ok {
			return est, nil
		}
	}

	return capacity.WorkingSetEstimate{RAMMB: ramMB, Fit: capacity.FitUnknown}, ErrInsufficientData
}
