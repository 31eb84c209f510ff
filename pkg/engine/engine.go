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

// Package engine owns the session state of clusterwatch: the series cache,
// the alarm deduplicator, the job reconciler and every poller.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/clusterwatch/pkg/alarms"
	"github.com/carverauto/clusterwatch/pkg/alerts"
	"github.com/carverauto/clusterwatch/pkg/capacity"
	"github.com/carverauto/clusterwatch/pkg/config"
	"github.com/carverauto/clusterwatch/pkg/jobs"
	"github.com/carverauto/clusterwatch/pkg/metrics"
	"github.com/carverauto/clusterwatch/pkg/models"
	"github.com/carverauto/clusterwatch/pkg/observability"
	"github.com/carverauto/clusterwatch/pkg/poller"
	"github.com/carverauto/clusterwatch/pkg/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	pruneKey = "cache:prune"

	// systemView owns pollers the engine starts for itself.
	systemView = "_engine"
)

// Engine wires the telemetry client to the cache, deduplicator and
// reconciler, and publishes what changed.
type Engine struct {
	cfg      *config.Config
	client   telemetry.Client
	logger   *zap.Logger
	recorder observability.Recorder
	now      func() time.Time

	cache      *metrics.SeriesCache
	dedup      *alarms.Deduplicator
	jobs       *jobs.Reconciler
	poller     *poller.Poller
	hub        *Hub
	dispatcher *alerts.Dispatcher
	predictor  *capacity.Predictor
	workingSet capacity.WorkingSetConfig
	alarmCheck alarms.Filter

	extraAlerters []alerts.AlertService
	hubBuffer     int

	mu      sync.RWMutex
	latest  map[models.SeriesKey]*seriesState
	watches map[string]seriesWatch // view|entity/dataset -> active watch
	views   map[string]*poller.Group

	alarmListOpen atomic.Bool
	alarmWarning  atomic.Pointer[Warning]
	jobsWarning   atomic.Pointer[Warning]
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for cache ages and read models.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r observability.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithAlerters adds alert services on top of the configured webhooks.
func WithAlerters(services ...alerts.AlertService) Option {
	return func(e *Engine) {
		e.extraAlerters = append(e.extraAlerters, services...)
	}
}

// WithSubscriberBuffer sets the per-subscriber update buffer.
func WithSubscriberBuffer(n int) Option {
	return func(e *Engine) {
		e.hubBuffer = n
	}
}

// New creates an engine. cfg must already be validated.
func New(cfg *config.Config, client telemetry.Client, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		recorder: observability.Nop{},
		now:      time.Now,
		latest:   make(map[models.SeriesKey]*seriesState),
		watches:  make(map[string]seriesWatch),
		views:    make(map[string]*poller.Group),
	}

	for _, opt := range opts {
		opt(e)
	}

	services := make([]alerts.AlertService, 0, len(cfg.Webhooks)+len(e.extraAlerters))

	for _, wh := range cfg.Webhooks {
		a, err := alerts.NewWebhookAlerter(wh, logger.Named("alerts"))
		if err != nil {
			return nil, err
		}

		services = append(services, a)
	}

	services = append(services, e.extraAlerters...)

	pollerOpts := []poller.Option{
		poller.WithLogger(logger.Named("poller")),
		poller.WithRecorder(e.recorder),
	}

	if cfg.Poll.MaxFetchRate > 0 {
		pollerOpts = append(pollerOpts, poller.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Poll.MaxFetchRate), cfg.Poll.FetchBurst)))
	}

	e.cache = metrics.NewSeriesCache(metrics.WithClock(e.now))
	e.dedup = alarms.NewDeduplicator()
	e.jobs = jobs.NewReconciler(jobs.WithClock(e.now), jobs.WithChangeFunc(e.onJobTransition))
	e.poller = poller.New(pollerOpts...)
	e.hub = NewHub(e.hubBuffer, logger.Named("hub"))
	e.dispatcher = alerts.NewDispatcher(logger.Named("alerts"), services...)
	e.predictor = capacity.NewPredictor(cfg.Capacity)
	e.workingSet = cfg.WorkingSet.WithDefaults()
	e.alarmCheck = alarms.AtLeast(cfg.Alarms.MinSeverity)

	return e, nil
}

// Start implements lifecycle.Service. It starts the cache pruner; feature
// pollers are started by views.
func (e *Engine) Start(context.Context) error {
	e.logger.Info("Starting engine",
		zap.Int("datasets", len(e.cfg.Datasets)),
		zap.Int("alerters", e.dispatcher.Len()))

	return e.group(systemView).Start(pruneKey, e.cache.TTL(), func(context.Context) error {
		if n := e.cache.Prune(); n > 0 {
			e.logger.Debug("Pruned expired series", zap.Int("count", n))
		}

		return nil
	}, nil)
}

// Stop implements lifecycle.Service. It stops every poller and closes all
// subscriptions.
func (e *Engine) Stop(context.Context) error {
	e.poller.StopAll()

	e.mu.Lock()
	e.views = make(map[string]*poller.Group)
	e.watches = make(map[string]seriesWatch)
	e.mu.Unlock()

	e.hub.Close()

	e.logger.Info("Engine stopped")

	return nil
}

// Subscribe returns a stream of alarm, job status and warning updates.
func (e *Engine) Subscribe() *Subscription {
	return e.hub.Subscribe()
}

// CloseView stops every poller started on behalf of view.
func (e *Engine) CloseView(view string) {
	e.mu.Lock()
	g, ok := e.views[view]
	delete(e.views, view)

	for id, w := range e.watches {
		if w.view == view {
			delete(e.watches, id)
		}
	}
	e.mu.Unlock()

	if !ok {
		return
	}

	g.StopAll()

	e.logger.Info("Closed view", zap.String("view", view))
}

// Views returns the open views and their active poller keys.
func (e *Engine) Views() map[string][]string {
	e.mu.RLock()
	groups := make([]*poller.Group, 0, len(e.views))

	for _, g := range e.views {
		groups = append(groups, g)
	}
	e.mu.RUnlock()

	out := make(map[string][]string, len(groups))
	for _, g := range groups {
		if g.Name() != systemView {
			out[g.Name()] = g.Keys()
		}
	}

	return out
}

// Pollers returns counters for every active poller.
func (e *Engine) Pollers() []poller.Stats {
	return e.poller.AllStats()
}

// InvalidateCache drops every cached series so the next tick refetches.
func (e *Engine) InvalidateCache() {
	e.cache.InvalidateAll()
	e.logger.Info("Invalidated series cache")
}

func (e *Engine) group(view string) *poller.Group {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.views[view]
	if !ok {
		g = e.poller.Group(view)
		e.views[view] = g
	}

	return g
}

func (e *Engine) intervalOr(d time.Duration, def config.Duration) time.Duration {
	if d > 0 {
		return d
	}

	return time.Duration(def)
}

func (e *Engine) publishWarning(w *Warning) {
	e.hub.Publish(Update{Kind: UpdateWarning, At: e.now(), Warning: w})
}
