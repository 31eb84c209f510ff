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

// Package observability records engine self-metrics.
package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Poll outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeSuppressed = "suppressed"
	OutcomeDropped    = "dropped"
	OutcomeThrottled  = "throttled"
)

// Recorder receives engine events worth counting.
type Recorder interface {
	PollOutcome(kind, outcome string)
	PollDuration(kind string, d time.Duration)
	CacheLookup(hit bool)
	AlarmsSurfaced(n int)
	JobTransition(to string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) PollOutcome(string, string) {}
func (Nop) PollDuration(string, time.Duration) {}
func (Nop) CacheLookup(bool) {}
func (Nop) AlarmsSurfaced(int) {}
func (Nop) JobTransition(string) {}

// Prom exports the recorder events as Prometheus collectors.
type Prom struct {
	polls       *prometheus.CounterVec
	pollLatency *prometheus.HistogramVec
	cache       *prometheus.CounterVec
	alarms      prometheus.Counter
	jobs        *prometheus.CounterVec
}

// NewProm creates the collectors and registers them with reg.
func NewProm(reg prometheus.Registerer) (*Prom, error) {
	p := &Prom{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clusterwatch_poll_ticks_total",
			Help: "Poller ticks by poller kind and outcome.",
		}, []string{"kind", "outcome"}),
		pollLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clusterwatch_poll_duration_seconds",
			Help:    "Duration of poll task invocations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"kind"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clusterwatch_series_cache_lookups_total",
			Help: "Series cache lookups by result.",
		}, []string{"result"}),
		alarms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clusterwatch_alarms_surfaced_total",
			Help: "Alarms surfaced after deduplication.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clusterwatch_job_transitions_total",
			Help: "Reconciled job status changes by target status.",
		}, []string{"to"}),
	}

	for _, c := range []prometheus.Collector{p.polls, p.pollLatency, p.cache, p.alarms, p.jobs} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return p, nil
}

func (p *Prom) PollOutcome(kind, outcome string) {
	p.polls.WithLabelValues(kind, outcome).Inc()
}

func (p *Prom) PollDuration(kind string, d time.Duration) {
	p.pollLatency.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *Prom) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	p.cache.WithLabelValues(result).Inc()
}

func (p *Prom) AlarmsSurfaced(n int) {
	if n > 0 {
		p.alarms.Add(float64(n))
	}
}

func (p *Prom) JobTransition(to string) {
	p.jobs.WithLabelValues(to).Inc()
}
