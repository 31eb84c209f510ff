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

// Package poller pkg/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/clusterwatch/pkg/observability"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// job is one running poller.
type job struct {
	key      string
	owner    string
	interval time.Duration
	task     Task
	suppress SuppressFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inFlight atomic.Bool

	runs       atomic.Uint64
	errs       atomic.Uint64
	suppressed atomic.Uint64
	dropped    atomic.Uint64
	throttled  atomic.Uint64

	mu        sync.Mutex
	lastRun   time.Time
	lastError string
}

// Poller owns every active poll loop, keyed by logical name.
type Poller struct {
	mu       sync.Mutex
	jobs     map[string]*job
	limiter  *rate.Limiter
	logger   *zap.Logger
	recorder observability.Recorder
}

// Option configures a Poller.
type Option func(*Poller)

// WithLimiter shares a fetch budget across all keys. Ticks that find the
// budget exhausted are dropped.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Poller) {
		p.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r observability.Recorder) Option {
	return func(p *Poller) {
		if r != nil {
			p.recorder = r
		}
	}
}

// New creates a Poller with no active keys.
func New(opts ...Option) *Poller {
	p := &Poller{
		jobs:     make(map[string]*job),
		logger:   zap.NewNop(),
		recorder: observability.Nop{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start begins invoking task every interval under key. The first invocation
// happens immediately. An existing poller under the same key is stopped and
// replaced. suppress may be nil.
func (p *Poller) Start(key string, interval time.Duration, task Task, suppress SuppressFunc) error {
	return p.start("", key, interval, task, suppress)
}

func (p *Poller) start(owner, key string, interval time.Duration, task Task, suppress SuppressFunc) error {
	if key == "" {
		return ErrEmptyKey
	}

	if interval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}

	if task == nil {
		return ErrNilTask
	}

	ctx, cancel := context.WithCancel(context.Background())

	j := &job{
		key:      key,
		owner:    owner,
		interval: interval,
		task:     task,
		suppress: suppress,
		ctx:      ctx,
		cancel:   cancel,
	}

	j.wg.Add(1)

	p.mu.Lock()
	old := p.jobs[key]
	p.jobs[key] = j
	p.mu.Unlock()

	if old != nil {
		p.logger.Debug("Replacing poller", zap.String("key", key))
		old.stop()
	}

	p.logger.Info("Starting poller",
		zap.String("key", key),
		zap.String("owner", owner),
		zap.Duration("interval", interval))

	go p.loop(j)

	return nil
}

// Stop cancels the poller under key and waits for its in-flight invocation
// to return. Stopping an unknown key is a no-op. Stop must not be called from
// inside a Task; return ErrDone instead.
func (p *Poller) Stop(key string) {
	p.mu.Lock()
	j, ok := p.jobs[key]
	if ok {
		delete(p.jobs, key)
	}
	p.mu.Unlock()

	if !ok {
		return
	}

	j.stop()

	p.logger.Info("Stopped poller", zap.String("key", key))
}

// StopAll stops every active poller.
func (p *Poller) StopAll() {
	p.mu.Lock()
	jobs := p.jobs
	p.jobs = make(map[string]*job)
	p.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}

	for _, j := range jobs {
		j.wg.Wait()
	}

	if len(jobs) > 0 {
		p.logger.Info("Stopped all pollers", zap.Int("count", len(jobs)))
	}
}

// stopOwned stops key only while it still belongs to owner.
func (p *Poller) stopOwned(owner, key string) {
	p.mu.Lock()
	j, ok := p.jobs[key]
	if ok && j.owner == owner {
		delete(p.jobs, key)
	} else {
		ok = false
	}
	p.mu.Unlock()

	if ok {
		j.stop()
	}
}

func (p *Poller) ownedBy(owner, key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[key]

	return ok && j.owner == owner
}

// remove drops j from the registry if it is still the active job for its key.
func (p *Poller) remove(j *job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.jobs[j.key]; ok && cur == j {
		delete(p.jobs, j.key)
	}
}

// Active reports whether a poller is running under key.
func (p *Poller) Active(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.jobs[key]

	return ok
}

// Keys returns the sorted list of active keys.
func (p *Poller) Keys() []string {
	p.mu.Lock()
	keys := make([]string, 0, len(p.jobs))

	for k := range p.jobs {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	sort.Strings(keys)

	return keys
}

// Stats returns counters for the poller under key.
func (p *Poller) Stats(key string) (Stats, bool) {
	p.mu.Lock()
	j, ok := p.jobs[key]
	p.mu.Unlock()

	if !ok {
		return Stats{}, false
	}

	return j.stats(), true
}

// AllStats returns counters for every active poller, sorted by key.
func (p *Poller) AllStats() []Stats {
	p.mu.Lock()
	jobs := make([]*job, 0, len(p.jobs))

	for _, j := range p.jobs {
		jobs = append(jobs, j)
	}
	p.mu.Unlock()

	out := make([]Stats, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.stats())
	}

	sort.Slice(out, func(i, k int) bool { return out[i].Key < out[k].Key })

	return out
}

func (p *Poller) loop(j *job) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	p.tick(j)

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			p.tick(j)
		}
	}
}

func (p *Poller) tick(j *job) {
	if j.ctx.Err() != nil {
		return
	}

	kind := Kind(j.key)

	if j.suppress != nil && j.suppress() {
		j.suppressed.Add(1)
		p.recorder.PollOutcome(kind, observability.OutcomeSuppressed)

		return
	}

	// A tick that lands while the previous invocation is still running is
	// dropped, never queued.
	if !j.inFlight.CompareAndSwap(false, true) {
		j.dropped.Add(1)
		p.recorder.PollOutcome(kind, observability.OutcomeDropped)
		p.logger.Debug("Dropping tick, previous poll still in flight", zap.String("key", j.key))

		return
	}

	if j.ctx.Err() != nil {
		j.inFlight.Store(false)

		return
	}

	if p.limiter != nil && !p.limiter.Allow() {
		j.inFlight.Store(false)
		j.throttled.Add(1)
		p.recorder.PollOutcome(kind, observability.OutcomeThrottled)

		return
	}

	j.wg.Add(1)

	go func() {
		defer j.wg.Done()
		defer j.inFlight.Store(false)

		p.invoke(j, kind)
	}()
}

func (p *Poller) invoke(j *job, kind string) {
	start := time.Now()

	err := p.run(j)

	j.runs.Add(1)
	p.recorder.PollDuration(kind, time.Since(start))

	j.mu.Lock()
	j.lastRun = start
	j.mu.Unlock()

	switch {
	case err == nil:
		p.recorder.PollOutcome(kind, observability.OutcomeOK)
		j.setLastError("")
	case errors.Is(err, ErrDone):
		p.recorder.PollOutcome(kind, observability.OutcomeOK)
		p.logger.Info("Poll task finished, stopping poller", zap.String("key", j.key))
		j.cancel()
		p.remove(j)
	case j.ctx.Err() != nil:
		// Cancelled mid-flight; the result is discarded.
	default:
		j.errs.Add(1)
		j.setLastError(err.Error())
		p.recorder.PollOutcome(kind, observability.OutcomeError)
		p.logger.Warn("Error during poll", zap.String("key", j.key), zap.Error(err))
	}
}

func (*Poller) run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll task panicked: %v", r)
		}
	}()

	return j.task(j.ctx)
}

func (j *job) stop() {
	j.cancel()
	j.wg.Wait()
}

func (j *job) setLastError(msg string) {
	j.mu.Lock()
	j.lastError = msg
	j.mu.Unlock()
}

func (j *job) stats() Stats {
	j.mu.Lock()
	lastRun, lastErr := j.lastRun, j.lastError
	j.mu.Unlock()

	return Stats{
		Key:        j.key,
		Owner:      j.owner,
		Interval:   j.interval.String(),
		Runs:       j.runs.Load(),
		Errors:     j.errs.Load(),
		Suppressed: j.suppressed.Load(),
		Dropped:    j.dropped.Load(),
		Throttled:  j.throttled.Load(),
		LastRun:    lastRun,
		LastError:  lastErr,
	}
}

// Kind returns the part of key before the first ':', used as a low
// cardinality label.
func Kind(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}

	return key
}
