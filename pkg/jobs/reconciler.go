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

// Package jobs reconciles job status from the job list and process logs.
package jobs

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/clusterwatch/pkg/models"
)

// Transition sources.
const (
	SourceList     = "list"
	SourceFinal    = "final_status"
	SourceProcess  = "process_status"
	SourceTracking = "track"
)

// ParseStatus maps an upstream status string onto a JobStatus. Matching is
// case-insensitive. Unknown strings report false.
func ParseStatus(s string) (models.JobStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "queued", "waiting", "scheduled", "created":
		return models.JobStatusPending, true
	case "running", "in_progress", "in-progress", "started", "active", "processing":
		return models.JobStatusRunning, true
	case "completed", "complete", "success", "succeeded", "done", "finished":
		return models.JobStatusCompleted, true
	case "failed", "failure", "error", "errored", "cancelled", "canceled", "aborted":
		return models.JobStatusFailed, true
	default:
		return models.JobStatusUnknown, false
	}
}

// ChangeFunc is called for every resolved status change.
type ChangeFunc func(models.JobTransition)

// Reconciler holds the resolved status of every tracked job. Terminal
// states never change once reached.
type Reconciler struct {
	mu       sync.Mutex
	jobs     map[string]*models.JobState
	now      func() time.Time
	onChange ChangeFunc
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithChangeFunc registers fn for status changes. fn runs without the
// reconciler lock held.
func WithChangeFunc(fn ChangeFunc) Option {
	return func(r *Reconciler) {
		r.onChange = fn
	}
}

// NewReconciler returns an empty reconciler.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		jobs: make(map[string]*models.JobState),
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Track starts tracking id with an initial status. Tracking a known job is
// a no-op and reports false.
func (r *Reconciler) Track(id, name string, initial models.JobStatus) bool {
	r.mu.Lock()

	if _, ok := r.jobs[id]; ok {
		r.mu.Unlock()
		return false
	}

	now := r.now()
	r.jobs[id] = &models.JobState{ID: id, Name: name, Status: initial, UpdatedAt: now}
	r.mu.Unlock()

	if initial != models.JobStatusUnknown {
		r.emit(models.JobTransition{
			JobID:  id,
			From:   models.JobStatusUnknown,
			To:     initial,
			Source: SourceTracking,
			At:     now,
		})
	}

	return true
}

// ObserveList applies a job list entry. Unknown jobs start being tracked.
// For known jobs the list only moves status forward; it lags the process
// log and never overrides a later state.
func (r *Reconciler) ObserveList(s models.JobSummary) (models.JobTransition, bool) {
	status, ok := ParseStatus(s.Status)

	r.mu.Lock()
	_, known := r.jobs[s.ID]
	r.mu.Unlock()

	if !known {
		r.Track(s.ID, s.Name, status)

		return models.JobTransition{}, false
	}

	if !ok {
		return models.JobTransition{}, false
	}

	return r.apply(s.ID, status, SourceList, true)
}

// ObserveLog applies one process log poll. metadata.final_status takes
// precedence over process_status; with neither present nothing changes. A
// final_status that cannot be parsed is treated as no signal. Logs for
// untracked jobs are ignored.
func (r *Reconciler) ObserveLog(id string, log models.ProcessLog) (models.JobTransition, bool) {
	var (
		candidate models.JobStatus
		source    string
		ok        bool
	)

	switch {
	case log.FinalStatus != "":
		candidate, ok = ParseStatus(log.FinalStatus)
		source = SourceFinal
	case log.ProcessStatus != "":
		candidate, ok = ParseStatus(log.ProcessStatus)
		source = SourceProcess
	}

	if !ok {
		return models.JobTransition{}, false
	}

	return r.apply(id, candidate, source, false)
}

// apply moves id to candidate. With forwardOnly set, candidates that do
// not advance the current status are dropped.
func (r *Reconciler) apply(id string, candidate models.JobStatus, source string, forwardOnly bool) (models.JobTransition, bool) {
	r.mu.Lock()

	st, ok := r.jobs[id]
	if !ok || st.Status.Terminal() || st.Status == candidate || (forwardOnly && candidate < st.Status) {
		r.mu.Unlock()
		return models.JobTransition{}, false
	}

	tr := models.JobTransition{
		JobID:  id,
		From:   st.Status,
		To:     candidate,
		Source: source,
		At:     r.now(),
	}

	st.Status = candidate
	st.UpdatedAt = tr.At
	r.mu.Unlock()

	r.emit(tr)

	return tr, true
}

func (r *Reconciler) emit(tr models.JobTransition) {
	if r.onChange != nil {
		r.onChange(tr)
	}
}

// Status returns the resolved status of id.
func (r *Reconciler) Status(id string) (models.JobStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.jobs[id]
	if !ok {
		return models.JobStatusUnknown, false
	}

	return st.Status, true
}

// Job returns a copy of the state of id.
func (r *Reconciler) Job(id string) (models.JobState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.jobs[id]
	if !ok {
		return models.JobState{}, false
	}

	return *st, true
}

// Jobs returns every tracked job sorted by ID.
func (r *Reconciler) Jobs() []models.JobState {
	r.mu.Lock()
	out := make([]models.JobState, 0, len(r.jobs))

	for _, st := range r.jobs {
		out = append(out, *st)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Active returns the IDs of jobs that have not reached a terminal state.
func (r *Reconciler) Active() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.jobs))

	for id, st := range r.jobs {
		if !st.Status.Terminal() {
			out = append(out, id)
		}
	}
	r.mu.Unlock()

	sort.Strings(out)

	return out
}
