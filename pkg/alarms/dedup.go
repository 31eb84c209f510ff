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

// Package alarms decides which alarm events are surfaced to the operator.
package alarms

import (
	"strings"
	"sync"

	"github.com/carverauto/clusterwatch/pkg/models"
)

// Filter decides whether an unseen event should be surfaced.
type Filter func(models.AlarmEvent) bool

// AtLeast accepts events whose severity is sev or higher.
func AtLeast(sev models.Severity) Filter {
	floor := sev.Rank()

	return func(ev models.AlarmEvent) bool {
		return ev.Severity.Rank() >= floor && ev.Severity.Rank() > 0
	}
}

// Only accepts events of exactly sev.
func Only(sev models.Severity) Filter {
	return func(ev models.AlarmEvent) bool {
		return strings.EqualFold(string(ev.Severity), string(sev))
	}
}

// Deduplicator remembers which alarm IDs have been surfaced this session.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduplicator returns an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// FilterNew returns the events that have not been surfaced before and pass
// filter, in input order, and records them as seen. Seen IDs are dropped
// before the filter runs, so an event shown once is never shown again even
// if its severity changes. Events that fail the filter are not recorded. A
// nil filter accepts everything.
func (d *Deduplicator) FilterNew(events []models.AlarmEvent, filter Filter) []models.AlarmEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]models.AlarmEvent, 0, len(events))

	for _, ev := range events {
		if ev.ID == "" {
			continue
		}

		if _, ok := d.seen[ev.ID]; ok {
			continue
		}

		if filter != nil && !filter(ev) {
			continue
		}

		d.seen[ev.ID] = struct{}{}

		out = append(out, ev)
	}

	return out
}

// Seen reports whether id has been surfaced.
func (d *Deduplicator) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.seen[id]

	return ok
}

// Reset forgets every surfaced ID.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	d.seen = make(map[string]struct{})
	d.mu.Unlock()
}

// Len returns the number of surfaced IDs.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.seen)
}
