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
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/clusterwatch/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 64

// UpdateKind identifies what an Update carries.
type UpdateKind string

const (
	UpdateAlarm     UpdateKind = "alarm"
	UpdateJobStatus UpdateKind = "job_status"
	UpdateWarning   UpdateKind = "warning"
)

// Warning is a transient, user-visible problem with one poller.
type Warning struct {
	Source  string `json:"source"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

// Update is one push notification for subscribers.
type Update struct {
	Kind    UpdateKind            `json:"kind"`
	At      time.Time             `json:"at"`
	Alarm   *models.AlarmEvent    `json:"alarm,omitempty"`
	Job     *models.JobTransition `json:"job,omitempty"`
	Warning *Warning              `json:"warning,omitempty"`
}

// Subscription receives updates until Close is called.
type Subscription struct {
	ID string
	C  <-chan Update

	hub *Hub
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.ID)
}

// Hub fans updates out to subscribers. A subscriber whose buffer is full
// misses the update; publishing never blocks.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]chan Update
	buffer  int
	closed  bool
	dropped atomic.Uint64
	logger  *zap.Logger
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		subs:   make(map[string]chan Update),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed hub returns
// a subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	id := uuid.NewString()
	ch := make(chan Update, h.buffer)

	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[id] = ch
	}
	h.mu.Unlock()

	return &Subscription{ID: id, C: ch, hub: h}
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers u to every subscriber with room in its buffer.
func (h *Hub) Publish(u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- u:
		default:
			h.dropped.Add(1)
			h.logger.Debug("Dropping update for slow subscriber",
				zap.String("subscriber", id),
				zap.String("kind", string(u.Kind)))
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

// Dropped returns how many deliveries were skipped.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true

	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
