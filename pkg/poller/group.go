package poller

import (
	"sort"
	"sync"
	"time"
)

// Group is a named set of pollers owned by one view. Stopping the group
// tears down only the pollers it started.
type Group struct {
	name   string
	poller *Poller

	mu   sync.Mutex
	keys map[string]struct{}
}

// Group returns a handle for starting pollers on behalf of name.
func (p *Poller) Group(name string) *Group {
	return &Group{
		name:   name,
		poller: p,
		keys:   make(map[string]struct{}),
	}
}

// Name returns the owner name.
func (g *Group) Name() string {
	return g.name
}

// Start starts a poller owned by this group. See Poller.Start.
func (g *Group) Start(key string, interval time.Duration, task Task, suppress SuppressFunc) error {
	if err := g.poller.start(g.name, key, interval, task, suppress); err != nil {
		return err
	}

	g.mu.Lock()
	g.keys[key] = struct{}{}
	g.mu.Unlock()

	return nil
}

// Stop stops one poller owned by this group.
func (g *Group) Stop(key string) {
	g.mu.Lock()
	_, ok := g.keys[key]
	delete(g.keys, key)
	g.mu.Unlock()

	if ok {
		g.poller.stopOwned(g.name, key)
	}
}

// Keys returns the sorted keys this group started that are still running.
func (g *Group) Keys() []string {
	g.mu.Lock()
	keys := make([]string, 0, len(g.keys))

	for k := range g.keys {
		keys = append(keys, k)
	}
	g.mu.Unlock()

	out := keys[:0]

	for _, k := range keys {
		if g.poller.ownedBy(g.name, k) {
			out = append(out, k)
		}
	}

	sort.Strings(out)

	return out
}

// StopAll stops every poller this group started. It is safe to call more
// than once.
func (g *Group) StopAll() {
	g.mu.Lock()
	keys := g.keys
	g.keys = make(map[string]struct{})
	g.mu.Unlock()

	for k := range keys {
		g.poller.stopOwned(g.name, k)
	}
}
