// Package throttle provides a keyed cooldown gate. Features that must not
// react to the same trigger over and over, e.g. AFK mention notices or chat
// triggers, ask the gate before they respond.
package throttle

import (
	"sync"
	"time"
)

// DefaultCapacity bounds how many keys a Gate tracks at once.
const DefaultCapacity = 1024

// A Gate tracks when each key last passed and blocks keys that come back
// before the cooldown elapsed. It is safe for concurrent use and owns all
// of its state, so every feature can carry its own instance.
type Gate struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	clock    func() time.Time
	seen     map[string]time.Time
}

// An Option configures a Gate during New.
type Option func(*Gate)

// WithCapacity changes how many keys the gate tracks before it evicts old
// entries.
func WithCapacity(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.capacity = n
		}
	}
}

// WithClock lets tests control the time the gate observes.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) {
		g.clock = clock
	}
}

// New creates a Gate that lets every key pass at most once per ttl.
func New(ttl time.Duration, opts ...Option) *Gate {
	g := &Gate{
		ttl:      ttl,
		capacity: DefaultCapacity,
		clock:    time.Now,
		seen:     map[string]time.Time{},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Allow reports whether the key may pass and, if so, starts its cooldown.
// Checking and recording happen atomically so two concurrent triggers of
// the same key cannot both pass.
func (g *Gate) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	if last, ok := g.seen[key]; ok && now.Sub(last) < g.ttl {
		return false
	}

	if len(g.seen) >= g.capacity {
		g.sweep(now)
	}

	g.seen[key] = now
	return true
}

// Reset forgets the key so its next trigger passes immediately.
func (g *Gate) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.seen, key)
}

// Len reports how many keys are currently tracked.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.seen)
}

// sweep drops expired entries. If everything is still fresh the oldest
// keys are evicted first, which ends their cooldown early but keeps the
// gate within its capacity.
func (g *Gate) sweep(now time.Time) {
	for key, last := range g.seen {
		if now.Sub(last) >= g.ttl {
			delete(g.seen, key)
		}
	}

	for len(g.seen) >= g.capacity {
		var oldestKey string
		var oldest time.Time
		for key, last := range g.seen {
			if oldestKey == "" || last.Before(oldest) {
				oldestKey, oldest = key, last
			}
		}
		delete(g.seen, oldestKey)
	}
}
