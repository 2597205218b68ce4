package pulse

import "time"

const (
	// DefaultCooldown applies to scopes that never configured a waiting
	// period.
	DefaultCooldown = 2 * time.Hour

	// DefaultInterval is the spacing between rotation steps for scopes
	// that never configured one.
	DefaultInterval = time.Minute

	// MinDuration is the lower bound for both the cooldown and the
	// rotation interval. Smaller values are clamped up to it so a typo in
	// a command cannot turn the engine into a spam loop.
	MinDuration = 10 * time.Second
)

// An Item is a single rotation entry, e.g. one presence activity or one
// rotating channel topic.
type Item struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// State is the full persisted condition of a single scope. All timestamps
// are unix seconds and all durations are stored as whole seconds so the
// serialized form stays easy to inspect and to edit by hand.
type State struct {
	Scope       string `json:"scope"`
	LastEvent   int64  `json:"last_event,omitempty"`   // when the last event was observed, 0 = never
	Cooldown    int64  `json:"cooldown"`               // seconds that must pass after LastEvent
	NotifiedFor int64  `json:"notified_for,omitempty"` // the LastEvent value that was already notified
	Items       []Item `json:"items,omitempty"`
	Index       int    `json:"index"`                // position of the next rotation item
	Interval    int64  `json:"interval"`             // seconds between rotation steps
	RotatedAt   int64  `json:"rotated_at,omitempty"` // when the rotation last advanced
	Autostart   bool   `json:"autostart,omitempty"`
	Running     bool   `json:"running,omitempty"`
}

func newState(scope string) *State {
	return &State{
		Scope:    scope,
		Cooldown: int64(DefaultCooldown / time.Second),
		Interval: int64(DefaultInterval / time.Second),
	}
}

// normalize repairs a state so every invariant holds again. It runs after
// loading persisted data as well as before every save because old versions
// of the serialized form or manual edits may contain anything.
func (s *State) normalize() {
	floor := int64(MinDuration / time.Second)
	if s.Cooldown < floor {
		s.Cooldown = floor
	}
	if s.Interval < floor {
		s.Interval = floor
	}
	if len(s.Items) == 0 {
		s.Index = 0
	} else if s.Index < 0 || s.Index >= len(s.Items) {
		s.Index = 0
	}
}

// Remaining reports how much of the cooldown is left at the given time and
// whether the scope is ready. A scope that never observed an event reports
// the full cooldown as pending.
func (s *State) Remaining(now time.Time) (remaining time.Duration, ready bool) {
	if s.LastEvent == 0 {
		return time.Duration(s.Cooldown) * time.Second, false
	}

	readyAt := s.LastEvent + s.Cooldown
	if now.Unix() >= readyAt {
		return 0, true
	}

	return time.Duration(readyAt-now.Unix()) * time.Second, false
}

func (s *State) clone() State {
	c := *s
	c.Items = append([]Item(nil), s.Items...)
	return c
}

func clampSeconds(d time.Duration) int64 {
	if d < MinDuration {
		d = MinDuration
	}
	return int64(d / time.Second)
}
