// Package history keeps the short rolling window of round outcomes a
// session derives its bet pattern from.
package history

import (
	"time"

	"roulette-pilot/internal/roulette"
)

// Outcome is one settled round. Immutable once recorded.
type Outcome struct {
	RoundID string
	Number  int
	Color   roulette.Color
	SeenAt  time.Time
}

// History is a bounded, ordered window of the most recent outcomes.
// Collection starts disabled and is enabled permanently the first time a
// round boundary is observed, so a partially seen first round is never
// recorded. Not safe for concurrent use; it is owned by one session loop.
type History struct {
	capacity int
	enabled  bool
	items    []Outcome
}

func New(capacity int) *History {
	return &History{capacity: capacity}
}

// Enable turns collection on. There is no way to turn it back off.
func (h *History) Enable() {
	h.enabled = true
}

func (h *History) Enabled() bool {
	return h.enabled
}

// RecordIfEnabled appends an outcome, evicting the oldest entry on
// overflow. Returns false while collection is disabled.
func (h *History) RecordIfEnabled(o Outcome) bool {
	if !h.enabled {
		return false
	}
	h.items = append(h.items, o)
	if len(h.items) > h.capacity {
		h.items = h.items[len(h.items)-h.capacity:]
	}
	return true
}

func (h *History) Len() int {
	return len(h.items)
}

func (h *History) Full() bool {
	return len(h.items) >= h.capacity
}

// Snapshot returns a copy of the window, oldest to newest. Later appends
// never retroactively change a captured snapshot.
func (h *History) Snapshot() []Outcome {
	out := make([]Outcome, len(h.items))
	copy(out, h.items)
	return out
}
