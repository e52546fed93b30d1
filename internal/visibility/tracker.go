// Package visibility reports which cards intersect the viewport expanded
// by the preload buffer, as batches of entering and leaving cards.
package visibility

import "github.com/JohnDeved/mediagrid/internal/geom"

// Batch is one set of intersection changes. Both lists keep card order.
type Batch struct {
	Entering []string
	Leaving  []string
}

// Empty reports whether the batch carries no changes.
func (b Batch) Empty() bool {
	return len(b.Entering) == 0 && len(b.Leaving) == 0
}

// RectFunc returns a card's content rectangle; ok is false for cards that
// are not laid out.
type RectFunc func(id string) (r geom.Rect, ok bool)

// Tracker remembers the last intersection state of every observed card.
// The first observation of a card after Connect reports it on whichever
// side it falls, so a reconnect re-announces every card in the zone.
type Tracker struct {
	buffer    float64
	connected bool
	inside    map[string]bool
}

// New returns a connected tracker.
func New(buffer float64) *Tracker {
	return &Tracker{buffer: buffer, connected: true, inside: make(map[string]bool)}
}

// Buffer returns the preload buffer in pixels.
func (t *Tracker) Buffer() float64 { return t.buffer }

// Connected reports whether the tracker is delivering batches.
func (t *Tracker) Connected() bool { return t.connected }

// Disconnect stops delivery and forgets all state.
func (t *Tracker) Disconnect() {
	t.connected = false
	clear(t.inside)
}

// Connect resumes delivery. The next Observe reports every card afresh.
func (t *Tracker) Connect() {
	if t.connected {
		return
	}
	t.connected = true
	clear(t.inside)
}

// Reset forgets all state without changing the connection, as when the
// observed card set is rebuilt.
func (t *Tracker) Reset() {
	clear(t.inside)
}

// Observe recomputes intersections for ids against vp and returns what
// changed. Cards missing from ids are dropped without being reported.
func (t *Tracker) Observe(ids []string, rect RectFunc, vp geom.Viewport) Batch {
	var b Batch
	if !t.connected {
		return b
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
		r, ok := rect(id)
		in := ok && vp.InZone(r, t.buffer)
		prev, known := t.inside[id]
		if known && prev == in {
			continue
		}
		t.inside[id] = in
		if in {
			b.Entering = append(b.Entering, id)
		} else {
			b.Leaving = append(b.Leaving, id)
		}
	}
	for id := range t.inside {
		if _, ok := seen[id]; !ok {
			delete(t.inside, id)
		}
	}
	return b
}

// Intersecting reports the last known state of id.
func (t *Tracker) Intersecting(id string) bool {
	return t.inside[id]
}
