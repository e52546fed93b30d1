// Package power suspends and resumes the media subsystem when the host
// window is hidden or restored.
package power

import "sync"

// State is the gate position.
type State int

const (
	Active State = iota
	Suspended
)

func (s State) String() string {
	if s == Suspended {
		return "suspended"
	}
	return "active"
}

// Subsystem is what the gate drives. Methods are called in a fixed order
// on each transition.
type Subsystem interface {
	PausePlayback()
	StopSweep()
	DisconnectTracker()
	RequestGC()

	ConnectTracker()
	ResumeVisiblePlayback()
	StartSweep()
	RunPass()
}

// Gate is the Active/Suspended state machine. Repeated calls into the
// current state are no-ops.
type Gate struct {
	mu    sync.Mutex
	state State
	sub   Subsystem
}

// NewGate returns an active gate driving sub.
func NewGate(sub Subsystem) *Gate {
	return &Gate{sub: sub}
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Suspend pauses playback, stops the sweep, disconnects visibility
// tracking and requests a collection. It reports whether the state
// changed.
func (g *Gate) Suspend() bool {
	g.mu.Lock()
	if g.state == Suspended {
		g.mu.Unlock()
		return false
	}
	g.state = Suspended
	g.mu.Unlock()

	g.sub.PausePlayback()
	g.sub.StopSweep()
	g.sub.DisconnectTracker()
	g.sub.RequestGC()
	return true
}

// Resume reconnects tracking, resumes playback of cards in view, restarts
// the sweep and runs one eviction and retry pass. It reports whether the
// state changed.
func (g *Gate) Resume() bool {
	g.mu.Lock()
	if g.state == Active {
		g.mu.Unlock()
		return false
	}
	g.state = Active
	g.mu.Unlock()

	g.sub.ConnectTracker()
	g.sub.ResumeVisiblePlayback()
	g.sub.StartSweep()
	g.sub.RunPass()
	return true
}

// Toggle flips the state and returns the new one.
func (g *Gate) Toggle() State {
	if g.State() == Active {
		g.Suspend()
	} else {
		g.Resume()
	}
	return g.State()
}
