package lifecycle

import (
	"time"

	"github.com/JohnDeved/mediagrid/internal/visibility"
)

// Effect is an instruction produced by an event handler. Handlers only
// update manager state and emit effects; Dispatch applies them through the
// Host in emission order.
type Effect interface{ isEffect() }

// Create asks the host for a new decoded element.
type Create struct {
	Request Request
	h       *handle
}

// Destroy releases an element through the destruction steps.
type Destroy struct {
	Card  string
	Token uint64
	h     *handle
}

// Play and Pause control video playback of a live element.
type (
	Play struct {
		Card  string
		Token uint64
		h     *handle
	}
	Pause struct {
		Card  string
		Token uint64
		h     *handle
	}
)

// Schedule delivers Event back to the manager after the delay.
type Schedule struct {
	After time.Duration
	Event Event
}

// CollectGarbage is the deferred reclamation hint.
type CollectGarbage struct{}

// MediaStateChanged is forwarded to Hooks.MediaStateChanged.
type MediaStateChanged struct {
	Card string
	Info Info
}

// VisibilityChanged is forwarded to Hooks.VisibilityChanged.
type VisibilityChanged struct{ Batch visibility.Batch }

func (Create) isEffect()            {}
func (Destroy) isEffect()           {}
func (Play) isEffect()              {}
func (Pause) isEffect()             {}
func (Schedule) isEffect()          {}
func (CollectGarbage) isEffect()    {}
func (MediaStateChanged) isEffect() {}
func (VisibilityChanged) isEffect() {}
