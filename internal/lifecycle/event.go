package lifecycle

import (
	"time"

	"github.com/JohnDeved/mediagrid/internal/aspect"
	"github.com/JohnDeved/mediagrid/internal/geom"
	"github.com/JohnDeved/mediagrid/internal/media"
)

// Event is a message for Manager.Dispatch. Events without exported fields
// are timers the manager schedules for itself through Host.Schedule; the
// host hands them back unchanged.
type Event interface{ isEvent() }

// Card describes one grid card. Bucket and Audio may carry a classification
// remembered from an earlier session; a zero Bucket means unclassified.
type Card struct {
	ID     string
	Kind   media.Kind
	Source string
	Bucket aspect.Bucket
	Audio  media.Audio
}

// Rendered replaces the card set, in display order. Cards that disappear
// lose their elements; cards that stay keep them.
type Rendered struct{ Cards []Card }

// LayoutChanged signals that card rectangles moved.
type LayoutChanged struct{}

// Resized carries a new viewport size.
type Resized struct{ Viewport geom.Viewport }

// Scrolled carries a new scroll offset and the time it happened.
type Scrolled struct {
	Viewport geom.Viewport
	At       time.Time
}

// MetadataLoaded reports decoded natural dimensions for an element.
type MetadataLoaded struct {
	Card          string
	Token         uint64
	Width, Height int
	Audio         media.Audio
}

// DecodeFailed reports that an element could not be decoded.
type DecodeFailed struct {
	Card  string
	Token uint64
	Err   error
}

// Suspend and Resume drive the power gate.
type (
	Suspend struct{}
	Resume  struct{}
)

type sweepTick struct{ gen uint64 }
type scrollSettled struct{ gen uint64 }
type frameDue struct{ cards []string }
type retryDue struct {
	card  string
	token uint64
}
type gcDue struct{ gen uint64 }

func (Rendered) isEvent()       {}
func (LayoutChanged) isEvent()  {}
func (Resized) isEvent()        {}
func (Scrolled) isEvent()       {}
func (MetadataLoaded) isEvent() {}
func (DecodeFailed) isEvent()   {}
func (Suspend) isEvent()        {}
func (Resume) isEvent()         {}
func (sweepTick) isEvent()      {}
func (scrollSettled) isEvent()  {}
func (frameDue) isEvent()       {}
func (retryDue) isEvent()       {}
func (gcDue) isEvent()          {}
