package lifecycle

import (
	"fmt"
	"log/slog"

	"github.com/JohnDeved/mediagrid/internal/media"
)

// Request describes an element the host should create. Width and Height
// are the reduced decode target, not the card size.
type Request struct {
	Card   string
	Token  uint64
	Kind   media.Kind
	Source string
	Width  int
	Height int
}

// Element is a host-owned decoded media element. The destruction methods
// are called once each, in declaration order, and a failure in one does
// not stop the rest.
type Element interface {
	// Halt stops playback and rewinds.
	Halt() error
	// ReleaseTracks releases live input tracks.
	ReleaseTracks() error
	// ClearSource swaps the source for a blank placeholder, then clears it.
	ClearSource() error
	// Detach removes the element from its card.
	Detach() error
	// ClearAttributes drops any remaining resource-bearing attributes.
	ClearAttributes() error

	Play() error
	Pause() error
}

// handle owns one Element. It is released exactly once.
type handle struct {
	token    uint64
	kind     media.Kind
	el       Element
	released bool
}

type destroyStep struct {
	name string
	run  func() error
}

// release runs the destruction steps for h and returns the step errors.
func (h *handle) release(log *slog.Logger) []error {
	if h.released {
		return nil
	}
	h.released = true
	el := h.el
	h.el = nil
	if el == nil {
		return nil
	}
	steps := []destroyStep{
		{"halt", el.Halt},
		{"release tracks", el.ReleaseTracks},
		{"clear source", el.ClearSource},
		{"detach", el.Detach},
		{"clear attributes", el.ClearAttributes},
	}
	var errs []error
	for _, s := range steps {
		if err := runStep(s); err != nil {
			log.Debug("destroy step failed", "step", s.name, "token", h.token, "err", err)
			errs = append(errs, err)
		}
	}
	return errs
}

func runStep(s destroyStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", s.name, r)
		}
	}()
	if err := s.run(); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}
