package sim

import (
	"time"

	"github.com/JohnDeved/mediagrid/internal/geom"
	"github.com/JohnDeved/mediagrid/internal/lifecycle"
	"github.com/JohnDeved/mediagrid/internal/media"
)

// Scenario is a scripted browsing session: render, scroll to the bottom,
// hide and restore the window, scroll back to the top.
type Scenario struct {
	Width    float64
	Height   float64
	Step     float64
	Frame    time.Duration
	Suspend  time.Duration
	Settle   time.Duration
	FailRate int // every Nth card fails its first decode; 0 disables
}

// DefaultScenario is a 1280x800 window scrolling 120px per frame.
func DefaultScenario() Scenario {
	return Scenario{
		Width:   1280,
		Height:  800,
		Step:    120,
		Frame:   16 * time.Millisecond,
		Suspend: time.Second,
		Settle:  2 * time.Second,
	}
}

// Report summarizes a run.
type Report struct {
	Cards         int             `json:"cards" yaml:"cards"`
	ContentHeight float64         `json:"content_height" yaml:"content_height"`
	Events        int             `json:"events" yaml:"events"`
	Created       int             `json:"created" yaml:"created"`
	Released      int             `json:"released" yaml:"released"`
	Peak          lifecycle.Tally `json:"peak" yaml:"peak"`
	Final         lifecycle.Tally `json:"final" yaml:"final"`
	Live          int             `json:"live" yaml:"live"`
	RetryQueued   int             `json:"retry_queued" yaml:"retry_queued"`
	GCs           int             `json:"gc_requests" yaml:"gc_requests"`
	Violations    []string        `json:"violations" yaml:"violations"`
}

// Run plays sc over entries and reports what happened.
func Run(entries []media.Entry, cfg lifecycle.Config, sc Scenario, opts Options) Report {
	if sc.FailRate > 0 && opts.Fail == nil {
		n := 0
		seen := make(map[string]int)
		opts.Fail = func(req lifecycle.Request, attempt int) bool {
			if _, ok := seen[req.Card]; !ok {
				n++
				seen[req.Card] = n
			}
			return attempt == 1 && seen[req.Card]%sc.FailRate == 0
		}
	}
	h := New(cfg, opts)
	h.Render(entries, sc.Width, geom.Viewport{Width: sc.Width, Height: sc.Height})
	h.Advance(sc.Settle)

	bottom := max(h.ContentHeight()-sc.Height, 0)
	for y := 0.0; y < bottom; y += sc.Step {
		h.ScrollTo(y)
		h.Advance(sc.Frame)
	}
	h.ScrollTo(bottom)
	h.Advance(sc.Settle)

	h.Suspend()
	h.Advance(sc.Suspend)
	h.Resume()
	h.Advance(sc.Settle)

	for y := bottom; y > 0; y -= sc.Step {
		h.ScrollTo(y)
		h.Advance(sc.Frame)
	}
	h.ScrollTo(0)
	h.Advance(sc.Settle)

	return Report{
		Cards:         len(entries),
		ContentHeight: h.ContentHeight(),
		Events:        h.Events,
		Created:       h.Created,
		Released:      h.Released,
		Peak:          h.Peak,
		Final:         h.Manager.Tally(),
		Live:          h.Live(),
		RetryQueued:   h.Manager.Retry().Len(),
		GCs:           h.GCs,
		Violations:    h.Violations,
	}
}
