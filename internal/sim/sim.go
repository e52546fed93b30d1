// Package sim is a deterministic headless host for the lifecycle manager.
// It keeps a virtual clock, lays cards out with the masonry engine, and
// answers decode requests with scripted metadata or failures, checking the
// element caps after every event.
package sim

import (
	"container/heap"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/JohnDeved/mediagrid/internal/aspect"
	"github.com/JohnDeved/mediagrid/internal/geom"
	"github.com/JohnDeved/mediagrid/internal/layout"
	"github.com/JohnDeved/mediagrid/internal/lifecycle"
	"github.com/JohnDeved/mediagrid/internal/media"
)

// ErrScriptedFailure is the error scripted decode failures report.
var ErrScriptedFailure = errors.New("scripted decode failure")

// Options script the decoder.
type Options struct {
	// LoadDelay is how long a decode takes to report.
	LoadDelay time.Duration
	// Dims returns natural dimensions and audio for a request. The default
	// derives a stable bucket from the card id.
	Dims func(req lifecycle.Request) (w, h int, audio media.Audio)
	// Fail makes the given attempt (1-based, per card) fail.
	Fail func(req lifecycle.Request, attempt int) bool
	// Layout are the masonry options.
	Layout layout.Options
	Logger *slog.Logger
}

// Host implements lifecycle.Host over a virtual clock.
type Host struct {
	Manager *lifecycle.Manager

	opts   Options
	cfg    lifecycle.Config
	now    time.Time
	seq    uint64
	timers timerHeap

	entries []media.Entry
	rects   map[string]geom.Rect
	width   float64
	vp      geom.Viewport
	dirty   bool

	elements map[uint64]*Element
	attempts map[string]int

	Created    int
	Released   int
	GCs        int
	Events     int
	Peak       lifecycle.Tally
	Violations []string
}

// New returns a host and its manager.
func New(cfg lifecycle.Config, opts Options) *Host {
	if opts.LoadDelay <= 0 {
		opts.LoadDelay = 30 * time.Millisecond
	}
	if opts.Dims == nil {
		opts.Dims = stableDims
	}
	if opts.Layout == (layout.Options{}) {
		opts.Layout = layout.DefaultOptions()
	}
	h := &Host{
		opts:     opts,
		now:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		rects:    make(map[string]geom.Rect),
		elements: make(map[uint64]*Element),
		attempts: make(map[string]int),
	}
	hooks := lifecycle.Hooks{
		MediaStateChanged: func(id string, info lifecycle.Info) {
			if info.State == lifecycle.StateLoaded {
				h.dirty = true
			}
		},
	}
	h.Manager = lifecycle.New(cfg, h, hooks, opts.Logger)
	h.cfg = h.Manager.Config()
	return h
}

// stableDims picks a bucket from the card id so runs are repeatable.
func stableDims(req lifecycle.Request) (int, int, media.Audio) {
	sum := xxhash.Sum64String(req.Card)
	b := aspect.Buckets[sum%uint64(len(aspect.Buckets))]
	audio := media.AudioAbsent
	if sum&1 == 1 {
		audio = media.AudioPresent
	}
	return int(1000 * b.Ratio), 1000, audio
}

// Now returns the virtual time.
func (h *Host) Now() time.Time { return h.now }

// Viewport returns the current viewport.
func (h *Host) Viewport() geom.Viewport { return h.vp }

// ContentHeight returns the height of the laid-out content.
func (h *Host) ContentHeight() float64 {
	var max float64
	for _, r := range h.rects {
		if r.Bottom() > max {
			max = r.Bottom()
		}
	}
	return max
}

// CardRect implements lifecycle.Host.
func (h *Host) CardRect(id string) (geom.Rect, bool) {
	r, ok := h.rects[id]
	return r, ok
}

// CreateElement implements lifecycle.Host.
func (h *Host) CreateElement(req lifecycle.Request) (lifecycle.Element, error) {
	h.attempts[req.Card]++
	el := &Element{Card: req.Card, Token: req.Token, host: h}
	h.elements[req.Token] = el
	h.Created++

	var ev lifecycle.Event
	if h.opts.Fail != nil && h.opts.Fail(req, h.attempts[req.Card]) {
		ev = lifecycle.DecodeFailed{Card: req.Card, Token: req.Token, Err: ErrScriptedFailure}
	} else {
		w, ht, audio := h.opts.Dims(req)
		ev = lifecycle.MetadataLoaded{Card: req.Card, Token: req.Token, Width: w, Height: ht, Audio: audio}
	}
	h.push(h.opts.LoadDelay, ev)
	return el, nil
}

// Schedule implements lifecycle.Host.
func (h *Host) Schedule(after time.Duration, ev lifecycle.Event) {
	h.push(after, ev)
}

// CollectGarbage implements lifecycle.Host.
func (h *Host) CollectGarbage() { h.GCs++ }

// Live returns the elements the host has created and not yet seen
// released.
func (h *Host) Live() int { return len(h.elements) }

// Attempts returns how many elements were created for a card.
func (h *Host) Attempts(id string) int { return h.attempts[id] }

// Element returns the live element for a card, if any.
func (h *Host) Element(id string) *Element {
	for _, el := range h.elements {
		if el.Card == id {
			return el
		}
	}
	return nil
}

// Render replaces the card set, lays it out at width and shows vp.
func (h *Host) Render(entries []media.Entry, width float64, vp geom.Viewport) {
	h.entries = entries
	h.width = width
	h.vp = vp
	cards := make([]lifecycle.Card, 0, len(entries))
	for _, e := range entries {
		cards = append(cards, lifecycle.Card{ID: e.Path, Kind: e.Kind, Source: e.URL})
	}
	h.dispatch(lifecycle.Rendered{Cards: cards})
	h.relayout()
	h.dispatch(lifecycle.Resized{Viewport: vp})
	h.dispatch(lifecycle.LayoutChanged{})
}

// ScrollTo moves the viewport to y.
func (h *Host) ScrollTo(y float64) {
	h.vp.ScrollY = y
	h.dispatch(lifecycle.Scrolled{Viewport: h.vp, At: h.now})
}

// Suspend and Resume drive the power gate.
func (h *Host) Suspend() { h.dispatch(lifecycle.Suspend{}) }
func (h *Host) Resume()  { h.dispatch(lifecycle.Resume{}) }

// Dispatch sends an arbitrary event.
func (h *Host) Dispatch(ev lifecycle.Event) { h.dispatch(ev) }

// Advance runs every timer due within d, in time order.
func (h *Host) Advance(d time.Duration) {
	end := h.now.Add(d)
	for h.timers.Len() > 0 && !h.timers[0].at.After(end) {
		t := heap.Pop(&h.timers).(*timer)
		h.now = t.at
		h.dispatch(t.ev)
	}
	h.now = end
}

func (h *Host) push(after time.Duration, ev lifecycle.Event) {
	h.seq++
	heap.Push(&h.timers, &timer{at: h.now.Add(after), seq: h.seq, ev: ev})
}

func (h *Host) dispatch(ev lifecycle.Event) {
	h.Manager.Dispatch(ev)
	h.Events++
	h.check()
	if h.dirty {
		h.dirty = false
		h.relayout()
		h.Manager.Dispatch(lifecycle.LayoutChanged{})
		h.check()
	}
}

func (h *Host) relayout() {
	items := make([]layout.Item, 0, len(h.entries))
	for _, e := range h.entries {
		it := layout.Item{ID: e.Path, Folder: e.Kind == media.KindFolder}
		if info, ok := h.Manager.Info(e.Path); ok && info.Classified {
			it.Ratio = info.Bucket.Ratio
		}
		items = append(items, it)
	}
	res := layout.Masonry(items, h.width, h.opts.Layout)
	clear(h.rects)
	for _, p := range res.Placements {
		h.rects[p.ID] = p.Rect
	}
}

func (h *Host) check() {
	t := h.Manager.Tally()
	h.Peak.Videos = max(h.Peak.Videos, t.Videos)
	h.Peak.Images = max(h.Peak.Images, t.Images)
	h.Peak.Total = max(h.Peak.Total, t.Total)
	if t.Videos > h.cfg.MaxVideos || t.Images > h.cfg.MaxImages || t.Total > h.cfg.MaxTotal {
		h.Violations = append(h.Violations, fmt.Sprintf("at %s: %+v exceeds caps", h.now.Format("15:04:05.000"), t))
	}
	if h.Live() != t.Total {
		h.Violations = append(h.Violations, fmt.Sprintf("at %s: host holds %d elements, manager counts %d", h.now.Format("15:04:05.000"), h.Live(), t.Total))
	}
}

type timer struct {
	at  time.Time
	seq uint64
	ev  lifecycle.Event
}

type timerHeap []*timer

func (q timerHeap) Len() int { return len(q) }
func (q timerHeap) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}
func (q timerHeap) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *timerHeap) Push(x any)   { *q = append(*q, x.(*timer)) }
func (q *timerHeap) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	*q = old[:n-1]
	return t
}
