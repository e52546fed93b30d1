package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/JohnDeved/mediagrid/internal/geom"
	"github.com/JohnDeved/mediagrid/internal/media"
)

type fakeElement struct {
	steps   []string
	playing bool
	failOn  string
	panicOn string
}

func (e *fakeElement) do(step string) error {
	e.steps = append(e.steps, step)
	if step == e.panicOn {
		panic("boom")
	}
	if step == e.failOn {
		return errors.New("step failed")
	}
	return nil
}

func (e *fakeElement) Halt() error            { return e.do("halt") }
func (e *fakeElement) ReleaseTracks() error   { return e.do("release tracks") }
func (e *fakeElement) ClearSource() error     { return e.do("clear source") }
func (e *fakeElement) Detach() error          { return e.do("detach") }
func (e *fakeElement) ClearAttributes() error { return e.do("clear attributes") }
func (e *fakeElement) Play() error            { e.playing = true; return nil }
func (e *fakeElement) Pause() error           { e.playing = false; return nil }

type scheduled struct {
	after time.Duration
	ev    Event
}

type fakeHost struct {
	rects   map[string]geom.Rect
	created []Request
	els     map[uint64]*fakeElement
	timers  []scheduled
	gcs     int
}

func newFakeHost() *fakeHost {
	return &fakeHost{rects: make(map[string]geom.Rect), els: make(map[uint64]*fakeElement)}
}

func (h *fakeHost) CardRect(id string) (geom.Rect, bool) {
	r, ok := h.rects[id]
	return r, ok
}

func (h *fakeHost) CreateElement(req Request) (Element, error) {
	h.created = append(h.created, req)
	el := &fakeElement{}
	h.els[req.Token] = el
	return el, nil
}

func (h *fakeHost) Schedule(after time.Duration, ev Event) {
	h.timers = append(h.timers, scheduled{after, ev})
}

func (h *fakeHost) CollectGarbage() { h.gcs++ }

// take removes and returns the scheduled timers matching fn.
func (h *fakeHost) take(fn func(Event) bool) []scheduled {
	var out []scheduled
	keep := h.timers[:0]
	for _, s := range h.timers {
		if fn(s.ev) {
			out = append(out, s)
		} else {
			keep = append(keep, s)
		}
	}
	h.timers = keep
	return out
}

func (h *fakeHost) lastToken(card string) uint64 {
	for i := len(h.created) - 1; i >= 0; i-- {
		if h.created[i].Card == card {
			return h.created[i].Token
		}
	}
	return 0
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// column lays cards out top to bottom, 100px tall, starting at the given y
// offsets.
func column(h *fakeHost, kind media.Kind, ys ...float64) []Card {
	cards := make([]Card, len(ys))
	for i, y := range ys {
		id := fmt.Sprintf("%s%d", kind, i)
		h.rects[id] = geom.Rect{Y: y, W: 100, H: 100}
		cards[i] = Card{ID: id, Kind: kind, Source: "file:///" + id}
	}
	return cards
}

var smallView = geom.Viewport{Width: 100, Height: 200}

func setup(t *testing.T, cfg Config, cards []Card, h *fakeHost) *Manager {
	t.Helper()
	m := New(cfg, h, Hooks{}, discard)
	m.Dispatch(Rendered{Cards: cards})
	m.Dispatch(Resized{Viewport: smallView})
	return m
}

func TestAdmitsZoneCardsOnce(t *testing.T) {
	h := newFakeHost()
	m := setup(t, DefaultConfig(), column(h, media.KindImage, 0, 100, 200, 300), h)

	if got := m.Tally(); got.Images != 4 || got.Total != 4 {
		t.Fatalf("tally = %+v, want 4 images", got)
	}
	if len(h.created) != 4 {
		t.Fatalf("created %d elements, want 4", len(h.created))
	}
	if m.tryCreate(m.cards["image0"]) {
		t.Fatalf("tryCreate on a card with an element should refuse")
	}
	m.Dispatch(LayoutChanged{})
	if len(h.created) != 4 {
		t.Fatalf("unchanged layout created more elements: %d", len(h.created))
	}
	info, _ := m.Info("image0")
	if info.State != StatePending {
		t.Fatalf("state = %v, want pending", info.State)
	}
	req := h.created[0]
	if req.Width != 30 || req.Height != 30 {
		t.Fatalf("decode target = %dx%d, want 30x30", req.Width, req.Height)
	}
}

func TestCapsQueueRetries(t *testing.T) {
	h := newFakeHost()
	cfg := DefaultConfig()
	cfg.MaxImages, cfg.MaxVideos, cfg.MaxTotal = 2, 1, 0
	m := setup(t, cfg, column(h, media.KindImage, 0, 100, 200, 300), h)

	if m.Config().MaxTotal != 3 {
		t.Fatalf("MaxTotal = %d, want per-kind sum 3", m.Config().MaxTotal)
	}
	if got := m.Tally().Images; got != 2 {
		t.Fatalf("images = %d, want 2", got)
	}
	if want := []string{"image2", "image3"}; !reflect.DeepEqual(m.Retry().Keys(), want) {
		t.Fatalf("retry = %v, want %v", m.Retry().Keys(), want)
	}
	if m.Retry().Source("image2") != "file:///image2" {
		t.Fatalf("retry source = %q", m.Retry().Source("image2"))
	}

	// Everything leaves the zone: elements go, queued requests expire.
	far := smallView
	far.ScrollY = 5000
	m.Dispatch(Scrolled{Viewport: far, At: time.Unix(100, 0)})
	if m.Tally().Total != 0 {
		t.Fatalf("tally after scrolling away = %+v", m.Tally())
	}
	if m.Retry().Len() != 0 {
		t.Fatalf("retry after scrolling away = %v", m.Retry().Keys())
	}
	for tok, el := range h.els {
		if len(el.steps) != 5 {
			t.Fatalf("element %d steps = %v", tok, el.steps)
		}
	}
}

func TestEvictsBeforeAdmitting(t *testing.T) {
	h := newFakeHost()
	cfg := DefaultConfig()
	cfg.MaxImages, cfg.MaxVideos, cfg.MaxTotal = 2, 10, 0
	m := setup(t, cfg, column(h, media.KindImage, 0, 100, 2000, 2100), h)

	vp := smallView
	vp.ScrollY = 1900
	m.Dispatch(Scrolled{Viewport: vp, At: time.Unix(100, 0)})

	if m.ElementCount("image0") != 0 || m.ElementCount("image1") != 0 {
		t.Fatalf("cards above the zone kept elements")
	}
	if m.ElementCount("image2") != 1 || m.ElementCount("image3") != 1 {
		t.Fatalf("entering cards were not admitted")
	}
	if m.Retry().Len() != 0 {
		t.Fatalf("retry = %v, want empty", m.Retry().Keys())
	}
}

func TestTrimDuplicatesKeepsFirst(t *testing.T) {
	h := newFakeHost()
	m := setup(t, DefaultConfig(), column(h, media.KindImage, 0), h)

	c := m.cards["image0"]
	first := c.elements[0]
	extra := &fakeElement{}
	c.elements = append(c.elements, &handle{token: 99, kind: media.KindImage, el: extra})

	m.trimDuplicates()
	m.apply(m.pending)
	m.pending = nil

	if len(c.elements) != 1 || c.elements[0] != first {
		t.Fatalf("first element not kept")
	}
	if len(extra.steps) != 5 {
		t.Fatalf("duplicate not released: %v", extra.steps)
	}
}

func TestTrimOverflowFarthestFirst(t *testing.T) {
	h := newFakeHost()
	cfg := DefaultConfig()
	cfg.MaxImages, cfg.MaxVideos, cfg.MaxTotal = 10, 10, 20
	m := setup(t, cfg, column(h, media.KindImage, 0, 100, 200, 300), h)

	m.cfg.MaxImages = 2
	m.trimOverflow()
	m.apply(m.pending)
	m.pending = nil

	got := []int{m.ElementCount("image0"), m.ElementCount("image1"), m.ElementCount("image2"), m.ElementCount("image3")}
	if want := []int{1, 1, 0, 0}; !reflect.DeepEqual(got, want) {
		t.Fatalf("element counts = %v, want %v", got, want)
	}
}

func TestSafetyTrimByVerticalDistance(t *testing.T) {
	h := newFakeHost()
	cfg := DefaultConfig()
	cfg.MaxImages, cfg.MaxVideos, cfg.MaxTotal = 10, 10, 4
	m := setup(t, cfg, column(h, media.KindImage, 0, 100, 200, 300), h)
	// floor(0.9 * 4) = 3; admission stops there.
	if m.Tally().Total != 3 || m.Retry().Source("image3") == "" {
		t.Fatalf("tally = %+v, retry = %v", m.Tally(), m.Retry().Keys())
	}
	if !m.tryCreate(m.cards["image3"]) {
		t.Fatalf("tryCreate under MaxTotal refused")
	}
	m.apply(m.pending)
	m.pending = nil

	m.trimOverflow()
	m.apply(m.pending)
	m.pending = nil

	if m.Tally().Total != 3 || m.ElementCount("image3") != 0 {
		t.Fatalf("safety trim kept %+v, image3=%d", m.Tally(), m.ElementCount("image3"))
	}
}

func TestDestroyStepsContinuePastFailures(t *testing.T) {
	el := &fakeElement{failOn: "halt", panicOn: "clear source"}
	h := &handle{token: 1, kind: media.KindVideo, el: el}

	errs := h.release(discard)
	if len(errs) != 2 {
		t.Fatalf("errors = %v, want 2", errs)
	}
	want := []string{"halt", "release tracks", "clear source", "detach", "clear attributes"}
	if !reflect.DeepEqual(el.steps, want) {
		t.Fatalf("steps = %v, want %v", el.steps, want)
	}
	if errs := h.release(discard); errs != nil || len(el.steps) != 5 {
		t.Fatalf("second release ran again: %v %v", errs, el.steps)
	}
}

func TestDecodeFailureBacksOff(t *testing.T) {
	h := newFakeHost()
	m := setup(t, DefaultConfig(), column(h, media.KindVideo, 0), h)
	first := h.lastToken("video0")

	m.Dispatch(DecodeFailed{Card: "video0", Token: first, Err: errors.New("bad codec")})
	info, _ := m.Info("video0")
	if info.State != StateFailed || m.ElementCount("video0") != 0 {
		t.Fatalf("after failure: state %v, elements %d", info.State, m.ElementCount("video0"))
	}
	if len(h.els[first].steps) != 5 {
		t.Fatalf("failed element not released: %v", h.els[first].steps)
	}
	if m.tryCreate(m.cards["video0"]) {
		t.Fatalf("tryCreate should refuse while backing off")
	}

	due := h.take(func(ev Event) bool { _, ok := ev.(retryDue); return ok })
	if len(due) != 1 || due[0].after != m.Config().RetryBackoff {
		t.Fatalf("retry timers = %+v", due)
	}
	m.Dispatch(due[0].ev)

	second := h.lastToken("video0")
	if second == first {
		t.Fatalf("no new element after backoff")
	}
	info, _ = m.Info("video0")
	if info.State != StatePending {
		t.Fatalf("state after backoff = %v, want pending", info.State)
	}

	m.Dispatch(MetadataLoaded{Card: "video0", Token: first, Width: 100, Height: 100})
	if info, _ := m.Info("video0"); info.State != StatePending || info.Classified {
		t.Fatalf("stale metadata applied: %+v", info)
	}
	m.Dispatch(MetadataLoaded{Card: "video0", Token: second, Width: 1920, Height: 1080, Audio: media.AudioPresent})
	info, _ = m.Info("video0")
	if info.State != StateLoaded || info.Bucket.Name != "16:9" || info.Audio != media.AudioPresent {
		t.Fatalf("after metadata: %+v", info)
	}
}

func TestGCDebounced(t *testing.T) {
	h := newFakeHost()
	m := setup(t, DefaultConfig(), column(h, media.KindImage, 0), h)
	m.Dispatch(DecodeFailed{Card: "image0", Token: h.lastToken("image0")})

	due := h.take(func(ev Event) bool { _, ok := ev.(gcDue); return ok })
	if len(due) < 2 {
		t.Fatalf("gc timers = %d, want at least 2", len(due))
	}
	for _, s := range due {
		if s.after != m.Config().GCDebounce {
			t.Fatalf("gc delay = %v", s.after)
		}
		m.Dispatch(s.ev)
	}
	if h.gcs != 1 {
		t.Fatalf("collections = %d, want 1", h.gcs)
	}
}

func TestSuspendPausesAndResumePlaysVisible(t *testing.T) {
	h := newFakeHost()
	cards := column(h, media.KindVideo, 0, 400)
	m := setup(t, DefaultConfig(), cards, h)
	if m.Tally().Videos != 2 {
		t.Fatalf("tally = %+v", m.Tally())
	}
	for _, el := range h.els {
		el.playing = true
	}

	m.Dispatch(Suspend{})
	m.Dispatch(Suspend{})
	for tok, el := range h.els {
		if el.playing {
			t.Fatalf("element %d still playing while suspended", tok)
		}
	}
	if m.sweeping || m.tracker.Connected() {
		t.Fatalf("sweep or tracker still running while suspended")
	}
	if m.Tally().Videos != 2 {
		t.Fatalf("suspend destroyed elements: %+v", m.Tally())
	}

	m.Dispatch(Resume{})
	if !h.els[h.lastToken("video0")].playing {
		t.Fatalf("in-view video not resumed")
	}
	if h.els[h.lastToken("video1")].playing {
		t.Fatalf("off-screen video resumed")
	}
	if !m.sweeping || !m.tracker.Connected() {
		t.Fatalf("sweep or tracker not restarted")
	}
	if m.Tally().Videos != 2 || len(h.created) != 2 {
		t.Fatalf("resume churned elements: tally %+v, created %d", m.Tally(), len(h.created))
	}
}

func TestScrollIgnoredWhileSuspended(t *testing.T) {
	h := newFakeHost()
	m := setup(t, DefaultConfig(), column(h, media.KindImage, 0, 100), h)
	m.Dispatch(Suspend{})

	far := smallView
	far.ScrollY = 5000
	m.Dispatch(Scrolled{Viewport: far, At: time.Unix(100, 0)})
	if m.Tally().Total != 2 {
		t.Fatalf("suspended scroll evicted: %+v", m.Tally())
	}

	m.Dispatch(Resume{})
	if m.Tally().Total != 0 {
		t.Fatalf("resume pass did not evict out-of-zone cards: %+v", m.Tally())
	}
}

func TestRenderedKeepsSurvivorsAndRemembersClassification(t *testing.T) {
	h := newFakeHost()
	cards := column(h, media.KindImage, 0, 100, 200)
	m := setup(t, DefaultConfig(), cards, h)
	tok := h.lastToken("image2")
	m.Dispatch(MetadataLoaded{Card: "image2", Token: tok, Width: 100, Height: 200})

	m.Dispatch(Rendered{Cards: cards[:2]})
	if len(h.els[tok].steps) != 5 {
		t.Fatalf("removed card's element not released")
	}
	if m.ElementCount("image0") != 1 || len(h.created) != 3 {
		t.Fatalf("surviving card lost its element")
	}
	if _, ok := m.Info("image2"); ok {
		t.Fatalf("removed card still tracked")
	}

	m.Dispatch(Rendered{Cards: cards})
	info, _ := m.Info("image2")
	if !info.Classified || info.Bucket.Name != "1:2" {
		t.Fatalf("classification not remembered: %+v", info)
	}
}

func TestRenderedSourceChangeEvicts(t *testing.T) {
	h := newFakeHost()
	cards := column(h, media.KindImage, 0)
	m := setup(t, DefaultConfig(), cards, h)
	tok := h.lastToken("image0")

	cards[0].Source = "file:///renamed"
	m.Dispatch(Rendered{Cards: cards})
	if len(h.els[tok].steps) != 5 {
		t.Fatalf("element for the old source not released")
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	h := newFakeHost()
	m := setup(t, DefaultConfig(), column(h, media.KindImage, 0, 100, 200), h)
	m.Close()
	if m.Tally().Total != 0 {
		t.Fatalf("tally after close = %+v", m.Tally())
	}
	for tok, el := range h.els {
		if len(el.steps) != 5 {
			t.Fatalf("element %d not released: %v", tok, el.steps)
		}
	}
}

func TestAdmissionLimitDefersToNextFrame(t *testing.T) {
	h := newFakeHost()
	cfg := DefaultConfig()
	cfg.ParallelLoadLimit = 2
	cfg.InitialLoadFactor = 1
	m := setup(t, cfg, column(h, media.KindImage, 0, 100, 200, 300, 400), h)

	if len(h.created) != 2 {
		t.Fatalf("created %d on the first batch, want 2", len(h.created))
	}
	for i := 0; i < 3; i++ {
		for _, s := range h.take(func(ev Event) bool { _, ok := ev.(frameDue); return ok }) {
			m.Dispatch(s.ev)
		}
	}
	if len(h.created) != 5 {
		t.Fatalf("created %d after deferred frames, want 5", len(h.created))
	}
}

func TestAdmissionStopsAtSafetyThreshold(t *testing.T) {
	h := newFakeHost()
	cfg := DefaultConfig()
	cfg.MaxImages, cfg.MaxVideos, cfg.MaxTotal = 10, 10, 1
	m := New(cfg, h, Hooks{}, discard)
	m.Dispatch(Rendered{Cards: column(h, media.KindImage, 0, 100)})
	m.Dispatch(Resized{Viewport: smallView})

	if m.ElementCount("image0") != 1 || m.ElementCount("image1") != 0 {
		t.Fatalf("element counts %d/%d, want 1/0", m.ElementCount("image0"), m.ElementCount("image1"))
	}
	m.Dispatch(LayoutChanged{})
	m.runPasses()
	m.apply(m.pending)
	m.pending = nil
	if len(h.created) != 1 || len(h.els[h.lastToken("image0")].steps) != 0 {
		t.Fatalf("admitted element churned: created %d", len(h.created))
	}
}

func TestLoadedVideoStartsPlaying(t *testing.T) {
	h := newFakeHost()
	m := setup(t, DefaultConfig(), column(h, media.KindVideo, 0, 100), h)

	tok := h.lastToken("video0")
	m.Dispatch(MetadataLoaded{Card: "video0", Token: tok, Width: 1920, Height: 1080})
	if info, _ := m.Info("video0"); info.State != StateLoaded || !h.els[tok].playing {
		t.Fatalf("state %v, playing %v", info.State, h.els[tok].playing)
	}

	m.Dispatch(Suspend{})
	other := h.lastToken("video1")
	m.Dispatch(MetadataLoaded{Card: "video1", Token: other, Width: 1920, Height: 1080})
	if h.els[other].playing {
		t.Fatalf("video started while suspended")
	}
	m.Dispatch(Resume{})
	if !h.els[other].playing || !h.els[tok].playing {
		t.Fatalf("visible videos not playing after resume")
	}
}
