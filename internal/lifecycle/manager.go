// Package lifecycle decides which grid cards hold a live decoded media
// element. It admits elements for cards near the viewport under per-kind
// and total caps, queues denied requests for retry, evicts elements that
// drift out of the preload zone or overflow the caps, and releases every
// element through an ordered, fault-tolerant destruction sequence.
//
// A Manager is single-threaded: all events go through Dispatch from one
// goroutine, and handlers run one at a time to completion.
package lifecycle

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/JohnDeved/mediagrid/internal/aspect"
	"github.com/JohnDeved/mediagrid/internal/geom"
	"github.com/JohnDeved/mediagrid/internal/media"
	"github.com/JohnDeved/mediagrid/internal/power"
	"github.com/JohnDeved/mediagrid/internal/visibility"
)

// State is a card's media state.
type State int

const (
	StateEmpty State = iota
	StatePending
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePending:
		return "pending"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Info is the externally visible state of a card.
type Info struct {
	State      State
	Bucket     aspect.Bucket
	Classified bool
	Audio      media.Audio
}

// Tally counts live elements. It is always recounted from the cards.
type Tally struct {
	Videos int
	Images int
	Total  int
}

// Host is the platform side: geometry, element construction and timers.
type Host interface {
	// CardRect returns the content rectangle of a laid-out card.
	CardRect(id string) (geom.Rect, bool)
	CreateElement(req Request) (Element, error)
	// Schedule must deliver ev to Dispatch after the delay.
	Schedule(after time.Duration, ev Event)
	CollectGarbage()
}

// Hooks are optional observers for UI decorations.
type Hooks struct {
	VisibilityChanged func(visibility.Batch)
	MediaStateChanged func(id string, info Info)
}

type cardState struct {
	Card
	state       State
	elements    []*handle
	bucket      aspect.Bucket
	classified  bool
	audio       media.Audio
	failedToken uint64
}

func (c *cardState) live(token uint64) *handle {
	for _, h := range c.elements {
		if h.token == token {
			return h
		}
	}
	return nil
}

type classification struct {
	bucket aspect.Bucket
	audio  media.Audio
}

// Manager is the media lifecycle state machine.
type Manager struct {
	cfg   Config
	host  Host
	hooks Hooks
	log   *slog.Logger

	cards map[string]*cardState
	order []string
	index map[string]int
	memo  map[string]classification
	retry *RetryQueue

	tracker *visibility.Tracker
	gate    *power.Gate
	vp      geom.Viewport
	scroll  *rate.Limiter

	nextToken uint64
	sweepGen  uint64
	sweeping  bool
	settleGen uint64
	gcGen     uint64
	primed    bool
	mutated   bool

	queue       []Event
	dispatching bool
	pending     []Effect
}

// New returns a manager. A nil logger uses slog.Default().
func New(cfg Config, host Host, hooks Hooks, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.normalized()
	m := &Manager{
		cfg:     cfg,
		host:    host,
		hooks:   hooks,
		log:     log,
		cards:   make(map[string]*cardState),
		index:   make(map[string]int),
		memo:    make(map[string]classification),
		retry:   newRetryQueue(),
		tracker: visibility.New(cfg.PreloadBuffer),
		scroll:  rate.NewLimiter(rate.Every(cfg.SweepInterval), 1),
	}
	m.gate = power.NewGate(gateAdapter{m})
	return m
}

// Config returns the normalized configuration.
func (m *Manager) Config() Config { return m.cfg }

// Viewport returns the last viewport the manager was told about.
func (m *Manager) Viewport() geom.Viewport { return m.vp }

// PowerState returns the gate state.
func (m *Manager) PowerState() power.State { return m.gate.State() }

// Retry exposes the retry queue for inspection.
func (m *Manager) Retry() *RetryQueue { return m.retry }

// Tally recounts live elements.
func (m *Manager) Tally() Tally {
	var t Tally
	for _, c := range m.cards {
		for _, h := range c.elements {
			switch h.kind {
			case media.KindVideo:
				t.Videos++
			case media.KindImage:
				t.Images++
			}
			t.Total++
		}
	}
	return t
}

// Info returns the state of a card.
func (m *Manager) Info(id string) (Info, bool) {
	c, ok := m.cards[id]
	if !ok {
		return Info{}, false
	}
	return c.info(), true
}

func (c *cardState) info() Info {
	return Info{State: c.state, Bucket: c.bucket, Classified: c.classified, Audio: c.audio}
}

// ElementCount returns how many live elements a card holds.
func (m *Manager) ElementCount(id string) int {
	if c, ok := m.cards[id]; ok {
		return len(c.elements)
	}
	return 0
}

// Dispatch queues ev and, unless a dispatch is already running further up
// the stack, drains the queue: each event is handled, then its effects are
// applied. Events raised while applying effects are queued behind it.
func (m *Manager) Dispatch(ev Event) {
	m.queue = append(m.queue, ev)
	if m.dispatching {
		return
	}
	m.dispatching = true
	defer func() { m.dispatching = false }()
	for len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.apply(m.step(next))
	}
}

// step runs the handler for ev and returns the effects it emitted.
func (m *Manager) step(ev Event) []Effect {
	m.mutated = false
	switch ev := ev.(type) {
	case Rendered:
		m.onRendered(ev.Cards)
	case LayoutChanged:
		m.observe()
	case Resized:
		m.vp = ev.Viewport
		m.observe()
	case Scrolled:
		m.onScrolled(ev)
	case scrollSettled:
		if ev.gen == m.settleGen && !m.suspended() {
			m.runPasses()
			m.retryPass()
		}
	case sweepTick:
		m.onSweep(ev)
	case frameDue:
		if !m.suspended() {
			m.admit(ev.cards, m.cfg.ParallelLoadLimit)
		}
	case MetadataLoaded:
		m.onMetadata(ev)
	case DecodeFailed:
		m.onDecodeFailed(ev)
	case retryDue:
		m.onRetryDue(ev)
	case gcDue:
		if ev.gen == m.gcGen {
			m.emit(CollectGarbage{})
		}
	case Suspend:
		m.gate.Suspend()
	case Resume:
		m.gate.Resume()
	default:
		m.log.Warn("unknown lifecycle event", "event", ev)
	}
	if m.mutated {
		m.scheduleGC()
	}
	out := m.pending
	m.pending = nil
	return out
}

func (m *Manager) emit(e Effect) {
	m.pending = append(m.pending, e)
}

func (m *Manager) apply(effects []Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case Create:
			el, err := m.host.CreateElement(e.Request)
			if err != nil {
				m.queue = append(m.queue, DecodeFailed{Card: e.Request.Card, Token: e.Request.Token, Err: err})
				continue
			}
			if e.h.released {
				late := &handle{token: e.h.token, kind: e.h.kind, el: el}
				late.release(m.log)
				continue
			}
			e.h.el = el
		case Destroy:
			e.h.release(m.log)
		case Play:
			if e.h.el != nil {
				if err := e.h.el.Play(); err != nil {
					m.log.Debug("play failed", "card", e.Card, "err", err)
				}
			}
		case Pause:
			if e.h.el != nil {
				if err := e.h.el.Pause(); err != nil {
					m.log.Debug("pause failed", "card", e.Card, "err", err)
				}
			}
		case Schedule:
			m.host.Schedule(e.After, e.Event)
		case CollectGarbage:
			m.host.CollectGarbage()
		case MediaStateChanged:
			if m.hooks.MediaStateChanged != nil {
				m.hooks.MediaStateChanged(e.Card, e.Info)
			}
		case VisibilityChanged:
			if m.hooks.VisibilityChanged != nil {
				m.hooks.VisibilityChanged(e.Batch)
			}
		}
	}
}

func (m *Manager) suspended() bool {
	return m.gate.State() == power.Suspended
}

func (m *Manager) notify(c *cardState) {
	m.emit(MediaStateChanged{Card: c.ID, Info: c.info()})
}

func (m *Manager) onRendered(cards []Card) {
	next := make(map[string]struct{}, len(cards))
	for _, c := range cards {
		next[c.ID] = struct{}{}
	}
	for _, id := range m.order {
		if _, keep := next[id]; keep {
			continue
		}
		c := m.cards[id]
		m.evictCard(c, false)
		m.retry.Delete(id)
		if c.classified {
			m.memo[id] = classification{bucket: c.bucket, audio: c.audio}
		}
		delete(m.cards, id)
	}

	m.order = m.order[:0]
	clear(m.index)
	for i, card := range cards {
		m.order = append(m.order, card.ID)
		m.index[card.ID] = i
		if c, ok := m.cards[card.ID]; ok {
			if c.Source != card.Source || c.Kind != card.Kind {
				m.evictCard(c, true)
				c.Card = card
			}
			continue
		}
		c := &cardState{Card: card, audio: card.Audio}
		if mem, ok := m.memo[card.ID]; ok {
			c.bucket, c.classified, c.audio = mem.bucket, true, mem.audio
		} else if card.Bucket.Name != "" {
			c.bucket, c.classified = card.Bucket, true
		}
		m.cards[card.ID] = c
	}

	m.tracker.Reset()
	m.primed = false
	if !m.suspended() {
		m.startSweep()
	}
}

func (m *Manager) onScrolled(ev Scrolled) {
	m.vp = ev.Viewport
	if m.suspended() {
		return
	}
	m.observe()
	if m.scroll.AllowN(ev.At, 1) {
		m.runPasses()
		m.retryPass()
	}
	m.settleGen++
	m.emit(Schedule{After: m.cfg.ScrollSettle, Event: scrollSettled{gen: m.settleGen}})
}

func (m *Manager) onSweep(ev sweepTick) {
	if !m.sweeping || ev.gen != m.sweepGen {
		return
	}
	m.runPasses()
	m.retryPass()
	m.emit(Schedule{After: m.cfg.SweepInterval, Event: sweepTick{gen: m.sweepGen}})
}

// observe feeds the tracker and processes a non-empty batch: eviction
// passes first, then admission of entering cards, then the retry queue.
func (m *Manager) observe() {
	b := m.tracker.Observe(m.order, m.host.CardRect, m.vp)
	if b.Empty() {
		return
	}
	m.emit(VisibilityChanged{Batch: b})
	m.runPasses()
	limit := m.cfg.ParallelLoadLimit
	if !m.primed {
		limit *= m.cfg.InitialLoadFactor
		m.primed = true
	}
	m.admit(b.Entering, limit)
	m.retryPass()
}

func (m *Manager) onMetadata(ev MetadataLoaded) {
	c, ok := m.cards[ev.Card]
	if !ok {
		return
	}
	h := c.live(ev.Token)
	if h == nil {
		return
	}
	c.state = StateLoaded
	c.bucket = aspect.Classify(ev.Width, ev.Height)
	c.classified = true
	if c.Kind == media.KindVideo {
		c.audio = ev.Audio
		// Loaded videos loop muted; a suspended gate defers this to Resume.
		if !m.suspended() {
			m.emit(Play{Card: c.ID, Token: h.token, h: h})
		}
	}
	m.notify(c)
}

func (m *Manager) onDecodeFailed(ev DecodeFailed) {
	c, ok := m.cards[ev.Card]
	if !ok {
		return
	}
	h := c.live(ev.Token)
	if h == nil {
		return
	}
	m.log.Debug("decode failed", "card", ev.Card, "err", ev.Err)
	m.destroy(c, h)
	c.state = StateFailed
	c.failedToken = ev.Token
	m.emit(Schedule{After: m.cfg.RetryBackoff, Event: retryDue{card: c.ID, token: ev.Token}})
	m.notify(c)
}

func (m *Manager) onRetryDue(ev retryDue) {
	c, ok := m.cards[ev.card]
	if !ok || c.state != StateFailed || c.failedToken != ev.token {
		return
	}
	c.state = StateEmpty
	m.notify(c)
	if !m.eligible(c) {
		m.retry.Delete(c.ID)
		return
	}
	if m.suspended() {
		m.retry.Set(c.ID, c.Source)
		return
	}
	m.tryCreate(c)
}

func (m *Manager) startSweep() {
	if m.sweeping {
		return
	}
	m.sweeping = true
	m.sweepGen++
	m.emit(Schedule{After: m.cfg.SweepInterval, Event: sweepTick{gen: m.sweepGen}})
}

func (m *Manager) stopSweep() {
	m.sweeping = false
	m.sweepGen++
}

func (m *Manager) scheduleGC() {
	m.gcGen++
	m.emit(Schedule{After: m.cfg.GCDebounce, Event: gcDue{gen: m.gcGen}})
}

// Close releases every element. The manager must not be used afterwards.
func (m *Manager) Close() {
	m.stopSweep()
	for _, id := range m.order {
		m.evictCard(m.cards[id], false)
	}
	m.retry.Clear()
	effects := m.pending
	m.pending = nil
	m.apply(effects)
}

// gateAdapter lets the power gate drive the manager without exporting
// the transition steps on Manager itself.
type gateAdapter struct{ m *Manager }

func (g gateAdapter) PausePlayback() {
	for _, id := range g.m.order {
		c := g.m.cards[id]
		for _, h := range c.elements {
			if h.kind == media.KindVideo {
				g.m.emit(Pause{Card: id, Token: h.token, h: h})
			}
		}
	}
}

func (g gateAdapter) StopSweep()         { g.m.stopSweep() }
func (g gateAdapter) DisconnectTracker() { g.m.tracker.Disconnect() }
func (g gateAdapter) RequestGC()         { g.m.scheduleGC() }
func (g gateAdapter) ConnectTracker()    { g.m.tracker.Connect() }
func (g gateAdapter) StartSweep()        { g.m.startSweep() }

func (g gateAdapter) ResumeVisiblePlayback() {
	m := g.m
	for _, id := range m.order {
		c := m.cards[id]
		if len(c.elements) == 0 {
			continue
		}
		r, ok := m.host.CardRect(id)
		if !ok || !m.vp.InView(r) {
			continue
		}
		for _, h := range c.elements {
			if h.kind == media.KindVideo {
				m.emit(Play{Card: id, Token: h.token, h: h})
			}
		}
	}
}

func (g gateAdapter) RunPass() {
	g.m.observe()
	g.m.runPasses()
	g.m.retryPass()
}
