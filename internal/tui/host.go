package tui

import (
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JohnDeved/mediagrid/internal/decoder"
	"github.com/JohnDeved/mediagrid/internal/geom"
	"github.com/JohnDeved/mediagrid/internal/index"
	"github.com/JohnDeved/mediagrid/internal/lifecycle"
	"github.com/JohnDeved/mediagrid/internal/media"
	"github.com/JohnDeved/mediagrid/internal/probe"
)

// lifecycleMsg carries a manager timer back into Update.
type lifecycleMsg struct{ ev lifecycle.Event }

// decodeDoneMsg reports a finished decode job.
type decodeDoneMsg struct{ job *decoder.Job }

// element is a card's decoded media: a decode job while pending, then a
// thumbnail (images) or a playback flag (videos).
type element struct {
	b       *browser
	card    string
	token   uint64
	kind    media.Kind
	job     *decoder.Job
	thumb   image.Image
	playing bool

	// scaled caches thumb fitted to the card's cell area.
	scaled         image.Image
	scaledW, scaledH int
}

func (e *element) Halt() error {
	e.playing = false
	if e.job != nil {
		e.b.dec.Cancel(e.token)
	}
	return nil
}

// ReleaseTracks is a no-op: terminal elements hold no live tracks.
func (e *element) ReleaseTracks() error { return nil }

func (e *element) ClearSource() error {
	e.thumb = nil
	e.scaled = nil
	return nil
}

func (e *element) Detach() error {
	if _, ok := e.b.elements[e.token]; !ok {
		return fmt.Errorf("element %d already detached", e.token)
	}
	delete(e.b.elements, e.token)
	return nil
}

func (e *element) ClearAttributes() error {
	e.job = nil
	e.card = ""
	return nil
}

func (e *element) Play() error {
	if e.kind != media.KindVideo {
		return errors.New("not a video")
	}
	e.playing = true
	return nil
}

func (e *element) Pause() error {
	e.playing = false
	return nil
}

// thumbFor returns the thumbnail scaled to w×h cells.
func (e *element) thumbFor(w, h int) image.Image {
	if e.thumb == nil {
		return nil
	}
	if e.scaled == nil || e.scaledW != w || e.scaledH != h {
		e.scaled = fitThumb(e.thumb, w, h)
		e.scaledW, e.scaledH = w, h
	}
	return e.scaled
}

// CardRect implements lifecycle.Host.
func (b *browser) CardRect(id string) (geom.Rect, bool) {
	r, ok := b.rects[id]
	return r, ok
}

// CreateElement implements lifecycle.Host by submitting a decode job.
func (b *browser) CreateElement(req lifecycle.Request) (lifecycle.Element, error) {
	e, ok := b.byID[req.Card]
	if !ok {
		return nil, fmt.Errorf("unknown card %s", req.Card)
	}
	el := &element{b: b, card: req.Card, token: req.Token, kind: req.Kind}
	b.elements[req.Token] = el
	el.job = b.dec.Submit(decoder.Request{
		Token:  req.Token,
		Card:   req.Card,
		Path:   e.Path,
		Kind:   req.Kind,
		Width:  req.Width,
		Height: req.Height,
	})
	return el, nil
}

// Schedule implements lifecycle.Host with a tea.Tick.
func (b *browser) Schedule(after time.Duration, ev lifecycle.Event) {
	b.pending = append(b.pending, tea.Tick(after, func(time.Time) tea.Msg {
		return lifecycleMsg{ev: ev}
	}))
}

// CollectGarbage implements lifecycle.Host. It runs off the UI goroutine.
func (b *browser) CollectGarbage() {
	b.gcs++
	b.pending = append(b.pending, func() tea.Msg {
		debug.FreeOSMemory()
		return nil
	})
}

// dispatch feeds the manager and re-runs the layout when a card was
// reclassified.
func (b *browser) dispatch(ev lifecycle.Event) {
	b.mgr.Dispatch(ev)
	if b.relayoutDue {
		b.relayoutDue = false
		b.relayout()
		b.mgr.Dispatch(lifecycle.LayoutChanged{})
	}
}

// takeCmds returns the commands queued by the manager since the last call.
func (b *browser) takeCmds() tea.Cmd {
	if len(b.pending) == 0 {
		return nil
	}
	cmds := b.pending
	b.pending = nil
	return tea.Batch(cmds...)
}

// onMediaState is the manager hook for card state changes.
func (b *browser) onMediaState(id string, info lifecycle.Info) {
	if info.State != lifecycle.StateLoaded || !info.Classified {
		return
	}
	if b.ratios[id] != info.Bucket.Ratio {
		b.relayoutDue = true
	}
}

// onDecoded turns a finished job into a manager event. Jobs whose element
// was already released are dropped.
func (b *browser) onDecoded(job *decoder.Job) tea.Cmd {
	el, ok := b.elements[job.Token]
	if !ok || el.job != job {
		return nil
	}
	job.Mu.Lock()
	status, res, thumb, err := job.Status, job.Result, job.Thumb, job.Error
	job.Mu.Unlock()

	switch status {
	case decoder.StatusDone:
		el.thumb = thumb
		b.dispatch(lifecycle.MetadataLoaded{
			Card:   job.Card,
			Token:  job.Token,
			Width:  res.Width,
			Height: res.Height,
			Audio:  res.Audio,
		})
		return b.remember(job.Card, res)
	case decoder.StatusFailed:
		if job.Kind == media.KindVideo && errors.Is(err, probe.ErrNoProber) {
			// Without ffprobe a video still plays; it keeps the default shape.
			b.dispatch(lifecycle.MetadataLoaded{Card: job.Card, Token: job.Token})
			return nil
		}
		b.dispatch(lifecycle.DecodeFailed{Card: job.Card, Token: job.Token, Err: err})
	}
	return nil
}

// cancelled reports a job cancelled from the decodes view as a failure so
// the card backs off and retries.
func (b *browser) cancelled(token uint64) {
	el, ok := b.elements[token]
	if !ok {
		return
	}
	b.dispatch(lifecycle.DecodeFailed{Card: el.card, Token: token, Err: decoder.ErrCancelled})
}

// remember writes probe results back to the metadata cache.
func (b *browser) remember(id string, res probe.Result) tea.Cmd {
	e, ok := b.byID[id]
	if !ok || b.db == nil {
		return nil
	}
	rec := index.RecordFor(e)
	index.Classify(&rec, res)
	b.records[id] = rec
	db, log := b.db, b.log
	return func() tea.Msg {
		if err := db.Upsert(rec); err != nil {
			log.Warn("caching metadata failed", "path", rec.Path, "err", err)
		}
		return nil
	}
}
