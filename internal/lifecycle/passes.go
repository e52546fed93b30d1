package lifecycle

import (
	"math"
	"sort"

	"github.com/JohnDeved/mediagrid/internal/geom"
	"github.com/JohnDeved/mediagrid/internal/media"
)

// runPasses runs the three eviction passes in order.
func (m *Manager) runPasses() {
	m.evictOutOfZone()
	m.trimDuplicates()
	m.trimOverflow()
}

// evictOutOfZone is pass 1: cards outside the preload zone lose their
// elements, and their retry requests are dropped.
func (m *Manager) evictOutOfZone() {
	for _, id := range m.order {
		c := m.cards[id]
		if len(c.elements) == 0 {
			continue
		}
		if !m.eligible(c) {
			m.evictCard(c, true)
		}
	}
	for _, id := range m.retry.Keys() {
		c, ok := m.cards[id]
		if !ok || !m.eligible(c) {
			m.retry.Delete(id)
		}
	}
}

// trimDuplicates is pass 2: a card keeps only its first element.
func (m *Manager) trimDuplicates() {
	for _, id := range m.order {
		c := m.cards[id]
		for len(c.elements) > 1 {
			m.destroy(c, c.elements[len(c.elements)-1])
		}
	}
}

// trimOverflow is pass 3: enforce the per-kind and total caps by weighted
// distance, then the safety threshold by vertical distance.
func (m *Manager) trimOverflow() {
	weighted := m.vp.WeightedDistance
	t := m.Tally()
	if over := t.Videos - m.cfg.MaxVideos; over > 0 {
		m.evictFarthest(over, kindIs(media.KindVideo), weighted)
	}
	if over := t.Images - m.cfg.MaxImages; over > 0 {
		m.evictFarthest(over, kindIs(media.KindImage), weighted)
	}
	if over := m.Tally().Total - m.cfg.MaxTotal; over > 0 {
		m.evictFarthest(over, anyKind, weighted)
	}
	if over := m.Tally().Total - m.cfg.SafetyThreshold(); over > 0 {
		m.evictFarthest(over, anyKind, m.vp.VerticalDistance)
	}
}

func kindIs(k media.Kind) func(media.Kind) bool {
	return func(x media.Kind) bool { return x == k }
}

func anyKind(media.Kind) bool { return true }

type ranked struct {
	c    *cardState
	h    *handle
	dist float64
	pos  int
}

// evictFarthest destroys the n elements matching keep that are farthest
// from the viewport center under metric. Cards without a rectangle rank
// as infinitely far.
func (m *Manager) evictFarthest(n int, keep func(media.Kind) bool, metric func(geom.Rect) float64) {
	var list []ranked
	for pos, id := range m.order {
		c := m.cards[id]
		if len(c.elements) == 0 {
			continue
		}
		dist := math.Inf(1)
		if r, ok := m.host.CardRect(id); ok {
			dist = metric(r)
		}
		for _, h := range c.elements {
			if keep(h.kind) {
				list = append(list, ranked{c: c, h: h, dist: dist, pos: pos})
			}
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].dist != list[j].dist {
			return list[i].dist > list[j].dist
		}
		return list[i].pos > list[j].pos
	})
	for i := 0; i < n && i < len(list); i++ {
		m.destroy(list[i].c, list[i].h)
		if len(list[i].c.elements) == 0 {
			m.notify(list[i].c)
		}
	}
}

// destroy detaches h from c and emits its release. A card left without
// elements returns to Empty.
func (m *Manager) destroy(c *cardState, h *handle) {
	for i, x := range c.elements {
		if x == h {
			c.elements = append(c.elements[:i], c.elements[i+1:]...)
			break
		}
	}
	m.emit(Destroy{Card: c.ID, Token: h.token, h: h})
	m.mutated = true
	if len(c.elements) == 0 && c.state != StateFailed {
		c.state = StateEmpty
	}
}

// evictCard destroys every element of c.
func (m *Manager) evictCard(c *cardState, notify bool) {
	if len(c.elements) == 0 {
		return
	}
	for len(c.elements) > 0 {
		m.destroy(c, c.elements[0])
	}
	if notify {
		m.notify(c)
	}
}

// eligible reports whether c intersects the preload zone.
func (m *Manager) eligible(c *cardState) bool {
	r, ok := m.host.CardRect(c.ID)
	return ok && m.vp.InZone(r, m.cfg.PreloadBuffer)
}

// decodeTarget is the reduced resolution requested from the decoder.
func (m *Manager) decodeTarget(c *cardState) (int, int) {
	r, _ := m.host.CardRect(c.ID)
	w := int(math.Floor(r.W * m.cfg.DecodeScale))
	h := int(math.Floor(r.H * m.cfg.DecodeScale))
	return max(w, 1), max(h, 1)
}

// tryCreate admits an element for c. It returns false without side
// effects when c already has an element or is backing off after a
// failure, and queues c for retry when a cap would be exceeded.
func (m *Manager) tryCreate(c *cardState) bool {
	if !c.Kind.IsMedia() || len(c.elements) > 0 || c.state == StateFailed {
		return false
	}
	t := m.Tally()
	over := t.Total >= m.cfg.MaxTotal
	switch c.Kind {
	case media.KindVideo:
		over = over || t.Videos >= m.cfg.MaxVideos
	case media.KindImage:
		over = over || t.Images >= m.cfg.MaxImages
	}
	if over {
		m.retry.Set(c.ID, c.Source)
		return false
	}

	m.nextToken++
	h := &handle{token: m.nextToken, kind: c.Kind}
	c.elements = append(c.elements, h)
	c.state = StatePending
	m.retry.Delete(c.ID)

	w, hgt := m.decodeTarget(c)
	m.emit(Create{
		Request: Request{Card: c.ID, Token: h.token, Kind: c.Kind, Source: c.Source, Width: w, Height: hgt},
		h:       h,
	})
	m.mutated = true
	m.notify(c)
	return true
}

// admit creates elements for the eligible cards in ids, nearest to the
// viewport center first, at most limit per call. The rest are retried on
// the next frame.
func (m *Manager) admit(ids []string, limit int) {
	var list []ranked
	for _, id := range ids {
		c, ok := m.cards[id]
		if !ok || !c.Kind.IsMedia() || len(c.elements) > 0 || c.state == StateFailed {
			continue
		}
		r, ok := m.host.CardRect(id)
		if !ok || !m.vp.InZone(r, m.cfg.PreloadBuffer) {
			continue
		}
		list = append(list, ranked{c: c, dist: m.vp.VerticalDistance(r), pos: m.index[id]})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].dist != list[j].dist {
			return list[i].dist < list[j].dist
		}
		return list[i].pos < list[j].pos
	})

	n := min(limit, len(list))
	threshold := m.cfg.SafetyThreshold()
	for _, it := range list[:n] {
		if m.Tally().Total >= threshold {
			m.retry.Set(it.c.ID, it.c.Source)
			continue
		}
		m.tryCreate(it.c)
	}
	if len(list) > n {
		rest := make([]string, 0, len(list)-n)
		for _, it := range list[n:] {
			rest = append(rest, it.c.ID)
		}
		m.emit(Schedule{After: m.cfg.FrameInterval, Event: frameDue{cards: rest}})
	}
}

// retryPass re-attempts queued requests while the total is under the
// safety threshold, at most ParallelLoadLimit admissions per pass.
func (m *Manager) retryPass() {
	if m.suspended() || m.retry.Len() == 0 {
		return
	}
	threshold := m.cfg.SafetyThreshold()
	created := 0
	for _, id := range m.retry.Keys() {
		if created >= m.cfg.ParallelLoadLimit || m.Tally().Total >= threshold {
			return
		}
		c, ok := m.cards[id]
		if !ok || !m.eligible(c) || len(c.elements) > 0 {
			m.retry.Delete(id)
			continue
		}
		if m.tryCreate(c) {
			created++
		}
	}
}
