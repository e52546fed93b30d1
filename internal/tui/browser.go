package tui

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/JohnDeved/mediagrid/internal/aspect"
	"github.com/JohnDeved/mediagrid/internal/config"
	"github.com/JohnDeved/mediagrid/internal/decoder"
	"github.com/JohnDeved/mediagrid/internal/geom"
	"github.com/JohnDeved/mediagrid/internal/index"
	"github.com/JohnDeved/mediagrid/internal/layout"
	"github.com/JohnDeved/mediagrid/internal/lifecycle"
	"github.com/JohnDeved/mediagrid/internal/media"
	"github.com/JohnDeved/mediagrid/internal/projection"
	"github.com/JohnDeved/mediagrid/internal/util"
)

// browser is the card grid. It owns the lifecycle manager and acts as its
// host. It is shared by pointer between copies of Model.
type browser struct {
	cfg *config.Config
	db  *index.DB
	dec *decoder.Manager
	log *slog.Logger

	mgr      *lifecycle.Manager
	engine   *layout.Engine
	elements map[uint64]*element
	pending  []tea.Cmd

	dir      string
	entries  []media.Entry
	visible  []media.Entry
	byID     map[string]media.Entry
	records  map[string]index.Record
	criteria projection.Criteria
	history  history
	watcher  *media.Watcher

	res         layout.Result
	rects       map[string]geom.Rect
	ratios      map[string]float64
	relayoutDue bool

	cursor  int
	scrollY float64
	// width and height are the grid area in cells.
	width, height int
	cellW, cellH  float64

	filter textinput.Model
	loading bool
	err     error
	gcs     int
	closed  bool
}

func newBrowser(cfg *config.Config, db *index.DB, dec *decoder.Manager, log *slog.Logger) *browser {
	mode, _ := layout.ParseMode(cfg.LayoutMode)
	sortType, _ := projection.ParseSortType(cfg.SortType)
	order, _ := projection.ParseOrder(cfg.SortOrder)

	ti := textinput.New()
	ti.Placeholder = "filter by name"
	ti.CharLimit = 128
	ti.Prompt = "/ "
	ti.PromptStyle = promptStyle

	b := &browser{
		cfg:      cfg,
		db:       db,
		dec:      dec,
		log:      log,
		engine:   &layout.Engine{Mode: mode, Options: cfg.Layout()},
		elements: make(map[uint64]*element),
		byID:     make(map[string]media.Entry),
		records:  make(map[string]index.Record),
		rects:    make(map[string]geom.Rect),
		ratios:   make(map[string]float64),
		criteria: projection.Criteria{
			Sort:   sortType,
			Order:  order,
			Locale: projection.DefaultLocale(),
		},
		cellW:  float64(cfg.CellWidthPx),
		cellH:  float64(cfg.CellHeightPx),
		filter: ti,
	}
	b.mgr = lifecycle.New(cfg.Lifecycle(), b, lifecycle.Hooks{MediaStateChanged: b.onMediaState}, log)
	return b
}

// viewport is the visible grid area in pixels.
func (b *browser) viewport() geom.Viewport {
	return geom.Viewport{
		Width:   float64(b.width) * b.cellW,
		Height:  float64(b.height) * b.cellH,
		ScrollY: b.scrollY,
	}
}

// setEntries installs a scanned folder. Navigating to another folder
// resets the search text and the filter.
func (b *browser) setEntries(dir string, entries []media.Entry, records map[string]index.Record) {
	if dir != b.dir {
		b.criteria.Filter = projection.FilterAll
		b.criteria.Search = ""
		b.filter.SetValue("")
		b.filter.Blur()
		b.cursor = 0
		b.scrollY = 0
	}
	b.dir = dir
	b.entries = entries
	if records == nil {
		records = make(map[string]index.Record)
	}
	b.records = records
	clear(b.byID)
	for _, e := range entries {
		b.byID[e.Path] = e
	}
	b.loading = false
	b.err = nil
	b.project()
}

// project re-runs the filter/sort projection and renders the result.
func (b *browser) project() {
	var sel string
	if cur := b.selected(); cur != nil {
		sel = cur.Path
	}
	b.visible = projection.Project(b.entries, b.criteria, b.audioFor)

	cards := make([]lifecycle.Card, 0, len(b.visible))
	for _, e := range b.visible {
		cards = append(cards, b.cardFor(e))
	}
	b.mgr.Dispatch(lifecycle.Rendered{Cards: cards})
	b.relayout()
	b.dispatch(lifecycle.LayoutChanged{})

	b.cursor = 0
	for i, e := range b.visible {
		if e.Path == sel {
			b.cursor = i
			break
		}
	}
	b.clampScroll()
}

// cardFor seeds a card with the cached classification when the cached
// record still matches the file.
func (b *browser) cardFor(e media.Entry) lifecycle.Card {
	c := lifecycle.Card{ID: e.Path, Kind: e.Kind, Source: e.URL}
	rec, ok := b.records[e.Path]
	if !ok || !rec.Probed() || rec.Fingerprint != index.Fingerprint(e.Path, e.Size, e.MTimeMillis()) {
		return c
	}
	if bucket, ok := aspect.Lookup(rec.Bucket); ok {
		c.Bucket = bucket
	}
	c.Audio = rec.Audio
	return c
}

// audioFor resolves a video's audio tag: live classification first, then
// the cache.
func (b *browser) audioFor(path string) media.Audio {
	if info, ok := b.mgr.Info(path); ok && info.Audio != media.AudioUnknown {
		return info.Audio
	}
	if rec, ok := b.records[path]; ok {
		return rec.Audio
	}
	return media.AudioUnknown
}

// relayout positions the visible cards for the current width.
func (b *browser) relayout() {
	items := make([]layout.Item, 0, len(b.visible))
	for _, e := range b.visible {
		it := layout.Item{ID: e.Path, Folder: e.Kind == media.KindFolder}
		if info, ok := b.mgr.Info(e.Path); ok && info.Classified {
			it.Ratio = info.Bucket.Ratio
		}
		items = append(items, it)
	}
	b.res = b.engine.Layout(items, float64(b.width)*b.cellW)
	clear(b.rects)
	clear(b.ratios)
	for i, p := range b.res.Placements {
		b.rects[p.ID] = p.Rect
		b.ratios[p.ID] = items[i].Ratio
	}
}

// resize applies a debounced terminal resize.
func (b *browser) resize(width, height int) {
	b.width, b.height = max(width, 1), max(height, 1)
	b.relayout()
	b.clampScroll()
	b.dispatch(lifecycle.Resized{Viewport: b.viewport()})
	b.dispatch(lifecycle.LayoutChanged{})
}

func (b *browser) toggleLayout() layout.Mode {
	mode := b.engine.Toggle()
	b.cfg.LayoutMode = mode.String()
	b.relayout()
	b.clampScroll()
	b.dispatch(lifecycle.Scrolled{Viewport: b.viewport(), At: time.Now()})
	b.dispatch(lifecycle.LayoutChanged{})
	return mode
}

func (b *browser) cycleFilter() projection.Filter {
	b.criteria.Filter = b.criteria.Filter.Next()
	b.project()
	return b.criteria.Filter
}

func (b *browser) toggleSort() projection.SortType {
	if b.criteria.Sort == projection.SortName {
		b.criteria.Sort = projection.SortDate
	} else {
		b.criteria.Sort = projection.SortName
	}
	b.cfg.SortType = b.criteria.Sort.String()
	b.project()
	return b.criteria.Sort
}

func (b *browser) toggleOrder() projection.Order {
	if b.criteria.Order == projection.Ascending {
		b.criteria.Order = projection.Descending
	} else {
		b.criteria.Order = projection.Ascending
	}
	b.cfg.SortOrder = "asc"
	if b.criteria.Order == projection.Descending {
		b.cfg.SortOrder = "desc"
	}
	b.project()
	return b.criteria.Order
}

// setSearch applies the filter box text.
func (b *browser) setSearch(text string) {
	if text == b.criteria.Search {
		return
	}
	b.criteria.Search = text
	b.project()
}

func (b *browser) selected() *media.Entry {
	if b.cursor >= 0 && b.cursor < len(b.visible) {
		return &b.visible[b.cursor]
	}
	return nil
}

// focus moves the cursor to the card with the given path, if present.
func (b *browser) focus(path string) {
	for i, e := range b.visible {
		if e.Path == path {
			b.cursor = i
			b.ensureVisible()
			return
		}
	}
}

func (b *browser) maxScroll() float64 {
	return math.Max(0, b.res.ContentHeight-float64(b.height)*b.cellH)
}

func (b *browser) clampScroll() {
	b.scrollY = math.Min(math.Max(0, b.scrollY), b.maxScroll())
}

// scrollTo moves the viewport and tells the manager.
func (b *browser) scrollTo(y float64) {
	prev := b.scrollY
	b.scrollY = y
	b.clampScroll()
	if b.scrollY != prev {
		b.dispatch(lifecycle.Scrolled{Viewport: b.viewport(), At: time.Now()})
	}
}

func (b *browser) scrollBy(dy float64) { b.scrollTo(b.scrollY + dy) }

func (b *browser) pageUp()   { b.scrollBy(-float64(b.height) * b.cellH * 0.9) }
func (b *browser) pageDown() { b.scrollBy(float64(b.height) * b.cellH * 0.9) }

// ensureVisible scrolls the selected card into view.
func (b *browser) ensureVisible() {
	sel := b.selected()
	if sel == nil {
		return
	}
	r, ok := b.rects[sel.Path]
	if !ok {
		return
	}
	gap := b.engine.Options.Gap
	viewH := float64(b.height) * b.cellH
	switch {
	case r.Y < b.scrollY:
		b.scrollTo(r.Y - gap)
	case r.Bottom() > b.scrollY+viewH:
		b.scrollTo(r.Bottom() - viewH + gap)
	}
}

// move steps the cursor in display order.
func (b *browser) move(delta int) {
	if len(b.visible) == 0 {
		return
	}
	b.cursor = min(max(b.cursor+delta, 0), len(b.visible)-1)
	b.ensureVisible()
}

// moveVertical picks the nearest card above (dir < 0) or below (dir > 0),
// preferring the same column.
func (b *browser) moveVertical(dir int) {
	sel := b.selected()
	if sel == nil {
		return
	}
	cur, ok := b.rects[sel.Path]
	if !ok {
		return
	}
	cx, cy := cur.Center()
	best, bestScore := -1, math.Inf(1)
	for i, e := range b.visible {
		r, ok := b.rects[e.Path]
		if !ok || i == b.cursor {
			continue
		}
		x, y := r.Center()
		dy := (y - cy) * float64(dir)
		if dy <= 0 {
			continue
		}
		score := dy + 4*math.Abs(x-cx)
		if score < bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		b.cursor = best
		b.ensureVisible()
	}
}

// clickAt selects the card under grid cell (x, y).
func (b *browser) clickAt(x, y int) {
	if x < 0 || y < 0 || y >= b.height {
		return
	}
	px := (float64(x) + 0.5) * b.cellW
	py := b.scrollY + (float64(y)+0.5)*b.cellH
	for i, e := range b.visible {
		r, ok := b.rects[e.Path]
		if ok && px >= r.X && px < r.Right() && py >= r.Y && py < r.Bottom() {
			b.cursor = i
			b.ensureVisible()
			return
		}
	}
}

func (b *browser) home() {
	b.cursor = 0
	b.scrollTo(0)
}

func (b *browser) end() {
	if len(b.visible) == 0 {
		return
	}
	b.cursor = len(b.visible) - 1
	b.scrollTo(b.maxScroll())
}

// close releases every element and stops watching the folder. Later calls
// are no-ops.
func (b *browser) close() {
	if b.closed {
		return
	}
	b.closed = true
	b.mgr.Close()
	b.dec.CancelAll()
	if b.watcher != nil {
		b.watcher.Close()
		b.watcher = nil
	}
}

func (b *browser) breadcrumb() string {
	if b.dir == "" {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(b.dir), "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return "/ " + strings.Join(out, " > ")
}

// view renders the breadcrumb, the optional filter box and the grid.
func (b *browser) view(width int, spin string) string {
	var sb strings.Builder
	crumb := b.breadcrumb()
	info := fmt.Sprintf("  %s · %s · %s %s",
		b.engine.Mode, b.criteria.Filter, b.criteria.Sort, b.criteria.Order)
	sb.WriteString(breadcrumbStyle.Render(util.TruncatePath(crumb, max(8, width-len(info)-1))))
	sb.WriteString(helpStyle.Render(info))
	sb.WriteString("\n")

	if b.filter.Focused() || b.criteria.Search != "" {
		sb.WriteString(b.filter.View())
	}
	sb.WriteString("\n")

	switch {
	case b.loading && len(b.visible) == 0:
		sb.WriteString(fmt.Sprintf("\n  %s Loading...\n", spin))
		return sb.String()
	case b.err != nil && len(b.entries) == 0:
		sb.WriteString(errorStyle.Render(fmt.Sprintf("\n  Error: %v\n", b.err)))
		return sb.String()
	case len(b.entries) == 0:
		sb.WriteString(helpStyle.Render("\n  (no folders or media files)\n"))
		return sb.String()
	case len(b.visible) == 0:
		sb.WriteString(helpStyle.Render("\n  No matches for the current filter.\n"))
		return sb.String()
	}

	sb.WriteString(b.grid(spin))
	return sb.String()
}

// grid paints the cards that intersect the viewport.
func (b *browser) grid(spin string) string {
	cv := newCanvas(b.width, b.height)
	top := b.scrollY
	for i, e := range b.visible {
		r, ok := b.rects[e.Path]
		if !ok {
			continue
		}
		y0 := int(math.Round((r.Y - top) / b.cellH))
		y1 := int(math.Round((r.Bottom() - top) / b.cellH))
		if y1 <= 0 || y0 >= b.height {
			continue
		}
		x0 := int(math.Round(r.X / b.cellW))
		x1 := int(math.Round(r.Right() / b.cellW))
		b.drawCard(cv, e, x0, y0, x1, max(y1, y0+3), i == b.cursor, spin)
	}
	return cv.String()
}

func (b *browser) drawCard(cv *canvas, e media.Entry, x0, y0, x1, y1 int, selected bool, spin string) {
	border := hexBorder
	if selected {
		border = hexPrimary
	}
	cv.fill(x0, y0, x1, y1, hexCardBg)
	cv.box(x0, y0, x1, y1, border, hexCardBg)

	innerW := x1 - x0 - 2
	if innerW <= 0 {
		return
	}
	labelY := y1 - 2
	bodyH := labelY - (y0 + 1)

	if e.Kind == media.KindFolder {
		cv.text(x0+1, labelY, "▸ "+e.Name, hexSecondary, hexCardBg, innerW)
		b.centered(cv, x0+1, y0+1, innerW, bodyH, "folder", hexMuted)
		return
	}

	info, _ := b.mgr.Info(e.Path)
	el := b.liveElement(e.Path)
	switch {
	case el != nil && el.thumb != nil && bodyH > 0:
		if img := el.thumbFor(innerW, bodyH); img != nil {
			cv.blit(x0+1, y0+1, img)
		}
	case e.Kind == media.KindVideo && el != nil && info.State == lifecycle.StateLoaded:
		glyph := "❚❚ paused"
		if el.playing {
			glyph = "▶ playing"
		}
		b.centered(cv, x0+1, y0+1, innerW, bodyH, glyph, hexText)
	case info.State == lifecycle.StatePending:
		b.centered(cv, x0+1, y0+1, innerW, bodyH, spin+" decoding", hexMuted)
	case info.State == lifecycle.StateFailed:
		b.centered(cv, x0+1, y0+1, innerW, bodyH, "✕ failed", hexError)
	case info.State == lifecycle.StateLoaded:
		b.centered(cv, x0+1, y0+1, innerW, bodyH, info.Bucket.Name, hexMuted)
	default:
		b.centered(cv, x0+1, y0+1, innerW, bodyH, "·", hexMuted)
	}

	x := x0 + 1
	ext := e.Ext()
	x += cv.text(x, labelY, " "+ext+" ", hexLabelText, media.ExtColor(ext), innerW)
	if e.Kind == media.KindVideo && info.Audio == media.AudioPresent {
		x += cv.text(x, labelY, " AUDIO", hexSuccess, hexCardBg, x1-1-x)
	}
	if rest := x1 - 1 - x - 1; rest > 0 {
		cv.text(x+1, labelY, util.Truncate(e.Name, rest), hexText, hexCardBg, rest)
	}
}

func (b *browser) centered(cv *canvas, x, y, w, h int, s, fg string) {
	if h <= 0 {
		return
	}
	s = util.Truncate(s, w)
	off := (w - util.Width(s)) / 2
	cv.text(x+off, y+(h-1)/2, s, fg, hexCardBg, w-off)
}

// liveElement returns the newest element held for a card.
func (b *browser) liveElement(id string) *element {
	var out *element
	for _, el := range b.elements {
		if el.card == id && (out == nil || el.token > out.token) {
			out = el
		}
	}
	return out
}
