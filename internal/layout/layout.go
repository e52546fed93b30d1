// Package layout positions cards for the grid view.
//
// Masonry mode packs variable-height cards into the currently shortest
// column. Grid mode has no absolute positioning of its own; Flow stands in
// for the natural row-wrapping box layout a terminal does not provide.
package layout

import (
	"fmt"
	"strings"

	"github.com/JohnDeved/mediagrid/internal/aspect"
	"github.com/JohnDeved/mediagrid/internal/geom"
)

// Mode selects how cards are positioned.
type Mode int

const (
	ModeMasonry Mode = iota
	ModeGrid
)

func (m Mode) String() string {
	switch m {
	case ModeMasonry:
		return "masonry"
	case ModeGrid:
		return "grid"
	default:
		return "unknown"
	}
}

// ParseMode parses "masonry" or "grid".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "masonry":
		return ModeMasonry, nil
	case "grid":
		return ModeGrid, nil
	}
	return ModeMasonry, fmt.Errorf("unknown layout mode %q", s)
}

// Item is one card to place. Ratio is width/height; zero means unknown.
type Item struct {
	ID     string
	Folder bool
	Ratio  float64
}

// Options are the layout constants, in pixels.
type Options struct {
	MinColumnWidth float64
	Gap            float64
	MinHeight      float64
}

// DefaultOptions returns the stock column width, gap and minimum card height.
func DefaultOptions() Options {
	return Options{MinColumnWidth: 250, Gap: 16, MinHeight: 50}
}

// Placement is the computed position of one item.
type Placement struct {
	ID     string    `json:"id" yaml:"id"`
	Column int       `json:"column" yaml:"column"`
	Rect   geom.Rect `json:"rect" yaml:"rect"`
}

// Result is the output of one layout run. Placements align with the input
// items. SpacerHeight is the height the scroll container's spacer must
// have so its scrollable extent covers absolutely positioned cards.
type Result struct {
	Mode          Mode        `json:"-" yaml:"-"`
	Columns       int         `json:"columns" yaml:"columns"`
	ColumnWidth   float64     `json:"column_width" yaml:"column_width"`
	Placements    []Placement `json:"placements" yaml:"placements"`
	ContentHeight float64     `json:"content_height" yaml:"content_height"`
	SpacerHeight  float64     `json:"spacer_height" yaml:"spacer_height"`
	Positioned    bool        `json:"positioned" yaml:"positioned"`
}

// Rects maps item ids to their rectangles.
func (r Result) Rects() map[string]geom.Rect {
	out := make(map[string]geom.Rect, len(r.Placements))
	for _, p := range r.Placements {
		out[p.ID] = p.Rect
	}
	return out
}

// ColumnCount returns how many columns of at least minWidth fit.
func ColumnCount(containerWidth, minWidth, gap float64) int {
	if minWidth+gap <= 0 {
		return 1
	}
	n := int((containerWidth + gap) / (minWidth + gap))
	if n < 1 {
		return 1
	}
	return n
}

func columnWidth(containerWidth, gap float64, columns int) float64 {
	return (containerWidth - gap*float64(columns-1)) / float64(columns)
}

func (o Options) height(it Item, width float64) float64 {
	h := width
	if !it.Folder {
		ratio := it.Ratio
		if ratio <= 0 {
			ratio = aspect.Default.Ratio
		}
		h = width / ratio
	}
	if h < o.MinHeight {
		h = o.MinHeight
	}
	return h
}

// Masonry places items into the shortest column, ties going to the lowest
// column index. A zero-width container yields an empty result.
func Masonry(items []Item, containerWidth float64, opts Options) Result {
	res := Result{Mode: ModeMasonry, Positioned: true}
	if containerWidth <= 0 {
		return res
	}
	cols := ColumnCount(containerWidth, opts.MinColumnWidth, opts.Gap)
	width := columnWidth(containerWidth, opts.Gap, cols)
	heights := make([]float64, cols)

	res.Columns = cols
	res.ColumnWidth = width
	res.Placements = make([]Placement, len(items))
	for i, it := range items {
		col := 0
		for c := 1; c < cols; c++ {
			if heights[c] < heights[col] {
				col = c
			}
		}
		h := opts.height(it, width)
		res.Placements[i] = Placement{
			ID:     it.ID,
			Column: col,
			Rect:   geom.Rect{X: float64(col) * (width + opts.Gap), Y: heights[col], W: width, H: h},
		}
		heights[col] += h + opts.Gap
	}
	for _, h := range heights {
		if h > res.ContentHeight {
			res.ContentHeight = h
		}
	}
	res.SpacerHeight = res.ContentHeight
	return res
}

// Flow wraps items into rows of equal-width cells; each row is as tall as
// its tallest card.
func Flow(items []Item, containerWidth float64, opts Options) Result {
	res := Result{Mode: ModeGrid}
	if containerWidth <= 0 {
		return res
	}
	cols := ColumnCount(containerWidth, opts.MinColumnWidth, opts.Gap)
	width := columnWidth(containerWidth, opts.Gap, cols)

	res.Columns = cols
	res.ColumnWidth = width
	res.Placements = make([]Placement, len(items))
	var y float64
	for start := 0; start < len(items); start += cols {
		end := min(start+cols, len(items))
		var rowHeight float64
		for i := start; i < end; i++ {
			rowHeight = max(rowHeight, opts.height(items[i], width))
		}
		for i := start; i < end; i++ {
			col := i - start
			res.Placements[i] = Placement{
				ID:     items[i].ID,
				Column: col,
				Rect:   geom.Rect{X: float64(col) * (width + opts.Gap), Y: y, W: width, H: rowHeight},
			}
		}
		y += rowHeight + opts.Gap
	}
	if len(items) > 0 {
		res.ContentHeight = y - opts.Gap
	}
	return res
}

// Engine runs the layout for the active mode.
type Engine struct {
	Mode    Mode
	Options Options
}

// NewEngine returns an engine in masonry mode with default options.
func NewEngine() *Engine {
	return &Engine{Mode: ModeMasonry, Options: DefaultOptions()}
}

// Toggle switches between masonry and grid and returns the new mode.
func (e *Engine) Toggle() Mode {
	if e.Mode == ModeMasonry {
		e.Mode = ModeGrid
	} else {
		e.Mode = ModeMasonry
	}
	return e.Mode
}

// Layout positions items for the current mode. In grid mode the masonry
// overrides are cleared (Positioned is false) and the natural flow is
// reported instead.
func (e *Engine) Layout(items []Item, containerWidth float64) Result {
	if e.Mode == ModeGrid {
		return Flow(items, containerWidth, e.Options)
	}
	return Masonry(items, containerWidth, e.Options)
}
