package tui

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/disintegration/imaging"
	"github.com/mattn/go-runewidth"
)

// cell is one terminal cell. A zero ch marks the trailing half of a wide
// rune and is skipped when printing.
type cell struct {
	ch     rune
	fg, bg string
}

// canvas is a fixed-size grid of cells that cards are painted onto.
type canvas struct {
	w, h  int
	cells []cell
}

func newCanvas(w, h int) *canvas {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	c := &canvas{w: w, h: h, cells: make([]cell, w*h)}
	for i := range c.cells {
		c.cells[i].ch = ' '
	}
	return c
}

func (c *canvas) in(x, y int) bool {
	return x >= 0 && y >= 0 && x < c.w && y < c.h
}

func (c *canvas) set(x, y int, ch rune, fg, bg string) {
	if !c.in(x, y) {
		return
	}
	c.cells[y*c.w+x] = cell{ch: ch, fg: fg, bg: bg}
}

func (c *canvas) at(x, y int) cell {
	if !c.in(x, y) {
		return cell{}
	}
	return c.cells[y*c.w+x]
}

// text writes s at (x, y), clipped to maxWidth cells. It returns the
// number of cells written.
func (c *canvas) text(x, y int, s string, fg, bg string, maxWidth int) int {
	used := 0
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if used+w > maxWidth {
			break
		}
		c.set(x+used, y, r, fg, bg)
		if w == 2 {
			c.set(x+used+1, y, 0, fg, bg)
		}
		used += w
	}
	return used
}

func (c *canvas) fill(x0, y0, x1, y1 int, bg string) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			c.set(x, y, ' ', "", bg)
		}
	}
}

// box draws a rounded border around [x0,x1) × [y0,y1).
func (c *canvas) box(x0, y0, x1, y1 int, fg, bg string) {
	if x1-x0 < 2 || y1-y0 < 2 {
		return
	}
	for x := x0 + 1; x < x1-1; x++ {
		c.set(x, y0, '─', fg, bg)
		c.set(x, y1-1, '─', fg, bg)
	}
	for y := y0 + 1; y < y1-1; y++ {
		c.set(x0, y, '│', fg, bg)
		c.set(x1-1, y, '│', fg, bg)
	}
	c.set(x0, y0, '╭', fg, bg)
	c.set(x1-1, y0, '╮', fg, bg)
	c.set(x0, y1-1, '╰', fg, bg)
	c.set(x1-1, y1-1, '╯', fg, bg)
}

// blit paints img into the w×h cell area at (x, y) with upper half
// blocks: each cell shows two vertically stacked pixels.
func (c *canvas) blit(x, y int, img image.Image) {
	b := img.Bounds()
	for row := 0; row < b.Dy()/2; row++ {
		for col := 0; col < b.Dx(); col++ {
			top := hexColor(img.At(b.Min.X+col, b.Min.Y+2*row))
			bottom := hexColor(img.At(b.Min.X+col, b.Min.Y+2*row+1))
			c.set(x+col, y+row, '▀', top, bottom)
		}
	}
}

// String renders the canvas, grouping runs of equally styled cells.
func (c *canvas) String() string {
	var sb strings.Builder
	for y := 0; y < c.h; y++ {
		if y > 0 {
			sb.WriteByte('\n')
		}
		var run strings.Builder
		var cur cell
		flush := func() {
			if run.Len() == 0 {
				return
			}
			sb.WriteString(styleFor(cur.fg, cur.bg).Render(run.String()))
			run.Reset()
		}
		for x := 0; x < c.w; x++ {
			cl := c.cells[y*c.w+x]
			if cl.ch == 0 {
				continue
			}
			if cl.fg != cur.fg || cl.bg != cur.bg {
				flush()
				cur = cl
			}
			run.WriteRune(cl.ch)
		}
		flush()
	}
	return sb.String()
}

func styleFor(fg, bg string) lipgloss.Style {
	st := lipgloss.NewStyle()
	if fg != "" {
		st = st.Foreground(lipgloss.Color(fg))
	}
	if bg != "" {
		st = st.Background(lipgloss.Color(bg))
	}
	return st
}

func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

// fitThumb scales img to cover w×2h pixels for a w×h cell area.
func fitThumb(img image.Image, w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return nil
	}
	return imaging.Fill(img, w, 2*h, imaging.Center, imaging.Box)
}
