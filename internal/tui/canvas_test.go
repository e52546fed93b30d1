package tui

import (
	"image"
	"image/color"
	"strings"
	"testing"
)

func TestCanvasText(t *testing.T) {
	cv := newCanvas(6, 1)
	n := cv.text(0, 0, "a界bcdef", "", "", 5)
	if n != 5 {
		t.Fatalf("wrote %d cells, want 5", n)
	}
	if c := cv.at(1, 0); c.ch != '界' {
		t.Fatalf("cell 1 = %q", c.ch)
	}
	if c := cv.at(2, 0); c.ch != 0 {
		t.Fatalf("wide rune tail = %q, want 0", c.ch)
	}
	if c := cv.at(5, 0); c.ch != ' ' {
		t.Fatalf("text overran its width: %q", c.ch)
	}
}

func TestCanvasBoxAndClip(t *testing.T) {
	cv := newCanvas(4, 3)
	cv.box(0, 0, 4, 3, "", "")
	cv.set(10, 10, 'x', "", "")

	want := []string{"╭──╮", "│  │", "╰──╯"}
	for y, row := range want {
		var got strings.Builder
		for x := 0; x < 4; x++ {
			got.WriteRune(cv.at(x, y).ch)
		}
		if got.String() != row {
			t.Fatalf("row %d = %q, want %q", y, got.String(), row)
		}
	}
	if lines := strings.Split(cv.String(), "\n"); len(lines) != 3 {
		t.Fatalf("String has %d lines, want 3", len(lines))
	}
}

func TestCanvasBlit(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 4))
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	for x := 0; x < 2; x++ {
		for y := 0; y < 4; y++ {
			if y%2 == 0 {
				img.Set(x, y, red)
			} else {
				img.Set(x, y, blue)
			}
		}
	}
	cv := newCanvas(2, 2)
	cv.blit(0, 0, img)
	c := cv.at(1, 1)
	if c.ch != '▀' || c.fg != "#ff0000" || c.bg != "#0000ff" {
		t.Fatalf("cell = %+v", c)
	}
}

func TestFitThumb(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	out := fitThumb(img, 10, 4)
	if b := out.Bounds(); b.Dx() != 10 || b.Dy() != 8 {
		t.Fatalf("bounds = %v, want 10x8", b)
	}
	if fitThumb(img, 0, 4) != nil {
		t.Fatal("zero width should yield nil")
	}
}
