package probe

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

func svgFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	w, h, err := svgSize(f)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Result{Width: w, Height: h}, nil
}

// svgSize reads the root element's width and height, falling back to the
// viewBox. Unknown dimensions come back as zero.
func svgSize(r io.Reader) (int, int, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return 0, 0, fmt.Errorf("no svg element")
			}
			return 0, 0, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "svg" {
				continue
			}
			var w, h float64
			var box []float64
			for _, a := range tok.Attr {
				switch strings.ToLower(a.Key) {
				case "width":
					w = length(a.Val)
				case "height":
					h = length(a.Val)
				case "viewbox":
					box = numbers(a.Val)
				}
			}
			if (w <= 0 || h <= 0) && len(box) == 4 {
				w, h = box[2], box[3]
			}
			return int(w), int(h), nil
		}
	}
}

// length parses an absolute SVG length. Percentages mean unknown.
func length(s string) float64 {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "%") {
		return 0
	}
	s = strings.TrimSuffix(s, "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func numbers(s string) []float64 {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\n' })
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}
