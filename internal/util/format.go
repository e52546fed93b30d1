package util

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

// FormatBytes formats a byte count into a human-readable string.
func FormatBytes(b int64) string {
	if b < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(b))
}

// FormatTime renders t relative to now, or "-" when unknown.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return humanize.Time(*t)
}

// FormatCount formats an integer with thousands separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// TruncatePath truncates a path from the left, keeping the rightmost part
// visible within maxWidth terminal cells.
func TruncatePath(path string, maxWidth int) string {
	if runewidth.StringWidth(path) <= maxWidth {
		return path
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(path, maxWidth, "")
	}
	runes := []rune(path)
	width := 0
	i := len(runes)
	for i > 0 {
		w := runewidth.RuneWidth(runes[i-1])
		if width+w > maxWidth-3 {
			break
		}
		width += w
		i--
	}
	return "..." + string(runes[i:])
}

// Truncate shortens s to maxWidth cells with a trailing ellipsis.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	return runewidth.Truncate(s, maxWidth, "…")
}

// PadRight pads s with spaces to exactly width cells, truncating if needed.
func PadRight(s string, width int) string {
	return runewidth.FillRight(Truncate(s, width), width)
}

// Width returns the number of terminal cells s occupies.
func Width(s string) int {
	return runewidth.StringWidth(s)
}
