package media

import (
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Kind classifies a scanned entry.
type Kind int

const (
	KindFolder Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// IsMedia reports whether the kind can carry a decoded element.
func (k Kind) IsMedia() bool {
	return k == KindImage || k == KindVideo
}

// ParseKind parses the String form of a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "folder":
		return KindFolder, nil
	case "image":
		return KindImage, nil
	case "video":
		return KindVideo, nil
	}
	return KindFolder, fmt.Errorf("unknown kind %q", s)
}

// Audio is the tri-state audio tag of a video card. Unknown is kept
// distinct from Absent: an unresolved card stays visible under the audio
// filter until it is classified.
type Audio int8

const (
	AudioUnknown Audio = iota
	AudioPresent
	AudioAbsent
)

func (a Audio) String() string {
	switch a {
	case AudioPresent:
		return "yes"
	case AudioAbsent:
		return "no"
	default:
		return "unknown"
	}
}

// Entry is one scanned filesystem item.
type Entry struct {
	Name    string
	Path    string
	Kind    Kind
	URL     string
	ModTime *time.Time
	Size    int64
}

// IsMedia reports whether the entry can carry a decoded element.
func (e Entry) IsMedia() bool {
	return e.Kind.IsMedia()
}

// Ext returns the upper-cased extension without the dot, e.g. "MP4".
func (e Entry) Ext() string {
	return strings.ToUpper(strings.TrimPrefix(filepath.Ext(e.Name), "."))
}

// MTimeMillis returns the modification time in milliseconds, or 0 if unknown.
func (e Entry) MTimeMillis() int64 {
	if e.ModTime == nil {
		return 0
	}
	return e.ModTime.UnixMilli()
}

var videoExts = map[string]bool{
	".mp4":  true,
	".webm": true,
	".ogg":  true,
	".mov":  true,
}

var imageExts = map[string]bool{
	".gif":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
	".svg":  true,
}

// KindForName classifies a file name by extension.
func KindForName(name string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case videoExts[ext]:
		return KindVideo, true
	case imageExts[ext]:
		return KindImage, true
	}
	return KindFolder, false
}

// FileURL returns the file:// locator for an absolute path.
func FileURL(path string) string {
	p := filepath.ToSlash(path)
	if runtime.GOOS == "windows" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}

var extColors = map[string]string{
	"MP4":  "#ff6b6b",
	"WEBM": "#4ecdc4",
	"OGG":  "#95e1d3",
	"MOV":  "#f38181",
	"GIF":  "#a8e6cf",
	"JPG":  "#ffd93d",
	"JPEG": "#ffd93d",
	"PNG":  "#6bcf7f",
	"WEBP": "#4d96ff",
	"BMP":  "#9b59b6",
	"SVG":  "#ff9ff3",
}

// ExtColor returns the label color for an upper-cased extension.
func ExtColor(ext string) string {
	if c, ok := extColors[ext]; ok {
		return c
	}
	return "#888888"
}
