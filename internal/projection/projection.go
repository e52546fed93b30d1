// Package projection derives the ordered, filtered list of entries the grid
// shows. It never touches the filesystem; changing criteria only re-runs
// Project over the last scan.
package projection

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/JohnDeved/mediagrid/internal/media"
)

// Filter restricts which entries are shown. Only FilterAll keeps folders.
type Filter int

const (
	FilterAll Filter = iota
	FilterVideo
	FilterImage
	FilterAudio
)

var filterNames = []string{"all", "video", "image", "audio"}

func (f Filter) String() string {
	if int(f) < len(filterNames) {
		return filterNames[f]
	}
	return "unknown"
}

// Next cycles all -> video -> image -> audio -> all.
func (f Filter) Next() Filter {
	return (f + 1) % Filter(len(filterNames))
}

// ParseFilter parses the String form of a Filter.
func ParseFilter(s string) (Filter, error) {
	for i, n := range filterNames {
		if strings.EqualFold(s, n) {
			return Filter(i), nil
		}
	}
	return FilterAll, fmt.Errorf("unknown filter %q", s)
}

// SortType is the sort key.
type SortType int

const (
	SortName SortType = iota
	SortDate
)

func (s SortType) String() string {
	if s == SortDate {
		return "date"
	}
	return "name"
}

// ParseSortType parses "name" or "date".
func ParseSortType(s string) (SortType, error) {
	switch strings.ToLower(s) {
	case "", "name":
		return SortName, nil
	case "date", "mtime":
		return SortDate, nil
	}
	return SortName, fmt.Errorf("unknown sort type %q", s)
}

// Order is the sort direction.
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "descending"
	}
	return "ascending"
}

// ParseOrder parses "ascending"/"asc" or "descending"/"desc".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	}
	return Ascending, fmt.Errorf("unknown sort order %q", s)
}

// Criteria are the user-chosen view settings.
type Criteria struct {
	Filter Filter
	Sort   SortType
	Order  Order
	Search string
	Locale language.Tag
}

// AudioFunc reports the audio tag known for a path.
type AudioFunc func(path string) media.Audio

// Project sorts folders and files separately, concatenates folders first,
// then applies the filter and the case-insensitive search.
func Project(entries []media.Entry, c Criteria, audio AudioFunc) []media.Entry {
	var folders, files []media.Entry
	for _, e := range entries {
		if e.Kind == media.KindFolder {
			folders = append(folders, e)
		} else {
			files = append(files, e)
		}
	}

	cmp := newComparer(c)
	cmp.sort(folders)
	cmp.sort(files)

	needle := strings.ToLower(c.Search)
	out := make([]media.Entry, 0, len(entries))
	for _, e := range append(folders, files...) {
		if !Matches(e, c.Filter, audio) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Name), needle) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Matches applies the filter to a single entry.
func Matches(e media.Entry, f Filter, audio AudioFunc) bool {
	if e.Kind == media.KindFolder {
		return f == FilterAll
	}
	switch f {
	case FilterVideo:
		return e.Kind == media.KindVideo
	case FilterImage:
		return e.Kind == media.KindImage
	case FilterAudio:
		if e.Kind != media.KindVideo {
			return false
		}
		if audio == nil {
			return true
		}
		return audio(e.Path) != media.AudioAbsent
	}
	return true
}

type comparer struct {
	col   *collate.Collator
	typ   SortType
	order Order
}

func newComparer(c Criteria) *comparer {
	tag := c.Locale
	if tag == language.Und {
		tag = DefaultLocale()
	}
	return &comparer{col: collate.New(tag), typ: c.Sort, order: c.Order}
}

func (c *comparer) compare(a, b media.Entry) int {
	var r int
	if c.typ == SortDate {
		ta, tb := a.MTimeMillis(), b.MTimeMillis()
		switch {
		case ta < tb:
			r = -1
		case ta > tb:
			r = 1
		default:
			r = c.col.CompareString(a.Name, b.Name)
		}
	} else {
		r = c.col.CompareString(a.Name, b.Name)
	}
	if c.order == Descending {
		r = -r
	}
	return r
}

func (c *comparer) sort(list []media.Entry) {
	sort.SliceStable(list, func(i, j int) bool {
		return c.compare(list[i], list[j]) < 0
	})
}

// DefaultLocale derives a collation locale from LC_ALL, LC_COLLATE or LANG,
// falling back to English.
func DefaultLocale() language.Tag {
	for _, key := range []string{"LC_ALL", "LC_COLLATE", "LANG"} {
		v := os.Getenv(key)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		if tag, err := language.Parse(strings.ReplaceAll(v, "_", "-")); err == nil {
			return tag
		}
	}
	return language.English
}
