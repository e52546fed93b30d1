package projection

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/JohnDeved/mediagrid/internal/media"
)

func at(ms int64) *time.Time {
	t := time.UnixMilli(ms)
	return &t
}

func names(list []media.Entry) string {
	var out []string
	for _, e := range list {
		out = append(out, e.Name)
	}
	return strings.Join(out, ",")
}

func TestDateSortTieBreaksByName(t *testing.T) {
	entries := []media.Entry{
		{Name: "b", Kind: media.KindImage, ModTime: at(5)},
		{Name: "a", Kind: media.KindImage, ModTime: at(5)},
		{Name: "c", Kind: media.KindImage, ModTime: at(1)},
	}
	got := Project(entries, Criteria{Sort: SortDate, Order: Ascending, Locale: language.English}, nil)
	if names(got) != "c,a,b" {
		t.Fatalf("got %s, want c,a,b", names(got))
	}
	got = Project(entries, Criteria{Sort: SortDate, Order: Descending, Locale: language.English}, nil)
	if names(got) != "b,a,c" {
		t.Fatalf("descending got %s, want b,a,c", names(got))
	}
}

func TestMissingTimeSortsAsZero(t *testing.T) {
	entries := []media.Entry{
		{Name: "new", Kind: media.KindVideo, ModTime: at(10)},
		{Name: "unknown", Kind: media.KindVideo},
	}
	got := Project(entries, Criteria{Sort: SortDate, Locale: language.English}, nil)
	if names(got) != "unknown,new" {
		t.Fatalf("got %s", names(got))
	}
}

func TestFoldersFirstAndLocaleOrder(t *testing.T) {
	entries := []media.Entry{
		{Name: "zebra.png", Kind: media.KindImage},
		{Name: "Beta", Kind: media.KindFolder},
		{Name: "apple.png", Kind: media.KindImage},
		{Name: "alpha", Kind: media.KindFolder},
	}
	got := Project(entries, Criteria{Locale: language.English}, nil)
	if names(got) != "alpha,Beta,apple.png,zebra.png" {
		t.Fatalf("got %s", names(got))
	}
}

func TestAudioFilterKeepsUnknown(t *testing.T) {
	entries := []media.Entry{
		{Name: "loud.mp4", Path: "/loud.mp4", Kind: media.KindVideo},
		{Name: "mute.mp4", Path: "/mute.mp4", Kind: media.KindVideo},
		{Name: "fresh.mp4", Path: "/fresh.mp4", Kind: media.KindVideo},
		{Name: "pic.png", Path: "/pic.png", Kind: media.KindImage},
		{Name: "dir", Path: "/dir", Kind: media.KindFolder},
	}
	tags := map[string]media.Audio{"/loud.mp4": media.AudioPresent, "/mute.mp4": media.AudioAbsent}
	audio := func(p string) media.Audio { return tags[p] }

	got := Project(entries, Criteria{Filter: FilterAudio, Locale: language.English}, audio)
	if names(got) != "fresh.mp4,loud.mp4" {
		t.Fatalf("got %s", names(got))
	}
}

func TestKindFiltersDropFolders(t *testing.T) {
	entries := []media.Entry{
		{Name: "dir", Path: "/dir", Kind: media.KindFolder},
		{Name: "a.mp4", Path: "/a.mp4", Kind: media.KindVideo},
		{Name: "b.png", Path: "/b.png", Kind: media.KindImage},
	}
	for _, tc := range []struct {
		filter Filter
		want   string
	}{
		{FilterAll, "dir,a.mp4,b.png"},
		{FilterVideo, "a.mp4"},
		{FilterImage, "b.png"},
		{FilterAudio, "a.mp4"},
	} {
		got := Project(entries, Criteria{Filter: tc.filter, Locale: language.English}, nil)
		if names(got) != tc.want {
			t.Errorf("%v: got %s, want %s", tc.filter, names(got), tc.want)
		}
	}
}

func TestSearchAndFilterCombine(t *testing.T) {
	entries := []media.Entry{
		{Name: "Beach.MP4", Kind: media.KindVideo},
		{Name: "beach.png", Kind: media.KindImage},
		{Name: "city.mp4", Kind: media.KindVideo},
	}
	got := Project(entries, Criteria{Filter: FilterVideo, Search: "BEACH", Locale: language.English}, nil)
	if names(got) != "Beach.MP4" {
		t.Fatalf("got %s", names(got))
	}
}

func TestParsers(t *testing.T) {
	if f, err := ParseFilter("Audio"); err != nil || f != FilterAudio {
		t.Fatalf("ParseFilter: %v %v", f, err)
	}
	if FilterAudio.Next() != FilterAll {
		t.Fatalf("filter cycle should wrap")
	}
	if o, err := ParseOrder("desc"); err != nil || o != Descending {
		t.Fatalf("ParseOrder: %v %v", o, err)
	}
	if _, err := ParseSortType("size"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultLocale(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_COLLATE", "")
	t.Setenv("LANG", "de_DE.UTF-8")
	if got := DefaultLocale(); got != language.MustParse("de-DE") {
		t.Fatalf("DefaultLocale = %v", got)
	}
}
