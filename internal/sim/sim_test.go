package sim

import (
	"fmt"
	"testing"
	"time"

	"github.com/JohnDeved/mediagrid/internal/geom"
	"github.com/JohnDeved/mediagrid/internal/lifecycle"
	"github.com/JohnDeved/mediagrid/internal/media"
)

func fixture(n int) []media.Entry {
	out := make([]media.Entry, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("img%04d.jpg", i)
		kind := media.KindImage
		if i%3 == 0 {
			name = fmt.Sprintf("clip%04d.mp4", i)
			kind = media.KindVideo
		}
		path := "/media/" + name
		out = append(out, media.Entry{Name: name, Path: path, Kind: kind, URL: media.FileURL(path)})
	}
	return out
}

func TestRunStaysWithinCaps(t *testing.T) {
	rep := Run(fixture(600), lifecycle.DefaultConfig(), DefaultScenario(), Options{})
	if len(rep.Violations) > 0 {
		t.Fatalf("violations: %v", rep.Violations[:min(5, len(rep.Violations))])
	}
	if rep.Created == 0 || rep.Released == 0 {
		t.Fatalf("nothing happened: %+v", rep)
	}
	if rep.Live != rep.Final.Total {
		t.Fatalf("live %d != tally %d", rep.Live, rep.Final.Total)
	}
	if rep.Created-rep.Released != rep.Live {
		t.Fatalf("created %d - released %d != live %d", rep.Created, rep.Released, rep.Live)
	}
}

func TestRunTightCaps(t *testing.T) {
	cfg := lifecycle.DefaultConfig()
	cfg.MaxVideos, cfg.MaxImages, cfg.MaxTotal = 4, 8, 10
	rep := Run(fixture(300), cfg, DefaultScenario(), Options{})
	if len(rep.Violations) > 0 {
		t.Fatalf("violations: %v", rep.Violations[:min(5, len(rep.Violations))])
	}
	if rep.Peak.Videos > 4 || rep.Peak.Images > 8 || rep.Peak.Total > 10 {
		t.Fatalf("peak %+v exceeds caps", rep.Peak)
	}
	if rep.Peak.Total == 0 {
		t.Fatalf("no elements were admitted")
	}
}

func TestFailuresRecoverAfterBackoff(t *testing.T) {
	sc := DefaultScenario()
	sc.FailRate = 4
	entries := fixture(200)

	h := New(lifecycle.DefaultConfig(), Options{Fail: func(req lifecycle.Request, attempt int) bool {
		return attempt == 1 && req.Card == entries[0].Path
	}})
	h.Render(entries, sc.Width, geom.Viewport{Width: sc.Width, Height: sc.Height})
	h.Advance(40 * time.Millisecond)

	info, _ := h.Manager.Info(entries[0].Path)
	if info.State != lifecycle.StateFailed {
		t.Fatalf("state = %v, want failed", info.State)
	}
	h.Advance(time.Second)
	info, _ = h.Manager.Info(entries[0].Path)
	if info.State != lifecycle.StateLoaded || h.Attempts(entries[0].Path) != 2 {
		t.Fatalf("state = %v after %d attempts, want loaded after 2", info.State, h.Attempts(entries[0].Path))
	}

	rep := Run(entries, lifecycle.DefaultConfig(), sc, Options{})
	if len(rep.Violations) > 0 {
		t.Fatalf("violations: %v", rep.Violations[:min(5, len(rep.Violations))])
	}
}

func TestSuspendResumeRestoresSet(t *testing.T) {
	entries := fixture(40)
	h := New(lifecycle.DefaultConfig(), Options{})
	h.Render(entries, 1280, geom.Viewport{Width: 1280, Height: 800})
	h.Advance(2 * time.Second)

	before := loaded(h, entries)
	created := h.Created
	if len(before) == 0 {
		t.Fatalf("nothing loaded")
	}

	h.Suspend()
	h.Suspend()
	h.Advance(time.Second)
	if h.Live() != len(before) {
		t.Fatalf("suspend changed live elements: %d, want %d", h.Live(), len(before))
	}
	if h.GCs == 0 {
		t.Fatalf("suspend did not request a collection")
	}

	h.Resume()
	h.Resume()
	h.Advance(time.Second)
	after := loaded(h, entries)
	if len(after) != len(before) || h.Created != created {
		t.Fatalf("resume churned: %d loaded (was %d), created %d (was %d)", len(after), len(before), h.Created, created)
	}
	for id := range before {
		if !after[id] {
			t.Fatalf("%s lost its element across suspend", id)
		}
	}
	if len(h.Violations) > 0 {
		t.Fatalf("violations: %v", h.Violations)
	}
}

func TestDestroyStepOrder(t *testing.T) {
	entries := fixture(3)
	h := New(lifecycle.DefaultConfig(), Options{})
	h.Render(entries, 1280, geom.Viewport{Width: 1280, Height: 800})
	el := h.Element(entries[1].Path)
	if el == nil {
		t.Fatalf("no element for %s", entries[1].Path)
	}
	el.FailStep = "release tracks"

	h.Render(entries[:1], 1280, geom.Viewport{Width: 1280, Height: 800})
	want := []string{"halt", "release tracks", "clear source", "detach", "clear attributes"}
	if fmt.Sprint(el.Steps) != fmt.Sprint(want) {
		t.Fatalf("steps = %v, want %v", el.Steps, want)
	}
	if h.Element(entries[1].Path) != nil || h.Live() != 1 {
		t.Fatalf("element still live after removal")
	}
}

func loaded(h *Host, entries []media.Entry) map[string]bool {
	out := make(map[string]bool)
	for _, e := range entries {
		if h.Manager.ElementCount(e.Path) > 0 {
			out[e.Path] = true
		}
	}
	return out
}
