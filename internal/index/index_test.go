package index

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JohnDeved/mediagrid/internal/media"
	"github.com/JohnDeved/mediagrid/internal/probe"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rec(path string, kind media.Kind, w, h int) Record {
	r := Record{
		Path:   path,
		Folder: filepath.Dir(path),
		Name:   filepath.Base(path),
		Kind:   kind,
		Size:   100,
		MTime:  1700000000000,
	}
	r.Fingerprint = Fingerprint(r.Path, r.Size, r.MTime)
	if w > 0 {
		Classify(&r, probe.Result{Width: w, Height: h, Audio: media.AudioPresent})
	}
	return r
}

func TestUpsertLookupGet(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertBatch([]Record{
		rec("/m/a/sunset beach.jpg", media.KindImage, 1600, 900),
		rec("/m/a/clip.mp4", media.KindVideo, 1080, 1920),
		rec("/m/b/other.png", media.KindImage, 0, 0),
	}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	got, err := db.Lookup("/m/a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("lookup returned %d records", len(got))
	}
	clip := got["/m/a/clip.mp4"]
	if clip.Kind != media.KindVideo || clip.Bucket != "9:16" || clip.Audio != media.AudioPresent || !clip.Probed() {
		t.Fatalf("clip = %+v", clip)
	}
	img := got["/m/a/sunset beach.jpg"]
	if img.Audio != media.AudioUnknown {
		t.Fatalf("image audio = %v", img.Audio)
	}

	r, ok, err := db.Get("/m/b/other.png")
	if err != nil || !ok {
		t.Fatalf("Get: %v %v", ok, err)
	}
	if r.Probed() {
		t.Fatalf("unprobed record reports probed")
	}
	if _, ok, _ := db.Get("/missing"); ok {
		t.Fatalf("missing path found")
	}

	r.Width, r.Height, r.Bucket, r.ProbedAt = 10, 10, "1:1", time.Now()
	if err := db.Upsert(r); err != nil {
		t.Fatal(err)
	}
	r2, _, _ := db.Get("/m/b/other.png")
	if r2.Bucket != "1:1" || !r2.Probed() {
		t.Fatalf("upsert did not replace: %+v", r2)
	}
}

func TestIsFresh(t *testing.T) {
	db := openTestDB(t)
	r := rec("/m/a.jpg", media.KindImage, 10, 10)
	if fresh, _ := db.IsFresh(r.Path, r.Size, r.MTime); fresh {
		t.Fatalf("unknown path is fresh")
	}
	if err := db.Upsert(r); err != nil {
		t.Fatal(err)
	}
	if fresh, err := db.IsFresh(r.Path, r.Size, r.MTime); err != nil || !fresh {
		t.Fatalf("fresh = %v, %v", fresh, err)
	}
	if fresh, _ := db.IsFresh(r.Path, r.Size+1, r.MTime); fresh {
		t.Fatalf("size change still fresh")
	}

	u := rec("/m/b.jpg", media.KindImage, 0, 0)
	db.Upsert(u)
	if fresh, _ := db.IsFresh(u.Path, u.Size, u.MTime); fresh {
		t.Fatalf("unprobed record is fresh")
	}
}

func TestSearch(t *testing.T) {
	db := openTestDB(t)
	db.UpsertBatch([]Record{
		rec("/m/holiday/beach day.jpg", media.KindImage, 10, 10),
		rec("/m/holiday/beach run.mp4", media.KindVideo, 10, 10),
		rec("/m/work/slides.png", media.KindImage, 10, 10),
	})

	all, err := db.Search("beach", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("beach matched %d", len(all))
	}
	videos, _ := db.Search("beach", "video", 10)
	if len(videos) != 1 || videos[0].Name != "beach run.mp4" {
		t.Fatalf("video search = %+v", videos)
	}
	byFolder, _ := db.Search("holiday", "", 10)
	if len(byFolder) != 2 {
		t.Fatalf("folder search matched %d", len(byFolder))
	}
	if res, err := db.Search("(^)", "", 10); err != nil || res != nil {
		t.Fatalf("operator-only query = %v, %v", res, err)
	}
}

func TestSanitizeFTS5Query(t *testing.T) {
	if got := sanitizeFTS5Query(`mario (usa) "x"`); got != `"mario" "usa" """x"""` {
		t.Fatalf("got %s", got)
	}
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)
	db.UpsertBatch([]Record{
		rec("/m/a.jpg", media.KindImage, 1, 1),
		rec("/m/b.jpg", media.KindImage, 1, 1),
		rec("/m/sub/c.jpg", media.KindImage, 1, 1),
	})
	n, err := db.Prune("/m", []string{"/m/a.jpg"})
	if err != nil || n != 1 {
		t.Fatalf("pruned %d, %v", n, err)
	}
	if _, ok, _ := db.Get("/m/sub/c.jpg"); !ok {
		t.Fatalf("prune touched a subfolder")
	}
	if res, _ := db.Search("b", "", 10); len(res) != 0 {
		t.Fatalf("pruned record still searchable")
	}
}

type countingProber struct{ calls atomic.Int64 }

func (c *countingProber) Metadata(ctx context.Context, path string, kind media.Kind) (probe.Result, error) {
	c.calls.Add(1)
	if kind == media.KindVideo {
		return probe.Result{}, probe.ErrNoProber
	}
	return probe.Result{Width: 300, Height: 200}, nil
}

func TestIndexTree(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a.jpg", "b.png", "notes.txt", "sub/c.gif", "sub/deeper/d.mp4"} {
		full := filepath.Join(root, p)
		os.MkdirAll(filepath.Dir(full), 0o755)
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	db := openTestDB(t)
	pr := &countingProber{}
	ix := NewIndexer(db, pr, nil)
	ix.SetWorkers(2)
	var updates atomic.Int64
	ix.SetProgressCallback(func(Progress) { updates.Add(1) })

	id, err := ix.IndexTree(context.Background(), root)
	if err != nil {
		t.Fatalf("IndexTree: %v", err)
	}
	if id == "" || updates.Load() == 0 {
		t.Fatalf("scan id %q, %d progress updates", id, updates.Load())
	}
	p := ix.Progress()
	if p.Files != 4 || p.Folders != 3 || p.Probed != 3 || p.Errors != 1 {
		t.Fatalf("progress = %+v", p)
	}

	st, err := db.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Files != 4 || st.Videos != 1 || st.Unprobed != 1 || st.Scans != 1 || st.Last == nil || st.Last.FinishedAt == nil {
		t.Fatalf("stats = %+v", st)
	}
	r, ok, _ := db.Get(filepath.Join(root, "sub", "c.gif"))
	if !ok || r.Bucket != "3:2" {
		t.Fatalf("c.gif = %+v", r)
	}

	// Fresh records are skipped on the second run.
	ix2 := NewIndexer(db, pr, nil)
	before := pr.calls.Load()
	if _, err := ix2.IndexTree(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if got := pr.calls.Load() - before; got != 1 {
		t.Fatalf("second run probed %d files, want only the unprobed video", got)
	}
	if ix2.Progress().Skipped != 3 {
		t.Fatalf("skipped = %d", ix2.Progress().Skipped)
	}
}

func TestIndexTreeCancelled(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewIndexer(db, &countingProber{}, nil).IndexTree(ctx, t.TempDir()); err == nil {
		t.Fatalf("expected a cancellation error")
	}
}
