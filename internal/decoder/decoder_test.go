package decoder

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/JohnDeved/mediagrid/internal/media"
	"github.com/JohnDeved/mediagrid/internal/probe"
)

type stubProber struct {
	gate chan struct{}
	fail map[string]error
}

func (s *stubProber) Metadata(ctx context.Context, path string, kind media.Kind) (probe.Result, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return probe.Result{}, ctx.Err()
		}
	}
	if err := s.fail[path]; err != nil {
		return probe.Result{}, err
	}
	return probe.Result{Width: 160, Height: 90, Audio: media.AudioPresent}, nil
}

func (s *stubProber) Thumbnail(ctx context.Context, path string, w, h int) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

func waitDone(t *testing.T, ch <-chan *Job) *Job {
	t.Helper()
	select {
	case j := <-ch:
		return j
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a job")
		return nil
	}
}

func TestSubmitCompletes(t *testing.T) {
	m := NewManager(&stubProber{}, 2, nil)
	done := make(chan *Job, 4)
	m.SetOnDone(func(j *Job) { done <- j })

	m.Submit(Request{Token: 1, Card: "a", Path: "/a.png", Kind: media.KindImage, Width: 8, Height: 4})
	j := waitDone(t, done)
	status, err := j.Snapshot()
	if status != StatusDone || err != nil {
		t.Fatalf("status = %v, err = %v", status, err)
	}
	if j.Result.Width != 160 || j.Thumb == nil || j.Thumb.Bounds().Dx() != 8 {
		t.Fatalf("unexpected result %+v", j.Result)
	}
	if j.Elapsed() < 0 {
		t.Fatalf("negative elapsed")
	}
}

func TestVideoSkipsThumbnail(t *testing.T) {
	m := NewManager(&stubProber{}, 1, nil)
	done := make(chan *Job, 1)
	m.SetOnDone(func(j *Job) { done <- j })
	m.Submit(Request{Token: 1, Path: "/v.mp4", Kind: media.KindVideo})
	if j := waitDone(t, done); j.Thumb != nil || j.Result.Audio != media.AudioPresent {
		t.Fatalf("video job = %+v", j.Result)
	}
}

func TestFailureReported(t *testing.T) {
	boom := errors.New("corrupt")
	m := NewManager(&stubProber{fail: map[string]error{"/bad.mp4": boom}}, 1, nil)
	done := make(chan *Job, 1)
	m.SetOnDone(func(j *Job) { done <- j })

	m.Submit(Request{Token: 7, Path: "/bad.mp4", Kind: media.KindVideo})
	j := waitDone(t, done)
	if status, err := j.Snapshot(); status != StatusFailed || !errors.Is(err, boom) {
		t.Fatalf("status = %v, err = %v", status, err)
	}
}

func TestCancelQueuedJob(t *testing.T) {
	sp := &stubProber{gate: make(chan struct{})}
	m := NewManager(sp, 1, nil)
	done := make(chan *Job, 4)
	m.SetOnDone(func(j *Job) { done <- j })

	m.Submit(Request{Token: 1, Path: "/a.png", Kind: media.KindImage})
	second := m.Submit(Request{Token: 2, Path: "/b.png", Kind: media.KindImage})
	if !m.Cancel(2) {
		t.Fatalf("cancel of an unfinished job should succeed")
	}
	if m.Cancel(2) {
		t.Fatalf("second cancel should be a no-op")
	}
	close(sp.gate)

	j := waitDone(t, done)
	if j.Token != 1 {
		t.Fatalf("unexpected completion for token %d", j.Token)
	}
	if status, err := second.Snapshot(); status != StatusCancelled || !errors.Is(err, ErrCancelled) {
		t.Fatalf("cancelled job status = %v, err = %v", status, err)
	}
	select {
	case j := <-done:
		t.Fatalf("cancelled job reported done: %d", j.Token)
	case <-time.After(50 * time.Millisecond):
	}

	if n := m.ClearFinished(); n != 2 {
		t.Fatalf("cleared %d, want 2", n)
	}
	if len(m.Jobs()) != 0 {
		t.Fatalf("jobs left: %d", len(m.Jobs()))
	}
}

func TestCancelAllStopsActive(t *testing.T) {
	sp := &stubProber{gate: make(chan struct{})}
	m := NewManager(sp, 2, nil)
	m.Submit(Request{Token: 1, Path: "/a.png", Kind: media.KindImage})
	m.Submit(Request{Token: 2, Path: "/b.png", Kind: media.KindImage})
	m.CancelAll()
	counts := m.Counts()
	if counts[StatusCancelled] != 2 {
		t.Fatalf("counts = %v", counts)
	}
	close(sp.gate)
}
