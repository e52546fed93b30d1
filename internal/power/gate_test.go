package power

import (
	"reflect"
	"testing"
)

type recorder struct{ calls []string }

func (r *recorder) PausePlayback()         { r.calls = append(r.calls, "pause") }
func (r *recorder) StopSweep()             { r.calls = append(r.calls, "stop") }
func (r *recorder) DisconnectTracker()     { r.calls = append(r.calls, "disconnect") }
func (r *recorder) RequestGC()             { r.calls = append(r.calls, "gc") }
func (r *recorder) ConnectTracker()        { r.calls = append(r.calls, "connect") }
func (r *recorder) ResumeVisiblePlayback() { r.calls = append(r.calls, "play") }
func (r *recorder) StartSweep()            { r.calls = append(r.calls, "start") }
func (r *recorder) RunPass()               { r.calls = append(r.calls, "pass") }

func TestSuspendResumeOrderAndIdempotence(t *testing.T) {
	rec := &recorder{}
	g := NewGate(rec)

	if g.Resume() {
		t.Fatalf("resume while active should be a no-op")
	}
	if !g.Suspend() || g.Suspend() {
		t.Fatalf("first suspend should change state, second should not")
	}
	if want := []string{"pause", "stop", "disconnect", "gc"}; !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("suspend calls = %v, want %v", rec.calls, want)
	}

	rec.calls = nil
	if !g.Resume() || g.Resume() {
		t.Fatalf("first resume should change state, second should not")
	}
	if want := []string{"connect", "play", "start", "pass"}; !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("resume calls = %v, want %v", rec.calls, want)
	}
}

func TestToggle(t *testing.T) {
	g := NewGate(&recorder{})
	if g.Toggle() != Suspended || g.Toggle() != Active {
		t.Fatalf("toggle should alternate")
	}
}
