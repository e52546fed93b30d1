package lifecycle

import (
	"reflect"
	"testing"
)

func TestRetryQueueOrder(t *testing.T) {
	q := newRetryQueue()
	q.Set("a", "1")
	q.Set("b", "2")
	q.Set("a", "3")
	if want := []string{"a", "b"}; !reflect.DeepEqual(q.Keys(), want) {
		t.Fatalf("keys = %v, want %v", q.Keys(), want)
	}
	if q.Source("a") != "3" {
		t.Fatalf("refresh did not update the source")
	}
	q.Delete("a")
	q.Delete("missing")
	if q.Has("a") || q.Len() != 1 {
		t.Fatalf("after delete: %v", q.Keys())
	}
	q.Clear()
	if q.Len() != 0 || q.Has("b") {
		t.Fatalf("clear left %v", q.Keys())
	}
}

func TestConfigNormalized(t *testing.T) {
	c := Config{MaxVideos: 5, MaxImages: 7}.normalized()
	if c.MaxTotal != 12 {
		t.Fatalf("MaxTotal = %d, want 12", c.MaxTotal)
	}
	if c.ParallelLoadLimit != 10 || c.DecodeScale != 0.3 || c.FrameInterval != c.SweepInterval {
		t.Fatalf("defaults not filled: %+v", c)
	}
	if got := DefaultConfig().SafetyThreshold(); got != 333 {
		t.Fatalf("safety threshold = %d, want 333", got)
	}
}
