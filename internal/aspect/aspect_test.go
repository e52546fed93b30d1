package aspect

import "testing"

func TestClassifyCommonSizes(t *testing.T) {
	cases := []struct {
		w, h int
		want string
	}{
		{1920, 1080, "16:9"},
		{1080, 1920, "9:16"},
		{500, 500, "1:1"},
		{640, 480, "4:3"},
		{3000, 2000, "3:2"},
		{2560, 1080, "21:9"},
		{1000, 2000, "1:2"},
		{4000, 1000, "2:1"},
	}
	for _, c := range cases {
		if got := Classify(c.w, c.h); got.Name != c.want {
			t.Errorf("Classify(%d, %d) = %s, want %s", c.w, c.h, got.Name, c.want)
		}
	}
}

func TestClassifyZeroDefaults(t *testing.T) {
	for _, dims := range [][2]int{{0, 0}, {100, 0}, {0, 100}, {-5, 10}} {
		if got := Classify(dims[0], dims[1]); got != Default {
			t.Fatalf("Classify(%v) = %v, want default", dims, got)
		}
	}
}

func TestClassifyTieGoesToEarlierBucket(t *testing.T) {
	// 17/32 sits exactly between 1:2 (16/32) and 9:16 (18/32).
	if got := Classify(17, 32); got.Name != "1:2" {
		t.Fatalf("Classify(17, 32) = %s, want 1:2", got.Name)
	}
}

func TestLookup(t *testing.T) {
	b, ok := Lookup("21:9")
	if !ok || b.Ratio != 21.0/9.0 {
		t.Fatalf("Lookup(21:9) = %v, %v", b, ok)
	}
	if _, ok := Lookup("5:4"); ok {
		t.Fatalf("Lookup(5:4) should fail")
	}
}
