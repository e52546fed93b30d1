package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadCreatesDefaults(t *testing.T) {
	t.Setenv("MEDIAGRID_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxVideos != 120 || cfg.MaxImages != 250 || cfg.ResizeDebounceMs != 150 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(ConfigPath()); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
}

func TestSaveRoundTripAndValidate(t *testing.T) {
	t.Setenv("MEDIAGRID_CONFIG_DIR", t.TempDir())

	cfg := DefaultConfig()
	cfg.MaxVideos = 7
	cfg.LastFolder = "/media/pics"
	cfg.DecodeScale = 4
	cfg.LayoutMode = "spiral"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, _ := os.ReadDir(ConfigDir())
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %d entries", len(entries))
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.MaxVideos != 7 || got.LastFolder != "/media/pics" {
		t.Fatalf("values not persisted: %+v", got)
	}
	if got.DecodeScale != 0.3 || got.LayoutMode != "masonry" {
		t.Fatalf("invalid values not reset: scale %v, mode %q", got.DecodeScale, got.LayoutMode)
	}
}

func TestLifecycleMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryBackoffMs = 750
	lc := cfg.Lifecycle()
	if lc.RetryBackoff != 750*time.Millisecond || lc.SweepInterval != 16*time.Millisecond || lc.MaxTotal != 370 {
		t.Fatalf("lifecycle = %+v", lc)
	}
	if lo := cfg.Layout(); lo.MinColumnWidth != 250 || lo.MinHeight != 50 {
		t.Fatalf("layout = %+v", lo)
	}
}
