package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/JohnDeved/mediagrid/internal/layout"
	"github.com/JohnDeved/mediagrid/internal/lifecycle"
)

func homeDirOrFallback() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

// Config holds all user-configurable settings.
type Config struct {
	// Element caps. MaxTotal 0 means MaxVideos + MaxImages.
	MaxVideos int `json:"max_videos"`
	MaxImages int `json:"max_images"`
	MaxTotal  int `json:"max_total"`
	// PreloadBufferPx expands the viewport on every side for admission.
	PreloadBufferPx   float64 `json:"preload_buffer_px"`
	ParallelLoadLimit int     `json:"parallel_load_limit"`
	DecodeScale       float64 `json:"decode_scale"`
	SweepIntervalMs   int     `json:"sweep_interval_ms"`
	RetryBackoffMs    int     `json:"retry_backoff_ms"`
	GCDebounceMs      int     `json:"gc_debounce_ms"`

	MinColumnWidthPx float64 `json:"min_column_width_px"`
	GapPx            float64 `json:"gap_px"`
	MinCardHeightPx  float64 `json:"min_card_height_px"`
	ResizeDebounceMs int     `json:"resize_debounce_ms"`
	LayoutMode       string  `json:"layout_mode"`

	// CellWidthPx and CellHeightPx map terminal cells to virtual pixels.
	CellWidthPx  int `json:"cell_width_px"`
	CellHeightPx int `json:"cell_height_px"`

	SortType           string `json:"sort_type"`
	SortOrder          string `json:"sort_order"`
	RememberLastFolder bool   `json:"remember_last_folder"`
	LastFolder         string `json:"last_folder,omitempty"`

	// FFProbePath is the ffprobe binary; empty looks it up on PATH.
	FFProbePath   string  `json:"ffprobe_path"`
	DecodeWorkers int     `json:"decode_workers"`
	IndexWorkers  int     `json:"index_workers"`
	ProbeRate     float64 `json:"probe_rate"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	lc := lifecycle.DefaultConfig()
	lo := layout.DefaultOptions()
	return &Config{
		MaxVideos:          lc.MaxVideos,
		MaxImages:          lc.MaxImages,
		MaxTotal:           lc.MaxTotal,
		PreloadBufferPx:    lc.PreloadBuffer,
		ParallelLoadLimit:  lc.ParallelLoadLimit,
		DecodeScale:        lc.DecodeScale,
		SweepIntervalMs:    int(lc.SweepInterval / time.Millisecond),
		RetryBackoffMs:     int(lc.RetryBackoff / time.Millisecond),
		GCDebounceMs:       int(lc.GCDebounce / time.Millisecond),
		MinColumnWidthPx:   lo.MinColumnWidth,
		GapPx:              lo.Gap,
		MinCardHeightPx:    lo.MinHeight,
		ResizeDebounceMs:   150,
		LayoutMode:         layout.ModeMasonry.String(),
		CellWidthPx:        8,
		CellHeightPx:       16,
		SortType:           "name",
		SortOrder:          "asc",
		RememberLastFolder: true,
		DecodeWorkers:      4,
		IndexWorkers:       4,
	}
}

// ConfigDir returns the directory where config and data files are stored.
func ConfigDir() string {
	if dir := os.Getenv("MEDIAGRID_CONFIG_DIR"); dir != "" {
		return dir
	}
	home := homeDirOrFallback()
	return filepath.Join(home, ".config", "mediagrid")
}

// DBPath returns the path to the SQLite metadata cache.
func DBPath() string {
	return filepath.Join(ConfigDir(), "index.db")
}

// LogPath returns the path of the TUI log file.
func LogPath() string {
	return filepath.Join(ConfigDir(), "mediagrid.log")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load reads config from disk, returning defaults if the file doesn't exist.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			if err := cfg.Save(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Validate()
	return cfg, nil
}

// Validate resets out-of-range values to their defaults.
func (c *Config) Validate() {
	d := DefaultConfig()
	if c.MaxVideos < 0 {
		c.MaxVideos = d.MaxVideos
	}
	if c.MaxImages < 0 {
		c.MaxImages = d.MaxImages
	}
	if c.MaxTotal < 0 {
		c.MaxTotal = d.MaxTotal
	}
	if c.PreloadBufferPx < 0 {
		c.PreloadBufferPx = d.PreloadBufferPx
	}
	if c.ParallelLoadLimit < 1 {
		c.ParallelLoadLimit = d.ParallelLoadLimit
	}
	if c.DecodeScale <= 0 || c.DecodeScale > 1 {
		c.DecodeScale = d.DecodeScale
	}
	if c.SweepIntervalMs < 1 {
		c.SweepIntervalMs = d.SweepIntervalMs
	}
	if c.RetryBackoffMs < 1 {
		c.RetryBackoffMs = d.RetryBackoffMs
	}
	if c.GCDebounceMs < 1 {
		c.GCDebounceMs = d.GCDebounceMs
	}
	if c.MinColumnWidthPx < 1 {
		c.MinColumnWidthPx = d.MinColumnWidthPx
	}
	if c.GapPx < 0 {
		c.GapPx = d.GapPx
	}
	if c.MinCardHeightPx < 0 {
		c.MinCardHeightPx = d.MinCardHeightPx
	}
	if c.ResizeDebounceMs < 0 {
		c.ResizeDebounceMs = d.ResizeDebounceMs
	}
	if _, err := layout.ParseMode(c.LayoutMode); err != nil {
		c.LayoutMode = d.LayoutMode
	}
	if c.CellWidthPx < 1 {
		c.CellWidthPx = d.CellWidthPx
	}
	if c.CellHeightPx < 1 {
		c.CellHeightPx = d.CellHeightPx
	}
	if c.SortType != "name" && c.SortType != "date" {
		c.SortType = d.SortType
	}
	if c.SortOrder != "asc" && c.SortOrder != "desc" {
		c.SortOrder = d.SortOrder
	}
	if c.DecodeWorkers < 1 {
		c.DecodeWorkers = d.DecodeWorkers
	}
	if c.IndexWorkers < 1 {
		c.IndexWorkers = d.IndexWorkers
	}
	if c.ProbeRate < 0 {
		c.ProbeRate = 0
	}
}

// Lifecycle returns the media lifecycle constants.
func (c *Config) Lifecycle() lifecycle.Config {
	lc := lifecycle.DefaultConfig()
	lc.MaxVideos = c.MaxVideos
	lc.MaxImages = c.MaxImages
	lc.MaxTotal = c.MaxTotal
	lc.PreloadBuffer = c.PreloadBufferPx
	lc.ParallelLoadLimit = c.ParallelLoadLimit
	lc.DecodeScale = c.DecodeScale
	lc.SweepInterval = time.Duration(c.SweepIntervalMs) * time.Millisecond
	lc.FrameInterval = lc.SweepInterval
	lc.RetryBackoff = time.Duration(c.RetryBackoffMs) * time.Millisecond
	lc.GCDebounce = time.Duration(c.GCDebounceMs) * time.Millisecond
	return lc
}

// Layout returns the layout engine options.
func (c *Config) Layout() layout.Options {
	return layout.Options{MinColumnWidth: c.MinColumnWidthPx, Gap: c.GapPx, MinHeight: c.MinCardHeightPx}
}

// Save writes the config to disk through a temporary file.
func (c *Config) Save() error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "config-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), ConfigPath())
}
