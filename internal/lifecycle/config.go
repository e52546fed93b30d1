package lifecycle

import "time"

// Config holds the admission and eviction constants.
type Config struct {
	MaxVideos         int
	MaxImages         int
	MaxTotal          int
	PreloadBuffer     float64
	ParallelLoadLimit int
	// DecodeScale is the fraction of the card's rendered size requested
	// from the decoder.
	DecodeScale   float64
	SweepInterval time.Duration
	RetryBackoff  time.Duration
	GCDebounce    time.Duration
	// FrameInterval is how long admissions beyond the parallel limit wait.
	FrameInterval time.Duration
	// ScrollSettle delays the trailing pass after the last scroll event.
	ScrollSettle time.Duration
	// SafetyRatio of MaxTotal triggers the vertical-distance safety trim.
	SafetyRatio float64
	// InitialLoadFactor multiplies the parallel limit for the first batch
	// after a new card set is rendered.
	InitialLoadFactor int
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxVideos:         120,
		MaxImages:         250,
		MaxTotal:          370,
		PreloadBuffer:     500,
		ParallelLoadLimit: 10,
		DecodeScale:       0.3,
		SweepInterval:     16 * time.Millisecond,
		RetryBackoff:      500 * time.Millisecond,
		GCDebounce:        time.Second,
		FrameInterval:     16 * time.Millisecond,
		ScrollSettle:      50 * time.Millisecond,
		SafetyRatio:       0.9,
		InitialLoadFactor: 2,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxVideos < 0 {
		c.MaxVideos = 0
	}
	if c.MaxImages < 0 {
		c.MaxImages = 0
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = c.MaxVideos + c.MaxImages
	}
	if c.PreloadBuffer < 0 {
		c.PreloadBuffer = 0
	}
	if c.ParallelLoadLimit < 1 {
		c.ParallelLoadLimit = d.ParallelLoadLimit
	}
	if c.DecodeScale <= 0 || c.DecodeScale > 1 {
		c.DecodeScale = d.DecodeScale
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.GCDebounce <= 0 {
		c.GCDebounce = d.GCDebounce
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = c.SweepInterval
	}
	if c.ScrollSettle <= 0 {
		c.ScrollSettle = d.ScrollSettle
	}
	if c.SafetyRatio <= 0 || c.SafetyRatio > 1 {
		c.SafetyRatio = d.SafetyRatio
	}
	if c.InitialLoadFactor < 1 {
		c.InitialLoadFactor = 1
	}
	return c
}

// SafetyThreshold is floor(SafetyRatio * MaxTotal), but at least one so a
// tiny MaxTotal still admits an element. Admission stops here and the
// safety trim cuts back to it.
func (c Config) SafetyThreshold() int {
	return max(int(float64(c.MaxTotal)*c.SafetyRatio), 1)
}
