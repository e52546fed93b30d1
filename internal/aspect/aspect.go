// Package aspect snaps media dimensions to the named aspect-ratio buckets cards are sized by.
package aspect

import "math"

// Bucket is a named aspect ratio that card heights snap to.
type Bucket struct {
	Name  string
	Ratio float64
}

// Buckets in tie-break order: when a ratio is equally close to two
// buckets, the earlier one wins.
var Buckets = []Bucket{
	{"1:2", 1.0 / 2.0},
	{"9:16", 9.0 / 16.0},
	{"1:1", 1},
	{"4:3", 4.0 / 3.0},
	{"3:2", 3.0 / 2.0},
	{"16:9", 16.0 / 9.0},
	{"21:9", 21.0 / 9.0},
	{"2:1", 2},
}

// Default is used for unknown or zero dimensions.
var Default = Bucket{"16:9", 16.0 / 9.0}

// Classify maps natural dimensions to the nearest bucket.
func Classify(width, height int) Bucket {
	if width <= 0 || height <= 0 {
		return Default
	}
	ratio := float64(width) / float64(height)
	best := Buckets[0]
	bestDiff := math.Abs(ratio - best.Ratio)
	for _, b := range Buckets[1:] {
		if d := math.Abs(ratio - b.Ratio); d < bestDiff {
			best, bestDiff = b, d
		}
	}
	return best
}

// Lookup returns the bucket with the given name.
func Lookup(name string) (Bucket, bool) {
	for _, b := range Buckets {
		if b.Name == name {
			return b, true
		}
	}
	return Bucket{}, false
}
