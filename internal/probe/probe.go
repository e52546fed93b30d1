// Package probe reads natural dimensions, audio presence and reduced
// thumbnails from local media files.
package probe

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"github.com/JohnDeved/mediagrid/internal/media"
)

var (
	// ErrNoProber is returned for videos when ffprobe is not installed.
	ErrNoProber = errors.New("ffprobe not found")
	// ErrNoThumbnail is returned for files that have no raster thumbnail.
	ErrNoThumbnail = errors.New("no thumbnail for this file type")
)

// Result is what a probe learned about a file.
type Result struct {
	Width    int           `json:"width" yaml:"width"`
	Height   int           `json:"height" yaml:"height"`
	Audio    media.Audio   `json:"audio" yaml:"audio"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Prober runs probes. Concurrent probes of the same path share one read.
type Prober struct {
	ffprobe string
	group   singleflight.Group
	log     *slog.Logger
}

// New returns a prober. An empty ffprobePath looks ffprobe up on PATH.
func New(ffprobePath string, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.Default()
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobe: ffprobePath, log: log}
}

// Metadata probes path according to kind.
func (p *Prober) Metadata(ctx context.Context, path string, kind media.Kind) (Result, error) {
	v, err, _ := p.group.Do(kind.String()+":"+path, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		switch kind {
		case media.KindVideo:
			return p.video(ctx, path)
		case media.KindImage:
			if isSVG(path) {
				return svgFile(path)
			}
			return imageFile(path)
		}
		return Result{}, fmt.Errorf("probe %s: not a media file", path)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// Thumbnail decodes an image, applies its EXIF orientation and scales it
// to fill width x height.
func (p *Prober) Thumbnail(ctx context.Context, path string, width, height int) (image.Image, error) {
	if isSVG(path) {
		return nil, ErrNoThumbnail
	}
	if kind, ok := media.KindForName(path); !ok || kind != media.KindImage {
		return nil, ErrNoThumbnail
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	if width < 1 || height < 1 {
		return img, nil
	}
	return imaging.Fill(img, width, height, imaging.Center, imaging.Box), nil
}

func isSVG(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".svg")
}

func imageFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s header: %w", filepath.Base(path), err)
	}
	res := Result{Width: cfg.Width, Height: cfg.Height}
	if format == "jpeg" {
		if _, err := f.Seek(0, 0); err == nil && rotated(f) {
			res.Width, res.Height = res.Height, res.Width
		}
	}
	return res, nil
}

// rotated reports whether the EXIF orientation turns the image by 90 or
// 270 degrees.
func rotated(f *os.File) bool {
	x, err := exif.Decode(f)
	if err != nil {
		return false
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return false
	}
	o, err := tag.Int(0)
	if err != nil {
		return false
	}
	return o >= 5 && o <= 8
}
