package probe

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JohnDeved/mediagrid/internal/media"
)

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	path := filepath.Join(dir, "pic.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImageMetadata(t *testing.T) {
	path := writePNG(t, t.TempDir(), 64, 36)
	p := New("", nil)
	res, err := p.Metadata(context.Background(), path, media.KindImage)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if res.Width != 64 || res.Height != 36 {
		t.Fatalf("got %dx%d, want 64x36", res.Width, res.Height)
	}
	if res.Audio != media.AudioUnknown {
		t.Fatalf("image audio = %v", res.Audio)
	}
}

func TestThumbnailFillsTarget(t *testing.T) {
	path := writePNG(t, t.TempDir(), 64, 36)
	img, err := New("", nil).Thumbnail(context.Background(), path, 10, 10)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 10 || b.Dy() != 10 {
		t.Fatalf("thumbnail = %v, want 10x10", b)
	}
}

func TestThumbnailRejectsSVG(t *testing.T) {
	_, err := New("", nil).Thumbnail(context.Background(), "/x/logo.svg", 10, 10)
	if !errors.Is(err, ErrNoThumbnail) {
		t.Fatalf("err = %v, want ErrNoThumbnail", err)
	}
}

func TestSVGSize(t *testing.T) {
	cases := []struct {
		doc  string
		w, h int
	}{
		{`<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100"></svg>`, 200, 100},
		{`<?xml version="1.0"?><svg viewBox="0 0 90 160"><rect/></svg>`, 90, 160},
		{`<svg width="100%" height="50%" viewBox="0,0,40,30"/>`, 40, 30},
		{`<svg width="12px" height="24px"/>`, 12, 24},
		{`<svg/>`, 0, 0},
	}
	for _, c := range cases {
		w, h, err := svgSize(strings.NewReader(c.doc))
		if err != nil {
			t.Fatalf("%s: %v", c.doc, err)
		}
		if w != c.w || h != c.h {
			t.Errorf("%s: got %dx%d, want %dx%d", c.doc, w, h, c.w, c.h)
		}
	}
	if _, _, err := svgSize(strings.NewReader("<html></html>")); err == nil {
		t.Fatalf("expected an error without an svg element")
	}
}

func TestSVGMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.svg")
	if err := os.WriteFile(path, []byte(`<svg width="30" height="60"/>`), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := New("", nil).Metadata(context.Background(), path, media.KindImage)
	if err != nil || res.Width != 30 || res.Height != 60 {
		t.Fatalf("got %+v, %v", res, err)
	}
}

func TestVideoWithoutProber(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "no-such-ffprobe"), nil)
	_, err := p.Metadata(context.Background(), "/x/clip.mp4", media.KindVideo)
	if !errors.Is(err, ErrNoProber) {
		t.Fatalf("err = %v, want ErrNoProber", err)
	}
}

func TestParseFFProbe(t *testing.T) {
	out := []byte(`{
		"streams": [
			{"codec_type": "video", "width": 1920, "height": 1080, "tags": {"rotate": "90"}},
			{"codec_type": "audio"}
		],
		"format": {"duration": "12.5"}
	}`)
	res, err := parseFFProbe(out)
	if err != nil {
		t.Fatal(err)
	}
	if res.Width != 1080 || res.Height != 1920 {
		t.Fatalf("rotation not applied: %dx%d", res.Width, res.Height)
	}
	if res.Audio != media.AudioPresent {
		t.Fatalf("audio = %v", res.Audio)
	}
	if res.Duration != 12500*time.Millisecond {
		t.Fatalf("duration = %v", res.Duration)
	}

	silent, err := parseFFProbe([]byte(`{"streams":[{"codec_type":"video","width":640,"height":480,"side_data_list":[{"rotation":-180}]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if silent.Audio != media.AudioAbsent || silent.Width != 640 {
		t.Fatalf("got %+v", silent)
	}

	if _, err := parseFFProbe([]byte(`{"streams":[{"codec_type":"audio"}]}`)); err == nil {
		t.Fatalf("expected an error without a video stream")
	}
}
