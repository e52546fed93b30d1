package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/JohnDeved/mediagrid/internal/media"
)

type ffprobeOutput struct {
	Streams []struct {
		CodecType string            `json:"codec_type"`
		Width     int               `json:"width"`
		Height    int               `json:"height"`
		Tags      map[string]string `json:"tags"`
		SideData  []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *Prober) video(ctx context.Context, path string) (Result, error) {
	bin, err := exec.LookPath(p.ffprobe)
	if err != nil {
		return Result{}, ErrNoProber
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return Result{}, fmt.Errorf("ffprobe %s: %s", path, exitErr.Stderr)
		}
		return Result{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	p.log.Debug("probed video", "path", path, "bytes", len(out))
	return parseFFProbe(out)
}

// parseFFProbe reads the first video stream's display size and whether
// any audio stream exists.
func parseFFProbe(data []byte) (Result, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{}, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	res := Result{Audio: media.AudioAbsent}
	seenVideo := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "audio":
			res.Audio = media.AudioPresent
		case "video":
			if seenVideo {
				continue
			}
			seenVideo = true
			res.Width, res.Height = s.Width, s.Height
			rot := 0.0
			if v, ok := s.Tags["rotate"]; ok {
				rot, _ = strconv.ParseFloat(v, 64)
			}
			for _, sd := range s.SideData {
				if sd.Rotation != 0 {
					rot = sd.Rotation
				}
			}
			if int(math.Abs(rot))%180 == 90 {
				res.Width, res.Height = res.Height, res.Width
			}
		}
	}
	if !seenVideo {
		return Result{}, fmt.Errorf("no video stream")
	}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		res.Duration = time.Duration(d * float64(time.Second))
	}
	return res, nil
}
