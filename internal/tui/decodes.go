package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohnDeved/mediagrid/internal/decoder"
	"github.com/JohnDeved/mediagrid/internal/lifecycle"
	"github.com/JohnDeved/mediagrid/internal/power"
	"github.com/JohnDeved/mediagrid/internal/util"
)

// decodesModel manages the decode jobs view.
type decodesModel struct {
	jobs   []*decoder.Job
	cursor int
	offset int
	height int
}

func newDecodesModel() decodesModel {
	return decodesModel{
		height: 20,
	}
}

// setJobs installs a snapshot, newest first.
func (d *decodesModel) setJobs(jobs []*decoder.Job) {
	d.jobs = make([]*decoder.Job, len(jobs))
	for i, j := range jobs {
		d.jobs[len(jobs)-1-i] = j
	}
	if d.cursor >= len(d.jobs) {
		d.cursor = max(len(d.jobs)-1, 0)
	}
}

func (d *decodesModel) moveUp() {
	if d.cursor > 0 {
		d.cursor--
		if d.cursor < d.offset {
			d.offset = d.cursor
		}
	}
}

func (d *decodesModel) moveDown() {
	if d.cursor < len(d.jobs)-1 {
		d.cursor++
		if d.cursor >= d.offset+d.height {
			d.offset = d.cursor - d.height + 1
		}
	}
}

func (d *decodesModel) pageUp() {
	if len(d.jobs) == 0 || d.height <= 0 {
		d.cursor, d.offset = 0, 0
		return
	}
	rel := d.cursor - d.offset
	d.offset = max(d.offset-d.height, 0)
	d.cursor = min(max(d.offset+rel, 0), len(d.jobs)-1)
}

func (d *decodesModel) pageDown() {
	if len(d.jobs) == 0 || d.height <= 0 {
		return
	}
	rel := d.cursor - d.offset
	d.offset = min(d.offset+d.height, max(len(d.jobs)-d.height, 0))
	d.cursor = min(max(d.offset+rel, 0), len(d.jobs)-1)
}

func (d *decodesModel) selected() *decoder.Job {
	if d.cursor >= 0 && d.cursor < len(d.jobs) {
		return d.jobs[d.cursor]
	}
	return nil
}

// summary is the lifecycle state shown above the job list.
type summary struct {
	tally  lifecycle.Tally
	cfg    lifecycle.Config
	retry  int
	power  power.State
	gcs    int
	counts map[decoder.Status]int
}

func (b *browser) summary() summary {
	return summary{
		tally:  b.mgr.Tally(),
		cfg:    b.mgr.Config(),
		retry:  b.mgr.Retry().Len(),
		power:  b.mgr.PowerState(),
		gcs:    b.gcs,
		counts: b.dec.Counts(),
	}
}

func (d *decodesModel) view(width int, s summary) string {
	var sb strings.Builder

	caps := fmt.Sprintf("  Elements  video %s  image %s  total %s",
		renderProgressBar(s.tally.Videos, s.cfg.MaxVideos, 12),
		renderProgressBar(s.tally.Images, s.cfg.MaxImages, 12),
		renderProgressBar(s.tally.Total, s.cfg.MaxTotal, 12))
	sb.WriteString(caps)
	sb.WriteString("\n")

	state := successStyle.Render(s.power.String())
	if s.power == power.Suspended {
		state = suspendedStyle.Render(s.power.String())
	}
	sb.WriteString(helpStyle.Render(fmt.Sprintf("  Retry queue: %d  GC requests: %d  Power: ", s.retry, s.gcs)))
	sb.WriteString(state)
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(fmt.Sprintf("  Active: %d  Queued: %d  Done: %d  Failed: %d  Cancelled: %d",
		s.counts[decoder.StatusActive], s.counts[decoder.StatusQueued], s.counts[decoder.StatusDone],
		s.counts[decoder.StatusFailed], s.counts[decoder.StatusCancelled])))
	sb.WriteString("\n\n")

	if len(d.jobs) == 0 {
		sb.WriteString(helpStyle.Render("  No decodes yet. Cards near the viewport are decoded as you browse."))
		sb.WriteString("\n")
		return sb.String()
	}

	end := min(d.offset+d.height, len(d.jobs))
	for i := d.offset; i < end; i++ {
		j := d.jobs[i]
		j.Mu.Lock()
		status, errVal := j.Status, j.Error
		res := j.Result
		j.Mu.Unlock()

		var statusStr string
		switch status {
		case decoder.StatusQueued:
			statusStr = helpStyle.Render("[Queued]   ")
		case decoder.StatusActive:
			statusStr = successStyle.Render("[Decoding] ")
		case decoder.StatusDone:
			statusStr = successStyle.Render("[Done]     ")
		case decoder.StatusFailed:
			statusStr = errorStyle.Render("[Failed]   ")
		case decoder.StatusCancelled:
			statusStr = helpStyle.Render("[Cancelled]")
		}

		detail := ""
		if status == decoder.StatusDone {
			detail = fmt.Sprintf("%dx%d", res.Width, res.Height)
			if res.Duration > 0 {
				detail += " " + res.Duration.Round(time.Second).String()
			}
		}
		line := fmt.Sprintf("  %s %s  %-5s %-12s %6s",
			statusStr,
			padToWidth(truncateText(filepath.Base(j.Path), max(12, width-60)), max(12, width-60)),
			j.Kind, detail, j.Elapsed().Round(time.Millisecond))
		if errVal != nil && status == decoder.StatusFailed {
			line += "  " + errorStyle.Render(errVal.Error())
		}
		if i == d.cursor {
			line = selectedStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if len(d.jobs) > d.height {
		pct := float64(d.offset) / float64(len(d.jobs)-d.height) * 100
		sb.WriteString(helpStyle.Render(
			fmt.Sprintf("  %d/%d decodes (%.0f%%)", d.cursor+1, len(d.jobs), pct),
		))
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderProgressBar draws n out of limit as a bar.
func renderProgressBar(n, limit, width int) string {
	progress := 0.0
	if limit > 0 {
		progress = float64(n) / float64(limit)
	}
	filled := min(int(progress*float64(width)), width)
	bar := progressBarFilled.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("[%s] %d/%d", bar, n, limit)
}

func truncateText(s string, maxWidth int) string {
	if maxWidth < 4 {
		return s
	}
	return util.Truncate(s, maxWidth)
}
