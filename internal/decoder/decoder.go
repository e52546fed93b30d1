// Package decoder runs probe and thumbnail jobs for grid cards on a
// bounded pool of goroutines.
package decoder

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/JohnDeved/mediagrid/internal/media"
	"github.com/JohnDeved/mediagrid/internal/probe"
)

// Status represents a job's state.
type Status int

const (
	StatusQueued Status = iota
	StatusActive
	StatusDone
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusActive:
		return "Decoding"
	case StatusDone:
		return "Done"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Finished reports whether the job will not change again.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Request is one decode. Token identifies the element it serves.
type Request struct {
	Token  uint64
	Card   string
	Path   string
	Kind   media.Kind
	Width  int
	Height int
}

// Job is a submitted request and its outcome.
type Job struct {
	Request
	Status   Status
	Result   probe.Result
	Thumb    image.Image
	Error    error
	QueuedAt time.Time
	Started  time.Time
	Finished time.Time
	cancel   context.CancelFunc
	Mu       sync.Mutex
}

// Elapsed is the time spent decoding so far, or in total once finished.
func (j *Job) Elapsed() time.Duration {
	j.Mu.Lock()
	defer j.Mu.Unlock()
	switch {
	case j.Started.IsZero():
		return 0
	case j.Finished.IsZero():
		return time.Since(j.Started)
	default:
		return j.Finished.Sub(j.Started)
	}
}

// Snapshot returns the status and error under the job lock.
func (j *Job) Snapshot() (Status, error) {
	j.Mu.Lock()
	defer j.Mu.Unlock()
	return j.Status, j.Error
}

// Prober is the probing backend.
type Prober interface {
	Metadata(ctx context.Context, path string, kind media.Kind) (probe.Result, error)
	Thumbnail(ctx context.Context, path string, width, height int) (image.Image, error)
}

// Manager runs decode jobs.
type Manager struct {
	prober Prober
	log    *slog.Logger
	keep   int

	mu         sync.Mutex
	jobs       []*Job
	sem        chan struct{}
	onChange   func()
	onDone     func(*Job)
	lastNotify time.Time
}

// ErrCancelled marks jobs whose element was released before they finished.
var ErrCancelled = errors.New("cancelled")

// NewManager creates a job manager with the given parallelism.
func NewManager(p Prober, workers int, log *slog.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		prober: p,
		log:    log,
		keep:   200,
		sem:    make(chan struct{}, workers),
	}
}

// SetOnChange sets a callback invoked when any job's state changes.
func (m *Manager) SetOnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// SetOnDone sets a callback invoked once per job that finishes without
// being cancelled.
func (m *Manager) SetOnDone(fn func(*Job)) {
	m.mu.Lock()
	m.onDone = fn
	m.mu.Unlock()
}

func (m *Manager) notify(force bool) {
	m.mu.Lock()
	fn := m.onChange
	if !force {
		now := time.Now()
		if now.Sub(m.lastNotify) < 100*time.Millisecond {
			m.mu.Unlock()
			return
		}
		m.lastNotify = now
	} else {
		m.lastNotify = time.Now()
	}
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Submit queues a request and starts processing it.
func (m *Manager) Submit(req Request) *Job {
	job := &Job{Request: req, Status: StatusQueued, QueuedAt: time.Now()}
	m.mu.Lock()
	m.jobs = append(m.jobs, job)
	m.trimLocked()
	m.mu.Unlock()

	m.notify(false)
	go m.run(job)
	return job
}

// trimLocked drops the oldest finished jobs beyond the history limit.
func (m *Manager) trimLocked() {
	extra := len(m.jobs) - m.keep
	if extra <= 0 {
		return
	}
	kept := m.jobs[:0]
	for _, j := range m.jobs {
		j.Mu.Lock()
		done := j.Status.Finished()
		j.Mu.Unlock()
		if extra > 0 && done {
			extra--
			continue
		}
		kept = append(kept, j)
	}
	m.jobs = kept
}

// Cancel cancels the unfinished job for token.
func (m *Manager) Cancel(token uint64) bool {
	m.mu.Lock()
	var target *Job
	for _, j := range m.jobs {
		if j.Token == token {
			target = j
			break
		}
	}
	m.mu.Unlock()
	if target == nil {
		return false
	}

	target.Mu.Lock()
	if target.Status.Finished() {
		target.Mu.Unlock()
		return false
	}
	target.Status = StatusCancelled
	target.Error = ErrCancelled
	target.Finished = time.Now()
	if target.cancel != nil {
		target.cancel()
	}
	target.Mu.Unlock()
	m.notify(false)
	return true
}

// CancelAll cancels every unfinished job.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	for _, j := range m.jobs {
		j.Mu.Lock()
		if !j.Status.Finished() {
			j.Status = StatusCancelled
			j.Error = ErrCancelled
			j.Finished = time.Now()
			if j.cancel != nil {
				j.cancel()
			}
		}
		j.Mu.Unlock()
	}
	m.mu.Unlock()
	m.notify(true)
}

// Jobs returns a snapshot of the job list, oldest first.
func (m *Manager) Jobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// Counts tallies jobs by status.
func (m *Manager) Counts() map[Status]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Status]int)
	for _, j := range m.jobs {
		j.Mu.Lock()
		out[j.Status]++
		j.Mu.Unlock()
	}
	return out
}

// ClearFinished removes finished jobs from the list.
func (m *Manager) ClearFinished() int {
	m.mu.Lock()
	kept := m.jobs[:0]
	removed := 0
	for _, j := range m.jobs {
		j.Mu.Lock()
		done := j.Status.Finished()
		j.Mu.Unlock()
		if done {
			removed++
			continue
		}
		kept = append(kept, j)
	}
	m.jobs = kept
	m.mu.Unlock()
	if removed > 0 {
		m.notify(true)
	}
	return removed
}

func (m *Manager) run(job *Job) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job.Mu.Lock()
	if job.Status == StatusCancelled {
		job.Mu.Unlock()
		return
	}
	job.cancel = cancel
	job.Status = StatusActive
	job.Started = time.Now()
	job.Mu.Unlock()
	m.notify(false)

	res, thumb, err := m.decode(ctx, job.Request)

	job.Mu.Lock()
	if job.Status == StatusCancelled {
		job.Mu.Unlock()
		return
	}
	job.Finished = time.Now()
	job.Result = res
	job.Thumb = thumb
	if err != nil {
		job.Status = StatusFailed
		job.Error = err
	} else {
		job.Status = StatusDone
	}
	job.Mu.Unlock()

	m.notify(true)
	m.mu.Lock()
	done := m.onDone
	m.mu.Unlock()
	if done != nil {
		done(job)
	}
}

func (m *Manager) decode(ctx context.Context, req Request) (probe.Result, image.Image, error) {
	res, err := m.prober.Metadata(ctx, req.Path, req.Kind)
	if err != nil {
		return probe.Result{}, nil, err
	}
	if req.Kind != media.KindImage {
		return res, nil, nil
	}
	thumb, err := m.prober.Thumbnail(ctx, req.Path, req.Width, req.Height)
	if err != nil {
		// Metadata is enough to classify the card.
		if !errors.Is(err, probe.ErrNoThumbnail) {
			m.log.Debug("thumbnail failed", "path", req.Path, "err", err)
		}
		return res, nil, nil
	}
	return res, thumb, nil
}
