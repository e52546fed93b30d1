package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/JohnDeved/mediagrid/internal/aspect"
	"github.com/JohnDeved/mediagrid/internal/media"
	"github.com/JohnDeved/mediagrid/internal/probe"
)

// Progress reports indexing progress.
type Progress struct {
	CurrentPath string `json:"current_path" yaml:"current_path"`
	Folders     int64  `json:"folders" yaml:"folders"`
	Files       int64  `json:"files" yaml:"files"`
	Probed      int64  `json:"probed" yaml:"probed"`
	Skipped     int64  `json:"skipped" yaml:"skipped"`
	Errors      int64  `json:"errors" yaml:"errors"`
}

// Prober reads media metadata.
type Prober interface {
	Metadata(ctx context.Context, path string, kind media.Kind) (probe.Result, error)
}

// Indexer walks a folder tree and caches probe results for every media
// file in it.
type Indexer struct {
	db         *DB
	prober     Prober
	log        *slog.Logger
	workers    int
	force      bool
	limiter    *rate.Limiter
	progress   atomic.Pointer[Progress]
	onProgress func(Progress)

	folders atomic.Int64
	files   atomic.Int64
	probed  atomic.Int64
	skipped atomic.Int64
	errs    atomic.Int64
}

// NewIndexer creates an indexer with four workers and no rate limit.
func NewIndexer(db *DB, p Prober, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{
		db:      db,
		prober:  p,
		log:     log,
		workers: 4,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// SetForce makes the indexer re-probe files whose records are fresh.
func (ix *Indexer) SetForce(force bool) {
	ix.force = force
}

// SetWorkers controls probe parallelism.
func (ix *Indexer) SetWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	ix.workers = workers
}

// SetRate limits probes per second. Zero or less removes the limit.
func (ix *Indexer) SetRate(perSecond float64) {
	if perSecond <= 0 {
		ix.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	ix.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// SetProgressCallback sets a function called on progress updates. It may
// be called from several goroutines.
func (ix *Indexer) SetProgressCallback(fn func(Progress)) {
	ix.onProgress = fn
}

// Progress returns the latest progress.
func (ix *Indexer) Progress() Progress {
	p := ix.progress.Load()
	if p == nil {
		return Progress{}
	}
	return *p
}

func (ix *Indexer) report(path string) {
	p := Progress{
		CurrentPath: path,
		Folders:     ix.folders.Load(),
		Files:       ix.files.Load(),
		Probed:      ix.probed.Load(),
		Skipped:     ix.skipped.Load(),
		Errors:      ix.errs.Load(),
	}
	ix.progress.Store(&p)
	if ix.onProgress != nil {
		ix.onProgress(p)
	}
}

// IndexTree indexes root and every folder below it. It returns the scan id.
func (ix *Indexer) IndexTree(ctx context.Context, root string) (string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", root, err)
	}
	scanID, err := ix.db.BeginScan(root)
	if err != nil {
		return "", fmt.Errorf("starting scan: %w", err)
	}

	jobs := make(chan media.Entry)
	results := make(chan Record)

	var wg sync.WaitGroup
	for i := 0; i < ix.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				if r, ok := ix.probe(ctx, e); ok {
					select {
					case results <- r:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	var writeErr error
	written := make(chan struct{})
	go func() {
		defer close(written)
		writeErr = ix.write(results)
	}()

	walkErr := ix.walk(ctx, root, jobs)
	close(jobs)
	wg.Wait()
	close(results)
	<-written

	if err := ix.db.FinishScan(scanID, ix.files.Load(), ix.errs.Load()); err != nil {
		ix.log.Warn("finishing scan", "id", scanID, "err", err)
	}
	ix.report(root)

	if walkErr != nil {
		return scanID, walkErr
	}
	if ctx.Err() != nil {
		return scanID, ctx.Err()
	}
	return scanID, writeErr
}

// write batches records into the database.
func (ix *Indexer) write(results <-chan Record) error {
	const batchSize = 64
	batch := make([]Record, 0, batchSize)
	var firstErr error
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := ix.db.UpsertBatch(batch); err != nil && firstErr == nil {
			firstErr = err
		}
		batch = batch[:0]
	}
	for r := range results {
		batch = append(batch, r)
		if len(batch) == batchSize {
			flush()
		}
	}
	flush()
	return firstErr
}

func (ix *Indexer) walk(ctx context.Context, dir string, jobs chan<- media.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ix.report(dir)

	entries, err := media.Scan(ctx, dir)
	if err != nil {
		ix.errs.Add(1)
		return fmt.Errorf("listing %s: %w", dir, err)
	}
	ix.folders.Add(1)

	var subdirs []string
	keep := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Kind == media.KindFolder {
			subdirs = append(subdirs, e.Path)
			continue
		}
		keep = append(keep, e.Path)
		ix.files.Add(1)
		select {
		case jobs <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n, err := ix.db.Prune(dir, keep); err != nil {
		ix.log.Warn("pruning index", "folder", dir, "err", err)
	} else if n > 0 {
		ix.log.Debug("pruned stale records", "folder", dir, "count", n)
	}

	for _, sub := range subdirs {
		if err := ix.walk(ctx, sub, jobs); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.log.Warn("indexing folder", "folder", sub, "err", err)
		}
	}
	return nil
}

// probe returns the record to store for e, or false when the cached one
// is still fresh.
func (ix *Indexer) probe(ctx context.Context, e media.Entry) (Record, bool) {
	r := RecordFor(e)
	if !ix.force {
		fresh, err := ix.db.IsFresh(e.Path, r.Size, r.MTime)
		if err == nil && fresh {
			ix.skipped.Add(1)
			return Record{}, false
		}
	}
	if err := ix.limiter.Wait(ctx); err != nil {
		return Record{}, false
	}
	res, err := ix.prober.Metadata(ctx, e.Path, e.Kind)
	if err != nil {
		if ctx.Err() != nil {
			return Record{}, false
		}
		ix.errs.Add(1)
		if !errors.Is(err, probe.ErrNoProber) {
			ix.log.Debug("probe failed", "path", e.Path, "err", err)
		}
		return r, true
	}
	ix.probed.Add(1)
	Classify(&r, res)
	ix.report(e.Path)
	return r, true
}

// Classify copies probe results into r.
func Classify(r *Record, res probe.Result) {
	r.Width, r.Height = res.Width, res.Height
	r.Bucket = aspect.Classify(res.Width, res.Height).Name
	if r.Kind == media.KindVideo {
		r.Audio = res.Audio
	}
	r.ProbedAt = time.Now()
}
