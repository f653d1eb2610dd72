// Package scanner runs the sorting pipeline over a source directory:
// every image is dated, optionally placed, fingerprinted and moved into
// the archive, or quarantined when the archive already holds it.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"photosorter/archive"
	"photosorter/geocoder"
	"photosorter/logging"
	"photosorter/signalhandler"
	"photosorter/types"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Pipeline sorts images from a source directory into an archive tree.
// A Pipeline may run several single-file triggers concurrently; they share
// the bucket locks with any bulk run in progress.
type Pipeline struct {
	opts        Options
	sourceDir   string
	archiveRoot string

	checker   *archive.DuplicateChecker
	relocator *archive.Relocator
	locks     *archive.BucketLocks
	log       *zap.Logger
}

// New validates the options and builds a Pipeline
func New(opts Options) (*Pipeline, error) {
	if opts.SourceDir == "" || opts.ArchiveRoot == "" {
		return nil, errors.New("source and archive directories are required")
	}
	if opts.Metadata == nil || opts.Hasher == nil {
		return nil, errors.New("metadata reader and hasher are required")
	}
	if opts.Geocoder == nil {
		opts.Geocoder = geocoder.Disabled{}
	}
	if opts.Workers <= 0 {
		opts.Workers = signalhandler.GetOptimalProcs()
	}

	sourceDir, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, err
	}
	archiveRoot, err := filepath.Abs(opts.ArchiveRoot)
	if err != nil {
		return nil, err
	}
	if sourceDir == archiveRoot {
		return nil, fmt.Errorf("source and archive are the same directory: %s", sourceDir)
	}

	return &Pipeline{
		opts:        opts,
		sourceDir:   sourceDir,
		archiveRoot: archiveRoot,
		checker:     archive.NewDuplicateChecker(opts.Hasher),
		relocator:   archive.NewRelocator(opts.DryRun),
		locks:       archive.NewBucketLocks(),
		log:         logging.Named("pipeline"),
	}, nil
}

// Run processes every image under the source directory. One file's
// failure never stops the run. Cancelling ctx stops scheduling new files;
// files already being processed finish.
func (p *Pipeline) Run(ctx context.Context) types.RunSummary {
	startTime := time.Now()
	summary := types.NewRunSummary()

	files, err := p.collectFiles()
	if err != nil {
		summary.Add(types.Failed(p.sourceDir, fmt.Errorf("%w: walking source: %v", types.ErrFilesystem, err)))
		summary.Duration = time.Since(startTime)
		return summary
	}
	p.log.Info("starting run",
		zap.String("source", p.sourceDir),
		zap.String("archive", p.archiveRoot),
		zap.Int("files", len(files)),
		zap.Int("workers", p.opts.Workers),
		zap.Bool("dry_run", p.opts.DryRun))

	tracker := NewProgressTracker(len(files), p.opts.ShowProgress)

	results := make(chan types.PipelineResult, p.opts.Workers)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for result := range results {
			summary.Add(result)
			tracker.Record(result)
		}
	}()

	sem := semaphore.NewWeighted(int64(p.opts.Workers))
	var wg sync.WaitGroup
	for _, file := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(file types.SourceFile) {
			defer wg.Done()
			defer sem.Release(1)
			results <- p.process(ctx, file)
		}(file)
	}

	wg.Wait()
	close(results)
	<-collected
	tracker.Stop()

	summary.Cancelled = ctx.Err() != nil
	if summary.Cancelled {
		p.log.Warn("run cancelled",
			zap.Int("finished", summary.Total()),
			zap.Int("left_in_place", len(files)-summary.Total()))
	}

	if p.opts.PruneEmptyDirs && !p.opts.DryRun {
		if n := p.pruneEmptyDirs(); n > 0 {
			p.log.Info("pruned empty source directories", zap.Int("count", n))
		}
	}

	summary.Duration = time.Since(startTime)
	p.log.Info("run finished",
		zap.Int("relocated", summary.Relocated),
		zap.Int("quarantined", summary.Quarantined),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Duration))
	return summary
}

// ProcessFile runs the pipeline for one file of the source directory,
// named by its plain file name. A Failed outcome is also returned as an
// error.
func (p *Pipeline) ProcessFile(ctx context.Context, name string) (types.PipelineResult, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return types.PipelineResult{}, fmt.Errorf("%w: %q", types.ErrInvalidName, name)
	}
	if !types.IsSupportedImage(name) {
		return types.PipelineResult{}, fmt.Errorf("%w: %q is not a supported image", types.ErrInvalidName, name)
	}

	path := filepath.Join(p.sourceDir, name)
	info, err := os.Lstat(path)
	if err != nil {
		result := types.Failed(path, fmt.Errorf("%w: %v", types.ErrFilesystem, err))
		logging.LogImageProcessed(path, result.Outcome.String(), "", result.Reason)
		return result, result.Err
	}
	if !info.Mode().IsRegular() {
		return types.PipelineResult{}, fmt.Errorf("%w: %q is not a regular file", types.ErrInvalidName, name)
	}

	result := p.process(ctx, types.NewSourceFile(path))
	logging.LogImageProcessed(result.Source, result.Outcome.String(), result.Destination, result.Reason)
	if result.Outcome == types.OutcomeFailed {
		return result, result.Err
	}
	return result, nil
}

// process takes one file through metadata, placement, fingerprinting and
// the locked duplicate-check-and-move.
func (p *Pipeline) process(ctx context.Context, file types.SourceFile) types.PipelineResult {
	path := file.Path
	meta := p.opts.Metadata.Read(path)
	if !meta.HasDate() {
		return types.Skipped(path, types.ErrNoDate)
	}

	place := ""
	if meta.Coordinates != nil {
		if name, ok := p.opts.Geocoder.Resolve(ctx, meta.Coordinates.Latitude, meta.Coordinates.Longitude); ok {
			place = name
		}
	}

	dest, ok := archive.ResolveDestination(p.archiveRoot, meta, place)
	if !ok {
		return types.Skipped(path, types.ErrNoDate)
	}

	fp, err := p.opts.Hasher.Fingerprint(path)
	if err != nil {
		return types.Failed(path, err)
	}

	if ctx.Err() != nil {
		return types.Skipped(path, types.ErrCancelled)
	}

	p.locks.Lock(dest.BucketKey)
	defer p.locks.Unlock(dest.BucketKey)

	duplicateOf, _ := p.checker.FindDuplicate(fp, dest.Dir)
	if duplicateOf != "" {
		p.log.Debug("duplicate found",
			zap.String("path", path),
			zap.String("duplicate_of", duplicateOf),
			zap.Stringer("fingerprint", fp))
	}
	result := p.relocator.Relocate(path, dest.Dir, duplicateOf)
	if result.Outcome != types.OutcomeFailed && !p.opts.DryRun {
		if f, ok := p.opts.Hasher.(Forgetter); ok {
			f.Forget(path)
		}
	}
	return result
}
