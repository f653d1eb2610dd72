package scanner

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"photosorter/logging"
	"photosorter/types"

	"github.com/schollz/progressbar/v3"
)

// ProgressTracker counts finished files and drives the optional bar
type ProgressTracker struct {
	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	processed int
	failed    int
}

// NewProgressTracker creates a tracker for total files. The bar is only
// drawn when show is set.
func NewProgressTracker(total int, show bool) *ProgressTracker {
	return newProgressTracker(total, show, os.Stderr)
}

func newProgressTracker(total int, show bool, w io.Writer) *ProgressTracker {
	tracker := &ProgressTracker{}
	if show && total > 0 {
		tracker.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Sorting photos"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	return tracker
}

// Record accounts for one finished file
func (p *ProgressTracker) Record(result types.PipelineResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	if result.Outcome == types.OutcomeFailed {
		p.failed++
		if p.bar != nil {
			p.bar.Describe(fmt.Sprintf("Sorting photos (%d failed)", p.failed))
		}
	}
	if p.bar != nil {
		p.bar.Add(1)
	}

	logging.LogImageProcessed(result.Source, result.Outcome.String(), result.Destination, result.Reason)
}

// Stop finishes the bar
func (p *ProgressTracker) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
	}
}

// Processed returns the number of recorded files
func (p *ProgressTracker) Processed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}

// PrintCompletionStats displays the outcome counts and every failure
func PrintCompletionStats(w io.Writer, summary types.RunSummary) {
	fmt.Fprintf(w, "Processed %d images in %v.\n", summary.Total(), summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  relocated:   %d\n", summary.Relocated)
	fmt.Fprintf(w, "  quarantined: %d\n", summary.Quarantined)
	fmt.Fprintf(w, "  skipped:     %d\n", summary.Skipped)
	fmt.Fprintf(w, "  failed:      %d\n", summary.Failed)

	if summary.Cancelled {
		fmt.Fprintln(w, "Run was cancelled; remaining files were left in place.")
	}
	if len(summary.Failures) > 0 {
		fmt.Fprintln(w, "Failures:")
		for _, f := range summary.Failures {
			fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Reason)
		}
		fmt.Fprintln(w, "Check the log file for details.")
	}
}
