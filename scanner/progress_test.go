package scanner

import (
	"bytes"
	"errors"
	"testing"

	"photosorter/types"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker(t *testing.T) {
	var buf bytes.Buffer
	tracker := newProgressTracker(2, true, &buf)

	tracker.Record(types.Relocated("/in/a.jpg", "/out/2023/07/a.jpg"))
	tracker.Record(types.Failed("/in/b.jpg", types.ErrImageDecode))
	tracker.Stop()

	assert.Equal(t, 2, tracker.Processed())
	assert.Equal(t, 1, tracker.failed)
	assert.NotEmpty(t, buf.String())
}

func TestProgressTrackerHidden(t *testing.T) {
	tracker := NewProgressTracker(3, false)
	tracker.Record(types.Skipped("/in/c.jpg", types.ErrNoDate))
	tracker.Stop()
	assert.Equal(t, 1, tracker.Processed())
}

func TestPrintCompletionStats(t *testing.T) {
	var summary types.RunSummary
	summary.Add(types.Relocated("/in/a.jpg", "/out/a.jpg"))
	summary.Add(types.Failed("/in/b.jpg", errors.New("disk full")))
	summary.Cancelled = true

	var buf bytes.Buffer
	PrintCompletionStats(&buf, summary)

	out := buf.String()
	assert.Contains(t, out, "Processed 2 images")
	assert.Contains(t, out, "relocated:   1")
	assert.Contains(t, out, "/in/b.jpg: disk full")
	assert.Contains(t, out, "cancelled")
}
