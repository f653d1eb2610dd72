package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedImage(t *testing.T) {
	for path, want := range map[string]bool{
		"a.jpg":          true,
		"b.JPEG":         true,
		"c.Png":          true,
		"/x/y/z.jpeg":    true,
		"d.gif":          false,
		"e.tiff":         false,
		"noext":          false,
		"archive.jpg.7z": false,
	} {
		assert.Equal(t, want, IsSupportedImage(path), path)
	}
}

func TestRunSummaryAdd(t *testing.T) {
	var s RunSummary
	s.Add(Relocated("a.jpg", "/arc/2023/07/a.jpg"))
	s.Add(Quarantined("b.jpg", "/arc/2023/07/Duplicates/x.jpg", "/arc/2023/07/a.jpg"))
	s.Add(Skipped("c.jpg", ErrNoDate))
	s.Add(Failed("d.jpg", fmt.Errorf("fingerprint d.jpg: %w", ErrImageDecode)))

	assert.Equal(t, 1, s.Relocated)
	assert.Equal(t, 1, s.Quarantined)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 4, s.Total())
	assert.Len(t, s.Results, 4)
	if assert.Len(t, s.Failures, 1) {
		assert.Equal(t, "d.jpg", s.Failures[0].Path)
		assert.Contains(t, s.Failures[0].Reason, "image decode failed")
	}
	assert.True(t, errors.Is(s.Results[3].Err, ErrImageDecode))
	assert.Equal(t, "no date or location metadata", s.Results[2].Reason)
}

func TestFingerprintString(t *testing.T) {
	assert.Equal(t, "00000000000000ff", Fingerprint(0xff).String())
	assert.Equal(t, "quarantined", OutcomeQuarantined.String())
}

func TestCaptureMetadataHasDate(t *testing.T) {
	assert.False(t, CaptureMetadata{}.HasDate())
	assert.True(t, CaptureMetadata{Year: "2023", Month: "07"}.HasDate())
}

func TestOutcomeJSON(t *testing.T) {
	data, err := json.Marshal(Quarantined("/in/a.jpg", "/out/Duplicates/x.jpg", "/out/a.jpg"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"outcome":"quarantined"`)
	assert.NotContains(t, string(data), "Err")
}

func TestNewSourceFile(t *testing.T) {
	f := NewSourceFile("/in/Trip/IMG_1.JPG")
	assert.Equal(t, "/in/Trip/IMG_1.JPG", f.Path)
	assert.Equal(t, ".jpg", f.Ext)
	assert.True(t, f.Supported())
	assert.False(t, NewSourceFile("/in/notes.txt").Supported())
}

func TestNewRunSummaryEncodesEmptyLists(t *testing.T) {
	data, err := json.Marshal(NewRunSummary())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"failures":[]`)
	assert.Contains(t, string(data), `"results":[]`)
}
