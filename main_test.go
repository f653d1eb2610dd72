package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"photosorter/internal/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "photosorter dev")
}

func TestOrganizeRequiresRoots(t *testing.T) {
	_, err := run(t, "organize", "--no-cache", "--no-geocode")
	assert.ErrorContains(t, err, "source directory is required")
}

func TestOrganizeEndToEnd(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "in")
	archive := filepath.Join(base, "out")
	testhelpers.WriteJPEG(t, filepath.Join(source, "a.jpg"), 1, &testhelpers.EXIF{DateTimeOriginal: "2023:07:14 10:30:00"})
	testhelpers.WriteJPEG(t, filepath.Join(source, "b.jpg"), 1, &testhelpers.EXIF{DateTimeOriginal: "2023:07:20 10:30:00"})

	out, err := run(t, "organize",
		"--source", source,
		"--archive", archive,
		"--cache", filepath.Join(base, "cache.db"),
		"--hasher", "native",
		"--no-geocode",
		"--progress=false",
		"--exiftool=false",
		"--json",
	)
	require.NoError(t, err)

	var summary struct {
		Relocated   int `json:"relocated"`
		Quarantined int `json:"quarantined"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 1, summary.Relocated)
	assert.Equal(t, 1, summary.Quarantined)

	entries, err := os.ReadDir(filepath.Join(archive, "2023", "07", "Duplicates"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileCommand(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "in")
	archive := filepath.Join(base, "out")
	testhelpers.WritePNG(t, filepath.Join(source, "labelled.png"), 2)

	out, err := run(t, "file", "labelled.png",
		"--source", source,
		"--archive", archive,
		"--no-cache",
		"--no-geocode",
		"--hasher", "native",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "relocated")

	_, err = run(t, "file", "../escape.png", "--source", source, "--archive", archive, "--no-cache", "--no-geocode")
	assert.Error(t, err)
}
