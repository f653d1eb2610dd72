package scanner

import (
	"context"

	"photosorter/archive"
	"photosorter/types"
)

// MetadataReader extracts capture metadata; it never fails
type MetadataReader interface {
	Read(path string) types.CaptureMetadata
}

// PlaceResolver turns coordinates into a place name, ok == false when
// there is none or the lookup failed
type PlaceResolver interface {
	Resolve(ctx context.Context, lat, lon float64) (string, bool)
}

// Forgetter is implemented by hashers that keep per-path state. Forget is
// called once a source file has been moved away.
type Forgetter interface {
	Forget(path string)
}

// Options defines the roots, behaviour and collaborators of a Pipeline
type Options struct {
	SourceDir   string
	ArchiveRoot string

	// Workers bounds the number of files processed at once; 0 means
	// signalhandler.GetOptimalProcs()
	Workers int

	DryRun         bool
	PruneEmptyDirs bool
	ShowProgress   bool

	Metadata MetadataReader
	Geocoder PlaceResolver
	Hasher   archive.Fingerprinter
}
