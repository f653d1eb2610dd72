// Package archive owns every read and write of the archive tree: where a
// file belongs, whether an identical image is already there, and the move
// itself.
//
// The tree is laid out as
//
//	<root>/<year>/<month>[/<place>]/<file>
//	<root>/<year>/<month>[/<place>]/Duplicates/<uuid><ext>
//
// and is the only persistent state of the pipeline.
package archive

import (
	"path/filepath"
	"strings"

	"photosorter/types"
)

// Destination is the resolved target directory for one file
type Destination struct {
	// Dir is the directory the file is moved into
	Dir string
	// BucketKey serializes duplicate checks and moves. It is the month
	// directory, which contains every place directory of that month, so
	// a month-level scan never races a move into one of its places.
	BucketKey string
}

// ResolveDestination maps metadata and an optional place name to a
// directory under archiveRoot. It reports false when the capture year is
// unknown; such files stay where they are.
func ResolveDestination(archiveRoot string, meta types.CaptureMetadata, place string) (Destination, bool) {
	if !meta.HasDate() {
		return Destination{}, false
	}

	month := filepath.Join(archiveRoot, meta.Year, meta.Month)
	dest := Destination{Dir: month, BucketKey: month}
	if name := SanitizePlace(place); name != "" {
		dest.Dir = filepath.Join(month, name)
	}
	return dest, true
}

var placeReplacer = strings.NewReplacer("/", "-", "\\", "-", "\x00", "")

// SanitizePlace turns a place name into a single safe path element. It
// returns "" when nothing usable is left.
func SanitizePlace(place string) string {
	name := strings.TrimSpace(placeReplacer.Replace(place))
	name = strings.TrimLeft(name, ".")
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	// keep the month's quarantine folder unambiguous
	if strings.EqualFold(name, types.DuplicatesDirName) {
		name += "_"
	}
	return name
}
