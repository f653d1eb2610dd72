package archive

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"photosorter/logging"
	"photosorter/types"

	"go.uber.org/zap"
)

// Fingerprinter computes the perceptual fingerprint of an image
type Fingerprinter interface {
	Fingerprint(path string) (types.Fingerprint, error)
}

// DuplicateChecker looks for an image with a given fingerprint inside a
// destination directory
type DuplicateChecker struct {
	hasher Fingerprinter
	log    *zap.Logger
}

func NewDuplicateChecker(h Fingerprinter) *DuplicateChecker {
	return &DuplicateChecker{hasher: h, log: logging.Named("duplicates")}
}

// FindDuplicate walks dir recursively in lexical order and returns the
// first allow-listed image whose fingerprint equals fp. A missing
// directory has no duplicates. Files that cannot be decoded are logged
// and skipped.
func (d *DuplicateChecker) FindDuplicate(fp types.Fingerprint, dir string) (string, bool) {
	var found string

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			d.log.Warn("cannot read archive entry", zap.String("path", path), zap.Error(err))
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if path != dir && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !entry.Type().IsRegular() || !types.IsSupportedImage(path) {
			return nil
		}

		candidate, err := d.hasher.Fingerprint(path)
		if err != nil {
			d.log.Warn("skipping undecodable archive image", zap.String("path", path), zap.Error(err))
			return nil
		}
		if candidate == fp {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		d.log.Warn("duplicate scan incomplete", zap.String("dir", dir), zap.Error(err))
	}

	return found, found != ""
}
