package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"photosorter/logging"
	"photosorter/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxNameAttempts bounds the stem_N search when a name is taken
const maxNameAttempts = 10000

// Relocator moves files into the archive. Callers must hold the bucket
// lock of the destination while calling Relocate.
type Relocator struct {
	// DryRun computes the final path without touching the filesystem
	DryRun bool

	log *zap.Logger
}

func NewRelocator(dryRun bool) *Relocator {
	return &Relocator{DryRun: dryRun, log: logging.Named("relocator")}
}

// Relocate moves src into dir, or into dir/Duplicates under a generated
// name when duplicateOf is set. An existing file is never overwritten. If
// the move fails the source is left intact and the result is Failed.
func (r *Relocator) Relocate(src, dir, duplicateOf string) types.PipelineResult {
	targetDir := dir
	name := filepath.Base(src)
	if duplicateOf != "" {
		targetDir = filepath.Join(dir, types.DuplicatesDirName)
		name = uuid.NewString() + filepath.Ext(src)
	}

	if r.DryRun {
		dst := freeName(targetDir, name)
		return r.result(src, dst, duplicateOf)
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return types.Failed(src, fmt.Errorf("%w: creating %s: %v", types.ErrFilesystem, targetDir, err))
	}

	for i := 0; i < maxNameAttempts; i++ {
		dst := filepath.Join(targetDir, candidateName(name, i))
		err := moveFile(src, dst)
		if err == nil {
			return r.result(src, dst, duplicateOf)
		}
		if !errors.Is(err, fs.ErrExist) {
			r.log.Warn("move failed",
				zap.String("source", src),
				zap.String("destination", dst),
				zap.Error(err))
			return types.Failed(src, fmt.Errorf("%w: moving to %s: %v", types.ErrFilesystem, dst, err))
		}
	}
	return types.Failed(src, fmt.Errorf("%w: no free name for %s in %s", types.ErrFilesystem, name, targetDir))
}

func (r *Relocator) result(src, dst, duplicateOf string) types.PipelineResult {
	if duplicateOf != "" {
		return types.Quarantined(src, dst, duplicateOf)
	}
	return types.Relocated(src, dst)
}

// candidateName returns name for attempt 0, then stem_1.ext, stem_2.ext, ...
func candidateName(name string, attempt int) string {
	if attempt == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(attempt) + ext
}

// freeName is the dry-run version of the collision search
func freeName(dir, name string) string {
	for i := 0; i < maxNameAttempts; i++ {
		dst := filepath.Join(dir, candidateName(name, i))
		if _, err := os.Lstat(dst); errors.Is(err, fs.ErrNotExist) {
			return dst
		}
	}
	return filepath.Join(dir, name)
}

// moveFile moves src to dst, failing with fs.ErrExist if dst exists
func moveFile(src, dst string) error {
	err := placeNoClobber(src, dst)
	if errors.Is(err, syscall.EXDEV) {
		return copyAcross(src, dst)
	}
	return err
}

// placeNoClobber renames from to to on one filesystem without replacing
// an existing to.
func placeNoClobber(from, to string) error {
	err := os.Link(from, to)
	if err == nil {
		if err := os.Remove(from); err != nil {
			os.Remove(to)
			return err
		}
		return nil
	}
	if errors.Is(err, fs.ErrExist) || errors.Is(err, syscall.EXDEV) {
		return err
	}

	// no hard links on this filesystem; the bucket lock keeps the check
	// and the rename together
	if _, statErr := os.Lstat(to); statErr == nil {
		return &fs.PathError{Op: "rename", Path: to, Err: fs.ErrExist}
	}
	return os.Rename(from, to)
}

// copyAcross moves src to dst on another device: copy to a temporary file
// next to dst, sync, put it in place, then remove src. On error dst does
// not exist and src is untouched.
func copyAcross(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".incoming-*"+filepath.Ext(dst))
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return err
	}
	if err = os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return err
	}

	if err = placeNoClobber(tmpName, dst); err != nil {
		return err
	}
	if err = os.Remove(src); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
