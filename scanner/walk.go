package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"photosorter/logging"
	"photosorter/types"
)

// isHidden reports dot-files and dot-directories
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// collectFiles walks the source tree and returns every allow-listed image
// in lexical order. The archive root is skipped when it lives inside the
// source, as are hidden entries.
func (p *Pipeline) collectFiles() ([]types.SourceFile, error) {
	var files []types.SourceFile

	err := filepath.WalkDir(p.sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.sourceDir {
				return err
			}
			logging.LogWarning("Ignoring walk error for %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == p.sourceDir {
				return nil
			}
			if path == p.archiveRoot || isHidden(d.Name()) {
				logging.DebugLog("Skipping directory: %s", path)
				return fs.SkipDir
			}
			return nil
		}

		if isHidden(d.Name()) || !d.Type().IsRegular() {
			return nil
		}
		if file := types.NewSourceFile(path); file.Supported() {
			files = append(files, file)
		}
		return nil
	})

	return files, err
}

// pruneEmptyDirs removes directories under the source root that are left
// empty, deepest first. The source root itself is kept.
func (p *Pipeline) pruneEmptyDirs() int {
	var dirs []string
	filepath.WalkDir(p.sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != p.sourceDir && (path == p.archiveRoot || isHidden(d.Name())) {
			return fs.SkipDir
		}
		if path != p.sourceDir {
			dirs = append(dirs, path)
		}
		return nil
	})

	removed := 0
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dirs[i]); err != nil {
			logging.LogWarning("Cannot remove empty directory %s: %v", dirs[i], err)
			continue
		}
		logging.DebugLog("Removed empty directory %s", dirs[i])
		removed++
	}
	return removed
}
