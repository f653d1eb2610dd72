package imageprocessor

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"photosorter/database"
	"photosorter/logging"
	"photosorter/types"

	"go.uber.org/zap"
)

// CachedHasher memoizes another Hasher in the sqlite fingerprint cache.
// A cached value is used only while the file keeps the size and
// modification time it had when hashed. Cache errors are logged and the
// wrapped hasher is used instead.
type CachedHasher struct {
	Hasher Hasher
	DB     *sql.DB

	log *zap.Logger
}

// NewCachedHasher wraps h with the cache in db
func NewCachedHasher(h Hasher, db *sql.DB) *CachedHasher {
	return &CachedHasher{Hasher: h, DB: db, log: logging.Named("fingerprint-cache")}
}

func (c *CachedHasher) Name() string { return c.Hasher.Name() }

func (c *CachedHasher) Fingerprint(path string) (types.Fingerprint, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrImageDecode, err)
	}

	fp, ok, err := database.LookupFingerprint(c.DB, abs, info.Size(), info.ModTime(), c.Name())
	if err != nil {
		c.logger().Warn("fingerprint cache lookup failed", zap.String("path", abs), zap.Error(err))
	} else if ok {
		return fp, nil
	}

	fp, err = c.Hasher.Fingerprint(abs)
	if err != nil {
		return 0, err
	}

	err = database.StoreFingerprint(c.DB, database.FingerprintEntry{
		Path:        abs,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Backend:     c.Name(),
		Fingerprint: fp,
	})
	if err != nil {
		c.logger().Warn("fingerprint cache store failed", zap.String("path", abs), zap.Error(err))
	}
	return fp, nil
}

// Forget drops the cached fingerprints of a path that no longer exists
func (c *CachedHasher) Forget(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if err := database.ForgetFingerprint(c.DB, abs); err != nil {
		c.logger().Warn("fingerprint cache cleanup failed", zap.String("path", abs), zap.Error(err))
	}
}

func (c *CachedHasher) logger() *zap.Logger {
	if c.log == nil {
		return logging.Named("fingerprint-cache")
	}
	return c.log
}
