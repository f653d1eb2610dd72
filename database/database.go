package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"photosorter/logging"
	"photosorter/types"

	_ "github.com/mattn/go-sqlite3"
)

// FingerprintEntry is one cached fingerprint and the file state it was computed from
type FingerprintEntry struct {
	Path        string
	Size        int64
	ModTime     time.Time
	Backend     string
	Fingerprint types.Fingerprint
}

// InitDatabase initializes and returns a database connection
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	// Create table if it doesn't exist
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS fingerprints (
		path TEXT NOT NULL,
		backend TEXT NOT NULL,
		size INTEGER NOT NULL,
		modified_at INTEGER NOT NULL,
		average_hash TEXT NOT NULL,
		updated_at TEXT,
		PRIMARY KEY(path, backend)
	);
	CREATE INDEX IF NOT EXISTS idx_average_hash ON fingerprints(average_hash);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating fingerprint table in %s: %w", dbPath, err)
	}

	logging.DebugLog("Fingerprint cache ready at %s", dbPath)
	return db, nil
}

// LookupFingerprint returns the cached fingerprint for path. It only hits
// when the stored size, modification time and backend all match.
func LookupFingerprint(db *sql.DB, path string, size int64, modTime time.Time, backend string) (types.Fingerprint, bool, error) {
	var (
		storedSize int64
		storedMod  int64
		hash       string
	)
	err := db.QueryRow(
		"SELECT size, modified_at, average_hash FROM fingerprints WHERE path = ? AND backend = ?",
		path, backend,
	).Scan(&storedSize, &storedMod, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("database error for %s: %w", path, err)
	}

	if storedSize != size || storedMod != modTime.UnixNano() {
		return 0, false, nil
	}

	v, err := strconv.ParseUint(hash, 16, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached hash for %s: %w", path, err)
	}
	return types.Fingerprint(v), true, nil
}

// StoreFingerprint records or replaces the fingerprint for a path
func StoreFingerprint(db *sql.DB, entry FingerprintEntry) error {
	// hex text, since the driver rejects uint64 values with the high bit set
	_, err := db.Exec(`
		INSERT OR REPLACE INTO fingerprints (
			path, backend, size, modified_at, average_hash, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Path,
		entry.Backend,
		entry.Size,
		entry.ModTime.UnixNano(),
		entry.Fingerprint.String(),
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("cannot store fingerprint for %s: %w", entry.Path, err)
	}
	return nil
}

// ForgetFingerprint drops every cached entry for a path
func ForgetFingerprint(db *sql.DB, path string) error {
	if _, err := db.Exec("DELETE FROM fingerprints WHERE path = ?", path); err != nil {
		return fmt.Errorf("cannot forget fingerprint for %s: %w", path, err)
	}
	return nil
}

// CountFingerprints returns the number of cached entries
func CountFingerprints(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM fingerprints").Scan(&n)
	return n, err
}
