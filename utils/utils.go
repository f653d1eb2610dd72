package utils

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
)

// GetDefaultCachePath returns the default path for the fingerprint cache,
// next to the executable
func GetDefaultCachePath() string {
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "photosorter-cache.db"
	}
	return filepath.Join(filepath.Dir(exePath), "photosorter-cache.db")
}

// WriteJSON writes v indented, for machine-readable run summaries
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
