package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Error taxonomy shared by the pipeline stages
var (
	// ErrImageDecode is returned when pixel data cannot be decoded for fingerprinting
	ErrImageDecode = errors.New("image decode failed")
	// ErrFilesystem wraps move and directory creation failures
	ErrFilesystem = errors.New("filesystem operation failed")
	// ErrNoDate marks files that cannot be placed in the archive
	ErrNoDate = errors.New("no date or location metadata")
	// ErrCancelled is reported for files abandoned because the run was cancelled
	ErrCancelled = errors.New("run cancelled")
	// ErrInvalidName rejects single-file triggers that are not plain file names
	ErrInvalidName = errors.New("invalid file name")
)

// DuplicatesDirName is the quarantine folder created inside a destination bucket
const DuplicatesDirName = "Duplicates"

// supportedExtensions is the image allow-list, lower case with the leading dot
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsSupportedImage reports whether the path carries an allow-listed image extension
func IsSupportedImage(path string) bool {
	return NewSourceFile(path).Supported()
}

// SourceFile is a candidate image discovered in the source tree
type SourceFile struct {
	Path string `json:"path"`
	Ext  string `json:"ext"`
}

// NewSourceFile builds a SourceFile with its lower-cased extension
func NewSourceFile(path string) SourceFile {
	return SourceFile{Path: path, Ext: strings.ToLower(filepath.Ext(path))}
}

// Supported reports whether the extension is on the image allow-list
func (f SourceFile) Supported() bool {
	return supportedExtensions[f.Ext]
}

// Coordinates is a signed decimal-degree position
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CaptureMetadata is the read-only snapshot extracted from a single file.
// Year and Month are both set or both empty.
type CaptureMetadata struct {
	Year        string       `json:"year,omitempty"`
	Month       string       `json:"month,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// HasDate reports whether a capture year (and therefore month) is known
func (m CaptureMetadata) HasDate() bool {
	return m.Year != "" && m.Month != ""
}

// Fingerprint is a 64-bit average hash of decoded pixel data
type Fingerprint uint64

// String renders the fingerprint as 16 hex digits
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Outcome is the terminal state of one file in a run
type Outcome int

const (
	OutcomeRelocated Outcome = iota
	OutcomeQuarantined
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRelocated:
		return "relocated"
	case OutcomeQuarantined:
		return "quarantined"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// PipelineResult holds the outcome of processing one file
type PipelineResult struct {
	Source      string  `json:"source"`
	Destination string  `json:"destination,omitempty"`
	Outcome     Outcome `json:"outcome"`
	Reason      string  `json:"reason,omitempty"`
	DuplicateOf string  `json:"duplicate_of,omitempty"`
	Err         error   `json:"-"`
}

// Relocated builds a successful move result
func Relocated(source, destination string) PipelineResult {
	return PipelineResult{Source: source, Destination: destination, Outcome: OutcomeRelocated}
}

// Quarantined builds a duplicate move result
func Quarantined(source, destination, duplicateOf string) PipelineResult {
	return PipelineResult{Source: source, Destination: destination, Outcome: OutcomeQuarantined, DuplicateOf: duplicateOf}
}

// Skipped builds a result for a file intentionally left in place
func Skipped(source string, err error) PipelineResult {
	return PipelineResult{Source: source, Outcome: OutcomeSkipped, Reason: err.Error(), Err: err}
}

// Failed builds a result for a file that could not be processed
func Failed(source string, err error) PipelineResult {
	return PipelineResult{Source: source, Outcome: OutcomeFailed, Reason: err.Error(), Err: err}
}

// Failure is a failed file and its reason, reported at the end of a bulk run
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RunSummary aggregates the results of a run
type RunSummary struct {
	Relocated   int              `json:"relocated"`
	Quarantined int              `json:"quarantined"`
	Skipped     int              `json:"skipped"`
	Failed      int              `json:"failed"`
	Failures    []Failure        `json:"failures"`
	Results     []PipelineResult `json:"results"`
	Cancelled   bool             `json:"cancelled"`
	Duration    time.Duration    `json:"duration"`
}

// NewRunSummary returns an empty summary whose lists encode as [] rather
// than null
func NewRunSummary() RunSummary {
	return RunSummary{Failures: []Failure{}, Results: []PipelineResult{}}
}

// Add records exactly one terminal result
func (s *RunSummary) Add(r PipelineResult) {
	switch r.Outcome {
	case OutcomeRelocated:
		s.Relocated++
	case OutcomeQuarantined:
		s.Quarantined++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
		s.Failures = append(s.Failures, Failure{Path: r.Source, Reason: r.Reason})
	}
	s.Results = append(s.Results, r)
}

// Total returns the number of files that reached a terminal state
func (s *RunSummary) Total() int {
	return s.Relocated + s.Quarantined + s.Skipped + s.Failed
}
