// Package imageprocessor computes perceptual fingerprints of images.
package imageprocessor

import (
	"fmt"
	"strings"

	"photosorter/types"
)

// Hasher backend names
const (
	BackendOpenCV = "opencv"
	BackendNative = "native"
)

// Hasher is the interface that all fingerprint backends must implement
type Hasher interface {
	// Fingerprint decodes the image at path and returns its 64-bit
	// average hash. Decode failures wrap types.ErrImageDecode.
	Fingerprint(path string) (types.Fingerprint, error)

	// Name identifies the backend, and keys cached fingerprints
	Name() string
}

// NewHasher returns the backend with the given name
func NewHasher(backend string) (Hasher, error) {
	switch strings.ToLower(backend) {
	case "", BackendOpenCV:
		return &OpenCVHasher{}, nil
	case BackendNative:
		return &NativeHasher{}, nil
	default:
		return nil, fmt.Errorf("unknown hasher backend %q (want %s or %s)", backend, BackendOpenCV, BackendNative)
	}
}
