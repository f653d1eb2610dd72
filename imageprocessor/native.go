package imageprocessor

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"photosorter/types"

	"github.com/corona10/goimagehash"
)

// NativeHasher decodes with the standard image codecs and hashes with
// goimagehash, so it needs no OpenCV install. Its fingerprints are not
// comparable with OpenCVHasher's.
type NativeHasher struct{}

func (*NativeHasher) Name() string { return BackendNative }

func (*NativeHasher) Fingerprint(path string) (types.Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrImageDecode, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("%w: decoding %s: %v", types.ErrImageDecode, path, err)
	}

	h, err := goimagehash.AverageHash(img)
	if err != nil {
		return 0, fmt.Errorf("%w: hashing %s: %v", types.ErrImageDecode, path, err)
	}
	return types.Fingerprint(h.GetHash()), nil
}
