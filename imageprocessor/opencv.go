package imageprocessor

import (
	"fmt"
	"image"

	"photosorter/types"

	"gocv.io/x/gocv"
)

const hashSide = 8

// OpenCVHasher loads images with OpenCV
type OpenCVHasher struct{}

func (*OpenCVHasher) Name() string { return BackendOpenCV }

func (*OpenCVHasher) Fingerprint(path string) (types.Fingerprint, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer img.Close()
	if img.Empty() {
		return 0, fmt.Errorf("%w: opencv cannot read %s", types.ErrImageDecode, path)
	}
	return ComputeAverageHash(img)
}

// ComputeAverageHash calculates the 64-bit average hash of a grayscale
// image: shrink to 8x8, then one bit per pixel, set when the pixel is at
// least the mean. Bits are taken row-major, most significant first.
func ComputeAverageHash(img gocv.Mat) (types.Fingerprint, error) {
	if img.Empty() {
		return 0, fmt.Errorf("%w: cannot compute hash for empty image", types.ErrImageDecode)
	}

	gray := img
	if img.Channels() != 1 {
		gray = gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(gray, &resized, image.Point{X: hashSide, Y: hashSide}, 0, 0, gocv.InterpolationArea)

	var pixels [hashSide * hashSide]uint8
	var sum uint64
	for y := 0; y < hashSide; y++ {
		for x := 0; x < hashSide; x++ {
			p := resized.GetUCharAt(y, x)
			pixels[y*hashSide+x] = p
			sum += uint64(p)
		}
	}
	threshold := float64(sum) / float64(len(pixels))

	var hash uint64
	for _, p := range pixels {
		hash <<= 1
		if float64(p) >= threshold {
			hash |= 1
		}
	}
	return types.Fingerprint(hash), nil
}
