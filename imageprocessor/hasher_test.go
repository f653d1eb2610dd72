package imageprocessor

import (
	"errors"
	"math/bits"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photosorter/database"
	"photosorter/internal/testhelpers"
	"photosorter/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allBackends() []Hasher {
	return []Hasher{&OpenCVHasher{}, &NativeHasher{}}
}

func TestOpenCVHashMatchesBlockLayout(t *testing.T) {
	dir := t.TempDir()
	for _, seed := range []uint64{1, 42, 2024} {
		png := filepath.Join(dir, "p.png")
		jpg := filepath.Join(dir, "p.jpg")
		testhelpers.WritePNG(t, png, seed)
		testhelpers.WriteJPEG(t, jpg, seed, nil)

		want := types.Fingerprint(bits.Reverse64(testhelpers.PatternBits(seed)))
		h := &OpenCVHasher{}

		got, err := h.Fingerprint(png)
		require.NoError(t, err)
		assert.Equal(t, want, got, "png seed %d", seed)

		got, err = h.Fingerprint(jpg)
		require.NoError(t, err)
		assert.Equal(t, want, got, "jpeg seed %d", seed)
	}
}

func TestFingerprintIdenticalContent(t *testing.T) {
	for _, h := range allBackends() {
		t.Run(h.Name(), func(t *testing.T) {
			dir := t.TempDir()
			a := filepath.Join(dir, "a.jpg")
			b := filepath.Join(dir, "sub", "b.jpg")
			testhelpers.WriteJPEG(t, a, 7, nil)
			testhelpers.WriteJPEG(t, b, 7, &testhelpers.EXIF{DateTimeOriginal: "2023:07:14 10:30:00"})

			fa, err := h.Fingerprint(a)
			require.NoError(t, err)
			fb, err := h.Fingerprint(b)
			require.NoError(t, err)

			assert.Equal(t, fa, fb, "metadata must not change the fingerprint")
		})
	}
}

func TestFingerprintDifferentContent(t *testing.T) {
	for _, h := range allBackends() {
		t.Run(h.Name(), func(t *testing.T) {
			dir := t.TempDir()
			a := filepath.Join(dir, "a.png")
			b := filepath.Join(dir, "b.png")
			testhelpers.WritePNG(t, a, 1)
			testhelpers.WritePNG(t, b, 2)

			fa, err := h.Fingerprint(a)
			require.NoError(t, err)
			fb, err := h.Fingerprint(b)
			require.NoError(t, err)

			assert.NotEqual(t, fa, fb)
		})
	}
}

func TestFingerprintDecodeFailure(t *testing.T) {
	for _, h := range allBackends() {
		t.Run(h.Name(), func(t *testing.T) {
			dir := t.TempDir()
			corrupt := filepath.Join(dir, "broken.jpg")
			testhelpers.WriteCorrupt(t, corrupt)

			_, err := h.Fingerprint(corrupt)
			assert.ErrorIs(t, err, types.ErrImageDecode)

			_, err = h.Fingerprint(filepath.Join(dir, "missing.png"))
			assert.ErrorIs(t, err, types.ErrImageDecode)
		})
	}
}

func TestNewHasher(t *testing.T) {
	h, err := NewHasher("")
	require.NoError(t, err)
	assert.Equal(t, BackendOpenCV, h.Name())

	h, err = NewHasher("Native")
	require.NoError(t, err)
	assert.Equal(t, BackendNative, h.Name())

	_, err = NewHasher("dhash")
	assert.Error(t, err)
}

// countingHasher returns a fixed fingerprint and counts calls
type countingHasher struct {
	calls int
	fp    types.Fingerprint
	err   error
}

func (c *countingHasher) Name() string { return "counting" }

func (c *countingHasher) Fingerprint(string) (types.Fingerprint, error) {
	c.calls++
	return c.fp, c.err
}

func TestCachedHasher(t *testing.T) {
	dir := t.TempDir()
	db, err := database.InitDatabase(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	defer db.Close()

	img := filepath.Join(dir, "a.png")
	testhelpers.WritePNG(t, img, 3)

	inner := &countingHasher{fp: 0xabc}
	h := NewCachedHasher(inner, db)
	assert.Equal(t, "counting", h.Name())

	for i := 0; i < 3; i++ {
		fp, err := h.Fingerprint(img)
		require.NoError(t, err)
		assert.Equal(t, types.Fingerprint(0xabc), fp)
	}
	assert.Equal(t, 1, inner.calls)

	// a new modification time invalidates the entry
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(img, later, later))
	inner.fp = 0xdef
	fp, err := h.Fingerprint(img)
	require.NoError(t, err)
	assert.Equal(t, types.Fingerprint(0xdef), fp)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedHasherDoesNotCacheFailures(t *testing.T) {
	dir := t.TempDir()
	db, err := database.InitDatabase(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	defer db.Close()

	img := filepath.Join(dir, "a.jpg")
	testhelpers.WriteCorrupt(t, img)

	decodeErr := errors.Join(types.ErrImageDecode, errors.New("bad"))
	inner := &countingHasher{err: decodeErr}
	h := NewCachedHasher(inner, db)

	_, err = h.Fingerprint(img)
	assert.ErrorIs(t, err, types.ErrImageDecode)
	_, err = h.Fingerprint(img)
	assert.ErrorIs(t, err, types.ErrImageDecode)
	assert.Equal(t, 2, inner.calls)

	n, err := database.CountFingerprints(db)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = h.Fingerprint(filepath.Join(dir, "missing.jpg"))
	assert.ErrorIs(t, err, types.ErrImageDecode)
}

func TestCachedHasherForget(t *testing.T) {
	dir := t.TempDir()
	db, err := database.InitDatabase(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	defer db.Close()

	img := filepath.Join(dir, "a.png")
	testhelpers.WritePNG(t, img, 4)

	inner := &countingHasher{fp: 0x123}
	h := NewCachedHasher(inner, db)
	_, err = h.Fingerprint(img)
	require.NoError(t, err)

	h.Forget(img)

	n, err := database.CountFingerprints(db)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = h.Fingerprint(img)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
