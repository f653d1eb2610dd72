package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"photosorter/internal/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setOldModTime pushes the modification time far before the change time
// the filesystem assigned when the fixture was written
func setOldModTime(t *testing.T, path string) time.Time {
	t.Helper()
	old := time.Date(2001, time.March, 15, 12, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(path, old, old))
	return old
}

func TestReadPrefersEmbeddedTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embedded.jpg")
	testhelpers.WriteJPEG(t, path, 1, &testhelpers.EXIF{
		DateTime:         "2020:01:01 00:00:00",
		DateTimeOriginal: "2023:07:14 10:30:00",
	})
	setOldModTime(t, path)

	meta := NewReader(false).Read(path)

	assert.Equal(t, "2023", meta.Year)
	assert.Equal(t, "07", meta.Month)
	assert.Nil(t, meta.Coordinates)
}

func TestReadUsesIFD0DateTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ifd0.jpg")
	testhelpers.WriteJPEG(t, path, 2, &testhelpers.EXIF{DateTime: "2019:12:31 23:59:59"})
	setOldModTime(t, path)

	meta := NewReader(false).Read(path)

	assert.Equal(t, "2019", meta.Year)
	assert.Equal(t, "12", meta.Month)
}

func TestReadFallsBackToEarliestFileTime(t *testing.T) {
	dir := t.TempDir()
	zeroedEXIF := &testhelpers.EXIF{DateTimeOriginal: "0000:00:00 00:00:00"}

	for name, write := range map[string]func(*testing.T, string){
		"plain.jpg":  func(t *testing.T, p string) { testhelpers.WriteJPEG(t, p, 3, nil) },
		"plain.png":  func(t *testing.T, p string) { testhelpers.WritePNG(t, p, 4) },
		"zeroed.jpg": func(t *testing.T, p string) { testhelpers.WriteJPEG(t, p, 5, zeroedEXIF) },
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			write(t, path)
			old := setOldModTime(t, path)

			meta := NewReader(false).Read(path)

			assert.Equal(t, old.Format("2006"), meta.Year)
			assert.Equal(t, old.Format("01"), meta.Month)
		})
	}
}

func TestReadMissingFileIsEmpty(t *testing.T) {
	meta := NewReader(false).Read(filepath.Join(t.TempDir(), "gone.jpg"))
	assert.False(t, meta.HasDate())
	assert.Empty(t, meta.Month)
	assert.Nil(t, meta.Coordinates)
}

func TestReadGPS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gps.jpg")
	testhelpers.WriteJPEG(t, path, 6, &testhelpers.EXIF{
		DateTimeOriginal: "2023:07:14 10:30:00",
		GPS: &testhelpers.GPS{
			LatRef: "N", Lat: testhelpers.DMS(40, 26, 46),
			LonRef: "W", Lon: testhelpers.DMS(79, 58, 56),
		},
	})

	meta := NewReader(false).Read(path)

	require.NotNil(t, meta.Coordinates)
	assert.InDelta(t, 40.446111, meta.Coordinates.Latitude, 1e-5)
	assert.InDelta(t, -79.982222, meta.Coordinates.Longitude, 1e-5)
}

func TestReadGPSSouthEastAndFractionalSeconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sydney.jpg")
	testhelpers.WriteJPEG(t, path, 7, &testhelpers.EXIF{
		DateTimeOriginal: "2022:02:03 08:00:00",
		GPS: &testhelpers.GPS{
			LatRef: "S", Lat: [3][2]uint32{{33, 1}, {51, 1}, {3150, 100}},
			LonRef: "E", Lon: [3][2]uint32{{151, 1}, {12, 1}, {3600, 100}},
		},
	})

	meta := NewReader(false).Read(path)

	require.NotNil(t, meta.Coordinates)
	assert.InDelta(t, -(33 + 51.0/60 + 31.5/3600), meta.Coordinates.Latitude, 1e-9)
	assert.InDelta(t, 151+12.0/60+36.0/3600, meta.Coordinates.Longitude, 1e-9)
}

func TestReadGPSInvalidIsAbsent(t *testing.T) {
	for name, gps := range map[string]*testhelpers.GPS{
		"zero denominator": {
			LatRef: "N", Lat: [3][2]uint32{{40, 0}, {26, 1}, {46, 1}},
			LonRef: "W", Lon: testhelpers.DMS(79, 58, 56),
		},
		"bad hemisphere": {
			LatRef: "Q", Lat: testhelpers.DMS(40, 26, 46),
			LonRef: "W", Lon: testhelpers.DMS(79, 58, 56),
		},
		"out of range": {
			LatRef: "N", Lat: testhelpers.DMS(95, 0, 0),
			LonRef: "W", Lon: testhelpers.DMS(79, 58, 56),
		},
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gps.jpg")
			testhelpers.WriteJPEG(t, path, 8, &testhelpers.EXIF{
				DateTimeOriginal: "2023:07:14 10:30:00",
				GPS:              gps,
			})

			meta := NewReader(false).Read(path)

			assert.Nil(t, meta.Coordinates)
			assert.Equal(t, "2023", meta.Year, "date must survive a broken GPS block")
		})
	}
}

func TestParseCaptureTime(t *testing.T) {
	for input, want := range map[string][2]string{
		"2023:07:14 10:30:00":        {"2023", "07"},
		"1999:12:31 23:59:59":        {"1999", "12"},
		"2023:07:14 10:30:00.123+02": {"2023", "07"},
	} {
		year, month, err := parseCaptureTime(input)
		require.NoError(t, err, input)
		assert.Equal(t, want[0], year, input)
		assert.Equal(t, want[1], month, input)
	}

	for _, input := range []string{"", "2023-07-14 10:30:00", "2023:13:01 00:00:00", "0000:00:00 00:00:00", "2023:07"} {
		_, _, err := parseCaptureTime(input)
		assert.Error(t, err, input)
	}
}

func TestDMSToDecimal(t *testing.T) {
	assert.InDelta(t, 40.446111, dmsToDecimal(40, 26, 46, false), 1e-6)
	assert.InDelta(t, -79.982222, dmsToDecimal(79, 58, 56, true), 1e-6)
	assert.Equal(t, 0.0, dmsToDecimal(0, 0, 0, false))
}

func TestSignedCoordinates(t *testing.T) {
	c := signedCoordinates(40.446111, "N", 79.982222, "W")
	require.NotNil(t, c)
	assert.InDelta(t, -79.982222, c.Longitude, 1e-9)

	c = signedCoordinates(-33.5, "S", 151.2, "E")
	require.NotNil(t, c)
	assert.InDelta(t, -33.5, c.Latitude, 1e-9)

	assert.Nil(t, signedCoordinates(91, "N", 0, "E"))
}
