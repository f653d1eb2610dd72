package metadata

import (
	"fmt"
	"math"
	"strings"

	"photosorter/types"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// gpsFromExif decodes both coordinates or neither
func gpsFromExif(x *exif.Exif) *types.Coordinates {
	lat, err := exifDegrees(x, exif.GPSLatitude, exif.GPSLatitudeRef, "N", "S")
	if err != nil {
		return nil
	}
	lon, err := exifDegrees(x, exif.GPSLongitude, exif.GPSLongitudeRef, "E", "W")
	if err != nil {
		return nil
	}
	if !validCoordinates(lat, lon) {
		return nil
	}
	return &types.Coordinates{Latitude: lat, Longitude: lon}
}

func exifDegrees(x *exif.Exif, valueField, refField exif.FieldName, positive, negative string) (float64, error) {
	tag, err := x.Get(valueField)
	if err != nil {
		return 0, err
	}
	dms, err := rationalTriple(tag)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", valueField, err)
	}

	ref := ""
	if refTag, err := x.Get(refField); err == nil {
		if s, err := refTag.StringVal(); err == nil {
			ref = strings.ToUpper(cleanExifString(s))
		}
	}
	if ref != "" && ref != positive && ref != negative {
		return 0, fmt.Errorf("%s: unknown hemisphere %q", refField, ref)
	}

	return dmsToDecimal(dms[0], dms[1], dms[2], ref == negative), nil
}

func rationalTriple(tag *tiff.Tag) ([3]float64, error) {
	var out [3]float64
	if tag.Count != 3 {
		return out, fmt.Errorf("expected 3 rationals, got %d", tag.Count)
	}
	for i := 0; i < 3; i++ {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return out, err
		}
		if den == 0 {
			return out, fmt.Errorf("zero denominator at index %d", i)
		}
		out[i] = float64(num) / float64(den)
	}
	return out, nil
}

// dmsToDecimal converts degrees, minutes and seconds to signed decimal degrees
func dmsToDecimal(deg, minutes, seconds float64, negative bool) float64 {
	v := deg + minutes/60 + seconds/3600
	if negative {
		return -v
	}
	return v
}

// signedCoordinates applies hemisphere references to values that exiftool
// may already have signed
func signedCoordinates(lat float64, latRef string, lon float64, lonRef string) *types.Coordinates {
	if strings.HasPrefix(strings.ToUpper(latRef), "S") {
		lat = -math.Abs(lat)
	}
	if strings.HasPrefix(strings.ToUpper(lonRef), "W") {
		lon = -math.Abs(lon)
	}
	if !validCoordinates(lat, lon) {
		return nil
	}
	return &types.Coordinates{Latitude: lat, Longitude: lon}
}

func validCoordinates(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) && math.Abs(lat) <= 90 && math.Abs(lon) <= 180
}
