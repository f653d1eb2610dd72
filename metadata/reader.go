// Package metadata extracts the capture date and GPS position of an image.
//
// Embedded EXIF is read with goexif. Containers goexif cannot parse (PNG
// eXIf chunks, XMP-only files) are handed to exiftool when the binary is
// installed. When no capture timestamp is found the earliest filesystem
// timestamp is used instead, so a readable file always gets a date.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"photosorter/logging"
	"photosorter/types"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
	"gopkg.in/djherbis/times.v1"
)

// exifTimeLayout is the EXIF timestamp format, YYYY:MM:DD HH:MM:SS
const exifTimeLayout = "2006:01:02 15:04:05"

// captureTimeFields are tried in order; the first parsable value wins
var captureTimeFields = []exif.FieldName{
	exif.DateTimeOriginal,
	exif.DateTimeDigitized,
	exif.DateTime,
}

var errNoCaptureTime = errors.New("no capture timestamp")

// Reader extracts CaptureMetadata from image files. It is safe for
// concurrent use.
type Reader struct {
	log *zap.Logger

	useExiftool bool
	etOnce      sync.Once
	etMu        sync.Mutex
	et          *exiftool.Exiftool
}

// NewReader creates a metadata reader. When useExiftool is true and the
// exiftool binary is on PATH it is started lazily, the first time goexif
// fails on a file.
func NewReader(useExiftool bool) *Reader {
	return &Reader{
		log:         logging.Named("metadata"),
		useExiftool: useExiftool,
	}
}

// Read never fails: decode problems are logged and reported as absent fields.
func (r *Reader) Read(path string) types.CaptureMetadata {
	var meta types.CaptureMetadata

	fields, err := r.decode(path)
	if err != nil {
		r.log.Warn("cannot decode embedded metadata", zap.String("path", path), zap.Error(err))
	}

	if fields != nil {
		if year, month, err := parseCaptureTime(fields.captureTime); err == nil {
			meta.Year, meta.Month = year, month
		} else if fields.captureTime != "" {
			r.log.Warn("unparsable capture timestamp",
				zap.String("path", path),
				zap.String("value", fields.captureTime),
				zap.Error(err))
		}
		meta.Coordinates = fields.coordinates
	}

	if !meta.HasDate() {
		ts, err := earliestFileTime(path)
		if err != nil {
			r.log.Warn("cannot stat file for timestamp fallback", zap.String("path", path), zap.Error(err))
			return meta
		}
		meta.Year = ts.Format("2006")
		meta.Month = ts.Format("01")
		r.log.Debug("using filesystem timestamp",
			zap.String("path", path),
			zap.Time("timestamp", ts))
	}

	return meta
}

// Close stops the exiftool process if one was started
func (r *Reader) Close() error {
	r.etMu.Lock()
	defer r.etMu.Unlock()

	if r.et == nil {
		return nil
	}
	err := r.et.Close()
	r.et = nil
	return err
}

// rawFields is the subset of embedded metadata the pipeline needs
type rawFields struct {
	captureTime string
	coordinates *types.Coordinates
}

func (r *Reader) decode(path string) (*rawFields, error) {
	fields, err := decodeWithGoexif(path)
	if err == nil {
		return fields, nil
	}

	et := r.exiftool()
	if et == nil {
		return nil, err
	}

	fields, etErr := r.decodeWithExiftool(et, path)
	if etErr != nil {
		return nil, fmt.Errorf("goexif: %v; exiftool: %w", err, etErr)
	}
	return fields, nil
}

func decodeWithGoexif(path string) (*rawFields, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		if err == nil {
			err = errors.New("no exif data")
		}
		return nil, err
	}

	fields := &rawFields{}
	for _, name := range captureTimeFields {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		s = cleanExifString(s)
		if _, _, err := parseCaptureTime(s); err == nil {
			fields.captureTime = s
			break
		}
		if fields.captureTime == "" {
			fields.captureTime = s
		}
	}

	fields.coordinates = gpsFromExif(x)
	return fields, nil
}

// exiftool returns the shared exiftool instance, or nil if it is disabled
// or unavailable on this system
func (r *Reader) exiftool() *exiftool.Exiftool {
	if !r.useExiftool {
		return nil
	}

	r.etOnce.Do(func() {
		if _, err := exec.LookPath("exiftool"); err != nil {
			r.log.Debug("exiftool not found, fallback disabled")
			return
		}
		et, err := exiftool.NewExiftool(exiftool.NoPrintConversion())
		if err != nil {
			r.log.Warn("cannot start exiftool", zap.Error(err))
			return
		}
		r.etMu.Lock()
		r.et = et
		r.etMu.Unlock()
	})

	r.etMu.Lock()
	defer r.etMu.Unlock()
	return r.et
}

func (r *Reader) decodeWithExiftool(et *exiftool.Exiftool, path string) (*rawFields, error) {
	r.etMu.Lock()
	infos := et.ExtractMetadata(path)
	r.etMu.Unlock()

	if len(infos) == 0 {
		return nil, errors.New("exiftool returned no result")
	}
	info := infos[0]
	if info.Err != nil {
		return nil, info.Err
	}

	fields := &rawFields{}
	for _, name := range captureTimeFields {
		s, err := info.GetString(string(name))
		if err != nil {
			continue
		}
		s = cleanExifString(s)
		if _, _, err := parseCaptureTime(s); err == nil {
			fields.captureTime = s
			break
		}
	}

	lat, latErr := info.GetFloat("GPSLatitude")
	lon, lonErr := info.GetFloat("GPSLongitude")
	if latErr == nil && lonErr == nil {
		latRef, _ := info.GetString("GPSLatitudeRef")
		lonRef, _ := info.GetString("GPSLongitudeRef")
		fields.coordinates = signedCoordinates(lat, latRef, lon, lonRef)
	}

	return fields, nil
}

// parseCaptureTime validates an EXIF timestamp and slices year and month
// out of it. The calendar date is taken as written, with no zone conversion.
func parseCaptureTime(s string) (year, month string, err error) {
	if s == "" {
		return "", "", errNoCaptureTime
	}
	if len(s) < len(exifTimeLayout) {
		return "", "", fmt.Errorf("timestamp %q too short", s)
	}
	if _, err := time.Parse(exifTimeLayout, s[:len(exifTimeLayout)]); err != nil {
		return "", "", err
	}
	return s[0:4], s[5:7], nil
}

func cleanExifString(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

// earliestFileTime returns the earliest of the modification, status change
// and (where the platform records it) birth time of a file.
func earliestFileTime(path string) (time.Time, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return time.Time{}, err
	}

	earliest := ts.ModTime()
	if ts.HasChangeTime() && ts.ChangeTime().Before(earliest) {
		earliest = ts.ChangeTime()
	}
	if ts.HasBirthTime() && ts.BirthTime().Before(earliest) {
		earliest = ts.BirthTime()
	}
	return earliest.Local(), nil
}
