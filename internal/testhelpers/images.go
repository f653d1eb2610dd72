// Package testhelpers builds image fixtures for package tests: block
// patterns with a predictable average hash, and JPEG files carrying a
// minimal EXIF segment (timestamps and GPS).
package testhelpers

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// EXIF describes the tags written into a fixture's APP1 segment
type EXIF struct {
	DateTime         string // IFD0 0x0132
	DateTimeOriginal string // Exif IFD 0x9003
	GPS              *GPS
}

// GPS holds degree/minute/second rationals as numerator/denominator pairs
type GPS struct {
	LatRef string
	Lat    [3][2]uint32
	LonRef string
	Lon    [3][2]uint32
}

// DMS is a shorthand for whole-number degree/minute/second triples
func DMS(d, m, s uint32) [3][2]uint32 {
	return [3][2]uint32{{d, 1}, {m, 1}, {s, 1}}
}

// Pattern returns a 64x64 grayscale image made of 8x8 blocks that are
// either black or white according to the bits of a seed-derived value.
// Equal seeds give pixel-identical images.
func Pattern(seed uint64) image.Image {
	bits := splitmix64(seed)
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for by := 0; by < 8; by++ {
		for bx := 0; bx < 8; bx++ {
			v := uint8(0)
			if bits&(1<<uint(by*8+bx)) != 0 {
				v = 255
			}
			for y := by * 8; y < by*8+8; y++ {
				for x := bx * 8; x < bx*8+8; x++ {
					img.SetGray(x, y, color.Gray{Y: v})
				}
			}
		}
	}
	return img
}

// PatternBits returns the block layout of Pattern(seed): bit by*8+bx is
// set when block (bx, by) is white
func PatternBits(seed uint64) uint64 {
	return splitmix64(seed)
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// WriteJPEG encodes the pattern for seed as a JPEG at path, with an EXIF
// segment when meta is not nil.
func WriteJPEG(t testing.TB, path string, seed uint64, meta *EXIF) {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Pattern(seed), &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	data := buf.Bytes()
	if meta != nil {
		data = InsertEXIF(data, BuildTIFF(*meta))
	}
	writeFile(t, path, data)
}

// WritePNG encodes the pattern for seed as a PNG at path
func WritePNG(t testing.TB, path string, seed uint64) {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, Pattern(seed)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	writeFile(t, path, buf.Bytes())
}

// WriteCorrupt writes bytes that no image decoder accepts
func WriteCorrupt(t testing.TB, path string) {
	t.Helper()
	writeFile(t, path, []byte("this is not an image, only a file with an image extension"))
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// InsertEXIF places an APP1 Exif segment right after the JPEG SOI marker
func InsertEXIF(jpegData, tiff []byte) []byte {
	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))

	out := make([]byte, 0, len(jpegData)+len(seg)+len(payload))
	out = append(out, jpegData[:2]...)
	out = append(out, seg...)
	out = append(out, payload...)
	out = append(out, jpegData[2:]...)
	return out
}

const (
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5

	tagDateTime         = 0x0132
	tagExifPointer      = 0x8769
	tagGPSPointer       = 0x8825
	tagDateTimeOriginal = 0x9003
	tagGPSLatRef        = 0x0001
	tagGPSLat           = 0x0002
	tagGPSLonRef        = 0x0003
	tagGPSLon           = 0x0004
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func asciiEntry(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func longEntry(tag uint16, v uint32) ifdEntry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return ifdEntry{tag: tag, typ: typeLong, count: 1, data: b}
}

func rationalEntry(tag uint16, vals [3][2]uint32) ifdEntry {
	b := make([]byte, 0, 24)
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint32(b, v[0])
		b = binary.LittleEndian.AppendUint32(b, v[1])
	}
	return ifdEntry{tag: tag, typ: typeRational, count: 3, data: b}
}

func ifdSize(entries []ifdEntry) uint32 {
	size := uint32(2 + 12*len(entries) + 4)
	for _, e := range entries {
		if len(e.data) > 4 {
			size += uint32(len(e.data) + len(e.data)%2)
		}
	}
	return size
}

// BuildTIFF lays out a little-endian TIFF structure holding IFD0 and,
// when needed, an Exif sub-IFD and a GPS sub-IFD.
func BuildTIFF(meta EXIF) []byte {
	var ifd0, exifIFD, gpsIFD []ifdEntry

	if meta.DateTime != "" {
		ifd0 = append(ifd0, asciiEntry(tagDateTime, meta.DateTime))
	}
	if meta.DateTimeOriginal != "" {
		exifIFD = append(exifIFD, asciiEntry(tagDateTimeOriginal, meta.DateTimeOriginal))
	}
	if meta.GPS != nil {
		if meta.GPS.LatRef != "" {
			gpsIFD = append(gpsIFD, asciiEntry(tagGPSLatRef, meta.GPS.LatRef))
		}
		gpsIFD = append(gpsIFD, rationalEntry(tagGPSLat, meta.GPS.Lat))
		if meta.GPS.LonRef != "" {
			gpsIFD = append(gpsIFD, asciiEntry(tagGPSLonRef, meta.GPS.LonRef))
		}
		gpsIFD = append(gpsIFD, rationalEntry(tagGPSLon, meta.GPS.Lon))
	}

	// pointer entries are fixed-size, so IFD0's size is known before their values
	if len(exifIFD) > 0 {
		ifd0 = append(ifd0, longEntry(tagExifPointer, 0))
	}
	if len(gpsIFD) > 0 {
		ifd0 = append(ifd0, longEntry(tagGPSPointer, 0))
	}

	const ifd0Offset = 8
	exifOffset := ifd0Offset + ifdSize(ifd0)
	gpsOffset := exifOffset + ifdSize(exifIFD)
	if len(exifIFD) == 0 {
		gpsOffset = exifOffset
	}
	for i := range ifd0 {
		switch ifd0[i].tag {
		case tagExifPointer:
			binary.LittleEndian.PutUint32(ifd0[i].data, exifOffset)
		case tagGPSPointer:
			binary.LittleEndian.PutUint32(ifd0[i].data, gpsOffset)
		}
	}

	out := []byte{'I', 'I', 0x2A, 0x00, ifd0Offset, 0, 0, 0}
	out = appendIFD(out, ifd0Offset, ifd0)
	if len(exifIFD) > 0 {
		out = appendIFD(out, exifOffset, exifIFD)
	}
	if len(gpsIFD) > 0 {
		out = appendIFD(out, gpsOffset, gpsIFD)
	}
	return out
}

func appendIFD(out []byte, offset uint32, entries []ifdEntry) []byte {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	dataOffset := offset + uint32(2+12*len(entries)+4)
	var dataArea []byte

	out = binary.LittleEndian.AppendUint16(out, uint16(len(entries)))
	for _, e := range entries {
		out = binary.LittleEndian.AppendUint16(out, e.tag)
		out = binary.LittleEndian.AppendUint16(out, e.typ)
		out = binary.LittleEndian.AppendUint32(out, e.count)
		if len(e.data) <= 4 {
			inline := make([]byte, 4)
			copy(inline, e.data)
			out = append(out, inline...)
			continue
		}
		out = binary.LittleEndian.AppendUint32(out, dataOffset+uint32(len(dataArea)))
		dataArea = append(dataArea, e.data...)
		if len(e.data)%2 == 1 {
			dataArea = append(dataArea, 0)
		}
	}
	out = binary.LittleEndian.AppendUint32(out, 0)
	return append(out, dataArea...)
}
