package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/starford/keepsake/internal/exiftool"
	"github.com/starford/keepsake/internal/storage"
)

// FakeExif is an exiftool.ReadWriter that keeps tags as JSON inside the media
// file itself, so tags follow the file across renames. Writes are translated
// the way exiftool renders them on read: decimal coordinates come back as
// degrees/minutes/seconds strings.
type FakeExif struct {
	mu     sync.Mutex
	Writes map[string]int // absolute path -> number of writes
	// FailWrite makes writes to the named base file fail.
	FailWrite map[string]error
}

// NewFakeExif creates an empty FakeExif.
func NewFakeExif() *FakeExif {
	return &FakeExif{Writes: map[string]int{}, FailWrite: map[string]error{}}
}

// ReadTags implements exiftool.Reader.
func (f *FakeExif) ReadTags(_ context.Context, path string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return readTagFile(path)
}

// WriteTags implements exiftool.Writer.
func (f *FakeExif) WriteTags(_ context.Context, path string, tags []exiftool.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailWrite[filepath.Base(path)]; err != nil {
		return err
	}
	current, err := readTagFile(path)
	if err != nil {
		return err
	}
	refs := map[string]string{}
	for _, t := range tags {
		if t.Name == exiftool.TagGPSLatitudeRef || t.Name == exiftool.TagGPSLongitudeRef {
			refs[t.Name] = t.Value
		}
	}
	for _, t := range tags {
		current[t.Name] = render(t, refs)
	}
	f.Writes[path]++
	return writeTagFile(path, current)
}

// WriteCount returns how many writes hit path.
func (f *FakeExif) WriteCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Writes[path]
}

func render(t exiftool.Tag, refs map[string]string) string {
	switch t.Name {
	case exiftool.TagGPSLatitude:
		return decimalToDMS(t.Value, "N", "S", refs[exiftool.TagGPSLatitudeRef])
	case exiftool.TagGPSLongitude:
		return decimalToDMS(t.Value, "E", "W", refs[exiftool.TagGPSLongitudeRef])
	case exiftool.TagXMPGPSLatitude:
		return decimalToDMS(t.Value, "N", "S", "")
	case exiftool.TagXMPGPSLongitude:
		return decimalToDMS(t.Value, "E", "W", "")
	case exiftool.TagQTGPSCoordinates:
		parts := strings.Split(t.Value, ", ")
		if len(parts) != 2 {
			return t.Value
		}
		lat := strings.Fields(parts[0])
		lon := strings.Fields(parts[1])
		if len(lat) != 2 || len(lon) != 2 {
			return t.Value
		}
		return decimalToDMS(lat[0], "N", "S", lat[1]) + ", " + decimalToDMS(lon[0], "E", "W", lon[1])
	}
	return t.Value
}

// decimalToDMS formats a decimal-degree string as exiftool prints it. ref,
// when set, overrides the hemisphere derived from the sign.
func decimalToDMS(value, pos, neg, ref string) string {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	dir := pos
	if v < 0 {
		dir = neg
	}
	if ref != "" {
		dir = strings.ToUpper(ref[:1])
	}
	return FormatDMS(math.Abs(v)) + " " + dir
}

// FormatDMS renders non-negative decimal degrees as `D deg M' S.SS"`.
func FormatDMS(v float64) string {
	deg := math.Floor(v)
	minutes := (v - deg) * 60
	m := math.Floor(minutes)
	s := (minutes - m) * 60
	if math.Round(s*100)/100 >= 60 {
		s = 0
		m++
	}
	if m >= 60 {
		m = 0
		deg++
	}
	return fmt.Sprintf(`%d deg %d' %.2f"`, int(deg), int(m), s)
}

func readTagFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fake exiftool: %w", err)
	}
	tags := map[string]string{}
	if len(data) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("fake exiftool: %s: file format error", filepath.Base(path))
	}
	return tags, nil
}

func writeTagFile(path string, tags map[string]string) error {
	data, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteMedia stores a media file whose embedded tags are tags.
func WriteMedia(t *testing.T, store storage.Provider, name string, tags map[string]string) {
	t.Helper()
	if tags == nil {
		tags = map[string]string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.WriteStream(name, bytes.NewReader(data)); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// ImageTags returns the tags of a correctly tagged image.
func ImageTags(local, offset string, lat, lon float64) map[string]string {
	latRef, lonRef := "N", "E"
	if lat < 0 {
		latRef = "S"
	}
	if lon < 0 {
		lonRef = "W"
	}
	return map[string]string{
		exiftool.TagDateTimeOriginal:   local,
		exiftool.TagOffsetTimeOriginal: offset,
		exiftool.TagGPSLatitude:        FormatDMS(math.Abs(lat)) + " " + latRef,
		exiftool.TagGPSLongitude:       FormatDMS(math.Abs(lon)) + " " + lonRef,
	}
}

// VideoTags returns the tags of a correctly tagged video.
func VideoTags(utc, offset string, lat, lon float64) map[string]string {
	latRef, lonRef := "N", "E"
	if lat < 0 {
		latRef = "S"
	}
	if lon < 0 {
		lonRef = "W"
	}
	return map[string]string{
		exiftool.TagQTCreationDate:   utc + offset,
		exiftool.TagQTGPSCoordinates: FormatDMS(math.Abs(lat)) + " " + latRef + ", " + FormatDMS(math.Abs(lon)) + " " + lonRef,
	}
}
