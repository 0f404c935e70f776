// Package extract normalizes raw exiftool tags into comparable metadata.
package extract

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/starford/keepsake/internal/exiftool"
	"github.com/starford/keepsake/internal/models"
)

// ExifLayout is the exiftool date/time layout.
const ExifLayout = "2006:01:02 15:04:05"

// consistencyTolerance bounds how far coordinate sources may disagree.
const consistencyTolerance = 0.0001

var (
	datePattern   = regexp.MustCompile(`^(\d{4}:\d{2}:\d{2} \d{2}:\d{2}:\d{2})(?:\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	offsetPattern = regexp.MustCompile(`^[+-]\d{2}:\d{2}$`)
)

// Extractor reads a file's tags and normalizes them.
type Extractor struct {
	reader exiftool.Reader
}

// New creates an Extractor over the given tag reader.
func New(reader exiftool.Reader) *Extractor {
	return &Extractor{reader: reader}
}

// Extract reads absPath and normalizes its tags. The media kind comes from
// the file extension.
func (x *Extractor) Extract(ctx context.Context, absPath string) (models.ExtractedMetadata, error) {
	tags, err := x.reader.ReadTags(ctx, absPath)
	if err != nil {
		return models.ExtractedMetadata{}, fmt.Errorf("extract: read %s: %w", filepath.Base(absPath), err)
	}
	return FromTags(absPath, tags), nil
}

// FromTags normalizes a raw tag map using the fixed per-kind source policy:
// videos use QuickTime tags, images use EXIF tags.
func FromTags(path string, tags map[string]string) models.ExtractedMetadata {
	md := models.ExtractedMetadata{
		Path:      path,
		RawTags:   tags,
		MediaType: models.MediaTypeFromExtension(filepath.Ext(path)),
	}

	switch md.MediaType {
	case models.MediaVideo:
		if t, off, ok := parseQuickTimeDate(tags[exiftool.TagQTCreationDate]); ok {
			md.UTCInstant = &t
			md.UTCOffset = off
		}
		if lat, lon, ok := parseCoordinatePair(tags[exiftool.TagQTGPSCoordinates]); ok {
			md.Latitude, md.Longitude = &lat, &lon
		}
	case models.MediaImage:
		off := strings.TrimSpace(tags[exiftool.TagOffsetTimeOriginal])
		if offsetPattern.MatchString(off) {
			md.UTCOffset = off
			if t, ok := parseLocalWithOffset(tags[exiftool.TagDateTimeOriginal], off); ok {
				md.UTCInstant = &t
			}
		}
		if lat, lon, ok := exifCoordinates(tags); ok {
			md.Latitude, md.Longitude = &lat, &lon
		}
	}

	md.CoordinatesConsistent = coordinatesConsistent(tags)
	return md
}

// parseQuickTimeDate strips the trailing offset token from a QuickTime date
// and reads the remainder as UTC. The stripped token is returned as offset.
func parseQuickTimeDate(s string) (time.Time, string, bool) {
	m := datePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, "", false
	}
	t, err := time.ParseInLocation(ExifLayout, m[1], time.UTC)
	if err != nil {
		return time.Time{}, "", false
	}
	off := m[2]
	if off == "Z" {
		off = "+00:00"
	}
	return t, off, true
}

// parseLocalWithOffset reads an EXIF local date/time at the given offset and
// returns the UTC instant.
func parseLocalWithOffset(s, offset string) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, false
	}
	secs, ok := offsetSeconds(offset)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(ExifLayout, m[1], time.FixedZone("", secs))
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func offsetSeconds(off string) (int, bool) {
	if !offsetPattern.MatchString(off) {
		return 0, false
	}
	h := int(off[1]-'0')*10 + int(off[2]-'0')
	m := int(off[4]-'0')*10 + int(off[5]-'0')
	secs := h*3600 + m*60
	if off[0] == '-' {
		secs = -secs
	}
	return secs, true
}

func exifCoordinates(tags map[string]string) (float64, float64, bool) {
	lat, ok1 := parseDMS(tags[exiftool.TagGPSLatitude], tags[exiftool.TagGPSLatitudeRef])
	lon, ok2 := parseDMS(tags[exiftool.TagGPSLongitude], tags[exiftool.TagGPSLongitudeRef])
	return lat, lon, ok1 && ok2
}

func xmpCoordinates(tags map[string]string) (float64, float64, bool) {
	lat, ok1 := ParseDMS(tags[exiftool.TagXMPGPSLatitude])
	lon, ok2 := ParseDMS(tags[exiftool.TagXMPGPSLongitude])
	return lat, lon, ok1 && ok2
}

// parseCoordinatePair splits a QuickTime "lat, lon[, alt]" DMS value.
func parseCoordinatePair(s string) (float64, float64, bool) {
	parts := strings.Split(s, ", ")
	if len(parts) < 2 {
		return 0, 0, false
	}
	lat, ok1 := ParseDMS(parts[0])
	lon, ok2 := ParseDMS(parts[1])
	return lat, lon, ok1 && ok2
}

// coordinatesConsistent reports whether at least one coordinate source is
// present and all present sources agree.
func coordinatesConsistent(tags map[string]string) bool {
	type pair struct{ lat, lon float64 }
	var sources []pair
	if lat, lon, ok := exifCoordinates(tags); ok {
		sources = append(sources, pair{lat, lon})
	}
	if lat, lon, ok := parseCoordinatePair(tags[exiftool.TagQTGPSCoordinates]); ok {
		sources = append(sources, pair{lat, lon})
	}
	if lat, lon, ok := xmpCoordinates(tags); ok {
		sources = append(sources, pair{lat, lon})
	}
	if len(sources) == 0 {
		return false
	}
	for _, p := range sources[1:] {
		if math.Abs(p.lat-sources[0].lat) > consistencyTolerance ||
			math.Abs(p.lon-sources[0].lon) > consistencyTolerance {
			return false
		}
	}
	return true
}
