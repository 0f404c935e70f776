package reconcile

import (
	"math"
	"time"

	"github.com/starford/keepsake/internal/geotz"
	"github.com/starford/keepsake/internal/models"
)

// Comparison tolerances.
const (
	UTCToleranceSeconds = 10
	CoordinateTolerance = 0.0001
)

// Check compares one manifest identity against its file's extracted metadata.
// It is pure apart from the zone lookup done by loc.
func Check(id models.AssetIdentity, file models.MediaFile, md models.ExtractedMetadata, loc *geotz.Localizer) models.DiscrepancyReport {
	rec := id.Record
	coords := rec.Coords()
	expectedUTC := rec.CapturedAt.UTC().Truncate(time.Second)
	want := loc.Localize(expectedUTC, coords)

	r := models.DiscrepancyReport{
		Path:                  file.Path,
		Stem:                  id.Stem,
		Sequence:              id.Sequence,
		RecordIndex:           rec.Index,
		ExpectedMediaType:     rec.MediaType,
		ExpectedUTC:           expectedUTC,
		ExpectedLatitude:      coords.Lat,
		ExpectedLongitude:     coords.Lon,
		ExpectedOffset:        want.Offset,
		ExpectedZone:          want.Zone,
		ActualMediaType:       md.MediaType,
		ActualUTC:             md.UTCInstant,
		ActualLatitude:        md.Latitude,
		ActualLongitude:       md.Longitude,
		ActualOffset:          md.UTCOffset,
		CoordinatesConsistent: md.CoordinatesConsistent,
	}

	r.MediaTypeMismatch = rec.MediaType != md.MediaType

	if md.UTCInstant == nil {
		r.UTCMismatch = true
	} else {
		diff := md.UTCInstant.UTC().Truncate(time.Second).Unix() - expectedUTC.Unix()
		if diff < 0 {
			diff = -diff
		}
		r.UTCDiffSeconds = &diff
		r.UTCMismatch = diff > UTCToleranceSeconds
	}

	r.LatitudeMismatch = coordinateMismatch(coords.Lat, md.Latitude)
	r.LongitudeMismatch = coordinateMismatch(coords.Lon, md.Longitude)
	r.OffsetMismatch = md.UTCOffset != want.Offset

	r.NeedsFix = r.MediaTypeMismatch || r.UTCMismatch || r.LatitudeMismatch ||
		r.LongitudeMismatch || r.OffsetMismatch
	return r
}

// coordinateMismatch flags a missing actual value, a difference beyond the
// tolerance, and always the manifest's 0.0 placeholder.
func coordinateMismatch(expected float64, actual *float64) bool {
	if expected == 0 || actual == nil {
		return true
	}
	return math.Abs(*actual-expected) > CoordinateTolerance
}
