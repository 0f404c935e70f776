// Package correct plans and applies metadata corrections for assets whose
// embedded tags disagree with the manifest.
package correct

import (
	"strconv"

	"github.com/starford/keepsake/internal/exiftool"
	"github.com/starford/keepsake/internal/geotz"
	"github.com/starford/keepsake/internal/models"
)

// utcLayout renders QuickTime UTC dates.
const utcLayout = "2006:01:02 15:04:05"

// Planner derives target tag values from discrepancy reports.
type Planner struct {
	localizer *geotz.Localizer
}

// NewPlanner creates a Planner.
func NewPlanner(localizer *geotz.Localizer) *Planner {
	return &Planner{localizer: localizer}
}

// Plan builds the correction plan for one report. The target file name keeps
// the stem and takes the extension of the manifest media type.
func (p *Planner) Plan(rep models.DiscrepancyReport) models.CorrectionPlan {
	coords := models.Coordinates{Lat: rep.ExpectedLatitude, Lon: rep.ExpectedLongitude}
	loc := p.localizer.Localize(rep.ExpectedUTC, coords)

	target := rep.Path
	if ext := rep.ExpectedMediaType.Extension(); ext != "" {
		target = rep.Stem + "." + ext
	}
	return models.CorrectionPlan{
		SourcePath:          rep.Path,
		TargetPath:          target,
		TargetUTC:           rep.ExpectedUTC.UTC(),
		TargetLocalDateTime: loc.Local,
		TargetOffset:        loc.Offset,
		TargetZone:          loc.Zone,
		ZoneFallback:        loc.Fallback,
		TargetLatitude:      rep.ExpectedLatitude,
		TargetLongitude:     rep.ExpectedLongitude,
		TargetMediaType:     rep.ExpectedMediaType,
	}
}

// TagsFor returns the ordered tag assignments for a plan. Coordinates are
// omitted entirely when both are exactly zero.
func TagsFor(plan models.CorrectionPlan) []exiftool.Tag {
	tags := []exiftool.Tag{
		{Name: exiftool.TagIFD0DateTime, Value: plan.TargetLocalDateTime},
		{Name: exiftool.TagDateTimeOriginal, Value: plan.TargetLocalDateTime},
		{Name: exiftool.TagDateTimeDigitized, Value: plan.TargetLocalDateTime},
		{Name: exiftool.TagOffsetTimeOriginal, Value: plan.TargetOffset},
	}
	withGPS := plan.TargetLatitude != 0 || plan.TargetLongitude != 0
	lat, lon := plan.TargetLatitude, plan.TargetLongitude
	latRef, lonRef := refs(lat, lon)

	if plan.TargetMediaType == models.MediaVideo {
		utc := plan.TargetUTC.UTC().Format(utcLayout)
		tags = append(tags,
			// CreationDate carries the offset so a read strips it back to UTC.
			exiftool.Tag{Name: exiftool.TagQTCreationDate, Value: utc + plan.TargetOffset},
			exiftool.Tag{Name: exiftool.TagQTTrackCreateDate, Value: utc},
			exiftool.Tag{Name: exiftool.TagQTMediaCreateDate, Value: utc},
			exiftool.Tag{Name: exiftool.TagQTTimeZone, Value: plan.TargetOffset},
		)
		if withGPS {
			tags = append(tags,
				exiftool.Tag{Name: exiftool.TagQTGPSCoordinates, Value: num(abs(lat)) + " " + latRef + ", " + num(abs(lon)) + " " + lonRef},
				exiftool.Tag{Name: exiftool.TagXMPGPSLatitude, Value: num(lat)},
				exiftool.Tag{Name: exiftool.TagXMPGPSLongitude, Value: num(lon)},
				exiftool.Tag{Name: exiftool.TagQTLocationLatitude, Value: num(lat)},
				exiftool.Tag{Name: exiftool.TagQTLocationLongitude, Value: num(lon)},
			)
		}
	}
	if withGPS {
		tags = append(tags,
			exiftool.Tag{Name: exiftool.TagGPSLatitude, Value: num(abs(lat))},
			exiftool.Tag{Name: exiftool.TagGPSLongitude, Value: num(abs(lon))},
			exiftool.Tag{Name: exiftool.TagGPSLatitudeRef, Value: latRef},
			exiftool.Tag{Name: exiftool.TagGPSLongitudeRef, Value: lonRef},
		)
	}
	return tags
}

func refs(lat, lon float64) (string, string) {
	latRef, lonRef := "N", "E"
	if lat < 0 {
		latRef = "S"
	}
	if lon < 0 {
		lonRef = "W"
	}
	return latRef, lonRef
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
