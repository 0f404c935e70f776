// Package geotz resolves coordinates to IANA zones and renders local times.
package geotz

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ringsaturn/tzf"

	"github.com/starford/keepsake/internal/models"
)

// DefaultZone is used when no zone can be determined for a location.
const DefaultZone = "America/Denver"

// LocalLayout is the exiftool local date/time layout.
const LocalLayout = "2006:01:02 15:04:05"

// Finder maps coordinates to an IANA zone name. An empty result means none.
type Finder interface {
	TimezoneFor(lat, lon float64) string
}

// TZF is a Finder backed by the tzf polygon database.
type TZF struct {
	f tzf.F
}

// NewTZF loads the embedded tzf dataset.
func NewTZF() (*TZF, error) {
	f, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, fmt.Errorf("geotz: load finder: %w", err)
	}
	return &TZF{f: f}, nil
}

// TimezoneFor implements Finder.
func (t *TZF) TimezoneFor(lat, lon float64) string {
	return t.f.GetTimezoneName(lon, lat)
}

// Localized is the local rendering of a UTC instant.
type Localized struct {
	Local    string // LocalLayout
	Offset   string // ±HH:MM
	Zone     string
	Fallback bool
}

// Localizer renders UTC instants in the zone of a location.
type Localizer struct {
	finder   Finder
	fallback *time.Location
	logger   *slog.Logger
}

// NewLocalizer creates a Localizer. defaultZone must load via time.LoadLocation.
func NewLocalizer(finder Finder, defaultZone string, logger *slog.Logger) (*Localizer, error) {
	if defaultZone == "" {
		defaultZone = DefaultZone
	}
	loc, err := time.LoadLocation(defaultZone)
	if err != nil {
		return nil, fmt.Errorf("geotz: load default zone %q: %w", defaultZone, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Localizer{finder: finder, fallback: loc, logger: logger.With(slog.String("component", "geotz"))}, nil
}

// DefaultZone returns the configured fallback zone name.
func (l *Localizer) DefaultZone() string {
	return l.fallback.String()
}

// Localize renders utc in the zone found for c. The default zone is used
// when c is exactly (0,0), the lookup finds nothing, or the zone fails to load.
func (l *Localizer) Localize(utc time.Time, c models.Coordinates) Localized {
	loc, fallback := l.zoneFor(c)
	if fallback {
		l.logger.Debug("no zone for location, using default",
			slog.Float64("lat", c.Lat),
			slog.Float64("lon", c.Lon),
			slog.String("zone", loc.String()),
		)
	}
	local := utc.In(loc)
	return Localized{
		Local:    local.Format(LocalLayout),
		Offset:   FormatOffset(local),
		Zone:     loc.String(),
		Fallback: fallback,
	}
}

func (l *Localizer) zoneFor(c models.Coordinates) (*time.Location, bool) {
	if c.IsZero() || l.finder == nil {
		return l.fallback, true
	}
	name := l.finder.TimezoneFor(c.Lat, c.Lon)
	if name == "" {
		return l.fallback, true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return l.fallback, true
	}
	return loc, false
}

// FormatOffset renders t's zone offset as a signed ±HH:MM string.
func FormatOffset(t time.Time) string {
	return t.Format("-07:00")
}
