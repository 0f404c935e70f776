package geotz

import (
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/starford/keepsake/internal/models"
)

type mapFinder map[models.Coordinates]string

func (m mapFinder) TimezoneFor(lat, lon float64) string {
	return m[models.Coordinates{Lat: lat, Lon: lon}]
}

func newLocalizer(t *testing.T, f Finder) *Localizer {
	t.Helper()
	l, err := NewLocalizer(f, "", nil)
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}
	return l
}

func TestLocalize_ZeroCoordinatesUseDefault(t *testing.T) {
	// The finder would answer for (0,0); the placeholder must still fall back.
	l := newLocalizer(t, mapFinder{{}: "Africa/Abidjan"})
	utc := time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC)

	got := l.Localize(utc, models.Coordinates{})
	if got.Zone != "America/Denver" || !got.Fallback {
		t.Errorf("zone = %q fallback = %v", got.Zone, got.Fallback)
	}
	if got.Offset != "-07:00" {
		t.Errorf("offset = %q, want -07:00 (MST)", got.Offset)
	}
	if got.Local != "2023:01:15 05:00:00" {
		t.Errorf("local = %q", got.Local)
	}
}

func TestLocalize_FoundZone(t *testing.T) {
	berlin := models.Coordinates{Lat: 52.52, Lon: 13.405}
	l := newLocalizer(t, mapFinder{berlin: "Europe/Berlin"})
	utc := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

	got := l.Localize(utc, berlin)
	if got.Zone != "Europe/Berlin" || got.Fallback {
		t.Errorf("zone = %q fallback = %v", got.Zone, got.Fallback)
	}
	if got.Offset != "+02:00" || got.Local != "2023:06:01 14:00:00" {
		t.Errorf("got %+v", got)
	}
}

func TestLocalize_LookupMissFallsBack(t *testing.T) {
	l := newLocalizer(t, mapFinder{})
	got := l.Localize(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC), models.Coordinates{Lat: 10, Lon: -30})
	if !got.Fallback || got.Offset != "-06:00" {
		t.Errorf("got %+v", got)
	}
}

func TestLocalize_UnknownZoneFallsBack(t *testing.T) {
	c := models.Coordinates{Lat: 1, Lon: 1}
	l := newLocalizer(t, mapFinder{c: "Mars/Olympus_Mons"})
	if got := l.Localize(time.Now().UTC(), c); !got.Fallback {
		t.Errorf("got %+v", got)
	}
}

func TestNewLocalizer_BadDefault(t *testing.T) {
	if _, err := NewLocalizer(nil, "Not/AZone", nil); err == nil {
		t.Error("expected error for invalid default zone")
	}
}

func TestFormatOffset(t *testing.T) {
	cases := map[int]string{
		0:                "+00:00",
		-6 * 3600:        "-06:00",
		5*3600 + 30*60:   "+05:30",
		-(9*3600 + 1800): "-09:30",
	}
	for secs, want := range cases {
		ts := time.Date(2023, 1, 1, 0, 0, 0, 0, time.FixedZone("", secs))
		if got := FormatOffset(ts); got != want {
			t.Errorf("FormatOffset(%d) = %q, want %q", secs, got, want)
		}
	}
}

func TestTZF(t *testing.T) {
	f, err := NewTZF()
	if err != nil {
		t.Fatalf("NewTZF: %v", err)
	}
	if got := f.TimezoneFor(39.7392, -104.9903); got != "America/Denver" {
		t.Errorf("Denver lookup = %q", got)
	}
}
