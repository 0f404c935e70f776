// Package testutil provides shared test helpers for archives, databases and
// the external metadata collaborators.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/starford/keepsake/internal/geotz"
	"github.com/starford/keepsake/internal/index"
	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "keepsake-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestArchive creates a temporary download directory with a storage.Provider.
func TestArchive(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Zones is a geotz.Finder answering exact coordinate matches.
type Zones map[models.Coordinates]string

// TimezoneFor implements geotz.Finder.
func (z Zones) TimezoneFor(lat, lon float64) string {
	return z[models.Coordinates{Lat: lat, Lon: lon}]
}

// Localizer returns a geotz.Localizer over finder with the default fallback zone.
func Localizer(t *testing.T, finder geotz.Finder) *geotz.Localizer {
	t.Helper()
	l, err := geotz.NewLocalizer(finder, geotz.DefaultZone, nil)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

// Record builds a downloadable manifest record.
func Record(index int, at time.Time, mt models.MediaType, lat, lon float64) models.ManifestRecord {
	return models.ManifestRecord{
		Index:        index,
		DownloadLink: "https://example.invalid/dl/" + at.Format("150405") + "/" + string(rune('a'+index%26)),
		CapturedAt:   at,
		Location:     &models.Coordinates{Lat: lat, Lon: lon},
		MediaType:    mt,
	}
}
