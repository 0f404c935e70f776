package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/keepsake/internal/models"
)

const sample = `{
  "Saved Media": [
    {"Date": "2023-06-01 12:00:00 UTC", "Media Type": "Image", "Location": "Latitude, Longitude: 40.0150012, -105.27049", "Download Link": "https://x/1"},
    {"Date": "2023-06-01 12:00:00 UTC", "Media Type": "Video", "Location": "", "Download Link": "https://x/2"},
    {"Date": "not a date", "Media Type": "Image", "Location": "Latitude, Longitude: 0.0, 0.0", "Download Link": "https://x/3"},
    {"Date": "2023-06-02 08:30:00 UTC", "Media Type": "Sticker", "Location": "somewhere", "Download Link": ""}
  ]
}`

func TestLoad(t *testing.T) {
	m, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Records) != 4 {
		t.Fatalf("records = %d, want 4", len(m.Records))
	}

	r0 := m.Records[0]
	if !r0.CapturedAt.Equal(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("r0 time = %v", r0.CapturedAt)
	}
	if r0.Location == nil || r0.Location.Lat != 40.015 || r0.Location.Lon != -105.27049 {
		t.Errorf("r0 location = %+v", r0.Location)
	}
	if r0.MediaType != models.MediaImage || r0.Index != 0 {
		t.Errorf("r0 = %+v", r0)
	}

	if m.Records[1].Location != nil || m.Records[1].MediaType != models.MediaVideo {
		t.Errorf("r1 = %+v", m.Records[1])
	}
	if m.Records[2].Downloadable() {
		t.Error("record with bad date should not be downloadable")
	}
	if m.Records[2].Location == nil || !m.Records[2].Location.IsZero() {
		t.Errorf("r2 location = %+v", m.Records[2].Location)
	}
	if m.Records[3].MediaType != models.MediaUnknown || m.Records[3].Downloadable() {
		t.Errorf("r3 = %+v", m.Records[3])
	}
	if m.Downloadable() != 2 {
		t.Errorf("Downloadable = %d, want 2", m.Downloadable())
	}

	fields := map[string]bool{}
	for _, p := range m.Problems {
		fields[p.String()] = true
	}
	for _, want := range []string{"entry 2: Date", "entry 3: Media Type", "entry 3: Download Link", "entry 3: Location"} {
		found := false
		for f := range fields {
			if strings.HasPrefix(f, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("missing problem %q in %v", want, m.Problems)
		}
	}
}

func TestLoad_Fatal(t *testing.T) {
	if _, err := Load(strings.NewReader("{")); err == nil {
		t.Error("expected error for truncated JSON")
	}
	if _, err := Load(strings.NewReader(`{"Other": []}`)); err == nil {
		t.Error("expected error for missing Saved Media")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories_history.json")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(m.Records) != 4 {
		t.Errorf("records = %d", len(m.Records))
	}
}

func TestParseLocation(t *testing.T) {
	c, err := ParseLocation("Latitude, Longitude: -33.8688, 151.2093")
	if err != nil {
		t.Fatalf("ParseLocation: %v", err)
	}
	if c.Lat != -33.8688 || c.Lon != 151.2093 {
		t.Errorf("c = %+v", c)
	}
	for _, bad := range []string{"40.1, -105.2", "Latitude, Longitude: abc, 1", "Latitude, Longitude: 95, 1"} {
		if _, err := ParseLocation(bad); err == nil {
			t.Errorf("ParseLocation(%q) should fail", bad)
		}
	}
}
