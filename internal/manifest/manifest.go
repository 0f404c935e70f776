// Package manifest loads the export manifest into ground-truth records.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/keepsake/internal/models"
)

// DateLayout is the manifest's capture timestamp layout.
const DateLayout = "2006-01-02 15:04:05 UTC"

// coordinatePlaces is the precision kept for manifest coordinates.
const coordinatePlaces = 5

// entry mirrors one element of the "Saved Media" array.
type entry struct {
	Date         string `json:"Date"`
	MediaType    string `json:"Media Type"`
	Location     string `json:"Location"`
	DownloadLink string `json:"Download Link"`
}

type document struct {
	SavedMedia []entry `json:"Saved Media"`
}

// Validate checks the fields a record needs to be downloadable and typed.
func (e entry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Date, validation.Required, validation.Date(DateLayout)),
		validation.Field(&e.DownloadLink, validation.Required),
		validation.Field(&e.MediaType, validation.In("Image", "Video")),
	)
}

// Problem describes a malformed field of one manifest entry.
type Problem struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return fmt.Sprintf("entry %d: %s: %s", p.Index, p.Field, p.Message)
}

// Manifest is the loaded, immutable list of records.
type Manifest struct {
	Records  []models.ManifestRecord
	Problems []Problem
}

// Downloadable returns the number of records with both a link and a date.
func (m *Manifest) Downloadable() int {
	n := 0
	for _, r := range m.Records {
		if r.Downloadable() {
			n++
		}
	}
	return n
}

// LoadFile reads and parses the manifest at path.
func LoadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a manifest. Only an unreadable or structurally invalid
// document is an error; malformed fields become Problems. Entries keep
// their position so naming stays aligned with the export.
func Load(r io.Reader) (*Manifest, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if doc.SavedMedia == nil {
		return nil, errors.New(`manifest: missing "Saved Media" array`)
	}

	m := &Manifest{Records: make([]models.ManifestRecord, 0, len(doc.SavedMedia))}
	for i, e := range doc.SavedMedia {
		m.Problems = append(m.Problems, validationProblems(i, e)...)

		rec := models.ManifestRecord{
			Index:        i,
			DownloadLink: strings.TrimSpace(e.DownloadLink),
			MediaType:    models.ParseMediaType(e.MediaType),
		}
		if ts, err := time.ParseInLocation(DateLayout, strings.TrimSpace(e.Date), time.UTC); err == nil {
			rec.CapturedAt = ts
		}
		if strings.TrimSpace(e.Location) != "" {
			c, err := ParseLocation(e.Location)
			if err != nil {
				m.Problems = append(m.Problems, Problem{Index: i, Field: "Location", Message: err.Error()})
			} else {
				rec.Location = &c
			}
		}
		m.Records = append(m.Records, rec)
	}
	return m, nil
}

func validationProblems(i int, e entry) []Problem {
	err := e.Validate()
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []Problem{{Index: i, Field: "entry", Message: err.Error()}}
	}
	// Keys are the JSON field names.
	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Problem, 0, len(keys))
	for _, k := range keys {
		out = append(out, Problem{Index: i, Field: k, Message: verrs[k].Error()})
	}
	return out
}

// ParseLocation parses "Latitude, Longitude: <lat>, <lon>" into coordinates
// rounded to five decimal places.
func ParseLocation(s string) (models.Coordinates, error) {
	_, coords, ok := strings.Cut(s, ": ")
	if !ok {
		return models.Coordinates{}, fmt.Errorf("unrecognized location %q", s)
	}
	latStr, lonStr, ok := strings.Cut(coords, ", ")
	if !ok {
		return models.Coordinates{}, fmt.Errorf("unrecognized location %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("longitude: %w", err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return models.Coordinates{}, fmt.Errorf("coordinates out of range: %v, %v", lat, lon)
	}
	return models.Coordinates{Lat: round(lat), Lon: round(lon)}, nil
}

func round(v float64) float64 {
	p := math.Pow(10, coordinatePlaces)
	return math.Round(v*p) / p
}
