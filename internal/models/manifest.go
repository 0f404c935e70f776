package models

import "time"

// Coordinates is a decimal-degree latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether both components are exactly zero.
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// ManifestRecord is one ground-truth entry of the export manifest.
type ManifestRecord struct {
	Index        int          `json:"index"`
	DownloadLink string       `json:"download_link"`
	CapturedAt   time.Time    `json:"captured_at"`
	Location     *Coordinates `json:"location,omitempty"`
	MediaType    MediaType    `json:"media_type"`
}

// Coords returns the record location, or zero coordinates when absent.
// Absent locations are treated like the upstream 0.0 placeholder.
func (r ManifestRecord) Coords() Coordinates {
	if r.Location == nil {
		return Coordinates{}
	}
	return *r.Location
}

// Downloadable reports whether the record has both a link and a timestamp.
func (r ManifestRecord) Downloadable() bool {
	return r.DownloadLink != "" && !r.CapturedAt.IsZero()
}

// AssetIdentity is the deterministic identity assigned to a record.
type AssetIdentity struct {
	Record   ManifestRecord `json:"record"`
	Stem     string         `json:"stem"`
	Sequence int            `json:"sequence"`
	Shared   bool           `json:"shared"`
}

// FileName returns the canonical file name for the given extension.
func (a AssetIdentity) FileName(ext string) string {
	return a.Stem + "." + ext
}

// Candidates returns every canonical file name the asset may live under.
func (a AssetIdentity) Candidates() []string {
	return []string{a.FileName(ExtImage), a.FileName(ExtVideo)}
}

// LegacyCandidates returns the names older archives used for an asset whose
// timestamp is not shared: those always carried the "-A" suffix.
func (a AssetIdentity) LegacyCandidates() []string {
	if a.Shared {
		return nil
	}
	stem := a.Stem + "-A"
	return []string{stem + "." + ExtImage, stem + "." + ExtVideo}
}
