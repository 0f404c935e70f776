package models

import "time"

// MediaFile is a media file found in the download directory.
type MediaFile struct {
	Path      string    `json:"path"` // relative to the download directory
	Stem      string    `json:"stem"`
	MediaType MediaType `json:"media_type"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
}

// ExtractedMetadata is the normalized view of a file's embedded tags.
type ExtractedMetadata struct {
	Path                  string            `json:"path"`
	RawTags               map[string]string `json:"raw_tags,omitempty"`
	MediaType             MediaType         `json:"media_type"`
	Latitude              *float64          `json:"latitude,omitempty"`
	Longitude             *float64          `json:"longitude,omitempty"`
	UTCInstant            *time.Time        `json:"utc_instant,omitempty"`
	UTCOffset             string            `json:"utc_offset,omitempty"`
	CoordinatesConsistent bool              `json:"coordinates_consistent"`
}

// DiscrepancyReport compares one manifest record against its file.
type DiscrepancyReport struct {
	Path        string `json:"path"`
	Stem        string `json:"stem"`
	Sequence    int    `json:"sequence"`
	RecordIndex int    `json:"record_index"`

	ExpectedMediaType MediaType `json:"expected_media_type"`
	ExpectedUTC       time.Time `json:"expected_utc"`
	ExpectedLatitude  float64   `json:"expected_latitude"`
	ExpectedLongitude float64   `json:"expected_longitude"`
	ExpectedOffset    string    `json:"expected_offset"`
	ExpectedZone      string    `json:"expected_zone"`

	ActualMediaType MediaType  `json:"actual_media_type"`
	ActualUTC       *time.Time `json:"actual_utc,omitempty"`
	ActualLatitude  *float64   `json:"actual_latitude,omitempty"`
	ActualLongitude *float64   `json:"actual_longitude,omitempty"`
	ActualOffset    string     `json:"actual_offset,omitempty"`

	UTCDiffSeconds        *int64 `json:"utc_diff_seconds,omitempty"`
	CoordinatesConsistent bool   `json:"coordinates_consistent"`

	MediaTypeMismatch bool `json:"media_type_mismatch"`
	UTCMismatch       bool `json:"utc_mismatch"`
	LatitudeMismatch  bool `json:"latitude_mismatch"`
	LongitudeMismatch bool `json:"longitude_mismatch"`
	OffsetMismatch    bool `json:"offset_mismatch"`
	NeedsFix          bool `json:"needs_fix"`
}

// Flags returns the names of the checks that failed.
func (r DiscrepancyReport) Flags() []string {
	var out []string
	if r.MediaTypeMismatch {
		out = append(out, "media_type")
	}
	if r.UTCMismatch {
		out = append(out, "utc")
	}
	if r.LatitudeMismatch {
		out = append(out, "latitude")
	}
	if r.LongitudeMismatch {
		out = append(out, "longitude")
	}
	if r.OffsetMismatch {
		out = append(out, "offset")
	}
	return out
}

// JoinFailureKind classifies a manifest/file join failure.
type JoinFailureKind string

// Join failure kinds.
const (
	JoinMissingFile      JoinFailureKind = "missing_file"
	JoinUnmanifestedFile JoinFailureKind = "unmanifested_file"
)

// JoinFailure records a record without a file or a file without a record.
type JoinFailure struct {
	Kind        JoinFailureKind `json:"kind"`
	Path        string          `json:"path"`
	RecordIndex int             `json:"record_index"` // -1 for unmanifested files
}

// CorrectionPlan holds the target tag values for one asset.
type CorrectionPlan struct {
	SourcePath          string    `json:"source_path"`
	TargetPath          string    `json:"target_path"`
	TargetUTC           time.Time `json:"target_utc"`
	TargetLocalDateTime string    `json:"target_local_datetime"`
	TargetOffset        string    `json:"target_offset"`
	TargetZone          string    `json:"target_zone"`
	ZoneFallback        bool      `json:"zone_fallback"`
	TargetLatitude      float64   `json:"target_latitude"`
	TargetLongitude     float64   `json:"target_longitude"`
	TargetMediaType     MediaType `json:"target_media_type"`
}

// NeedsRename reports whether the file extension must change.
func (p CorrectionPlan) NeedsRename() bool {
	return p.SourcePath != p.TargetPath
}

// Failure is a per-asset failure surfaced in run summaries.
type Failure struct {
	Source string `json:"source"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error"`
}
