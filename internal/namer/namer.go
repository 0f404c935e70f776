// Package namer assigns deterministic, collision-free file names to manifest records.
package namer

import (
	"strings"
	"time"

	"github.com/starford/keepsake/internal/models"
)

// TimestampLayout is the second-resolution layout used in canonical names.
const TimestampLayout = "2006-01-02_15-04-05"

// Letters encodes n with bijective base-26: 0→A, 25→Z, 26→AA, 27→AB.
func Letters(n int) string {
	if n < 0 {
		return ""
	}
	var buf []byte
	for {
		buf = append(buf, byte('A'+n%26))
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// Stem builds the canonical name without extension. The letter suffix is
// present only when more than one record shares the timestamp.
func Stem(ts time.Time, seq int, shared bool) string {
	base := ts.UTC().Format(TimestampLayout)
	if !shared {
		return base
	}
	return base + "-" + Letters(seq)
}

// ExtensionForURL picks the file extension from a resolved asset URL.
func ExtensionForURL(url string) string {
	if strings.Contains(strings.ToLower(url), ".mp4") {
		return models.ExtVideo
	}
	return models.ExtImage
}

// Sequencer hands out per-timestamp sequence indices for one traversal.
// Counters start at zero and advance once per record sharing a timestamp.
type Sequencer struct {
	counts map[string]int
	next   map[string]int
}

// NewSequencer prepares a Sequencer for the given records. The records are
// counted up front so that each identity knows whether its timestamp is shared.
func NewSequencer(records []models.ManifestRecord) *Sequencer {
	s := &Sequencer{
		counts: make(map[string]int),
		next:   make(map[string]int),
	}
	for _, r := range records {
		if !r.Downloadable() {
			continue
		}
		s.counts[key(r.CapturedAt)]++
	}
	return s
}

// Next returns the identity for the next record in traversal order.
func (s *Sequencer) Next(r models.ManifestRecord) models.AssetIdentity {
	k := key(r.CapturedAt)
	seq := s.next[k]
	s.next[k] = seq + 1
	shared := s.counts[k] > 1
	return models.AssetIdentity{
		Record:   r,
		Stem:     Stem(r.CapturedAt, seq, shared),
		Sequence: seq,
		Shared:   shared,
	}
}

// AssignAll traverses records in manifest order and returns one identity per
// downloadable record. Both the download engine and the reconciler use it.
func AssignAll(records []models.ManifestRecord) []models.AssetIdentity {
	seq := NewSequencer(records)
	out := make([]models.AssetIdentity, 0, len(records))
	for _, r := range records {
		if !r.Downloadable() {
			continue
		}
		out = append(out, seq.Next(r))
	}
	return out
}

func key(ts time.Time) string {
	return ts.UTC().Format(TimestampLayout)
}
