package download

import (
	"time"

	"github.com/starford/keepsake/internal/models"
)

// Stats summarises one download run.
type Stats struct {
	Total      int           `json:"total"`
	Downloaded int           `json:"downloaded"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Bytes      int64         `json:"bytes"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Throughput returns bytes per second over the run, or 0 for an instant run.
func (s Stats) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Elapsed.Seconds()
}

// Result is the outcome of Engine.Run.
type Result struct {
	Stats    Stats            `json:"stats"`
	Failures []models.Failure `json:"failures"`
}
