package api

import (
	"github.com/starford/keepsake/internal/index"
	"github.com/starford/keepsake/internal/reportservice"
)

// RunDetail is a run with its counts (aliased from the domain layer).
type RunDetail = reportservice.RunDetail

// FailureList groups the failures of a run (aliased from the domain layer).
type FailureList = reportservice.FailureList

// RunListResponse wraps paginated run listings.
type RunListResponse struct {
	Runs  []index.RunRow `json:"runs"`
	Total int            `json:"total"`
}

// ReportListResponse wraps paginated report listings.
type ReportListResponse struct {
	RunID   string            `json:"run_id,omitempty"`
	Reports []index.ReportRow `json:"reports"`
	Total   int               `json:"total"`
}
