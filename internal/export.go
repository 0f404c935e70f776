package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/keepsake/internal/models"
)

// ExportEntry pairs a report that needs a fix with its correction plan.
type ExportEntry struct {
	Report models.DiscrepancyReport `json:"report"`
	Plan   models.CorrectionPlan    `json:"plan"`
}

// Export is the needs-fix document written after reconcile and fix runs.
type Export struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Count       int           `json:"count"`
	Entries     []ExportEntry `json:"entries"`
}

// writeExport replaces the document at path. plans[i] belongs to reports[i].
// An empty path disables the export.
func writeExport(path, runID string, reports []models.DiscrepancyReport, plans []models.CorrectionPlan) error {
	if path == "" {
		return nil
	}
	doc := Export{
		RunID:       runID,
		GeneratedAt: nowUTC(),
		Count:       len(reports),
		Entries:     make([]ExportEntry, 0, len(reports)),
	}
	for i, r := range reports {
		doc.Entries = append(doc.Entries, ExportEntry{Report: r, Plan: plans[i]})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".needs-fix-*.json")
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("export: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// ReadExport loads a document written by a reconcile or fix run.
func ReadExport(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	var doc Export
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("export: decode: %w", err)
	}
	return &doc, nil
}
