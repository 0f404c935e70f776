package summary

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/starford/keepsake/internal/correct"
	"github.com/starford/keepsake/internal/download"
	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/reconcile"
)

// maxListed caps failure and discrepancy tables; the rest is counted.
const maxListed = 50

// Printer writes run summaries to w.
type Printer struct {
	w      io.Writer
	styled bool
}

// NewPrinter creates a Printer. Styling follows whether w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, styled: IsTerminal(w)}
}

// NewPlainPrinter creates a Printer that never styles output.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) table(headers []string, rows [][]string, aligns []Align) {
	fmt.Fprintln(p.w, RenderTable(headers, rows, aligns, p.styled))
}

func (p *Printer) title(s string) {
	fmt.Fprintf(p.w, "\n%s\n", s)
}

// Download prints the result of a download run.
func (p *Printer) Download(res *download.Result) {
	s := res.Stats
	p.title("Download summary")
	p.table(
		[]string{"Metric", "Value"},
		[][]string{
			{"Records", humanize.Comma(int64(s.Total))},
			{"Downloaded", humanize.Comma(int64(s.Downloaded))},
			{"Skipped", humanize.Comma(int64(s.Skipped))},
			{"Failed", humanize.Comma(int64(s.Failed))},
			{"Bytes", humanize.Bytes(uint64(s.Bytes))},
			{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
			{"Throughput", humanize.Bytes(uint64(s.Throughput())) + "/s"},
		},
		[]Align{AlignLeft, AlignRight},
	)
	p.failures(res.Failures)
}

func (p *Printer) failures(failures []models.Failure) {
	if len(failures) == 0 {
		return
	}
	p.title(fmt.Sprintf("Failures (%d)", len(failures)))
	rows := make([][]string, 0, min(len(failures), maxListed))
	for i, f := range failures {
		if i == maxListed {
			break
		}
		rows = append(rows, []string{f.Source, truncate(f.URL, 60), truncate(f.Error, 80)})
	}
	p.table([]string{"Asset", "URL", "Error"}, rows, nil)
	p.more(len(failures))
}

// Reconcile prints the result of a reconciliation pass.
func (p *Printer) Reconcile(res *reconcile.Result) {
	needs := res.NeedsFix()
	var images, videos, missing, unmanifested int
	for _, r := range needs {
		switch r.ExpectedMediaType {
		case models.MediaImage:
			images++
		case models.MediaVideo:
			videos++
		}
	}
	for _, jf := range res.JoinFailures {
		if jf.Kind == models.JoinMissingFile {
			missing++
		} else {
			unmanifested++
		}
	}

	p.title("Reconciliation summary")
	p.table(
		[]string{"Metric", "Value"},
		[][]string{
			{"Checked", strconv.Itoa(len(res.Reports))},
			{"Needs fix", strconv.Itoa(len(needs))},
			{"Image errors", strconv.Itoa(images)},
			{"Video errors", strconv.Itoa(videos)},
			{"Missing files", strconv.Itoa(missing)},
			{"Unmanifested files", strconv.Itoa(unmanifested)},
			{"Unreadable files", strconv.Itoa(len(res.Errors))},
		},
		[]Align{AlignLeft, AlignRight},
	)

	if len(needs) > 0 {
		p.title("Discrepancies")
		rows := make([][]string, 0, min(len(needs), maxListed))
		for i, r := range needs {
			if i == maxListed {
				break
			}
			rows = append(rows, []string{r.Path, string(r.ExpectedMediaType), strings.Join(r.Flags(), ",")})
		}
		p.table([]string{"File", "Manifest type", "Flags"}, rows, nil)
		p.more(len(needs))
	}
	p.failures(res.Errors)
}

// Fix prints the result of a correction pass.
func (p *Printer) Fix(sum correct.Summary, outcomes []correct.Outcome) {
	p.title("Fix summary")
	p.table(
		[]string{"Metric", "Value"},
		[][]string{
			{"Planned", strconv.Itoa(sum.Planned)},
			{"Image errors", strconv.Itoa(sum.ImageErrors)},
			{"Video errors", strconv.Itoa(sum.VideoErrors)},
			{"Applied", strconv.Itoa(sum.Applied)},
			{"Renamed", strconv.Itoa(sum.Renamed)},
			{"Failed", strconv.Itoa(sum.Failed)},
			{"Skipped", strconv.Itoa(sum.Skipped)},
		},
		[]Align{AlignLeft, AlignRight},
	)
	var failed []models.Failure
	for _, o := range outcomes {
		if o.Status == correct.StatusFailed {
			failed = append(failed, models.Failure{Source: o.Plan.SourcePath, Error: o.Error})
		}
	}
	p.failures(failed)
}

// Status prints one doctor-style check line.
func (p *Printer) Status(label string, ok bool, message string) {
	state := "OK"
	color := ansiGreen
	if !ok {
		state = "FAIL"
		color = ansiRed
	}
	line := fmt.Sprintf("  %-20s [%s] %s", label+":", state, message)
	if p.styled {
		line = color + line + ansiReset
	}
	fmt.Fprintln(p.w, strings.TrimRight(line, " "))
}

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

func (p *Printer) more(total int) {
	if total > maxListed {
		fmt.Fprintf(p.w, "... and %d more\n", total-maxListed)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
