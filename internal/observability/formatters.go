package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/status"
	"github.com/jonathan/resume-pipeline/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// progressWidth is the number of cells in the progress bar
	progressWidth = 30
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		// Truncate long lines
		if r := []rune(line); len(r) > boxWidth-4 {
			line = string(r[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// progressBar renders pct as a fixed-width bar
func progressBar(pct int) string {
	pct = max(0, min(100, pct))
	filled := pct * progressWidth / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", progressWidth-filled) + fmt.Sprintf("] %3d%%", pct)
}

// PrintJob outputs a human-readable summary of a job's status.
func (p *Printer) PrintJob(view *status.View) {
	if view == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job:      %s\n", view.JobID)
	fmt.Fprintf(&sb, "Status:   %s\n", view.Status)
	if view.Stage != "" {
		fmt.Fprintf(&sb, "Stage:    %s\n", view.Stage)
	}
	fmt.Fprintf(&sb, "Progress: %s\n", progressBar(view.Progress))
	fmt.Fprintf(&sb, "Attempts: %d/%d\n", view.Attempts, view.MaxAttempts)
	if view.CancelRequested && !view.Status.IsTerminal() {
		sb.WriteString("Cancel:   requested\n")
	}
	if view.NextAttemptAt != nil {
		fmt.Fprintf(&sb, "Retry at: %s\n", view.NextAttemptAt.UTC().Format(time.RFC3339))
	}
	if view.Error != nil {
		fmt.Fprintf(&sb, "Error:    [%s] %s\n", view.Error.Kind, view.Error.Message)
	}
	fmt.Fprintf(&sb, "Created:  %s\n", view.CreatedAt.UTC().Format(time.RFC3339))
	if view.CompletedAt != nil {
		fmt.Fprintf(&sb, "Finished: %s (%s)\n",
			view.CompletedAt.UTC().Format(time.RFC3339),
			view.CompletedAt.Sub(view.CreatedAt).Round(time.Second))
	}

	p.printBox("JOB STATUS", sb.String())
}

// PrintArtifacts outputs the artifact versions stored for a job, grouped by type.
func (p *Printer) PrintArtifacts(jobID uuid.UUID, infos []types.ArtifactInfo) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Job: %s\n", jobID)

	if len(infos) == 0 {
		sb.WriteString("\nNo artifacts yet\n")
		p.printBox("ARTIFACTS", sb.String())
		return
	}

	sorted := append([]types.ArtifactInfo(nil), infos...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return typeOrder(sorted[i].Type) < typeOrder(sorted[j].Type)
		}
		return sorted[i].Version < sorted[j].Version
	})

	var current types.ArtifactType
	for _, info := range sorted {
		if info.Type != current {
			current = info.Type
			fmt.Fprintf(&sb, "\n%s\n", current)
		}
		mark := " "
		if info.Validated {
			mark = "✓"
		}
		digest := info.Digest
		if len(digest) > 12 {
			digest = digest[:12]
		}
		fmt.Fprintf(&sb, "  %s v%-3d %9s  %s\n", mark, info.Version, humanBytes(info.SizeBytes), digest)
	}

	p.printBox("ARTIFACTS", sb.String())
}

func typeOrder(t types.ArtifactType) int {
	for i, known := range types.AllArtifactTypes {
		if known == t {
			return i
		}
	}
	return len(types.AllArtifactTypes)
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
