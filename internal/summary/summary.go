// Package summary prints end-of-run reports for humans.
package summary

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/starford/mdnorm/internal/models"
)

var (
	accent = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))
	muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	bold   = lipgloss.NewStyle().Bold(true)
)

// Printer writes reports to out, styled only when out is a terminal.
type Printer struct {
	out    io.Writer
	styled bool
	json   bool
}

// New returns a Printer for out. asJSON switches to machine-readable output.
func New(out io.Writer, asJSON bool) *Printer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{out: out, styled: styled, json: asJSON}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

// Report prints r.
func (p *Printer) Report(r *models.Report) error {
	if p.json {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	var b strings.Builder
	title := "mdnorm run " + r.RunID
	if r.DryRun {
		title += " (dry run)"
	}
	if r.Cancelled {
		title += " (cancelled)"
	}
	b.WriteString(p.style(bold, title) + "\n")

	rows := []struct {
		label string
		n     int
	}{
		{"processed", r.Processed},
		{"changed", r.Changed},
		{"unchanged", r.Unchanged},
		{"skipped", r.Skipped},
		{"failed", r.Failed()},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "  %s %5d\n", p.style(muted, fmt.Sprintf("%-10s", row.label)), row.n)
	}
	fmt.Fprintf(&b, "  %s %s\n", p.style(muted, fmt.Sprintf("%-10s", "duration")), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	if len(r.Failures) > 0 {
		b.WriteString(p.style(bold, "failures") + "\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  ✗ %s  %s\n", p.style(accent, f.Path), p.style(muted, f.Kind+": "+f.Error))
		}
	}
	if len(r.Collisions) > 0 {
		b.WriteString(p.style(bold, "short name collisions") + "\n")
		for _, c := range r.Collisions {
			fmt.Fprintf(&b, "  ! %s  kept %s, unreachable %s\n",
				p.style(accent, c.ShortName), c.Winner, strings.Join(c.Losers, ", "))
		}
	}

	_, err := io.WriteString(p.out, b.String())
	return err
}
