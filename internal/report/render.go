package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/greenlight/internal/models"
)

var (
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	warningColor = lipgloss.Color("#F59E0B")
	mutedColor   = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	passedStyle  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warningColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	taskIDStyle  = lipgloss.NewStyle().Width(24)
	outcomeStyle = lipgloss.NewStyle().Width(8)
)

// Render produces the human-readable run summary for the terminal.
func (r *Report) Render() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("greenlight") + mutedStyle.Render("  tier="+r.Tier+"  run="+r.RunID))
	b.WriteString("\n\n")

	for _, tr := range r.Results {
		b.WriteString("  ")
		b.WriteString(taskIDStyle.Render(tr.TaskID))
		b.WriteString(outcomeStyle.Render(styleFor(tr.Outcome).Render(string(tr.Outcome))))
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  %-10s %8s", tr.Provenance, roundDuration(tr.Duration))))
		if tr.Detail != "" {
			b.WriteString(mutedStyle.Render("  " + tr.Detail))
		}
		b.WriteString("\n")
	}

	if len(r.Results) > 0 {
		b.WriteString("\n")
	}
	for _, w := range r.Warnings {
		b.WriteString(warnStyle.Render("  warning: "+w) + "\n")
	}

	status := passedStyle.Render("PASSED")
	if !r.Passed {
		status = failedStyle.Render("FAILED")
	}
	b.WriteString(fmt.Sprintf("%s  %s in %s\n", status, countLine(r.Counts), roundDuration(r.Elapsed)))
	return b.String()
}

func styleFor(o models.Outcome) lipgloss.Style {
	switch o {
	case models.OutcomePassed:
		return passedStyle
	case models.OutcomeFailed, models.OutcomeError:
		return failedStyle
	case models.OutcomeTimeout, models.OutcomeNotRun:
		return warnStyle
	default:
		return mutedStyle
	}
}

func countLine(counts map[models.Outcome]int) string {
	order := []models.Outcome{
		models.OutcomePassed, models.OutcomeFailed, models.OutcomeSkipped,
		models.OutcomeTimeout, models.OutcomeError, models.OutcomeNotRun,
	}
	var parts []string
	for _, o := range order {
		if n := counts[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	if len(parts) == 0 {
		return "0 tasks"
	}
	return strings.Join(parts, ", ")
}

func roundDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Millisecond).String()
	default:
		return d.String()
	}
}
