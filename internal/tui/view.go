package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/ashita-ai/auditfront/internal/model"
)

var (
	colorTitle   = lipgloss.Color("33")
	colorMuted   = lipgloss.Color("242")
	colorAgent   = lipgloss.Color("111")
	colorError   = lipgloss.Color("160")
	colorSuccess = lipgloss.Color("70")
	colorWarn    = lipgloss.Color("214")
)

// renderHeader renders the state line.
func renderHeader(snap model.Snapshot, simulated, noColor bool) string {
	line := "Audit " + string(snap.State)
	if snap.RunID != "" {
		line += " | Run " + string(snap.RunID)
	}
	if snap.Mode != "" {
		line += " | " + string(snap.Mode)
	}
	if d := elapsed(snap, time.Now()); d > 0 {
		line += " | " + d.Round(100*time.Millisecond).String()
	}
	out := stylize(line, noColor, colorTitle)
	if simulated {
		out += " " + stylize("[simulated]", noColor, colorWarn)
	}
	return out
}

// renderProgress renders the bar, or a placeholder when the total is unknown.
func renderProgress(bar progress.Model, p model.Progress) string {
	if !p.Determinate {
		return "working…"
	}
	return bar.ViewAs(p.Ratio)
}

// renderLogs renders the last n log entries.
func renderLogs(logs []model.LogEntry, n int, noColor bool) string {
	if len(logs) == 0 {
		return stylize("waiting for the pipeline…", noColor, colorMuted)
	}
	if len(logs) > n {
		logs = logs[len(logs)-n:]
	}
	lines := make([]string, 0, len(logs))
	for _, e := range logs {
		lines = append(lines, formatLogEntry(e, noColor))
	}
	return strings.Join(lines, "\n")
}

func formatLogEntry(e model.LogEntry, noColor bool) string {
	prefix := fmt.Sprintf("%s %-9s", e.Timestamp, e.Agent)
	return stylize(prefix, noColor, colorAgent) + " " + e.Message
}

// renderResult renders the report summary.
func renderResult(r *model.RunResult, noColor bool) string {
	report := r.Report()
	if report == nil {
		return ""
	}
	lines := []string{
		stylize(fmt.Sprintf("Result (%s): score %.0f", r.Kind, report.Score), noColor, colorSuccess),
	}
	if report.Summary != "" {
		lines = append(lines, report.Summary)
	}
	for _, rec := range report.Recommendations {
		lines = append(lines, fmt.Sprintf("  - [%s] %s", rec.Priority, rec.Title))
	}
	return strings.Join(lines, "\n")
}

func elapsed(snap model.Snapshot, now time.Time) time.Duration {
	if snap.StartedAt == nil {
		return 0
	}
	end := now
	if snap.FinishedAt != nil {
		end = *snap.FinishedAt
	}
	return end.Sub(*snap.StartedAt)
}

// stylize applies optional color styling.
func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}
