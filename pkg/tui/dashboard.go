// Package tui renders analysis and migration results for the terminal.
// Simple, streaming output - clean sections, no interactive widgets.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/erpflow/erpflow/pkg/intelligence"
	"github.com/erpflow/erpflow/pkg/migration"
	"github.com/erpflow/erpflow/pkg/safety"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF6600")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	danger  = lipgloss.Color("#FF0000")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	dangerStyle  = lipgloss.NewStyle().Foreground(danger).Bold(true)
)

const divider = "  ─────────────────────────────────────"

// RenderReport renders the analysis dashboard for a completed run.
func RenderReport(report *intelligence.Report) string {
	var sb strings.Builder
	s := report.Summary()

	sb.WriteString("\n")
	sb.WriteString(titleStyle.Render("  ERPFLOW") + mutedStyle.Render(" process intelligence") + "\n")
	sb.WriteString(mutedStyle.Render(divider) + "\n")

	line := func(label, value string) {
		sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render(label+":"), titleStyle.Render(value)))
	}

	line("Run", s.RunID)
	if s.ProcessID != "" {
		line("Process", s.ProcessID)
	}
	line("Log", fmt.Sprintf("%s (%d cases, %d events)", s.EventLog.Name, s.EventLog.CaseCount, s.EventLog.EventCount))
	line("Phases", strings.Join(s.CompletedPhases, ", "))
	if len(s.FailedPhases) > 0 {
		sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render("Failed:"), dangerStyle.Render(strings.Join(s.FailedPhases, ", "))))
	}

	sb.WriteString(mutedStyle.Render(divider) + "\n")
	line("Variants", fmt.Sprintf("%d", s.VariantCount))
	line("Rework", fmt.Sprintf("%.1f%%", s.ReworkRate*100))
	if s.Fitness != nil {
		line("Fitness", fmt.Sprintf("%.2f", *s.Fitness))
	}
	line("Bottlenecks", fmt.Sprintf("%d", s.BottleneckCount))
	if s.SoDViolations > 0 {
		sb.WriteString(fmt.Sprintf("  %s %s\n", mutedStyle.Render("SoD violations:"), dangerStyle.Render(fmt.Sprintf("%d", s.SoDViolations))))
	}

	if len(report.Recommendations) > 0 {
		sb.WriteString(mutedStyle.Render(divider) + "\n")
		sb.WriteString(accentStyle.Render("  ▸ RECOMMENDATIONS") + "\n")
		for _, rec := range report.Recommendations {
			style := mutedStyle
			switch rec.Severity {
			case intelligence.SeverityHigh:
				style = dangerStyle
			case intelligence.SeverityMedium:
				style = accentStyle
			}
			sb.WriteString(fmt.Sprintf("  %s %s\n", style.Render("["+rec.Severity+"]"), rec.Title))
			sb.WriteString(mutedStyle.Render("      "+rec.Evidence) + "\n")
		}
	}

	if s.HighSeverityCount == 0 && len(s.FailedPhases) == 0 {
		sb.WriteString("\n" + successStyle.Render("  ✓ No critical findings") + "\n")
	}

	sb.WriteString("\n")
	return sb.String()
}

// RenderMigration renders one ETLV run result.
func RenderMigration(result *migration.RunResult) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(titleStyle.Render("  "+result.Name) + mutedStyle.Render(" ("+result.ObjectID+")") + "\n")
	sb.WriteString(mutedStyle.Render(divider) + "\n")

	for _, phase := range result.Phases {
		var mark string
		switch phase.Status {
		case migration.PhaseStatusCompleted:
			mark = successStyle.Render("✓")
		case migration.PhaseStatusSkipped:
			mark = accentStyle.Render("−")
		default:
			mark = dangerStyle.Render("✗")
		}
		detail := fmt.Sprintf("%d records", phase.RecordCount)
		if phase.Reason != "" {
			detail = phase.Reason
		} else if phase.Message != "" {
			detail = phase.Message
		}
		sb.WriteString(fmt.Sprintf("  %s %-10s %s\n", mark, phase.Name, mutedStyle.Render(detail)))
	}

	sb.WriteString(mutedStyle.Render(divider) + "\n")
	statusStyle := successStyle
	if result.Status != migration.StatusCompleted {
		statusStyle = dangerStyle
	}
	sb.WriteString(fmt.Sprintf("  %s %s\n\n", mutedStyle.Render("Status:"), statusStyle.Render(result.Status)))

	return sb.String()
}

// RenderApprovals renders the pending approval queue.
func RenderApprovals(requests []*safety.Request) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(accentStyle.Render("  ▸ PENDING APPROVALS") + "\n")
	if len(requests) == 0 {
		sb.WriteString(mutedStyle.Render("  (none)") + "\n\n")
		return sb.String()
	}

	for _, req := range requests {
		sb.WriteString(fmt.Sprintf("  %s %s\n", titleStyle.Render(req.Operation), mutedStyle.Render(req.RequestID)))
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("      tier %d (%s), requested by %s, %d/%d approvals, expires %s",
			req.Tier, safety.TierLabel(req.Tier), req.RequestedBy,
			len(req.Approvals), req.Required(), req.ExpiresAt.Format("2006-01-02 15:04"))) + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}
