package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/artpar/storedeploy/internal/shell/backend"
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Styles
// =============================================================================

var (
	colorAccent  = lipgloss.Color("#20B9B4")
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#6B7F87")

	styleStage   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleMessage = lipgloss.NewStyle().Foreground(colorMuted)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleError   = lipgloss.NewStyle().Foreground(colorError)
	styleBold    = lipgloss.NewStyle().Bold(true)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
	styleErrorBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorError).
			Padding(0, 1)
)

// stageTitle turns "start_containers" into "Start containers".
func stageTitle(s domain.Stage) string {
	name := strings.ReplaceAll(s.String(), "_", " ")
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// =============================================================================
// Progress Printer
// =============================================================================

// progressPrinter renders progress events, one header per stage.
type progressPrinter struct {
	w       io.Writer
	current domain.Stage
	started bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

// Drain prints events until the channel is closed.
func (p *progressPrinter) Drain(events <-chan domain.ProgressEvent) {
	for e := range events {
		p.Print(e)
	}
}

// Print renders one event.
func (p *progressPrinter) Print(e domain.ProgressEvent) {
	if !p.started || e.Stage != p.current {
		fmt.Fprintf(p.w, "%s %s\n", styleStage.Render("▸"), styleStage.Render(stageTitle(e.Stage)))
		p.current, p.started = e.Stage, true
	}
	if e.Terminal {
		fmt.Fprintf(p.w, "  %s\n", styleBold.Render(e.Message))
		return
	}
	fmt.Fprintf(p.w, "  %s %s\n", styleMessage.Render("•"), styleMessage.Render(e.Message))
}

// =============================================================================
// Summaries
// =============================================================================

func renderResult(result domain.DeploymentResult) string {
	lines := []string{
		styleSuccess.Render("✓ store deployed"),
		fmt.Sprintf("store:   %s", result.StoreURL),
		fmt.Sprintf("admin:   %s/app", result.StoreURL),
		fmt.Sprintf("webhook: %s", result.WebhookURL),
	}
	return styleBox.Render(strings.Join(lines, "\n"))
}

func renderFailure(err error) string {
	return styleErrorBox.Render(styleError.Render("✗ ") + err.Error())
}

func renderReport(report domain.ReconciliationReport, summary string) string {
	var b strings.Builder
	b.WriteString(styleBold.Render(summary))
	b.WriteString("\n")
	for _, d := range report.Details {
		mark := styleSuccess.Render("✓")
		if d.ImageCount == 0 {
			mark = styleError.Render("✗")
		}
		fmt.Fprintf(&b, "%s %-12s %3d  %s\n", mark, d.InternalCode, d.ImageCount, d.ProductName)
	}
	if len(report.OrphanFolders) > 0 {
		fmt.Fprintf(&b, "%s %s\n", styleMessage.Render("orphan folders:"), strings.Join(report.OrphanFolders, ", "))
	}
	return b.String()
}

func renderServer(report backend.ServerReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@%s  %s\n", report.User, report.Host, styleMessage.Render(report.SSHVersion))
	for _, c := range report.Runtime {
		mark := styleSuccess.Render("✓")
		if !c.OK {
			mark = styleError.Render("✗")
		}
		fmt.Fprintf(&b, "%s %s: %s\n", mark, c.Command, firstLine(c.Output))
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
