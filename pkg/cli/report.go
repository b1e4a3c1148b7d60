package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/woliveiras/cpdeploy/pkg/deploy"
)

var (
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
)

// renderReport returns the end-of-run summary: a headline followed by the
// report body.
func renderReport(r deploy.Report) string {
	var b strings.Builder
	if r.OK() {
		b.WriteString(okStyle.Render("Deploy finished"))
	} else {
		b.WriteString(failStyle.Render("Deploy failed in " + string(lastState(r))))
	}
	b.WriteString("\n")
	b.WriteString(r.String())
	return b.String()
}

// lastState is the state the run was in when it failed.
func lastState(r deploy.Report) deploy.State {
	if len(r.Trace) < 2 {
		return r.State
	}
	return r.Trace[len(r.Trace)-2]
}

// renderDevices lists discovered devices one per row.
func renderDevices(devs []deploy.Device) string {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("PATH", "LABEL", "VERSION", "BOARD", "MATCH")
	for _, d := range devs {
		version := "-"
		if d.Version != nil {
			version = d.Version.String()
		}
		board := d.Board
		if board == "" {
			board = "-"
		}
		match := "label"
		if d.Confident {
			match = "boot_out.txt"
		}
		t.Row(d.Path, d.Label, version, board, match)
	}
	return t.String()
}
