package cmd

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette shared by all commands.
const (
	colorGreen  = "114"
	colorYellow = "220"
	colorGray   = "245"
	colorWhite  = "255"
)

// styles holds the lipgloss styles used for command output.
type styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Dim     lipgloss.Style
	Label   lipgloss.Style
}

// newStyles returns colored styles for terminals and bare ones for pipes.
func newStyles(colored bool) styles {
	if !colored {
		return styles{
			Header:  lipgloss.NewStyle(),
			Success: lipgloss.NewStyle(),
			Warning: lipgloss.NewStyle(),
			Dim:     lipgloss.NewStyle(),
			Label:   lipgloss.NewStyle(),
		}
	}
	return styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorWhite)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
	}
}

// stdoutIsTTY reports whether stdout is an interactive terminal. Pipes
// and CI get plain line-oriented output.
func stdoutIsTTY() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
