package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.Color("#7C3AED")
	good    = lipgloss.Color("#10B981")
	pending = lipgloss.Color("#F59E0B")
	bad     = lipgloss.Color("#EF4444")
	muted   = lipgloss.Color("#6B7280")
	info    = lipgloss.Color("#3B82F6")
	bright  = lipgloss.Color("#FFFFFF")
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)

	// LabelStyle pads record labels in the stats box to one column.
	LabelStyle = lipgloss.NewStyle().Foreground(muted).Width(16)

	// StatusKeyStyle prefixes each field of the live status line.
	StatusKeyStyle = lipgloss.NewStyle().Foreground(muted).MarginRight(1)

	ValueStyle   = lipgloss.NewStyle().Foreground(bright)
	SuccessStyle = lipgloss.NewStyle().Foreground(good)
	WarningStyle = lipgloss.NewStyle().Foreground(pending)
	ErrorStyle   = lipgloss.NewStyle().Foreground(bad)
	HelpStyle    = lipgloss.NewStyle().Foreground(muted).MarginTop(1)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(1, 2)

	// RuleStyle separates the status line from the explanation viewport.
	RuleStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(muted)

	ExplanationStyle = lipgloss.NewStyle().PaddingLeft(1)

	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(info).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	StatLabelStyle = lipgloss.NewStyle().Foreground(muted).Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Foreground(bright).Align(lipgloss.Center)
)

// stateStyles maps driver states and outcome statuses to their style.
var stateStyles = map[string]lipgloss.Style{
	"idle":                SuccessStyle,
	"completed":           SuccessStyle,
	"streaming":           WarningStyle,
	"canceled":            WarningStyle,
	"closed":              WarningStyle,
	"failed":              ErrorStyle,
	"server_error":        ErrorStyle,
	"parse_error":         ErrorStyle,
	"unknown_result_kind": ErrorStyle,
	"permission_denied":   ErrorStyle,
	"unexpected_status":   ErrorStyle,
	"transport_error":     ErrorStyle,
}

// StateStyle returns the style for a driver state or outcome status.
func StateStyle(state string) lipgloss.Style {
	if s, ok := stateStyles[state]; ok {
		return s
	}
	return ValueStyle
}
