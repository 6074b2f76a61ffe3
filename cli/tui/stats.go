package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatsModel is a Bubble Tea model for the stored turn and metrics records.
// Either record may be nil.
type StatsModel struct {
	turn     map[string]any
	metrics  map[string]any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(turn, metrics map[string]any) StatsModel {
	return StatsModel{turn: turn, metrics: metrics}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var sections []string
	if m.turn != nil {
		sections = append(sections, m.renderTurn())
	}
	if m.metrics != nil {
		sections = append(sections, m.renderMetrics())
	}
	if len(sections) == 0 {
		sections = append(sections, MutedText("No stored turns"))
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return strings.Join(sections, "\n\n") + "\n" + help
}

func (m StatsModel) renderTurn() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Turn " + field(m.turn, "turn_id")))
	b.WriteString("\n")

	outcome := field(m.turn, "outcome")
	rows := [][2]string{
		{"Outcome", StateStyle(outcome).Render(outcome)},
		{"Transport", ValueStyle.Render(field(m.turn, "transport"))},
		{"RPC Global ID", ValueStyle.Render(field(m.turn, "rpc_global_id"))},
		{"Completed", ValueStyle.Render(field(m.turn, "ts"))},
	}
	if kind := field(m.turn, "error_kind"); kind != "" {
		rows = append(rows, [2]string{"Error", ErrorStyle.Render(kind)})
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(row[0]+":"), row[1])
	}

	boxes := []string{
		m.renderStatBox("Yields", count(m.turn, "yields"), info),
		m.renderStatBox("Fragments", count(m.turn, "fragments_read"), info),
		m.renderStatBox("Bytes", count(m.turn, "explanation_bytes"), good),
		m.renderStatBox("Citations", count(m.turn, "citation_count"), good),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	return BoxStyle.Render(b.String())
}

func (m StatsModel) renderMetrics() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Metrics"))
	b.WriteString("\n")

	turns := []string{
		m.renderStatBox("Started", count(m.metrics, "turns_started_total"), info),
		m.renderStatBox("Completed", count(m.metrics, "turns_completed_total"), good),
		m.renderStatBox("Failed", count(m.metrics, "turns_failed_total"), bad),
		m.renderStatBox("Canceled", count(m.metrics, "turns_canceled_total"), pending),
	}
	stream := []string{
		m.renderStatBox("Fragments", count(m.metrics, "fragments_read_total"), info),
		m.renderStatBox("Discarded", count(m.metrics, "fragments_discarded_total"), muted),
		m.renderStatBox("Yielded", count(m.metrics, "responses_yielded_total"), good),
		m.renderStatBox("Parse Errors", count(m.metrics, "parse_errors_total"), bad),
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, turns...),
		lipgloss.JoinHorizontal(lipgloss.Top, stream...),
	))

	return b.String()
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// MutedText renders s in the muted color.
func MutedText(s string) string {
	return lipgloss.NewStyle().Foreground(muted).Render(s)
}

// field formats a record value. Records read back from storage carry
// numbers as float64.
func field(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int64(v))
	default:
		return fmt.Sprint(v)
	}
}

func count(rec map[string]any, key string) int64 {
	switch v := rec[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(turn, metrics map[string]any) error {
	p := tea.NewProgram(NewStatsModel(turn, metrics), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders the stats view without a full TUI.
func RenderStatsStatic(turn, metrics map[string]any) string {
	model := NewStatsModel(turn, metrics)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
