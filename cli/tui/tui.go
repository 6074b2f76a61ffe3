// Package tui provides Bubble Tea views for the turnstream CLI.
//
// TUI rules:
//   - TUI is opt-in only (--tui flag)
//   - The live view shows the same snapshots the plain stream prints
//   - The stats view shows the same records the renderer prints
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/turnstream/runtime"
	"github.com/pithecene-io/turnstream/types"
)

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// headerLines is the number of rows above and below the viewport.
const headerLines = 4

// SnapshotMsg carries one yielded snapshot to the live view.
type SnapshotMsg struct {
	Response *types.AssembledResponse
}

// DoneMsg reports that the turn reached a terminal state.
type DoneMsg struct {
	Summary runtime.TurnSummary
	Err     error
}

// TurnModel is a Bubble Tea model that follows one streaming turn.
// Quitting before the turn finishes calls cancel so the driver stops reading.
type TurnModel struct {
	turnID   string
	endpoint string
	cancel   context.CancelFunc

	viewport viewport.Model
	ready    bool

	latest   *types.AssembledResponse
	yields   int
	done     bool
	summary  runtime.TurnSummary
	err      error
	quitting bool
}

// NewTurnModel creates a live view for turnID. cancel may be nil.
func NewTurnModel(turnID, endpoint string, cancel context.CancelFunc) TurnModel {
	return TurnModel{
		turnID:   turnID,
		endpoint: endpoint,
		cancel:   cancel,
		viewport: viewport.New(80, 20),
	}
}

// Init implements tea.Model.
func (m TurnModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m TurnModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerLines, 1)
		m.ready = true
		return m, nil

	case SnapshotMsg:
		if msg.Response == nil {
			return m, nil
		}
		follow := m.viewport.AtBottom()
		m.latest = msg.Response
		m.yields++
		m.viewport.SetContent(ExplanationStyle.Render(msg.Response.Explanation))
		if follow {
			m.viewport.GotoBottom()
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.summary = msg.Summary
		m.err = msg.Err
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m TurnModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("turn " + m.turnID))
	b.WriteString("\n")
	b.WriteString(RuleStyle.Render(m.statusLine()))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(m.helpLine()))
	return b.String()
}

// Done reports whether the turn finished.
func (m TurnModel) Done() bool {
	return m.done
}

// Yields returns the number of snapshots received.
func (m TurnModel) Yields() int {
	return m.yields
}

func (m TurnModel) statusLine() string {
	state := runtime.StateStreaming.String()
	if m.done {
		state = runtime.StateCompleted.String()
		if m.summary.Outcome != nil {
			state = string(m.summary.Outcome.Status)
		}
	}

	parts := []string{
		StatusKeyStyle.Render("state") + StateStyle(state).Render(state),
		StatusKeyStyle.Render("yields") + ValueStyle.Render(fmt.Sprintf("%d", m.yields)),
	}
	if m.latest != nil {
		parts = append(parts,
			StatusKeyStyle.Render("bytes")+ValueStyle.Render(fmt.Sprintf("%d", len(m.latest.Explanation))),
			StatusKeyStyle.Render("citations")+ValueStyle.Render(fmt.Sprintf("%d", m.latest.CitationCount())),
		)
	}
	if m.done {
		parts = append(parts, StatusKeyStyle.Render("duration")+
			ValueStyle.Render(m.summary.Duration.Round(time.Millisecond).String()))
	}
	if m.err != nil {
		parts = append(parts, ErrorStyle.Render(m.err.Error()))
	}
	return strings.Join(parts, "  ")
}

func (m TurnModel) helpLine() string {
	if m.done {
		return "Turn finished. Press q to exit"
	}
	return fmt.Sprintf("Streaming from %s. Press q or Ctrl+C to cancel", m.endpoint)
}

// Program runs a TurnModel and accepts messages from the driver goroutine.
type Program struct {
	p *tea.Program
}

// NewProgram creates a live view program in the alternate screen.
func NewProgram(model TurnModel, opts ...tea.ProgramOption) *Program {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &Program{p: tea.NewProgram(model, opts...)}
}

// Send delivers a message to the running program. It is safe to call from
// any goroutine and is a no-op once the program has exited.
func (p *Program) Send(msg tea.Msg) {
	p.p.Send(msg)
}

// Run blocks until the user quits.
func (p *Program) Run() error {
	_, err := p.p.Run()
	return err
}

// Quit stops the program.
func (p *Program) Quit() {
	p.p.Quit()
}
