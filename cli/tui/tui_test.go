package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/turnstream/runtime"
	"github.com/pithecene-io/turnstream/types"
)

func update(t *testing.T, m TurnModel, msg tea.Msg) (TurnModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	tm, ok := next.(TurnModel)
	if !ok {
		t.Fatalf("Update returned %T, want TurnModel", next)
	}
	return tm, cmd
}

func TestTurnModel_Snapshots(t *testing.T) {
	m := NewTurnModel("turn-1", "https://api.example.test", nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, _ = update(t, m, SnapshotMsg{Response: &types.AssembledResponse{Explanation: "Hello"}})
	m, _ = update(t, m, SnapshotMsg{Response: &types.AssembledResponse{Explanation: "Hello, world"}})
	m, _ = update(t, m, SnapshotMsg{})

	if m.Yields() != 2 {
		t.Errorf("Yields() = %d, want 2 (nil snapshots ignored)", m.Yields())
	}

	view := m.View()
	for _, want := range []string{"turn turn-1", "Hello, world", "streaming", "https://api.example.test"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestTurnModel_Done(t *testing.T) {
	m := NewTurnModel("turn-2", "ws://localhost", nil)
	m, _ = update(t, m, SnapshotMsg{Response: &types.AssembledResponse{Explanation: "partial"}})

	m, _ = update(t, m, DoneMsg{
		Summary: runtime.TurnSummary{
			Outcome:  &types.TurnOutcome{Status: types.OutcomeServerError},
			Duration: 1500 * time.Millisecond,
		},
		Err: errors.New("server error: boom"),
	})

	if !m.Done() {
		t.Fatal("Done() = false after DoneMsg")
	}
	view := m.View()
	for _, want := range []string{"server_error", "server error: boom", "1.5s", "Turn finished"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestTurnModel_QuitCancelsRunningTurn(t *testing.T) {
	canceled := 0
	m := NewTurnModel("turn-3", "", func() { canceled++ })

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("quit should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit command should produce tea.QuitMsg")
	}
	if canceled != 1 {
		t.Errorf("cancel called %d times, want 1", canceled)
	}
	if m.View() != "" {
		t.Error("View() should be empty after quitting")
	}
}

func TestTurnModel_QuitAfterDoneDoesNotCancel(t *testing.T) {
	canceled := 0
	m := NewTurnModel("turn-4", "", func() { canceled++ })
	m, _ = update(t, m, DoneMsg{Summary: runtime.TurnSummary{Outcome: &types.TurnOutcome{Status: types.OutcomeCompleted}}})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if canceled != 0 {
		t.Errorf("cancel called %d times after the turn finished, want 0", canceled)
	}
}

func TestStateStyle(t *testing.T) {
	tests := []struct {
		state string
		want  string
	}{
		{"completed", SuccessStyle.Render("x")},
		{"streaming", WarningStyle.Render("x")},
		{"parse_error", ErrorStyle.Render("x")},
		{"other", ValueStyle.Render("x")},
	}
	for _, tt := range tests {
		if got := StateStyle(tt.state).Render("x"); got != tt.want {
			t.Errorf("StateStyle(%q).Render = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestStatsModel_View(t *testing.T) {
	turn := map[string]any{
		"turn_id":           "turn-9",
		"outcome":           "permission_denied",
		"error_kind":        "permission_denied",
		"rpc_global_id":     float64(77),
		"yields":            float64(0),
		"explanation_bytes": float64(0),
		"transport":         "http",
	}
	metrics := map[string]any{
		"turns_started_total":  float64(1),
		"turns_failed_total":   float64(1),
		"fragments_read_total": float64(3),
	}

	view := RenderStatsStatic(turn, metrics)
	for _, want := range []string{"Turn turn-9", "permission_denied", "77", "Metrics", "Fragments"} {
		if !strings.Contains(view, want) {
			t.Errorf("stats view missing %q:\n%s", want, view)
		}
	}
}

func TestStatsModel_Empty(t *testing.T) {
	view := NewStatsModel(nil, nil).View()
	if !strings.Contains(view, "No stored turns") {
		t.Errorf("empty stats view = %q", view)
	}
}

func TestStatsModel_Quit(t *testing.T) {
	next, cmd := NewStatsModel(nil, nil).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if next.View() != "" {
		t.Error("View() should be empty after quitting")
	}
}
