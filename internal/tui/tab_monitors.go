package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/session"
)

var (
	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("62"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
)

// MonitorsTab lists monitors with their current and staged settings.
type MonitorsTab struct {
	monitors []session.MonitorView
	cursor   int
	width    int
}

// SetMonitors replaces the rows, keeping the cursor on the same monitor
// when it is still present.
func (t *MonitorsTab) SetMonitors(monitors []session.MonitorView) {
	prev, hadPrev := t.Selected()
	t.monitors = monitors
	if hadPrev {
		for i, m := range monitors {
			if m.ID == prev.ID {
				t.cursor = i
				return
			}
		}
	}
	if t.cursor >= len(monitors) {
		t.cursor = len(monitors) - 1
	}
	if t.cursor < 0 {
		t.cursor = 0
	}
}

// Selected returns the monitor under the cursor.
func (t MonitorsTab) Selected() (session.MonitorView, bool) {
	if t.cursor < 0 || t.cursor >= len(t.monitors) {
		return session.MonitorView{}, false
	}
	return t.monitors[t.cursor], true
}

func (t *MonitorsTab) Move(delta int) {
	if len(t.monitors) == 0 {
		return
	}
	t.cursor = (t.cursor + delta + len(t.monitors)) % len(t.monitors)
}

// stepMode returns the mode delta places away from the staged one in the
// monitor's mode list, wrapping at either end.
func stepMode(m session.MonitorView, delta int) (display.Resolution, bool) {
	if len(m.Modes) == 0 {
		return display.Resolution{}, false
	}
	idx := -1
	for i, r := range m.Modes {
		if r == m.StagedResolution {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i, r := range m.Modes {
			if r.SameSize(m.StagedResolution) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return m.Modes[0], true
	}
	n := len(m.Modes)
	return m.Modes[((idx+delta)%n+n)%n], true
}

// nextOrientation rotates a quarter turn clockwise.
func nextOrientation(o display.Orientation) display.Orientation {
	return display.Orientations[(int(o)+1)%len(display.Orientations)]
}

func (t MonitorsTab) View() string {
	if len(t.monitors) == 0 {
		return dimStyle.Render("  No attached monitors.")
	}

	var sb strings.Builder
	header := fmt.Sprintf("  %-22s %-26s %-26s %s", "MONITOR", "CURRENT", "STAGED", "ROTATION")
	sb.WriteString(dimStyle.Render(header))
	sb.WriteString("\n")

	for i, m := range t.monitors {
		name := m.Name
		if m.Primary {
			name += " *"
		}
		rotation := m.Orientation.Label()
		if m.StagedOrientation != m.Orientation {
			rotation += " → " + m.StagedOrientation.Label()
		}
		row := fmt.Sprintf("  %-22s %-26s %-26s %s", truncate(name, 22), m.Current, m.StagedResolution, rotation)
		switch {
		case i == t.cursor:
			row = selectedRowStyle.Render(row)
		case m.Pending:
			row = pendingStyle.Render(row)
		}
		sb.WriteString(row)
		sb.WriteString("\n")
	}

	if m, ok := t.Selected(); ok {
		sb.WriteString("\n")
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  %s  id=%s  at %d,%d  %d mode(s)",
			m.DeviceName, m.ID, m.Position.X, m.Position.Y, len(m.Modes))))
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
