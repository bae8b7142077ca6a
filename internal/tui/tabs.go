package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/safetynet"
)

// Tab identifies a TUI tab.
type Tab int

const (
	TabMonitors Tab = iota
	TabProfiles
	tabCount // sentinel for iteration
)

func (t Tab) String() string {
	switch t {
	case TabMonitors:
		return "Monitors"
	case TabProfiles:
		return "Profiles"
	default:
		return "?"
	}
}

var (
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("250")).
				Background(lipgloss.Color("236")).
				Padding(0, 2)

	tabBarStyle = lipgloss.NewStyle().
			MarginBottom(1)

	tabGap = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		SetString(" ")

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("124")).
			Padding(1, 2).
			Align(lipgloss.Center)

	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// renderTabBar renders the tab bar with the given active tab and width.
func renderTabBar(active Tab, width int) string {
	var tabs []string
	for i := Tab(0); i < tabCount; i++ {
		label := fmt.Sprintf("%d:%s", int(i)+1, i)
		if i == active {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(label))
		}
	}

	row := lipgloss.JoinHorizontal(lipgloss.Top, intersperse(tabs, tabGap.Render())...)
	return tabBarStyle.Width(width).Render(row)
}

// intersperse inserts sep between each element of items.
func intersperse(items []string, sep string) []string {
	if len(items) <= 1 {
		return items
	}
	result := make([]string, 0, len(items)*2-1)
	for i, item := range items {
		if i > 0 {
			result = append(result, sep)
		}
		result = append(result, item)
	}
	return result
}

// renderStatusBar renders daemon connectivity and the safety-net state.
func renderStatusBar(status *ipc.StatusData, connErr error, width int) string {
	var text string
	switch {
	case connErr != nil:
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Render("●")
		text = dot + " daemon not reachable: " + connErr.Error()
	case status == nil:
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("●")
		text = dot + " connecting..."
	default:
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("●")
		parts := []string{dot + " daemon connected", fmt.Sprintf("%d monitor(s)", len(status.Monitors))}
		if status.SafetyNet.State == safetynet.AwaitingConfirmation {
			parts = append(parts, fmt.Sprintf("reverting in %ds", status.SafetyNet.Remaining))
		}
		if status.LastError != "" {
			parts = append(parts, "last error: "+status.LastError)
		}
		text = strings.Join(parts, "  ")
	}

	style := lipgloss.NewStyle().
		Width(width).
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("250")).
		Padding(0, 1)
	return style.Render(text)
}

// renderBanner renders the keep-or-revert prompt shown while a change is
// awaiting confirmation.
func renderBanner(remaining, width int) string {
	w := width - 4
	if w < 20 {
		w = 20
	}
	msg := fmt.Sprintf("Keep these display settings?\nReverting in %d second(s).\n\ny: keep    n/esc: revert", remaining)
	return bannerStyle.Width(w).Render(msg)
}
