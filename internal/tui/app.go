package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/safetynet"
)

const pollInterval = time.Second

type statusMsg struct {
	data *ipc.StatusData
	err  error
}

type tickMsg time.Time

// actionMsg reports the outcome of a command sent to the daemon.
type actionMsg struct {
	note string
	err  error
}

// model is the root bubbletea model for the TUI.
type model struct {
	client Client

	status  *ipc.StatusData
	connErr error

	activeTab Tab
	monitors  MonitorsTab
	profiles  ProfilesTab

	keys keyMap
	help help.Model

	note    string
	noteErr bool

	width  int
	height int
}

func newModel(client Client) model {
	return model{
		client:   client,
		profiles: NewProfilesTab(),
		keys:     defaultKeyMap(),
		help:     help.New(),
	}
}

func fetchStatus(c Client) tea.Cmd {
	return func() tea.Msg {
		data, err := c.GetStatus()
		return statusMsg{data: data, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func runAction(fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		note, err := fn()
		return actionMsg{note: note, err: err}
	}
}

func (m model) armed() bool {
	return m.status != nil && m.status.SafetyNet.State == safetynet.AwaitingConfirmation
}

// contentHeight returns the height available for tab content.
func (m model) contentHeight() int {
	// status bar (1) + tab bar (2 with margin) + note (1) + help bar (1)
	h := m.height - 5
	if h < 1 {
		h = 1
	}
	return h
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(fetchStatus(m.client), tick())
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		return m.applyStatus(msg), nil

	case tickMsg:
		return m, tea.Batch(fetchStatus(m.client), tick())

	case actionMsg:
		if msg.err != nil {
			m.note, m.noteErr = msg.err.Error(), true
		} else if msg.note != "" {
			m.note, m.noteErr = msg.note, false
		}
		return m, fetchStatus(m.client)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.monitors.width = msg.Width
		m.profiles.SetSize(msg.Width, m.contentHeight())
		return m, nil
	}

	// The save form captures all input while open.
	if m.profiles.editing {
		if km, ok := msg.(tea.KeyMsg); ok && km.String() == "ctrl+c" {
			return m, tea.Quit
		}
		name, done, cmd := m.profiles.UpdateForm(msg)
		if done {
			return m, runAction(func() (string, error) {
				if err := m.client.SaveProfile(name); err != nil {
					return "", err
				}
				return fmt.Sprintf("Saved profile %q", name), nil
			})
		}
		return m, cmd
	}

	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(km, m.keys.Quit):
		return m, tea.Quit
	case m.armed():
		// Only keep and revert are meaningful until the countdown ends.
		return m, m.handleArmedKey(km)
	case key.Matches(km, m.keys.Tab):
		if km.String() == "shift+tab" {
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		} else {
			m.activeTab = (m.activeTab + 1) % tabCount
		}
		return m, nil
	case km.String() == "1":
		m.activeTab = TabMonitors
		return m, nil
	case km.String() == "2":
		m.activeTab = TabProfiles
		return m, nil
	case key.Matches(km, m.keys.Apply):
		return m, m.applyCmd()
	case key.Matches(km, m.keys.Refresh):
		return m, m.refreshCmd()
	}

	if m.activeTab == TabProfiles {
		return m.updateProfiles(km)
	}
	cmd := m.updateMonitors(km)
	return m, cmd
}

func (m model) applyStatus(msg statusMsg) model {
	if msg.err != nil {
		m.connErr = msg.err
		return m
	}
	m.connErr = nil
	m.status = msg.data
	m.monitors.SetMonitors(msg.data.Monitors)
	m.profiles.SetProfiles(msg.data.Profiles)
	return m
}

func (m model) handleArmedKey(km tea.KeyMsg) tea.Cmd {
	c := m.client
	switch {
	case key.Matches(km, m.keys.Keep):
		return runAction(func() (string, error) {
			if err := c.Confirm(); err != nil {
				return "", err
			}
			return "Settings kept", nil
		})
	case key.Matches(km, m.keys.Revert):
		return runAction(func() (string, error) {
			data, err := c.Revert()
			if err != nil {
				return "", err
			}
			if len(data.Errors) > 0 {
				return "", fmt.Errorf("reverted with %d error(s): %s", len(data.Errors), data.Errors[0].Error)
			}
			return "Settings reverted", nil
		})
	}
	return nil
}

func (m model) applyCmd() tea.Cmd {
	c := m.client
	return runAction(func() (string, error) {
		data, err := c.Apply()
		if err != nil {
			return "", err
		}
		return describeApply(data)
	})
}

func describeApply(data *ipc.ApplyData) (string, error) {
	if data.Message != "" {
		return data.Message, nil
	}
	if len(data.Errors) > 0 {
		first := data.Errors[0]
		return "", fmt.Errorf("applied with %d error(s): %s: %s", len(data.Errors), first.Monitor, first.Error)
	}
	return "Applied; confirm within the countdown", nil
}

func (m model) refreshCmd() tea.Cmd {
	c := m.client
	return runAction(func() (string, error) {
		if _, err := c.Refresh(); err != nil {
			return "", err
		}
		return "Monitors refreshed", nil
	})
}

func (m *model) updateMonitors(km tea.KeyMsg) tea.Cmd {
	c := m.client
	switch {
	case key.Matches(km, m.keys.Up):
		m.monitors.Move(-1)
	case key.Matches(km, m.keys.Down):
		m.monitors.Move(1)
	case key.Matches(km, m.keys.Prev), key.Matches(km, m.keys.Next):
		mon, ok := m.monitors.Selected()
		if !ok {
			return nil
		}
		delta := 1
		if key.Matches(km, m.keys.Prev) {
			delta = -1
		}
		res, ok := stepMode(mon, delta)
		if !ok {
			return nil
		}
		return runAction(func() (string, error) {
			_, err := c.SetMode(ipc.SetModePayload{
				MonitorID:    mon.ID,
				Width:        res.Width,
				Height:       res.Height,
				Frequency:    res.Frequency,
				BitsPerPixel: res.BitsPerPixel,
			})
			return "", err
		})
	case key.Matches(km, m.keys.Rotate):
		mon, ok := m.monitors.Selected()
		if !ok {
			return nil
		}
		next := nextOrientation(mon.StagedOrientation)
		return runAction(func() (string, error) {
			return "", c.SetOrientation(mon.ID, next.String())
		})
	}
	return nil
}

func (m model) updateProfiles(km tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.client
	switch {
	case key.Matches(km, m.keys.New):
		return m, m.profiles.StartSave()
	case key.Matches(km, m.keys.Load), key.Matches(km, m.keys.Stage):
		name, ok := m.profiles.Selected()
		if !ok {
			return m, nil
		}
		apply := key.Matches(km, m.keys.Load)
		return m, runAction(func() (string, error) {
			data, err := c.LoadProfile(name, apply)
			if err != nil {
				return "", err
			}
			if data.Apply != nil {
				return describeApply(data.Apply)
			}
			return fmt.Sprintf("Staged %d monitor(s) from %q", len(data.Staged), name), nil
		})
	case key.Matches(km, m.keys.Delete):
		name, ok := m.profiles.Selected()
		if !ok {
			return m, nil
		}
		return m, runAction(func() (string, error) {
			if err := c.DeleteProfile(name); err != nil {
				return "", err
			}
			return fmt.Sprintf("Deleted profile %q", name), nil
		})
	}
	return m, m.profiles.UpdateList(km)
}

// View implements tea.Model.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	statusBar := renderStatusBar(m.status, m.connErr, m.width)
	tabBar := renderTabBar(m.activeTab, m.width)
	helpBar := m.help.View(m.keys.helpFor(m.activeTab, m.armed()))

	var content string
	switch {
	case m.armed():
		content = renderBanner(m.status.SafetyNet.Remaining, m.width)
	case m.activeTab == TabProfiles:
		content = m.profiles.View()
	default:
		content = m.monitors.View()
	}

	note := ""
	if m.note != "" {
		if m.noteErr {
			note = errorStyle.Render(m.note)
		} else {
			note = noteStyle.Render(m.note)
		}
	}

	usedHeight := lipgloss.Height(statusBar) + lipgloss.Height(tabBar) + lipgloss.Height(helpBar) + 1
	contentHeight := m.height - usedHeight
	if contentHeight < 1 {
		contentHeight = 1
	}
	content = lipgloss.NewStyle().Height(contentHeight).MaxHeight(contentHeight).Render(content)

	return lipgloss.JoinVertical(lipgloss.Left,
		statusBar,
		tabBar,
		content,
		note,
		helpBar,
	)
}
