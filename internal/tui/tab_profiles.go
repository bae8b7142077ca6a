package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// profileItem is a list item for a stored profile.
type profileItem struct {
	name string
}

func (i profileItem) Title() string       { return i.name }
func (i profileItem) Description() string { return "enter to switch, s to stage" }
func (i profileItem) FilterValue() string { return i.name }

// ProfilesTab lists profiles and hosts the name form used to save one.
type ProfilesTab struct {
	list   list.Model
	names  []string
	width  int
	height int

	// Save form
	form     *huh.Form
	formName string
	editing  bool
}

func NewProfilesTab() ProfilesTab {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("15")).
		BorderForeground(lipgloss.Color("62"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("250")).
		BorderForeground(lipgloss.Color("62"))

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Profiles"
	l.Styles.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62")).
		Padding(0, 1)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()

	return ProfilesTab{list: l}
}

// SetProfiles replaces the list when the names changed.
func (p *ProfilesTab) SetProfiles(names []string) tea.Cmd {
	if equalStrings(p.names, names) {
		return nil
	}
	p.names = append([]string(nil), names...)
	items := make([]list.Item, len(names))
	for i, n := range names {
		items[i] = profileItem{name: n}
	}
	return p.list.SetItems(items)
}

// Selected returns the highlighted profile name.
func (p ProfilesTab) Selected() (string, bool) {
	item, ok := p.list.SelectedItem().(profileItem)
	if !ok {
		return "", false
	}
	return item.name, true
}

func (p *ProfilesTab) SetSize(width, height int) {
	p.width = width
	p.height = height
	p.list.SetSize(width, height)
}

// StartSave opens the profile name form.
func (p *ProfilesTab) StartSave() tea.Cmd {
	p.formName = ""
	if name, ok := p.Selected(); ok {
		p.formName = name
	}

	w := p.width - 4
	if w < 40 {
		w = 40
	}
	p.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("name").
				Title("Profile name").
				Description("Saves the staged settings of every attached monitor").
				Value(&p.formName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					return nil
				}),
		),
	).WithWidth(w).WithShowHelp(true).WithShowErrors(true)
	p.editing = true
	return p.form.Init()
}

// UpdateForm feeds msg to the save form. It returns the submitted name once
// the form completes.
func (p *ProfilesTab) UpdateForm(msg tea.Msg) (string, bool, tea.Cmd) {
	if !p.editing {
		return "", false, nil
	}
	if km, ok := msg.(tea.KeyMsg); ok && km.String() == "esc" {
		p.editing = false
		p.form = nil
		return "", false, nil
	}

	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	switch p.form.State {
	case huh.StateCompleted:
		p.editing = false
		p.form = nil
		return strings.TrimSpace(p.formName), true, nil
	case huh.StateAborted:
		p.editing = false
		p.form = nil
		return "", false, nil
	}
	return "", false, cmd
}

// UpdateList forwards navigation to the list.
func (p *ProfilesTab) UpdateList(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return cmd
}

func (p ProfilesTab) View() string {
	if p.editing && p.form != nil {
		return p.form.View()
	}
	if len(p.names) == 0 {
		return dimStyle.Render(fmt.Sprintf("  No profiles yet. Press %q to save the staged settings.", "w"))
	}
	return p.list.View()
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
