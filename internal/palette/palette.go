// Package palette drives dmenu-style launchers (rofi, fuzzel, wofi, dmenu)
// as a quick switcher for display profiles and the keep/revert prompt.
package palette

import (
	"fmt"
	"os/exec"
	"strings"
)

// Item is a single selectable entry in a palette menu.
type Item struct {
	Label     string // Display text
	Action    string // Action identifier returned on selection
	Icon      string // Icon name for rofi -show-icons
	Meta      string // Hidden search keywords (rofi meta field)
	IsHeader  bool   // Non-selectable section header
	IsDivider bool   // Non-selectable divider line
	IsActive  bool   // Highlighted as current
	IsUrgent  bool   // Highlighted as urgent
}

func (i Item) selectable() bool {
	return !i.IsHeader && !i.IsDivider
}

// SelectResult contains the result of a palette selection.
type SelectResult struct {
	Item     Item
	ExitCode int
}

// Capabilities describes what features a backend supports.
type Capabilities struct {
	Icons         bool // Supports icon display
	Markup        bool // Supports pango markup in labels
	NonSelectable bool // Supports non-selectable rows (headers)
	IndexOutput   bool // Can output selection index (not just text)
	MessageBar    bool // Supports message/prompt bar
	RowStates     bool // Supports active/urgent row highlighting
}

// Backend shows a palette to the user and returns the selected item.
type Backend interface {
	// Show displays items under prompt. message is shown in a message bar
	// where the backend has one.
	Show(prompt string, items []Item, message string) (SelectResult, error)
	Capabilities() Capabilities
}

// launcherOrder is the auto-detection priority.
var launcherOrder = []string{"rofi", "fuzzel", "wofi", "dmenu"}

// DetectBackend returns the first launcher found in PATH.
func DetectBackend() (string, error) {
	for _, name := range launcherOrder {
		if _, err := exec.LookPath(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("no palette backend found in PATH (looked for: %s)", strings.Join(launcherOrder, ", "))
}

// NewBackend creates a backend by name. "" and "auto" detect one.
func NewBackend(name string) (Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		detected, err := DetectBackend()
		if err != nil {
			return nil, err
		}
		name = detected
	}

	b, ok := newLauncher(name)
	if !ok {
		return nil, fmt.Errorf("unknown palette backend: %q (expected: auto, %s)", name, strings.Join(launcherOrder, ", "))
	}
	if _, err := exec.LookPath(b.command); err != nil {
		return nil, fmt.Errorf("palette backend %q not found in PATH", name)
	}
	return b, nil
}
