package palette

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	actionBack    = "__back__"
	submenuPrefix = "__submenu__:"
)

// MenuItem represents an item in the menu hierarchy.
type MenuItem struct {
	Label     string
	Action    string // empty for parent items
	Icon      string
	Meta      string
	IsHeader  bool
	IsDivider bool
	IsActive  bool
	IsUrgent  bool
	Submenu   []MenuItem
}

// IsParent returns true if this item has a submenu.
func (m MenuItem) IsParent() bool {
	return len(m.Submenu) > 0
}

// Menu handles hierarchical menu navigation using a palette backend.
type Menu struct {
	backend Backend
	root    []MenuItem
	prompt  string
	message string
}

// NewMenu creates a new hierarchical menu with the given backend and root items.
func NewMenu(backend Backend, prompt string, items []MenuItem) *Menu {
	return &Menu{
		backend: backend,
		root:    items,
		prompt:  prompt,
	}
}

// SetMessage sets a context message shown in backends with a message bar.
func (m *Menu) SetMessage(msg string) {
	m.message = msg
}

// Show walks the menu until a leaf is chosen and returns its action.
// Returns ErrCancelled if the user exits from the top level.
func (m *Menu) Show() (string, error) {
	return m.showLevel(m.root, nil)
}

func (m *Menu) showLevel(items []MenuItem, breadcrumb []string) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("menu: no items to show")
	}

	prompt := m.prompt
	if len(breadcrumb) > 0 {
		prompt = breadcrumb[len(breadcrumb)-1]
	}

	for {
		rows := make([]Item, 0, len(items)+1)
		if len(breadcrumb) > 0 {
			rows = append(rows, Item{Label: "← Back", Action: actionBack, Icon: "go-previous"})
		}
		for i, item := range items {
			row := Item{
				Label:     item.Label,
				Action:    item.Action,
				Icon:      item.Icon,
				Meta:      item.Meta,
				IsHeader:  item.IsHeader,
				IsDivider: item.IsDivider,
				IsActive:  item.IsActive,
				IsUrgent:  item.IsUrgent,
			}
			switch {
			case item.IsParent():
				row.Label += " →"
				row.Action = submenuPrefix + strconv.Itoa(i)
				if row.Icon == "" {
					row.Icon = "folder"
				}
			case strings.TrimSpace(row.Action) == "":
				row.Action = "noop"
			}
			rows = append(rows, row)
		}

		result, err := m.backend.Show(prompt, rows, m.message)
		if err != nil {
			return "", err
		}

		// Some backends can't enforce non-selectable rows.
		if !result.Item.selectable() {
			continue
		}
		if result.Item.Action == actionBack {
			return "", ErrCancelled
		}

		if strings.HasPrefix(result.Item.Action, submenuPrefix) {
			idx, err := strconv.Atoi(strings.TrimPrefix(result.Item.Action, submenuPrefix))
			if err != nil || idx < 0 || idx >= len(items) || !items[idx].IsParent() {
				continue
			}
			action, err := m.showLevel(items[idx].Submenu, append(breadcrumb, items[idx].Label))
			if errors.Is(err, ErrCancelled) {
				continue
			}
			return action, err
		}

		return result.Item.Action, nil
	}
}
