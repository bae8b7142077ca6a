package palette

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"os/exec"
	"strconv"
	"strings"
)

// ErrCancelled is returned when the user closes the palette without selecting an item.
var ErrCancelled = errors.New("palette cancelled")

type launcherKind int

const (
	kindRofi launcherKind = iota
	kindFuzzel
	kindWofi
	kindDmenu
)

// launcher runs one dmenu-compatible program per Show call.
type launcher struct {
	command string
	kind    launcherKind
	caps    Capabilities
}

type rowStates struct {
	active   []int
	urgent   []int
	selected int // -1 when nothing is selectable
}

func newLauncher(name string) (*launcher, bool) {
	switch name {
	case "rofi":
		return &launcher{command: "rofi", kind: kindRofi, caps: Capabilities{
			Icons: true, Markup: true, NonSelectable: true, IndexOutput: true, MessageBar: true, RowStates: true,
		}}, true
	case "fuzzel":
		return &launcher{command: "fuzzel", kind: kindFuzzel, caps: Capabilities{
			Icons: true, IndexOutput: true,
		}}, true
	case "wofi":
		return &launcher{command: "wofi", kind: kindWofi, caps: Capabilities{
			Icons: true, Markup: true,
		}}, true
	case "dmenu":
		return &launcher{command: "dmenu", kind: kindDmenu}, true
	}
	return nil, false
}

func (l *launcher) Capabilities() Capabilities {
	return l.caps
}

func (l *launcher) Show(prompt string, items []Item, message string) (SelectResult, error) {
	if len(items) == 0 {
		return SelectResult{}, fmt.Errorf("palette: no items to show")
	}

	rows := make([]Item, len(items))
	copy(rows, items)

	input, states := l.render(rows)
	cmd := exec.Command(l.command, l.args(prompt, message, states)...)
	cmd.Stdin = strings.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	selection := strings.TrimSpace(string(out))

	if err != nil {
		if selection == "" && isCancelExit(err) {
			return SelectResult{}, ErrCancelled
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return SelectResult{}, fmt.Errorf("%s failed: %s", l.command, msg)
		}
		return SelectResult{}, fmt.Errorf("%s failed: %w", l.command, err)
	}
	if selection == "" {
		return SelectResult{}, ErrCancelled
	}

	item, err := l.parse(selection, rows)
	if err != nil {
		return SelectResult{}, err
	}
	return SelectResult{Item: item}, nil
}

func (l *launcher) args(prompt, message string, states rowStates) []string {
	var args []string
	switch l.kind {
	case kindRofi:
		args = []string{"-dmenu", "-i", "-format", "i", "-no-custom", "-markup-rows", "-show-icons"}
		if prompt != "" {
			args = append(args, "-p", prompt)
		}
		if len(states.active) > 0 {
			args = append(args, "-a", joinInts(states.active))
		}
		if len(states.urgent) > 0 {
			args = append(args, "-u", joinInts(states.urgent))
		}
		if states.selected >= 0 {
			args = append(args, "-selected-row", strconv.Itoa(states.selected))
		}
		if message != "" {
			args = append(args, "-mesg", message)
		}
	case kindFuzzel:
		args = []string{"--dmenu", "--index"}
		if prompt != "" {
			args = append(args, "--prompt", prompt)
		}
	case kindWofi:
		args = []string{"--dmenu", "--allow-markup", "--allow-images"}
		if prompt != "" {
			args = append(args, "--prompt", prompt)
		}
	case kindDmenu:
		args = []string{"-i"}
		if prompt != "" {
			args = append(args, "-p", prompt)
		}
	}
	return args
}

// render builds the launcher's stdin. Text-matching launchers get duplicate
// labels suffixed so a selection maps back to exactly one row.
func (l *launcher) render(rows []Item) (string, rowStates) {
	if !l.caps.IndexOutput {
		seen := make(map[string]int)
		for i := range rows {
			if !rows[i].selectable() {
				continue
			}
			label := cleanLabel(rows[i].Label)
			if label == "" {
				continue
			}
			if n := seen[label]; n > 0 {
				rows[i].Label = fmt.Sprintf("%s (%d)", label, n+1)
			}
			seen[label]++
		}
	}

	states := rowStates{selected: -1}
	firstActive := -1
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = l.line(row)
		if !row.selectable() {
			continue
		}
		if states.selected < 0 {
			states.selected = i
		}
		if row.IsActive && firstActive < 0 {
			firstActive = i
		}
		if l.caps.RowStates {
			if row.IsActive {
				states.active = append(states.active, i)
			}
			if row.IsUrgent {
				states.urgent = append(states.urgent, i)
			}
		}
	}
	if firstActive >= 0 {
		states.selected = firstActive
	}
	return strings.Join(lines, "\n"), states
}

func (l *launcher) line(row Item) string {
	text := cleanLabel(row.Label)
	if l.caps.Markup {
		text = html.EscapeString(text)
		switch {
		case row.IsHeader:
			text = "<b>" + text + "</b>"
		case row.IsDivider:
			text = "<span foreground='#666666'>" + text + "</span>"
		}
	}
	if l.kind != kindRofi {
		return text
	}

	// rofi row properties: one NUL, then key\x1fvalue pairs joined by \x1f.
	var props []string
	if !row.selectable() {
		props = append(props, "nonselectable", "true")
	}
	if row.Icon != "" {
		props = append(props, "icon", cleanField(row.Icon))
	}
	if row.Meta != "" {
		props = append(props, "meta", cleanField(row.Meta))
	}
	if len(props) == 0 {
		return text
	}
	return text + "\x00" + strings.Join(props, "\x1f")
}

func (l *launcher) parse(selection string, rows []Item) (Item, error) {
	if l.caps.IndexOutput {
		if idx, err := strconv.Atoi(selection); err == nil {
			if idx < 0 || idx >= len(rows) {
				return Item{}, fmt.Errorf("palette: index %d out of range", idx)
			}
			return rows[idx], nil
		}
	}
	for _, row := range rows {
		if cleanLabel(row.Label) == selection {
			return row, nil
		}
	}
	return Item{}, fmt.Errorf("palette: unknown selection %q", selection)
}

func cleanLabel(label string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(label))
}

func cleanField(value string) string {
	return strings.TrimSpace(strings.NewReplacer("\x00", " ", "\x1f", " ", "\r", " ", "\n", " ").Replace(value))
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func isCancelExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	// 1 is "no selection" for every supported launcher, 130 is Ctrl+C.
	switch exitErr.ExitCode() {
	case 1, 130:
		return true
	}
	return false
}
