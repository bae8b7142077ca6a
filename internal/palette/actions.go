package palette

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/safetynet"
)

const (
	actionApply   = "apply"
	actionConfirm = "confirm"
	actionRevert  = "revert"
	actionRefresh = "refresh"
	actionNoop    = "noop"

	prefixProfile = "profile:"
	prefixMode    = "mode:"
	prefixRotate  = "rotate:"
)

// Client is the daemon surface the palette uses. *ipc.Client satisfies it.
type Client interface {
	GetStatus() (*ipc.StatusData, error)
	Refresh() (*ipc.StatusData, error)
	SetMode(p ipc.SetModePayload) (*ipc.SetModeData, error)
	SetOrientation(monitorID, orientation string) error
	Apply() (*ipc.ApplyData, error)
	Confirm() error
	Revert() (*ipc.RevertData, error)
	LoadProfile(name string, apply bool) (*ipc.LoadProfileData, error)
}

// Outcome is what an executed action did.
type Outcome struct {
	Message string
	// Armed is true when the action left a change awaiting confirmation.
	Armed bool
}

// BuildMenu returns the palette for the given daemon state. While a change
// awaits confirmation only keep and revert are offered.
func BuildMenu(status *ipc.StatusData) []MenuItem {
	if status.SafetyNet.State == safetynet.AwaitingConfirmation {
		return confirmMenu(status.SafetyNet.Remaining)
	}

	var items []MenuItem
	if len(status.Profiles) > 0 {
		items = append(items, MenuItem{Label: "Profiles", IsHeader: true})
		for _, name := range status.Profiles {
			items = append(items, MenuItem{
				Label:  "Switch to " + name,
				Action: prefixProfile + name,
				Icon:   "video-display",
				Meta:   "profile " + name,
			})
		}
		items = append(items, MenuItem{Label: "────────", IsDivider: true})
	}

	items = append(items, MenuItem{Label: "Monitors", IsHeader: true})
	pending := 0
	for _, m := range status.Monitors {
		if m.Pending {
			pending++
		}
		items = append(items, monitorMenu(m.Monitor))
	}

	items = append(items, MenuItem{Label: "────────", IsDivider: true})
	if pending > 0 {
		items = append(items, MenuItem{
			Label:    fmt.Sprintf("Apply %d staged change(s)", pending),
			Action:   actionApply,
			Icon:     "dialog-ok-apply",
			IsUrgent: true,
		})
	}
	items = append(items, MenuItem{Label: "Refresh monitors", Action: actionRefresh, Icon: "view-refresh"})
	return items
}

func confirmMenu(remaining int) []MenuItem {
	return []MenuItem{
		{Label: fmt.Sprintf("Keep these settings? Reverting in %ds", remaining), IsHeader: true},
		{Label: "Keep settings", Action: actionConfirm, Icon: "dialog-ok", IsActive: true},
		{Label: "Revert now", Action: actionRevert, Icon: "edit-undo", IsUrgent: true},
	}
}

func monitorMenu(m display.Monitor) MenuItem {
	modes := make([]MenuItem, 0, len(m.Modes))
	for _, r := range m.Modes {
		modes = append(modes, MenuItem{
			Label:    r.String(),
			Action:   fmt.Sprintf("%s%s:%dx%d@%d", prefixMode, m.ID, r.Width, r.Height, r.Frequency),
			IsActive: r == m.Current,
		})
	}
	rotations := make([]MenuItem, 0, len(display.Orientations))
	for _, o := range display.Orientations {
		rotations = append(rotations, MenuItem{
			Label:    fmt.Sprintf("%s (%s)", o, o.Label()),
			Action:   prefixRotate + m.ID + ":" + o.String(),
			IsActive: o == m.Orientation,
		})
	}

	sub := []MenuItem{{Label: "Rotation", Icon: "object-rotate-right", Submenu: rotations}}
	if len(modes) > 0 {
		sub = append([]MenuItem{{Label: "Resolution", Icon: "video-display", Submenu: modes}}, sub...)
	}
	return MenuItem{
		Label:   fmt.Sprintf("%s (%s) %dx%d", m.Name, m.DeviceName, m.Current.Width, m.Current.Height),
		Meta:    m.ID + " " + m.DeviceName,
		Submenu: sub,
	}
}

// Execute performs a palette action against the daemon. Mode and rotation
// choices are applied right away.
func Execute(c Client, action string) (Outcome, error) {
	switch {
	case action == actionNoop:
		return Outcome{}, nil
	case action == actionConfirm:
		if err := c.Confirm(); err != nil {
			return Outcome{}, err
		}
		return Outcome{Message: "Settings kept"}, nil
	case action == actionRevert:
		if _, err := c.Revert(); err != nil {
			return Outcome{}, err
		}
		return Outcome{Message: "Settings reverted"}, nil
	case action == actionRefresh:
		if _, err := c.Refresh(); err != nil {
			return Outcome{}, err
		}
		return Outcome{Message: "Monitors refreshed"}, nil
	case action == actionApply:
		return applyNow(c)
	case strings.HasPrefix(action, prefixProfile):
		name := strings.TrimPrefix(action, prefixProfile)
		data, err := c.LoadProfile(name, true)
		if err != nil {
			return Outcome{}, err
		}
		if data.Apply == nil {
			return Outcome{Message: fmt.Sprintf("Profile %q staged", name)}, nil
		}
		return describeApply(data.Apply), nil
	case strings.HasPrefix(action, prefixMode):
		id, res, err := parseModeAction(strings.TrimPrefix(action, prefixMode))
		if err != nil {
			return Outcome{}, err
		}
		if _, err := c.SetMode(ipc.SetModePayload{MonitorID: id, Width: res.Width, Height: res.Height, Frequency: res.Frequency}); err != nil {
			return Outcome{}, err
		}
		return applyNow(c)
	case strings.HasPrefix(action, prefixRotate):
		rest := strings.TrimPrefix(action, prefixRotate)
		i := strings.LastIndex(rest, ":")
		if i <= 0 {
			return Outcome{}, fmt.Errorf("palette: malformed action %q", action)
		}
		if err := c.SetOrientation(rest[:i], rest[i+1:]); err != nil {
			return Outcome{}, err
		}
		return applyNow(c)
	}
	return Outcome{}, fmt.Errorf("palette: unknown action %q", action)
}

func applyNow(c Client) (Outcome, error) {
	data, err := c.Apply()
	if err != nil {
		return Outcome{}, err
	}
	return describeApply(data), nil
}

func describeApply(data *ipc.ApplyData) Outcome {
	if data.Message != "" {
		return Outcome{Message: data.Message, Armed: data.Armed}
	}
	msg := fmt.Sprintf("Applied; reverting in %ds unless kept", data.SafetyNet.Remaining)
	if len(data.Errors) > 0 {
		msg = fmt.Sprintf("Applied with %d error(s); reverting in %ds unless kept", len(data.Errors), data.SafetyNet.Remaining)
	}
	return Outcome{Message: msg, Armed: data.Armed}
}

// parseModeAction splits "<id>:<w>x<h>@<f>". The id may itself contain ':'.
func parseModeAction(s string) (string, display.Resolution, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return "", display.Resolution{}, fmt.Errorf("palette: malformed mode %q", s)
	}
	id, mode := s[:i], s[i+1:]

	size, freq, _ := strings.Cut(mode, "@")
	ws, hs, ok := strings.Cut(size, "x")
	if !ok {
		return "", display.Resolution{}, fmt.Errorf("palette: malformed mode %q", s)
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil {
		return "", display.Resolution{}, fmt.Errorf("palette: malformed mode %q", s)
	}
	res := display.Resolution{Width: w, Height: h}
	if freq != "" {
		f, err := strconv.Atoi(freq)
		if err != nil {
			return "", display.Resolution{}, fmt.Errorf("palette: malformed mode %q", s)
		}
		res.Frequency = f
	}
	return id, res, nil
}

// Run shows the palette for the current state and executes the choice. When
// the choice leaves a change pending, the keep/revert prompt follows
// immediately; cancelling it leaves the countdown running.
func Run(c Client, backend Backend) (Outcome, error) {
	status, err := c.GetStatus()
	if err != nil {
		return Outcome{}, err
	}

	menu := NewMenu(backend, "resctl", BuildMenu(status))
	if status.LastError != "" {
		menu.SetMessage("last error: " + status.LastError)
	}
	action, err := menu.Show()
	if err != nil {
		return Outcome{}, err
	}

	outcome, err := Execute(c, action)
	if err != nil || !outcome.Armed {
		return outcome, err
	}

	status, err = c.GetStatus()
	if err != nil {
		return outcome, err
	}
	if status.SafetyNet.State != safetynet.AwaitingConfirmation {
		return outcome, nil
	}
	prompt := NewMenu(backend, "resctl", confirmMenu(status.SafetyNet.Remaining))
	prompt.SetMessage(outcome.Message)
	action, err = prompt.Show()
	if errors.Is(err, ErrCancelled) {
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}
	return Execute(c, action)
}
