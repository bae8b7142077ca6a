// Package tui is an interactive front end to a running daemon: it shows
// monitors with their staged settings and drives apply, confirm and revert.
package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/1broseidon/resctl/internal/ipc"
)

// Client is the daemon surface the TUI uses. *ipc.Client satisfies it.
type Client interface {
	GetStatus() (*ipc.StatusData, error)
	Refresh() (*ipc.StatusData, error)
	SetMode(p ipc.SetModePayload) (*ipc.SetModeData, error)
	SetOrientation(monitorID, orientation string) error
	Apply() (*ipc.ApplyData, error)
	Confirm() error
	Revert() (*ipc.RevertData, error)
	SaveProfile(name string) error
	LoadProfile(name string, apply bool) (*ipc.LoadProfileData, error)
	DeleteProfile(name string) error
}

// Run starts the TUI against client and blocks until the user quits.
func Run(client Client) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("tui requires an interactive terminal (stdin/stdout must be TTYs)")
	}

	p := tea.NewProgram(newModel(client), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
