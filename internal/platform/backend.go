package platform

import (
	"fmt"

	"github.com/1broseidon/resctl/internal/config"
	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/x11"
)

// Backend bundles the display driver with the window-system connection it
// runs on. Conn is nil for backends without an X server.
type Backend struct {
	Driver display.Driver
	Conn   *x11.Connection
}

// Open creates the backend selected by cfg.
func Open(cfg config.Driver) (*Backend, error) {
	switch cfg.Backend {
	case "sim":
		drv, err := LoadSimDriver(cfg.SimFile)
		if err != nil {
			return nil, err
		}
		return &Backend{Driver: drv}, nil
	case "x11", "":
		return openX11(cfg.Display)
	default:
		return nil, fmt.Errorf("unknown driver backend %q", cfg.Backend)
	}
}

// Close releases the window-system connection, if any.
func (b *Backend) Close() {
	if b != nil && b.Conn != nil {
		b.Conn.Close()
	}
}
