//go:build linux

package platform

import (
	"fmt"

	"github.com/1broseidon/resctl/internal/x11"
)

func openX11(displayName string) (*Backend, error) {
	conn, err := x11.NewConnection(displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return &Backend{Driver: x11.NewDriver(conn), Conn: conn}, nil
}
