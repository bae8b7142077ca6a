//go:build !linux

package platform

import "fmt"

func openX11(string) (*Backend, error) {
	return nil, fmt.Errorf("x11 backend is only supported on linux; use the sim backend")
}
