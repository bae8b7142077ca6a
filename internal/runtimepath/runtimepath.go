// Package runtimepath locates the per-user runtime files of the daemon.
package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvSocket overrides the IPC socket path.
const EnvSocket = "RESCTL_SOCKET"

// Dir returns the per-user runtime directory, creating it if needed:
// $XDG_RUNTIME_DIR/resctl, or resctl-<uid> under the system temp dir. The
// temp-dir fallback must be owned by the caller and is forced to 0700.
func Dir() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); base != "" {
		dir := filepath.Join(base, "resctl")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("failed to create runtime dir: %w", err)
		}
		return dir, nil
	}

	dir := filepath.Join(os.TempDir(), fmt.Sprintf("resctl-%d", os.Getuid()))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	if err := checkPrivate(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// SocketPath returns the daemon socket for the X display in $DISPLAY, so
// daemons driving different displays do not collide.
func SocketPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvSocket)); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SocketName(os.Getenv("DISPLAY"))), nil
}

// SocketName maps a display name such as ":1" or "host:0.1" to a socket
// file name. The default display ":0" and an unset display share
// "resctl.sock".
func SocketName(display string) string {
	display = strings.TrimSpace(display)
	if display == "" || display == ":0" || display == ":0.0" {
		return "resctl.sock"
	}
	var b strings.Builder
	for _, r := range strings.TrimPrefix(display, ":") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return "resctl-" + b.String() + ".sock"
}
