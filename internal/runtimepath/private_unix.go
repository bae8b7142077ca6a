//go:build unix

package runtimepath

import (
	"fmt"
	"os"
	"syscall"
)

func checkPrivate(dir string) error {
	info, err := os.Lstat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat runtime dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("runtime dir %s is not a directory", dir)
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok && int(st.Uid) != os.Getuid() {
		return fmt.Errorf("runtime dir %s is owned by uid %d", dir, st.Uid)
	}
	if info.Mode().Perm() != 0o700 {
		if err := os.Chmod(dir, 0o700); err != nil {
			return fmt.Errorf("failed to restrict runtime dir: %w", err)
		}
	}
	return nil
}
