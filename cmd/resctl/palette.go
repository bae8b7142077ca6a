package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/palette"
)

func runPalette(args []string) int {
	fs := newFlagSet("palette", "palette [--config PATH] [--backend NAME]",
		"Show a launcher menu for profiles, modes and rotation. After an apply\n"+
			"the menu asks to keep or revert; dismissing it lets the countdown run.\n\n"+
			"Backends: rofi, fuzzel, wofi, dmenu (palette.backend, default: auto).")
	path := fs.String("config", "", "Config file path (default: ~/.config/resctl/config.yaml)")
	backendName := fs.String("backend", "", "Override palette.backend")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	name := *backendName
	if name == "" {
		_, cfg, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCode(err)
		}
		name = cfg.Palette.Backend
	}

	backend, err := palette.NewBackend(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	outcome, err := palette.Run(ipc.NewClient(), backend)
	if err != nil {
		if errors.Is(err, palette.ErrCancelled) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if outcome.Message != "" {
		fmt.Println(outcome.Message)
	}
	return 0
}
