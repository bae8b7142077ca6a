package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/1broseidon/resctl/internal/daemon"
	"github.com/1broseidon/resctl/internal/hotkeys"
	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/platform"
	"github.com/1broseidon/resctl/internal/profile"
	"github.com/1broseidon/resctl/internal/session"
)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runDaemon(args []string) int {
	fs := newFlagSet("daemon", "daemon [--config PATH] [--socket PATH]", "Start the resctl daemon in the foreground.")
	path := fs.String("config", "", "Config file path (default: ~/.config/resctl/config.yaml)")
	socket := fs.String("socket", "", "IPC socket path (default: $XDG_RUNTIME_DIR/resctl/resctl.sock)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	// Load configuration
	cfgPath, cfg, err := loadConfig(*path)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return exitCode(err)
	}
	store := profile.NewStore(cfgPath, cfg)

	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.General.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("configuration loaded", "path", cfgPath, "backend", cfg.Driver.Backend,
		"reset_timeout", cfg.General.ResetTimeout, "profiles", len(cfg.Profiles))

	// Connect to the display backend
	backend, err := platform.Open(cfg.Driver)
	if err != nil {
		logger.Error("failed to open display backend", "error", err)
		return 1
	}
	defer backend.Close()

	journal, err := openJournal(cfg)
	if err != nil {
		logger.Warn("history disabled", "error", err)
		journal = nil
	}
	defer journal.Close()

	sess := session.New(session.Options{
		Driver:       backend.Driver,
		Profiles:     store,
		Journal:      journal,
		Logger:       logger,
		ResetTimeout: cfg.General.ResetTimeout,
	})
	monitors, err := sess.Refresh()
	if err != nil {
		// The daemon stays up; the next refresh may succeed.
		logger.Error("initial enumeration failed", "error", err)
	} else {
		logger.Info("monitors enumerated", "count", len(monitors))
	}

	// Global confirm/revert keys
	if cfg.Hotkeys.Enabled && backend.Conn != nil {
		h := hotkeys.NewHandler(backend.Conn, sess, logger)
		if err := h.Register(cfg.Hotkeys.Confirm, cfg.Hotkeys.Revert); err != nil {
			logger.Warn("failed to register hotkeys", "error", err)
		} else {
			logger.Info("hotkeys registered", "confirm", cfg.Hotkeys.Confirm, "revert", cfg.Hotkeys.Revert)
		}
	}

	// Create config reload channel
	reloadChan := make(chan struct{}, 1)

	// Start IPC server
	ipcServer, err := ipc.NewServer(*socket, sess, reloadChan, logger)
	if err != nil {
		logger.Error("failed to create IPC server", "error", err)
		return 1
	}
	if err := ipcServer.Start(); err != nil {
		logger.Error("failed to start IPC server", "error", err)
		return 1
	}
	defer ipcServer.Stop()

	// Periodic re-enumeration
	refresher := daemon.NewRefresher(daemon.RefresherConfig{
		Interval: cfg.General.RefreshInterval.Std(),
		Logger:   logger,
	}, sess)
	refresherCtx, refresherCancel := context.WithCancel(context.Background())
	defer refresherCancel()
	go refresher.Run(refresherCtx)

	reload := func() {
		newCfg, err := store.Reload()
		if err != nil {
			logger.Error("config reload failed", "error", err)
			return
		}
		sess.SetResetTimeout(newCfg.General.ResetTimeout)
		level.Set(parseLevel(newCfg.General.LogLevel))
		if newCfg.General.RefreshInterval != cfg.General.RefreshInterval {
			logger.Warn("refresh_interval changes take effect after a restart")
		}
		logger.Info("config reloaded", "profiles", len(newCfg.Profiles), "reset_timeout", newCfg.General.ResetTimeout)
	}

	// Setup signal handlers
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	done := make(chan struct{})

	// Handle signals and config reloads
	go func() {
		for {
			select {
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGHUP:
					logger.Info("received SIGHUP, reloading config")
					reload()
				case os.Interrupt, syscall.SIGTERM:
					logger.Info("shutting down resctl daemon")
					refresherCancel()
					ipcServer.Stop()
					if err := sess.Close(); err != nil {
						logger.Error("revert on shutdown failed", "error", err)
					}
					close(done)
					if backend.Conn != nil {
						backend.Conn.Quit()
					}
					return
				}

			case <-reloadChan:
				reload()
			}
		}
	}()

	logger.Info("resctl daemon started", "socket", ipcServer.SocketPath())
	if backend.Conn != nil {
		// Start event loop (blocking)
		backend.Conn.EventLoop()
	}
	<-done
	return 0
}
