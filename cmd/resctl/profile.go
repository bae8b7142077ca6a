package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/1broseidon/resctl/internal/config"
	"github.com/1broseidon/resctl/internal/history"
	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/platform"
	"github.com/1broseidon/resctl/internal/profile"
	"github.com/1broseidon/resctl/internal/safetynet"
	"github.com/1broseidon/resctl/internal/session"
)

func printProfileUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  resctl profile list [--config PATH]")
	fmt.Fprintln(w, "  resctl profile save [--config PATH] <name>")
	fmt.Fprintln(w, "  resctl profile load [--apply] <name>")
	fmt.Fprintln(w, "  resctl profile delete [--config PATH] <name>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Without a running daemon, list, save and delete work on the config file")
	fmt.Fprintln(w, "directly; save then captures the current hardware settings.")
}

func runProfile(args []string) int {
	if len(args) == 0 {
		printProfileUsage(os.Stderr)
		return 2
	}
	switch args[0] {
	case "list":
		return runProfileList(args[1:])
	case "save":
		return runProfileSave(args[1:])
	case "load":
		return runProfileLoad(args[1:])
	case "delete", "rm":
		return runProfileDelete(args[1:])
	case "help", "-h", "--help":
		printProfileUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown profile command: %s\n\n", args[0])
		printProfileUsage(os.Stderr)
		return 2
	}
}

func runProfileList(args []string) int {
	fs := newFlagSet("list", "list [--config PATH]", "List stored profiles.")
	path := fs.String("config", "", "Config file path (default: ~/.config/resctl/config.yaml)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	var profiles []config.Profile
	client := ipc.NewClient()
	if client.Available() {
		data, err := client.ListProfiles()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		profiles = data.Profiles
	} else {
		cfgPath, cfg, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCode(err)
		}
		store := profile.NewStore(cfgPath, cfg)
		profiles = store.List()
	}

	if len(profiles) == 0 {
		fmt.Println("no profiles")
		return 0
	}
	for _, p := range profiles {
		fmt.Printf("%s\t%d monitor(s)\n", p.Name, len(p.Settings))
	}
	return 0
}

func runProfileSave(args []string) int {
	fs := newFlagSet("save", "profile save [--config PATH] <name>", "Save the staged settings of every monitor as a profile.")
	path := fs.String("config", "", "Config file path (default: ~/.config/resctl/config.yaml)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	name := fs.Arg(0)

	client := ipc.NewClient()
	if client.Available() {
		if err := client.SaveProfile(name); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("saved profile %s\n", name)
		return 0
	}

	local, err := openLocal(*path, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode(err)
	}
	defer local.Close()
	p, err := local.sess.SaveProfile(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("saved profile %s (%d monitor(s))\n", p.Name, len(p.Settings))
	return 0
}

func runProfileLoad(args []string) int {
	fs := newFlagSet("load", "profile load [--apply] <name>", "Stage a profile in the running daemon.")
	applyNow := fs.Bool("apply", false, "Apply immediately and wait for keep/revert")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	if *applyNow {
		return runSwitch(fs.Args())
	}

	data, err := ipc.NewClient().LoadProfile(fs.Arg(0), false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("staged %d monitor(s) from %s\n", len(data.Staged), fs.Arg(0))
	return 0
}

func runProfileDelete(args []string) int {
	fs := newFlagSet("delete", "profile delete [--config PATH] <name>", "Delete a stored profile.")
	path := fs.String("config", "", "Config file path (default: ~/.config/resctl/config.yaml)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	name := fs.Arg(0)

	client := ipc.NewClient()
	if client.Available() {
		if err := client.DeleteProfile(name); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	} else {
		cfgPath, cfg, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCode(err)
		}
		store := profile.NewStore(cfgPath, cfg)
		if err := store.Delete(name); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	fmt.Printf("deleted profile %s\n", name)
	return 0
}

func runSwitch(args []string) int {
	fs := newFlagSet("switch", "switch [--config PATH] [--yes] <profile>",
		"Load a profile, apply it and ask whether to keep it. Unconfirmed changes\n"+
			"are reverted when the countdown ends. Works without a running daemon.")
	path := fs.String("config", "", "Config file path (default: ~/.config/resctl/config.yaml)")
	yes := fs.Bool("yes", false, "Keep the new settings without asking")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	name := fs.Arg(0)

	client := ipc.NewClient()
	if client.Available() {
		data, err := client.LoadProfile(name, true)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if data.Apply == nil {
			fmt.Fprintln(os.Stderr, "daemon did not apply the profile")
			return 1
		}
		if code := printApply(os.Stdout, data.Apply); !data.Apply.Armed {
			return code
		}
		if *yes {
			return finishYes(daemonDecider{client: client})
		}
		return promptKeep(daemonDecider{client: client})
	}

	local, err := openLocal(*path, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode(err)
	}
	defer local.Close()

	code, err := switchLocal(local.sess, name, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return code
	}
	if code != 0 || local.sess.Status().State != safetynet.AwaitingConfirmation {
		return code
	}
	if *yes {
		return finishYes(sessionDecider{sess: local.sess})
	}
	return promptKeep(sessionDecider{sess: local.sess})
}

// switchLocal loads and applies name in sess and reports the outcome.
func switchLocal(sess *session.Session, name string, w io.Writer) (int, error) {
	result, err := sess.SwitchProfile(name)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "error: %s %s: %s\n", e.MonitorName, e.Op, e.Err)
	}
	if err != nil {
		return 1, err
	}
	if !result.Armed {
		fmt.Fprintln(w, "nothing applied")
		return 1, nil
	}
	fmt.Fprintf(w, "applied %s; reverting in %d second(s) unless confirmed\n", name, result.Status.Remaining)
	return 0, nil
}

func finishYes(d decider) int {
	if err := d.Keep(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("kept")
	return 0
}

// localSession is a daemonless session over the configured backend.
type localSession struct {
	sess    *session.Session
	backend *platform.Backend
	journal *history.Journal
}

func openLocal(path string, logger *slog.Logger) (*localSession, error) {
	cfgPath, cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	store := profile.NewStore(cfgPath, cfg)
	backend, err := platform.Open(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open display backend: %w", err)
	}
	journal, err := openJournal(cfg)
	if err != nil {
		logger.Warn("history disabled", "error", err)
		journal = nil
	}
	sess := session.New(session.Options{
		Driver:   backend.Driver,
		Profiles: store,
		Journal:  journal,
		Logger:   logger,
	})
	if _, err := sess.Refresh(); err != nil {
		backend.Close()
		journal.Close()
		return nil, err
	}
	return &localSession{sess: sess, backend: backend, journal: journal}, nil
}

// Close reverts anything still unconfirmed and releases the backend.
func (l *localSession) Close() {
	if err := l.sess.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	l.backend.Close()
	l.journal.Close()
}

func openJournal(cfg *config.Config) (*history.Journal, error) {
	file, err := historyPath(cfg)
	if err != nil {
		return nil, err
	}
	return history.Open(history.Config{
		Enabled:   cfg.History.Enabled,
		FilePath:  file,
		MaxSizeMB: cfg.History.MaxSizeMB,
		MaxFiles:  cfg.History.MaxFiles,
	})
}
