package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/1broseidon/resctl/internal/config"
	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/history"
	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/safetynet"
	"github.com/1broseidon/resctl/internal/session"
	"github.com/1broseidon/resctl/internal/tui"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "refresh":
		os.Exit(runRefresh(os.Args[2:]))
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "set":
		os.Exit(runSet(os.Args[2:]))
	case "rotate":
		os.Exit(runRotate(os.Args[2:]))
	case "apply":
		os.Exit(runApply(os.Args[2:]))
	case "confirm":
		os.Exit(runConfirm(os.Args[2:]))
	case "revert":
		os.Exit(runRevert(os.Args[2:]))
	case "list":
		os.Exit(runProfileList(os.Args[2:]))
	case "profile":
		os.Exit(runProfile(os.Args[2:]))
	case "switch":
		os.Exit(runSwitch(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "history":
		os.Exit(runHistory(os.Args[2:]))
	case "palette":
		os.Exit(runPalette(os.Args[2:]))
	case "tui":
		os.Exit(runTUI(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: resctl <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the resctl daemon (foreground)")
	fmt.Fprintln(w, "  status              Show monitors, staged settings and safety net")
	fmt.Fprintln(w, "  refresh             Re-enumerate monitors")
	fmt.Fprintln(w, "  reload              Reload the daemon configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  set                 Stage a resolution for a monitor")
	fmt.Fprintln(w, "  rotate              Stage an orientation for a monitor")
	fmt.Fprintln(w, "  apply               Apply staged settings (arms the safety net)")
	fmt.Fprintln(w, "  confirm             Keep the applied settings")
	fmt.Fprintln(w, "  revert              Restore the last good settings now")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  list                List profiles")
	fmt.Fprintln(w, "  switch              Load a profile, apply it and ask to keep it")
	fmt.Fprintln(w, "  profile save        Save staged settings as a profile")
	fmt.Fprintln(w, "  profile load        Stage a profile")
	fmt.Fprintln(w, "  profile delete      Delete a profile")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  history             Show recent actions")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  palette             Open launcher menu")
	fmt.Fprintln(w, "  tui                 Open interactive TUI")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'resctl <command> --help' for command-specific options.")
}

// parseFlags runs fs over args and maps the outcome onto an exit code. ok is
// false when the caller should return code.
func parseFlags(fs *flag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func newFlagSet(name, usage, about string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: resctl "+usage)
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, about)
		fs.PrintDefaults()
	}
	return fs
}

func loadConfig(path string) (string, *config.Config, error) {
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return "", nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return path, nil, err
	}
	return path, cfg, nil
}

func runStatus(args []string) int {
	fs := newFlagSet("status", "status [--json]", "Show monitors, staged settings and the safety net via IPC.")
	asJSON := fs.Bool("json", false, "Print the raw status document")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	status, err := ipc.NewClient().GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(os.Stdout, status)
	}
	printView(os.Stdout, status.View)
	fmt.Printf("uptime_seconds: %d\n", status.UptimeSeconds)
	return 0
}

func runRefresh(args []string) int {
	fs := newFlagSet("refresh", "refresh", "Re-enumerate monitors and reconcile staged settings.")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	status, err := ipc.NewClient().Refresh()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	printView(os.Stdout, status.View)
	return 0
}

func runReload(args []string) int {
	fs := newFlagSet("reload", "reload", "Ask the daemon to re-read its configuration file.")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := ipc.NewClient().Reload(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("reload requested")
	return 0
}

func runSet(args []string) int {
	fs := newFlagSet("set", "set [--apply] <monitor> <WxH[@Hz]>",
		"Stage a resolution. Without a refresh rate the best matching mode is picked.")
	applyNow := fs.Bool("apply", false, "Apply immediately and wait for keep/revert")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 2
	}
	payload, err := parseModeArg(fs.Arg(0), fs.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	client := ipc.NewClient()
	data, err := client.SetMode(payload)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("staged %s: %s\n", payload.MonitorID, data.Staged)
	if *applyNow {
		return applyAndWait(client)
	}
	return 0
}

// parseModeArg reads "WxH", "WxH@F" or "WxH@F:B".
func parseModeArg(monitorID, mode string) (ipc.SetModePayload, error) {
	p := ipc.SetModePayload{MonitorID: monitorID}
	rest, bits, hasBits := strings.Cut(mode, ":")
	size, freq, hasFreq := strings.Cut(rest, "@")
	ws, hs, ok := strings.Cut(strings.ToLower(size), "x")
	if !ok {
		return p, fmt.Errorf("invalid mode %q (want WxH[@Hz])", mode)
	}
	var err error
	if p.Width, err = strconv.Atoi(ws); err != nil || p.Width <= 0 {
		return p, fmt.Errorf("invalid width in %q", mode)
	}
	if p.Height, err = strconv.Atoi(hs); err != nil || p.Height <= 0 {
		return p, fmt.Errorf("invalid height in %q", mode)
	}
	if hasFreq {
		if p.Frequency, err = strconv.Atoi(strings.TrimSuffix(strings.ToLower(freq), "hz")); err != nil || p.Frequency <= 0 {
			return p, fmt.Errorf("invalid refresh rate in %q", mode)
		}
	}
	if hasBits {
		if p.BitsPerPixel, err = strconv.Atoi(bits); err != nil || p.BitsPerPixel <= 0 {
			return p, fmt.Errorf("invalid bit depth in %q", mode)
		}
	}
	return p, nil
}

func runRotate(args []string) int {
	fs := newFlagSet("rotate", "rotate [--apply] <monitor> <orientation>",
		"Stage an orientation: landscape, portrait, landscape-flipped, portrait-flipped,\n"+
			"normal/left/inverted/right or degrees (0, 90, 180, 270).")
	applyNow := fs.Bool("apply", false, "Apply immediately and wait for keep/revert")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 2
	}
	if _, err := display.ParseOrientation(fs.Arg(1)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	client := ipc.NewClient()
	if err := client.SetOrientation(fs.Arg(0), fs.Arg(1)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("staged %s: %s\n", fs.Arg(0), fs.Arg(1))
	if *applyNow {
		return applyAndWait(client)
	}
	return 0
}

func runApply(args []string) int {
	fs := newFlagSet("apply", "apply [--wait]", "Apply staged settings and arm the safety net.")
	wait := fs.Bool("wait", false, "Show the countdown and ask to keep or revert")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	client := ipc.NewClient()
	if *wait {
		return applyAndWait(client)
	}
	data, err := client.Apply()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return printApply(os.Stdout, data)
}

func applyAndWait(client *ipc.Client) int {
	data, err := client.Apply()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if code := printApply(os.Stdout, data); !data.Armed {
		return code
	}
	return promptKeep(daemonDecider{client: client})
}

// printApply reports per-monitor failures and returns 1 when nothing was
// applied.
func printApply(w io.Writer, data *ipc.ApplyData) int {
	for _, e := range data.Errors {
		fmt.Fprintf(w, "error: %s %s: %s\n", e.Monitor, e.Op, e.Error)
	}
	switch {
	case data.Armed:
		fmt.Fprintf(w, "applied; reverting in %d second(s) unless confirmed\n", data.SafetyNet.Remaining)
		return 0
	case data.Message != "":
		fmt.Fprintln(w, data.Message)
		return 0
	default:
		fmt.Fprintln(w, "nothing applied")
		return 1
	}
}

func runConfirm(args []string) int {
	fs := newFlagSet("confirm", "confirm", "Keep the applied settings and disarm the safety net.")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := ipc.NewClient().Confirm(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("kept")
	return 0
}

func runRevert(args []string) int {
	fs := newFlagSet("revert", "revert", "Restore the last good settings immediately.")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	data, err := ipc.NewClient().Revert()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	for _, e := range data.Errors {
		fmt.Fprintf(os.Stderr, "error: %s %s: %s\n", e.Monitor, e.Op, e.Error)
	}
	fmt.Printf("reverted %d monitor(s)\n", len(data.Restored))
	return 0
}

func runHistory(args []string) int {
	fs := newFlagSet("history", "history [-n N] [--config PATH]", "Show the most recent journal entries.")
	n := fs.Int("n", 20, "Number of lines")
	path := fs.String("config", "", "Config file path (default: ~/.config/resctl/config.yaml)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	_, cfg, err := loadConfig(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	file, err := historyPath(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	lines, err := history.Tail(file, *n)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	return 0
}

func historyPath(cfg *config.Config) (string, error) {
	if cfg.History.File != "" {
		return cfg.History.File, nil
	}
	return history.DefaultPath()
}

func runTUI(args []string) int {
	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		fmt.Fprintln(os.Stderr, "Usage: resctl tui")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Interactive TUI over the running daemon.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Keybindings:")
		fmt.Fprintln(os.Stderr, "  j/k, ↑/↓  Select monitor or profile")
		fmt.Fprintln(os.Stderr, "  h/l, ←/→  Step through modes")
		fmt.Fprintln(os.Stderr, "  o         Cycle orientation")
		fmt.Fprintln(os.Stderr, "  a         Apply staged settings")
		fmt.Fprintln(os.Stderr, "  y / n     Keep / revert while the countdown runs")
		fmt.Fprintln(os.Stderr, "  Enter     Switch to the selected profile")
		fmt.Fprintln(os.Stderr, "  s         Stage the selected profile without applying")
		fmt.Fprintln(os.Stderr, "  w         Save staged settings as a new profile")
		fmt.Fprintln(os.Stderr, "  d         Delete the selected profile")
		fmt.Fprintln(os.Stderr, "  r         Refresh monitors")
		fmt.Fprintln(os.Stderr, "  Tab       Switch between monitors and profiles")
		fmt.Fprintln(os.Stderr, "  q, Ctrl+C Quit")
		return 0
	}

	if err := tui.Run(ipc.NewClient()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func printView(w io.Writer, v session.View) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCURRENT\tORIENTATION\tSTAGED\t")
	for _, m := range v.Monitors {
		staged := "-"
		if m.Pending {
			staged = fmt.Sprintf("%s %s", m.StagedResolution, m.StagedOrientation)
		}
		name := m.Name
		if m.Primary {
			name += " *"
		}
		if !m.Attached {
			name += " (detached)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", m.ID, name, m.Current, m.Orientation, staged)
	}
	tw.Flush()

	if v.SafetyNet.State == safetynet.AwaitingConfirmation {
		fmt.Fprintf(w, "safety net: awaiting confirmation, reverting in %d second(s)\n", v.SafetyNet.Remaining)
	} else {
		fmt.Fprintf(w, "safety net: %s (timeout %ds)\n", v.SafetyNet.State, v.SafetyNet.Timeout)
	}
	if v.LastError != "" {
		fmt.Fprintf(w, "last error: %s\n", v.LastError)
	}
}

func exitCode(err error) int {
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		return 2
	}
	return 1
}
