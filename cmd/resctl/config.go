package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/1broseidon/resctl/internal/config"
)

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  resctl config validate [--config PATH]")
	fmt.Fprintln(w, "  resctl config print [--config PATH] [--defaults] [--format yaml|toml]")
	fmt.Fprintln(w, "  resctl config path")
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printConfigUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "validate":
		fs := newFlagSet("validate", "config validate [--config PATH]", "Load and validate the configuration file.")
		path := fs.String("config", "", "Config file path (default: ~/.config/resctl/config.yaml)")
		if code, ok := parseFlags(fs, args[1:]); !ok {
			return code
		}
		cfgPath, _, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCode(err)
		}
		fmt.Printf("config: ok (%s)\n", cfgPath)
		return 0

	case "print":
		fs := newFlagSet("print", "config print [--config PATH] [--defaults] [--format yaml|toml]", "Print the effective configuration.")
		path := fs.String("config", "", "Config file path (default: ~/.config/resctl/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		format := fs.String("format", "", "Output format (default: format of the config file)")
		if code, ok := parseFlags(fs, args[1:]); !ok {
			return code
		}

		cfg := config.DefaultConfig()
		cfgPath := *path
		if !*printDefaults {
			var err error
			cfgPath, cfg, err = loadConfig(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return exitCode(err)
			}
		}

		out := config.FormatFor(cfgPath)
		switch *format {
		case "":
		case "yaml", "yml":
			out = config.FormatYAML
		case "toml":
			out = config.FormatTOML
		default:
			fmt.Fprintf(os.Stderr, "unknown format %q\n", *format)
			return 2
		}

		data, err := config.Encode(cfg, out)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		os.Stdout.Write(data)
		return 0

	case "path":
		p, err := config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(p)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func printJSON(w io.Writer, v interface{}) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Fprintln(w, string(data))
	return 0
}
