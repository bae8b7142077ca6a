package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/1broseidon/resctl/internal/display"
)

const (
	DefaultResetTimeout = 15
	MaxResetTimeout     = 255
)

// Config is the persisted application document.
type Config struct {
	General  General   `yaml:"general" toml:"general"`
	Driver   Driver    `yaml:"driver" toml:"driver"`
	Hotkeys  Hotkeys   `yaml:"hotkeys" toml:"hotkeys"`
	History  History   `yaml:"history" toml:"history"`
	Palette  Palette   `yaml:"palette" toml:"palette"`
	Profiles []Profile `yaml:"profiles" toml:"profiles"`
}

type General struct {
	// ResetTimeout is the number of one-second ticks before an unconfirmed
	// change is reverted.
	ResetTimeout    int      `yaml:"reset_timeout" toml:"reset_timeout"`
	LogLevel        string   `yaml:"log_level" toml:"log_level"`
	RefreshInterval Duration `yaml:"refresh_interval" toml:"refresh_interval"`
}

type Driver struct {
	Backend string `yaml:"backend" toml:"backend"`
	// Display overrides $DISPLAY for the x11 backend.
	Display string `yaml:"display,omitempty" toml:"display,omitempty"`
	// SimFile is the fixture loaded by the sim backend.
	SimFile string `yaml:"sim_file,omitempty" toml:"sim_file,omitempty"`
}

type Hotkeys struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Confirm string `yaml:"confirm" toml:"confirm"`
	Revert  string `yaml:"revert" toml:"revert"`
}

type History struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	File      string `yaml:"file,omitempty" toml:"file,omitempty"`
	MaxSizeMB int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" toml:"max_files"`
}

type Palette struct {
	// Backend is auto, rofi, fuzzel, wofi or dmenu.
	Backend string `yaml:"backend" toml:"backend"`
}

// Profile is a named set of per-monitor settings.
type Profile struct {
	Name     string           `yaml:"name" toml:"name" json:"name"`
	Settings []MonitorSetting `yaml:"settings" toml:"settings" json:"settings"`
}

// MonitorSetting is the unit of persistence inside a profile. A nil
// Orientation leaves the staged orientation untouched on load.
type MonitorSetting struct {
	MonitorID   string               `yaml:"monitor_id" toml:"monitor_id" json:"monitor_id"`
	Resolution  display.Resolution   `yaml:"resolution" toml:"resolution" json:"resolution"`
	Orientation *display.Orientation `yaml:"orientation,omitempty" toml:"orientation,omitempty" json:"orientation,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		General: General{
			ResetTimeout: DefaultResetTimeout,
			LogLevel:     "info",
		},
		Driver: Driver{Backend: "x11"},
		Hotkeys: Hotkeys{
			Enabled: true,
			Confirm: "Mod4-Return",
			Revert:  "Mod4-Escape",
		},
		History: History{
			Enabled:   true,
			MaxSizeMB: 5,
			MaxFiles:  3,
		},
		Palette:  Palette{Backend: "auto"},
		Profiles: []Profile{},
	}
}

// ValidationError points at the offending key.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (c *Config) Validate() error {
	if c.General.ResetTimeout < 1 || c.General.ResetTimeout > MaxResetTimeout {
		return &ValidationError{Path: "general.reset_timeout", Err: fmt.Errorf("reset_timeout must be between 1 and %d", MaxResetTimeout)}
	}
	switch c.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Path: "general.log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}
	if c.General.RefreshInterval < 0 {
		return &ValidationError{Path: "general.refresh_interval", Err: fmt.Errorf("refresh_interval must be >= 0")}
	}
	switch c.Driver.Backend {
	case "x11":
	case "sim":
		if strings.TrimSpace(c.Driver.SimFile) == "" {
			return &ValidationError{Path: "driver.sim_file", Err: fmt.Errorf("sim backend requires sim_file")}
		}
	default:
		return &ValidationError{Path: "driver.backend", Err: fmt.Errorf("backend must be one of: x11, sim")}
	}
	if c.Hotkeys.Enabled && (strings.TrimSpace(c.Hotkeys.Confirm) == "" || strings.TrimSpace(c.Hotkeys.Revert) == "") {
		return &ValidationError{Path: "hotkeys", Err: fmt.Errorf("confirm and revert keys are required when hotkeys are enabled")}
	}
	switch strings.ToLower(strings.TrimSpace(c.Palette.Backend)) {
	case "", "auto", "rofi", "fuzzel", "wofi", "dmenu":
	default:
		return &ValidationError{Path: "palette.backend", Err: fmt.Errorf("backend must be one of: auto, rofi, fuzzel, wofi, dmenu")}
	}
	if c.History.MaxSizeMB < 0 || c.History.MaxFiles < 0 {
		return &ValidationError{Path: "history", Err: fmt.Errorf("max_size_mb and max_files must be >= 0")}
	}

	seen := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		path := fmt.Sprintf("profiles[%d]", i)
		if strings.TrimSpace(p.Name) == "" {
			return &ValidationError{Path: path + ".name", Err: fmt.Errorf("profile name is required")}
		}
		if seen[p.Name] {
			return &ValidationError{Path: path + ".name", Err: fmt.Errorf("duplicate profile name %q", p.Name)}
		}
		seen[p.Name] = true
		for j, s := range p.Settings {
			spath := fmt.Sprintf("%s.settings[%d]", path, j)
			if strings.TrimSpace(s.MonitorID) == "" {
				return &ValidationError{Path: spath + ".monitor_id", Err: fmt.Errorf("monitor_id is required")}
			}
			if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
				return &ValidationError{Path: spath + ".resolution", Err: fmt.Errorf("width and height must be > 0")}
			}
			if s.Orientation != nil && !s.Orientation.Valid() {
				return &ValidationError{Path: spath + ".orientation", Err: fmt.Errorf("invalid orientation")}
			}
		}
	}
	return nil
}

// Profile returns the profile with the given name.
func (c *Config) Profile(name string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}
