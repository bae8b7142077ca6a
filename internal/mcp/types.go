package mcp

// ListMonitorsInput is the input for the list_monitors tool.
type ListMonitorsInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"Re-enumerate displays before listing (default: false)"`
}

// MonitorInfo describes one attached monitor and its staged settings.
type MonitorInfo struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Device            string   `json:"device"`
	Primary           bool     `json:"primary"`
	Current           string   `json:"current"`
	Staged            string   `json:"staged"`
	Orientation       string   `json:"orientation"`
	StagedOrientation string   `json:"staged_orientation"`
	Pending           bool     `json:"pending"`
	Modes             []string `json:"modes"`
}

// SafetyNetInfo is the confirmation countdown state.
type SafetyNetInfo struct {
	AwaitingConfirmation bool `json:"awaiting_confirmation"`
	Remaining            int  `json:"remaining"`
	Timeout              int  `json:"timeout"`
}

// ListMonitorsOutput is the output for the list_monitors tool.
type ListMonitorsOutput struct {
	Monitors  []MonitorInfo `json:"monitors"`
	SafetyNet SafetyNetInfo `json:"safety_net"`
	LastError string        `json:"last_error,omitempty"`
}

// SetModeInput is the input for the set_mode tool.
type SetModeInput struct {
	MonitorID string `json:"monitor_id" jsonschema:"Monitor id from list_monitors"`
	Width     int    `json:"width" jsonschema:"Horizontal pixels in the monitor's current orientation"`
	Height    int    `json:"height" jsonschema:"Vertical pixels in the monitor's current orientation"`
	Frequency int    `json:"frequency,omitempty" jsonschema:"Refresh rate in Hz. When omitted the highest rate offered for the size is used."`
}

// SetModeOutput is the output for the set_mode tool.
type SetModeOutput struct {
	MonitorID string `json:"monitor_id"`
	Staged    string `json:"staged"`
}

// SetOrientationInput is the input for the set_orientation tool.
type SetOrientationInput struct {
	MonitorID   string `json:"monitor_id" jsonschema:"Monitor id from list_monitors"`
	Orientation string `json:"orientation" jsonschema:"landscape, portrait, landscape-flipped or portrait-flipped (degrees 0/90/180/270 also accepted)"`
}

// EmptyInput is used by tools that take no arguments.
type EmptyInput struct{}

// ApplyError is a per-monitor failure.
type ApplyError struct {
	MonitorID string `json:"monitor_id"`
	Monitor   string `json:"monitor"`
	Op        string `json:"op"`
	Error     string `json:"error"`
}

// ApplyOutput is the output for apply_staged and switch_profile.
type ApplyOutput struct {
	Armed     bool          `json:"armed"`
	Errors    []ApplyError  `json:"errors,omitempty"`
	SafetyNet SafetyNetInfo `json:"safety_net"`
	Message   string        `json:"message,omitempty"`
}

// RevertOutput is the output for the revert_settings tool.
type RevertOutput struct {
	Restored []string     `json:"restored"`
	Errors   []ApplyError `json:"errors,omitempty"`
}

// ProfileInfo summarizes a stored profile.
type ProfileInfo struct {
	Name     string   `json:"name"`
	Monitors []string `json:"monitors"`
}

// ListProfilesOutput is the output for the list_profiles tool.
type ListProfilesOutput struct {
	Profiles []ProfileInfo `json:"profiles"`
}

// ProfileInput names a profile.
type ProfileInput struct {
	Name string `json:"name" jsonschema:"Profile name"`
}

// SwitchProfileInput is the input for the switch_profile tool.
type SwitchProfileInput struct {
	Name      string `json:"name" jsonschema:"Profile name"`
	StageOnly bool   `json:"stage_only,omitempty" jsonschema:"Only stage the profile's settings without applying them (default: false)"`
}

// SwitchProfileOutput is the output for the switch_profile tool.
type SwitchProfileOutput struct {
	Staged []string     `json:"staged"`
	Apply  *ApplyOutput `json:"apply,omitempty"`
}
