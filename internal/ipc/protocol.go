package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/resctl/internal/apply"
	"github.com/1broseidon/resctl/internal/config"
	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/safetynet"
	"github.com/1broseidon/resctl/internal/session"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandPing           CommandType = "PING"
	CommandReload         CommandType = "RELOAD"
	CommandGetStatus      CommandType = "GET_STATUS"
	CommandRefresh        CommandType = "REFRESH"
	CommandSetMode        CommandType = "SET_MODE"
	CommandSetOrientation CommandType = "SET_ORIENTATION"
	CommandApply          CommandType = "APPLY"
	CommandConfirm        CommandType = "CONFIRM"
	CommandRevert         CommandType = "REVERT"
	CommandListProfiles   CommandType = "LIST_PROFILES"
	CommandSaveProfile    CommandType = "SAVE_PROFILE"
	CommandLoadProfile    CommandType = "LOAD_PROFILE"
	CommandDeleteProfile  CommandType = "DELETE_PROFILE"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS and REFRESH
type StatusData struct {
	session.View
	UptimeSeconds int64 `json:"uptime_seconds"`
	DaemonRunning bool  `json:"daemon_running"`
}

// SetModePayload stages a mode. With Frequency zero the best mode of the
// given size is chosen.
type SetModePayload struct {
	MonitorID    string `json:"monitor_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Frequency    int    `json:"frequency,omitempty"`
	BitsPerPixel int    `json:"bits_per_pixel,omitempty"`
}

type SetModeData struct {
	Staged display.Resolution `json:"staged"`
}

type SetOrientationPayload struct {
	MonitorID   string `json:"monitor_id"`
	Orientation string `json:"orientation"`
}

// ApplyErrorInfo is the wire form of a per-monitor apply failure.
type ApplyErrorInfo struct {
	MonitorID string `json:"monitor_id"`
	Monitor   string `json:"monitor"`
	Op        string `json:"op"`
	Error     string `json:"error"`
}

// ApplyData is returned by APPLY and LOAD_PROFILE with apply set.
type ApplyData struct {
	Armed     bool             `json:"armed"`
	Errors    []ApplyErrorInfo `json:"errors,omitempty"`
	SafetyNet safetynet.Status `json:"safety_net"`
	// Message is set when the apply changed nothing.
	Message string `json:"message,omitempty"`
}

type RevertData struct {
	Reason   string                        `json:"reason"`
	Restored map[string]display.Resolution `json:"restored"`
	Errors   []ApplyErrorInfo              `json:"errors,omitempty"`
}

type ProfilesData struct {
	Profiles []config.Profile `json:"profiles"`
}

type ProfilePayload struct {
	Name string `json:"name"`
	// Apply applies a loaded profile immediately.
	Apply bool `json:"apply,omitempty"`
}

type LoadProfileData struct {
	Staged []string   `json:"staged"`
	Apply  *ApplyData `json:"apply,omitempty"`
}

func applyErrors(errs []*apply.Error) []ApplyErrorInfo {
	if len(errs) == 0 {
		return nil
	}
	out := make([]ApplyErrorInfo, len(errs))
	for i, e := range errs {
		out[i] = ApplyErrorInfo{MonitorID: e.MonitorID, Monitor: e.MonitorName, Op: string(e.Op), Error: e.Err.Error()}
	}
	return out
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
