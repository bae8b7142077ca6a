package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/resctl/internal/runtimepath"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the default socket.
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientAt(socketPath)
}

// NewClientAt creates a client for the given socket path.
func NewClientAt(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// Available reports whether a daemon is listening.
func (c *Client) Available() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}

// call sends command with payload and decodes the response data into out
// when out is non-nil.
func (c *Client) call(command CommandType, payload interface{}, out interface{}) error {
	req := &Request{Command: command}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		req.Payload = raw
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", command, err)
	}
	return nil
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	return c.call(CommandPing, nil, nil)
}

// Reload sends a RELOAD command to the daemon
func (c *Client) Reload() error {
	return c.call(CommandReload, nil, nil)
}

// GetStatus retrieves the daemon view of monitors, staging and safety net.
func (c *Client) GetStatus() (*StatusData, error) {
	var status StatusData
	if err := c.call(CommandGetStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Refresh re-enumerates monitors and returns the new status.
func (c *Client) Refresh() (*StatusData, error) {
	var status StatusData
	if err := c.call(CommandRefresh, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetMode stages a mode for a monitor.
func (c *Client) SetMode(p SetModePayload) (*SetModeData, error) {
	var data SetModeData
	if err := c.call(CommandSetMode, p, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SetOrientation stages a rotation for a monitor.
func (c *Client) SetOrientation(monitorID, orientation string) error {
	return c.call(CommandSetOrientation, SetOrientationPayload{MonitorID: monitorID, Orientation: orientation}, nil)
}

// Apply applies the staged settings and arms the safety net.
func (c *Client) Apply() (*ApplyData, error) {
	var data ApplyData
	if err := c.call(CommandApply, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Confirm keeps the applied settings.
func (c *Client) Confirm() error {
	return c.call(CommandConfirm, nil, nil)
}

// Revert restores the last-good settings.
func (c *Client) Revert() (*RevertData, error) {
	var data RevertData
	if err := c.call(CommandRevert, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ListProfiles returns the stored profiles.
func (c *Client) ListProfiles() (*ProfilesData, error) {
	var data ProfilesData
	if err := c.call(CommandListProfiles, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SaveProfile stores the staged settings under name.
func (c *Client) SaveProfile(name string) error {
	return c.call(CommandSaveProfile, ProfilePayload{Name: name}, nil)
}

// LoadProfile stages a profile, applying it when apply is set.
func (c *Client) LoadProfile(name string, apply bool) (*LoadProfileData, error) {
	var data LoadProfileData
	if err := c.call(CommandLoadProfile, ProfilePayload{Name: name, Apply: apply}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DeleteProfile removes a profile.
func (c *Client) DeleteProfile(name string) error {
	return c.call(CommandDeleteProfile, ProfilePayload{Name: name}, nil)
}
