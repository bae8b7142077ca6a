package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/safetynet"
)

func safetyNetInfo(st safetynet.Status) SafetyNetInfo {
	return SafetyNetInfo{
		AwaitingConfirmation: st.State == safetynet.AwaitingConfirmation,
		Remaining:            st.Remaining,
		Timeout:              st.Timeout,
	}
}

func applyErrors(errs []ipc.ApplyErrorInfo) []ApplyError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]ApplyError, len(errs))
	for i, e := range errs {
		out[i] = ApplyError{MonitorID: e.MonitorID, Monitor: e.Monitor, Op: e.Op, Error: e.Error}
	}
	return out
}

func applyOutput(data *ipc.ApplyData) ApplyOutput {
	return ApplyOutput{
		Armed:     data.Armed,
		Errors:    applyErrors(data.Errors),
		SafetyNet: safetyNetInfo(data.SafetyNet),
		Message:   data.Message,
	}
}

func (s *Server) handleListMonitors(_ context.Context, _ *mcpsdk.CallToolRequest, args ListMonitorsInput) (*mcpsdk.CallToolResult, ListMonitorsOutput, error) {
	var (
		status *ipc.StatusData
		err    error
	)
	if args.Refresh {
		status, err = s.client.Refresh()
	} else {
		status, err = s.client.GetStatus()
	}
	if err != nil {
		return nil, ListMonitorsOutput{}, err
	}

	out := ListMonitorsOutput{
		Monitors:  make([]MonitorInfo, 0, len(status.Monitors)),
		SafetyNet: safetyNetInfo(status.SafetyNet),
		LastError: status.LastError,
	}
	for _, m := range status.Monitors {
		modes := make([]string, 0, len(m.Modes))
		for _, r := range m.Modes {
			modes = append(modes, r.String())
		}
		out.Monitors = append(out.Monitors, MonitorInfo{
			ID:                m.ID,
			Name:              m.Name,
			Device:            m.DeviceName,
			Primary:           m.Primary,
			Current:           m.Current.String(),
			Staged:            m.StagedResolution.String(),
			Orientation:       m.Orientation.String(),
			StagedOrientation: m.StagedOrientation.String(),
			Pending:           m.Pending,
			Modes:             modes,
		})
	}
	s.logger.Debug("mcp list_monitors", "monitors", len(out.Monitors))
	return nil, out, nil
}

func (s *Server) handleSetMode(_ context.Context, _ *mcpsdk.CallToolRequest, args SetModeInput) (*mcpsdk.CallToolResult, SetModeOutput, error) {
	if strings.TrimSpace(args.MonitorID) == "" {
		return nil, SetModeOutput{}, fmt.Errorf("monitor_id is required")
	}
	if args.Width <= 0 || args.Height <= 0 {
		return nil, SetModeOutput{}, fmt.Errorf("width and height must be positive")
	}
	data, err := s.client.SetMode(ipc.SetModePayload{
		MonitorID: args.MonitorID,
		Width:     args.Width,
		Height:    args.Height,
		Frequency: args.Frequency,
	})
	if err != nil {
		return nil, SetModeOutput{}, err
	}
	return nil, SetModeOutput{MonitorID: args.MonitorID, Staged: data.Staged.String()}, nil
}

func (s *Server) handleSetOrientation(_ context.Context, _ *mcpsdk.CallToolRequest, args SetOrientationInput) (*mcpsdk.CallToolResult, any, error) {
	if strings.TrimSpace(args.MonitorID) == "" {
		return nil, nil, fmt.Errorf("monitor_id is required")
	}
	if err := s.client.SetOrientation(args.MonitorID, args.Orientation); err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf("Staged %s for %s", args.Orientation, args.MonitorID)), nil, nil
}

func (s *Server) handleApply(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ApplyOutput, error) {
	data, err := s.client.Apply()
	if err != nil {
		return nil, ApplyOutput{}, err
	}
	s.logger.Info("mcp apply", "armed", data.Armed, "errors", len(data.Errors))
	return nil, applyOutput(data), nil
}

func (s *Server) handleConfirm(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, any, error) {
	if err := s.client.Confirm(); err != nil {
		return nil, nil, err
	}
	return textResult("Settings kept"), nil, nil
}

func (s *Server) handleRevert(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, RevertOutput, error) {
	data, err := s.client.Revert()
	if err != nil {
		return nil, RevertOutput{}, err
	}
	out := RevertOutput{
		Restored: make([]string, 0, len(data.Restored)),
		Errors:   applyErrors(data.Errors),
	}
	for id := range data.Restored {
		out.Restored = append(out.Restored, id)
	}
	sort.Strings(out.Restored)
	return nil, out, nil
}

func (s *Server) handleListProfiles(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ListProfilesOutput, error) {
	data, err := s.client.ListProfiles()
	if err != nil {
		return nil, ListProfilesOutput{}, err
	}
	out := ListProfilesOutput{Profiles: make([]ProfileInfo, 0, len(data.Profiles))}
	for _, p := range data.Profiles {
		info := ProfileInfo{Name: p.Name, Monitors: make([]string, 0, len(p.Settings))}
		for _, setting := range p.Settings {
			info.Monitors = append(info.Monitors, setting.MonitorID)
		}
		out.Profiles = append(out.Profiles, info)
	}
	return nil, out, nil
}

func (s *Server) handleSaveProfile(_ context.Context, _ *mcpsdk.CallToolRequest, args ProfileInput) (*mcpsdk.CallToolResult, any, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}
	if err := s.client.SaveProfile(name); err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf("Saved profile %q", name)), nil, nil
}

func (s *Server) handleSwitchProfile(_ context.Context, _ *mcpsdk.CallToolRequest, args SwitchProfileInput) (*mcpsdk.CallToolResult, SwitchProfileOutput, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, SwitchProfileOutput{}, fmt.Errorf("name is required")
	}
	data, err := s.client.LoadProfile(name, !args.StageOnly)
	if err != nil {
		return nil, SwitchProfileOutput{}, err
	}
	out := SwitchProfileOutput{Staged: append([]string{}, data.Staged...)}
	if data.Apply != nil {
		a := applyOutput(data.Apply)
		out.Apply = &a
	}
	return nil, out, nil
}

func (s *Server) handleDeleteProfile(_ context.Context, _ *mcpsdk.CallToolRequest, args ProfileInput) (*mcpsdk.CallToolResult, any, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}
	if err := s.client.DeleteProfile(name); err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf("Deleted profile %q", name)), nil, nil
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}
