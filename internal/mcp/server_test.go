package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/resctl/internal/config"
	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/safetynet"
	"github.com/1broseidon/resctl/internal/session"
)

type fakeClient struct {
	status   *ipc.StatusData
	setModes []ipc.SetModePayload
	orients  []string
	applies  int
	confirm  error
	loads    map[string]bool
	saved    []string
	deleted  []string
}

func (f *fakeClient) GetStatus() (*ipc.StatusData, error) { return f.status, nil }
func (f *fakeClient) Refresh() (*ipc.StatusData, error)   { return f.status, nil }

func (f *fakeClient) SetMode(p ipc.SetModePayload) (*ipc.SetModeData, error) {
	f.setModes = append(f.setModes, p)
	freq := p.Frequency
	if freq == 0 {
		freq = 75
	}
	return &ipc.SetModeData{Staged: display.Resolution{Width: p.Width, Height: p.Height, Frequency: freq, BitsPerPixel: 32}}, nil
}

func (f *fakeClient) SetOrientation(id, o string) error {
	f.orients = append(f.orients, id+"="+o)
	return nil
}

func (f *fakeClient) Apply() (*ipc.ApplyData, error) {
	f.applies++
	return &ipc.ApplyData{
		Armed:     true,
		SafetyNet: safetynet.Status{State: safetynet.AwaitingConfirmation, Remaining: 15, Timeout: 15},
		Errors:    []ipc.ApplyErrorInfo{{MonitorID: "hdmi1", Monitor: "Display 2", Op: "resolution", Error: "bad mode"}},
	}, nil
}

func (f *fakeClient) Confirm() error { return f.confirm }

func (f *fakeClient) Revert() (*ipc.RevertData, error) {
	return &ipc.RevertData{Reason: "requested", Restored: map[string]display.Resolution{"b": {}, "a": {}}}, nil
}

func (f *fakeClient) ListProfiles() (*ipc.ProfilesData, error) {
	return &ipc.ProfilesData{Profiles: []config.Profile{{
		Name:     "work",
		Settings: []config.MonitorSetting{{MonitorID: "dp1"}, {MonitorID: "hdmi1"}},
	}}}, nil
}

func (f *fakeClient) SaveProfile(name string) error {
	f.saved = append(f.saved, name)
	return nil
}

func (f *fakeClient) LoadProfile(name string, apply bool) (*ipc.LoadProfileData, error) {
	if f.loads == nil {
		f.loads = map[string]bool{}
	}
	f.loads[name] = apply
	data := &ipc.LoadProfileData{Staged: []string{"dp1"}}
	if apply {
		data.Apply = &ipc.ApplyData{Armed: true}
	}
	return data, nil
}

func (f *fakeClient) DeleteProfile(name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func newTestServer(client *fakeClient) *Server {
	return NewServer(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleStatus() *ipc.StatusData {
	current := display.Resolution{Width: 1920, Height: 1080, Frequency: 60, BitsPerPixel: 24}
	return &ipc.StatusData{View: session.View{
		Monitors: []session.MonitorView{{
			Monitor: display.Monitor{
				ID: "dp1", Name: "Display 1", DeviceName: "DP-1", Primary: true,
				Current: current, Attached: true, Modes: []display.Resolution{current},
			},
			StagedResolution:  current,
			StagedOrientation: display.Portrait,
			Pending:           true,
		}},
		SafetyNet: safetynet.Status{State: safetynet.Idle, Timeout: 15},
	}}
}

func TestHandleListMonitors(t *testing.T) {
	s := newTestServer(&fakeClient{status: sampleStatus()})

	_, out, err := s.handleListMonitors(context.Background(), nil, ListMonitorsInput{})
	if err != nil {
		t.Fatalf("handleListMonitors: %v", err)
	}
	if len(out.Monitors) != 1 {
		t.Fatalf("monitors = %d, want 1", len(out.Monitors))
	}
	m := out.Monitors[0]
	if m.Current != "1920x1080 @ 60Hz (24bit)" || m.StagedOrientation != "portrait" || !m.Pending {
		t.Fatalf("unexpected monitor info: %+v", m)
	}
	if out.SafetyNet.AwaitingConfirmation {
		t.Fatalf("safety net should be idle")
	}
}

func TestHandleSetMode(t *testing.T) {
	client := &fakeClient{}
	s := newTestServer(client)

	if _, _, err := s.handleSetMode(context.Background(), nil, SetModeInput{MonitorID: "dp1"}); err == nil {
		t.Fatalf("expected error for missing size")
	}
	_, out, err := s.handleSetMode(context.Background(), nil, SetModeInput{MonitorID: "dp1", Width: 1280, Height: 720})
	if err != nil {
		t.Fatalf("handleSetMode: %v", err)
	}
	if out.Staged != "1280x720 @ 75Hz (32bit)" {
		t.Fatalf("staged = %q", out.Staged)
	}
	if len(client.setModes) != 1 || client.setModes[0].Frequency != 0 {
		t.Fatalf("unexpected payloads: %+v", client.setModes)
	}
}

func TestHandleApplyAndRevert(t *testing.T) {
	client := &fakeClient{}
	s := newTestServer(client)

	_, out, err := s.handleApply(context.Background(), nil, EmptyInput{})
	if err != nil {
		t.Fatalf("handleApply: %v", err)
	}
	if !out.Armed || out.SafetyNet.Remaining != 15 || len(out.Errors) != 1 {
		t.Fatalf("unexpected apply output: %+v", out)
	}

	_, rev, err := s.handleRevert(context.Background(), nil, EmptyInput{})
	if err != nil {
		t.Fatalf("handleRevert: %v", err)
	}
	if !sort.StringsAreSorted(rev.Restored) || len(rev.Restored) != 2 {
		t.Fatalf("restored = %v", rev.Restored)
	}
}

func TestHandleConfirm_PropagatesError(t *testing.T) {
	s := newTestServer(&fakeClient{confirm: errors.New("nothing to confirm")})
	if _, _, err := s.handleConfirm(context.Background(), nil, EmptyInput{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestProfileTools(t *testing.T) {
	client := &fakeClient{}
	s := newTestServer(client)
	ctx := context.Background()

	_, list, err := s.handleListProfiles(ctx, nil, EmptyInput{})
	if err != nil {
		t.Fatalf("handleListProfiles: %v", err)
	}
	if len(list.Profiles) != 1 || len(list.Profiles[0].Monitors) != 2 {
		t.Fatalf("unexpected profiles: %+v", list.Profiles)
	}

	if _, _, err := s.handleSaveProfile(ctx, nil, ProfileInput{Name: "  "}); err == nil {
		t.Fatalf("expected error for blank name")
	}
	if _, _, err := s.handleSaveProfile(ctx, nil, ProfileInput{Name: "home"}); err != nil {
		t.Fatalf("handleSaveProfile: %v", err)
	}

	_, sw, err := s.handleSwitchProfile(ctx, nil, SwitchProfileInput{Name: "home"})
	if err != nil {
		t.Fatalf("handleSwitchProfile: %v", err)
	}
	if sw.Apply == nil || !sw.Apply.Armed || !client.loads["home"] {
		t.Fatalf("switch should apply: %+v", sw)
	}

	_, staged, err := s.handleSwitchProfile(ctx, nil, SwitchProfileInput{Name: "work", StageOnly: true})
	if err != nil {
		t.Fatalf("handleSwitchProfile stage only: %v", err)
	}
	if staged.Apply != nil || client.loads["work"] {
		t.Fatalf("stage only must not apply: %+v", staged)
	}

	if _, _, err := s.handleDeleteProfile(ctx, nil, ProfileInput{Name: "home"}); err != nil {
		t.Fatalf("handleDeleteProfile: %v", err)
	}
	if len(client.deleted) != 1 {
		t.Fatalf("deleted = %v", client.deleted)
	}
}

func TestServer_ListsToolsOverTransport(t *testing.T) {
	client := &fakeClient{status: sampleStatus()}
	s := newTestServer(client)
	ctx := context.Background()

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	ss, err := s.mcpServer.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer ss.Close()

	c := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := c.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"list_monitors", "set_mode", "set_orientation", "apply_staged", "confirm_settings", "revert_settings", "list_profiles", "save_profile", "switch_profile", "delete_profile"} {
		if !names[want] {
			t.Errorf("missing tool %q", want)
		}
	}

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: "apply_staged", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("apply_staged returned a tool error: %+v", res.Content)
	}
	if client.applies != 1 {
		t.Fatalf("applies = %d, want 1", client.applies)
	}
}
