package main

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/resctl/internal/config"
	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/platform"
	"github.com/1broseidon/resctl/internal/profile"
	"github.com/1broseidon/resctl/internal/safetynet"
	"github.com/1broseidon/resctl/internal/session"
)

func TestParseModeArg(t *testing.T) {
	tests := []struct {
		mode    string
		want    ipc.SetModePayload
		wantErr bool
	}{
		{mode: "1920x1080", want: ipc.SetModePayload{MonitorID: "DP-1", Width: 1920, Height: 1080}},
		{mode: "1920x1080@144", want: ipc.SetModePayload{MonitorID: "DP-1", Width: 1920, Height: 1080, Frequency: 144}},
		{mode: "2560X1440@60Hz", want: ipc.SetModePayload{MonitorID: "DP-1", Width: 2560, Height: 1440, Frequency: 60}},
		{mode: "1024x768@60:24", want: ipc.SetModePayload{MonitorID: "DP-1", Width: 1024, Height: 768, Frequency: 60, BitsPerPixel: 24}},
		{mode: "1920", wantErr: true},
		{mode: "0x1080", wantErr: true},
		{mode: "1920x1080@fast", wantErr: true},
		{mode: "1920x1080@60:deep", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseModeArg("DP-1", tt.mode)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseModeArg(%q) expected error, got %+v", tt.mode, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseModeArg(%q) error: %v", tt.mode, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseModeArg(%q) = %+v, want %+v", tt.mode, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if got := parseLevel("DEBUG"); got.String() != "DEBUG" {
		t.Fatalf("parseLevel(DEBUG) = %v", got)
	}
	if got := parseLevel("bogus"); got.String() != "INFO" {
		t.Fatalf("parseLevel(bogus) = %v, want INFO", got)
	}
}

type fakeDecider struct {
	mu       sync.Mutex
	statuses []safetynet.Status
	kept     int
	reverted int
	keepErr  error
}

func (d *fakeDecider) Status() (safetynet.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.statuses[0]
	if len(d.statuses) > 1 {
		d.statuses = d.statuses[1:]
	}
	return st, nil
}

func (d *fakeDecider) Keep() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kept++
	return d.keepErr
}

func (d *fakeDecider) Revert() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reverted++
	return nil
}

func armed(remaining int) safetynet.Status {
	return safetynet.Status{State: safetynet.AwaitingConfirmation, Remaining: remaining, Timeout: 15}
}

func TestAwaitDecisionKeep(t *testing.T) {
	d := &fakeDecider{statuses: []safetynet.Status{armed(15)}}
	keys := make(chan byte, 2)
	keys <- 'x'
	keys <- 'y'

	var out bytes.Buffer
	got, err := awaitDecision(d, keys, &out, time.Hour)
	if err != nil {
		t.Fatalf("awaitDecision error: %v", err)
	}
	if got != decisionKept || d.kept != 1 || d.reverted != 0 {
		t.Fatalf("decision=%v kept=%d reverted=%d", got, d.kept, d.reverted)
	}
	if !strings.Contains(out.String(), "reverting in 15 second(s)") {
		t.Fatalf("prompt = %q", out.String())
	}
}

func TestAwaitDecisionRevertKeys(t *testing.T) {
	for _, k := range []byte{'n', 'N', 0x1b, 0x03} {
		d := &fakeDecider{statuses: []safetynet.Status{armed(3)}}
		keys := make(chan byte, 1)
		keys <- k

		got, err := awaitDecision(d, keys, &bytes.Buffer{}, time.Hour)
		if err != nil {
			t.Fatalf("key %q: error %v", k, err)
		}
		if got != decisionReverted || d.reverted != 1 {
			t.Fatalf("key %q: decision=%v reverted=%d", k, got, d.reverted)
		}
	}
}

func TestAwaitDecisionTimesOut(t *testing.T) {
	d := &fakeDecider{statuses: []safetynet.Status{armed(1), {State: safetynet.Idle, Timeout: 15}}}

	got, err := awaitDecision(d, make(chan byte), &bytes.Buffer{}, time.Millisecond)
	if err != nil {
		t.Fatalf("awaitDecision error: %v", err)
	}
	if got != decisionTimedOut || d.kept != 0 || d.reverted != 0 {
		t.Fatalf("decision=%v kept=%d reverted=%d", got, d.kept, d.reverted)
	}
}

func TestAwaitDecisionKeepAfterDisarm(t *testing.T) {
	d := &fakeDecider{statuses: []safetynet.Status{armed(1)}, keepErr: safetynet.ErrNotArmed}
	keys := make(chan byte, 1)
	keys <- 'y'

	got, err := awaitDecision(d, keys, &bytes.Buffer{}, time.Hour)
	if err != nil {
		t.Fatalf("awaitDecision error: %v", err)
	}
	if got != decisionTimedOut {
		t.Fatalf("decision = %v, want timed out", got)
	}
}

func TestPrintApply(t *testing.T) {
	var out bytes.Buffer
	code := printApply(&out, &ipc.ApplyData{
		Armed:     true,
		Errors:    []ipc.ApplyErrorInfo{{Monitor: "LG TV", Op: "resolution", Error: "mode rejected"}},
		SafetyNet: armed(15),
	})
	if code != 0 {
		t.Fatalf("code = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "error: LG TV resolution: mode rejected") {
		t.Fatalf("output = %q", out.String())
	}

	out.Reset()
	if code := printApply(&out, &ipc.ApplyData{}); code != 1 {
		t.Fatalf("nothing applied code = %d, want 1", code)
	}
}

type idleScheduler struct{}

func (idleScheduler) Every(time.Duration, func()) func() { return func() {} }

func TestSwitchLocal(t *testing.T) {
	drv, err := platform.LoadSimDriver("../../internal/platform/testdata/desk.yaml")
	if err != nil {
		t.Fatalf("LoadSimDriver: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.Profiles = []config.Profile{{
		Name: "gaming",
		Settings: []config.MonitorSetting{{
			MonitorID:  "DP-1",
			Resolution: display.Resolution{Width: 1920, Height: 1080, Frequency: 144, BitsPerPixel: 32},
		}},
	}}
	sess := session.New(session.Options{
		Driver:    drv,
		Profiles:  profile.NewStore("", cfg),
		Scheduler: idleScheduler{},
	})
	if _, err := sess.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	var out bytes.Buffer
	code, err := switchLocal(sess, "gaming", &out)
	if err != nil || code != 0 {
		t.Fatalf("switchLocal = %d, %v", code, err)
	}
	if !strings.Contains(out.String(), "applied gaming") {
		t.Fatalf("output = %q", out.String())
	}
	if sess.Status().State != safetynet.AwaitingConfirmation {
		t.Fatalf("state = %v, want awaiting confirmation", sess.Status().State)
	}
	if m, _ := drv.Monitor("DP-1"); m.Current.Frequency != 144 {
		t.Fatalf("DP-1 current = %v, want 144Hz", m.Current)
	}

	if code := finishYes(sessionDecider{sess: sess}); code != 0 {
		t.Fatalf("finishYes = %d", code)
	}
	if sess.Status().State != safetynet.Idle {
		t.Fatalf("state after keep = %v, want idle", sess.Status().State)
	}
}

func TestSwitchLocalUnknownProfile(t *testing.T) {
	sess := session.New(session.Options{
		Driver:    platform.NewSimDriver(nil),
		Scheduler: idleScheduler{},
	})
	code, err := switchLocal(sess, "missing", &bytes.Buffer{})
	if code != 1 || !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("switchLocal = %d, %v; want 1, ErrNotFound", code, err)
	}
}
