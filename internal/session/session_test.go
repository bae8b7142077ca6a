package session

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/resctl/internal/config"
	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/platform"
	"github.com/1broseidon/resctl/internal/profile"
	"github.com/1broseidon/resctl/internal/safetynet"
)

type manualScheduler struct {
	mu  sync.Mutex
	fns []func()
	off []bool
}

func (s *manualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.fns)
	s.fns = append(s.fns, fn)
	s.off = append(s.off, false)
	return func() {
		s.mu.Lock()
		s.off[i] = true
		s.mu.Unlock()
	}
}

func (s *manualScheduler) fire(n int) {
	for ; n > 0; n-- {
		s.mu.Lock()
		var live []func()
		for i, fn := range s.fns {
			if !s.off[i] {
				live = append(live, fn)
			}
		}
		s.mu.Unlock()
		for _, fn := range live {
			fn()
		}
	}
}

func mode(w, h, f int) display.Resolution {
	return display.Resolution{Width: w, Height: h, Frequency: f, BitsPerPixel: 32}
}

func desk() []display.Monitor {
	return []display.Monitor{
		{
			ID: "DP-1", Name: "Dell", DeviceName: "DP-1", Attached: true, Primary: true,
			Current: mode(2560, 1440, 60),
			Modes:   []display.Resolution{mode(2560, 1440, 60), mode(1920, 1080, 60), mode(1920, 1080, 144)},
		},
		{
			ID: "HDMI-1", Name: "TV", DeviceName: "HDMI-1", Attached: true,
			Current:  mode(1920, 1080, 60),
			Position: display.Point{X: 2560},
			Modes:    []display.Resolution{mode(1920, 1080, 60), mode(1280, 720, 60)},
		},
	}
}

type fixture struct {
	sess   *Session
	driver *platform.SimDriver
	sched  *manualScheduler
	store  *profile.Store
}

func newFixture(t *testing.T, timeout int) *fixture {
	t.Helper()
	drv := platform.NewSimDriver(desk())
	sched := &manualScheduler{}
	store := profile.NewStore(filepath.Join(t.TempDir(), "config.yaml"), nil)
	sess := New(Options{
		Driver:       drv,
		Profiles:     store,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Scheduler:    sched,
		ResetTimeout: timeout,
	})
	if _, err := sess.Refresh(); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	return &fixture{sess: sess, driver: drv, sched: sched, store: store}
}

func viewOf(t *testing.T, s *Session, id string) MonitorView {
	t.Helper()
	for _, mv := range s.View().Monitors {
		if mv.ID == id {
			return mv
		}
	}
	t.Fatalf("monitor %s not in view", id)
	return MonitorView{}
}

func TestRequestApply_RotationThenTimeoutRevert(t *testing.T) {
	f := newFixture(t, 2)

	if err := f.sess.SetOrientation("DP-1", display.Portrait); err != nil {
		t.Fatalf("SetOrientation() error: %v", err)
	}
	res, err := f.sess.RequestApply()
	if err != nil {
		t.Fatalf("RequestApply() error: %v", err)
	}
	if !res.Armed || len(res.Errors) != 0 {
		t.Fatalf("RequestApply() = %+v", res)
	}

	var sawSwapped bool
	for _, c := range f.driver.Calls() {
		if c.Device == "DP-1" && c.Op == "resolution" && c.Resolution.Width == 1440 && c.Resolution.Height == 2560 {
			sawSwapped = true
		}
	}
	if !sawSwapped {
		t.Fatalf("driver never received the swapped resolution: %+v", f.driver.Calls())
	}

	mv := viewOf(t, f.sess, "DP-1")
	if mv.Current.Width != 1440 || mv.StagedResolution.Width != 1440 || mv.Pending {
		t.Fatalf("after apply: %+v", mv)
	}

	f.sched.fire(2)
	if f.sess.Status().State != safetynet.AwaitingConfirmation {
		t.Fatalf("reverted too early")
	}
	f.sched.fire(1)

	if st := f.sess.Status(); st.State != safetynet.Idle {
		t.Fatalf("state = %v, want idle", st.State)
	}
	hw, _ := f.driver.Monitor("DP-1")
	if hw.Orientation != display.Landscape || hw.Current != mode(2560, 1440, 60) {
		t.Fatalf("hardware after revert = %v %v", hw.Orientation, hw.Current)
	}
	mv = viewOf(t, f.sess, "DP-1")
	if mv.StagedResolution != mode(2560, 1440, 60) || mv.StagedOrientation != display.Landscape {
		t.Fatalf("staging after revert = %v %v", mv.StagedResolution, mv.StagedOrientation)
	}
}

func TestRequestApply_PartialFailureArms(t *testing.T) {
	f := newFixture(t, 5)
	boom := errors.New("sink rejected mode")
	f.driver.Fail("HDMI-1", "resolution", boom)

	if _, err := f.sess.SetMode("HDMI-1", 1280, 720); err != nil {
		t.Fatalf("SetMode() error: %v", err)
	}
	if _, err := f.sess.SetMode("DP-1", 1920, 1080); err != nil {
		t.Fatalf("SetMode() error: %v", err)
	}

	res, err := f.sess.RequestApply()
	if err != nil {
		t.Fatalf("RequestApply() error: %v", err)
	}
	if len(res.Errors) != 1 || res.Errors[0].MonitorID != "HDMI-1" || !errors.Is(res.Errors[0], boom) {
		t.Fatalf("errors = %v", res.Errors)
	}
	if !res.Armed {
		t.Fatalf("safety net not armed after partial failure")
	}
	if res.Status.LastGood["DP-1"] != mode(2560, 1440, 60) || res.Status.LastGood["HDMI-1"] != mode(1920, 1080, 60) {
		t.Fatalf("last-good = %v", res.Status.LastGood)
	}
	hw, _ := f.driver.Monitor("DP-1")
	if hw.Current != mode(1920, 1080, 144) {
		t.Fatalf("DP-1 hardware = %v, want best match 144Hz", hw.Current)
	}
}

func TestRequestApply_RejectedWhileAwaitingConfirmation(t *testing.T) {
	f := newFixture(t, 5)
	if _, err := f.sess.SetMode("DP-1", 1920, 1080); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sess.RequestApply(); err != nil {
		t.Fatalf("RequestApply() error: %v", err)
	}
	calls := len(f.driver.Calls())

	if _, err := f.sess.RequestApply(); !errors.Is(err, safetynet.ErrAlreadyArmed) {
		t.Fatalf("second RequestApply() error = %v, want ErrAlreadyArmed", err)
	}
	if len(f.driver.Calls()) != calls {
		t.Fatalf("rejected apply reached the driver")
	}

	if err := f.sess.ConfirmKeep(); err != nil {
		t.Fatalf("ConfirmKeep() error: %v", err)
	}
	f.sched.fire(20)
	if len(f.driver.Calls()) != calls {
		t.Fatalf("driver called after confirm")
	}
	hw, _ := f.driver.Monitor("DP-1")
	if hw.Current.Width != 1920 {
		t.Fatalf("confirmed change was lost: %v", hw.Current)
	}
}

func TestRequestRevert(t *testing.T) {
	f := newFixture(t, 5)
	if _, err := f.sess.SetMode("HDMI-1", 1280, 720); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sess.RequestApply(); err != nil {
		t.Fatal(err)
	}

	var hooked []safetynet.RevertResult
	f.sess.onRevert = func(r safetynet.RevertResult) { hooked = append(hooked, r) }

	res, err := f.sess.RequestRevert()
	if err != nil {
		t.Fatalf("RequestRevert() error: %v", err)
	}
	if res.Reason != safetynet.ReasonRequested {
		t.Fatalf("Reason = %v", res.Reason)
	}
	hw, _ := f.driver.Monitor("HDMI-1")
	if hw.Current != mode(1920, 1080, 60) {
		t.Fatalf("HDMI-1 after revert = %v", hw.Current)
	}
	if len(hooked) != 1 {
		t.Fatalf("revert hook calls = %d", len(hooked))
	}
	if _, err := f.sess.RequestRevert(); !errors.Is(err, safetynet.ErrNotArmed) {
		t.Fatalf("second RequestRevert() error = %v", err)
	}
}

func TestRefresh_FailureKeepsPreviousCatalog(t *testing.T) {
	f := newFixture(t, 5)
	f.driver.FailEnumerate(errors.New("display server gone"))

	monitors, err := f.sess.Refresh()
	var enumErr *display.EnumerationError
	if !errors.As(err, &enumErr) {
		t.Fatalf("Refresh() error = %v, want *EnumerationError", err)
	}
	if len(monitors) != 2 {
		t.Fatalf("previous catalog not kept: %d monitors", len(monitors))
	}
	if v := f.sess.View(); v.LastError == "" || len(v.Monitors) != 2 {
		t.Fatalf("view after failed refresh = %+v", v)
	}
}

func TestProfiles_SaveLoadAndSoftFail(t *testing.T) {
	f := newFixture(t, 5)
	if _, err := f.sess.SetMode("DP-1", 1920, 1080); err != nil {
		t.Fatal(err)
	}
	if err := f.sess.SetOrientation("HDMI-1", display.LandscapeFlipped); err != nil {
		t.Fatal(err)
	}
	p, err := f.sess.SaveProfile("Work")
	if err != nil {
		t.Fatalf("SaveProfile() error: %v", err)
	}
	if len(p.Settings) != 2 {
		t.Fatalf("saved settings = %+v", p.Settings)
	}

	// Add a setting for a monitor that is not attached.
	p.Settings = append(p.Settings, config.MonitorSetting{MonitorID: "DP-9", Resolution: mode(800, 600, 60)})
	if err := f.store.AddOrReplace(p); err != nil {
		t.Fatal(err)
	}

	if err := f.sess.SetResolution("DP-1", mode(2560, 1440, 60)); err != nil {
		t.Fatal(err)
	}
	staged, err := f.sess.LoadProfile("Work")
	if err != nil {
		t.Fatalf("LoadProfile() error: %v", err)
	}
	if len(staged) != 2 {
		t.Fatalf("staged ids = %v", staged)
	}
	if mv := viewOf(t, f.sess, "DP-1"); mv.StagedResolution != mode(1920, 1080, 144) {
		t.Fatalf("DP-1 staged = %v", mv.StagedResolution)
	}
	if mv := viewOf(t, f.sess, "HDMI-1"); mv.StagedOrientation != display.LandscapeFlipped {
		t.Fatalf("HDMI-1 orientation = %v", mv.StagedOrientation)
	}

	if err := f.sess.DeleteProfile("Work"); err != nil {
		t.Fatalf("DeleteProfile() error: %v", err)
	}
	if _, err := f.sess.LoadProfile("Work"); !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("LoadProfile() after delete = %v", err)
	}
}

func TestProfiles_RoundTripAcrossAxes(t *testing.T) {
	f := newFixture(t, 5)
	if _, err := f.sess.SaveProfile("Wide"); err != nil {
		t.Fatalf("SaveProfile(Wide) error: %v", err)
	}

	if err := f.sess.SetOrientation("DP-1", display.Portrait); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sess.RequestApply(); err != nil {
		t.Fatalf("RequestApply() error: %v", err)
	}
	if err := f.sess.ConfirmKeep(); err != nil {
		t.Fatal(err)
	}
	tall, err := f.sess.SaveProfile("Tall")
	if err != nil {
		t.Fatalf("SaveProfile(Tall) error: %v", err)
	}
	for _, st := range tall.Settings {
		if st.MonitorID == "DP-1" && st.Resolution != mode(1440, 2560, 60) {
			t.Fatalf("Tall DP-1 saved as %v", st.Resolution)
		}
	}

	tests := []struct {
		profile string
		orient  display.Orientation
		want    display.Resolution
	}{
		{"Wide", display.Landscape, mode(2560, 1440, 60)},
		{"Tall", display.Portrait, mode(1440, 2560, 60)},
		{"Wide", display.Landscape, mode(2560, 1440, 60)},
	}
	for _, tt := range tests {
		res, err := f.sess.SwitchProfile(tt.profile)
		if err != nil || len(res.Errors) != 0 {
			t.Fatalf("SwitchProfile(%s) = %+v, %v", tt.profile, res.Errors, err)
		}
		if err := f.sess.ConfirmKeep(); err != nil {
			t.Fatalf("ConfirmKeep() after %s: %v", tt.profile, err)
		}
		hw, _ := f.driver.Monitor("DP-1")
		if hw.Orientation != tt.orient || hw.Current != tt.want {
			t.Fatalf("after %s: DP-1 = %v %v, want %v %v", tt.profile, hw.Orientation, hw.Current, tt.orient, tt.want)
		}
		if mv := viewOf(t, f.sess, "DP-1"); mv.StagedResolution != tt.want || mv.Pending {
			t.Fatalf("after %s: staged = %+v", tt.profile, mv)
		}
	}
}

func TestSaveProfile_PendingRotationUsesNewFrame(t *testing.T) {
	f := newFixture(t, 5)
	if err := f.sess.SetOrientation("DP-1", display.PortraitFlipped); err != nil {
		t.Fatal(err)
	}
	p, err := f.sess.SaveProfile("Pending")
	if err != nil {
		t.Fatalf("SaveProfile() error: %v", err)
	}
	for _, st := range p.Settings {
		if st.MonitorID != "DP-1" {
			continue
		}
		if st.Resolution != mode(1440, 2560, 60) || st.Orientation == nil || *st.Orientation != display.PortraitFlipped {
			t.Fatalf("DP-1 saved as %v %v", st.Resolution, st.Orientation)
		}
		return
	}
	t.Fatalf("DP-1 missing from %+v", p.Settings)
}

func TestSetMode_Errors(t *testing.T) {
	f := newFixture(t, 5)
	if _, err := f.sess.SetMode("nope", 1920, 1080); !errors.Is(err, ErrUnknownMonitor) {
		t.Fatalf("SetMode(unknown) = %v", err)
	}
	if _, err := f.sess.SetMode("HDMI-1", 3840, 2160); !errors.Is(err, ErrNoMatchingMode) {
		t.Fatalf("SetMode(unsupported) = %v", err)
	}
}

func TestClose_RevertsPendingChange(t *testing.T) {
	f := newFixture(t, 5)
	if _, err := f.sess.SetMode("DP-1", 1920, 1080); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sess.RequestApply(); err != nil {
		t.Fatal(err)
	}
	if err := f.sess.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	hw, _ := f.driver.Monitor("DP-1")
	if hw.Current != mode(2560, 1440, 60) {
		t.Fatalf("pending change survived close: %v", hw.Current)
	}
	if _, err := f.sess.RequestApply(); !errors.Is(err, ErrClosed) {
		t.Fatalf("RequestApply() after close = %v", err)
	}
}

func TestSessions_AreIndependent(t *testing.T) {
	a := newFixture(t, 5)
	b := newFixture(t, 5)
	if _, err := a.sess.SetMode("DP-1", 1920, 1080); err != nil {
		t.Fatal(err)
	}
	if mv := viewOf(t, b.sess, "DP-1"); mv.StagedResolution != mode(2560, 1440, 60) {
		t.Fatalf("staging leaked between sessions: %v", mv.StagedResolution)
	}
}
