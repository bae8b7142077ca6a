package safetynet

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/resctl/internal/apply"
	"github.com/1broseidon/resctl/internal/display"
)

type applyCall struct {
	settings     map[string]display.Resolution
	orientations map[string]display.Orientation
	monitors     []display.Monitor
}

type fakeApplier struct {
	calls  []applyCall
	report func(call int) apply.Report
}

func (a *fakeApplier) Apply(settings map[string]display.Resolution, orientations map[string]display.Orientation, monitors []display.Monitor) apply.Report {
	a.calls = append(a.calls, applyCall{settings, orientations, monitors})
	if a.report != nil {
		return a.report(len(a.calls) - 1)
	}
	return apply.Report{Succeeded: len(settings) + len(orientations)}
}

type fakeStager struct {
	restored map[string]display.Resolution
}

func (s *fakeStager) Restore(r map[string]display.Resolution, _ map[string]display.Orientation) {
	s.restored = r
}

type entry struct {
	fn      func()
	stopped bool
}

// manualScheduler fires callbacks only when the test asks it to.
type manualScheduler struct {
	mu      sync.Mutex
	entries []*entry
}

func (s *manualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{fn: fn}
	s.entries = append(s.entries, e)
	return func() {
		s.mu.Lock()
		e.stopped = true
		s.mu.Unlock()
	}
}

func (s *manualScheduler) fire(includeStopped bool) {
	s.mu.Lock()
	var fns []func()
	for _, e := range s.entries {
		if includeStopped || !e.stopped {
			fns = append(fns, e.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *manualScheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.stopped {
			n++
		}
	}
	return n
}

var (
	m1Good = display.Resolution{Width: 1920, Height: 1080, Frequency: 60, BitsPerPixel: 32}
	m1New  = display.Resolution{Width: 2560, Height: 1440, Frequency: 144, BitsPerPixel: 32}
)

func monitors() []display.Monitor {
	return []display.Monitor{{ID: "M1", Name: "M1", DeviceName: "M1", Current: m1Good}}
}

func newController(t *testing.T, timeout int, a *fakeApplier, st *fakeStager, onRevert func(RevertResult)) (*Controller, *manualScheduler) {
	t.Helper()
	sched := &manualScheduler{}
	c := New(a, st, Options{
		Timeout:   timeout,
		Scheduler: sched,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnRevert:  onRevert,
	})
	return c, sched
}

func TestController_RevertsAfterTimeout(t *testing.T) {
	a := &fakeApplier{}
	st := &fakeStager{}
	var reverted []RevertResult
	c, sched := newController(t, 3, a, st, func(r RevertResult) { reverted = append(reverted, r) })

	if _, err := c.Apply(map[string]display.Resolution{"M1": m1New}, nil, monitors()); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got := c.Status(); got.State != AwaitingConfirmation || got.Remaining != 3 {
		t.Fatalf("after apply: %+v", got)
	}

	for i := 0; i < 3; i++ {
		sched.fire(false)
	}
	if got := c.Status(); got.State != AwaitingConfirmation || got.Remaining != 0 {
		t.Fatalf("after countdown: %+v", got)
	}
	if len(a.calls) != 1 {
		t.Fatalf("reverted before remaining reached zero")
	}

	sched.fire(false)

	if got := c.Status(); got.State != Idle {
		t.Fatalf("state after revert = %v, want idle", got.State)
	}
	if len(a.calls) != 2 {
		t.Fatalf("expected revert apply call, got %d calls", len(a.calls))
	}
	revert := a.calls[1]
	if len(revert.settings) != 1 || revert.settings["M1"] != m1Good {
		t.Fatalf("revert settings = %v, want exactly {M1: %v}", revert.settings, m1Good)
	}
	if st.restored["M1"] != m1Good {
		t.Fatalf("staging not restored: %v", st.restored)
	}
	if len(reverted) != 1 || reverted[0].Reason != ReasonTimeout {
		t.Fatalf("revert hook = %+v", reverted)
	}
	if sched.active() != 0 {
		t.Fatalf("ticker still scheduled after revert")
	}
}

func TestController_ConfirmCancelsTimer(t *testing.T) {
	a := &fakeApplier{}
	c, sched := newController(t, 2, a, &fakeStager{}, nil)

	if _, err := c.Apply(map[string]display.Resolution{"M1": m1New}, nil, monitors()); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	sched.fire(false)
	if err := c.Confirm(); err != nil {
		t.Fatalf("Confirm() error: %v", err)
	}
	if sched.active() != 0 {
		t.Fatalf("ticker still scheduled after confirm")
	}

	// Late ticks from the cancelled timer must not revert.
	for i := 0; i < 10; i++ {
		sched.fire(true)
		c.Tick()
	}
	if len(a.calls) != 1 {
		t.Fatalf("expected no further apply calls, got %d", len(a.calls))
	}
	if got := c.Status(); got.State != Idle || got.LastGood != nil {
		t.Fatalf("status after confirm: %+v", got)
	}
}

func TestController_RequestedRevertRunsImmediately(t *testing.T) {
	a := &fakeApplier{}
	st := &fakeStager{}
	c, sched := newController(t, 15, a, st, nil)

	if _, err := c.Apply(map[string]display.Resolution{"M1": m1New}, nil, monitors()); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	res, err := c.Revert()
	if err != nil {
		t.Fatalf("Revert() error: %v", err)
	}
	if res.Reason != ReasonRequested || res.Restored["M1"] != m1Good {
		t.Fatalf("Revert() = %+v", res)
	}
	if len(a.calls) != 2 {
		t.Fatalf("expected 2 apply calls, got %d", len(a.calls))
	}
	sched.fire(true)
	if len(a.calls) != 2 {
		t.Fatalf("stale tick triggered another apply")
	}
	if _, err := c.Revert(); !errors.Is(err, ErrNotArmed) {
		t.Fatalf("second Revert() error = %v, want ErrNotArmed", err)
	}
}

func TestController_PartialFailureStillArms(t *testing.T) {
	two := []display.Monitor{
		{ID: "A", Name: "A", DeviceName: "A", Current: m1Good},
		{ID: "B", Name: "B", DeviceName: "B", Current: m1Good, Orientation: display.Portrait},
	}
	a := &fakeApplier{report: func(int) apply.Report {
		return apply.Report{
			Succeeded: 1,
			Errors:    []*apply.Error{{MonitorID: "A", MonitorName: "A", Op: apply.OpResolution, Err: errors.New("bad mode")}},
		}
	}}
	c, _ := newController(t, 5, a, &fakeStager{}, nil)

	report, err := c.Apply(map[string]display.Resolution{"A": m1New, "B": m1New}, nil, two)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if len(report.Errors) != 1 || report.Errors[0].MonitorID != "A" {
		t.Fatalf("report errors = %v", report.Errors)
	}
	st := c.Status()
	if st.State != AwaitingConfirmation {
		t.Fatalf("state = %v, want awaiting confirmation", st.State)
	}
	if len(st.LastGood) != 2 || st.LastGood["A"] != m1Good || st.LastGood["B"] != m1Good {
		t.Fatalf("last-good = %v, want both monitors at their pre-apply mode", st.LastGood)
	}

	if _, err := c.Revert(); err != nil {
		t.Fatalf("Revert() error: %v", err)
	}
	revert := a.calls[1]
	if revert.orientations["B"] != display.Portrait {
		t.Fatalf("revert orientation for B = %v, want portrait", revert.orientations["B"])
	}
}

func TestController_TotalFailureDoesNotArm(t *testing.T) {
	a := &fakeApplier{report: func(int) apply.Report {
		return apply.Report{Errors: []*apply.Error{{MonitorID: "M1", Op: apply.OpResolution, Err: errors.New("nope")}}}
	}}
	c, sched := newController(t, 5, a, &fakeStager{}, nil)

	_, err := c.Apply(map[string]display.Resolution{"M1": m1New}, nil, monitors())
	if !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("Apply() error = %v, want ErrNothingApplied", err)
	}
	if c.Status().State != Idle || sched.active() != 0 {
		t.Fatalf("controller armed after total failure")
	}
}

func TestController_RejectsApplyWhileArmed(t *testing.T) {
	a := &fakeApplier{}
	c, sched := newController(t, 5, a, &fakeStager{}, nil)

	if _, err := c.Apply(map[string]display.Resolution{"M1": m1New}, nil, monitors()); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	sched.fire(false)
	if _, err := c.Apply(map[string]display.Resolution{"M1": m1Good}, nil, monitors()); !errors.Is(err, ErrAlreadyArmed) {
		t.Fatalf("second Apply() error = %v, want ErrAlreadyArmed", err)
	}
	if len(a.calls) != 1 {
		t.Fatalf("second apply reached the driver")
	}
	if got := c.Status().Remaining; got != 4 {
		t.Fatalf("countdown disturbed: remaining = %d, want 4", got)
	}
}

func TestController_ConfirmWhenIdle(t *testing.T) {
	c, _ := newController(t, 5, &fakeApplier{}, &fakeStager{}, nil)
	if err := c.Confirm(); !errors.Is(err, ErrNotArmed) {
		t.Fatalf("Confirm() error = %v, want ErrNotArmed", err)
	}
	c.Tick()
}

func TestTickerScheduler_StopFromCallback(t *testing.T) {
	done := make(chan struct{})
	var (
		mu   sync.Mutex
		stop func()
		once sync.Once
	)
	mu.Lock()
	stop = TickerScheduler{}.Every(time.Millisecond, func() {
		once.Do(func() {
			mu.Lock()
			s := stop
			mu.Unlock()
			s()
			close(done)
		})
	})
	mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker never fired")
	}
}
