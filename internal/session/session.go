// Package session ties the catalog, staging store, apply engine, safety net
// and profile store together behind the commands a presentation layer uses.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/resctl/internal/apply"
	"github.com/1broseidon/resctl/internal/config"
	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/history"
	"github.com/1broseidon/resctl/internal/profile"
	"github.com/1broseidon/resctl/internal/safetynet"
	"github.com/1broseidon/resctl/internal/staging"
)

var (
	ErrUnknownMonitor = errors.New("unknown monitor")
	ErrNoMatchingMode = errors.New("no matching mode")
	ErrClosed         = errors.New("session closed")
)

// Options configures a Session.
type Options struct {
	Driver   display.Driver
	Profiles *profile.Store
	Journal  *history.Journal
	Logger   *slog.Logger
	// Scheduler drives the safety-net countdown. Defaults to wall-clock ticks.
	Scheduler safetynet.Scheduler
	// ResetTimeout overrides general.reset_timeout from the profile store.
	ResetTimeout int
	// OnRevert is called after every revert, once the session has
	// re-enumerated.
	OnRevert func(safetynet.RevertResult)
}

// Session is one explicitly owned instance of the display configuration
// state. Independent sessions share nothing.
type Session struct {
	mu       sync.Mutex
	catalog  *display.Catalog
	staging  *staging.Store
	engine   *apply.Engine
	safety   *safetynet.Controller
	profiles *profile.Store
	journal  *history.Journal
	logger   *slog.Logger
	onRevert func(safetynet.RevertResult)

	monitors    []display.Monitor
	lastErr     error
	refreshedAt time.Time
	closed      bool
}

// New builds a session. It does not enumerate; call Refresh.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	profiles := opts.Profiles
	if profiles == nil {
		profiles = profile.NewStore("", nil)
	}
	timeout := opts.ResetTimeout
	if timeout <= 0 {
		timeout = profiles.Config().General.ResetTimeout
	}

	s := &Session{
		catalog:  display.NewCatalog(opts.Driver, logger),
		staging:  staging.NewStore(),
		engine:   apply.NewEngine(opts.Driver, logger),
		profiles: profiles,
		journal:  opts.Journal,
		logger:   logger,
		onRevert: opts.OnRevert,
	}
	s.safety = safetynet.New(s.engine, s.staging, safetynet.Options{
		Timeout:   timeout,
		Scheduler: opts.Scheduler,
		Logger:    logger,
		OnRevert:  s.afterRevert,
	})
	return s
}

// Refresh re-enumerates and reconciles staging. On failure the previous
// monitor list is kept.
func (s *Session) Refresh() ([]display.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.refreshLocked(); err != nil {
		return cloneMonitors(s.monitors), err
	}
	return cloneMonitors(s.monitors), nil
}

func (s *Session) refreshLocked() error {
	monitors, err := s.catalog.Enumerate()
	if err != nil {
		s.lastErr = err
		s.logger.Error("enumeration failed", "error", err)
		s.journal.Record(history.ActionRefreshFailed, map[string]any{"error": err})
		return err
	}
	s.monitors = monitors
	s.lastErr = nil
	s.refreshedAt = time.Now()
	s.staging.Reconcile(monitors)
	return nil
}

// Monitors returns the last successful enumeration.
func (s *Session) Monitors() []display.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMonitors(s.monitors)
}

// SetResolution stages res for the monitor.
func (s *Session) SetResolution(id string, res display.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.monitorLocked(id); err != nil {
		return err
	}
	s.staging.SetResolution(id, res)
	return nil
}

// SetMode stages the best mode of the given size for the monitor.
func (s *Session) SetMode(id string, width, height int) (display.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.monitorLocked(id)
	if err != nil {
		return display.Resolution{}, err
	}
	res, ok := staging.BestMatch(m, width, height)
	if !ok {
		return display.Resolution{}, fmt.Errorf("%w: %dx%d on %s", ErrNoMatchingMode, width, height, m.Name)
	}
	s.staging.SetResolution(id, res)
	return res, nil
}

// SetOrientation stages o for the monitor.
func (s *Session) SetOrientation(id string, o display.Orientation) error {
	if !o.Valid() {
		return fmt.Errorf("invalid orientation %d", uint8(o))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.monitorLocked(id); err != nil {
		return err
	}
	s.staging.SetOrientation(id, o)
	return nil
}

func (s *Session) monitorLocked(id string) (display.Monitor, error) {
	if s.closed {
		return display.Monitor{}, ErrClosed
	}
	m, ok := display.FindMonitor(s.monitors, id)
	if !ok {
		return display.Monitor{}, fmt.Errorf("%w: %s", ErrUnknownMonitor, id)
	}
	return m, nil
}

// ApplyResult is the outcome of RequestApply.
type ApplyResult struct {
	Errors []*apply.Error
	Armed  bool
	Status safetynet.Status
}

// RequestApply enumerates, reconciles, applies the staged settings through
// the safety net and re-enumerates to pick up the new ground truth.
func (s *Session) RequestApply() (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ApplyResult{}, ErrClosed
	}
	if st := s.safety.Status(); st.State == safetynet.AwaitingConfirmation {
		s.journal.Record(history.ActionApplyRejected, map[string]any{"remaining": st.Remaining})
		return ApplyResult{Status: st}, safetynet.ErrAlreadyArmed
	}

	if err := s.refreshLocked(); err != nil {
		return ApplyResult{}, err
	}
	pre := s.monitors
	staged := s.staging.Snapshot()

	report, err := s.safety.Apply(staged.Resolutions, staged.Orientations, pre)
	result := ApplyResult{Errors: report.Errors, Status: s.safety.Status()}
	result.Armed = result.Status.State == safetynet.AwaitingConfirmation
	if errors.Is(err, safetynet.ErrAlreadyArmed) {
		s.journal.Record(history.ActionApplyRejected, map[string]any{"remaining": result.Status.Remaining})
		return result, err
	}

	// Staged sizes of rotated monitors move into the new frame.
	for _, id := range report.Crossed {
		if res, ok := staged.Resolutions[id]; ok {
			s.staging.SetResolution(id, res.Swapped())
		}
	}

	if rerr := s.refreshLocked(); rerr != nil {
		s.logger.Warn("post-apply enumeration failed", "error", rerr)
	}

	s.journal.Record(history.ActionApply, map[string]any{
		"armed":    result.Armed,
		"errors":   len(report.Errors),
		"monitors": len(pre),
		"timeout":  result.Status.Timeout,
	})
	for _, e := range report.Errors {
		s.logger.Warn("apply error", "monitor", e.MonitorName, "op", string(e.Op), "error", e.Err)
	}
	return result, err
}

// ConfirmKeep keeps the applied configuration.
func (s *Session) ConfirmKeep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.safety.Confirm(); err != nil {
		return err
	}
	s.journal.Record(history.ActionConfirm, nil)
	return nil
}

// RequestRevert restores the last-good configuration now.
func (s *Session) RequestRevert() (safetynet.RevertResult, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return safetynet.RevertResult{}, ErrClosed
	}
	// The revert hook takes the session lock itself.
	return s.safety.Revert()
}

// Tick advances the safety-net countdown by one step.
func (s *Session) Tick() {
	s.safety.Tick()
}

// Status reports the safety-net state.
func (s *Session) Status() safetynet.Status {
	return s.safety.Status()
}

// SetResetTimeout changes the countdown used by the next apply.
func (s *Session) SetResetTimeout(ticks int) {
	s.safety.SetTimeout(ticks)
}

func (s *Session) afterRevert(result safetynet.RevertResult) {
	s.mu.Lock()
	if !s.closed {
		if err := s.refreshLocked(); err != nil {
			s.logger.Warn("post-revert enumeration failed", "error", err)
		}
	}
	s.journal.Record(history.ActionRevert, map[string]any{
		"reason":   string(result.Reason),
		"errors":   len(result.Report.Errors),
		"monitors": len(result.Restored),
	})
	hook := s.onRevert
	s.mu.Unlock()

	if hook != nil {
		hook(result)
	}
}

// SaveProfile stores the staged settings of every attached monitor under
// name, replacing any profile with that name. On a persistence failure the
// profile is still kept in memory and returned with the error.
func (s *Session) SaveProfile(name string) (config.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return config.Profile{}, ErrClosed
	}

	p := config.Profile{Name: name}
	for _, m := range s.monitors {
		res, ok := s.staging.Resolution(m.ID)
		if !ok {
			continue
		}
		setting := config.MonitorSetting{MonitorID: m.ID, Resolution: res}
		if o, ok := s.staging.Orientation(m.ID); ok {
			// Stored sizes use the frame of the stored orientation.
			if !m.Orientation.SameAxis(o) {
				setting.Resolution = res.Swapped()
			}
			setting.Orientation = &o
		}
		p.Settings = append(p.Settings, setting)
	}

	err := s.profiles.AddOrReplace(p)
	s.journal.Record(history.ActionProfileSave, map[string]any{"name": name, "settings": len(p.Settings), "ok": err == nil})
	return p, err
}

// LoadProfile stages the named profile for the monitors currently attached.
// Settings for other monitors are skipped.
func (s *Session) LoadProfile(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.refreshLocked(); err != nil {
		s.logger.Warn("loading profile against stale monitor list", "profile", name, "error", err)
	}

	staged, err := s.profiles.ApplyProfile(name, s.monitors, s.staging)
	if err != nil {
		return nil, err
	}
	s.journal.Record(history.ActionProfileLoad, map[string]any{"name": name, "staged": len(staged)})
	return staged, nil
}

// SwitchProfile loads the named profile and applies it.
func (s *Session) SwitchProfile(name string) (ApplyResult, error) {
	if _, err := s.LoadProfile(name); err != nil {
		return ApplyResult{}, err
	}
	return s.RequestApply()
}

// DeleteProfile removes the named profile.
func (s *Session) DeleteProfile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.profiles.Delete(name); err != nil {
		return err
	}
	s.journal.Record(history.ActionProfileDelete, map[string]any{"name": name})
	return nil
}

// Profiles lists the stored profiles.
func (s *Session) Profiles() []config.Profile {
	return s.profiles.List()
}

// Close ends the session. A change still awaiting confirmation is reverted.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.safety.Status().State != safetynet.AwaitingConfirmation {
		return nil
	}
	s.logger.Info("reverting unconfirmed change on close")
	if _, err := s.safety.Revert(); err != nil && !errors.Is(err, safetynet.ErrNotArmed) {
		return err
	}
	return nil
}

func cloneMonitors(in []display.Monitor) []display.Monitor {
	out := make([]display.Monitor, len(in))
	for i, m := range in {
		m.Modes = append([]display.Resolution(nil), m.Modes...)
		out[i] = m
	}
	return out
}
