// Package safetynet implements the confirm-or-revert protocol that guards
// every apply against leaving the screen unreadable.
package safetynet

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/resctl/internal/apply"
	"github.com/1broseidon/resctl/internal/display"
)

const (
	DefaultTimeout = 15
	TickInterval   = time.Second
)

var (
	ErrNotArmed       = errors.New("no change is awaiting confirmation")
	ErrAlreadyArmed   = errors.New("a change is already awaiting confirmation; confirm or revert it first")
	ErrNothingApplied = errors.New("no driver call succeeded")
)

// State is the controller state.
type State int

const (
	Idle State = iota
	AwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "awaiting_confirmation":
		*s = AwaitingConfirmation
	default:
		return fmt.Errorf("unknown safety net state %q", string(b))
	}
	return nil
}

// Applier pushes settings to the hardware.
type Applier interface {
	Apply(settings map[string]display.Resolution, orientations map[string]display.Orientation, monitors []display.Monitor) apply.Report
}

// Stager receives the restored values after a revert.
type Stager interface {
	Restore(resolutions map[string]display.Resolution, orientations map[string]display.Orientation)
}

// Snapshot is the configuration in effect immediately before an apply.
type Snapshot struct {
	Resolutions  map[string]display.Resolution
	Orientations map[string]display.Orientation
	Monitors     []display.Monitor
}

func capture(monitors []display.Monitor) *Snapshot {
	snap := &Snapshot{
		Resolutions:  make(map[string]display.Resolution, len(monitors)),
		Orientations: make(map[string]display.Orientation, len(monitors)),
		Monitors:     make([]display.Monitor, len(monitors)),
	}
	copy(snap.Monitors, monitors)
	for _, m := range monitors {
		snap.Resolutions[m.ID] = m.Current
		snap.Orientations[m.ID] = m.Orientation
	}
	return snap
}

// Reason says why a revert ran.
type Reason string

const (
	ReasonTimeout   Reason = "timeout"
	ReasonRequested Reason = "requested"
)

// RevertResult describes a completed revert.
type RevertResult struct {
	Reason   Reason
	Restored map[string]display.Resolution
	Report   apply.Report
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State                         `json:"state"`
	Remaining int                           `json:"remaining"`
	Timeout   int                           `json:"timeout"`
	LastGood  map[string]display.Resolution `json:"last_good,omitempty"`
}

// Options configures a Controller.
type Options struct {
	// Timeout is the number of ticks before an automatic revert.
	Timeout   int
	Scheduler Scheduler
	Logger    *slog.Logger
	// OnRevert runs after every revert, outside the controller lock.
	OnRevert func(RevertResult)
}

// Controller is the safety-net state machine. One exists per session.
type Controller struct {
	mu        sync.Mutex
	applier   Applier
	stager    Stager
	scheduler Scheduler
	logger    *slog.Logger
	onRevert  func(RevertResult)

	timeout    int
	state      State
	remaining  int
	lastGood   *Snapshot
	stop       func()
	generation uint64
}

// New creates an idle controller.
func New(applier Applier, stager Stager, opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TickerScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		applier:   applier,
		stager:    stager,
		scheduler: opts.Scheduler,
		logger:    opts.Logger,
		onRevert:  opts.OnRevert,
		timeout:   opts.Timeout,
	}
}

// SetTimeout changes the countdown length used by the next arm.
func (c *Controller) SetTimeout(ticks int) {
	if ticks <= 0 {
		return
	}
	c.mu.Lock()
	c.timeout = ticks
	c.mu.Unlock()
}

// Apply snapshots monitors as last-good, applies the given settings and arms
// the countdown if at least one driver call succeeded, even when others
// failed. While a previous change awaits confirmation it returns
// ErrAlreadyArmed without touching the hardware.
func (c *Controller) Apply(settings map[string]display.Resolution, orientations map[string]display.Orientation, monitors []display.Monitor) (apply.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == AwaitingConfirmation {
		return apply.Report{}, ErrAlreadyArmed
	}

	lastGood := capture(monitors)
	report := c.applier.Apply(settings, orientations, monitors)
	if report.Succeeded == 0 {
		c.logger.Warn("apply changed nothing; safety net not armed", "errors", len(report.Errors))
		return report, ErrNothingApplied
	}

	c.generation++
	gen := c.generation
	c.state = AwaitingConfirmation
	c.remaining = c.timeout
	c.lastGood = lastGood
	c.stop = c.scheduler.Every(TickInterval, func() { c.tick(gen) })

	c.logger.Info("safety net armed", "timeout", c.timeout, "errors", len(report.Errors))
	return report, nil
}

// Tick advances the current countdown by one step. It is a no-op while idle.
func (c *Controller) Tick() {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.tick(gen)
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if c.state != AwaitingConfirmation || gen != c.generation {
		c.mu.Unlock()
		return
	}
	if c.remaining > 0 {
		c.remaining--
		c.mu.Unlock()
		return
	}
	result := c.revertLocked(ReasonTimeout)
	c.mu.Unlock()

	c.notify(result)
}

// Confirm keeps the applied configuration and cancels the countdown. No
// driver call is made.
func (c *Controller) Confirm() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != AwaitingConfirmation {
		return ErrNotArmed
	}
	c.disarmLocked()
	c.logger.Info("change confirmed")
	return nil
}

// Revert restores the last-good configuration immediately.
func (c *Controller) Revert() (RevertResult, error) {
	c.mu.Lock()
	if c.state != AwaitingConfirmation {
		c.mu.Unlock()
		return RevertResult{}, ErrNotArmed
	}
	result := c.revertLocked(ReasonRequested)
	c.mu.Unlock()

	c.notify(result)
	return result, nil
}

// Status reports the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state, Remaining: c.remaining, Timeout: c.timeout}
	if c.lastGood != nil {
		st.LastGood = make(map[string]display.Resolution, len(c.lastGood.Resolutions))
		for id, r := range c.lastGood.Resolutions {
			st.LastGood[id] = r
		}
	}
	return st
}

func (c *Controller) revertLocked(reason Reason) RevertResult {
	lastGood := c.lastGood
	c.disarmLocked()

	// The snapshot is applied against the monitors as they were before the
	// change, so no axis correction is computed.
	report := c.applier.Apply(lastGood.Resolutions, lastGood.Orientations, lastGood.Monitors)
	if c.stager != nil {
		c.stager.Restore(lastGood.Resolutions, lastGood.Orientations)
	}

	c.logger.Info("reverted to last-good configuration", "reason", string(reason), "errors", len(report.Errors))
	return RevertResult{Reason: reason, Restored: lastGood.Resolutions, Report: report}
}

func (c *Controller) disarmLocked() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	c.generation++
	c.state = Idle
	c.remaining = 0
	c.lastGood = nil
}

func (c *Controller) notify(result RevertResult) {
	if c.onRevert == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("revert hook panic", "panic", r)
		}
	}()
	c.onRevert(result)
}
