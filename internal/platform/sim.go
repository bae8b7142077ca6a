package platform

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/resctl/internal/display"
)

// SimDriver is an in-memory display.Driver. It keeps its own hardware state,
// mutating it on every accepted call, and can be told to fail specific
// calls. It backs tests and dry runs.
type SimDriver struct {
	mu           sync.Mutex
	monitors     []display.Monitor
	failures     map[string]error
	enumerateErr error
	calls        []SimCall
}

var _ display.Driver = (*SimDriver)(nil)

// SimCall records one setter call.
type SimCall struct {
	Device      string
	Op          string
	Resolution  display.Resolution
	Orientation display.Orientation
}

// SimFixture is the on-disk form of a simulated machine.
type SimFixture struct {
	EnumerateError string       `yaml:"enumerate_error"`
	Monitors       []SimMonitor `yaml:"monitors"`
}

// SimMonitor describes one simulated output.
type SimMonitor struct {
	ID              string               `yaml:"id"`
	Name            string               `yaml:"name"`
	Device          string               `yaml:"device"`
	Detached        bool                 `yaml:"detached"`
	Primary         bool                 `yaml:"primary"`
	X               int                  `yaml:"x"`
	Y               int                  `yaml:"y"`
	Current         display.Resolution   `yaml:"current"`
	Orientation     display.Orientation  `yaml:"orientation"`
	Modes           []display.Resolution `yaml:"modes"`
	FailResolution  string               `yaml:"fail_resolution"`
	FailOrientation string               `yaml:"fail_orientation"`
}

// LoadSimDriver reads a YAML fixture.
func LoadSimDriver(path string) (*SimDriver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read: %w", path, err)
	}
	var fx SimFixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("%s: failed to parse yaml: %w", path, err)
	}
	return NewSimDriverFromFixture(fx), nil
}

// NewSimDriverFromFixture builds a driver from a decoded fixture.
func NewSimDriverFromFixture(fx SimFixture) *SimDriver {
	d := NewSimDriver(nil)
	for _, sm := range fx.Monitors {
		device := sm.Device
		if device == "" {
			device = sm.ID
		}
		d.monitors = append(d.monitors, display.Monitor{
			ID:          sm.ID,
			Name:        sm.Name,
			DeviceName:  device,
			Current:     sm.Current,
			Orientation: sm.Orientation,
			Position:    display.Point{X: sm.X, Y: sm.Y},
			Primary:     sm.Primary,
			Attached:    !sm.Detached,
			Modes:       append([]display.Resolution(nil), sm.Modes...),
		})
		if sm.FailResolution != "" {
			d.failures[device+"/resolution"] = errors.New(sm.FailResolution)
		}
		if sm.FailOrientation != "" {
			d.failures[device+"/orientation"] = errors.New(sm.FailOrientation)
		}
	}
	if fx.EnumerateError != "" {
		d.enumerateErr = errors.New(fx.EnumerateError)
	}
	return d
}

// NewSimDriver creates a driver reporting monitors.
func NewSimDriver(monitors []display.Monitor) *SimDriver {
	d := &SimDriver{failures: make(map[string]error)}
	for _, m := range monitors {
		d.monitors = append(d.monitors, cloneMonitor(m))
	}
	return d
}

// Fail makes every later call of op ("resolution" or "orientation") on
// device return err. A nil err clears the failure.
func (d *SimDriver) Fail(device, op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, device+"/"+op)
		return
	}
	d.failures[device+"/"+op] = err
}

// FailEnumerate makes EnumerateMonitors return err. Nil clears it.
func (d *SimDriver) FailEnumerate(err error) {
	d.mu.Lock()
	d.enumerateErr = err
	d.mu.Unlock()
}

// Calls returns the setter calls received so far.
func (d *SimDriver) Calls() []SimCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SimCall(nil), d.calls...)
}

// Monitor returns the simulated hardware state of device.
func (d *SimDriver) Monitor(device string) (display.Monitor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.index(device); i >= 0 {
		return cloneMonitor(d.monitors[i]), true
	}
	return display.Monitor{}, false
}

func (d *SimDriver) EnumerateMonitors() ([]display.Monitor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enumerateErr != nil {
		return nil, d.enumerateErr
	}
	out := make([]display.Monitor, len(d.monitors))
	for i, m := range d.monitors {
		out[i] = cloneMonitor(m)
	}
	return out, nil
}

// SetResolution accepts res if the monitor offers a mode of that size, or
// offers no mode list at all.
func (d *SimDriver) SetResolution(device string, res display.Resolution) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, SimCall{Device: device, Op: "resolution", Resolution: res})

	i, err := d.target(device, "resolution")
	if err != nil {
		return err
	}
	m := &d.monitors[i]
	if len(m.Modes) > 0 && !offers(m.Modes, res) {
		return fmt.Errorf("mode %s not supported by %s", res, device)
	}
	m.Current = res
	return nil
}

// SetOrientation rotates the monitor. Crossing the landscape/portrait axis
// swaps the current mode and the mode list into the new frame.
func (d *SimDriver) SetOrientation(device string, o display.Orientation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, SimCall{Device: device, Op: "orientation", Orientation: o})

	i, err := d.target(device, "orientation")
	if err != nil {
		return err
	}
	if !o.Valid() {
		return fmt.Errorf("invalid orientation %d", uint8(o))
	}
	m := &d.monitors[i]
	if !m.Orientation.SameAxis(o) {
		m.Current = m.Current.Swapped()
		for j := range m.Modes {
			m.Modes[j] = m.Modes[j].Swapped()
		}
	}
	m.Orientation = o
	return nil
}

func (d *SimDriver) target(device, op string) (int, error) {
	if err := d.failures[device+"/"+op]; err != nil {
		return -1, err
	}
	i := d.index(device)
	if i < 0 {
		return -1, fmt.Errorf("device %s not found", device)
	}
	if !d.monitors[i].Attached {
		return -1, fmt.Errorf("device %s is not attached", device)
	}
	return i, nil
}

func (d *SimDriver) index(device string) int {
	for i, m := range d.monitors {
		if m.DeviceName == device {
			return i
		}
	}
	return -1
}

func offers(modes []display.Resolution, res display.Resolution) bool {
	for _, m := range modes {
		if m.Width == res.Width && m.Height == res.Height {
			return true
		}
	}
	return false
}

func cloneMonitor(m display.Monitor) display.Monitor {
	m.Modes = append([]display.Resolution(nil), m.Modes...)
	return m
}
