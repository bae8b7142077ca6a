// Package apply pushes staged settings to the display driver one monitor at
// a time.
package apply

import (
	"fmt"
	"log/slog"

	"github.com/1broseidon/resctl/internal/display"
)

// Op names the driver call that failed.
type Op string

const (
	OpResolution  Op = "resolution"
	OpOrientation Op = "orientation"
)

// Error is a per-monitor failure. It never aborts the remaining monitors.
type Error struct {
	MonitorID   string
	MonitorName string
	Op          Op
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: set %s: %v", e.MonitorName, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Report is the outcome of one Apply call.
type Report struct {
	Errors []*Error
	// Succeeded counts driver calls the OS accepted.
	Succeeded int
	// Crossed lists monitors whose orientation change moved them to the other
	// axis. Their staged resolutions are expressed in the old frame.
	Crossed []string
}

// OK reports whether every driver call succeeded.
func (r Report) OK() bool {
	return len(r.Errors) == 0
}

// Err joins the per-monitor failures, or returns nil.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	if len(r.Errors) == 1 {
		return r.Errors[0]
	}
	return fmt.Errorf("%d monitors failed; first: %w", len(r.Errors), r.Errors[0])
}

// Engine applies resolutions and orientations through a driver.
type Engine struct {
	driver display.Driver
	logger *slog.Logger
}

// NewEngine creates an engine over driver.
func NewEngine(driver display.Driver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{driver: driver, logger: logger}
}

// Apply sends settings and orientations for every monitor in monitors that
// has an entry. Ids with no matching monitor are ignored. Orientation is set
// before resolution; when the orientation crosses the landscape/portrait axis
// the resolution is sent with width and height swapped, because the driver
// takes dimensions in the frame of the orientation in effect. Nothing is
// retried or rolled back.
func (e *Engine) Apply(settings map[string]display.Resolution, orientations map[string]display.Orientation, monitors []display.Monitor) Report {
	var report Report
	for _, m := range monitors {
		res, hasRes := settings[m.ID]
		orient, hasOrient := orientations[m.ID]
		if !hasRes && !hasOrient {
			continue
		}

		crossed := false
		if hasOrient {
			if err := e.driver.SetOrientation(m.DeviceName, orient); err != nil {
				e.logger.Warn("set orientation failed", "monitor", m.Name, "orientation", orient.String(), "error", err)
				report.Errors = append(report.Errors, &Error{MonitorID: m.ID, MonitorName: m.Name, Op: OpOrientation, Err: err})
			} else {
				report.Succeeded++
				if !m.Orientation.SameAxis(orient) {
					crossed = true
					report.Crossed = append(report.Crossed, m.ID)
				}
			}
		}

		if hasRes {
			send := res
			if crossed {
				send = res.Swapped()
			}
			if err := e.driver.SetResolution(m.DeviceName, send); err != nil {
				e.logger.Warn("set resolution failed", "monitor", m.Name, "resolution", send.String(), "error", err)
				report.Errors = append(report.Errors, &Error{MonitorID: m.ID, MonitorName: m.Name, Op: OpResolution, Err: err})
			} else {
				report.Succeeded++
			}
		}
		e.logger.Debug("monitor processed", "monitor", m.Name, "resolution", res.String(), "crossed", crossed)
	}
	return report
}
