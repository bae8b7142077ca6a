package apply

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/1broseidon/resctl/internal/display"
)

type call struct {
	device string
	op     Op
	res    display.Resolution
	orient display.Orientation
}

type recordingDriver struct {
	calls []call
	fail  map[string]error
}

func (d *recordingDriver) EnumerateMonitors() ([]display.Monitor, error) { return nil, nil }

func (d *recordingDriver) SetResolution(device string, r display.Resolution) error {
	d.calls = append(d.calls, call{device: device, op: OpResolution, res: r})
	return d.fail[device+"/res"]
}

func (d *recordingDriver) SetOrientation(device string, o display.Orientation) error {
	d.calls = append(d.calls, call{device: device, op: OpOrientation, orient: o})
	return d.fail[device+"/orient"]
}

func newEngine(d *recordingDriver) *Engine {
	return NewEngine(d, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var fullHD = display.Resolution{Width: 1920, Height: 1080, Frequency: 60, BitsPerPixel: 32}

func landscapeMonitor(id string) display.Monitor {
	return display.Monitor{ID: id, Name: id + " panel", DeviceName: id, Current: fullHD, Orientation: display.Landscape}
}

func TestApply_SwapsAxisWhenRotatingToPortrait(t *testing.T) {
	d := &recordingDriver{}
	report := newEngine(d).Apply(
		map[string]display.Resolution{"DP-1": fullHD},
		map[string]display.Orientation{"DP-1": display.Portrait},
		[]display.Monitor{landscapeMonitor("DP-1")},
	)
	if !report.OK() {
		t.Fatalf("unexpected errors: %v", report.Err())
	}
	if len(d.calls) != 2 || d.calls[0].op != OpOrientation || d.calls[1].op != OpResolution {
		t.Fatalf("unexpected call sequence: %+v", d.calls)
	}
	if got := d.calls[1].res; got.Width != 1080 || got.Height != 1920 {
		t.Fatalf("resolution sent = %dx%d, want 1080x1920", got.Width, got.Height)
	}
	if len(report.Crossed) != 1 || report.Crossed[0] != "DP-1" {
		t.Fatalf("Crossed = %v", report.Crossed)
	}
}

func TestApply_NoSwapWithinSameAxis(t *testing.T) {
	d := &recordingDriver{}
	report := newEngine(d).Apply(
		map[string]display.Resolution{"DP-1": fullHD},
		map[string]display.Orientation{"DP-1": display.LandscapeFlipped},
		[]display.Monitor{landscapeMonitor("DP-1")},
	)
	if got := d.calls[1].res; got.Width != 1920 || got.Height != 1080 {
		t.Fatalf("resolution sent = %dx%d, want 1920x1080", got.Width, got.Height)
	}
	if len(report.Crossed) != 0 {
		t.Fatalf("Crossed = %v, want none", report.Crossed)
	}
}

func TestApply_NoSwapWhenOrientationFails(t *testing.T) {
	d := &recordingDriver{fail: map[string]error{"DP-1/orient": errors.New("rejected")}}
	report := newEngine(d).Apply(
		map[string]display.Resolution{"DP-1": fullHD},
		map[string]display.Orientation{"DP-1": display.Portrait},
		[]display.Monitor{landscapeMonitor("DP-1")},
	)
	if len(report.Errors) != 1 || report.Errors[0].Op != OpOrientation {
		t.Fatalf("Errors = %v", report.Errors)
	}
	if got := d.calls[1].res; got.Width != 1920 {
		t.Fatalf("resolution swapped despite failed rotation: %v", got)
	}
}

func TestApply_PartialFailureIsIsolated(t *testing.T) {
	boom := errors.New("mode not accepted")
	d := &recordingDriver{fail: map[string]error{"A/res": boom}}
	report := newEngine(d).Apply(
		map[string]display.Resolution{"A": fullHD, "B": fullHD},
		nil,
		[]display.Monitor{landscapeMonitor("A"), landscapeMonitor("B")},
	)

	if len(report.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %d", len(report.Errors))
	}
	got := report.Errors[0]
	if got.MonitorID != "A" || got.MonitorName != "A panel" || !errors.Is(got, boom) {
		t.Fatalf("unexpected error entry: %+v", got)
	}
	if report.Succeeded != 1 {
		t.Fatalf("Succeeded = %d, want 1", report.Succeeded)
	}
	if len(d.calls) != 2 {
		t.Fatalf("expected a call for B after A failed, got %+v", d.calls)
	}
}

func TestApply_IgnoresUnknownMonitorIDs(t *testing.T) {
	d := &recordingDriver{}
	report := newEngine(d).Apply(
		map[string]display.Resolution{"gone": fullHD},
		map[string]display.Orientation{"gone": display.Portrait},
		[]display.Monitor{landscapeMonitor("DP-1")},
	)
	if len(d.calls) != 0 || !report.OK() {
		t.Fatalf("expected no calls and no errors, got %+v / %v", d.calls, report.Errors)
	}
}
