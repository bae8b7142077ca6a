package display

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type stubDriver struct {
	monitors []Monitor
	err      error
}

func (d *stubDriver) EnumerateMonitors() ([]Monitor, error) { return d.monitors, d.err }
func (d *stubDriver) SetResolution(string, Resolution) error { return nil }
func (d *stubDriver) SetOrientation(string, Orientation) error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnumerate_FiltersDetachedAndSortsModes(t *testing.T) {
	drv := &stubDriver{monitors: []Monitor{
		{
			ID: "DP-1", Name: "Dell", DeviceName: "DP-1", Attached: true,
			Current: Resolution{1920, 1080, 60, 32},
			Modes: []Resolution{
				{1280, 720, 60, 32},
				{1920, 1080, 60, 32},
				{1920, 1080, 144, 32},
				{1920, 1080, 60, 32},
				{2560, 1440, 60, 32},
				{1920, 1200, 60, 32},
			},
		},
		{ID: "HDMI-1", DeviceName: "HDMI-1", Attached: false, Current: Resolution{1920, 1080, 60, 32}},
	}}

	got, err := NewCatalog(drv, quietLogger()).Enumerate()
	if err != nil {
		t.Fatalf("Enumerate() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 attached monitor, got %d", len(got))
	}
	want := []Resolution{
		{2560, 1440, 60, 32},
		{1920, 1200, 60, 32},
		{1920, 1080, 144, 32},
		{1920, 1080, 60, 32},
		{1280, 720, 60, 32},
	}
	if len(got[0].Modes) != len(want) {
		t.Fatalf("modes = %v, want %v", got[0].Modes, want)
	}
	for i := range want {
		if got[0].Modes[i] != want[i] {
			t.Fatalf("modes[%d] = %v, want %v", i, got[0].Modes[i], want[i])
		}
	}
}

func TestEnumerate_SkipsMalformedEntries(t *testing.T) {
	drv := &stubDriver{monitors: []Monitor{
		{ID: "", DeviceName: "X", Attached: true, Current: Resolution{1920, 1080, 60, 32}},
		{ID: "DP-2", DeviceName: "DP-2", Attached: true, Current: Resolution{0, 0, 0, 0}},
		{ID: "DP-3", DeviceName: "DP-3", Attached: true, Current: Resolution{1024, 768, 60, 24}},
	}}

	got, err := NewCatalog(drv, quietLogger()).Enumerate()
	if err != nil {
		t.Fatalf("Enumerate() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "DP-3" {
		t.Fatalf("expected only DP-3, got %+v", got)
	}
	if got[0].Name != "Display 3" {
		t.Fatalf("fallback name = %q, want %q", got[0].Name, "Display 3")
	}
}

func TestEnumerate_FallbackNameFollowsDeviceIndex(t *testing.T) {
	drv := &stubDriver{monitors: []Monitor{
		{ID: "DP-1", DeviceName: "DP-1", Attached: false, Current: Resolution{1920, 1080, 60, 32}},
		{ID: "DP-2", DeviceName: "DP-2", Attached: true, Current: Resolution{1920, 1080, 60, 32}},
		{ID: "HDMI-1", Name: "TV", DeviceName: "HDMI-1", Attached: true, Current: Resolution{3840, 2160, 60, 32}},
	}}

	got, err := NewCatalog(drv, quietLogger()).Enumerate()
	if err != nil {
		t.Fatalf("Enumerate() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attached monitors, got %d", len(got))
	}
	if got[0].Name != "Display 2" {
		t.Fatalf("fallback name = %q, want %q", got[0].Name, "Display 2")
	}
	if got[1].Name != "TV" {
		t.Fatalf("reported name = %q, want TV", got[1].Name)
	}
}

func TestEnumerate_TotalFailureIsEnumerationError(t *testing.T) {
	boom := errors.New("no display")
	_, err := NewCatalog(&stubDriver{err: boom}, quietLogger()).Enumerate()

	var enumErr *EnumerationError
	if !errors.As(err, &enumErr) {
		t.Fatalf("expected *EnumerationError, got %T (%v)", err, err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestEnumerate_ReturnsFreshSlices(t *testing.T) {
	drv := &stubDriver{monitors: []Monitor{
		{ID: "DP-1", DeviceName: "DP-1", Attached: true, Current: Resolution{1920, 1080, 60, 32},
			Modes: []Resolution{{1920, 1080, 60, 32}}},
	}}
	cat := NewCatalog(drv, quietLogger())

	first, _ := cat.Enumerate()
	first[0].Modes[0].Width = 1
	second, _ := cat.Enumerate()
	if second[0].Modes[0].Width != 1920 {
		t.Fatalf("second snapshot shares storage with first")
	}
}

func TestOrientation_AxisAndParsing(t *testing.T) {
	tests := []struct {
		in   string
		want Orientation
	}{
		{"landscape", Landscape},
		{"Portrait", Portrait},
		{"90°", Portrait},
		{"180", LandscapeFlipped},
		{"portrait_flipped", PortraitFlipped},
		{"#3", PortraitFlipped},
	}
	for _, tt := range tests {
		got, err := ParseOrientation(tt.in)
		if err != nil {
			t.Fatalf("ParseOrientation(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseOrientation(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseOrientation("sideways"); err == nil {
		t.Fatalf("expected error for unknown orientation")
	}

	if !Landscape.SameAxis(LandscapeFlipped) || !Portrait.SameAxis(PortraitFlipped) {
		t.Fatalf("flipped variants must share an axis")
	}
	if Landscape.SameAxis(Portrait) || LandscapeFlipped.SameAxis(PortraitFlipped) {
		t.Fatalf("landscape and portrait must differ in axis")
	}
	if OrientationFromCode(9) != Landscape {
		t.Fatalf("unknown code must decode as landscape")
	}
	if PortraitFlipped.Label() != "270°" {
		t.Fatalf("Label() = %q", PortraitFlipped.Label())
	}
}

func TestResolution_String(t *testing.T) {
	r := Resolution{Width: 1920, Height: 1080, Frequency: 60, BitsPerPixel: 32}
	if got := r.String(); got != "1920x1080 @ 60Hz (32bit)" {
		t.Fatalf("String() = %q", got)
	}
	if s := r.Swapped(); s.Width != 1080 || s.Height != 1920 || s.Frequency != 60 {
		t.Fatalf("Swapped() = %v", s)
	}
}
