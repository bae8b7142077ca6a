package display

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolution is a single display mode. Equality is structural over all fields.
type Resolution struct {
	Width        int `json:"width" yaml:"width" toml:"width"`
	Height       int `json:"height" yaml:"height" toml:"height"`
	Frequency    int `json:"frequency" yaml:"frequency" toml:"frequency"`
	BitsPerPixel int `json:"bits_per_pixel" yaml:"bits_per_pixel" toml:"bits_per_pixel"`
}

// String renders the mode as "1920x1080 @ 60Hz (32bit)".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d @ %dHz (%dbit)", r.Width, r.Height, r.Frequency, r.BitsPerPixel)
}

// Swapped returns the mode with width and height exchanged.
func (r Resolution) Swapped() Resolution {
	r.Width, r.Height = r.Height, r.Width
	return r
}

// SameSize reports whether both modes have identical dimensions.
func (r Resolution) SameSize(o Resolution) bool {
	return r.Width == o.Width && r.Height == o.Height
}

// IsZero reports whether r carries no dimensions.
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// Orientation is the rotation of a monitor. The numeric values match the
// driver encoding so a value round-trips unchanged.
type Orientation uint8

const (
	Landscape        Orientation = 0
	Portrait         Orientation = 1
	LandscapeFlipped Orientation = 2
	PortraitFlipped  Orientation = 3
)

// Orientations lists every orientation in code order.
var Orientations = []Orientation{Landscape, Portrait, LandscapeFlipped, PortraitFlipped}

// OrientationFromCode decodes a driver code. Unknown codes map to Landscape.
func OrientationFromCode(code uint32) Orientation {
	if code > uint32(PortraitFlipped) {
		return Landscape
	}
	return Orientation(code)
}

// Code returns the driver encoding.
func (o Orientation) Code() uint32 {
	return uint32(o)
}

// Degrees returns the clockwise rotation in degrees.
func (o Orientation) Degrees() int {
	switch o {
	case Portrait:
		return 90
	case LandscapeFlipped:
		return 180
	case PortraitFlipped:
		return 270
	default:
		return 0
	}
}

// Label returns the degree label shown to users, e.g. "90°".
func (o Orientation) Label() string {
	return strconv.Itoa(o.Degrees()) + "°"
}

func (o Orientation) String() string {
	switch o {
	case Landscape:
		return "landscape"
	case Portrait:
		return "portrait"
	case LandscapeFlipped:
		return "landscape-flipped"
	case PortraitFlipped:
		return "portrait-flipped"
	default:
		return fmt.Sprintf("orientation(%d)", uint8(o))
	}
}

// Valid reports whether o is one of the four known orientations.
func (o Orientation) Valid() bool {
	return o <= PortraitFlipped
}

// IsPortrait reports whether o lies on the portrait axis.
func (o Orientation) IsPortrait() bool {
	return o == Portrait || o == PortraitFlipped
}

// SameAxis reports whether switching between o and other keeps width and
// height in place.
func (o Orientation) SameAxis(other Orientation) bool {
	return o.IsPortrait() == other.IsPortrait()
}

// ParseOrientation accepts a name ("portrait", "landscape-flipped"), a degree
// value ("90", "90°") or a numeric code prefixed with '#' ("#1").
func ParseOrientation(s string) (Orientation, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "°")
	v = strings.ReplaceAll(v, "_", "-")
	switch v {
	case "landscape", "0", "normal":
		return Landscape, nil
	case "portrait", "90", "left":
		return Portrait, nil
	case "landscape-flipped", "180", "inverted":
		return LandscapeFlipped, nil
	case "portrait-flipped", "270", "right":
		return PortraitFlipped, nil
	}
	if strings.HasPrefix(v, "#") {
		n, err := strconv.ParseUint(v[1:], 10, 8)
		if err == nil && Orientation(n).Valid() {
			return Orientation(n), nil
		}
	}
	return Landscape, fmt.Errorf("unknown orientation %q", s)
}

// MarshalText encodes the orientation by name.
func (o Orientation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid orientation %d", uint8(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText decodes any form accepted by ParseOrientation.
func (o *Orientation) UnmarshalText(b []byte) error {
	parsed, err := ParseOrientation(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Point is a position in the virtual desktop.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Monitor is an immutable snapshot of one output as reported by a single
// enumeration. A fresh slice is produced on every call.
type Monitor struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	DeviceName  string       `json:"device_name"`
	Current     Resolution   `json:"current_resolution"`
	Orientation Orientation  `json:"current_orientation"`
	Position    Point        `json:"position"`
	Primary     bool         `json:"is_primary"`
	Attached    bool         `json:"attached"`
	Modes       []Resolution `json:"available_resolutions"`
}

// FindMonitor returns the monitor with the given id.
func FindMonitor(monitors []Monitor, id string) (Monitor, bool) {
	for _, m := range monitors {
		if m.ID == id {
			return m, true
		}
	}
	return Monitor{}, false
}

// Driver is the operating system boundary. Each call runs to completion and
// is never interrupted by the caller. Setter success only means the request
// was accepted.
type Driver interface {
	EnumerateMonitors() ([]Monitor, error)
	SetResolution(deviceName string, res Resolution) error
	SetOrientation(deviceName string, o Orientation) error
}
