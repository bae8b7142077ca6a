package x11

import (
	"fmt"
	"math"
	"sync"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/resctl/internal/display"
)

// Driver implements display.Driver on top of XRandR. Outputs are addressed
// by their RandR name ("DP-1", "HDMI-1").
type Driver struct {
	conn *Connection
	mu   sync.Mutex
}

var _ display.Driver = (*Driver)(nil)

// NewDriver wraps an open connection.
func NewDriver(conn *Connection) *Driver {
	return &Driver{conn: conn}
}

// output is the state of one RandR output gathered in a single pass.
type output struct {
	id       randr.Output
	name     string
	info     *randr.GetOutputInfoReply
	crtc     *randr.GetCrtcInfoReply
	attached bool
}

type snapshot struct {
	resources *randr.GetScreenResourcesReply
	modes     map[randr.Mode]randr.ModeInfo
	outputs   []output
	primary   randr.Output
}

func (d *Driver) query() (*snapshot, error) {
	xc := d.conn.XUtil.Conn()

	resources, err := randr.GetScreenResources(xc, d.conn.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	snap := &snapshot{
		resources: resources,
		modes:     make(map[randr.Mode]randr.ModeInfo, len(resources.Modes)),
	}
	for _, mi := range resources.Modes {
		snap.modes[randr.Mode(mi.Id)] = mi
	}
	if primary, err := randr.GetOutputPrimary(xc, d.conn.Root).Reply(); err == nil {
		snap.primary = primary.Output
	}

	for _, out := range resources.Outputs {
		info, err := randr.GetOutputInfo(xc, out, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		o := output{id: out, name: string(info.Name), info: info}
		if info.Connection == randr.ConnectionConnected && info.Crtc != 0 {
			crtc, err := randr.GetCrtcInfo(xc, info.Crtc, resources.ConfigTimestamp).Reply()
			if err == nil && crtc.Mode != 0 {
				o.crtc = crtc
				o.attached = true
			}
		}
		snap.outputs = append(snap.outputs, o)
	}
	return snap, nil
}

func (s *snapshot) find(name string) (output, error) {
	for _, o := range s.outputs {
		if o.name == name {
			if !o.attached {
				return o, fmt.Errorf("output %s is not active", name)
			}
			return o, nil
		}
	}
	return output{}, fmt.Errorf("output %s not found", name)
}

// EnumerateMonitors lists every RandR output. Outputs without an active CRTC
// are returned with Attached set to false. Dimensions are reported in the
// frame of the current rotation.
func (d *Driver) EnumerateMonitors() ([]display.Monitor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap, err := d.query()
	if err != nil {
		return nil, err
	}
	bpp := d.bitsPerPixel()

	monitors := make([]display.Monitor, 0, len(snap.outputs))
	for _, o := range snap.outputs {
		m := display.Monitor{
			ID:         o.name,
			Name:       o.name,
			DeviceName: o.name,
			Primary:    o.id == snap.primary,
			Attached:   o.attached,
		}
		if o.attached {
			orient := orientationFromRotation(o.crtc.Rotation)
			m.Orientation = orient
			m.Position = display.Point{X: int(o.crtc.X), Y: int(o.crtc.Y)}
			m.Current = display.Resolution{
				Width:        int(o.crtc.Width),
				Height:       int(o.crtc.Height),
				Frequency:    refreshRate(snap.modes[o.crtc.Mode]),
				BitsPerPixel: bpp,
			}
			for _, id := range o.info.Modes {
				mi, ok := snap.modes[id]
				if !ok {
					continue
				}
				r := resolutionFromMode(mi, bpp)
				if orient.IsPortrait() {
					r = r.Swapped()
				}
				m.Modes = append(m.Modes, r)
			}
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}

// SetResolution switches the output to the mode matching res. Width and
// height are taken in the frame of the current rotation.
func (d *Driver) SetResolution(deviceName string, res display.Resolution) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap, err := d.query()
	if err != nil {
		return err
	}
	o, err := snap.find(deviceName)
	if err != nil {
		return err
	}

	want := res
	portrait := orientationFromRotation(o.crtc.Rotation).IsPortrait()
	if portrait {
		want = res.Swapped()
	}
	mode, ok := pickMode(snap.modes, o.info.Modes, want.Width, want.Height, res.Frequency)
	if !ok {
		return fmt.Errorf("mode %dx%d@%dHz not supported by %s", res.Width, res.Height, res.Frequency, deviceName)
	}

	width, height := int(snap.modes[mode].Width), int(snap.modes[mode].Height)
	if portrait {
		width, height = height, width
	}
	if err := d.growScreen(int(o.crtc.X)+width, int(o.crtc.Y)+height); err != nil {
		return err
	}
	if err := d.setCrtc(snap, o, mode, o.crtc.Rotation); err != nil {
		return err
	}
	_ = d.shrinkScreen()
	return nil
}

// SetOrientation rotates the output, keeping its current mode.
func (d *Driver) SetOrientation(deviceName string, orient display.Orientation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap, err := d.query()
	if err != nil {
		return err
	}
	o, err := snap.find(deviceName)
	if err != nil {
		return err
	}

	rotation := rotationFor(orient)
	if o.crtc.Rotations&rotation == 0 {
		return fmt.Errorf("%s does not support %s rotation", deviceName, orient.Label())
	}

	mi := snap.modes[o.crtc.Mode]
	width, height := int(mi.Width), int(mi.Height)
	if orient.IsPortrait() {
		width, height = height, width
	}
	if err := d.growScreen(int(o.crtc.X)+width, int(o.crtc.Y)+height); err != nil {
		return err
	}
	if err := d.setCrtc(snap, o, o.crtc.Mode, rotation|(o.crtc.Rotation&^rotationMask)); err != nil {
		return err
	}
	// The rotation is in place; a failed shrink only leaves the screen oversized.
	_ = d.shrinkScreen()
	return nil
}

func (d *Driver) setCrtc(snap *snapshot, o output, mode randr.Mode, rotation uint16) error {
	reply, err := randr.SetCrtcConfig(
		d.conn.XUtil.Conn(),
		o.info.Crtc,
		xproto.TimeCurrentTime,
		snap.resources.ConfigTimestamp,
		o.crtc.X,
		o.crtc.Y,
		mode,
		rotation,
		o.crtc.Outputs,
	).Reply()
	if err != nil {
		return fmt.Errorf("failed to configure crtc for %s: %w", o.name, err)
	}
	if reply.Status != randr.SetConfigSuccess {
		return fmt.Errorf("failed to configure crtc for %s: status %d", o.name, reply.Status)
	}
	return nil
}

// growScreen enlarges the virtual screen so that it spans at least
// width x height pixels.
func (d *Driver) growScreen(width, height int) error {
	xc := d.conn.XUtil.Conn()
	geom, err := xproto.GetGeometry(xc, xproto.Drawable(d.conn.Root)).Reply()
	if err != nil {
		return fmt.Errorf("failed to get root geometry: %w", err)
	}
	curW, curH := int(geom.Width), int(geom.Height)
	if width <= curW && height <= curH {
		return nil
	}
	newW, newH := max(width, curW), max(height, curH)

	if limits, err := randr.GetScreenSizeRange(xc, d.conn.Root).Reply(); err == nil {
		if newW > int(limits.MaxWidth) || newH > int(limits.MaxHeight) {
			return fmt.Errorf("screen size %dx%d exceeds maximum %dx%d", newW, newH, limits.MaxWidth, limits.MaxHeight)
		}
	}

	screen := d.conn.XUtil.Screen()
	mmW := scaleMillimeters(int(screen.WidthInMillimeters), curW, newW)
	mmH := scaleMillimeters(int(screen.HeightInMillimeters), curH, newH)
	if err := randr.SetScreenSizeChecked(xc, d.conn.Root, uint16(newW), uint16(newH), uint32(mmW), uint32(mmH)).Check(); err != nil {
		return fmt.Errorf("failed to resize screen to %dx%d: %w", newW, newH, err)
	}
	return nil
}

// shrinkScreen reduces the virtual screen to the bounding box of the active
// CRTCs, never below the server minimum.
func (d *Driver) shrinkScreen() error {
	snap, err := d.query()
	if err != nil {
		return err
	}
	width, height := extent(snap.outputs)
	if width == 0 || height == 0 {
		return nil
	}

	xc := d.conn.XUtil.Conn()
	geom, err := xproto.GetGeometry(xc, xproto.Drawable(d.conn.Root)).Reply()
	if err != nil {
		return fmt.Errorf("failed to get root geometry: %w", err)
	}
	curW, curH := int(geom.Width), int(geom.Height)
	if limits, err := randr.GetScreenSizeRange(xc, d.conn.Root).Reply(); err == nil {
		width = max(width, int(limits.MinWidth))
		height = max(height, int(limits.MinHeight))
	}
	if width >= curW && height >= curH {
		return nil
	}
	newW, newH := min(width, curW), min(height, curH)

	screen := d.conn.XUtil.Screen()
	mmW := scaleMillimeters(int(screen.WidthInMillimeters), curW, newW)
	mmH := scaleMillimeters(int(screen.HeightInMillimeters), curH, newH)
	if err := randr.SetScreenSizeChecked(xc, d.conn.Root, uint16(newW), uint16(newH), uint32(mmW), uint32(mmH)).Check(); err != nil {
		return fmt.Errorf("failed to resize screen to %dx%d: %w", newW, newH, err)
	}
	return nil
}

// extent returns the right and bottom edges of the active CRTCs. CRTC
// geometry already accounts for rotation.
func extent(outputs []output) (width, height int) {
	for _, o := range outputs {
		if !o.attached {
			continue
		}
		width = max(width, int(o.crtc.X)+int(o.crtc.Width))
		height = max(height, int(o.crtc.Y)+int(o.crtc.Height))
	}
	return width, height
}

func (d *Driver) bitsPerPixel() int {
	screen := d.conn.XUtil.Screen()
	for _, f := range d.conn.XUtil.Setup().PixmapFormats {
		if f.Depth == screen.RootDepth {
			return int(f.BitsPerPixel)
		}
	}
	return int(screen.RootDepth)
}

const rotationMask = randr.RotationRotate0 | randr.RotationRotate90 | randr.RotationRotate180 | randr.RotationRotate270

func rotationFor(o display.Orientation) uint16 {
	switch o {
	case display.Portrait:
		return randr.RotationRotate90
	case display.LandscapeFlipped:
		return randr.RotationRotate180
	case display.PortraitFlipped:
		return randr.RotationRotate270
	default:
		return randr.RotationRotate0
	}
}

func orientationFromRotation(rotation uint16) display.Orientation {
	switch rotation & rotationMask {
	case randr.RotationRotate90:
		return display.Portrait
	case randr.RotationRotate180:
		return display.LandscapeFlipped
	case randr.RotationRotate270:
		return display.PortraitFlipped
	default:
		return display.Landscape
	}
}

func refreshRate(mi randr.ModeInfo) int {
	vtotal := float64(mi.Vtotal)
	if mi.ModeFlags&randr.ModeFlagDoubleScan != 0 {
		vtotal *= 2
	}
	if mi.ModeFlags&randr.ModeFlagInterlace != 0 {
		vtotal /= 2
	}
	if mi.Htotal == 0 || vtotal == 0 {
		return 0
	}
	return int(math.Round(float64(mi.DotClock) / (float64(mi.Htotal) * vtotal)))
}

func resolutionFromMode(mi randr.ModeInfo, bpp int) display.Resolution {
	return display.Resolution{
		Width:        int(mi.Width),
		Height:       int(mi.Height),
		Frequency:    refreshRate(mi),
		BitsPerPixel: bpp,
	}
}

// pickMode returns the supported mode with the given size whose refresh
// rate is closest to frequency.
func pickMode(all map[randr.Mode]randr.ModeInfo, supported []randr.Mode, width, height, frequency int) (randr.Mode, bool) {
	var (
		best     randr.Mode
		bestDiff = -1
	)
	for _, id := range supported {
		mi, ok := all[id]
		if !ok || int(mi.Width) != width || int(mi.Height) != height {
			continue
		}
		diff := refreshRate(mi) - frequency
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = id, diff
		}
	}
	return best, bestDiff >= 0
}

func scaleMillimeters(mm, fromPx, toPx int) int {
	if mm <= 0 || fromPx <= 0 {
		return toPx * 254 / 960
	}
	return mm * toPx / fromPx
}
