package display

import (
	"fmt"
	"log/slog"
	"sort"
)

// EnumerationError reports a total failure to query the driver.
type EnumerationError struct {
	Err error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate monitors: %v", e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// Catalog produces fresh read-only snapshots of the attached monitors.
// It never caches between calls.
type Catalog struct {
	driver Driver
	logger *slog.Logger
}

// NewCatalog creates a catalog over driver.
func NewCatalog(driver Driver, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{driver: driver, logger: logger}
}

// Enumerate queries the driver and returns every attached monitor with its
// modes de-duplicated and sorted. Entries that are malformed are skipped and
// logged rather than failing the whole call.
func (c *Catalog) Enumerate() ([]Monitor, error) {
	raw, err := c.driver.EnumerateMonitors()
	if err != nil {
		return nil, &EnumerationError{Err: err}
	}

	monitors := make([]Monitor, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, m := range raw {
		if !m.Attached {
			continue
		}
		if err := checkMonitor(m); err != nil {
			c.logger.Warn("skipping monitor", "index", i, "device", m.DeviceName, "error", err)
			continue
		}
		if seen[m.ID] {
			c.logger.Warn("skipping duplicate monitor", "id", m.ID, "device", m.DeviceName)
			continue
		}
		seen[m.ID] = true

		m.Modes = NormalizeModes(m.Modes)
		if m.Name == "" {
			m.Name = fmt.Sprintf("Display %d", i+1)
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}

func checkMonitor(m Monitor) error {
	if m.ID == "" {
		return fmt.Errorf("missing id")
	}
	if m.DeviceName == "" {
		return fmt.Errorf("missing device name")
	}
	if m.Current.Width <= 0 || m.Current.Height <= 0 {
		return fmt.Errorf("invalid current mode %dx%d", m.Current.Width, m.Current.Height)
	}
	if !m.Orientation.Valid() {
		return fmt.Errorf("invalid orientation %d", uint8(m.Orientation))
	}
	return nil
}

// NormalizeModes returns a new slice with duplicate and empty modes removed,
// sorted by width, height, frequency and bit depth, all descending.
func NormalizeModes(modes []Resolution) []Resolution {
	out := make([]Resolution, 0, len(modes))
	seen := make(map[Resolution]bool, len(modes))
	for _, r := range modes {
		if r.Width <= 0 || r.Height <= 0 || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Width != b.Width {
			return a.Width > b.Width
		}
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		return a.BitsPerPixel > b.BitsPerPixel
	})
	return out
}
