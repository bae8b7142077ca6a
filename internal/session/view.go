package session

import (
	"time"

	"github.com/1broseidon/resctl/internal/display"
	"github.com/1broseidon/resctl/internal/safetynet"
)

// MonitorView pairs a monitor with its staged settings.
type MonitorView struct {
	display.Monitor
	StagedResolution  display.Resolution  `json:"staged_resolution"`
	StagedOrientation display.Orientation `json:"staged_orientation"`
	// Pending is true when the staged settings differ from the hardware.
	Pending bool `json:"pending"`
}

// View is the read-only state a presentation layer renders.
type View struct {
	Monitors    []MonitorView    `json:"monitors"`
	SafetyNet   safetynet.Status `json:"safety_net"`
	Profiles    []string         `json:"profiles"`
	LastError   string           `json:"last_error,omitempty"`
	RefreshedAt time.Time        `json:"refreshed_at"`
}

// View snapshots the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Monitors:    make([]MonitorView, 0, len(s.monitors)),
		SafetyNet:   s.safety.Status(),
		RefreshedAt: s.refreshedAt,
	}
	if s.lastErr != nil {
		v.LastError = s.lastErr.Error()
	}
	for _, m := range cloneMonitors(s.monitors) {
		mv := MonitorView{Monitor: m, StagedResolution: m.Current, StagedOrientation: m.Orientation}
		if r, ok := s.staging.Resolution(m.ID); ok {
			mv.StagedResolution = r
		}
		if o, ok := s.staging.Orientation(m.ID); ok {
			mv.StagedOrientation = o
		}
		mv.Pending = mv.StagedResolution != m.Current || mv.StagedOrientation != m.Orientation
		v.Monitors = append(v.Monitors, mv)
	}
	for _, p := range s.profiles.List() {
		v.Profiles = append(v.Profiles, p.Name)
	}
	return v
}
