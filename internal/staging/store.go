// Package staging holds the desired per-monitor settings independently of
// the live hardware state.
package staging

import (
	"sync"

	"github.com/1broseidon/resctl/internal/display"
)

// Store maps monitor ids to the resolution and orientation the user wants.
// It accepts any value; capability checks belong to whoever builds choices.
type Store struct {
	mu           sync.RWMutex
	resolutions  map[string]display.Resolution
	orientations map[string]display.Orientation
}

// Snapshot is a detached copy of the staged maps.
type Snapshot struct {
	Resolutions  map[string]display.Resolution  `json:"resolutions"`
	Orientations map[string]display.Orientation `json:"orientations"`
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		resolutions:  make(map[string]display.Resolution),
		orientations: make(map[string]display.Orientation),
	}
}

// Reconcile seeds staging for monitors it has never seen with their current
// hardware values. Existing entries are never overwritten and ids missing
// from the catalog are kept.
func (s *Store) Reconcile(catalog []display.Monitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range catalog {
		if _, ok := s.resolutions[m.ID]; !ok {
			s.resolutions[m.ID] = m.Current
		}
		if _, ok := s.orientations[m.ID]; !ok {
			s.orientations[m.ID] = m.Orientation
		}
	}
}

// SetResolution overwrites the staged resolution for id.
func (s *Store) SetResolution(id string, res display.Resolution) {
	s.mu.Lock()
	s.resolutions[id] = res
	s.mu.Unlock()
}

// SetOrientation overwrites the staged orientation for id.
func (s *Store) SetOrientation(id string, o display.Orientation) {
	s.mu.Lock()
	s.orientations[id] = o
	s.mu.Unlock()
}

// Resolution returns the staged resolution for id.
func (s *Store) Resolution(id string) (display.Resolution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resolutions[id]
	return r, ok
}

// Orientation returns the staged orientation for id.
func (s *Store) Orientation(id string) (display.Orientation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orientations[id]
	return o, ok
}

// Snapshot copies both maps.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Resolutions:  make(map[string]display.Resolution, len(s.resolutions)),
		Orientations: make(map[string]display.Orientation, len(s.orientations)),
	}
	for id, r := range s.resolutions {
		snap.Resolutions[id] = r
	}
	for id, o := range s.orientations {
		snap.Orientations[id] = o
	}
	return snap
}

// Restore overwrites the given entries, leaving all others untouched.
func (s *Store) Restore(resolutions map[string]display.Resolution, orientations map[string]display.Orientation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range resolutions {
		s.resolutions[id] = r
	}
	for id, o := range orientations {
		s.orientations[id] = o
	}
}
