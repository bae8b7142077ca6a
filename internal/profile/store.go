// Package profile persists named per-monitor settings and stages them back.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/1broseidon/resctl/internal/config"
	"github.com/1broseidon/resctl/internal/display"
)

var ErrNotFound = errors.New("profile not found")

// PersistError reports a failed load or save. In-memory state is kept.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s profiles %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Stager receives settings pushed by ApplyProfile.
type Stager interface {
	SetResolution(id string, res display.Resolution)
	SetOrientation(id string, o display.Orientation)
}

// Store owns the application config document and saves it on every mutation.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  *config.Config
}

// Open loads the document at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &PersistError{Op: "load", Path: path, Err: err}
	}
	return &Store{path: path, cfg: cfg}, nil
}

// NewStore wraps an already loaded config.
func NewStore(path string, cfg *config.Config) *Store {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Store{path: path, cfg: cfg}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Config returns a copy of the current document.
func (s *Store) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := *s.cfg
	out.Profiles = cloneProfiles(s.cfg.Profiles)
	return out
}

// Save writes cfg as the new document.
func (s *Store) Save(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return &PersistError{Op: "save", Path: s.path, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *cfg
	next.Profiles = cloneProfiles(cfg.Profiles)
	s.cfg = &next
	return s.saveLocked()
}

// Reload re-reads the backing file. On failure the current document is kept.
func (s *Store) Reload() (config.Config, error) {
	if s.path == "" {
		return s.Config(), nil
	}
	cfg, err := config.Load(s.path)
	if err != nil {
		return s.Config(), &PersistError{Op: "load", Path: s.path, Err: err}
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return s.Config(), nil
}

// List returns all profiles in stored order.
func (s *Store) List() []config.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProfiles(s.cfg.Profiles)
}

// Get returns the named profile.
func (s *Store) Get(name string) (config.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.cfg.Profiles {
		if p.Name == name {
			return cloneProfile(p), nil
		}
	}
	return config.Profile{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// AddOrReplace removes any profile with the same name and appends p.
func (s *Store) AddOrReplace(p config.Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.cfg.Profiles[:0:0]
	for _, existing := range s.cfg.Profiles {
		if existing.Name != p.Name {
			kept = append(kept, existing)
		}
	}
	s.cfg.Profiles = append(kept, cloneProfile(p))
	return s.saveLocked()
}

// Delete removes the named profile.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.cfg.Profiles {
		if p.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	s.cfg.Profiles = append(s.cfg.Profiles[:idx:idx], s.cfg.Profiles[idx+1:]...)
	return s.saveLocked()
}

// ApplyProfile stages every setting of the named profile whose monitor is in
// monitors. Settings for monitors that are not attached are skipped without
// error. It returns the ids that were staged.
//
// A setting with an orientation holds its size in that orientation's frame.
// Staged sizes are in the frame of the monitor's current orientation, so the
// size is swapped when the two lie on different axes.
func (s *Store) ApplyProfile(name string, monitors []display.Monitor, stager Stager) ([]string, error) {
	p, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	attached := make(map[string]display.Orientation, len(monitors))
	for _, m := range monitors {
		attached[m.ID] = m.Orientation
	}

	var staged []string
	for _, setting := range p.Settings {
		current, ok := attached[setting.MonitorID]
		if !ok {
			continue
		}
		res := setting.Resolution
		if setting.Orientation != nil {
			if !current.SameAxis(*setting.Orientation) {
				res = res.Swapped()
			}
			stager.SetOrientation(setting.MonitorID, *setting.Orientation)
		}
		stager.SetResolution(setting.MonitorID, res)
		staged = append(staged, setting.MonitorID)
	}
	return staged, nil
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	if err := config.Save(s.path, s.cfg); err != nil {
		return &PersistError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

func cloneProfiles(in []config.Profile) []config.Profile {
	out := make([]config.Profile, len(in))
	for i, p := range in {
		out[i] = cloneProfile(p)
	}
	return out
}

func cloneProfile(p config.Profile) config.Profile {
	out := config.Profile{Name: p.Name, Settings: make([]config.MonitorSetting, len(p.Settings))}
	for i, s := range p.Settings {
		out.Settings[i] = s
		if s.Orientation != nil {
			o := *s.Orientation
			out.Settings[i].Orientation = &o
		}
	}
	return out
}
