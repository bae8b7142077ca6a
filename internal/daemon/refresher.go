package daemon

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/1broseidon/resctl/internal/display"
)

// Enumerator is the part of a session the refresher drives.
type Enumerator interface {
	Monitors() []display.Monitor
	Refresh() ([]display.Monitor, error)
}

// RefresherConfig holds configuration for the refresher.
type RefresherConfig struct {
	// Interval between passes. Zero or less disables the periodic loop;
	// RefreshNow still works.
	Interval time.Duration
	Logger   *slog.Logger
}

// Refresher periodically re-enumerates displays so hot-plugged monitors
// show up without a manual refresh.
type Refresher struct {
	interval time.Duration
	source   Enumerator
	logger   *slog.Logger
}

// NewRefresher creates a new refresher over source.
func NewRefresher(cfg RefresherConfig, source Enumerator) *Refresher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		interval: cfg.Interval,
		source:   source,
		logger:   logger,
	}
}

// Enabled reports whether Run will tick.
func (r *Refresher) Enabled() bool {
	return r.interval > 0
}

// Run starts the refresh loop. Blocks until context is cancelled. Returns
// immediately when the interval is disabled.
func (r *Refresher) Run(ctx context.Context) {
	if !r.Enabled() {
		r.logger.Debug("refresher disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("refresher started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresher stopped")
			return
		case <-ticker.C:
			r.refresh()
		}
	}
}

// refresh performs a single pass and returns the monitor ids that appeared
// and disappeared.
func (r *Refresher) refresh() (added, removed []string) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("refresher panic recovered", "error", err)
		}
	}()

	before := r.source.Monitors()
	after, err := r.source.Refresh()
	if err != nil {
		r.logger.Error("refresher: enumeration failed", "error", err)
		return nil, nil
	}

	added, removed = diffIDs(before, after)
	if len(added) > 0 || len(removed) > 0 {
		r.logger.Info("refresher: monitor set changed", "added", added, "removed", removed)
	}
	return added, removed
}

// RefreshNow triggers an immediate pass.
func (r *Refresher) RefreshNow() (added, removed []string) {
	return r.refresh()
}

func diffIDs(before, after []display.Monitor) (added, removed []string) {
	prev := make(map[string]bool, len(before))
	for _, m := range before {
		prev[m.ID] = true
	}
	next := make(map[string]bool, len(after))
	for _, m := range after {
		next[m.ID] = true
		if !prev[m.ID] {
			added = append(added, m.ID)
		}
	}
	for id := range prev {
		if !next[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
