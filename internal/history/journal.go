// Package history keeps an append-only journal of configuration changes.
package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Action is the kind of event being recorded.
type Action string

const (
	ActionApply         Action = "APPLY"
	ActionApplyRejected Action = "APPLY-REJECTED"
	ActionConfirm       Action = "CONFIRM"
	ActionRevert        Action = "REVERT"
	ActionProfileSave   Action = "PROFILE-SAVE"
	ActionProfileLoad   Action = "PROFILE-LOAD"
	ActionProfileDelete Action = "PROFILE-DELETE"
	ActionRefreshFailed Action = "REFRESH-FAILED"
)

// Config controls where and how much history is kept.
type Config struct {
	Enabled   bool
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
}

// DefaultPath returns $XDG_STATE_HOME/resctl/history.log, falling back to
// ~/.local/state.
func DefaultPath() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); dir != "" {
		return filepath.Join(dir, "resctl", "history.log"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "resctl", "history.log"), nil
}

// Journal writes one line per action with size-based rotation. A nil or
// disabled Journal discards everything.
type Journal struct {
	mu          sync.Mutex
	file        *os.File
	config      Config
	currentSize int64
	now         func() time.Time
}

// Open creates the journal file and its directory if needed.
func Open(cfg Config) (*Journal, error) {
	if !cfg.Enabled {
		return &Journal{config: cfg, now: time.Now}, nil
	}

	dir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file %s: %w", cfg.FilePath, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat history file: %w", err)
	}

	return &Journal{
		file:        f,
		config:      cfg,
		currentSize: stat.Size(),
		now:         time.Now,
	}, nil
}

// Record appends an entry. Detail keys are written in sorted order.
func (j *Journal) Record(action Action, details map[string]any) {
	if j == nil || !j.config.Enabled {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return
	}

	maxBytes := int64(j.config.MaxSizeMB) * 1024 * 1024
	if maxBytes > 0 && j.currentSize >= maxBytes {
		if err := j.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "history rotation failed: %v\n", err)
		}
		if j.file == nil {
			return
		}
	}

	var sb strings.Builder
	sb.WriteString(j.now().Format(time.RFC3339))
	sb.WriteString(" [")
	sb.WriteString(string(action))
	sb.WriteString("]")

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch val := details[k].(type) {
		case string:
			sb.WriteString(fmt.Sprintf(" %s=%q", k, val))
		case error:
			sb.WriteString(fmt.Sprintf(" %s=%q", k, val.Error()))
		default:
			sb.WriteString(fmt.Sprintf(" %s=%v", k, val))
		}
	}
	sb.WriteString("\n")

	n, err := j.file.WriteString(sb.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write history entry: %v\n", err)
		return
	}
	j.currentSize += int64(n)
}

// Close releases the file.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// rotate shifts history.log to history.log.1 and so on, dropping the oldest
// beyond MaxFiles.
func (j *Journal) rotate() error {
	if j.file != nil {
		j.file.Close()
		j.file = nil
	}

	base := j.config.FilePath
	for i := j.config.MaxFiles; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", base, i)
		if i == j.config.MaxFiles {
			os.Remove(oldPath)
		} else {
			os.Rename(oldPath, fmt.Sprintf("%s.%d", base, i+1))
		}
	}

	if j.config.MaxFiles > 0 {
		if err := os.Rename(base, base+".1"); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to rotate history file: %w", err)
		}
	} else if err := os.Remove(base); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to truncate history file: %w", err)
	}

	f, err := os.OpenFile(base, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open new history file: %w", err)
	}
	j.file = f
	j.currentSize = 0
	return nil
}

// Tail returns up to n of the most recent lines of the current file.
func Tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
