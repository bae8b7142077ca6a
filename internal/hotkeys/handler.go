package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/1broseidon/resctl/internal/safetynet"
	"github.com/1broseidon/resctl/internal/x11"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
)

// Actions is what the safety-net hotkeys drive.
type Actions interface {
	ConfirmKeep() error
	RequestRevert() (safetynet.RevertResult, error)
}

// Handler manages global keyboard shortcuts. They work even when the
// current mode leaves the screen unreadable, which is the point of having
// them.
type Handler struct {
	xu      *xgbutil.XUtil
	root    xproto.Window
	actions Actions
	logger  *slog.Logger
}

var ignoreModsOnce sync.Once

// NewHandler creates a new hotkey handler on conn.
func NewHandler(conn *x11.Connection, actions Actions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{actions: actions, logger: logger}
	if conn != nil {
		h.xu = conn.XUtil
		h.root = conn.Root
	}

	if h.xu != nil {
		ignoreModsOnce.Do(func() {
			configureIgnoreMods(h.xu)
		})
	}
	return h
}

// Register binds the confirm and revert sequences. Empty sequences are
// skipped.
func (h *Handler) Register(confirmSeq, revertSeq string) error {
	if confirmSeq != "" {
		if err := h.RegisterFunc(confirmSeq, h.confirm); err != nil {
			return fmt.Errorf("failed to register confirm hotkey %q: %w", confirmSeq, err)
		}
	}
	if revertSeq != "" {
		if err := h.RegisterFunc(revertSeq, h.revert); err != nil {
			return fmt.Errorf("failed to register revert hotkey %q: %w", revertSeq, err)
		}
	}
	return nil
}

func (h *Handler) confirm() {
	err := h.actions.ConfirmKeep()
	switch {
	case errors.Is(err, safetynet.ErrNotArmed):
		h.logger.Debug("confirm hotkey ignored, nothing pending")
	case err != nil:
		h.logger.Error("confirm hotkey failed", "error", err)
	default:
		h.logger.Info("confirm hotkey: change kept")
	}
}

func (h *Handler) revert() {
	result, err := h.actions.RequestRevert()
	switch {
	case errors.Is(err, safetynet.ErrNotArmed):
		h.logger.Debug("revert hotkey ignored, nothing pending")
	case err != nil:
		h.logger.Error("revert hotkey failed", "error", err)
	default:
		h.logger.Info("revert hotkey: change reverted", "errors", len(result.Report.Errors))
	}
}

// RegisterFunc registers an arbitrary hotkey callback.
func (h *Handler) RegisterFunc(keySequence string, callback func()) error {
	if h.xu == nil {
		return fmt.Errorf("no X connection")
	}
	return keybind.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
		// Reverting re-enumerates over the same connection; keep the event
		// loop free while that runs.
		go callback()
	}).Connect(h.xu, h.root, keySequence, true)
}

func configureIgnoreMods(xu *xgbutil.XUtil) {
	// Always ignore CapsLock.
	caps := uint16(xproto.ModMaskLock)

	numLock := modMaskForKeysym(xu, "Num_Lock")
	scrollLock := modMaskForKeysym(xu, "Scroll_Lock")

	unique := make(map[uint16]struct{})
	add := func(mask uint16) {
		unique[mask] = struct{}{}
	}

	add(0)
	base := []uint16{caps}
	if numLock != 0 && numLock != caps {
		base = append(base, numLock)
	}
	if scrollLock != 0 && scrollLock != caps && scrollLock != numLock {
		base = append(base, scrollLock)
	}

	for subset := 1; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		add(mask)
	}

	ignore := make([]uint16, 0, len(unique))
	for mask := range unique {
		ignore = append(ignore, mask)
	}

	xevent.IgnoreMods = ignore
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
