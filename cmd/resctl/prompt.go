package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/1broseidon/resctl/internal/ipc"
	"github.com/1broseidon/resctl/internal/safetynet"
	"github.com/1broseidon/resctl/internal/session"
)

// decider is whatever owns the armed safety net: the daemon or a local
// session.
type decider interface {
	Status() (safetynet.Status, error)
	Keep() error
	Revert() error
}

type daemonDecider struct {
	client *ipc.Client
}

func (d daemonDecider) Status() (safetynet.Status, error) {
	st, err := d.client.GetStatus()
	if err != nil {
		return safetynet.Status{}, err
	}
	return st.SafetyNet, nil
}

func (d daemonDecider) Keep() error {
	return d.client.Confirm()
}

func (d daemonDecider) Revert() error {
	_, err := d.client.Revert()
	return err
}

type sessionDecider struct {
	sess *session.Session
}

func (d sessionDecider) Status() (safetynet.Status, error) {
	return d.sess.Status(), nil
}

func (d sessionDecider) Keep() error {
	return d.sess.ConfirmKeep()
}

func (d sessionDecider) Revert() error {
	_, err := d.sess.RequestRevert()
	return err
}

type decision int

const (
	decisionKept decision = iota
	decisionReverted
	decisionTimedOut
)

// promptKeep asks on the controlling terminal whether to keep the applied
// settings. Without a terminal only the countdown is shown.
func promptKeep(d decider) int {
	keys, restore := readKeys(os.Stdin)
	defer restore()

	result, err := awaitDecision(d, keys, os.Stdout, 250*time.Millisecond)
	fmt.Fprint(os.Stdout, "\r\n")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	switch result {
	case decisionKept:
		fmt.Println("kept")
	case decisionReverted:
		fmt.Println("reverted")
	case decisionTimedOut:
		fmt.Println("not confirmed in time; reverted")
	}
	return 0
}

// readKeys streams single key presses from f. The terminal is put in raw
// mode when f is one; restore undoes that.
func readKeys(f *os.File) (<-chan byte, func()) {
	keys := make(chan byte, 8)
	restore := func() {}

	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return keys, restore
	}
	if old, err := term.MakeRaw(fd); err == nil {
		restore = func() { _ = term.Restore(fd, old) }
	}

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := f.Read(buf)
			if err != nil {
				return
			}
			if n == 1 {
				keys <- buf[0]
			}
		}
	}()
	return keys, restore
}

// awaitDecision redraws the countdown every poll interval until the user
// answers or the safety net disarms by itself.
func awaitDecision(d decider, keys <-chan byte, out io.Writer, poll time.Duration) (decision, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	show := func() (bool, error) {
		st, err := d.Status()
		if err != nil {
			return false, err
		}
		if st.State != safetynet.AwaitingConfirmation {
			return false, nil
		}
		fmt.Fprintf(out, "\rKeep these display settings? [y/N] reverting in %d second(s) ", st.Remaining)
		return true, nil
	}

	armed, err := show()
	if err != nil {
		return decisionReverted, err
	}
	if !armed {
		return decisionTimedOut, nil
	}

	for {
		select {
		case k := <-keys:
			switch k {
			case 'y', 'Y':
				if err := d.Keep(); err != nil {
					if errors.Is(err, safetynet.ErrNotArmed) {
						return decisionTimedOut, nil
					}
					return decisionReverted, err
				}
				return decisionKept, nil
			case 'n', 'N', 0x1b, 0x03:
				if err := d.Revert(); err != nil && !errors.Is(err, safetynet.ErrNotArmed) {
					return decisionReverted, err
				}
				return decisionReverted, nil
			}
		case <-ticker.C:
			armed, err := show()
			if err != nil {
				return decisionReverted, err
			}
			if !armed {
				return decisionTimedOut, nil
			}
		}
	}
}
