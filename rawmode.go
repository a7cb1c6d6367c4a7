package nbkey

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var (
	// ErrRawModeActive is returned when entering raw mode on a console that
	// is already held by an active RawMode.
	ErrRawModeActive = errors.New("nbkey: raw mode already active")
	// ErrNotTerminal is returned by NewConsole for files that are not terminals.
	ErrNotTerminal = errors.New("nbkey: not a terminal")
)

// Console queries and sets the attributes of a terminal. Implementations
// must be comparable; consoles exposing Fd are identified by descriptor.
type Console interface {
	// GetState snapshots the current terminal attributes.
	GetState() (*term.State, error)
	// MakeRaw switches to raw mode with local echo disabled.
	MakeRaw() error
	// Restore applies a snapshot taken by GetState.
	Restore(*term.State) error
}

type fdConsole struct {
	fd int
}

// NewConsole returns the Console for a terminal file, usually os.Stdin.
func NewConsole(f *os.File) (Console, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%w: %s", ErrNotTerminal, f.Name())
	}
	return &fdConsole{fd: fd}, nil
}

func (c *fdConsole) GetState() (*term.State, error) {
	return term.GetState(c.fd)
}

func (c *fdConsole) MakeRaw() error {
	_, err := term.MakeRaw(c.fd)
	return err
}

func (c *fdConsole) Fd() uintptr {
	return uintptr(c.fd)
}

// held records the consoles currently in raw mode, across all guards.
var held sync.Map

func consoleID(c Console) any {
	if f, ok := c.(interface{ Fd() uintptr }); ok {
		return f.Fd()
	}
	return c
}

func (c *fdConsole) Restore(s *term.State) error {
	return term.Restore(c.fd, s)
}

// RawMode owns the terminal attributes for one interactive session. The
// snapshot taken on Enter is restored exactly once, on Exit.
type RawMode struct {
	console Console
	saved   *term.State
	active  bool
	log     zerolog.Logger
}

// NewRawMode creates an inactive guard for c.
func NewRawMode(c Console) *RawMode {
	return &RawMode{console: c, log: zerolog.Nop()}
}

// Logger sets the logger used to report restore failures.
func (m *RawMode) Logger(l zerolog.Logger) *RawMode {
	m.log = l
	return m
}

// Active reports whether the terminal is held in raw mode.
func (m *RawMode) Active() bool {
	return m.active
}

// Enter snapshots the terminal attributes and switches to raw mode. If the
// switch fails the snapshot is restored before returning. Only one guard
// at a time may hold a given console.
func (m *RawMode) Enter() error {
	if m.active {
		return ErrRawModeActive
	}
	id := consoleID(m.console)
	if _, loaded := held.LoadOrStore(id, m); loaded {
		return ErrRawModeActive
	}
	saved, err := m.console.GetState()
	if err != nil {
		held.Delete(id)
		return fmt.Errorf("reading terminal state: %w", err)
	}
	m.saved = saved
	m.active = true

	if err := m.console.MakeRaw(); err != nil {
		return errors.Join(fmt.Errorf("entering raw mode: %w", err), m.Exit())
	}
	return nil
}

// Exit restores the snapshot taken by Enter. Calls after the first, or on
// a guard that was never entered, do nothing.
func (m *RawMode) Exit() error {
	if !m.active {
		return nil
	}
	m.active = false
	saved := m.saved
	m.saved = nil
	defer held.Delete(consoleID(m.console))

	if err := m.console.Restore(saved); err != nil {
		m.log.Warn().Err(err).Msg("restoring terminal state")
		return fmt.Errorf("restoring terminal state: %w", err)
	}
	return nil
}

// WithRawMode runs fn with the terminal in raw mode. The terminal is
// restored when fn returns or panics.
func WithRawMode(c Console, fn func() error) (err error) {
	m := NewRawMode(c)
	if err := m.Enter(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, m.Exit())
	}()
	return fn()
}
