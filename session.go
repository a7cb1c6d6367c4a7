package nbkey

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// ErrSessionOpen is returned when opening a Session twice.
var ErrSessionOpen = errors.New("nbkey: session already open")

// stopTimeout bounds how long Close waits for the reader goroutine. It
// leaves room for a polled read to notice the stop.
const stopTimeout = 250 * time.Millisecond

// Session ties together the raw terminal, the key reader and a Dispatcher
// for one interactive run. Bindings may be registered on the embedded
// Dispatcher before Open.
type Session struct {
	*Dispatcher

	raw       *RawMode
	src       io.Reader
	queue     *KeyQueue
	reader    *KeyReader
	notice    io.Writer
	queueSize int
	log       zerolog.Logger
	open      bool
}

// NewSession prepares a session reading keys from src on the terminal
// behind console. Nothing is touched until Open.
func NewSession(console Console, src io.Reader) *Session {
	q := NewKeyQueue(DefaultQueueSize)
	return &Session{
		Dispatcher: NewDispatcher(q, nil),
		raw:        NewRawMode(console),
		src:        src,
		queue:      q,
		notice:     io.Discard,
		queueSize:  DefaultQueueSize,
		log:        zerolog.Nop(),
	}
}

// Logger sets the logger shared by every part of the session.
func (s *Session) Logger(l zerolog.Logger) *Session {
	s.log = l
	s.raw.Logger(l)
	s.Dispatcher.Logger(l)
	return s
}

// Notice sets where the interrupt notice is written.
func (s *Session) Notice(w io.Writer) *Session {
	s.notice = w
	return s
}

// QueueSize sets the key queue capacity. It takes effect on the next Open.
func (s *Session) QueueSize(n int) *Session {
	s.queueSize = n
	return s
}

// Open enters raw mode, adds keymap to the dispatcher's bindings and starts
// reading keys.
func (s *Session) Open(keymap Keymap) error {
	if s.open {
		return ErrSessionOpen
	}
	if err := s.raw.Enter(); err != nil {
		return err
	}
	s.queue = NewKeyQueue(s.queueSize)
	s.Dispatcher.q = s.queue
	for k, actions := range keymap {
		for _, a := range actions {
			s.Register(k, a)
		}
	}
	s.reader = NewKeyReader(s.src, s.queue).
		Logger(s.log).
		Notice(s.notice).
		Start()
	s.open = true
	s.log.Debug().Msg("session opened")
	return nil
}

// Close stops the reader and restores the terminal. Both steps run even
// if one fails. Closing a closed session does nothing.
func (s *Session) Close() error {
	if !s.open {
		return nil
	}
	s.open = false

	var errs []error
	if err := s.reader.Stop(stopTimeout); err != nil {
		s.log.Warn().Err(err).Msg("stopping key reader")
		errs = append(errs, err)
	}
	if err := s.raw.Exit(); err != nil {
		errs = append(errs, err)
	}
	s.log.Debug().Msg("session closed")
	return errors.Join(errs...)
}

// Reader returns the running key reader, or nil before Open.
func (s *Session) Reader() *KeyReader {
	return s.reader
}

// Run opens the session, calls fn and closes the session again, also when
// fn panics.
func (s *Session) Run(keymap Keymap, fn func(*Session) error) (err error) {
	if err := s.Open(keymap); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	return fn(s)
}

// Poll is the session work loop. Every interval it drains pending keys and
// then calls tick, if set. It returns nil once input has ended or tick
// reports false, ctx.Err() when ctx is done, or the first error from an
// action or tick.
func (s *Session) Poll(ctx context.Context, interval time.Duration, tick func() (bool, error)) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		open, err := s.Drain()
		if err != nil {
			return err
		}
		if !open {
			s.log.Debug().Stringer("reason", s.reader.Reason()).Msg("input ended")
			return nil
		}
		if tick != nil {
			more, err := tick()
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
