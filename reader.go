package nbkey

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrStopTimeout is returned by Stop when the reader goroutine did not
// finish in time.
var ErrStopTimeout = errors.New("nbkey: key reader did not stop in time")

// interruptNotice is written to the notice writer when Ctrl-C is read.
const interruptNotice = "\r\n[ Interrupted ]\r\n"

// StopReason records why a KeyReader finished.
type StopReason uint8

const (
	StopRunning    StopReason = iota // not finished yet
	StopInterrupt                    // Ctrl-C
	StopEndOfInput                   // Ctrl-D or io.EOF
	StopReadError                    // the source failed; see Err
	StopClosed                       // Stop closed the source
)

func (s StopReason) String() string {
	switch s {
	case StopRunning:
		return "running"
	case StopInterrupt:
		return "interrupt"
	case StopEndOfInput:
		return "end of input"
	case StopReadError:
		return "read error"
	case StopClosed:
		return "closed"
	}
	return "unknown"
}

// KeyReader reads a byte stream on its own goroutine and pushes decoded
// keys onto a KeyQueue. It is the only code that blocks on input.
type KeyReader struct {
	src    io.Reader
	q      *KeyQueue
	notice io.Writer
	log    zerolog.Logger

	started  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}

	// written by the reader goroutine before done is closed
	reason StopReason
	err    error
}

// NewKeyReader creates a reader for src feeding q. Call Start to begin.
// An *os.File is read through poll(2) on unix so Stop can interrupt it.
func NewKeyReader(src io.Reader, q *KeyQueue) *KeyReader {
	return &KeyReader{
		src:    pollable(src),
		q:      q,
		notice: io.Discard,
		log:    zerolog.Nop(),
		done:   make(chan struct{}),
	}
}

// Logger sets the logger used for stop diagnostics.
func (r *KeyReader) Logger(l zerolog.Logger) *KeyReader {
	r.log = l
	return r
}

// Notice sets where the interrupt notice is written. Defaults to io.Discard.
func (r *KeyReader) Notice(w io.Writer) *KeyReader {
	if w == nil {
		w = io.Discard
	}
	r.notice = w
	return r
}

// Start launches the read goroutine. Further calls do nothing.
func (r *KeyReader) Start() *KeyReader {
	if r.started.CompareAndSwap(false, true) {
		go r.run()
	}
	return r
}

// Done is closed once the reader has finished and closed its queue.
func (r *KeyReader) Done() <-chan struct{} {
	return r.done
}

// Reason returns why the reader finished, or StopRunning while it runs.
func (r *KeyReader) Reason() StopReason {
	select {
	case <-r.done:
		return r.reason
	default:
		return StopRunning
	}
}

// Err returns the read error that ended the reader, if any.
func (r *KeyReader) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Stop closes the source to unblock a pending read and waits up to timeout
// for the goroutine to finish. A source that is not an io.Closer cannot be
// unblocked; Stop then only waits. The source may be closed twice, once
// here and once when the goroutine exits.
func (r *KeyReader) Stop(timeout time.Duration) error {
	if !r.started.Load() {
		return nil
	}
	r.stopping.Store(true)
	r.closeSource()

	select {
	case <-r.done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

func (r *KeyReader) run() {
	defer close(r.done)
	defer r.q.Close()
	defer r.closeSource()

	var dec decoder
	buf := make([]byte, 1)
	for {
		n, err := r.src.Read(buf)
		if n == 1 {
			switch buf[0] {
			case byteInterrupt:
				io.WriteString(r.notice, interruptNotice)
				r.finish(StopInterrupt, nil)
				return
			case byteEndOfInput:
				r.finish(StopEndOfInput, nil)
				return
			}
			if k, ok := dec.feed(buf[0]); ok {
				r.q.Push(k)
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				r.finish(StopEndOfInput, nil)
			case r.stopping.Load():
				r.finish(StopClosed, nil)
			default:
				r.finish(StopReadError, err)
			}
			return
		}
	}
}

func (r *KeyReader) finish(reason StopReason, err error) {
	r.reason = reason
	r.err = err
	ev := r.log.Info()
	if err != nil {
		ev = r.log.Error().Err(err)
	}
	ev.Stringer("reason", reason).Msg("key reader stopped")
}

func (r *KeyReader) closeSource() {
	c, ok := r.src.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		r.log.Debug().Err(err).Msg("closing key source")
	}
}
