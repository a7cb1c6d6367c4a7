package nbkey

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAsync(w io.Writer, s string) {
	go func() {
		_, _ = io.WriteString(w, s)
	}()
}

func TestSessionRunUntilEndOfInput(t *testing.T) {
	c := &fakeConsole{}
	pr, pw := io.Pipe()
	defer pw.Close()

	var rec recorder
	err := NewSession(c, pr).Run(Keymap{KeyDefault: {rec.key("key")}}, func(s *Session) error {
		assert.True(t, c.raw)
		writeAsync(pw, "ab\x04")
		return s.Poll(context.Background(), time.Millisecond, nil)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"key:a", "key:b"}, rec.got)
	assert.False(t, c.raw)
	assert.Equal(t, []string{"get", "raw", "restore"}, c.calls)
}

func TestSessionInterruptNotice(t *testing.T) {
	c := &fakeConsole{}
	pr, pw := io.Pipe()
	defer pw.Close()

	var notice bytes.Buffer
	var reason StopReason
	s := NewSession(c, pr).Notice(&notice)
	err := s.Run(nil, func(s *Session) error {
		writeAsync(pw, "\x03")
		err := s.Poll(context.Background(), time.Millisecond, nil)
		reason = s.Reader().Reason()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, StopInterrupt, reason)
	assert.Equal(t, interruptNotice, notice.String())
}

func TestSessionTickStopsPoll(t *testing.T) {
	c := &fakeConsole{}
	pr, pw := io.Pipe()
	defer pw.Close()

	quit := false
	ticks := 0
	s := NewSession(c, pr)
	err := s.Run(nil, func(s *Session) error {
		s.Bind("quit", R('q'), Do(func() { quit = true }))
		writeAsync(pw, "q")
		return s.Poll(context.Background(), time.Millisecond, func() (bool, error) {
			ticks++
			return !quit, nil
		})
	})
	require.NoError(t, err)
	assert.True(t, quit)
	assert.Positive(t, ticks)

	// Close unblocked the pending read
	assert.Equal(t, StopClosed, s.Reader().Reason())
	assert.False(t, c.raw)
}

func TestSessionPollContextCancel(t *testing.T) {
	c := &fakeConsole{}
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSession(c, pr).Run(nil, func(s *Session) error {
		return s.Poll(ctx, time.Millisecond, nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.raw)
}

func TestSessionActionErrorRestoresTerminal(t *testing.T) {
	c := &fakeConsole{}
	pr, pw := io.Pipe()
	defer pw.Close()

	boom := errors.New("boom")
	err := NewSession(c, pr).Run(Keymap{R('x'): {func(Key) error { return boom }}}, func(s *Session) error {
		writeAsync(pw, "x")
		return s.Poll(context.Background(), time.Millisecond, nil)
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.raw)
	assert.Equal(t, []string{"get", "raw", "restore"}, c.calls)
}

func TestSessionTickError(t *testing.T) {
	c := &fakeConsole{}
	pr, pw := io.Pipe()
	defer pw.Close()

	boom := errors.New("tick")
	err := NewSession(c, pr).Run(nil, func(s *Session) error {
		return s.Poll(context.Background(), time.Millisecond, func() (bool, error) {
			return false, boom
		})
	})
	assert.ErrorIs(t, err, boom)
}

func TestSessionOpenTwice(t *testing.T) {
	c := &fakeConsole{}
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewSession(c, pr)
	require.NoError(t, s.Open(nil))
	assert.ErrorIs(t, s.Open(nil), ErrSessionOpen)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"get", "raw", "restore"}, c.calls)
}

func TestSessionOpenFailsWhenRawModeFails(t *testing.T) {
	c := &fakeConsole{rawErr: errors.New("ioctl")}
	s := NewSession(c, bytes.NewReader(nil))
	assert.Error(t, s.Open(nil))
	assert.Nil(t, s.Reader())
	assert.NoError(t, s.Close())
}

func TestSessionCloseRestoresWhenReaderStuck(t *testing.T) {
	c := &fakeConsole{}
	src := blockingReader{release: make(chan struct{})}
	defer close(src.release)

	s := NewSession(c, src)
	require.NoError(t, s.Open(nil))

	err := s.Close()
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.False(t, c.raw)
}

func TestSessionPanicRestoresTerminal(t *testing.T) {
	c := &fakeConsole{}
	pr, pw := io.Pipe()
	defer pw.Close()

	assert.Panics(t, func() {
		_ = NewSession(c, pr).Run(Keymap{R('p'): {Do(func() { panic("action") })}}, func(s *Session) error {
			writeAsync(pw, "p")
			return s.Poll(context.Background(), time.Millisecond, nil)
		})
	})
	assert.False(t, c.raw)
}

func TestSessionNestedRawModeRejected(t *testing.T) {
	c := &fakeConsole{}
	pr, pw := io.Pipe()
	defer pw.Close()

	called := false
	err := NewSession(c, pr).Run(nil, func(s *Session) error {
		return WithRawMode(c, func() error {
			called = true
			return nil
		})
	})
	assert.ErrorIs(t, err, ErrRawModeActive)
	assert.False(t, called)
	assert.False(t, c.raw)
	assert.Equal(t, []string{"get", "raw", "restore"}, c.calls)
}

func TestSessionBindBeforeOpen(t *testing.T) {
	c := &fakeConsole{}
	pr, pw := io.Pipe()
	defer pw.Close()

	var rec recorder
	s := NewSession(c, pr)
	s.Bind("hello", R('h'), rec.do("hello"))
	s.Register(R('x'), rec.do("register"))
	assert.True(t, s.Bound(R('h')))

	// nothing queued yet
	open, err := s.Drain()
	require.NoError(t, err)
	assert.True(t, open)

	err = s.Run(Keymap{R('x'): {rec.do("keymap")}}, func(s *Session) error {
		writeAsync(pw, "hx\x04")
		return s.Poll(context.Background(), time.Millisecond, nil)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "register", "keymap"}, rec.got)
}
