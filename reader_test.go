package nbkey

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeRecorder wraps a reader and counts Close calls.
type closeRecorder struct {
	io.Reader
	closed atomic.Int32
}

func (c *closeRecorder) Close() error {
	c.closed.Add(1)
	return nil
}

type errReader struct {
	err error
}

func (e errReader) Read([]byte) (int, error) {
	return 0, e.err
}

// blockingReader blocks until release is closed and cannot be closed itself.
type blockingReader struct {
	release chan struct{}
}

func (b blockingReader) Read([]byte) (int, error) {
	<-b.release
	return 0, io.EOF
}

func waitDone(t *testing.T, r *KeyReader) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("key reader did not finish")
	}
}

// popAll drains a queue whose producer has finished.
func popAll(q *KeyQueue) []Key {
	var keys []Key
	for {
		k, ok := q.TryPop()
		if !ok {
			return keys
		}
		keys = append(keys, k)
	}
}

func TestKeyReaderEOF(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("ab\rq")}
	q := NewKeyQueue(8)
	r := NewKeyReader(src, q).Start()
	waitDone(t, r)

	assert.Equal(t, []Key{R('a'), R('b'), KeyEnter, R('q')}, popAll(q))
	assert.True(t, q.Closed())
	assert.Equal(t, StopEndOfInput, r.Reason())
	assert.NoError(t, r.Err())
	assert.EqualValues(t, 1, src.closed.Load())
}

func TestKeyReaderInterrupt(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("ab\x03cd")}
	var notice bytes.Buffer
	q := NewKeyQueue(8)
	r := NewKeyReader(src, q).Notice(&notice).Start()
	waitDone(t, r)

	// keys after the interrupt are never delivered
	assert.Equal(t, []Key{R('a'), R('b')}, popAll(q))
	assert.True(t, q.Closed())
	assert.Equal(t, StopInterrupt, r.Reason())
	assert.Equal(t, interruptNotice, notice.String())
	assert.EqualValues(t, 1, src.closed.Load())
}

func TestKeyReaderEndOfInputByte(t *testing.T) {
	q := NewKeyQueue(8)
	r := NewKeyReader(strings.NewReader("x\x04y"), q).Start()
	waitDone(t, r)

	assert.Equal(t, []Key{R('x')}, popAll(q))
	assert.True(t, q.Closed())
	assert.Equal(t, StopEndOfInput, r.Reason())
}

func TestKeyReaderSkipsUndecodable(t *testing.T) {
	q := NewKeyQueue(8)
	r := NewKeyReader(strings.NewReader("\xffa\xc3\xa9"), q).Start()
	waitDone(t, r)

	assert.Equal(t, []Key{R('a'), R('é')}, popAll(q))
}

func TestKeyReaderReadError(t *testing.T) {
	boom := errors.New("boom")
	q := NewKeyQueue(1)
	r := NewKeyReader(errReader{boom}, q).Start()
	waitDone(t, r)

	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.True(t, q.Closed())
	assert.Equal(t, StopReadError, r.Reason())
	assert.ErrorIs(t, r.Err(), boom)
}

func TestKeyReaderStopUnblocksRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	q := NewKeyQueue(8)
	r := NewKeyReader(pr, q).Start()
	assert.Equal(t, StopRunning, r.Reason())

	_, err := pw.Write([]byte("k"))
	require.NoError(t, err)

	require.NoError(t, r.Stop(time.Second))
	assert.Equal(t, StopClosed, r.Reason())
	assert.NoError(t, r.Err())
	assert.Equal(t, []Key{R('k')}, popAll(q))
	assert.True(t, q.Closed())
}

func TestKeyReaderStopTimeout(t *testing.T) {
	src := blockingReader{release: make(chan struct{})}
	q := NewKeyQueue(1)
	r := NewKeyReader(src, q).Start()

	assert.ErrorIs(t, r.Stop(10*time.Millisecond), ErrStopTimeout)

	close(src.release)
	waitDone(t, r)
	assert.Equal(t, StopEndOfInput, r.Reason())
}

func TestKeyReaderStopBeforeStart(t *testing.T) {
	r := NewKeyReader(strings.NewReader("a"), NewKeyQueue(1))
	assert.NoError(t, r.Stop(time.Millisecond))
	assert.Equal(t, StopRunning, r.Reason())
}

func TestKeyReaderStartTwice(t *testing.T) {
	q := NewKeyQueue(8)
	r := NewKeyReader(strings.NewReader("ab"), q)
	r.Start()
	r.Start()
	waitDone(t, r)

	assert.Equal(t, []Key{R('a'), R('b')}, popAll(q))
}

func TestStopReasonString(t *testing.T) {
	assert.Equal(t, "interrupt", StopInterrupt.String())
	assert.Equal(t, "end of input", StopEndOfInput.String())
	assert.Equal(t, "unknown", StopReason(99).String())
}
