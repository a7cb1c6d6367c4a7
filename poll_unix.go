//go:build unix

package nbkey

import (
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// pollTimeout bounds how long a pending Read takes to notice Close, in ms.
const pollTimeout = 50

// pollReader reads a file descriptor through unix.Poll so that Close can
// interrupt a pending Read. Closing a blocking descriptor such as a
// terminal's stdin does not wake a Read already parked in the kernel.
type pollReader struct {
	f  *os.File
	fd int

	stop      chan struct{}
	stopOnce  sync.Once
	mu        sync.Mutex // held while a Read is in progress
	closeOnce sync.Once
	closeErr  error
}

// pollable wraps files so Stop can unblock them. Other readers are
// returned unchanged.
func pollable(src io.Reader) io.Reader {
	f, ok := src.(*os.File)
	if !ok {
		return src
	}
	return &pollReader{f: f, fd: int(f.Fd()), stop: make(chan struct{})}
}

func (p *pollReader) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		select {
		case <-p.stop:
			p.closeFile()
			return 0, os.ErrClosed
		default:
		}

		fds := []unix.PollFd{
			{Fd: int32(p.fd), Events: unix.POLLIN},
		}
		n, err := unix.Poll(fds, pollTimeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		if n == 0 {
			continue // Timeout
		}

		rn, err := unix.Read(p.fd, b)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return 0, err
		}
		if rn == 0 {
			return 0, io.EOF
		}
		return rn, nil
	}
}

// Close stops pending and future reads. If a Read is in progress it closes
// the file itself once it sees the stop, within pollTimeout.
func (p *pollReader) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	if !p.mu.TryLock() {
		return nil
	}
	defer p.mu.Unlock()
	return p.closeFile()
}

func (p *pollReader) closeFile() error {
	p.closeOnce.Do(func() { p.closeErr = p.f.Close() })
	return p.closeErr
}
