package nbkey

import "sync"

// DefaultQueueSize is the KeyQueue capacity used when none is given.
const DefaultQueueSize = 256

// KeyQueue hands keys from a KeyReader to a Dispatcher.
//
// Push and Close belong to the producer goroutine; TryPop and Closed belong
// to the consumer. Closing the queue is the end-of-input sentinel: once the
// consumer has popped every queued key it observes the close and Closed
// reports true from then on.
type KeyQueue struct {
	ch        chan Key
	closeOnce sync.Once
	closed    bool // consumer side only
}

// NewKeyQueue creates a queue holding up to size keys before Push blocks.
func NewKeyQueue(size int) *KeyQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &KeyQueue{ch: make(chan Key, size)}
}

// Push enqueues a key, blocking while the queue is full.
// Push must not be called after Close.
func (q *KeyQueue) Push(k Key) {
	q.ch <- k
}

// Close marks the end of input. Calling it more than once is harmless.
func (q *KeyQueue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// TryPop returns the next key without blocking. ok is false when nothing
// is queued right now or the queue has closed; Closed tells the two apart.
func (q *KeyQueue) TryPop() (k Key, ok bool) {
	if q.closed {
		return Key{}, false
	}
	select {
	case k, ok = <-q.ch:
		if !ok {
			q.closed = true
		}
		return k, ok
	default:
		return Key{}, false
	}
}

// Closed reports whether TryPop has observed the end of input.
func (q *KeyQueue) Closed() bool {
	return q.closed
}

// Len returns the number of keys waiting.
func (q *KeyQueue) Len() int {
	return len(q.ch)
}
