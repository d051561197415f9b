package encoder

import (
	"sync"
	"time"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
)

// DefaultWaitTimeout bounds how long the worker sleeps before re-checking
// the abort flag.
const DefaultWaitTimeout = 200 * time.Millisecond

// pending pairs a frame with its metadata. The pair travels as one item so
// the two can never drift apart.
type pending struct {
	frame    buffer.RawFrame
	enqueued time.Time
}

// queue is an unbounded FIFO shared by one producer side (Submit) and the
// single worker. Its length is bounded in practice by the capture pool:
// a frame cannot be queued without a checked-out handle.
type queue struct {
	mu      sync.Mutex
	items   []pending
	aborted bool

	wake    chan struct{}
	timeout time.Duration
	timer   *time.Timer // worker only
}

func newQueue(timeout time.Duration) *queue {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	return &queue{
		wake:    make(chan struct{}, 1),
		timeout: timeout,
	}
}

// push appends p unless the queue was aborted. It never waits for the worker.
func (q *queue) push(p pending) bool {
	q.mu.Lock()
	if q.aborted {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, p)
	q.mu.Unlock()

	q.signal()
	return true
}

// next returns the oldest item, waiting in slices of q.timeout while the
// queue is empty. It returns false once aborted, even if items remain.
func (q *queue) next() (pending, bool) {
	for {
		q.mu.Lock()
		if q.aborted {
			q.mu.Unlock()
			return pending{}, false
		}
		if len(q.items) > 0 {
			p := q.items[0]
			q.items[0] = pending{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return p, true
		}
		q.mu.Unlock()

		q.wait()
	}
}

func (q *queue) wait() {
	if q.timer == nil {
		q.timer = time.NewTimer(q.timeout)
	} else {
		q.timer.Reset(q.timeout)
	}
	select {
	case <-q.wake:
		q.timer.Stop()
	case <-q.timer.C:
	}
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// abort moves the queue to its terminal state and wakes the worker.
func (q *queue) abort() {
	q.mu.Lock()
	q.aborted = true
	q.mu.Unlock()
	q.signal()
}

// drain removes and returns every remaining item.
func (q *queue) drain() []pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
