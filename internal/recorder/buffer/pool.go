package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

var (
	// ErrPoolClosed is returned by Get once the pool has been closed.
	ErrPoolClosed = errors.New("buffer pool closed")
	// ErrNotCheckedOut is returned when a handle is put back twice, or was
	// never handed out by this pool.
	ErrNotCheckedOut = errors.New("buffer handle not checked out")
)

// Handle is one raw frame buffer owned by a Pool. Holders borrow it between
// Get and Put; exactly one party holds a checked-out handle at a time.
type Handle struct {
	id   uint64
	mem  []byte
	fd   int
	pool *Pool
	out  atomic.Bool
}

// ID identifies the handle within its pool.
func (h *Handle) ID() uint64 { return h.id }

// Bytes returns the whole memory region.
func (h *Handle) Bytes() []byte { return h.mem }

// Len is the capacity of the memory region.
func (h *Handle) Len() int { return len(h.mem) }

// FD is the OS descriptor backing the memory, or -1.
func (h *Handle) FD() int { return h.fd }

// Pool is a fixed set of equally sized frame buffers. Its size bounds how
// many frames can be in flight between capture and encode.
type Pool struct {
	free    chan *Handle
	handles []*Handle
	bufSize int
	logger  recorderlog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	// Metrics
	gets   atomic.Uint64
	puts   atomic.Uint64
	misses atomic.Uint64
	inUse  atomic.Int64
}

// NewPool allocates count buffers of bufSize bytes each.
func NewPool(count, bufSize int) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid buffer count: %d", count)
	}
	if bufSize <= 0 {
		return nil, fmt.Errorf("invalid buffer size: %d", bufSize)
	}

	p := &Pool{
		free:    make(chan *Handle, count),
		handles: make([]*Handle, 0, count),
		bufSize: bufSize,
		logger:  recorderlog.L().Named("buffer-pool"),
		done:    make(chan struct{}),
	}
	for i := 0; i < count; i++ {
		mem, fd, err := allocate(uint64(i), bufSize)
		if err != nil {
			p.releaseAll()
			return nil, fmt.Errorf("allocate buffer %d: %w", i, err)
		}
		h := &Handle{id: uint64(i), mem: mem, fd: fd, pool: p}
		p.handles = append(p.handles, h)
		p.free <- h
	}

	p.logger.Debug("Buffer pool allocated",
		recorderlog.Int("count", count),
		recorderlog.Int("buffer_size", bufSize))
	return p, nil
}

// BufferSize is the size of each buffer.
func (p *Pool) BufferSize() int { return p.bufSize }

// Count is the number of buffers owned by the pool.
func (p *Pool) Count() int { return len(p.handles) }

// Get blocks until a buffer is free, ctx is done, or the pool is closed.
func (p *Pool) Get(ctx context.Context) (*Handle, error) {
	p.gets.Add(1)
	select {
	case h := <-p.free:
		return p.checkout(h)
	default:
	}

	p.misses.Add(1)
	select {
	case h := <-p.free:
		return p.checkout(h)
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryGet returns a free buffer without blocking.
func (p *Pool) TryGet() (*Handle, bool) {
	p.gets.Add(1)
	select {
	case h := <-p.free:
		if _, err := p.checkout(h); err != nil {
			return nil, false
		}
		return h, true
	default:
		p.misses.Add(1)
		return nil, false
	}
}

// checkout marks h as lent out. A handle taken from free after Close goes
// back so it is not lost.
func (p *Pool) checkout(h *Handle) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.free <- h
		return nil, ErrPoolClosed
	}
	h.out.Store(true)
	p.inUse.Add(1)
	return h, nil
}

// Put returns a checked-out buffer to the pool. After Close the buffer's
// memory is released instead.
func (p *Pool) Put(h *Handle) error {
	if h == nil || h.pool != p {
		return ErrNotCheckedOut
	}
	if !h.out.CompareAndSwap(true, false) {
		p.logger.Warn("Buffer returned twice", recorderlog.Uint64("handle", h.id))
		return fmt.Errorf("%w: handle %d", ErrNotCheckedOut, h.id)
	}
	p.puts.Add(1)
	p.inUse.Add(-1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.releaseLocked(h)
	}
	// free has capacity for every handle, so this never blocks.
	p.free <- h
	return nil
}

// InUse is the number of buffers currently checked out.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Close releases the memory of every buffer that is back in the pool.
// Buffers still checked out are reported in the error and released by Put.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	defer p.mu.Unlock()
	p.closed = true
	close(p.done)

	outstanding := 0
	var errs []error
	for _, h := range p.handles {
		if h.out.Load() {
			outstanding++
			continue
		}
		if err := p.releaseLocked(h); err != nil {
			errs = append(errs, err)
		}
	}
	if outstanding > 0 {
		errs = append(errs, fmt.Errorf("%d buffers still checked out", outstanding))
	}
	return errors.Join(errs...)
}

// releaseLocked unmaps h once. Callers hold p.mu.
func (p *Pool) releaseLocked(h *Handle) error {
	if h.mem == nil && h.fd < 0 {
		return nil
	}
	err := release(h.mem, h.fd)
	h.mem = nil
	h.fd = -1
	return err
}

func (p *Pool) releaseAll() {
	for _, h := range p.handles {
		_ = release(h.mem, h.fd)
	}
	p.handles = nil
}

// Metrics returns pool statistics
func (p *Pool) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"count":       len(p.handles),
		"buffer_size": p.bufSize,
		"in_use":      p.inUse.Load(),
		"gets":        p.gets.Load(),
		"puts":        p.puts.Load(),
		"misses":      p.misses.Load(),
	}
}
