package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Chunk is one encoded frame held for later writing.
type Chunk struct {
	Data            []byte
	TimestampMicros int64
	Keyframe        bool
	Sequence        uint64 // assigned by RingBuffer.Write
}

// RingBuffer retains the most recent encoded chunks up to a byte budget.
// Semantics:
//   - Write appends the newest chunk; the oldest chunks are evicted until the
//     retained bytes fit the budget again.
//   - A chunk larger than the whole budget is still kept, alone.
//   - DumpFromKeyframe returns everything from the oldest retained keyframe,
//     so the result always starts decodable.
type RingBuffer struct {
	chunks   []*Chunk
	head     int // index of the oldest chunk
	count    int
	maxBytes int
	bytes    int
	sequence uint64

	mu sync.RWMutex

	// Metrics
	totalWrites  atomic.Uint64
	totalBytes   atomic.Uint64
	evictions    atomic.Uint64
	evictedBytes atomic.Uint64
}

// NewRingBuffer creates a ring buffer retaining at most maxBytes of data.
func NewRingBuffer(maxBytes int) *RingBuffer {
	if maxBytes <= 0 {
		maxBytes = 1
	}
	return &RingBuffer{
		chunks:   make([]*Chunk, 16),
		maxBytes: maxBytes,
	}
}

// Write adds a chunk. The ring takes ownership of c.Data.
func (rb *RingBuffer) Write(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("cannot write nil chunk")
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.sequence++
	c.Sequence = rb.sequence

	for rb.count > 0 && rb.bytes+len(c.Data) > rb.maxBytes {
		rb.evictOldest()
	}

	if rb.count == len(rb.chunks) {
		rb.grow()
	}
	rb.chunks[(rb.head+rb.count)%len(rb.chunks)] = c
	rb.count++
	rb.bytes += len(c.Data)

	rb.totalWrites.Add(1)
	rb.totalBytes.Add(uint64(len(c.Data)))
	return nil
}

func (rb *RingBuffer) evictOldest() {
	old := rb.chunks[rb.head]
	rb.chunks[rb.head] = nil
	rb.head = (rb.head + 1) % len(rb.chunks)
	rb.count--
	rb.bytes -= len(old.Data)
	rb.evictions.Add(1)
	rb.evictedBytes.Add(uint64(len(old.Data)))
}

func (rb *RingBuffer) grow() {
	next := make([]*Chunk, len(rb.chunks)*2)
	for i := 0; i < rb.count; i++ {
		next[i] = rb.chunks[(rb.head+i)%len(rb.chunks)]
	}
	rb.chunks = next
	rb.head = 0
}

// Dump returns all retained chunks, oldest first, without removing them.
func (rb *RingBuffer) Dump() []*Chunk {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]*Chunk, 0, rb.count)
	for i := 0; i < rb.count; i++ {
		out = append(out, rb.chunks[(rb.head+i)%len(rb.chunks)])
	}
	return out
}

// DumpFromKeyframe returns the retained chunks starting at the oldest
// keyframe. It returns nil if no keyframe is retained.
func (rb *RingBuffer) DumpFromKeyframe() []*Chunk {
	all := rb.Dump()
	for i, c := range all {
		if c.Keyframe {
			return all[i:]
		}
	}
	return nil
}

// Reset drops every retained chunk.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for i := range rb.chunks {
		rb.chunks[i] = nil
	}
	rb.head = 0
	rb.count = 0
	rb.bytes = 0
}

// Len returns the number of retained chunks.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Bytes returns the number of retained bytes.
func (rb *RingBuffer) Bytes() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.bytes
}

// Capacity returns the byte budget.
func (rb *RingBuffer) Capacity() int { return rb.maxBytes }

// IsEmpty reports whether nothing is retained.
func (rb *RingBuffer) IsEmpty() bool { return rb.Len() == 0 }

// Metrics returns ring buffer statistics
func (rb *RingBuffer) Metrics() map[string]interface{} {
	rb.mu.RLock()
	count, bytes := rb.count, rb.bytes
	rb.mu.RUnlock()

	return map[string]interface{}{
		"capacity_bytes": rb.maxBytes,
		"chunks":         count,
		"bytes":          bytes,
		"total_writes":   rb.totalWrites.Load(),
		"total_bytes":    rb.totalBytes.Load(),
		"evictions":      rb.evictions.Load(),
		"evicted_bytes":  rb.evictedBytes.Load(),
	}
}
