package encoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
)

func TestQueueFIFO(t *testing.T) {
	q := newQueue(10 * time.Millisecond)
	for i := int64(0); i < 3; i++ {
		require.True(t, q.push(pending{frame: buffer.RawFrame{TimestampMicros: i}}))
	}
	assert.Equal(t, 3, q.depth())

	for i := int64(0); i < 3; i++ {
		it, ok := q.next()
		require.True(t, ok)
		assert.Equal(t, i, it.frame.TimestampMicros)
	}
	assert.Zero(t, q.depth())
}

func TestQueueNextWakesOnPush(t *testing.T) {
	q := newQueue(time.Hour)
	got := make(chan int64, 1)
	go func() {
		it, _ := q.next()
		got <- it.frame.TimestampMicros
	}()

	time.Sleep(10 * time.Millisecond)
	q.push(pending{frame: buffer.RawFrame{TimestampMicros: 42}})
	select {
	case ts := <-got:
		assert.Equal(t, int64(42), ts)
	case <-time.After(time.Second):
		t.Fatal("worker was not woken by push")
	}
}

func TestQueueAbort(t *testing.T) {
	q := newQueue(time.Hour)
	q.push(pending{frame: buffer.RawFrame{TimestampMicros: 1}})
	q.push(pending{frame: buffer.RawFrame{TimestampMicros: 2}})
	q.abort()

	_, ok := q.next()
	assert.False(t, ok, "next must stop once aborted even with items left")
	assert.False(t, q.push(pending{}))

	left := q.drain()
	require.Len(t, left, 2)
	assert.Equal(t, int64(1), left[0].frame.TimestampMicros)
	assert.Empty(t, q.drain())
}

func TestQueueAbortWhileWaiting(t *testing.T) {
	q := newQueue(time.Hour)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.next()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.abort()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("abort did not wake the waiting worker")
	}
}

func TestQueueTimeoutRechecksAbort(t *testing.T) {
	q := newQueue(20 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		q.next()
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	// Set the flag without signalling, as a lost wakeup would.
	q.mu.Lock()
	q.aborted = true
	q.mu.Unlock()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("worker did not notice abort after its wait timeout")
	}
}
