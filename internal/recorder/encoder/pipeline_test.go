package encoder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
	"github.com/mikeyg42/framecoder/internal/recorder/metadata"
)

// recordingSink remembers every callback and returns handles to its pool.
type recordingSink struct {
	pool *buffer.Pool

	mu       sync.Mutex
	outputs  []EncodedChunk
	released []*buffer.Handle
	events   []string
	putErrs  []error
	doneCh   chan *buffer.Handle
}

func newRecordingSink(pool *buffer.Pool) *recordingSink {
	return &recordingSink{pool: pool, doneCh: make(chan *buffer.Handle, 1024)}
}

func (s *recordingSink) OutputReady(c EncodedChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Data = append([]byte(nil), c.Data...)
	s.outputs = append(s.outputs, c)
	s.events = append(s.events, "output")
}

func (s *recordingSink) InputDone(h *buffer.Handle) {
	s.mu.Lock()
	s.released = append(s.released, h)
	s.events = append(s.events, "input")
	if s.pool != nil {
		if err := s.pool.Put(h); err != nil {
			s.putErrs = append(s.putErrs, err)
		}
	}
	s.mu.Unlock()
	s.doneCh <- h
}

func (s *recordingSink) waitDone(t *testing.T, n int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-s.doneCh:
		case <-timeout:
			t.Fatalf("timed out waiting for InputDone %d of %d", i+1, n)
		}
	}
}

func (s *recordingSink) snapshot() ([]EncodedChunk, []*buffer.Handle, []string, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EncodedChunk(nil), s.outputs...),
		append([]*buffer.Handle(nil), s.released...),
		append([]string(nil), s.events...),
		append([]error(nil), s.putErrs...)
}

// fakeBackend runs fn for each frame.
type fakeBackend struct {
	fn     func(f buffer.RawFrame) (Packet, error)
	closed bool
}

func (b *fakeBackend) Encode(f buffer.RawFrame) (Packet, error) { return b.fn(f) }
func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

func startFake(t *testing.T, b Backend, sink Sink, opts ...Option) *Pipeline {
	t.Helper()
	p := newPipeline(CodecH264, sink, opts)
	p.start(b)
	return p
}

var testInfo = buffer.NewStreamInfo(16, 8)

func newTestPool(t *testing.T, n int) *buffer.Pool {
	t.Helper()
	pool, err := buffer.NewPool(n, testInfo.FrameSize())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func frameFor(t *testing.T, pool *buffer.Pool, seq int) buffer.RawFrame {
	t.Helper()
	h, err := pool.Get(context.Background())
	require.NoError(t, err)
	mem := h.Bytes()
	for i := range mem {
		mem[i] = byte(seq)
	}
	return buffer.RawFrame{
		Handle:          h,
		Size:            testInfo.FrameSize(),
		Info:            testInfo,
		TimestampMicros: int64(seq) * 33333,
		Metadata:        metadata.NewRecord(metadata.Int("seq", seq)),
	}
}

func TestNullBackendRoundTrip(t *testing.T) {
	pool := newTestPool(t, 1)
	f := frameFor(t, pool, 7)

	var (
		mu       sync.Mutex
		events   []string
		samePtr  bool
		gotLen   int
		keyframe bool
	)
	done := make(chan struct{})
	sink := Callbacks{
		Output: func(c EncodedChunk) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "output")
			samePtr = len(c.Data) > 0 && &c.Data[0] == &f.Handle.Bytes()[0]
			gotLen = len(c.Data)
			keyframe = c.Keyframe
		},
		Input: func(h *buffer.Handle) {
			mu.Lock()
			events = append(events, "input")
			mu.Unlock()
			assert.Same(t, f.Handle, h)
			close(done)
		},
	}

	p, err := New(Config{Codec: "YUV420"}, sink)
	require.NoError(t, err)
	assert.Equal(t, CodecYUV420, p.Codec())

	require.NoError(t, p.Submit(f))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("InputDone never called")
	}
	require.NoError(t, p.Shutdown())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"output", "input"}, events)
	assert.True(t, samePtr, "payload should alias the submitted buffer")
	assert.Equal(t, f.Size, gotLen)
	assert.True(t, keyframe)
}

func TestOrderingAndPairing(t *testing.T) {
	const n = 64
	pool := newTestPool(t, 4)
	sink := newRecordingSink(pool)

	p, err := New(Config{Codec: "yuv420"}, sink)
	require.NoError(t, err)

	// The pool is smaller than n, so this only finishes if every handle
	// comes back.
	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(frameFor(t, pool, i)))
	}
	sink.waitDone(t, n)
	require.NoError(t, p.Shutdown())

	outputs, released, _, putErrs := sink.snapshot()
	require.Len(t, outputs, n)
	require.Len(t, released, n)
	assert.Empty(t, putErrs, "a handle was returned twice")

	for k, c := range outputs {
		seq, ok := c.Metadata.Get("seq")
		require.True(t, ok)
		assert.Equal(t, strconv.Itoa(k), seq)
		assert.Equal(t, int64(k)*33333, c.TimestampMicros)
		assert.Equal(t, byte(k), c.Data[0])
	}

	stats := p.Stats()
	assert.Equal(t, uint64(n), stats.FramesIn)
	assert.Equal(t, uint64(n), stats.PacketsOut)
	assert.Equal(t, uint64(n), stats.Keyframes)
	assert.Zero(t, stats.DroppedFrames)
	assert.Zero(t, stats.QueueDepth)
	assert.Equal(t, 0, pool.InUse())
}

func TestMetadataWrittenInOrder(t *testing.T) {
	pool := newTestPool(t, 2)
	sink := newRecordingSink(pool)
	var out bytes.Buffer
	em, err := metadata.NewEmitter(&out, metadata.FormatText)
	require.NoError(t, err)

	p, err := New(Config{Codec: "yuv420"}, sink, WithEmitter(em))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(frameFor(t, pool, i)))
	}
	sink.waitDone(t, 3)
	require.NoError(t, p.Shutdown())

	assert.Equal(t, "seq=0\n\nseq=1\n\nseq=2\n\n", out.String())
}

func TestJSONMetadataClosedOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	p, err := New(Config{Codec: "yuv420", MetadataPath: path}, newRecordingSink(nil))
	require.NoError(t, err)
	require.NoError(t, p.Shutdown())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n]\n", string(data))
}

func TestBackendFailureStillReleases(t *testing.T) {
	pool := newTestPool(t, 4)
	sink := newRecordingSink(pool)
	b := &fakeBackend{fn: func(f buffer.RawFrame) (Packet, error) {
		if f.TimestampMicros == 33333 {
			return Packet{}, errors.New("bitstream overflow")
		}
		return Packet{Data: []byte{1, 2, 3}, Keyframe: false}, nil
	}}
	p := startFake(t, b, sink)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(frameFor(t, pool, i)))
	}
	sink.waitDone(t, 3)
	require.NoError(t, p.Shutdown())
	assert.True(t, b.closed)

	outputs, released, events, putErrs := sink.snapshot()
	assert.Len(t, outputs, 2)
	assert.Len(t, released, 3)
	assert.Empty(t, putErrs)
	assert.Equal(t, []string{"output", "input", "input", "output", "input"}, events)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.DroppedFrames)
	assert.InDelta(t, 33.33, stats.CalculateDropRate(), 0.01)
}

func TestBackendPanicIsRecovered(t *testing.T) {
	pool := newTestPool(t, 2)
	sink := newRecordingSink(pool)
	calls := 0
	p := startFake(t, &fakeBackend{fn: func(buffer.RawFrame) (Packet, error) {
		calls++
		if calls == 1 {
			panic("codec state corrupted")
		}
		return Packet{Data: []byte{9}, Keyframe: true}, nil
	}}, sink)

	require.NoError(t, p.Submit(frameFor(t, pool, 0)))
	require.NoError(t, p.Submit(frameFor(t, pool, 1)))
	sink.waitDone(t, 2)
	require.NoError(t, p.Shutdown())

	outputs, released, _, _ := sink.snapshot()
	assert.Len(t, outputs, 1)
	assert.Len(t, released, 2)
	assert.Equal(t, uint64(1), p.Stats().DroppedFrames)
}

func TestEmptyPacketReleasesWithoutOutput(t *testing.T) {
	pool := newTestPool(t, 1)
	sink := newRecordingSink(pool)
	releases := 0
	p := startFake(t, &fakeBackend{fn: func(buffer.RawFrame) (Packet, error) {
		return Packet{Release: func() { releases++ }}, nil
	}}, sink)

	require.NoError(t, p.Submit(frameFor(t, pool, 0)))
	sink.waitDone(t, 1)
	require.NoError(t, p.Shutdown())

	outputs, released, _, _ := sink.snapshot()
	assert.Empty(t, outputs)
	assert.Len(t, released, 1)
	assert.Equal(t, 1, releases)
}

func TestShutdownDrainsQueuedFrames(t *testing.T) {
	const n = 10
	pool := newTestPool(t, n)
	sink := newRecordingSink(pool)
	started := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	p := startFake(t, &fakeBackend{fn: func(buffer.RawFrame) (Packet, error) {
		once.Do(func() { close(started) })
		<-unblock
		return Packet{Data: []byte{1}}, nil
	}}, sink, WithWaitTimeout(20*time.Millisecond))

	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(frameFor(t, pool, i)))
	}
	<-started

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- p.Shutdown() }()
	time.Sleep(10 * time.Millisecond)
	close(unblock)

	select {
	case err := <-shutdownDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	_, released, _, putErrs := sink.snapshot()
	assert.Len(t, released, n, "every handle must come back exactly once")
	assert.Empty(t, putErrs)

	stats := p.Stats()
	assert.Equal(t, uint64(n), stats.PacketsOut+stats.DrainedFrames)
	assert.Equal(t, 0, pool.InUse())
}

func TestIdleShutdownLatency(t *testing.T) {
	p, err := New(Config{Codec: "yuv420"}, newRecordingSink(nil))
	require.NoError(t, err)

	// Let the worker settle into its timed wait.
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	require.NoError(t, p.Shutdown())
	assert.Less(t, time.Since(start), DefaultWaitTimeout+100*time.Millisecond)
	require.NoError(t, p.Shutdown())
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := newTestPool(t, 1)
	sink := newRecordingSink(pool)
	p, err := New(Config{Codec: "yuv420"}, sink)
	require.NoError(t, err)
	require.NoError(t, p.Shutdown())

	err = p.Submit(frameFor(t, pool, 0))
	assert.ErrorIs(t, err, ErrEncoderClosed)

	outputs, released, _, putErrs := sink.snapshot()
	assert.Empty(t, outputs)
	assert.Len(t, released, 1)
	assert.Empty(t, putErrs)
	assert.Zero(t, p.Stats().FramesIn)
}

func TestSubmitWithoutHandle(t *testing.T) {
	p, err := New(Config{Codec: "yuv420"}, newRecordingSink(nil))
	require.NoError(t, err)
	defer p.Shutdown()

	err = p.Submit(buffer.RawFrame{})
	var ee *EncoderError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeInvalidFrame, ee.Code)
	assert.False(t, IsFatal(err))
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		sink Sink
		code int
	}{
		{"unknown codec", Config{Codec: "hevc"}, newRecordingSink(nil), ErrCodeUnknownCodec},
		{"empty codec", Config{}, newRecordingSink(nil), ErrCodeUnknownCodec},
		{"nil sink", Config{Codec: "yuv420"}, nil, ErrCodeInvalidConfig},
		{"bad quality", Config{Codec: "yuv420", Quality: 101}, newRecordingSink(nil), ErrCodeInvalidConfig},
		{"not linked", Config{Codec: "vp8"}, newRecordingSink(nil), ErrCodeBackendUnavailable},
		{
			"metadata path",
			Config{Codec: "yuv420", MetadataPath: filepath.Join(t.TempDir(), "nope", "m.json")},
			newRecordingSink(nil),
			ErrCodeMetadataOutput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg, tt.sink)
			assert.Nil(t, p)
			var ee *EncoderError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.code, ee.Code)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestNewClosesInjectedEmitterOnFailure(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		sink Sink
	}{
		{"unknown codec", Config{Codec: "hevc"}, newRecordingSink(nil)},
		{"nil sink", Config{Codec: "yuv420"}, nil},
		{"bad quality", Config{Codec: "yuv420", Quality: 101}, newRecordingSink(nil)},
		{"not linked", Config{Codec: "vp8"}, newRecordingSink(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			em, err := metadata.NewEmitter(&out, metadata.FormatJSON)
			require.NoError(t, err)

			p, err := New(tt.cfg, tt.sink, WithEmitter(em))
			assert.Nil(t, p)
			assert.Error(t, err)
			assert.Equal(t, "[\n]\n", out.String())
		})
	}
}

func TestSubmitRacesShutdown(t *testing.T) {
	const (
		rounds    = 50
		handles   = 64
		producers = 4
	)
	for r := 0; r < rounds; r++ {
		pool := newTestPool(t, handles)
		sink := newRecordingSink(pool)
		p, err := New(Config{Codec: "yuv420"}, sink, WithWaitTimeout(time.Millisecond))
		require.NoError(t, err)

		frames := make([]buffer.RawFrame, handles)
		for i := range frames {
			frames[i] = frameFor(t, pool, i)
		}

		var wg sync.WaitGroup
		per := handles / producers
		for g := 0; g < producers; g++ {
			wg.Add(1)
			go func(batch []buffer.RawFrame) {
				defer wg.Done()
				for _, f := range batch {
					if err := p.Submit(f); err != nil {
						assert.ErrorIs(t, err, ErrEncoderClosed)
					}
				}
			}(frames[g*per : (g+1)*per])
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Shutdown())
		}()
		wg.Wait()
		require.NoError(t, p.Shutdown())

		_, released, _, putErrs := sink.snapshot()
		require.Len(t, released, handles)
		seen := make(map[*buffer.Handle]bool, handles)
		for _, h := range released {
			assert.False(t, seen[h], "handle %d returned twice", h.ID())
			seen[h] = true
		}
		assert.Empty(t, putErrs)
		assert.Zero(t, pool.InUse())
	}
}

func TestParseCodec(t *testing.T) {
	for _, name := range []string{"yuv420", "MJPEG", "Vp8", " h264 "} {
		_, err := ParseCodec(name)
		assert.NoError(t, err, name)
	}
	assert.Len(t, Known(), 4)
	assert.Contains(t, Available(), CodecYUV420)
	assert.Panics(t, func() { Register(CodecYUV420, func(Config) (Backend, error) { return nullBackend{}, nil }) })
	assert.Panics(t, func() { Register("av1", func(Config) (Backend, error) { return nullBackend{}, nil }) })
}
