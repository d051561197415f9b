package buffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(size int, key bool) *Chunk {
	return &Chunk{Data: bytes.Repeat([]byte{0xAB}, size), Keyframe: key}
}

func TestRingBufferEvictsOldest(t *testing.T) {
	rb := NewRingBuffer(100)

	for i := 0; i < 5; i++ {
		require.NoError(t, rb.Write(chunk(30, i == 0)))
	}

	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, 90, rb.Bytes())

	got := rb.Dump()
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].Sequence)
	assert.Equal(t, uint64(5), got[2].Sequence)
	assert.Equal(t, uint64(2), rb.Metrics()["evictions"])
}

func TestRingBufferOversizedChunk(t *testing.T) {
	rb := NewRingBuffer(10)
	require.NoError(t, rb.Write(chunk(4, true)))
	require.NoError(t, rb.Write(chunk(50, false)))

	got := rb.Dump()
	require.Len(t, got, 1)
	assert.Len(t, got[0].Data, 50)
}

func TestRingBufferDumpFromKeyframe(t *testing.T) {
	rb := NewRingBuffer(1000)
	require.NoError(t, rb.Write(chunk(10, false)))
	assert.Nil(t, rb.DumpFromKeyframe())

	require.NoError(t, rb.Write(chunk(10, true)))
	require.NoError(t, rb.Write(chunk(10, false)))
	require.NoError(t, rb.Write(chunk(10, true)))

	got := rb.DumpFromKeyframe()
	require.Len(t, got, 3)
	assert.True(t, got[0].Keyframe)
	assert.Equal(t, uint64(2), got[0].Sequence)
}

func TestRingBufferGrowsPastInitialSlots(t *testing.T) {
	rb := NewRingBuffer(1 << 20)
	for i := 0; i < 40; i++ {
		require.NoError(t, rb.Write(chunk(1, false)))
	}
	got := rb.Dump()
	require.Len(t, got, 40)
	for i, c := range got {
		assert.Equal(t, uint64(i+1), c.Sequence)
	}

	rb.Reset()
	assert.True(t, rb.IsEmpty())
	assert.Zero(t, rb.Bytes())
	assert.Error(t, rb.Write(nil))
}
