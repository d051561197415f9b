// Package capture produces raw I420 frames into a buffer pool and lends
// them to an encoder.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

// Submitter accepts frames. *encoder.Pipeline satisfies it.
type Submitter interface {
	Submit(f buffer.RawFrame) error
}

// Source is a frame producer that owns the buffers it hands out.
type Source interface {
	// Run produces frames until ctx is done, the frame limit is reached,
	// or the submitter is closed.
	Run(ctx context.Context, sub Submitter) error
	// InputDone takes a buffer back from the encoder.
	InputDone(h *buffer.Handle)
	Info() buffer.StreamInfo
	Stats() Stats
	Close() error
}

// Stats counts what a source produced.
type Stats struct {
	Captured uint64 // submitted to the encoder
	Skipped  uint64 // dropped because no buffer was free
	Returned uint64 // handed back through InputDone
	InFlight int    // buffers currently lent out
}

// base holds the pool bookkeeping shared by every source.
type base struct {
	info   buffer.StreamInfo
	pool   *buffer.Pool
	logger recorderlog.Logger

	captured atomic.Uint64
	skipped  atomic.Uint64
	returned atomic.Uint64
}

func newBase(info buffer.StreamInfo, buffers int, name string) (*base, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if buffers <= 0 {
		buffers = DefaultBuffers
	}
	pool, err := buffer.NewPool(buffers, info.FrameSize())
	if err != nil {
		return nil, fmt.Errorf("failed to allocate capture buffers: %w", err)
	}
	return &base{
		info:   info,
		pool:   pool,
		logger: recorderlog.L().Named(name),
	}, nil
}

// DefaultBuffers is the pool size when the config leaves it unset.
const DefaultBuffers = 6

func (b *base) Info() buffer.StreamInfo { return b.info }

func (b *base) InputDone(h *buffer.Handle) {
	if err := b.pool.Put(h); err != nil {
		b.logger.Error("Buffer returned by encoder was not lent out", recorderlog.Error(err))
		return
	}
	b.returned.Add(1)
}

func (b *base) Stats() Stats {
	return Stats{
		Captured: b.captured.Load(),
		Skipped:  b.skipped.Load(),
		Returned: b.returned.Load(),
		InFlight: b.pool.InUse(),
	}
}

// submit hands f to sub. It reports false when the submitter is closed.
func (b *base) submit(sub Submitter, f buffer.RawFrame) (bool, error) {
	err := sub.Submit(f)
	switch {
	case err == nil:
		b.captured.Add(1)
		return true, nil
	case errors.Is(err, encoder.ErrEncoderClosed):
		// The encoder already returned the handle.
		return false, nil
	default:
		if perr := b.pool.Put(f.Handle); perr != nil {
			b.logger.Error("Failed to reclaim buffer", recorderlog.Error(perr))
		}
		return false, fmt.Errorf("submit frame: %w", err)
	}
}

func (b *base) Close() error {
	return b.pool.Close()
}
