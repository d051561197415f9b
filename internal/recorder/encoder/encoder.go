// Package encoder moves raw capture buffers through a codec backend on a
// dedicated worker and reports results through a Sink.
package encoder

import (
	"fmt"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
	"github.com/mikeyg42/framecoder/internal/recorder/metadata"
)

// EncodedChunk is one finished unit of encoded output.
// Data is only valid for the duration of the OutputReady call; receivers
// that keep it must copy it.
type EncodedChunk struct {
	Data            []byte
	TimestampMicros int64
	Keyframe        bool
	Metadata        metadata.Record
}

// Sink receives completion notifications from the encoder worker.
//
// OutputReady is called at most once per frame and always before the
// InputDone for the same frame. InputDone is called exactly once for every
// handle the encoder accepted, after which the encoder holds no reference
// to it. Both are called from the worker goroutine and should not block.
type Sink interface {
	OutputReady(chunk EncodedChunk)
	InputDone(h *buffer.Handle)
}

// Callbacks adapts plain functions to a Sink. A nil function is skipped.
type Callbacks struct {
	Output func(EncodedChunk)
	Input  func(*buffer.Handle)
}

func (c Callbacks) OutputReady(chunk EncodedChunk) {
	if c.Output != nil {
		c.Output(chunk)
	}
}

func (c Callbacks) InputDone(h *buffer.Handle) {
	if c.Input != nil {
		c.Input(h)
	}
}

// Encoder is what a capture loop drives.
type Encoder interface {
	// Submit queues a frame and returns without waiting for encode work.
	// On success, or with ErrEncoderClosed, ownership of f.Handle passes to
	// the encoder until InputDone. On any other error the caller keeps it.
	Submit(f buffer.RawFrame) error
	// Shutdown stops the worker and returns every outstanding handle.
	Shutdown() error
	Stats() StatsSnapshot
	Codec() Codec
}

// Config holds construction parameters shared by all backends.
type Config struct {
	Codec          string
	Info           buffer.StreamInfo
	FrameRate      float64
	Bitrate        int // bits per second, handed to the backend unchanged
	KeyframePeriod int // frames between forced keyframes, 0 = backend default
	Quality        int // JPEG quality 1-100, 0 = backend default

	MetadataPath   string // "" disables metadata, "-" is stdout
	MetadataFormat metadata.Format
}

// Validate checks the parts of the config every backend relies on.
func (c Config) Validate() error {
	if c.FrameRate < 0 || c.FrameRate > 240 {
		return fmt.Errorf("invalid framerate: %g", c.FrameRate)
	}
	if c.Bitrate < 0 {
		return fmt.Errorf("invalid bitrate: %d", c.Bitrate)
	}
	if c.KeyframePeriod < 0 {
		return fmt.Errorf("invalid keyframe period: %d", c.KeyframePeriod)
	}
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("invalid quality: %d (must be 1-100)", c.Quality)
	}
	return nil
}
