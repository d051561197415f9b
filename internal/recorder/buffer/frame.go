package buffer

import (
	"fmt"

	"github.com/mikeyg42/framecoder/internal/recorder/metadata"
)

// PixelFormat names the memory layout of a raw frame.
type PixelFormat string

const (
	// FormatYUV420 is planar I420: a full-resolution Y plane followed by
	// quarter-resolution U and V planes, each with half the luma stride.
	FormatYUV420 PixelFormat = "YUV420"
)

// StreamInfo describes the geometry of every frame in a stream.
type StreamInfo struct {
	Width       int
	Height      int
	Stride      int // luma bytes per row
	PixelFormat PixelFormat
}

// NewStreamInfo returns I420 stream info with a tightly packed stride.
func NewStreamInfo(width, height int) StreamInfo {
	return StreamInfo{
		Width:       width,
		Height:      height,
		Stride:      width,
		PixelFormat: FormatYUV420,
	}
}

// Validate checks the geometry is usable for I420.
func (s StreamInfo) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid resolution: %dx%d", s.Width, s.Height)
	}
	if s.Width%2 != 0 || s.Height%2 != 0 {
		return fmt.Errorf("resolution %dx%d must be even for %s", s.Width, s.Height, s.PixelFormat)
	}
	if s.Stride < s.Width || s.Stride%2 != 0 {
		return fmt.Errorf("invalid stride %d for width %d", s.Stride, s.Width)
	}
	if s.PixelFormat != FormatYUV420 {
		return fmt.Errorf("unsupported pixel format %q", s.PixelFormat)
	}
	return nil
}

// ChromaStride is the row pitch of the U and V planes.
func (s StreamInfo) ChromaStride() int { return s.Stride / 2 }

// LumaSize is the byte size of the Y plane.
func (s StreamInfo) LumaSize() int { return s.Stride * s.Height }

// ChromaSize is the byte size of one of the U or V planes.
func (s StreamInfo) ChromaSize() int { return s.ChromaStride() * (s.Height / 2) }

// FrameSize is the byte size of a whole frame.
func (s StreamInfo) FrameSize() int { return s.LumaSize() + 2*s.ChromaSize() }

// RawFrame is one captured frame travelling through an encoder. The Handle
// stays owned by the capture source's pool; the encoder borrows it until it
// reports the handle back through its sink.
type RawFrame struct {
	Handle          *Handle
	Size            int
	Info            StreamInfo
	TimestampMicros int64
	Metadata        metadata.Record
}

// Data returns the valid bytes of the frame.
func (f RawFrame) Data() []byte {
	if f.Handle == nil {
		return nil
	}
	mem := f.Handle.Bytes()
	if f.Size < 0 || f.Size > len(mem) {
		return mem
	}
	return mem[:f.Size]
}

// Planes splits the frame into its Y, U and V planes.
func (f RawFrame) Planes() (y, u, v []byte, err error) {
	data := f.Data()
	if len(data) < f.Info.FrameSize() {
		return nil, nil, nil, fmt.Errorf("frame holds %d bytes, need %d", len(data), f.Info.FrameSize())
	}
	ls, cs := f.Info.LumaSize(), f.Info.ChromaSize()
	return data[:ls], data[ls : ls+cs], data[ls+cs : ls+2*cs], nil
}
