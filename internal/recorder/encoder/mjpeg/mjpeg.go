// Package mjpeg registers a Motion JPEG backend built on OpenCV.
package mjpeg

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
)

// DefaultQuality is used when the config leaves quality at zero.
const DefaultQuality = 93

func init() {
	encoder.Register(encoder.CodecMJPEG, New)
}

// Backend converts each I420 frame to BGR and compresses it to JPEG.
// Every output is a keyframe.
type Backend struct {
	info    buffer.StreamInfo
	quality int
	packed  []byte // scratch for strided frames
	bgr     gocv.Mat
}

// New builds an MJPEG backend.
func New(cfg encoder.Config) (encoder.Backend, error) {
	if err := cfg.Info.Validate(); err != nil {
		return nil, fmt.Errorf("mjpeg: %w", err)
	}
	q := cfg.Quality
	if q == 0 {
		q = DefaultQuality
	}
	return &Backend{
		info:    cfg.Info,
		quality: q,
		bgr:     gocv.NewMat(),
	}, nil
}

func (b *Backend) Encode(f buffer.RawFrame) (encoder.Packet, error) {
	src, err := b.tight(f)
	if err != nil {
		return encoder.Packet{}, err
	}

	// OpenCV sees I420 as a single-channel image 1.5x the frame height.
	yuv, err := gocv.NewMatFromBytes(b.info.Height*3/2, b.info.Width, gocv.MatTypeCV8UC1, src)
	if err != nil {
		return encoder.Packet{}, fmt.Errorf("mjpeg: wrap frame: %w", err)
	}
	defer yuv.Close()

	gocv.CvtColor(yuv, &b.bgr, gocv.ColorYUVToBGRIYUV)

	jpg, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, b.bgr, []int{gocv.IMWriteJpegQuality, b.quality})
	if err != nil {
		return encoder.Packet{}, fmt.Errorf("mjpeg: encode: %w", err)
	}
	return encoder.Packet{
		Data:     jpg.GetBytes(),
		Keyframe: true,
		Release:  jpg.Close,
	}, nil
}

// tight returns the frame with the chroma and luma planes packed without
// row padding, copying only when the stride requires it.
func (b *Backend) tight(f buffer.RawFrame) ([]byte, error) {
	y, u, v, err := f.Planes()
	if err != nil {
		return nil, fmt.Errorf("mjpeg: %w", err)
	}
	info := f.Info
	if info.Stride == info.Width {
		return f.Data()[:info.FrameSize()], nil
	}

	w, h := info.Width, info.Height
	need := w*h + 2*(w/2)*(h/2)
	if cap(b.packed) < need {
		b.packed = make([]byte, need)
	}
	out := b.packed[:need]
	n := 0
	for row := 0; row < h; row++ {
		n += copy(out[n:], y[row*info.Stride:row*info.Stride+w])
	}
	cs := info.ChromaStride()
	for _, plane := range [][]byte{u, v} {
		for row := 0; row < h/2; row++ {
			n += copy(out[n:], plane[row*cs:row*cs+w/2])
		}
	}
	return out, nil
}

func (b *Backend) Close() error {
	return b.bgr.Close()
}
