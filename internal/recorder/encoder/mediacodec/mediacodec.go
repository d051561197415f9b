// Package mediacodec registers VP8 and H.264 backends built on the
// pion/mediadevices software encoders (libvpx and libx264).
package mediacodec

import (
	"fmt"
	"image"
	"io"

	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/codec/x264"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/mikeyg42/framecoder/internal/imgconv"
	"github.com/mikeyg42/framecoder/internal/recorder/bitstream"
	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
)

func init() {
	encoder.Register(encoder.CodecVP8, NewVP8)
	encoder.Register(encoder.CodecH264, NewH264)
}

// videoEncoderBuilder is the part of the mediadevices codec params we use.
type videoEncoderBuilder interface {
	BuildVideoEncoder(r video.Reader, p prop.Media) (codec.ReadCloser, error)
}

// Backend feeds one frame at a time into a mediadevices encoder. The encoder
// pulls its input through a video.Reader, so Encode parks the frame in
// current and the reader hands it over on the next Read.
type Backend struct {
	name     encoder.Codec
	rc       codec.ReadCloser
	current  image.Image
	keyframe func([]byte) bool
}

// NewVP8 builds a libvpx VP8 backend.
func NewVP8(cfg encoder.Config) (encoder.Backend, error) {
	params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("failed to create VP8 params: %w", err)
	}
	if cfg.Bitrate > 0 {
		params.BitRate = cfg.Bitrate
	}
	if cfg.KeyframePeriod > 0 {
		params.KeyFrameInterval = cfg.KeyframePeriod
	}
	params.RateControlEndUsage = vpx.RateControlVBR
	return build(encoder.CodecVP8, &params, cfg, bitstream.VP8Keyframe)
}

// NewH264 builds a libx264 H.264 backend producing Annex-B access units.
func NewH264(cfg encoder.Config) (encoder.Backend, error) {
	params, err := x264.NewParams()
	if err != nil {
		return nil, fmt.Errorf("failed to create x264 params: %w", err)
	}
	if cfg.Bitrate > 0 {
		params.BitRate = cfg.Bitrate
	}
	if cfg.KeyframePeriod > 0 {
		params.KeyFrameInterval = cfg.KeyframePeriod
	}
	return build(encoder.CodecH264, &params, cfg, bitstream.H264Keyframe)
}

func build(name encoder.Codec, builder videoEncoderBuilder, cfg encoder.Config, keyframe func([]byte) bool) (encoder.Backend, error) {
	if err := cfg.Info.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	fps := cfg.FrameRate
	if fps <= 0 {
		fps = 30
	}

	b := &Backend{name: name, keyframe: keyframe}
	media := prop.Media{
		Video: prop.Video{
			Width:       cfg.Info.Width,
			Height:      cfg.Info.Height,
			FrameRate:   float32(fps),
			FrameFormat: frame.FormatI420,
		},
	}
	rc, err := builder.BuildVideoEncoder(video.ReaderFunc(b.read), media)
	if err != nil {
		return nil, fmt.Errorf("build %s encoder: %w", name, err)
	}
	b.rc = rc
	return b, nil
}

func (b *Backend) read() (image.Image, func(), error) {
	if b.current == nil {
		return nil, func() {}, io.EOF
	}
	img := b.current
	b.current = nil
	return img, func() {}, nil
}

func (b *Backend) Encode(f buffer.RawFrame) (encoder.Packet, error) {
	img, err := imgconv.View(f)
	if err != nil {
		return encoder.Packet{}, err
	}
	b.current = img
	data, release, err := b.rc.Read()
	b.current = nil
	if err != nil {
		return encoder.Packet{}, fmt.Errorf("%s encode: %w", b.name, err)
	}
	return encoder.Packet{
		Data:     data,
		Keyframe: b.keyframe(data),
		Release:  release,
	}, nil
}

func (b *Backend) Close() error {
	return b.rc.Close()
}
