package encoder

import "github.com/mikeyg42/framecoder/internal/recorder/buffer"

func init() {
	Register(CodecYUV420, func(Config) (Backend, error) { return nullBackend{}, nil })
}

// nullBackend hands the raw buffer on as the output. The payload aliases
// the capture buffer, so it must reach OutputReady before InputDone.
type nullBackend struct{}

func (nullBackend) Encode(f buffer.RawFrame) (Packet, error) {
	return Packet{Data: f.Data(), Keyframe: true}, nil
}

func (nullBackend) Close() error { return nil }
