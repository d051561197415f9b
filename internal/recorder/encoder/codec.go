package encoder

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
)

// Codec names a backend.
type Codec string

const (
	CodecYUV420 Codec = "yuv420" // pass-through
	CodecMJPEG  Codec = "mjpeg"
	CodecVP8    Codec = "vp8"
	CodecH264   Codec = "h264"
)

var knownCodecs = []Codec{CodecYUV420, CodecMJPEG, CodecVP8, CodecH264}

// ParseCodec matches name case-insensitively against the known codecs.
func ParseCodec(name string) (Codec, error) {
	want := Codec(strings.ToLower(strings.TrimSpace(name)))
	for _, c := range knownCodecs {
		if c == want {
			return c, nil
		}
	}
	return "", NewEncoderError(ErrCodeUnknownCodec, fmt.Sprintf("unrecognised codec %q", name), true)
}

// Packet is what a backend produced for one frame. Empty Data means the
// backend produced nothing for this frame. Release, when set, is called
// once the packet has been delivered.
type Packet struct {
	Data     []byte
	Keyframe bool
	Release  func()
}

func (p Packet) release() {
	if p.Release != nil {
		p.Release()
	}
}

// Backend is the codec-specific step between dequeue and OutputReady.
// Encode is only ever called from the pipeline worker.
type Backend interface {
	Encode(f buffer.RawFrame) (Packet, error)
	Close() error
}

// Factory builds a backend for cfg.
type Factory func(cfg Config) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Codec]Factory)
)

// Register makes a backend available to New. Backend packages call it from
// init. Registering an unknown codec or the same codec twice panics.
func Register(c Codec, f Factory) {
	if _, err := ParseCodec(string(c)); err != nil {
		panic(fmt.Sprintf("encoder: register %q: %v", c, err))
	}
	if f == nil {
		panic(fmt.Sprintf("encoder: register %q: nil factory", c))
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[c]; dup {
		panic(fmt.Sprintf("encoder: codec %q registered twice", c))
	}
	registry[c] = f
}

func lookup(c Codec) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[c]
	return f, ok
}

// Available lists the codecs with a registered backend, sorted.
func Available() []Codec {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Codec, 0, len(registry))
	for c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known lists every codec name ParseCodec accepts.
func Known() []Codec {
	out := make([]Codec, len(knownCodecs))
	copy(out, knownCodecs)
	return out
}
