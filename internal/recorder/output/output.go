// Package output writes encoded chunks to their final destination.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
)

// Output consumes encoded chunks in order. Write must copy chunk data it
// keeps past the call.
type Output interface {
	Write(c encoder.EncodedChunk) error
	Close() error
	// Files lists the files written so far, in creation order.
	Files() []string
}

// Kind selects an Output implementation.
type Kind string

const (
	KindFile     Kind = "file"
	KindCircular Kind = "circular"
	KindWebM     Kind = "webm"
)

// DefaultCircularBytes is the circular buffer budget when none is set.
const DefaultCircularBytes = 4 << 20

// Config describes where encoded output goes.
type Config struct {
	Kind          Kind
	Path          string        // "" discards output, "-" is stdout (file kind only)
	TimestampPath string        // optional "# timecode format v2" file
	Segment       time.Duration // file kind: roll to a new file at the first keyframe past this
	CircularBytes int

	// Container parameters for webm.
	Width     int
	Height    int
	FrameRate float64
}

// ParseKind matches name case-insensitively. An empty name means file.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case "":
		return KindFile, nil
	case KindFile, KindCircular, KindWebM:
		return k, nil
	default:
		return "", fmt.Errorf("unknown output kind %q", name)
	}
}

// New builds the output described by cfg for chunks produced by codec.
func New(cfg Config, codec encoder.Codec) (Output, error) {
	if cfg.Path == "" {
		return Discard{}, nil
	}
	kind, err := ParseKind(string(cfg.Kind))
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindCircular:
		return NewCircularOutput(cfg)
	case KindWebM:
		return NewWebMOutput(cfg, codec)
	default:
		return NewFileOutput(cfg)
	}
}

// Discard drops every chunk.
type Discard struct{}

func (Discard) Write(encoder.EncodedChunk) error { return nil }
func (Discard) Close() error                     { return nil }
func (Discard) Files() []string                  { return nil }
