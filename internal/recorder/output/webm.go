package output

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"github.com/google/uuid"

	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

// WebMOutput muxes VP8 chunks into a single-track WebM file.
type WebMOutput struct {
	path   string
	writer webm.BlockWriteCloser
	logger recorderlog.Logger

	mu        sync.Mutex
	closed    bool
	haveFirst bool
	firstTS   int64
	blocks    int
}

// NewWebMOutput creates cfg.Path and writes the WebM header.
func NewWebMOutput(cfg Config, codec encoder.Codec) (*WebMOutput, error) {
	if codec != encoder.CodecVP8 {
		return nil, fmt.Errorf("webm output needs vp8, got %s", codec)
	}
	if cfg.Path == "-" {
		return nil, fmt.Errorf("webm output needs a file path")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid webm resolution: %dx%d", cfg.Width, cfg.Height)
	}
	fps := cfg.FrameRate
	if fps <= 0 {
		fps = 30
	}

	file, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	ws, err := webm.NewSimpleBlockWriter(file,
		[]webm.TrackEntry{
			{
				Name:            "Video",
				TrackNumber:     1,
				TrackUID:        uint64(uuid.New().ID()),
				CodecID:         "V_VP8",
				TrackType:       1,
				DefaultDuration: uint64(float64(time.Second) / fps),
				Video: &webm.Video{
					PixelWidth:  uint64(cfg.Width),
					PixelHeight: uint64(cfg.Height),
				},
			},
		},
	)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create WebM writer: %w", err)
	}

	return &WebMOutput{
		path:   cfg.Path,
		writer: ws[0],
		logger: recorderlog.L().Named("webm-output"),
	}, nil
}

// Write adds c as a SimpleBlock timed in milliseconds from the first chunk.
func (o *WebMOutput) Write(c encoder.EncodedChunk) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("webm output is closed")
	}
	if !o.haveFirst {
		if !c.Keyframe {
			// A WebM stream must open on a keyframe.
			return nil
		}
		o.haveFirst = true
		o.firstTS = c.TimestampMicros
	}

	if _, err := o.writer.Write(c.Keyframe, (c.TimestampMicros-o.firstTS)/1000, c.Data); err != nil {
		return fmt.Errorf("write webm block: %w", err)
	}
	o.blocks++
	return nil
}

// Close finalises the file. It is idempotent.
func (o *WebMOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	o.logger.Info("WebM file closed",
		recorderlog.String("path", o.path),
		recorderlog.Int("blocks", o.blocks))
	return o.writer.Close()
}

func (o *WebMOutput) Files() []string { return []string{o.path} }
