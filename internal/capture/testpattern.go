package capture

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
	"github.com/mikeyg42/framecoder/internal/recorder/metadata"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

// TestPatternConfig configures a synthetic source.
type TestPatternConfig struct {
	Info      buffer.StreamInfo
	FrameRate float64
	Buffers   int
	Frames    int // stop after this many submitted frames, 0 = until cancelled
}

// TestPattern renders a moving gradient at a fixed rate. When the encoder
// holds every buffer the frame is skipped, so capture never waits on it.
type TestPattern struct {
	*base
	interval time.Duration
	frames   int
	seq      uint64
}

var _ Source = (*TestPattern)(nil)

// NewTestPattern allocates the pool for a synthetic source.
func NewTestPattern(cfg TestPatternConfig) (*TestPattern, error) {
	if cfg.FrameRate <= 0 || cfg.FrameRate > 240 {
		return nil, fmt.Errorf("invalid framerate: %g", cfg.FrameRate)
	}
	b, err := newBase(cfg.Info, cfg.Buffers, "testpattern")
	if err != nil {
		return nil, err
	}
	return &TestPattern{
		base:     b,
		interval: time.Duration(float64(time.Second) / cfg.FrameRate),
		frames:   cfg.Frames,
	}, nil
}

// Run produces frames on a ticker until ctx is done or the frame limit is hit.
func (s *TestPattern) Run(ctx context.Context, sub Submitter) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start := time.Now()
	s.logger.Info("Test pattern started",
		recorderlog.Int("width", s.info.Width),
		recorderlog.Int("height", s.info.Height),
		recorderlog.Duration("interval", s.interval))

	for s.frames == 0 || int(s.captured.Load()) < s.frames {
		var now time.Time
		select {
		case <-ctx.Done():
			return nil
		case now = <-ticker.C:
		}

		h, ok := s.pool.TryGet()
		if !ok {
			s.skipped.Add(1)
			s.logger.Debug("No free buffer, frame skipped")
			continue
		}

		ts := now.Sub(start)
		s.render(h.Bytes(), s.seq)
		f := buffer.RawFrame{
			Handle:          h,
			Size:            s.info.FrameSize(),
			Info:            s.info,
			TimestampMicros: ts.Microseconds(),
			Metadata:        s.metadata(ts),
		}
		s.seq++

		ok, err := s.submit(sub, f)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

// render draws a diagonal luma ramp that scrolls by 4 pixels per frame over
// a slowly rotating chroma tint.
func (s *TestPattern) render(mem []byte, seq uint64) {
	info := s.info
	shift := int(seq * 4)
	for row := 0; row < info.Height; row++ {
		line := mem[row*info.Stride : row*info.Stride+info.Width]
		for col := range line {
			line[col] = byte(col + row + shift)
		}
	}

	angle := float64(seq%360) * math.Pi / 180
	cb := byte(128 + 40*math.Cos(angle))
	cr := byte(128 + 40*math.Sin(angle))
	ls, cs := info.LumaSize(), info.ChromaSize()
	fill(mem[ls:ls+cs], cb)
	fill(mem[ls+cs:ls+2*cs], cr)
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func (s *TestPattern) metadata(ts time.Duration) metadata.Record {
	exposure := s.interval.Microseconds() * 8 / 10
	return metadata.NewRecord(
		metadata.Int64("SensorTimestamp", ts.Nanoseconds()),
		metadata.Int64("FrameSequence", int64(s.seq)),
		metadata.Int64("FrameDuration", s.interval.Microseconds()),
		metadata.Int64("ExposureTime", exposure),
		metadata.Float("AnalogueGain", 1+float64(s.seq%8)*0.125),
		metadata.Floats("ColourGains", 1.8, 1.6),
		metadata.Rectangle("ScalerCrop", 0, 0, s.info.Width, s.info.Height),
		metadata.Float("Lux", 400),
	)
}
