// Package monitor periodically logs encoder throughput next to host load.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mikeyg42/framecoder/internal/capture"
	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

// EncoderStats is satisfied by *encoder.Pipeline.
type EncoderStats interface {
	Stats() encoder.StatsSnapshot
}

// CaptureStats is satisfied by every capture.Source.
type CaptureStats interface {
	Stats() capture.Stats
}

// HostStats is one reading of host load.
type HostStats struct {
	CPUPercent     float64
	RAMPercent     float64
	AvailableBytes uint64
}

// HostProbe reads host load.
type HostProbe func(ctx context.Context) (HostStats, error)

// SystemProbe reads CPU and memory through gopsutil. The CPU figure is the
// usage since the previous call.
func SystemProbe(ctx context.Context) (HostStats, error) {
	var hs HostStats

	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return hs, fmt.Errorf("failed to get mem stats: %w", err)
	}
	hs.RAMPercent = v.UsedPercent
	hs.AvailableBytes = v.Available

	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return hs, fmt.Errorf("failed to get cpu stats: %w", err)
	}
	if len(pct) > 0 {
		hs.CPUPercent = pct[0]
	}
	return hs, nil
}

// Sample is what one report tick observed.
type Sample struct {
	Encoder  encoder.StatsSnapshot
	Capture  *capture.Stats
	Host     *HostStats
	FPS      float64 // packets per second since the previous sample
	BitRate  float64 // kbps since the previous sample
	Interval time.Duration
}

// Reporter logs a Sample every interval.
type Reporter struct {
	enc      EncoderStats
	capture  CaptureStats
	probe    HostProbe
	interval time.Duration
	logger   recorderlog.Logger

	last     encoder.StatsSnapshot
	lastTime time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithCapture adds capture counters to each report.
func WithCapture(c CaptureStats) Option {
	return func(r *Reporter) { r.capture = c }
}

// WithProbe replaces the gopsutil host probe. A nil probe skips host stats.
func WithProbe(p HostProbe) Option {
	return func(r *Reporter) { r.probe = p }
}

// WithLogger overrides the default logger.
func WithLogger(l recorderlog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReporter builds a Reporter for enc.
func NewReporter(enc EncoderStats, interval time.Duration, opts ...Option) *Reporter {
	r := &Reporter{
		enc:      enc,
		probe:    SystemProbe,
		interval: interval,
		logger:   recorderlog.L().Named("monitor"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reports until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.last = r.enc.Stats()
	r.lastTime = time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report(r.Collect(ctx))
		}
	}
}

// Collect takes a sample and advances the rate window.
func (r *Reporter) Collect(ctx context.Context) Sample {
	now := time.Now()
	snap := r.enc.Stats()
	s := Sample{Encoder: snap}

	if !r.lastTime.IsZero() {
		s.Interval = now.Sub(r.lastTime)
		delta := encoder.StatsSnapshot{
			PacketsOut:   snap.PacketsOut - r.last.PacketsOut,
			BytesEncoded: snap.BytesEncoded - r.last.BytesEncoded,
		}
		s.FPS = delta.CalculateFPS(s.Interval)
		s.BitRate = delta.CalculateBitRate(s.Interval)
	}
	r.last, r.lastTime = snap, now

	if r.capture != nil {
		cs := r.capture.Stats()
		s.Capture = &cs
	}
	if r.probe != nil {
		hs, err := r.probe(ctx)
		if err != nil {
			r.logger.Debug("Host stats unavailable", recorderlog.Error(err))
		} else {
			s.Host = &hs
		}
	}
	return s
}

func (r *Reporter) report(s Sample) {
	fields := []recorderlog.Field{
		recorderlog.Uint64("frames_in", s.Encoder.FramesIn),
		recorderlog.Uint64("packets_out", s.Encoder.PacketsOut),
		recorderlog.Uint64("dropped", s.Encoder.DroppedFrames),
		recorderlog.Int("queue_depth", s.Encoder.QueueDepth),
		recorderlog.Float64("fps", s.FPS),
		recorderlog.Float64("kbps", s.BitRate),
		recorderlog.Duration("avg_encode", s.Encoder.AverageEncodeTime()),
	}
	if s.Capture != nil {
		fields = append(fields,
			recorderlog.Uint64("skipped", s.Capture.Skipped),
			recorderlog.Int("in_flight", s.Capture.InFlight))
	}
	if s.Host != nil {
		fields = append(fields,
			recorderlog.Float64("cpu_percent", s.Host.CPUPercent),
			recorderlog.Float64("ram_percent", s.Host.RAMPercent),
			recorderlog.Uint64("mem_available", s.Host.AvailableBytes))
	}
	r.logger.Info("Encoder stats", fields...)
}
