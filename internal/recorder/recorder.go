// Package recorder runs one encode session: a capture source lends frames
// to the encoder, encoded chunks go to an output, and the finished session
// is optionally archived.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/mikeyg42/framecoder/internal/capture"
	"github.com/mikeyg42/framecoder/internal/config"
	"github.com/mikeyg42/framecoder/internal/monitor"
	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
	"github.com/mikeyg42/framecoder/internal/recorder/output"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
	"github.com/mikeyg42/framecoder/internal/recorder/storage"
)

// Service owns every component of a session.
type Service struct {
	config  *config.Config
	logger  recorderlog.Logger
	metrics *Metrics

	source   capture.Source
	out      output.Output
	encoder  *encoder.Pipeline
	session  *storage.Session
	archiver *storage.Archiver
	catalog  storage.Catalog

	running atomic.Bool
}

// Metrics tracks what the sink saw.
type Metrics struct {
	ChunksWritten atomic.Uint64
	BytesWritten  atomic.Uint64
	Keyframes     atomic.Uint64
	WriteErrors   atomic.Uint64
}

// New builds the session bottom-up: the source owns the buffers, the
// output receives chunks, the encoder connects the two. Archive and
// catalog failures only disable archiving.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	s := &Service{
		config:  cfg,
		logger:  recorderlog.L().Named("recorder"),
		metrics: &Metrics{},
	}

	if err := s.checkDiskSpace(ctx); err != nil {
		return nil, err
	}

	ecfg := cfg.EncoderConfig()
	codec, err := encoder.ParseCodec(ecfg.Codec)
	if err != nil {
		return nil, err
	}

	s.source, err = newSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture source: %w", err)
	}

	s.out, err = output.New(cfg.OutputConfig(), codec)
	if err != nil {
		s.source.Close()
		return nil, fmt.Errorf("failed to open output: %w", err)
	}

	sink := encoder.Callbacks{Output: s.writeChunk, Input: s.source.InputDone}
	s.encoder, err = encoder.New(ecfg, sink, encoder.WithWaitTimeout(cfg.Pipeline.WaitTimeout))
	if err != nil {
		s.out.Close()
		s.source.Close()
		return nil, err
	}

	s.session = storage.NewSession(codec, cfg.Video.Width, cfg.Video.Height)
	if err := s.openArchive(ctx); err != nil {
		s.logger.Warn("Archiving disabled", recorderlog.Error(err))
	}
	return s, nil
}

func newSource(cfg *config.Config) (capture.Source, error) {
	switch cfg.Capture.Source {
	case "camera":
		return capture.NewCamera(capture.CameraConfig{
			DeviceID:  cfg.Capture.Device,
			Info:      cfg.StreamInfo(),
			FrameRate: cfg.Video.FrameRate,
			Buffers:   cfg.Capture.Buffers,
			Frames:    cfg.Capture.Frames,
		})
	default:
		return capture.NewTestPattern(capture.TestPatternConfig{
			Info:      cfg.StreamInfo(),
			FrameRate: cfg.Video.FrameRate,
			Buffers:   cfg.Capture.Buffers,
			Frames:    cfg.Capture.Frames,
		})
	}
}

// openArchive connects whichever of the store and catalog are enabled.
func (s *Service) openArchive(ctx context.Context) error {
	if !s.config.Archive.Enabled && !s.config.Catalog.Enabled {
		return nil
	}
	minioCfg, pgCfg := s.config.StorageConfigs()

	var store storage.ObjectStore
	if s.config.Archive.Enabled {
		ms, err := storage.NewMinIOStore(ctx, minioCfg)
		if err != nil {
			return err
		}
		store = ms
	}
	if s.config.Catalog.Enabled {
		c, err := storage.NewPostgresCatalog(ctx, pgCfg)
		if err != nil {
			return err
		}
		s.catalog = c
	}
	s.archiver = storage.NewArchiver(store, s.catalog, s.config.Archive.Prefix)
	return nil
}

// writeChunk runs on the encoder worker.
func (s *Service) writeChunk(c encoder.EncodedChunk) {
	if err := s.out.Write(c); err != nil {
		if s.metrics.WriteErrors.Add(1) == 1 {
			s.logger.Error("Failed to write encoded output", recorderlog.Error(err))
		}
		return
	}
	s.metrics.ChunksWritten.Add(1)
	s.metrics.BytesWritten.Add(uint64(len(c.Data)))
	if c.Keyframe {
		s.metrics.Keyframes.Add(1)
	}
}

// Run captures until the source stops or ctx is cancelled, then tears the
// session down in dependency order. A Service runs once.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("session already ran")
	}

	s.logger.Info("Session started",
		recorderlog.String("session", s.session.ID.String()),
		recorderlog.String("codec", string(s.encoder.Codec())),
		recorderlog.String("source", s.config.Capture.Source),
		recorderlog.String("output", s.config.Output.Path))

	monCtx, cancelMon := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if s.config.Monitor.Enabled {
		r := monitor.NewReporter(s.encoder, s.config.Monitor.Interval, monitor.WithCapture(s.source))
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(monCtx)
		}()
	}

	runErr := s.source.Run(ctx, s.encoder)
	cancelMon()
	wg.Wait()

	return errors.Join(runErr, s.shutdown())
}

func (s *Service) shutdown() error {
	var errs []error
	if err := s.encoder.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := s.out.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output: %w", err))
	}
	if err := s.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close capture: %w", err))
	}
	if n := s.metrics.WriteErrors.Load(); n > 0 {
		errs = append(errs, fmt.Errorf("%d chunks could not be written", n))
	}

	stats := s.encoder.Stats()
	s.session.Finish(stats)
	s.logger.Info("Session finished",
		recorderlog.String("session", s.session.ID.String()),
		recorderlog.Uint64("frames", stats.PacketsOut),
		recorderlog.Uint64("dropped", stats.DroppedFrames),
		recorderlog.Uint64("drained", stats.DrainedFrames),
		recorderlog.Uint64("bytes_written", s.metrics.BytesWritten.Load()),
		recorderlog.Duration("duration", s.session.Duration()))

	if s.archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Pipeline.ShutdownTimeout)
		defer cancel()
		files := storage.Files{Output: s.out.Files(), Metadata: s.config.Metadata.Path}
		if err := s.archiver.Archive(ctx, s.session, files); err != nil {
			errs = append(errs, err)
		}
	}
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Session returns the session record. It is complete once Run returns.
func (s *Service) Session() *storage.Session { return s.session }

// EncoderStats returns the live encoder counters.
func (s *Service) EncoderStats() encoder.StatsSnapshot { return s.encoder.Stats() }

// CaptureStats returns the live capture counters.
func (s *Service) CaptureStats() capture.Stats { return s.source.Stats() }

// checkDiskSpace verifies the output directory has room before any buffer
// is allocated.
func (s *Service) checkDiskSpace(ctx context.Context) error {
	minFree := uint64(s.config.Output.MinFreeMB) * 1024 * 1024
	path := s.config.Output.Path
	if minFree == 0 || path == "" || path == "-" {
		return nil
	}

	usage, err := disk.UsageWithContext(ctx, filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("failed to stat output dir: %w", err)
	}
	if usage.Free < minFree {
		return fmt.Errorf("insufficient disk space: %d MB available, %d MB required",
			usage.Free/(1024*1024), s.config.Output.MinFreeMB)
	}

	s.logger.Debug("Disk space check passed",
		recorderlog.Uint64("available_mb", usage.Free/(1024*1024)),
		recorderlog.Int("required_mb", s.config.Output.MinFreeMB))
	return nil
}
