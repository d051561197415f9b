package encoder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
	"github.com/mikeyg42/framecoder/internal/recorder/metadata"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

// Pipeline is the Encoder implementation shared by every backend: one queue,
// one worker goroutine, one backend, one metadata emitter.
type Pipeline struct {
	codec   Codec
	backend Backend
	sink    Sink
	emitter *metadata.Emitter
	queue   *queue
	logger  recorderlog.Logger
	stats   Stats

	waitTimeout time.Duration
	emitterSet  bool

	done         chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

var _ Encoder = (*Pipeline)(nil)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger overrides the default logger.
func WithLogger(l recorderlog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithEmitter uses e instead of opening Config.MetadataPath. The pipeline
// takes ownership: e is closed on Shutdown, or by New if construction
// fails. A nil e disables metadata.
func WithEmitter(e *metadata.Emitter) Option {
	return func(p *Pipeline) {
		p.emitter = e
		p.emitterSet = true
	}
}

// WithWaitTimeout sets how often an idle worker re-checks for shutdown.
func WithWaitTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.waitTimeout = d
		}
	}
}

// New builds the backend named by cfg.Codec and starts its worker.
// Every failure happens before the worker exists.
func New(cfg Config, sink Sink, opts ...Option) (*Pipeline, error) {
	codec, err := ParseCodec(cfg.Codec)
	if err != nil {
		return nil, abandon(opts, err)
	}
	if sink == nil {
		return nil, abandon(opts, NewEncoderError(ErrCodeInvalidConfig, "nil sink", true))
	}
	if err := cfg.Validate(); err != nil {
		return nil, abandon(opts, wrapEncoderError(ErrCodeInvalidConfig, "invalid encoder config", true, err))
	}
	factory, ok := lookup(codec)
	if !ok {
		return nil, abandon(opts, NewEncoderError(ErrCodeBackendUnavailable,
			fmt.Sprintf("codec %q is not built into this binary", codec), true))
	}

	p := newPipeline(codec, sink, opts)
	if !p.emitterSet {
		format := cfg.MetadataFormat
		if format == "" {
			format = metadata.FormatJSON
		}
		p.emitter, err = metadata.Open(cfg.MetadataPath, format)
		if err != nil {
			return nil, wrapEncoderError(ErrCodeMetadataOutput, "open metadata output", true, err)
		}
	}

	backend, err := factory(cfg)
	if err != nil {
		if cerr := p.emitter.Close(); cerr != nil {
			p.logger.Warn("Failed to close metadata output", recorderlog.Error(cerr))
		}
		var ee *EncoderError
		if errors.As(err, &ee) {
			return nil, err
		}
		return nil, wrapEncoderError(ErrCodeBackendInit, fmt.Sprintf("create %s backend", codec), true, err)
	}

	p.start(backend)

	p.logger.Info("Encoder started",
		recorderlog.String("codec", string(codec)),
		recorderlog.Int("width", cfg.Info.Width),
		recorderlog.Int("height", cfg.Info.Height),
		recorderlog.String("metadata", cfg.MetadataPath))
	return p, nil
}

// abandon closes an emitter handed in through WithEmitter when New fails
// before the pipeline exists.
func abandon(opts []Option, err error) error {
	var p Pipeline
	for _, opt := range opts {
		opt(&p)
	}
	if p.emitterSet {
		if cerr := p.emitter.Close(); cerr != nil {
			return errors.Join(err, fmt.Errorf("close metadata output: %w", cerr))
		}
	}
	return err
}

func newPipeline(codec Codec, sink Sink, opts []Option) *Pipeline {
	p := &Pipeline{
		codec:       codec,
		sink:        sink,
		logger:      recorderlog.L().Named("encoder"),
		waitTimeout: DefaultWaitTimeout,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named(string(codec))
	return p
}

func (p *Pipeline) start(b Backend) {
	p.backend = b
	p.queue = newQueue(p.waitTimeout)
	go p.run()
}

// Codec returns the backend in use.
func (p *Pipeline) Codec() Codec { return p.codec }

// Submit queues f for the worker. After Shutdown the handle is returned
// through InputDone straight away and ErrEncoderClosed is reported.
func (p *Pipeline) Submit(f buffer.RawFrame) error {
	if f.Handle == nil {
		return NewEncoderError(ErrCodeInvalidFrame, "frame has no buffer handle", false)
	}
	if !p.queue.push(pending{frame: f, enqueued: time.Now()}) {
		p.sink.InputDone(f.Handle)
		return ErrEncoderClosed
	}
	p.stats.frameIn()
	return nil
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() StatsSnapshot {
	snap := p.stats.Snapshot()
	snap.QueueDepth = p.queue.depth()
	return snap
}

// Shutdown stops the worker within one wait interval, returns every queued
// handle through InputDone without output, then closes the backend and the
// metadata output. It is safe to call more than once.
func (p *Pipeline) Shutdown() error {
	p.shutdownOnce.Do(func() {
		p.queue.abort()
		<-p.done

		left := p.queue.drain()
		for _, it := range left {
			p.stats.drained()
			p.sink.InputDone(it.frame.Handle)
		}

		var errs []error
		if err := p.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s backend: %w", p.codec, err))
		}
		if err := p.emitter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metadata output: %w", err))
		}
		p.shutdownErr = errors.Join(errs...)

		snap := p.stats.Snapshot()
		p.logger.Info("Encoder stopped",
			recorderlog.Uint64("frames_in", snap.FramesIn),
			recorderlog.Uint64("packets_out", snap.PacketsOut),
			recorderlog.Uint64("dropped", snap.DroppedFrames),
			recorderlog.Int("drained", len(left)))
	})
	return p.shutdownErr
}

func (p *Pipeline) run() {
	defer close(p.done)
	for {
		it, ok := p.queue.next()
		if !ok {
			return
		}
		p.process(it)
	}
}

// process runs one frame through the backend. Whatever happens, the handle
// goes back to its owner exactly once, after any output built on it.
func (p *Pipeline) process(it pending) {
	f := it.frame
	defer p.sink.InputDone(f.Handle)

	start := time.Now()
	pkt, err := p.encode(f)
	p.stats.encodeTime(time.Since(start))
	if err != nil {
		p.stats.dropped()
		p.logger.Warn("Frame dropped",
			recorderlog.Int64("timestamp_us", f.TimestampMicros),
			recorderlog.Error(err))
		return
	}
	defer pkt.release()

	if len(pkt.Data) == 0 {
		return
	}

	p.sink.OutputReady(EncodedChunk{
		Data:            pkt.Data,
		TimestampMicros: f.TimestampMicros,
		Keyframe:        pkt.Keyframe,
		Metadata:        f.Metadata,
	})
	if err := p.emitter.Write(f.Metadata); err != nil {
		p.logger.Error("Failed to write metadata", recorderlog.Error(err))
	}
	p.stats.packetOut(len(pkt.Data), pkt.Keyframe)

	if lat := time.Since(it.enqueued); lat > 4*p.waitTimeout {
		p.logger.Debug("Slow frame", recorderlog.Duration("latency", lat))
	}
}

func (p *Pipeline) encode(f buffer.RawFrame) (pkt Packet, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewEncoderError(ErrCodeBackendPanic, fmt.Sprintf("backend panic: %v", r), false)
		}
	}()
	pkt, err = p.backend.Encode(f)
	if err != nil {
		var ee *EncoderError
		if !errors.As(err, &ee) {
			err = wrapEncoderError(ErrCodeEncodeFailed, "encode frame", false, err)
		}
	}
	return pkt, err
}
