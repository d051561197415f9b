package output

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mikeyg42/framecoder/internal/recorder/buffer"
	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

// CircularOutput keeps only the most recent encoded data in memory and
// writes it out on Close, starting at the oldest retained keyframe.
type CircularOutput struct {
	path   string
	ring   *buffer.RingBuffer
	logger recorderlog.Logger

	mu     sync.Mutex
	closed bool
	files  []string
}

// NewCircularOutput creates a circular output that writes to cfg.Path.
func NewCircularOutput(cfg Config) (*CircularOutput, error) {
	if cfg.Path == "-" {
		return nil, fmt.Errorf("circular output needs a file path")
	}
	size := cfg.CircularBytes
	if size <= 0 {
		size = DefaultCircularBytes
	}
	return &CircularOutput{
		path:   cfg.Path,
		ring:   buffer.NewRingBuffer(size),
		logger: recorderlog.L().Named("circular-output"),
	}, nil
}

// Write copies c into the ring.
func (o *CircularOutput) Write(c encoder.EncodedChunk) error {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return fmt.Errorf("circular output is closed")
	}

	return o.ring.Write(&buffer.Chunk{
		Data:            append([]byte(nil), c.Data...),
		TimestampMicros: c.TimestampMicros,
		Keyframe:        c.Keyframe,
	})
}

// Close writes the retained chunks to disk. It is idempotent.
func (o *CircularOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	chunks := o.ring.DumpFromKeyframe()
	if len(chunks) == 0 {
		o.logger.Warn("No keyframe retained, nothing written",
			recorderlog.Int("chunks", o.ring.Len()))
		return nil
	}

	f, err := os.Create(o.path)
	if err != nil {
		return fmt.Errorf("failed to create circular output file: %w", err)
	}
	w := bufio.NewWriter(f)
	var written int
	for _, c := range chunks {
		n, err := w.Write(c.Data)
		if err != nil {
			f.Close()
			return fmt.Errorf("write circular output: %w", err)
		}
		written += n
	}
	o.files = append(o.files, o.path)

	o.logger.Info("Circular buffer flushed",
		recorderlog.String("path", o.path),
		recorderlog.Int("chunks", len(chunks)),
		recorderlog.Int("bytes", written))
	return errors.Join(w.Flush(), f.Close())
}

func (o *CircularOutput) Files() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.files...)
}

// Metrics returns the ring buffer statistics.
func (o *CircularOutput) Metrics() map[string]interface{} {
	return o.ring.Metrics()
}
