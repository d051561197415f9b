package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

const timecodeHeader = "# timecode format v2\n"

// FileOutput appends raw chunk bytes to a file, optionally rolling over to
// a new file at keyframes and logging per-frame timestamps.
type FileOutput struct {
	path    string
	segment time.Duration
	logger  recorderlog.Logger

	mu       sync.Mutex
	file     io.WriteCloser // nil for stdout
	writer   *bufio.Writer
	tsFile   *os.File
	tsWriter *bufio.Writer
	files    []string
	closed   bool

	haveFirst bool
	firstTS   int64
	segStart  int64
	segIndex  int

	// Metrics
	totalBytes  atomic.Uint64
	totalChunks atomic.Uint64
	totalFiles  atomic.Uint64
}

// NewFileOutput opens cfg.Path ("-" for stdout) and the timestamp file.
func NewFileOutput(cfg Config) (*FileOutput, error) {
	if cfg.Path == "-" && cfg.Segment > 0 {
		return nil, fmt.Errorf("segmented output cannot go to stdout")
	}
	o := &FileOutput{
		path:    cfg.Path,
		segment: cfg.Segment,
		logger:  recorderlog.L().Named("file-output"),
	}

	if err := o.rotateFile(); err != nil {
		return nil, err
	}
	if cfg.TimestampPath != "" {
		f, err := os.Create(cfg.TimestampPath)
		if err != nil {
			o.closeFile()
			return nil, fmt.Errorf("failed to create timestamp file: %w", err)
		}
		o.tsFile = f
		o.tsWriter = bufio.NewWriter(f)
		o.tsWriter.WriteString(timecodeHeader)
		o.files = append(o.files, cfg.TimestampPath)
	}
	return o, nil
}

// segmentName returns the file name for segment idx. A path with a printf
// verb is formatted with idx, otherwise idx is appended before the extension.
func segmentName(path string, idx int) string {
	if strings.Contains(path, "%") {
		return fmt.Sprintf(path, idx)
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%04d%s", strings.TrimSuffix(path, ext), idx, ext)
}

// rotateFile closes the current file and opens the next one.
func (o *FileOutput) rotateFile() error {
	if err := o.closeFile(); err != nil {
		return err
	}

	if o.path == "-" {
		o.writer = bufio.NewWriter(os.Stdout)
		return nil
	}

	name := o.path
	if o.segment > 0 {
		name = segmentName(o.path, o.segIndex)
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	o.file = f
	o.writer = bufio.NewWriter(f)
	o.files = append(o.files, name)
	o.segIndex++
	o.totalFiles.Add(1)

	o.logger.Debug("Opened output file", recorderlog.String("path", name))
	return nil
}

func (o *FileOutput) closeFile() error {
	if o.writer == nil {
		return nil
	}
	var errs []error
	if err := o.writer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush output: %w", err))
	}
	if o.file != nil {
		if err := o.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output: %w", err))
		}
	}
	o.file = nil
	o.writer = nil
	return errors.Join(errs...)
}

// Write appends c and its timestamp.
func (o *FileOutput) Write(c encoder.EncodedChunk) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("file output is closed")
	}

	if !o.haveFirst {
		o.haveFirst = true
		o.firstTS = c.TimestampMicros
		o.segStart = c.TimestampMicros
	}
	if o.segment > 0 && c.Keyframe && c.TimestampMicros-o.segStart >= o.segment.Microseconds() {
		if err := o.rotateFile(); err != nil {
			return err
		}
		o.segStart = c.TimestampMicros
	}

	if _, err := o.writer.Write(c.Data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := o.writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	if o.tsWriter != nil {
		rel := c.TimestampMicros - o.firstTS
		fmt.Fprintf(o.tsWriter, "%.3f\n", float64(rel)/1000)
	}

	o.totalChunks.Add(1)
	o.totalBytes.Add(uint64(len(c.Data)))
	return nil
}

// Close flushes and closes all files. It is idempotent.
func (o *FileOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	var errs []error
	if err := o.closeFile(); err != nil {
		errs = append(errs, err)
	}
	if o.tsWriter != nil {
		if err := o.tsWriter.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush timestamps: %w", err))
		}
		if err := o.tsFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close timestamps: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Files lists the output files created so far.
func (o *FileOutput) Files() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.files...)
}

// Metrics returns output statistics
func (o *FileOutput) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"path":         o.path,
		"total_bytes":  o.totalBytes.Load(),
		"total_chunks": o.totalChunks.Load(),
		"total_files":  o.totalFiles.Load(),
	}
}
