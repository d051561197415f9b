package metadata

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Format selects the framing of the metadata stream.
type Format string

const (
	FormatText Format = "txt"
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned by ParseFormat for names other than txt/json.
var ErrUnknownFormat = errors.New("unknown metadata format")

// StdoutPath selects standard output as the metadata destination.
const StdoutPath = "-"

// ParseFormat matches name case-insensitively. An empty name means json.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// Emitter writes one serialized record per completed frame, in the order
// Write is called.
//
// JSON framing writes "[" on open and "\n]\n" on Close; records are
// separated by "," placed before the newline that opens the next record.
// A value is wrapped in double quotes only when it contains '/'.
// Text framing writes "key=value" lines followed by a blank line.
type Emitter struct {
	mu      sync.Mutex
	w       *bufio.Writer
	closer  io.Closer
	format  Format
	started bool
	closed  bool
	records int
	err     error
}

// Open creates an emitter for path. An empty path returns a disabled
// emitter whose methods do nothing; "-" writes to standard output.
func Open(path string, format Format) (*Emitter, error) {
	if path == "" {
		return nil, nil
	}
	if format != FormatJSON && format != FormatText {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
	if path == StdoutPath {
		return NewEmitter(os.Stdout, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata file %s: %w", path, err)
	}
	e, err := NewEmitter(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	e.closer = f
	return e, nil
}

// NewEmitter wraps w. The JSON opening bracket is written immediately.
func NewEmitter(w io.Writer, format Format) (*Emitter, error) {
	if format != FormatJSON && format != FormatText {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
	}
	e := &Emitter{
		w:      bufio.NewWriter(w),
		format: format,
	}
	if format == FormatJSON {
		e.w.WriteString("[")
		if err := e.w.Flush(); err != nil {
			return nil, fmt.Errorf("write metadata header: %w", err)
		}
	}
	return e, nil
}

// Format reports the framing in use.
func (e *Emitter) Format() Format {
	if e == nil {
		return ""
	}
	return e.format
}

// Records returns how many records have been written.
func (e *Emitter) Records() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records
}

// Write appends rec to the stream and flushes it.
func (e *Emitter) Write(rec Record) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.New("metadata emitter closed")
	}
	if e.err != nil {
		return e.err
	}

	switch e.format {
	case FormatText:
		rec.each(func(en Entry) {
			e.w.WriteString(en.Key)
			e.w.WriteByte('=')
			e.w.WriteString(en.Value)
			e.w.WriteByte('\n')
		})
		e.w.WriteByte('\n')
	case FormatJSON:
		if e.started {
			e.w.WriteByte(',')
		}
		e.w.WriteString("\n{")
		first := true
		rec.each(func(en Entry) {
			if !first {
				e.w.WriteByte(',')
			}
			e.w.WriteString("\n    \"")
			e.w.WriteString(en.Key)
			e.w.WriteString("\": ")
			quote := strings.ContainsRune(en.Value, '/')
			if quote {
				e.w.WriteByte('"')
			}
			e.w.WriteString(en.Value)
			if quote {
				e.w.WriteByte('"')
			}
			first = false
		})
		e.w.WriteString("\n}")
		e.started = true
	}
	e.records++

	if err := e.w.Flush(); err != nil {
		e.err = fmt.Errorf("write metadata: %w", err)
		return e.err
	}
	return nil
}

// Close terminates the stream. In JSON mode the closing bracket is written
// whether or not any record was emitted. Close is idempotent.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.format == FormatJSON {
		e.w.WriteString("\n]\n")
	}
	if err := e.w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush metadata: %w", err))
	}
	if e.closer != nil {
		if err := e.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metadata file: %w", err))
		}
	}
	return errors.Join(errs...)
}
