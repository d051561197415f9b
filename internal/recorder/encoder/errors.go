package encoder

import (
	"errors"
	"fmt"
)

// ErrEncoderClosed is returned by Submit after Shutdown.
var ErrEncoderClosed = errors.New("encoder closed")

// EncoderError represents an encoder-specific error
type EncoderError struct {
	Code    int
	Message string
	Fatal   bool
	Err     error
}

func (e *EncoderError) Error() string {
	severity := "recoverable"
	if e.Fatal {
		severity = "fatal"
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] encoder error %d: %s: %v", severity, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] encoder error %d: %s", severity, e.Code, e.Message)
}

func (e *EncoderError) Unwrap() error { return e.Err }

// NewEncoderError creates a new encoder error
func NewEncoderError(code int, message string, fatal bool) *EncoderError {
	return &EncoderError{
		Code:    code,
		Message: message,
		Fatal:   fatal,
	}
}

func wrapEncoderError(code int, message string, fatal bool, err error) *EncoderError {
	e := NewEncoderError(code, message, fatal)
	e.Err = err
	return e
}

// IsFatal reports whether err carries a fatal *EncoderError.
func IsFatal(err error) bool {
	var ee *EncoderError
	return errors.As(err, &ee) && ee.Fatal
}

// Common error codes
const (
	ErrCodeUnknownCodec = 1001 + iota
	ErrCodeBackendUnavailable
	ErrCodeInvalidConfig
	ErrCodeMetadataOutput
	ErrCodeBackendInit
	ErrCodeEncodeFailed
	ErrCodeBackendPanic
	ErrCodeInvalidFrame
)
