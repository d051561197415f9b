// Package storage archives what an encode session produced: the output and
// metadata files go to object storage, the session summary to a catalog.
package storage

import (
	"context"
	"errors"
	"io"
)

// ObjectStore is the subset of object storage an archive run needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, opts ...PutOption) error
	PutFile(ctx context.Context, key, filePath string, opts ...PutOption) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

// PutOption configures Put operations
type PutOption interface {
	applyPut(*putOptions)
}

type putOptions struct {
	ContentType string
	Metadata    map[string]string
	ProgressFn  ProgressFunc
}

// ProgressFunc is called to report upload progress
type ProgressFunc func(bytesTransferred int64, totalBytes int64)

type contentTypeOption string

func (o contentTypeOption) applyPut(opts *putOptions) { opts.ContentType = string(o) }

type metadataOption map[string]string

func (o metadataOption) applyPut(opts *putOptions) { opts.Metadata = o }

type progressOption struct{ fn ProgressFunc }

func (o progressOption) applyPut(opts *putOptions) { opts.ProgressFn = o.fn }

func WithContentType(contentType string) PutOption {
	return contentTypeOption(contentType)
}

func WithMetadata(metadata map[string]string) PutOption {
	return metadataOption(metadata)
}

func WithProgress(fn ProgressFunc) PutOption {
	return progressOption{fn: fn}
}

func applyPutOptions(opts []PutOption) *putOptions {
	options := &putOptions{}
	for _, opt := range opts {
		opt.applyPut(options)
	}
	return options
}

// StorageError represents a storage operation error
type StorageError struct {
	Op         string
	Key        string
	Err        error
	StatusCode int
	Retryable  bool
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return e.Op + " " + e.Key + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotExist returns true if the error indicates the object doesn't exist
func IsNotExist(err error) bool {
	var serr *StorageError
	if errors.As(err, &serr) {
		return serr.StatusCode == 404
	}
	return false
}

// IsAccessDenied returns true if the error indicates access was denied
func IsAccessDenied(err error) bool {
	var serr *StorageError
	if errors.As(err, &serr) {
		return serr.StatusCode == 403
	}
	return false
}
