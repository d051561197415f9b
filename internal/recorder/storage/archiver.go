package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

// Files lists what a session wrote locally.
type Files struct {
	Output   []string // encoded output, segments and timestamp files
	Metadata string   // "" when metadata was disabled or went to stdout
}

// Archiver uploads session files and records the session. Either the store
// or the catalog may be nil.
type Archiver struct {
	store   ObjectStore
	catalog Catalog
	prefix  string
	logger  recorderlog.Logger
}

// NewArchiver builds an Archiver that stores objects under prefix.
func NewArchiver(store ObjectStore, catalog Catalog, prefix string) *Archiver {
	return &Archiver{
		store:   store,
		catalog: catalog,
		prefix:  strings.Trim(prefix, "/"),
		logger:  recorderlog.L().Named("archiver"),
	}
}

// Key is the object key for a local file in session s.
func (a *Archiver) Key(s *Session, file string) string {
	return path.Join(a.prefix, s.ID.String(), filepath.Base(file))
}

// Archive uploads files and then saves s with the keys filled in. Files
// that do not exist locally are skipped. Every upload is attempted even
// after a failure; the catalog is only written when all uploads succeed.
func (a *Archiver) Archive(ctx context.Context, s *Session, files Files) error {
	if a.store != nil {
		var errs []error
		for i, f := range files.Output {
			key, err := a.upload(ctx, s, f)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if i == 0 && key != "" {
				s.OutputKey = sql.NullString{String: key, Valid: true}
			}
		}
		if files.Metadata != "" {
			key, err := a.upload(ctx, s, files.Metadata)
			if err != nil {
				errs = append(errs, err)
			} else if key != "" {
				s.MetadataKey = sql.NullString{String: key, Valid: true}
			}
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("archive session %s: %w", s.ID, err)
		}
	}

	if a.catalog != nil {
		if err := a.catalog.SaveSession(ctx, s); err != nil {
			return fmt.Errorf("catalog session %s: %w", s.ID, err)
		}
	}

	a.logger.Info("Session archived",
		recorderlog.String("session", s.ID.String()),
		recorderlog.String("output_key", s.OutputKey.String),
		recorderlog.String("metadata_key", s.MetadataKey.String))
	return nil
}

func (a *Archiver) upload(ctx context.Context, s *Session, file string) (string, error) {
	if file == "" || file == "-" {
		return "", nil
	}
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("Nothing to archive", recorderlog.String("file", file))
		return "", nil
	}
	key := a.Key(s, file)
	err := a.store.PutFile(ctx, key, file, WithMetadata(map[string]string{
		"session": s.ID.String(),
		"codec":   s.Codec,
	}))
	if err != nil {
		return "", err
	}
	return key, nil
}
