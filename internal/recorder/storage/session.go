package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mikeyg42/framecoder/internal/recorder/encoder"
)

// Session summarizes one encode run.
type Session struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Codec     string    `json:"codec" db:"codec"`
	Width     int       `json:"width" db:"width"`
	Height    int       `json:"height" db:"height"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   time.Time `json:"ended_at" db:"ended_at"`

	Frames    int64 `json:"frames" db:"frames"`
	Dropped   int64 `json:"dropped" db:"dropped"`
	Bytes     int64 `json:"bytes" db:"bytes"`
	Keyframes int64 `json:"keyframes" db:"keyframes"`

	OutputKey   sql.NullString `json:"output_key,omitempty" db:"output_key"`
	MetadataKey sql.NullString `json:"metadata_key,omitempty" db:"metadata_key"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewSession starts a session record with a fresh ID.
func NewSession(codec encoder.Codec, width, height int) *Session {
	return &Session{
		ID:        uuid.New(),
		Codec:     string(codec),
		Width:     width,
		Height:    height,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the end time and copies the final encoder counters.
func (s *Session) Finish(stats encoder.StatsSnapshot) {
	s.EndedAt = time.Now().UTC()
	s.Frames = int64(stats.PacketsOut)
	s.Dropped = int64(stats.DroppedFrames)
	s.Bytes = int64(stats.BytesEncoded)
	s.Keyframes = int64(stats.Keyframes)
}

// Duration is how long the session ran, zero until Finish.
func (s *Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Validate checks the fields the catalog schema requires.
func (s *Session) Validate() error {
	if s.ID == uuid.Nil {
		return errors.New("session id is required")
	}
	if s.Codec == "" {
		return errors.New("session codec is required")
	}
	if s.StartedAt.IsZero() {
		return errors.New("session start time is required")
	}
	if !s.EndedAt.IsZero() && s.EndedAt.Before(s.StartedAt) {
		return errors.New("session ends before it starts")
	}
	return nil
}
