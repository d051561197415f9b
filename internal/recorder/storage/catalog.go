package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mikeyg42/framecoder/internal/recorder/recorderlog"
)

// Catalog records finished sessions.
type Catalog interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// ErrSessionNotFound is returned by GetSession for an unknown ID.
var ErrSessionNotFound = errors.New("session not found")

// PostgresCatalog implements Catalog using PostgreSQL
type PostgresCatalog struct {
	db     *sqlx.DB
	logger recorderlog.Logger
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	SSLMode         string // disable, require, verify-ca, verify-full
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *PostgresConfig) setDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "require"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 4
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// DSN renders the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	c.setDefaults()
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode,
	)
}

// NewPostgresCatalog connects, pings and creates the schema if needed.
func NewPostgresCatalog(ctx context.Context, config PostgresConfig) (*PostgresCatalog, error) {
	config.setDefaults()
	if config.Host == "" || config.Database == "" {
		return nil, errors.New("postgres host and database are required")
	}

	db, err := sqlx.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := &PostgresCatalog{
		db:     db,
		logger: recorderlog.L().Named("postgres-catalog"),
	}
	if err := c.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

const sessionSchema = `
CREATE TABLE IF NOT EXISTS recording_sessions (
	id UUID PRIMARY KEY,
	codec VARCHAR(20) NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,

	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,

	frames BIGINT DEFAULT 0,
	dropped BIGINT DEFAULT 0,
	bytes BIGINT DEFAULT 0,
	keyframes BIGINT DEFAULT 0,

	output_key VARCHAR(500),
	metadata_key VARCHAR(500),

	created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_recording_sessions_started_at ON recording_sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_recording_sessions_codec ON recording_sessions(codec);
`

func (c *PostgresCatalog) initSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, sessionSchema)
	return err
}

const upsertSession = `
	INSERT INTO recording_sessions (
		id, codec, width, height, started_at, ended_at,
		frames, dropped, bytes, keyframes, output_key, metadata_key
	) VALUES (
		:id, :codec, :width, :height, :started_at, :ended_at,
		:frames, :dropped, :bytes, :keyframes, :output_key, :metadata_key
	)
	ON CONFLICT (id) DO UPDATE SET
		ended_at = EXCLUDED.ended_at,
		frames = EXCLUDED.frames,
		dropped = EXCLUDED.dropped,
		bytes = EXCLUDED.bytes,
		keyframes = EXCLUDED.keyframes,
		output_key = EXCLUDED.output_key,
		metadata_key = EXCLUDED.metadata_key
`

// SaveSession inserts or updates s.
func (c *PostgresCatalog) SaveSession(ctx context.Context, s *Session) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	if _, err := c.db.NamedExecContext(ctx, upsertSession, s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	c.logger.Info("Session saved",
		recorderlog.String("id", s.ID.String()),
		recorderlog.String("codec", s.Codec),
		recorderlog.Int64("frames", s.Frames))
	return nil
}

// GetSession loads one session by ID.
func (c *PostgresCatalog) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var s Session
	err := c.db.GetContext(ctx, &s, `
		SELECT id, codec, width, height, started_at, COALESCE(ended_at, started_at) AS ended_at,
			frames, dropped, bytes, keyframes, output_key, metadata_key, created_at
		FROM recording_sessions
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// HealthCheck verifies database connectivity
func (c *PostgresCatalog) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection
func (c *PostgresCatalog) Close() error {
	return c.db.Close()
}
