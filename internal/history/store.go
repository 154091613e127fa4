package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

const schema = `
CREATE TABLE IF NOT EXISTS extraction_runs (
	id                 UUID PRIMARY KEY,
	supplier           TEXT NOT NULL DEFAULT '',
	kind               TEXT NOT NULL,
	source             TEXT NOT NULL DEFAULT '',
	anonymized         BOOLEAN NOT NULL,
	total_replacements INTEGER NOT NULL DEFAULT 0,
	by_type            JSONB NOT NULL DEFAULT '{}',
	records            INTEGER NOT NULL DEFAULT 0,
	cache_hit          BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms        BIGINT NOT NULL DEFAULT 0,
	error              TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_extraction_runs_created_at ON extraction_runs (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_extraction_runs_supplier ON extraction_runs (supplier);`

// Store records extraction runs in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the database and creates the schema
func Open(ctx context.Context, config Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := NewWithDB(db, logger)
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}

	logger.Info("Run history initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))
	return store, nil
}

// NewWithDB wraps an existing connection
func NewWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Record inserts a run, filling in its id and timestamp when unset
func (s *Store) Record(ctx context.Context, run *Run) error {
	prepareRun(run, time.Now())

	query := `
		INSERT INTO extraction_runs
			(id, supplier, kind, source, anonymized, total_replacements, by_type,
			 records, cache_hit, duration_ms, error, created_at)
		VALUES
			(:id, :supplier, :kind, :source, :anonymized, :total_replacements, :by_type,
			 :records, :cache_hit, :duration_ms, :error, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		s.logger.Error("Failed to record run", zap.Error(err), zap.String("run_id", run.ID))
		return fmt.Errorf("failed to record run: %w", err)
	}

	s.logger.Debug("Run recorded",
		zap.String("run_id", run.ID),
		zap.String("kind", run.Kind),
		zap.Int("total_replacements", run.TotalReplacements))
	return nil
}

// Recent returns the latest runs, newest first, optionally filtered by supplier
func (s *Store) Recent(ctx context.Context, limit int, supplier string) ([]Run, error) {
	query := `
		SELECT id, supplier, kind, source, anonymized, total_replacements, by_type,
		       records, cache_hit, duration_ms, error, created_at
		FROM extraction_runs`
	args := []any{}
	if supplier != "" {
		query += " WHERE supplier = $1"
		args = append(args, supplier)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, clampLimit(limit))

	runs := []Run{}
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	for i := range runs {
		runs[i].Duration = time.Duration(runs[i].DurationMs) * time.Millisecond
	}
	return runs, nil
}

// Summary returns aggregate counters over all runs
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	query := `
		SELECT
			COUNT(*) AS total_runs,
			COUNT(CASE WHEN error <> '' THEN 1 END) AS failed_runs,
			COUNT(CASE WHEN cache_hit THEN 1 END) AS cache_hits,
			COALESCE(SUM(total_replacements), 0) AS total_replacements
		FROM extraction_runs`

	var summary Summary
	if err := s.db.GetContext(ctx, &summary, query); err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}
	return &summary, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func prepareRun(run *Run, now time.Time) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.ByType == nil {
		run.ByType = Counts{}
	}
	if run.Duration > 0 {
		run.DurationMs = run.Duration.Milliseconds()
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
