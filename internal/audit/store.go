package audit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"
	"github.com/raaihank/civicguard/internal/logger"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StoreConfig contains database configuration
type StoreConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Store persists audit events in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// Summary is one row of the audit table as listed by Recent
type Summary struct {
	ID             string         `db:"id" json:"id"`
	RequestID      string         `db:"request_id" json:"request_id"`
	VisitID        string         `db:"visit_id" json:"visit_id"`
	Outcome        string         `db:"outcome" json:"outcome"`
	Stage          string         `db:"stage" json:"stage"`
	RulesVersion   string         `db:"rules_version" json:"rules_version"`
	RedactionCount int            `db:"redaction_count" json:"redaction_count"`
	LeakTerms      pq.StringArray `db:"leak_terms" json:"leak_terms"`
	LeakFields     pq.StringArray `db:"leak_fields" json:"leak_fields"`
	ErrorFields    pq.StringArray `db:"error_fields" json:"error_fields"`
	DurationMs     int64          `db:"duration_ms" json:"duration_ms"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id              UUID PRIMARY KEY,
	request_id      TEXT NOT NULL,
	visit_id        TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	stage           TEXT NOT NULL,
	rules_version   TEXT NOT NULL,
	redaction_count INTEGER NOT NULL DEFAULT 0,
	findings        JSONB NOT NULL DEFAULT '[]',
	error_fields    TEXT[] NOT NULL DEFAULT '{}',
	leak_terms      TEXT[] NOT NULL DEFAULT '{}',
	leak_fields     TEXT[] NOT NULL DEFAULT '{}',
	leaks           JSONB NOT NULL DEFAULT '[]',
	cause           TEXT NOT NULL DEFAULT '',
	duration_ms     BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_events_outcome ON audit_events (outcome, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_visit ON audit_events (visit_id);`

// NewStore connects to PostgreSQL and creates the audit table if needed
func NewStore(ctx context.Context, config *StoreConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	store := NewStoreWithDB(db, log)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	store.logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return store, nil
}

// NewStoreWithDB wraps an existing connection
func NewStoreWithDB(db *sqlx.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.WithComponent("audit_store")}
}

// EnsureSchema creates the audit table and its indexes
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Record inserts one event
func (s *Store) Record(ctx context.Context, e Event) error {
	findings, err := json.Marshal(nonNil(e.Findings))
	if err != nil {
		return fmt.Errorf("failed to encode findings: %w", err)
	}
	leaks, err := json.Marshal(nonNil(e.Leaks))
	if err != nil {
		return fmt.Errorf("failed to encode leaks: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			id, request_id, visit_id, outcome, stage, rules_version, redaction_count,
			findings, error_fields, leak_terms, leak_fields, leaks, cause, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = s.db.ExecContext(ctx, query,
		e.ID,
		e.RequestID,
		e.VisitID,
		e.Outcome,
		e.Stage,
		e.RulesVersion,
		e.RedactionCount,
		string(findings),
		pq.Array(e.ErrorFields()),
		pq.Array(e.LeakTerms()),
		pq.Array(e.LeakFields()),
		string(leaks),
		e.Cause,
		e.Duration.Milliseconds(),
		e.CreatedAt,
	)
	if err != nil {
		s.logger.Error("Failed to insert audit event",
			zap.Error(err),
			zap.String("request_id", e.RequestID),
			zap.String("outcome", e.Outcome))
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events, optionally filtered by outcome
func (s *Store) Recent(ctx context.Context, outcome string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, request_id, visit_id, outcome, stage, rules_version, redaction_count,
			leak_terms, leak_fields, error_fields, duration_ms, created_at
		FROM audit_events
		WHERE ($1 = '' OR outcome = $1)
		ORDER BY created_at DESC
		LIMIT $2`

	var rows []Summary
	if err := s.db.SelectContext(ctx, &rows, query, outcome, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return rows, nil
}

// OutcomeCounts returns the number of events per outcome since a point in time
func (s *Store) OutcomeCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	query := `
		SELECT outcome, COUNT(*) AS total
		FROM audit_events
		WHERE created_at >= $1
		GROUP BY outcome`

	var rows []struct {
		Outcome string `db:"outcome"`
		Total   int64  `db:"total"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Outcome] = r.Total
	}
	return counts, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// maskDatabaseURL hides the password in a connection string for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
