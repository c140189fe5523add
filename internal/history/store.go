// Package history persists prediction results in PostgreSQL or SQLite.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/NullMeDev/factlens/internal/apperror"
	"github.com/NullMeDev/factlens/internal/predict"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultPingTimeout     = 5 * time.Second
)

// Config selects the database.
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS predictions (
		id               VARCHAR(36) PRIMARY KEY,
		created_at       TIMESTAMP NOT NULL,
		origin           VARCHAR(32) NOT NULL,
		url              TEXT NOT NULL DEFAULT '',
		title            TEXT NOT NULL DEFAULT '',
		query            TEXT NOT NULL DEFAULT '',
		label            VARCHAR(16) NOT NULL,
		confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
		fake_probability DOUBLE PRECISION NOT NULL DEFAULT 0,
		real_probability DOUBLE PRECISION NOT NULL DEFAULT 0,
		word_count       INTEGER NOT NULL DEFAULT 0,
		threshold        DOUBLE PRECISION NOT NULL DEFAULT 0,
		uncertain        BOOLEAN NOT NULL DEFAULT FALSE,
		error            TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_url ON predictions (url)`,
}

// Record is one stored prediction.
type Record struct {
	ID              string    `db:"id" json:"id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	Origin          string    `db:"origin" json:"origin"`
	URL             string    `db:"url" json:"url,omitempty"`
	Title           string    `db:"title" json:"title,omitempty"`
	Query           string    `db:"query" json:"query,omitempty"`
	Label           string    `db:"label" json:"label"`
	Confidence      float64   `db:"confidence" json:"confidence"`
	FakeProbability float64   `db:"fake_probability" json:"fake_probability"`
	RealProbability float64   `db:"real_probability" json:"real_probability"`
	WordCount       int       `db:"word_count" json:"word_count"`
	Threshold       float64   `db:"threshold" json:"threshold"`
	Uncertain       bool      `db:"uncertain" json:"uncertain"`
	Error           string    `db:"error" json:"error,omitempty"`
}

// NewRecord builds a record from a prediction outcome.
func NewRecord(origin, url, title, query string, out predict.Outcome) *Record {
	return &Record{
		Origin:          origin,
		URL:             url,
		Title:           title,
		Query:           query,
		Label:           string(out.Label),
		Confidence:      out.Confidence,
		FakeProbability: out.FakeProbability,
		RealProbability: out.RealProbability,
		WordCount:       out.WordCount,
		Threshold:       out.Threshold,
		Uncertain:       out.Uncertain,
		Error:           out.Error,
	}
}

// Stats aggregates the stored predictions.
type Stats struct {
	Total         int     `db:"total" json:"total"`
	Fake          int     `db:"fake_count" json:"fake"`
	Real          int     `db:"real_count" json:"real"`
	Errors        int     `db:"error_count" json:"errors"`
	Uncertain     int     `db:"uncertain_count" json:"uncertain"`
	AvgConfidence float64 `db:"avg_confidence" json:"avg_confidence"`
}

// Store reads and writes prediction records.
type Store struct {
	db *sqlx.DB
}

// Open connects to the configured database and verifies the connection.
func Open(cfg Config) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "postgresql", "pg":
		driver = DriverPostgres
	case "sqlite":
		driver = DriverSQLite
	case DriverPostgres, DriverSQLite:
	default:
		return nil, apperror.NewHistoryError(apperror.ErrHistoryConnection,
			fmt.Sprintf("unsupported database driver %q", cfg.Driver), nil)
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, apperror.NewHistoryError(apperror.ErrHistoryConnection, "failed to open database", err)
	}

	if driver == DriverSQLite {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperror.NewHistoryError(apperror.ErrHistoryConnection, "failed to ping database", err)
	}

	return New(db), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DriverName returns the database driver in use.
func (s *Store) DriverName() string {
	return s.db.DriverName()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperror.NewHistoryError(apperror.ErrHistoryConnection, "database unreachable", err)
	}
	return nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperror.NewHistoryError(apperror.ErrHistoryQuery, "failed to migrate schema", err)
		}
	}
	return nil
}

// Save inserts a record, assigning its ID and timestamp when unset.
func (s *Store) Save(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.CreatedAt = r.CreatedAt.UTC()

	query := `
		INSERT INTO predictions (
			id, created_at, origin, url, title, query, label, confidence,
			fake_probability, real_probability, word_count, threshold, uncertain, error
		) VALUES (
			:id, :created_at, :origin, :url, :title, :query, :label, :confidence,
			:fake_probability, :real_probability, :word_count, :threshold, :uncertain, :error
		)`
	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return apperror.NewHistoryError(apperror.ErrHistoryQuery, "failed to save prediction", err)
	}
	return nil
}

// Recent returns the newest records first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	query := s.db.Rebind(`
		SELECT id, created_at, origin, url, title, query, label, confidence,
		       fake_probability, real_probability, word_count, threshold, uncertain, error
		FROM predictions
		ORDER BY created_at DESC, id
		LIMIT ?`)

	records := []Record{}
	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, apperror.NewHistoryError(apperror.ErrHistoryQuery, "failed to list predictions", err)
	}
	return records, nil
}

// Stats returns label counts and the mean confidence of labelled results.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN label = 'Fake' THEN 1 ELSE 0 END), 0) AS fake_count,
			COALESCE(SUM(CASE WHEN label = 'Real' THEN 1 ELSE 0 END), 0) AS real_count,
			COALESCE(SUM(CASE WHEN label = 'Error' THEN 1 ELSE 0 END), 0) AS error_count,
			COALESCE(SUM(CASE WHEN uncertain THEN 1 ELSE 0 END), 0) AS uncertain_count,
			COALESCE(AVG(CASE WHEN label <> 'Error' THEN confidence END), 0) AS avg_confidence
		FROM predictions`

	var stats Stats
	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return nil, apperror.NewHistoryError(apperror.ErrHistoryQuery, "failed to get prediction stats", err)
	}
	return &stats, nil
}

// Seen reports whether url has already been analysed.
func (s *Store) Seen(ctx context.Context, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	var count int
	query := s.db.Rebind(`SELECT COUNT(*) FROM predictions WHERE url = ?`)
	if err := s.db.GetContext(ctx, &count, query, url); err != nil {
		return false, apperror.NewHistoryError(apperror.ErrHistoryQuery, "failed to look up url", err)
	}
	return count > 0, nil
}

// Prune deletes records created before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM predictions WHERE created_at < ?`)
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, apperror.NewHistoryError(apperror.ErrHistoryQuery, "failed to prune predictions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperror.NewHistoryError(apperror.ErrHistoryQuery, "failed to count pruned predictions", err)
	}
	return n, nil
}
