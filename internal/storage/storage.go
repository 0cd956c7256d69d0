package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"clearquote/internal/models"
)

// HealthStore persists connectivity samples to SQLite so the dashboard can
// show health over time across restarts.
type HealthStore struct {
	db *sql.DB
}

// NewHealthStore opens (creating if needed) the sample database at path.
func NewHealthStore(path string) (*HealthStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &HealthStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS health_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			checked_at DATETIME NOT NULL,
			state TEXT NOT NULL,
			ok INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_health_samples_checked_at
			ON health_samples(checked_at);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Append stores one sample.
func (s *HealthStore) Append(sample models.HealthSample) error {
	_, err := s.db.Exec(
		`INSERT INTO health_samples (checked_at, state, ok, latency_ms, error)
		 VALUES (?, ?, ?, ?, ?)`,
		sample.CheckedAt, sample.State, sample.OK, sample.LatencyMs, sample.Error,
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// Latest returns the most recent sample if one exists.
func (s *HealthStore) Latest() (models.HealthSample, bool, error) {
	row := s.db.QueryRow(
		`SELECT checked_at, state, ok, latency_ms, error
		 FROM health_samples ORDER BY checked_at DESC, id DESC LIMIT 1`,
	)
	var sample models.HealthSample
	err := row.Scan(&sample.CheckedAt, &sample.State, &sample.OK, &sample.LatencyMs, &sample.Error)
	if err == sql.ErrNoRows {
		return models.HealthSample{}, false, nil
	}
	if err != nil {
		return models.HealthSample{}, false, fmt.Errorf("query latest: %w", err)
	}
	return sample, true, nil
}

// Recent returns the newest limit samples in ascending time order.
func (s *HealthStore) Recent(limit int) ([]models.HealthSample, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(
		`SELECT checked_at, state, ok, latency_ms, error FROM (
			SELECT id, checked_at, state, ok, latency_ms, error
			FROM health_samples
			ORDER BY checked_at DESC, id DESC
			LIMIT ?
		) ORDER BY checked_at ASC, id ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

// Since returns samples whose timestamp is >= cutoff, ascending.
func (s *HealthStore) Since(cutoff time.Time) ([]models.HealthSample, error) {
	rows, err := s.db.Query(
		`SELECT checked_at, state, ok, latency_ms, error
		 FROM health_samples
		 WHERE checked_at >= ?
		 ORDER BY checked_at ASC, id ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query since: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

// Close releases the underlying database handle.
func (s *HealthStore) Close() error {
	return s.db.Close()
}

func scanSamples(rows *sql.Rows) ([]models.HealthSample, error) {
	var samples []models.HealthSample
	for rows.Next() {
		var sample models.HealthSample
		if err := rows.Scan(&sample.CheckedAt, &sample.State, &sample.OK, &sample.LatencyMs, &sample.Error); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}
