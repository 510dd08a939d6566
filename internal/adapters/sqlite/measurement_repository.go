package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lumabench/spectro-service/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// MeasurementRepository implements domain.MeasurementRepository with SQLite
type MeasurementRepository struct {
	db *sql.DB
}

// NewMeasurementRepository creates a SQLite-backed repository
func NewMeasurementRepository(dbPath string) (*MeasurementRepository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create table if not exists
	schema := `
	CREATE TABLE IF NOT EXISTS measurements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		serial TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		fcd REAL NOT NULL,
		cct REAL NOT NULL,
		du REAL NOT NULL,
		dv REAL NOT NULL,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON measurements(timestamp);
	CREATE INDEX IF NOT EXISTS idx_serial ON measurements(serial);
	`

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MeasurementRepository{db: db}, nil
}

// SaveMeasurement stores a measurement in SQLite
func (r *MeasurementRepository) SaveMeasurement(ctx context.Context, m *domain.Measurement) error {
	query := `INSERT INTO measurements (serial, x, y, fcd, cct, du, dv, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		m.Serial, m.X, m.Y, m.Fcd, m.CCT, m.Du, m.Dv, m.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert id: %w", err)
	}

	m.ID = id
	return nil
}

// GetMeasurement retrieves a measurement by ID
func (r *MeasurementRepository) GetMeasurement(ctx context.Context, id int64) (*domain.Measurement, error) {
	query := `SELECT id, serial, x, y, fcd, cct, du, dv, timestamp FROM measurements WHERE id = ?`

	m, err := scanMeasurement(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrMeasurementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query measurement: %w", err)
	}
	return m, nil
}

// GetMeasurementsInRange returns all measurements within time range.
// Uses a half-open interval: inclusive start, exclusive end [start, end).
func (r *MeasurementRepository) GetMeasurementsInRange(ctx context.Context, start, end time.Time) ([]*domain.Measurement, error) {
	query := `
		SELECT id, serial, x, y, fcd, cct, du, dv, timestamp
		FROM measurements
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, query,
		start.UTC().Format(timeLayout), end.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	var measurements []*domain.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		measurements = append(measurements, m)
	}

	return measurements, rows.Err()
}

// GetLatestMeasurement returns the most recent measurement
func (r *MeasurementRepository) GetLatestMeasurement(ctx context.Context) (*domain.Measurement, error) {
	query := `
		SELECT id, serial, x, y, fcd, cct, du, dv, timestamp
		FROM measurements
		ORDER BY timestamp DESC
		LIMIT 1
	`

	m, err := scanMeasurement(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, domain.ErrMeasurementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest measurement: %w", err)
	}
	return m, nil
}

// DeleteOldMeasurements removes measurements older than specified duration
func (r *MeasurementRepository) DeleteOldMeasurements(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	query := `DELETE FROM measurements WHERE timestamp < ?`

	_, err := r.db.ExecContext(ctx, query, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to delete old measurements: %w", err)
	}

	return nil
}

// Close closes the database connection
func (r *MeasurementRepository) Close() error {
	return r.db.Close()
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(s scanner) (*domain.Measurement, error) {
	var m domain.Measurement
	var timestamp string

	if err := s.Scan(&m.ID, &m.Serial, &m.X, &m.Y, &m.Fcd, &m.CCT, &m.Du, &m.Dv, &timestamp); err != nil {
		return nil, err
	}

	ts, err := time.Parse(timeLayout, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	m.Timestamp = ts
	return &m, nil
}
