package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lumabench/spectro-service/internal/domain"
)

// MeasurementRepository implements domain.MeasurementRepository with in-memory storage
// This is perfect for development - no database setup needed
type MeasurementRepository struct {
	mu           sync.RWMutex
	measurements map[int64]*domain.Measurement
	nextID       int64
}

// NewMeasurementRepository creates an empty in-memory repository
func NewMeasurementRepository() *MeasurementRepository {
	return &MeasurementRepository{
		measurements: make(map[int64]*domain.Measurement),
		nextID:       1,
	}
}

// SaveMeasurement stores a measurement in memory
func (r *MeasurementRepository) SaveMeasurement(ctx context.Context, m *domain.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Assign ID if not set
	if m.ID == 0 {
		m.ID = r.nextID
		r.nextID++
	}

	r.measurements[m.ID] = m
	return nil
}

// GetMeasurement retrieves a measurement by ID
func (r *MeasurementRepository) GetMeasurement(ctx context.Context, id int64) (*domain.Measurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.measurements[id]
	if !exists {
		return nil, domain.ErrMeasurementNotFound
	}

	return m, nil
}

// GetMeasurementsInRange returns all measurements within time range
func (r *MeasurementRepository) GetMeasurementsInRange(ctx context.Context, start, end time.Time) ([]*domain.Measurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.Measurement
	for _, m := range r.measurements {
		// half-open interval [start, end)
		if !m.Timestamp.Before(start) && m.Timestamp.Before(end) {
			results = append(results, m)
		}
	}

	// Sort by timestamp
	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	return results, nil
}

// GetLatestMeasurement returns the most recent measurement
func (r *MeasurementRepository) GetLatestMeasurement(ctx context.Context) (*domain.Measurement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.measurements) == 0 {
		return nil, domain.ErrMeasurementNotFound
	}

	var latest *domain.Measurement
	for _, m := range r.measurements {
		if latest == nil || m.Timestamp.After(latest.Timestamp) {
			latest = m
		}
	}

	return latest, nil
}

// DeleteOldMeasurements removes measurements older than specified duration
func (r *MeasurementRepository) DeleteOldMeasurements(ctx context.Context, olderThan time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)

	for id, m := range r.measurements {
		if m.Timestamp.Before(cutoff) {
			delete(r.measurements, id)
		}
	}

	return nil
}
