package ports

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumabench/spectro-service/internal/domain"
)

// Recorder handles periodic measurement capture and storage
type Recorder struct {
	inst     Capturer
	repo     domain.MeasurementRepository
	interval time.Duration
}

// NewRecorder creates a new background recorder
func NewRecorder(inst Capturer, repo domain.MeasurementRepository, interval time.Duration) *Recorder {
	return &Recorder{
		inst:     inst,
		repo:     repo,
		interval: interval,
	}
}

// Start begins periodic capture
// This runs in a goroutine until context is cancelled
func (r *Recorder) Start(ctx context.Context) {
	log.Info().
		Dur("interval", r.interval).
		Msg("starting background recorder")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(24 * time.Hour)
	defer cleanupTicker.Stop()

	// Record immediately on start
	r.recordOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.recordOnce(ctx)

		case <-cleanupTicker.C:
			if err := r.repo.DeleteOldMeasurements(ctx, 30*24*time.Hour); err != nil {
				log.Error().Err(err).Msg("failed to delete old measurements")
			} else {
				log.Info().Msg("deleted measurements older than 30 days")
			}

		case <-ctx.Done():
			log.Info().Msg("stopping background recorder")
			return
		}
	}
}

// recordOnce captures a measurement and saves it to the repository
func (r *Recorder) recordOnce(ctx context.Context) {
	log.Debug().Msg("capturing measurement")

	if err := r.inst.Capture(ctx, ExposureSettings{Auto: true}); err != nil {
		log.Error().Err(err).Msg("failed to capture")
		return
	}

	m, err := r.inst.Measurement()
	if err != nil {
		log.Error().Err(err).Msg("failed to read measurement")
		return
	}

	if err := r.repo.SaveMeasurement(ctx, m); err != nil {
		log.Error().Err(err).Msg("failed to save measurement")
		return
	}

	log.Info().
		Str("serial", m.Serial).
		Float64("fcd", m.Fcd).
		Float64("cct", m.CCT).
		Msg("recorded measurement")
}
