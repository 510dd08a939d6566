package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumabench/spectro-service/internal/domain"
)

// handleMeasurements handles GET /api/v1/measurements?start=&end=.
// Times are RFC 3339; the default window is the last 24 hours.
func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	start, err := parseTimeParam(r, "start", now.Add(-24*time.Hour))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start time", err.Error())
		return
	}
	end, err := parseTimeParam(r, "end", now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end time", err.Error())
		return
	}

	measurements, err := s.repo.GetMeasurementsInRange(r.Context(), start, end)
	if err != nil {
		log.Error().Err(err).Msg("failed to query measurements")
		writeDomainError(w, err)
		return
	}

	stats := calculateStatistics(measurements)

	out := make([]measurementJSON, len(measurements))
	for i, m := range measurements {
		out[i] = measurementJSON{Measurement: m, Lux: m.Lux(), Duv: m.Duv()}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"measurements": out,
		"count":        len(out),
		"average_fcd":  stats.average,
		"min_fcd":      stats.min,
		"max_fcd":      stats.max,
	})
}

// statistics holds calculated illuminance statistics.
type statistics struct {
	average float64
	min     float64
	max     float64
}

// calculateStatistics computes stats for a set of measurements.
func calculateStatistics(ms []*domain.Measurement) statistics {
	if len(ms) == 0 {
		return statistics{}
	}

	var sum float64
	min := ms[0].Fcd
	max := ms[0].Fcd

	for _, m := range ms {
		sum += m.Fcd
		if m.Fcd < min {
			min = m.Fcd
		}
		if m.Fcd > max {
			max = m.Fcd
		}
	}

	return statistics{
		average: sum / float64(len(ms)),
		min:     min,
		max:     max,
	}
}
