package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/lumabench/spectro-service/internal/calib"
	"github.com/lumabench/spectro-service/internal/domain"
	"github.com/lumabench/spectro-service/internal/instrument"
)

// Telemetry is the optional telemetry sink for captures taken through
// the API. mqttpub.Publisher implements it.
type Telemetry interface {
	PublishMeasurement(m *domain.Measurement) error
	PublishFlicker(serial string, fr *domain.FlickerReading) error
}

// Server is the HTTP front end over the instrument manager and the
// measurement repository.
type Server struct {
	mgr   *instrument.Manager
	repo  domain.MeasurementRepository
	pub   Telemetry
	store *calib.Store
	mux   *http.ServeMux
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithCalibStore persists correction matrices across restarts: stored
// matrices are pushed to a device when it is opened, and matrix writes
// through the API are saved back.
func WithCalibStore(st *calib.Store) ServerOption {
	return func(s *Server) { s.store = st }
}

// NewServer wires the API routes. pub may be nil when telemetry is
// disabled.
func NewServer(mgr *instrument.Manager, repo domain.MeasurementRepository, pub Telemetry, opts ...ServerOption) *Server {
	s := &Server{
		mgr:  mgr,
		repo: repo,
		pub:  pub,
		mux:  http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/health", s.handleHealth)
	s.mux.HandleFunc("/api/v1/version", s.handleVersion)
	s.mux.HandleFunc("/api/v1/devices", s.handleDevices)
	s.mux.HandleFunc("/api/v1/devices/", s.handleDeviceRoutes)
	s.mux.HandleFunc("/api/v1/measurements", s.handleMeasurements)
	s.mux.HandleFunc("/api/v1/calib/generate", s.handleGenerateMatrix)
}

// handleHealth returns the service health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"devices":      s.mgr.Count(),
		"open_handles": s.mgr.OpenCount(),
	})
}

// handleVersion reports the driver version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version": instrument.Version(),
		"code":    instrument.VersionCode(),
	})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}

// writeDomainError maps a sentinel error onto an HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDeviceNotFound),
		errors.Is(err, domain.ErrDeviceClosed),
		errors.Is(err, domain.ErrMeasurementNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrBusy),
		errors.Is(err, domain.ErrNotCalibrated),
		errors.Is(err, domain.ErrKeypadDisabled):
		writeError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidMeasurement):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// parseTimeParam parses an RFC 3339 query parameter, falling back to
// def when absent.
func parseTimeParam(r *http.Request, key string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return time.Parse(time.RFC3339, v)
}
