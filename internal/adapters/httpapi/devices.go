package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lumabench/spectro-service/internal/calib"
	"github.com/lumabench/spectro-service/internal/domain"
	"github.com/lumabench/spectro-service/internal/ports"
)

// handleDevices handles GET /api/v1/devices: a fresh scan.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	devices, err := s.mgr.Scan(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	type deviceJSON struct {
		Name   string `json:"name"`
		Serial string `json:"serial"`
		Model  string `json:"model"`
	}
	out := make([]deviceJSON, len(devices))
	for i, d := range devices {
		out[i] = deviceJSON{Name: d.Name, Serial: d.Serial, Model: d.Model}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": out,
		"count":   len(out),
	})
}

// handleDeviceRoutes routes /api/v1/devices/{sn}/... subpaths.
func (s *Server) handleDeviceRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	parts := strings.SplitN(path, "/", 2)
	sn := parts[0]
	if sn == "" {
		writeError(w, http.StatusBadRequest, "missing device serial", "")
		return
	}

	var rest string
	if len(parts) == 2 {
		rest = parts[1]
	}

	switch {
	case rest == "open":
		s.handleOpen(w, r, sn)
	case rest == "close":
		s.handleClose(w, r, sn)
	case rest == "capture":
		s.handleCapture(w, r, sn)
	case rest == "dark":
		s.handleDark(w, r, sn)
	case rest == "dark/status":
		s.handleDarkStatus(w, r, sn)
	case rest == "spectrum":
		s.handleSpectrum(w, r, sn)
	case strings.HasPrefix(rest, "matrix/"):
		s.handleMatrix(w, r, sn, strings.TrimPrefix(rest, "matrix/"))
	case rest == "flicker":
		s.handleFlicker(w, r, sn)
	case rest == "peripherals":
		s.handlePeripherals(w, r, sn)
	case rest == "lcd":
		s.handleLCD(w, r, sn)
	case strings.HasPrefix(rest, "keypad"):
		s.handleKeypad(w, r, sn, strings.TrimPrefix(rest, "keypad"))
	default:
		writeError(w, http.StatusNotFound, "unknown route", r.URL.Path)
	}
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request, sn string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inst, err := s.mgr.OpenBySerial(r.Context(), sn)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.restoreMatrices(inst)

	writeJSON(w, http.StatusOK, map[string]any{
		"serial": inst.Serial(),
		"model":  inst.Model(),
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, sn string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.mgr.Close(sn); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"serial": sn, "status": "closed"})
}

// restoreMatrices pushes any stored correction matrices onto a freshly
// opened device.
func (s *Server) restoreMatrices(inst ports.Instrument) {
	if s.store == nil {
		return
	}

	matrices, err := s.store.All(inst.Serial())
	if err != nil {
		log.Error().Err(err).Str("serial", inst.Serial()).Msg("failed to load stored matrices")
		return
	}
	for ch, m := range matrices {
		if err := inst.SetCorrectionMatrix(ch, m); err != nil {
			log.Error().Err(err).Str("serial", inst.Serial()).Int("channel", ch).Msg("failed to restore matrix")
		}
	}
}

// captureRequest selects the exposure for one capture. A missing or
// empty body means automatic exposure.
type captureRequest struct {
	Auto       *bool   `json:"auto,omitempty"`
	ExposureMs float64 `json:"exposure_ms,omitempty"`
}

type measurementJSON struct {
	*domain.Measurement
	Lux float64 `json:"lux"`
	Duv float64 `json:"duv"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request, sn string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inst, err := s.mgr.Get(sn)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	exp := ports.ExposureSettings{Auto: true}
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		if req.Auto != nil {
			exp.Auto = *req.Auto
		}
		if req.ExposureMs > 0 {
			exp.Auto = false
			exp.Time = time.Duration(req.ExposureMs * float64(time.Millisecond))
		}
	}

	if err := inst.Capture(r.Context(), exp); err != nil {
		writeDomainError(w, err)
		return
	}

	m, err := inst.Measurement()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.repo.SaveMeasurement(r.Context(), m); err != nil {
		log.Error().Err(err).Str("serial", sn).Msg("failed to store capture")
	}
	if s.pub != nil {
		if err := s.pub.PublishMeasurement(m); err != nil {
			log.Error().Err(err).Str("serial", sn).Msg("failed to publish capture")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"capture_id":  uuid.NewString(),
		"measurement": measurementJSON{Measurement: m, Lux: m.Lux(), Duv: m.Duv()},
	})
}

// darkRequest configures the dark reference sequence.
type darkRequest struct {
	Mode          string  `json:"mode,omitempty"` // "standard" | "fast"
	MaxExposureMs float64 `json:"max_exposure_ms,omitempty"`
}

func (s *Server) handleDark(w http.ResponseWriter, r *http.Request, sn string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inst, err := s.mgr.Get(sn)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	mode := ports.ExposureStandard
	maxExposure := 2 * time.Second
	var req darkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		switch req.Mode {
		case "", "standard":
		case "fast":
			mode = ports.ExposureFast
		default:
			writeError(w, http.StatusBadRequest, "unknown exposure mode", req.Mode)
			return
		}
		if req.MaxExposureMs > 0 {
			maxExposure = time.Duration(req.MaxExposureMs * float64(time.Millisecond))
		}
	}

	var steps []string
	err = ports.DarkCalibration(r.Context(), inst, mode, maxExposure, func(step string) {
		steps = append(steps, step)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": darkStatusString(inst.DarkStatus()),
		"steps":  steps,
	})
}

func (s *Server) handleDarkStatus(w http.ResponseWriter, r *http.Request, sn string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inst, err := s.mgr.Get(sn)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": darkStatusString(inst.DarkStatus()),
	})
}

func darkStatusString(st ports.DarkStatus) string {
	switch st {
	case ports.DarkInProgress:
		return "in_progress"
	case ports.DarkValid:
		return "valid"
	default:
		return "none"
	}
}

func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request, sn string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inst, err := s.mgr.Get(sn)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	start, stop := domain.SpectrumStart, domain.SpectrumStop
	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		if start, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid start wavelength", v)
			return
		}
	}
	if v := q.Get("stop"); v != "" {
		if stop, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid stop wavelength", v)
			return
		}
	}

	sp, err := inst.Spectrum(start, stop)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	values := sp.Values
	unit := "w_m2_nm"
	if q.Get("unit") == "umol" {
		values, err = sp.MicroMole(start, stop)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		unit = "umol_m2_s_nm"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"start":  start,
		"stop":   stop,
		"unit":   unit,
		"values": values,
	})
}

// matrixJSON is the wire form of a correction matrix.
type matrixJSON struct {
	Name string        `json:"name"`
	Coef [3][3]float64 `json:"coef"`
}

func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request, sn, chPart string) {
	selectCh := strings.HasSuffix(chPart, "/select")
	chPart = strings.TrimSuffix(chPart, "/select")

	ch, err := strconv.Atoi(chPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid matrix channel", chPart)
		return
	}

	inst, err := s.mgr.Get(sn)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	switch {
	case selectCh && r.Method == http.MethodPost:
		if err := inst.SelectChannel(ch); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"channel": ch})

	case r.Method == http.MethodGet:
		m, err := inst.CorrectionMatrix(ch)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"channel": ch,
			"matrix":  matrixJSON{Name: m.Name, Coef: m.Coef},
		})

	case r.Method == http.MethodPut:
		var req matrixJSON
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid matrix body", err.Error())
			return
		}
		m := calib.Matrix{Name: req.Name, Coef: req.Coef}
		if err := inst.SetCorrectionMatrix(ch, m); err != nil {
			writeDomainError(w, err)
			return
		}
		if s.store != nil {
			if err := s.store.Set(sn, ch, m); err != nil {
				log.Error().Err(err).Str("serial", sn).Int("channel", ch).Msg("failed to persist correction matrix")
			}
		}
		log.Info().Str("serial", sn).Int("channel", ch).Str("name", m.Name).Msg("correction matrix updated")
		writeJSON(w, http.StatusOK, map[string]any{"channel": ch, "matrix": req})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// flickerRequest configures one flicker acquisition. Zero-valued
// sampling fields leave the device's current parameters in place.
type flickerRequest struct {
	SampleCount int     `json:"sample_count,omitempty"`
	SampleRate  float64 `json:"sample_rate,omitempty"`
	FIRTaps     int     `json:"fir_taps,omitempty"`
	FIRCutoff   float64 `json:"fir_cutoff,omitempty"`
	AutoGain    bool    `json:"auto_gain,omitempty"`
	Gain        uint16  `json:"gain,omitempty"`
	EnableFIR   bool    `json:"enable_fir,omitempty"`
}

func (s *Server) handleFlicker(w http.ResponseWriter, r *http.Request, sn string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inst, err := s.mgr.Get(sn)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req flickerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		if req.SampleCount > 0 || req.SampleRate > 0 {
			p := ports.FlickerParams{
				SampleCount: req.SampleCount,
				SampleRate:  req.SampleRate,
				FIRTaps:     req.FIRTaps,
				FIRCutoff:   req.FIRCutoff,
			}
			if err := inst.SetFlickerParams(p); err != nil {
				writeDomainError(w, err)
				return
			}
		}
	}

	fr, err := inst.CaptureFlicker(r.Context(), ports.FlickerCapture{
		AutoGain:  req.AutoGain,
		Gain:      req.Gain,
		EnableFIR: req.EnableFIR,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if s.pub != nil {
		if err := s.pub.PublishFlicker(sn, fr); err != nil {
			log.Error().Err(err).Str("serial", sn).Msg("failed to publish flicker reading")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"percent":      fr.Percent,
		"index":        fr.Index,
		"frequency":    fr.Frequency,
		"sample_rate":  fr.Waveform.SampleRate,
		"sample_count": len(fr.Waveform.Samples),
	})
}

func (s *Server) handlePeripherals(w http.ResponseWriter, r *http.Request, sn string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inst, err := s.mgr.Get(sn)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	temp, err := inst.Temperature()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	info := map[string]string{}
	for id, key := range map[ports.InfoID]string{
		ports.InfoModel:    "model",
		ports.InfoFirmware: "firmware",
		ports.InfoVendor:   "vendor",
	} {
		if v, err := inst.Info(id); err == nil {
			info[key] = v
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"temperature_c":  temp,
		"light_strength": inst.LightStrength(),
		"info":           info,
	})
}

// lcdRequest sets the front panel backlight.
type lcdRequest struct {
	Brightness int `json:"brightness"`
}

func (s *Server) handleLCD(w http.ResponseWriter, r *http.Request, sn string) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inst, err := s.mgr.Get(sn)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req lcdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body", err.Error())
		return
	}
	if err := inst.SetLCDBrightness(req.Brightness); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"brightness": req.Brightness})
}

func (s *Server) handleKeypad(w http.ResponseWriter, r *http.Request, sn, sub string) {
	inst, err := s.mgr.Get(sn)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	kp := inst.Keypad()

	switch {
	case sub == "/enable" && r.Method == http.MethodPost:
		kp.Enable()
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
	case sub == "/disable" && r.Method == http.MethodPost:
		kp.Disable()
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
	case sub == "/clear" && r.Method == http.MethodPost:
		kp.Clear()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	case sub == "/read" && r.Method == http.MethodGet:
		key, ok, err := kp.Read()
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"key": key, "pending": ok})
	default:
		writeError(w, http.StatusNotFound, "unknown route", fmt.Sprintf("keypad%s", sub))
	}
}
