package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumabench/spectro-service/internal/adapters/memory"
	"github.com/lumabench/spectro-service/internal/adapters/sim"
	"github.com/lumabench/spectro-service/internal/calib"
	"github.com/lumabench/spectro-service/internal/domain"
	"github.com/lumabench/spectro-service/internal/instrument"
)

// capturedTelemetry records published payloads for assertions.
type capturedTelemetry struct {
	measurements []*domain.Measurement
	flicker      []string
}

func (c *capturedTelemetry) PublishMeasurement(m *domain.Measurement) error {
	c.measurements = append(c.measurements, m)
	return nil
}

func (c *capturedTelemetry) PublishFlicker(serial string, fr *domain.FlickerReading) error {
	c.flicker = append(c.flicker, serial)
	return nil
}

// newTestServer starts an API over a one-device simulated fleet.
func newTestServer(t *testing.T) (*httptest.Server, *capturedTelemetry) {
	t.Helper()

	enum := sim.NewEnumerator([]sim.DeviceConfig{
		{Serial: "SP0001", CCT: 5000, Lux: 500, Seed: 1},
	})
	mgr := instrument.NewManager(enum)
	if err := mgr.Init(context.Background()); err != nil {
		t.Fatalf("manager init: %v", err)
	}

	tel := &capturedTelemetry{}
	srv := NewServer(mgr, memory.NewMeasurementRepository(), tel)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		mgr.Shutdown()
	})
	return ts, tel
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/health", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["devices"].(float64) != 1 {
		t.Errorf("expected 1 device, got %v", body["devices"])
	}
}

func TestVersionEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/version", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["version"] != instrument.Version() {
		t.Errorf("expected version %s, got %v", instrument.Version(), body["version"])
	}
}

func TestListDevices(t *testing.T) {
	ts, _ := newTestServer(t)

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["count"].(float64) != 1 {
		t.Fatalf("expected 1 device, got %v", body["count"])
	}
	devices := body["devices"].([]any)
	first := devices[0].(map[string]any)
	if first["serial"] != "SP0001" {
		t.Errorf("expected serial SP0001, got %v", first["serial"])
	}
}

func TestCapture_DeviceNotOpen(t *testing.T) {
	ts, _ := newTestServer(t)

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/capture", nil)
	if code != http.StatusNotFound {
		t.Errorf("expected 404 for capture on unopened device, got %d", code)
	}
}

func TestOpen_UnknownSerial(t *testing.T) {
	ts, _ := newTestServer(t)

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/NOPE/open", nil)
	if code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown serial, got %d", code)
	}
}

func TestOpenCaptureFlow(t *testing.T) {
	ts, tel := newTestServer(t)

	code, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)
	if code != http.StatusOK {
		t.Fatalf("open: expected 200, got %d", code)
	}
	if body["serial"] != "SP0001" {
		t.Fatalf("open: unexpected serial %v", body["serial"])
	}

	code, body = doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/capture",
		map[string]any{"auto": true})
	if code != http.StatusOK {
		t.Fatalf("capture: expected 200, got %d (%v)", code, body)
	}
	if body["capture_id"] == "" {
		t.Error("capture: missing capture_id")
	}

	m := body["measurement"].(map[string]any)
	fcd := m["fcd"].(float64)
	// 500 lux target is about 46.45 foot-candles
	if fcd < 40 || fcd > 53 {
		t.Errorf("capture: fcd %v outside expected band", fcd)
	}
	if m["serial"] != "SP0001" {
		t.Errorf("capture: unexpected serial %v", m["serial"])
	}

	// Capture should be stored and visible in history
	code, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/measurements", nil)
	if code != http.StatusOK {
		t.Fatalf("measurements: expected 200, got %d", code)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("measurements: expected 1 stored, got %v", body["count"])
	}
	if body["average_fcd"].(float64) != fcd {
		t.Errorf("measurements: average %v != captured %v", body["average_fcd"], fcd)
	}

	// And published to telemetry
	if len(tel.measurements) != 1 {
		t.Errorf("expected 1 telemetry publish, got %d", len(tel.measurements))
	}
}

func TestDarkSequence(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/SP0001/dark/status", nil)
	if code != http.StatusOK {
		t.Fatalf("dark status: expected 200, got %d", code)
	}
	if body["status"] != "none" {
		t.Errorf("expected dark status none before calibration, got %v", body["status"])
	}

	code, body = doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/dark",
		map[string]any{"mode": "fast", "max_exposure_ms": 500})
	if code != http.StatusOK {
		t.Fatalf("dark: expected 200, got %d (%v)", code, body)
	}
	if body["status"] != "valid" {
		t.Errorf("expected dark status valid after calibration, got %v", body["status"])
	}
	steps := body["steps"].([]any)
	if len(steps) != 4 || steps[3] != "dark_capture" {
		t.Errorf("unexpected calibration steps: %v", steps)
	}
}

func TestDark_UnknownMode(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/dark",
		map[string]any{"mode": "turbo"})
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown mode, got %d", code)
	}
}

func TestSpectrumEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)

	// Spectrum before any capture is invalid
	code, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/SP0001/spectrum", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 before capture, got %d", code)
	}

	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/capture", nil)

	code, body := doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/devices/SP0001/spectrum?start=400&stop=700", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	values := body["values"].([]any)
	if len(values) != 301 {
		t.Errorf("expected 301 samples for 400-700nm, got %d", len(values))
	}

	code, body = doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/devices/SP0001/spectrum?start=400&stop=700&unit=umol", nil)
	if code != http.StatusOK {
		t.Fatalf("umol: expected 200, got %d", code)
	}
	if body["unit"] != "umol_m2_s_nm" {
		t.Errorf("expected umol unit label, got %v", body["unit"])
	}

	// Out of band
	code, _ = doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/devices/SP0001/spectrum?start=100&stop=700", nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-band range, got %d", code)
	}
}

func TestMatrixRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)

	put := map[string]any{
		"name": "station-7",
		"coef": [][]float64{{2, 0, 0}, {0, 2, 0}, {0, 0, 2}},
	}
	code, _ := doJSON(t, http.MethodPut, ts.URL+"/api/v1/devices/SP0001/matrix/1", put)
	if code != http.StatusOK {
		t.Fatalf("put matrix: expected 200, got %d", code)
	}

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/SP0001/matrix/1", nil)
	if code != http.StatusOK {
		t.Fatalf("get matrix: expected 200, got %d", code)
	}
	m := body["matrix"].(map[string]any)
	if m["name"] != "station-7" {
		t.Errorf("expected matrix name station-7, got %v", m["name"])
	}

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/matrix/1/select", nil)
	if code != http.StatusOK {
		t.Errorf("select channel: expected 200, got %d", code)
	}

	// Out of range channel
	code, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/SP0001/matrix/99", nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad channel, got %d", code)
	}
}

func TestFlickerEndpoint(t *testing.T) {
	ts, tel := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)

	code, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/flicker",
		map[string]any{"sample_count": 256, "sample_rate": 4096})
	if code != http.StatusOK {
		t.Fatalf("flicker: expected 200, got %d (%v)", code, body)
	}
	if body["sample_count"].(float64) != 256 {
		t.Errorf("expected 256 samples, got %v", body["sample_count"])
	}
	if _, ok := body["percent"].(float64); !ok {
		t.Errorf("missing percent metric: %v", body)
	}
	if len(tel.flicker) != 1 {
		t.Errorf("expected 1 flicker telemetry publish, got %d", len(tel.flicker))
	}
}

func TestPeripheralsAndLCD(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/SP0001/peripherals", nil)
	if code != http.StatusOK {
		t.Fatalf("peripherals: expected 200, got %d", code)
	}
	temp := body["temperature_c"].(float64)
	if temp < 15 || temp > 60 {
		t.Errorf("temperature %v outside plausible range", temp)
	}
	info := body["info"].(map[string]any)
	if info["vendor"] != "Lumabench Instruments" {
		t.Errorf("unexpected vendor %v", info["vendor"])
	}

	code, _ = doJSON(t, http.MethodPut, ts.URL+"/api/v1/devices/SP0001/lcd",
		map[string]any{"brightness": 80})
	if code != http.StatusOK {
		t.Errorf("lcd: expected 200, got %d", code)
	}
}

func TestKeypadRoutes(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)

	// Read while disabled conflicts
	code, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/SP0001/keypad/read", nil)
	if code != http.StatusConflict {
		t.Fatalf("expected 409 while keypad disabled, got %d", code)
	}

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/keypad/enable", nil)
	if code != http.StatusOK {
		t.Fatalf("enable: expected 200, got %d", code)
	}

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/SP0001/keypad/read", nil)
	if code != http.StatusOK {
		t.Fatalf("read: expected 200, got %d", code)
	}
	if body["pending"].(bool) {
		t.Error("expected empty key queue")
	}
}

func TestCloseDevice(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)

	code, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/close", nil)
	if code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", code)
	}

	// Closing again is a 404: the handle is gone
	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/close", nil)
	if code != http.StatusNotFound {
		t.Errorf("expected 404 on double close, got %d", code)
	}
}

func TestMatrixPersistsAcrossReopen(t *testing.T) {
	enum := sim.NewEnumerator([]sim.DeviceConfig{{Serial: "SP0001", Seed: 1}})
	mgr := instrument.NewManager(enum)
	if err := mgr.Init(context.Background()); err != nil {
		t.Fatalf("manager init: %v", err)
	}
	t.Cleanup(mgr.Shutdown)

	store, err := calib.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("calib store: %v", err)
	}
	srv := NewServer(mgr, memory.NewMeasurementRepository(), nil, WithCalibStore(store))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)
	code, _ := doJSON(t, http.MethodPut, ts.URL+"/api/v1/devices/SP0001/matrix/0",
		map[string]any{"name": "bin-a", "coef": [][]float64{{2, 0, 0}, {0, 2, 0}, {0, 0, 2}}})
	if code != http.StatusOK {
		t.Fatalf("put matrix: expected 200, got %d", code)
	}

	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/close", nil)
	doJSON(t, http.MethodPost, ts.URL+"/api/v1/devices/SP0001/open", nil)

	code, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/devices/SP0001/matrix/0", nil)
	if code != http.StatusOK {
		t.Fatalf("get matrix: expected 200, got %d", code)
	}
	m := body["matrix"].(map[string]any)
	if m["name"] != "bin-a" {
		t.Errorf("expected restored matrix bin-a, got %v", m["name"])
	}
}

func TestGenerateMatrix(t *testing.T) {
	ts, _ := newTestServer(t)

	// Measured readings at half the reference: the fit should scale by 2.
	req := map[string]any{
		"name":      "fit-1",
		"space":     "xyz",
		"reference": [][]float64{{2, 0, 0}, {0, 2, 0}, {0, 0, 2}},
		"measured":  [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
	code, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/calib/generate", req)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", code, body)
	}

	m := body["matrix"].(map[string]any)
	coef := m["coef"].([]any)
	row0 := coef[0].([]any)
	if got := row0[0].(float64); got < 1.999 || got > 2.001 {
		t.Errorf("expected coef[0][0] near 2, got %v", got)
	}

	// Too few samples
	req["reference"] = [][]float64{{1, 0, 0}}
	req["measured"] = [][]float64{{1, 0, 0}}
	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/calib/generate", req)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for too few samples, got %d", code)
	}
}

func TestMeasurements_BadTimeParam(t *testing.T) {
	ts, _ := newTestServer(t)

	code, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/measurements?start=yesterday", nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad time param, got %d", code)
	}
}
