package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/lumabench/spectro-service/internal/calib"
)

// generateRequest carries paired color samples for a matrix fit.
type generateRequest struct {
	Name      string         `json:"name"`
	Space     string         `json:"space"` // "xyz" | "xyy"
	Reference []calib.Sample `json:"reference"`
	Measured  []calib.Sample `json:"measured"`
}

// handleGenerateMatrix handles POST /api/v1/calib/generate: fit a
// correction matrix from reference/measured sample pairs.
func (s *Server) handleGenerateMatrix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body", err.Error())
		return
	}

	var space calib.ColorSpace
	switch req.Space {
	case "", "xyz":
		space = calib.SpaceXYZ
	case "xyy":
		space = calib.SpacexyY
	default:
		writeError(w, http.StatusBadRequest, "unknown color space", req.Space)
		return
	}

	m, err := calib.Generate(req.Name, req.Reference, req.Measured, space)
	if err != nil {
		writeError(w, http.StatusBadRequest, "matrix fit failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"matrix": matrixJSON{Name: m.Name, Coef: m.Coef},
	})
}
