package calib

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ColorSpace selects how the sample triples handed to Generate are
// interpreted.
type ColorSpace int

const (
	// SpaceXYZ samples are CIE 1931 tristimulus triples (X, Y, Z).
	SpaceXYZ ColorSpace = iota
	// SpacexyY samples are chromaticity + luminance triples (x, y, Y).
	SpacexyY
)

// Sample is one color reading, interpreted per the ColorSpace selector.
type Sample [3]float64

// Generate fits a correction matrix M minimizing ||M·mes - ref|| in
// the least-squares sense over paired reference/measured samples.
// At least three pairs are required; the measured samples must span
// three dimensions or the fit is singular.
func Generate(name string, ref, mes []Sample, space ColorSpace) (Matrix, error) {
	if len(ref) != len(mes) {
		return Matrix{}, fmt.Errorf("calib: sample count mismatch: %d reference vs %d measured", len(ref), len(mes))
	}
	if len(ref) < 3 {
		return Matrix{}, fmt.Errorf("calib: need at least 3 sample pairs, got %d", len(ref))
	}

	n := len(ref)
	a := mat.NewDense(n, 3, nil) // measured
	b := mat.NewDense(n, 3, nil) // reference
	for i := 0; i < n; i++ {
		refXYZ, err := toXYZ(ref[i], space)
		if err != nil {
			return Matrix{}, fmt.Errorf("calib: reference sample %d: %w", i, err)
		}
		mesXYZ, err := toXYZ(mes[i], space)
		if err != nil {
			return Matrix{}, fmt.Errorf("calib: measured sample %d: %w", i, err)
		}
		for j := 0; j < 3; j++ {
			a.Set(i, j, mesXYZ[j])
			b.Set(i, j, refXYZ[j])
		}
	}

	// Row form: mesᵢᵀ·Mᵀ = refᵢᵀ, so solve A·X = B and transpose.
	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return Matrix{}, fmt.Errorf("calib: degenerate sample set: %w", err)
	}

	m := Matrix{Name: name}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Coef[i][j] = x.At(j, i)
		}
	}
	return m, nil
}

func toXYZ(s Sample, space ColorSpace) ([3]float64, error) {
	switch space {
	case SpaceXYZ:
		return s, nil
	case SpacexyY:
		x, y, lum := s[0], s[1], s[2]
		if y <= 0 {
			return [3]float64{}, fmt.Errorf("chromaticity y must be positive, got %v", y)
		}
		return [3]float64{
			x * lum / y,
			lum,
			(1 - x - y) * lum / y,
		}, nil
	default:
		return [3]float64{}, fmt.Errorf("unknown color space %d", space)
	}
}
