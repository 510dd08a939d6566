package calib

// Matrix is a per-channel correction matrix: 3x3 coefficients applied
// to raw tristimulus values before any photometric quantities are
// derived. Matrices are identified by name so stations can keep one
// per fixture or bin.
type Matrix struct {
	Name string        `yaml:"name"`
	Coef [3][3]float64 `yaml:"coef"`
}

// Identity returns the do-nothing correction matrix.
func Identity(name string) Matrix {
	return Matrix{
		Name: name,
		Coef: [3][3]float64{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
	}
}

// Apply maps raw XYZ through the correction matrix.
func (m Matrix) Apply(xyz [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i] += m.Coef[i][j] * xyz[j]
		}
	}
	return out
}

// IsIdentity reports whether the matrix leaves readings unchanged.
func (m Matrix) IsIdentity() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if m.Coef[i][j] != want {
				return false
			}
		}
	}
	return true
}
