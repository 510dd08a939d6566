package domain

// The sensor band. Every spectrum the instruments return covers
// [SpectrumStart, SpectrumStop] nanometers at 1 nm pitch.
const (
	SpectrumStart = 380
	SpectrumStop  = 780
)

// Physical constants for the photon flux conversion.
const (
	planckConst    = 6.62607015e-34 // J·s
	lightSpeed     = 2.99792458e8   // m/s
	avogadroNumber = 6.02214076e23  // 1/mol
)

// Spectrum is spectral irradiance over a wavelength range, W·m⁻²·nm⁻¹
// per sample. Start is the wavelength of Values[0]; the pitch is 1 nm.
type Spectrum struct {
	Start  int
	Values []float64
}

// Wavelength returns the wavelength of sample i in nanometers.
func (s Spectrum) Wavelength(i int) int {
	return s.Start + i
}

// Slice returns the sub-range [start, stop] inclusive.
// Both bounds must lie inside the spectrum.
func (s Spectrum) Slice(start, stop int) (Spectrum, error) {
	if start < s.Start || stop > s.Start+len(s.Values)-1 || start >= stop {
		return Spectrum{}, ErrInvalidRange
	}
	return Spectrum{
		Start:  start,
		Values: s.Values[start-s.Start : stop-s.Start+1],
	}, nil
}

// MicroMole converts the [start, stop] sub-range to photon flux per
// band, µmol·m⁻²·s⁻¹·nm⁻¹. Each band's energy is divided by the energy
// of one photon at that wavelength, then scaled to micromoles.
func (s Spectrum) MicroMole(start, stop int) ([]float64, error) {
	sub, err := s.Slice(start, stop)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(sub.Values))
	for i, e := range sub.Values {
		lambda := float64(sub.Wavelength(i)) * 1e-9 // m
		photonEnergy := planckConst * lightSpeed / lambda
		out[i] = e / photonEnergy / avogadroNumber * 1e6
	}
	return out, nil
}

// ValidRange reports whether [start, stop] is a capturable range.
func ValidRange(start, stop int) bool {
	return start >= SpectrumStart && stop <= SpectrumStop && start < stop
}
