package sim

import (
	"math"

	"github.com/lumabench/spectro-service/internal/domain"
)

// CIE 1931 2° standard observer color matching functions, 380-780 nm
// at 10 nm pitch.
var cmfTable = [41][3]float64{
	{0.0014, 0.0000, 0.0065}, // 380
	{0.0042, 0.0001, 0.0201},
	{0.0143, 0.0004, 0.0679},
	{0.0435, 0.0012, 0.2074},
	{0.1344, 0.0040, 0.6456},
	{0.2839, 0.0116, 1.3856},
	{0.3483, 0.0230, 1.7471},
	{0.3362, 0.0380, 1.7721},
	{0.2908, 0.0600, 1.6692},
	{0.1954, 0.0910, 1.2876},
	{0.0956, 0.1390, 0.8130}, // 480
	{0.0320, 0.2080, 0.4652},
	{0.0049, 0.3230, 0.2720},
	{0.0093, 0.5030, 0.1582},
	{0.0633, 0.7100, 0.0782},
	{0.1655, 0.8620, 0.0422},
	{0.2904, 0.9540, 0.0203},
	{0.4334, 0.9950, 0.0087},
	{0.5945, 0.9950, 0.0039},
	{0.7621, 0.9520, 0.0021},
	{0.9163, 0.8700, 0.0017}, // 580
	{1.0263, 0.7570, 0.0011},
	{1.0622, 0.6310, 0.0008},
	{1.0026, 0.5030, 0.0003},
	{0.8544, 0.3810, 0.0002},
	{0.6424, 0.2650, 0.0000},
	{0.4479, 0.1750, 0.0000},
	{0.2835, 0.1070, 0.0000},
	{0.1649, 0.0610, 0.0000},
	{0.0874, 0.0320, 0.0000},
	{0.0468, 0.0170, 0.0000}, // 680
	{0.0227, 0.0082, 0.0000},
	{0.0114, 0.0041, 0.0000},
	{0.0058, 0.0021, 0.0000},
	{0.0029, 0.0010, 0.0000},
	{0.0014, 0.0005, 0.0000},
	{0.0007, 0.0003, 0.0000},
	{0.0003, 0.0001, 0.0000},
	{0.0002, 0.0001, 0.0000},
	{0.0001, 0.0000, 0.0000},
	{0.0000, 0.0000, 0.0000}, // 780
}

// Maximum luminous efficacy, lm/W at 555 nm.
const luminousEfficacy = 683.0

// xyzFromSpectrum integrates a 1 nm pitch spectrum against the 10 nm
// observer table. Y is luminous (lux) when the spectrum is spectral
// irradiance in W·m⁻²·nm⁻¹.
func xyzFromSpectrum(s domain.Spectrum) [3]float64 {
	var xyz [3]float64
	const step = 10.0

	for i, cmf := range cmfTable {
		wl := domain.SpectrumStart + i*10
		idx := wl - s.Start
		if idx < 0 || idx >= len(s.Values) {
			continue
		}
		e := s.Values[idx]
		xyz[0] += e * cmf[0] * step
		xyz[1] += e * cmf[1] * step
		xyz[2] += e * cmf[2] * step
	}

	xyz[0] *= luminousEfficacy
	xyz[1] *= luminousEfficacy
	xyz[2] *= luminousEfficacy
	return xyz
}

// chromaticity returns CIE 1931 (x, y) for a tristimulus triple.
func chromaticity(xyz [3]float64) (x, y float64) {
	sum := xyz[0] + xyz[1] + xyz[2]
	if sum == 0 {
		return 0, 0
	}
	return xyz[0] / sum, xyz[1] / sum
}

// uv1960 returns CIE 1960 UCS coordinates for a tristimulus triple.
func uv1960(xyz [3]float64) (u, v float64) {
	denom := xyz[0] + 15*xyz[1] + 3*xyz[2]
	if denom == 0 {
		return 0, 0
	}
	return 4 * xyz[0] / denom, 6 * xyz[1] / denom
}

// mccamyCCT approximates correlated color temperature from CIE 1931
// chromaticity (McCamy's cubic). Good to a few kelvin for sources
// near the Planckian locus.
func mccamyCCT(x, y float64) float64 {
	if y == 0.1858 {
		return 0
	}
	n := (x - 0.3320) / (y - 0.1858)
	return -449*n*n*n + 3525*n*n - 6823.3*n + 5520.33
}

// Radiation constants for Planck's law.
const (
	c1 = 3.741771852e-16 // W·m²
	c2 = 1.438776877e-2  // m·K
)

// planckSpectrum synthesizes the relative spectral power of a
// blackbody radiator at temperature T over the sensor band, 1 nm
// pitch, normalized so the peak sample is 1.
func planckSpectrum(cct float64) domain.Spectrum {
	n := domain.SpectrumStop - domain.SpectrumStart + 1
	values := make([]float64, n)

	peak := 0.0
	for i := range values {
		lambda := float64(domain.SpectrumStart+i) * 1e-9
		b := c1 / math.Pow(lambda, 5) / (math.Exp(c2/(lambda*cct)) - 1)
		values[i] = b
		if b > peak {
			peak = b
		}
	}
	if peak > 0 {
		for i := range values {
			values[i] /= peak
		}
	}
	return domain.Spectrum{Start: domain.SpectrumStart, Values: values}
}

// planckUV returns the CIE 1960 coordinates of the Planckian radiator
// at the given temperature, used as the duv reference point.
func planckUV(cct float64) (u, v float64) {
	return uv1960(xyzFromSpectrum(planckSpectrum(cct)))
}
