package domain

import (
	"math"
	"time"
)

// DataType identifies a typed readout register on the instrument.
// The numeric values match the instrument's internal register map.
type DataType uint32

const (
	DataChromaX    DataType = 1   // CIE 1931 chromaticity x
	DataChromaY    DataType = 2   // CIE 1931 chromaticity y
	DataDeltaU     DataType = 33  // CIE 1960 u distance from the Planckian locus
	DataDeltaV     DataType = 34  // CIE 1960 v distance from the Planckian locus
	DataFootCandle DataType = 258 // illuminance in foot-candles
	DataCCT        DataType = 259 // correlated color temperature in kelvin
)

// LuxPerFootCandle converts between lux and foot-candles.
const LuxPerFootCandle = 10.7639

// Measurement is a single photometric capture from an instrument
type Measurement struct {
	ID        int64     `json:"id"`
	Serial    string    `json:"serial"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Fcd       float64   `json:"fcd"`
	CCT       float64   `json:"cct"`
	Du        float64   `json:"du"`
	Dv        float64   `json:"dv"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMeasurement creates a validated measurement. CCT is truncated to whole
// kelvin, matching the instrument's native resolution.
func NewMeasurement(serial string, x, y, fcd, cct, du, dv float64) (*Measurement, error) {
	if fcd < 0 {
		return nil, ErrInvalidMeasurement
	}
	if x < 0 || x > 1 || y < 0 || y > 1 {
		return nil, ErrInvalidMeasurement
	}

	return &Measurement{
		Serial:    serial,
		X:         x,
		Y:         y,
		Fcd:       fcd,
		CCT:       math.Trunc(cct),
		Du:        du,
		Dv:        dv,
		Timestamp: time.Now(),
	}, nil
}

// Duv returns the distance from the Planckian locus in the CIE 1960 diagram
func (m *Measurement) Duv() float64 {
	return math.Hypot(m.Du, m.Dv)
}

// Lux returns the illuminance in lux
func (m *Measurement) Lux() float64 {
	return m.Fcd * LuxPerFootCandle
}

// DistanceFrom returns the Euclidean distance between two chromaticity points
func (m *Measurement) DistanceFrom(other *Measurement) float64 {
	return math.Hypot(m.X-other.X, m.Y-other.Y)
}

// PercentDropFrom returns how far this measurement's illuminance has fallen
// below a reference measurement, as a percentage of the reference
func (m *Measurement) PercentDropFrom(ref *Measurement) float64 {
	if ref.Fcd == 0 {
		return 0
	}
	return (ref.Fcd - m.Fcd) / ref.Fcd * 100
}

// Average returns the component-wise mean of a set of measurements.
// The serial and timestamp are taken from the first entry.
func Average(ms []*Measurement) (*Measurement, error) {
	if len(ms) == 0 {
		return nil, ErrInvalidMeasurement
	}

	avg := &Measurement{
		Serial:    ms[0].Serial,
		Timestamp: ms[0].Timestamp,
	}
	for _, m := range ms {
		avg.X += m.X
		avg.Y += m.Y
		avg.Fcd += m.Fcd
		avg.CCT += m.CCT
		avg.Du += m.Du
		avg.Dv += m.Dv
	}
	n := float64(len(ms))
	avg.X /= n
	avg.Y /= n
	avg.Fcd /= n
	avg.CCT = math.Trunc(avg.CCT / n)
	avg.Du /= n
	avg.Dv /= n
	return avg, nil
}
