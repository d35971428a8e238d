// Package risk maps physiological readings to a bounded PAD risk score.
package risk

import (
	"math"
	"time"

	"github.com/okian/padmon/internal/domain/model"
)

// Scoring formula constants.
const (
	normalTemperature  = 36.5
	temperatureWeight  = 10.0
	pressureThreshold  = 120.0
	pressureDivisor    = 2.0
	bloodFlowCoeff     = 0.6
	temperatureCoeff   = 0.2
	pressureCoeff      = 0.2
	maxBloodFlow       = 100.0
	minScore, maxScore = 0.0, 100.0
)

// Score returns the PAD risk score in [0, 100] for the given inputs.
//
// Inputs are not validated. Lower blood flow, any deviation from 36.5 degC
// and pressure above 120 mmHg raise the score; pressure at or below 120 adds
// nothing. The raw value saturates at the bounds before rounding.
func Score(bloodFlow, temperature, pressure float64) int {
	bloodFlowFactor := maxBloodFlow - bloodFlow
	tempFactor := math.Abs(temperature-normalTemperature) * temperatureWeight
	pressureFactor := math.Max(0, (pressure-pressureThreshold)/pressureDivisor)

	raw := bloodFlowCoeff*bloodFlowFactor + temperatureCoeff*tempFactor + pressureCoeff*pressureFactor
	return int(math.Round(clamp(raw)))
}

// clamp bounds x to [minScore, maxScore]. NaN collapses to minScore since
// math.Min and math.Max propagate it.
func clamp(x float64) float64 {
	if math.IsNaN(x) {
		return minScore
	}
	return math.Min(maxScore, math.Max(minScore, x))
}

// Assess turns a measurement into an immutable reading, stamping the time and
// deriving the risk score. A measurement carrying its own timestamp keeps it.
func Assess(m model.Measurement, at time.Time, source string) model.SensorReading {
	ts := m.Timestamp
	if ts == 0 {
		ts = at.UnixMilli()
	}
	return model.SensorReading{
		Timestamp:    ts,
		BloodFlow:    m.BloodFlow,
		Temperature:  m.Temperature,
		Pressure:     m.Pressure,
		Motion:       m.Motion,
		PadRiskScore: Score(m.BloodFlow, m.Temperature, m.Pressure),
		Source:       source,
		ExternalID:   m.ReadingID,
	}
}
