package risk

// Level is the gauge classification of a risk score.
type Level string

// Risk levels, lowest first.
const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Gauge thresholds (lower bound, inclusive).
const (
	moderateFrom = 25
	highFrom     = 50
	criticalFrom = 75
)

// LevelOf classifies a score for display.
func LevelOf(score int) Level {
	switch {
	case score < moderateFrom:
		return LevelLow
	case score < highFrom:
		return LevelModerate
	case score < criticalFrom:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// Description returns the advice text attached to a level.
func (l Level) Description() string {
	switch l {
	case LevelLow:
		return "Normal blood flow patterns. Continue regular monitoring."
	case LevelModerate:
		return "Some blood flow irregularities detected. Consider preventative measures."
	case LevelHigh:
		return "Significant blood flow reduction detected. Consult a healthcare provider."
	default:
		return "Severe vascular issues detected. Immediate medical attention recommended."
	}
}

// Band is the coarse bucket used by analytics.
type Band string

// Analytics bands.
const (
	BandLow      Band = "low"
	BandModerate Band = "moderate"
	BandHigh     Band = "high"
)

const (
	lowBandMax      = 30
	moderateBandMax = 70
)

// BandOf buckets a score: low <= 30 < moderate <= 70 < high.
func BandOf(score int) Band {
	switch {
	case score <= lowBandMax:
		return BandLow
	case score <= moderateBandMax:
		return BandModerate
	default:
		return BandHigh
	}
}

// Sensor identifies a physiological channel.
type Sensor string

// Sensors with status thresholds.
const (
	SensorBloodFlow   Sensor = "bloodFlow"
	SensorTemperature Sensor = "temperature"
	SensorPressure    Sensor = "pressure"
)

// Status is the per-sensor health indication.
type Status string

// Sensor statuses.
const (
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// StatusOf classifies a single sensor value. Unknown sensors are normal.
func StatusOf(sensor Sensor, value float64) Status {
	switch sensor {
	case SensorBloodFlow:
		switch {
		case value < 50:
			return StatusCritical
		case value < 70:
			return StatusWarning
		}
	case SensorTemperature:
		switch {
		case value < 34:
			return StatusCritical
		case value < 35.5 || value > 37.5:
			return StatusWarning
		}
	case SensorPressure:
		switch {
		case value > 140:
			return StatusCritical
		case value > 120:
			return StatusWarning
		}
	}
	return StatusNormal
}
