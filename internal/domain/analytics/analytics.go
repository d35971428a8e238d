// Package analytics summarises readings over a trailing time window.
package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/internal/domain/risk"
)

// Range selects the trailing window.
type Range string

// Supported ranges.
const (
	RangeAll   Range = "all"
	RangeDay   Range = "day"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
)

const day = 24 * time.Hour

// ErrUnknownRange is returned by ParseRange for unsupported values.
var ErrUnknownRange = errors.New("unknown analytics range")

// ParseRange maps a query value to a Range. Empty means all.
func ParseRange(s string) (Range, error) {
	switch r := Range(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RangeAll, nil
	case RangeAll, RangeDay, RangeWeek, RangeMonth:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRange, s)
	}
}

// Window returns the span covered by r, or zero for all.
func (r Range) Window() time.Duration {
	switch r {
	case RangeDay:
		return day
	case RangeWeek:
		return 7 * day
	case RangeMonth:
		return 30 * day
	default:
		return 0
	}
}

// Cutoff returns the earliest timestamp included at now. The zero time means
// no lower bound.
func (r Range) Cutoff(now time.Time) time.Time {
	w := r.Window()
	if w == 0 {
		return time.Time{}
	}
	return now.Add(-w)
}

// Stats are the aggregates over a window.
type Stats struct {
	Range          Range   `json:"range"`
	Count          int     `json:"count"`
	AvgRiskScore   float64 `json:"avgRiskScore"`
	MinRiskScore   int     `json:"minRiskScore"`
	MaxRiskScore   int     `json:"maxRiskScore"`
	AvgBloodFlow   float64 `json:"avgBloodFlow"`
	AvgTemperature float64 `json:"avgTemperature"`
	AvgPressure    float64 `json:"avgPressure"`
	LowRiskCount   int     `json:"lowRiskCount"`
	ModerateCount  int     `json:"moderateRiskCount"`
	HighRiskCount  int     `json:"highRiskCount"`
}

// Compute aggregates the readings at or after r's cutoff. An empty window
// yields zero stats.
func Compute(readings []model.SensorReading, r Range, now time.Time) Stats {
	st := Stats{Range: r}
	cutoff := r.Cutoff(now)

	var sumRisk, sumFlow, sumTemp, sumPressure float64
	for _, rd := range readings {
		if !cutoff.IsZero() && rd.Timestamp < cutoff.UnixMilli() {
			continue
		}
		if st.Count == 0 || rd.PadRiskScore < st.MinRiskScore {
			st.MinRiskScore = rd.PadRiskScore
		}
		if st.Count == 0 || rd.PadRiskScore > st.MaxRiskScore {
			st.MaxRiskScore = rd.PadRiskScore
		}
		st.Count++
		sumRisk += float64(rd.PadRiskScore)
		sumFlow += rd.BloodFlow
		sumTemp += rd.Temperature
		sumPressure += rd.Pressure

		switch risk.BandOf(rd.PadRiskScore) {
		case risk.BandLow:
			st.LowRiskCount++
		case risk.BandModerate:
			st.ModerateCount++
		case risk.BandHigh:
			st.HighRiskCount++
		}
	}

	if st.Count == 0 {
		return st
	}
	n := float64(st.Count)
	st.AvgRiskScore = sumRisk / n
	st.AvgBloodFlow = sumFlow / n
	st.AvgTemperature = sumTemp / n
	st.AvgPressure = sumPressure / n
	return st
}
