// Package model contains domain models passed between layers.
package model

import "time"

// Reading sources.
const (
	SourceSimulator = "simulator"
	SourceAPI       = "api"
	SourceMQTT      = "mqtt"
)

// Motion holds the three IMU axis values, each in [-1, 1].
type Motion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SensorReading is one immutable entry of the readings log.
// PadRiskScore is derived from BloodFlow, Temperature and Pressure at
// creation time and is never recomputed.
type SensorReading struct {
	ID           string  `json:"id,omitempty"` // assigned by the store on append
	Timestamp    int64   `json:"timestamp"`    // milliseconds since epoch
	BloodFlow    float64 `json:"bloodFlow"`    // percent
	Temperature  float64 `json:"temperature"`  // degrees Celsius
	Pressure     float64 `json:"pressure"`     // mmHg
	Motion       Motion  `json:"motion"`
	PadRiskScore int     `json:"padRiskScore"`
	Source       string  `json:"source,omitempty"`
	ExternalID   string  `json:"readingId,omitempty"` // producer supplied id used for idempotency
}

// Time returns the reading timestamp as a time.Time.
func (r SensorReading) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Measurement is the caller supplied part of a reading. It only becomes a
// SensorReading once scored.
type Measurement struct {
	ReadingID   string  `json:"readingId,omitempty"`
	BloodFlow   float64 `json:"bloodFlow"`
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
	Motion      Motion  `json:"motion"`
	// Timestamp is optional; zero means "now" at assessment time.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Snapshot is an ordered view of the most recent readings, ascending by
// timestamp then id.
type Snapshot struct {
	Readings []SensorReading `json:"readings"`
	// Total is the number of readings held by the store when the snapshot was taken.
	Total int `json:"total"`
}

// Latest returns the last reading of the snapshot.
func (s Snapshot) Latest() (SensorReading, bool) {
	if len(s.Readings) == 0 {
		return SensorReading{}, false
	}
	return s.Readings[len(s.Readings)-1], true
}

// Less reports whether a sorts before b in snapshot order.
func Less(a, b SensorReading) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.ID < b.ID
}
