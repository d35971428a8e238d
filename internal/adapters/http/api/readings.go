package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/padmon/internal/app"
	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/internal/domain/risk"
)

// ReadingsDependencies covers the reading log.
type ReadingsDependencies interface {
	Readings(ctx context.Context, limit int) (model.Snapshot, error)
	Ingest(ctx context.Context, m model.Measurement) (model.SensorReading, error)
}

// Assessment is the gauge view of a reading.
type Assessment struct {
	Score       int                         `json:"score"`
	Level       risk.Level                  `json:"level"`
	Description string                      `json:"description"`
	Sensors     map[risk.Sensor]risk.Status `json:"sensors"`
}

// ReadingsResponse is the body of GET /readings.
type ReadingsResponse struct {
	Readings   []model.SensorReading `json:"readings"`
	Total      int                   `json:"total"`
	Latest     *model.SensorReading  `json:"latest,omitempty"`
	Assessment *Assessment           `json:"assessment,omitempty"`
}

// IngestResponse is the body of POST /readings.
type IngestResponse struct {
	Status  string               `json:"status"`
	Reading *model.SensorReading `json:"reading,omitempty"`
}

// Assess classifies r for display.
func Assess(r model.SensorReading) Assessment { //nolint:gocritic // readings travel by value
	level := risk.LevelOf(r.PadRiskScore)
	return Assessment{
		Score:       r.PadRiskScore,
		Level:       level,
		Description: level.Description(),
		Sensors: map[risk.Sensor]risk.Status{
			risk.SensorBloodFlow:   risk.StatusOf(risk.SensorBloodFlow, r.BloodFlow),
			risk.SensorTemperature: risk.StatusOf(risk.SensorTemperature, r.Temperature),
			risk.SensorPressure:    risk.StatusOf(risk.SensorPressure, r.Pressure),
		},
	}
}

// NewReadingsResponse renders snap with the assessment of its newest
// reading.
func NewReadingsResponse(snap model.Snapshot) ReadingsResponse {
	resp := ReadingsResponse{Readings: snap.Readings, Total: snap.Total}
	if resp.Readings == nil {
		resp.Readings = []model.SensorReading{}
	}
	if latest, ok := snap.Latest(); ok {
		a := Assess(latest)
		resp.Latest = &latest
		resp.Assessment = &a
	}
	return resp
}

// ReadingsHandler serves /readings.
type ReadingsHandler struct {
	deps ReadingsDependencies
}

// NewReadingsHandler creates a new readings handler.
func NewReadingsHandler(deps ReadingsDependencies) *ReadingsHandler {
	return &ReadingsHandler{deps: deps}
}

// HandleGetReadings handles GET /readings?limit=N requests.
func (h *ReadingsHandler) HandleGetReadings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_readings"
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	snap, err := h.deps.Readings(r.Context(), limit)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	writeJSON(w, http.StatusOK, NewReadingsResponse(snap))
}

// HandlePostReading handles POST /readings requests.
func (h *ReadingsHandler) HandlePostReading(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_reading"
	var m model.Measurement
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	reading, err := h.deps.Ingest(r.Context(), m)
	if errors.Is(err, service.ErrDuplicate) {
		writeJSON(w, http.StatusOK, IngestResponse{Status: "duplicate"})
		return
	}
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, IngestResponse{Status: "accepted", Reading: &reading})
}
