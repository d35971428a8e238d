package api

import (
	"context"
	"net/http"

	"github.com/okian/padmon/internal/domain/simulator"
)

// SimulationDependencies covers the reading simulator.
type SimulationDependencies interface {
	StartSimulation(ctx context.Context) (bool, error)
	StopSimulation(ctx context.Context) (bool, error)
	Simulation() simulator.Status
}

// SimulationResponse describes the simulator after a request.
type SimulationResponse struct {
	Running    bool   `json:"running"`
	Changed    bool   `json:"changed"`
	IntervalMs int64  `json:"intervalMs"`
	StartedAt  string `json:"startedAt,omitempty"`
	Emitted    uint64 `json:"emitted"`
}

// SimulationHandler serves /simulation.
type SimulationHandler struct {
	deps SimulationDependencies
}

// NewSimulationHandler creates a new simulation handler.
func NewSimulationHandler(deps SimulationDependencies) *SimulationHandler {
	return &SimulationHandler{deps: deps}
}

// HandleStatus handles GET /simulation requests.
func (h *SimulationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.response(false))
}

// HandleStart handles POST /simulation/start requests.
func (h *SimulationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_simulation"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	changed, err := h.deps.StartSimulation(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.response(changed))
}

// HandleStop handles POST /simulation/stop requests.
func (h *SimulationHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	const op = "api.stop_simulation"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	changed, err := h.deps.StopSimulation(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.response(changed))
}

func (h *SimulationHandler) response(changed bool) SimulationResponse {
	st := h.deps.Simulation()
	resp := SimulationResponse{
		Running:    st.Running,
		Changed:    changed,
		IntervalMs: st.Interval.Milliseconds(),
		Emitted:    st.Emitted,
	}
	if !st.StartedAt.IsZero() {
		resp.StartedAt = st.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	return resp
}
