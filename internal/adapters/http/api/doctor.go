package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/padmon/internal/adapters/auth"
	service "github.com/okian/padmon/internal/app"
)

// DoctorDependencies covers doctor invitations.
type DoctorDependencies interface {
	ConnectDoctor(ctx context.Context, patient auth.Session, doctorEmail, message string) (service.DoctorRequest, error)
	DoctorRequests(patientEmail string) []service.DoctorRequest
}

type connectRequest struct {
	DoctorEmail string `json:"doctorEmail"`
	Message     string `json:"message,omitempty"`
}

// DoctorHandler serves /doctor/connect.
type DoctorHandler struct {
	deps DoctorDependencies
}

// NewDoctorHandler creates a new doctor handler.
func NewDoctorHandler(deps DoctorDependencies) *DoctorHandler {
	return &DoctorHandler{deps: deps}
}

// HandleConnect handles POST (invite) and GET (list) on /doctor/connect for
// the signed in patient.
func (h *DoctorHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	const op = "api.connect_doctor"
	sess, ok := SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
		return
	}

	switch r.Method {
	case http.MethodGet:
		list := h.deps.DoctorRequests(sess.Email)
		if list == nil {
			list = []service.DoctorRequest{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": list})
	case http.MethodPost:
		var req connectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		out, err := h.deps.ConnectDoctor(r.Context(), sess, req.DoctorEmail, req.Message)
		if err != nil {
			writeServiceError(w, op, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	default:
		http.NotFound(w, r)
	}
}
