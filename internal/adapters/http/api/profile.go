package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/padmon/internal/adapters/auth"
	"github.com/okian/padmon/internal/domain/profile"
)

// ProfileDependencies covers the patient profile.
type ProfileDependencies interface {
	Profile(patient auth.Session) profile.Profile
	UpdatePersonalInfo(ctx context.Context, patient auth.Session, p profile.Personal) (profile.Profile, error)
	UpdateMedicalInfo(ctx context.Context, patient auth.Session, m profile.Medical) (profile.Profile, error)
}

// ProfileHandler serves /profile and its sections.
type ProfileHandler struct {
	deps ProfileDependencies
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(deps ProfileDependencies) *ProfileHandler {
	return &ProfileHandler{deps: deps}
}

// HandleGetProfile handles GET /profile.
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_profile"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sess, ok := SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Profile(sess))
}

// HandlePutPersonal handles PUT /profile/personal.
func (h *ProfileHandler) HandlePutPersonal(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_personal_info"
	var in profile.Personal
	sess, ok := h.decode(w, r, op, &in)
	if !ok {
		return
	}
	out, err := h.deps.UpdatePersonalInfo(r.Context(), sess, in)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandlePutMedical handles PUT /profile/medical.
func (h *ProfileHandler) HandlePutMedical(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_medical_info"
	var in profile.Medical
	sess, ok := h.decode(w, r, op, &in)
	if !ok {
		return
	}
	out, err := h.deps.UpdateMedicalInfo(r.Context(), sess, in)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// decode checks the method and session and reads the JSON body into v. It
// writes the error response itself and reports whether to continue.
func (h *ProfileHandler) decode(w http.ResponseWriter, r *http.Request, op string, v any) (auth.Session, bool) {
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return auth.Session{}, false
	}
	sess, ok := SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
		return auth.Session{}, false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return auth.Session{}, false
	}
	return sess, true
}
