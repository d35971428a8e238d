package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/padmon/internal/adapters/auth"
)

// AuthDependencies covers account and session operations.
type AuthDependencies interface {
	SignUp(ctx context.Context, email, password, displayName string) (auth.Session, error)
	SignIn(ctx context.Context, email, password string) (auth.Session, error)
	SignOut(ctx context.Context, token string) error
	Session(ctx context.Context, token string) (auth.Session, error)
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// AuthHandler serves the /auth routes.
type AuthHandler struct {
	deps AuthDependencies
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(deps AuthDependencies) *AuthHandler {
	return &AuthHandler{deps: deps}
}

// HandleSignUp handles POST /auth/signup requests.
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	const op = "api.sign_up"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sess, err := h.deps.SignUp(r.Context(), c.Email, c.Password, c.DisplayName)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleSignIn handles POST /auth/signin requests.
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	const op = "api.sign_in"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sess, err := h.deps.SignIn(r.Context(), c.Email, c.Password)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleSignOut handles POST /auth/signout requests.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	const op = "api.sign_out"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.SignOut(r.Context(), BearerToken(r)); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession handles GET /auth/session requests.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sess, _ := SessionFrom(r.Context())
	writeJSON(w, http.StatusOK, sess)
}
