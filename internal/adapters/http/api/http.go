// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AuthDependencies
	ReadingsDependencies
	SimulationDependencies
	AnalyticsDependencies
	ExportDependencies
	NotificationDependencies
	DoctorDependencies
	ProfileDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	auth          *authGuard
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	authHandler   *AuthHandler
	readings      *ReadingsHandler
	simulation    *SimulationHandler
	analytics     *AnalyticsHandler
	export        *ExportHandler
	notifications *NotificationsHandler
	doctor        *DoctorHandler
	profile       *ProfileHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		auth:          &authGuard{deps: deps},
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
		authHandler:   NewAuthHandler(deps),
		readings:      NewReadingsHandler(deps),
		simulation:    NewSimulationHandler(deps),
		analytics:     NewAnalyticsHandler(deps),
		export:        NewExportHandler(deps),
		notifications: NewNotificationsHandler(deps),
		doctor:        NewDoctorHandler(deps),
		profile:       NewProfileHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("/auth/signup", MetricsMiddleware(s.authHandler.HandleSignUp, "auth_signup"))
	mux.HandleFunc("/auth/signin", MetricsMiddleware(s.authHandler.HandleSignIn, "auth_signin"))
	mux.HandleFunc("/auth/signout", MetricsMiddleware(s.auth.Require(s.authHandler.HandleSignOut), "auth_signout"))
	mux.HandleFunc("/auth/session", MetricsMiddleware(s.auth.Require(s.authHandler.HandleSession), "auth_session"))

	mux.HandleFunc("/readings", MetricsMiddleware(byMethod(map[string]http.HandlerFunc{
		http.MethodGet:  s.readings.HandleGetReadings,
		http.MethodPost: s.auth.Require(s.readings.HandlePostReading),
	}), "readings"))

	mux.HandleFunc("/simulation", MetricsMiddleware(s.simulation.HandleStatus, "simulation"))
	mux.HandleFunc("/simulation/start", MetricsMiddleware(s.auth.Require(s.simulation.HandleStart), "simulation_start"))
	mux.HandleFunc("/simulation/stop", MetricsMiddleware(s.auth.Require(s.simulation.HandleStop), "simulation_stop"))

	mux.HandleFunc("/analytics", MetricsMiddleware(s.analytics.HandleGetAnalytics, "analytics"))
	mux.HandleFunc("/export", MetricsMiddleware(s.export.HandleExport, "export"))
	mux.HandleFunc("/notifications", MetricsMiddleware(s.notifications.HandleGetNotifications, "notifications"))
	mux.HandleFunc("/doctor/connect", MetricsMiddleware(s.auth.Require(s.doctor.HandleConnect), "doctor_connect"))
	mux.HandleFunc("/profile", MetricsMiddleware(s.auth.Require(s.profile.HandleGetProfile), "profile"))
	mux.HandleFunc("/profile/personal", MetricsMiddleware(s.auth.Require(s.profile.HandlePutPersonal), "profile_personal"))
	mux.HandleFunc("/profile/medical", MetricsMiddleware(s.auth.Require(s.profile.HandlePutMedical), "profile_medical"))
}

// byMethod dispatches on the request method; other methods get a 404 like
// every other route.
func byMethod(handlers map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.Method]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// queryInt parses an optional non-negative integer query parameter. A
// missing parameter yields 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, ErrBadRequest
	}
	return n, nil
}
