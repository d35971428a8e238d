package api

import (
	"context"
	"net/http"

	"github.com/okian/padmon/internal/domain/analytics"
)

// AnalyticsDependencies covers the statistics view.
type AnalyticsDependencies interface {
	Analytics(ctx context.Context, r analytics.Range) (analytics.Stats, error)
}

// AnalyticsHandler serves /analytics.
type AnalyticsHandler struct {
	deps AnalyticsDependencies
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(deps AnalyticsDependencies) *AnalyticsHandler {
	return &AnalyticsHandler{deps: deps}
}

// HandleGetAnalytics handles GET /analytics?range=all|day|week|month requests.
func (h *AnalyticsHandler) HandleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_analytics"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	rng, err := analytics.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	stats, err := h.deps.Analytics(r.Context(), rng)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
