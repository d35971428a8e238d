package api

import (
	"net/http"

	"github.com/okian/padmon/internal/adapters/notify"
)

// NotificationDependencies covers the notification history.
type NotificationDependencies interface {
	Notifications(limit int) []notify.Notification
}

// NotificationsHandler serves /notifications.
type NotificationsHandler struct {
	deps NotificationDependencies
}

// NewNotificationsHandler creates a new notifications handler.
func NewNotificationsHandler(deps NotificationDependencies) *NotificationsHandler {
	return &NotificationsHandler{deps: deps}
}

// HandleGetNotifications handles GET /notifications?limit=N requests,
// newest first.
func (h *NotificationsHandler) HandleGetNotifications(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_notifications"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	list := h.deps.Notifications(limit)
	if list == nil {
		list = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}
