package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// StatusHandler serves the service status.
type StatusHandler struct {
	Mode        string
	StartedAt   time.Time
	ActiveDecks func() int
	WSClients   func() int
}

// NewStatusHandler creates a StatusHandler. The counters may be nil.
func NewStatusHandler(mode string, activeDecks, wsClients func() int) *StatusHandler {
	return &StatusHandler{
		Mode:        mode,
		StartedAt:   time.Now(),
		ActiveDecks: activeDecks,
		WSClients:   wsClients,
	}
}

// GetStatus responds with the mode, uptime and live counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := domain.ServiceStatus{
		Mode:          h.Mode,
		UptimeSeconds: int64(time.Since(h.StartedAt).Seconds()),
	}
	if h.ActiveDecks != nil {
		st.ActiveDecks = h.ActiveDecks()
	}
	if h.WSClients != nil {
		st.WSClients = h.WSClients()
	}
	writeJSON(w, http.StatusOK, st)
}
