package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/hunch/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	State(userID string) domain.UserState
	List(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error)
	Journal(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
	State     domain.UserState  `json:"state"`
}

// ListPositions returns the user's positions, newest first.
// GET /api/positions?limit=50&offset=0&since=...&until=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	positions, err := h.positions.List(r.Context(), user, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{
		Positions: positions,
		State:     h.positions.State(user),
	})
}

type journalEntry struct {
	ID      string              `json:"id"`
	Outcome domain.SwipeOutcome `json:"outcome"`
}

type journalResponse struct {
	Entries []journalEntry `json:"entries"`
	LastID  string         `json:"lastId"`
}

// ListSwipes replays the committed-swipe journal after an id.
// GET /api/swipes?after=0&count=100
func (h *PositionHandler) ListSwipes(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			count = n
		}
	}

	msgs, err := h.positions.Journal(r.Context(), after, count)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read swipe journal", err)
		return
	}

	resp := journalResponse{Entries: make([]journalEntry, 0, len(msgs)), LastID: after}
	for _, m := range msgs {
		resp.LastID = m.ID
		var out domain.SwipeOutcome
		if err := json.Unmarshal(m.Payload, &out); err != nil {
			h.logger.WarnContext(r.Context(), "handler: skipping bad journal entry",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		resp.Entries = append(resp.Entries, journalEntry{ID: m.ID, Outcome: out})
	}
	writeJSON(w, http.StatusOK, resp)
}
