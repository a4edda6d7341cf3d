package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hunch/internal/domain"
	"github.com/alanyoungcy/hunch/internal/gesture"
	"github.com/alanyoungcy/hunch/internal/platform/marketapi"
	"github.com/alanyoungcy/hunch/internal/service"
)

// DeckService defines the methods that the deck handler requires.
type DeckService interface {
	Deck(ctx context.Context, userID, category string) (service.DeckView, error)
	Categories(ctx context.Context, userID string) ([]string, error)
	Card(ctx context.Context, userID, marketID string) (marketapi.Card, error)
	Swipe(ctx context.Context, userID, marketID string, dir domain.Direction) (domain.SwipeOutcome, error)
	Release(ctx context.Context, userID string, req service.ReleaseRequest) (service.ReleaseResult, error)
	Reset(ctx context.Context, userID string) (service.DeckView, error)
	Reload(ctx context.Context, userID string) (service.DeckView, error)
}

// DeckHandler serves the swipe deck.
type DeckHandler struct {
	decks  DeckService
	logger *slog.Logger
}

// NewDeckHandler creates a DeckHandler.
func NewDeckHandler(decks DeckService, logger *slog.Logger) *DeckHandler {
	return &DeckHandler{decks: decks, logger: logger}
}

// GetDeck returns the visible cards for a category tab.
// GET /api/deck?category=Politics
func (h *DeckHandler) GetDeck(w http.ResponseWriter, r *http.Request) {
	view, err := h.decks.Deck(r.Context(), userID(r), r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to load deck", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetCategories returns the category tabs.
// GET /api/deck/categories
func (h *DeckHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.decks.Categories(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to load categories", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": cats})
}

// GetCard returns one undecided card.
// GET /api/deck/card/{id}
func (h *DeckHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.decks.Card(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to load card", err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

type swipeRequest struct {
	MarketID  string `json:"marketId" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=left right down"`
}

// Swipe commits a swipe decided by the client.
// POST /api/deck/swipe
func (h *DeckHandler) Swipe(w http.ResponseWriter, r *http.Request) {
	var req swipeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.decks.Swipe(r.Context(), userID(r), req.MarketID, domain.Direction(req.Direction))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to record swipe", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type releaseRequest struct {
	Category string  `json:"category"`
	DX       float64 `json:"dx"`
	DY       float64 `json:"dy"`
	Width    float64 `json:"width" validate:"gte=0"`
	Height   float64 `json:"height" validate:"gte=0"`
}

// Release classifies a finished drag over the top card and commits it when
// it crossed a threshold.
// POST /api/deck/release
func (h *DeckHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.decks.Release(r.Context(), userID(r), service.ReleaseRequest{
		Category: req.Category,
		DX:       req.DX,
		DY:       req.DY,
		Viewport: gesture.Viewport{Width: req.Width, Height: req.Height},
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to release card", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reset brings back every swiped card.
// POST /api/deck/reset
func (h *DeckHandler) Reset(w http.ResponseWriter, r *http.Request) {
	view, err := h.decks.Reset(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to reset deck", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Reload refetches the deck from the first page.
// POST /api/deck/reload
func (h *DeckHandler) Reload(w http.ResponseWriter, r *http.Request) {
	view, err := h.decks.Reload(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to reload deck", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
