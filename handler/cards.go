package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/easytransac/easytransac-bridge/gateway"
	"github.com/easytransac/easytransac-bridge/infra/response"
)

// CardsHandler exposes the stored-card profiles users earn by completing a
// payment.
type CardsHandler struct {
	gateway *gateway.Gateway
}

// NewCardsHandler creates a new cards handler.
func NewCardsHandler(g *gateway.Gateway) *CardsHandler {
	return &CardsHandler{gateway: g}
}

// ListCards handles GET /v1/users/{userID}/cards.
func (h *CardsHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(w, http.StatusBadRequest, "Invalid user ID", err)
		return
	}

	cards, err := h.gateway.StoredCards(ctx, userID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Card lookup failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Stored cards retrieved", map[string]any{
		"userId": userID,
		"cards":  cards,
	})
}
