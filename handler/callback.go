package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/easytransac/easytransac-bridge/gateway"
	"github.com/easytransac/easytransac-bridge/infra/logger"
	"github.com/easytransac/easytransac-bridge/infra/middle"
	"github.com/easytransac/easytransac-bridge/infra/opensearch"
	"github.com/easytransac/easytransac-bridge/infra/response"
)

// Query flags on the callback endpoint. The processor appends nothing; the
// merchant return URL carries "return", and the storefront card widget
// calls with "listcards".
const (
	queryFlagReturn    = "return"
	queryFlagListCards = "listcards"
	queryParamUser     = "user"
)

// CallbackHandler receives the processor's server-to-server notifications
// and the customer's browser returns on a single endpoint.
type CallbackHandler struct {
	gateway          *gateway.Gateway
	openSearchLogger *opensearch.Logger
}

// NewCallbackHandler creates a new callback handler. The OpenSearch logger
// may be nil when audit logging is disabled.
func NewCallbackHandler(g *gateway.Gateway, openSearchLogger *opensearch.Logger) *CallbackHandler {
	return &CallbackHandler{
		gateway:          g,
		openSearchLogger: openSearchLogger,
	}
}

// HandleCallback processes one callback delivery: a stored-card lookup when
// the listcards flag is present, otherwise a payment notification.
func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if r.URL.Query().Has(queryFlagListCards) {
		h.handleListCards(ctx, w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	// The notification payload always travels in the POST body; query
	// parameters only carry the merchant's own flags.
	payload := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		payload[key] = r.PostForm.Get(key)
	}

	req := gateway.CallbackRequest{
		Payload:       payload,
		Secure:        middle.IsSecureRequest(r),
		BrowserReturn: r.URL.Query().Has(queryFlagReturn),
	}

	result, err := h.gateway.HandleNotification(ctx, req)
	if err != nil {
		logger.Error("notification processing failed", err)
		response.Error(w, http.StatusInternalServerError, "Notification processing failed", err)
		return
	}

	h.logNotification(r, req, result)

	if result.RedirectURL != "" {
		response.Redirect(w, r, result.RedirectURL)
		return
	}
	response.Text(w, http.StatusOK, result.Body)
}

func (h *CallbackHandler) handleListCards(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get(queryParamUser), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(w, http.StatusBadRequest, "Invalid user ID", err)
		return
	}

	cards, err := h.gateway.StoredCards(ctx, userID)
	if err != nil {
		logger.Error("stored card lookup failed", err, logger.LogContext{
			Fields: map[string]any{"user_id": userID},
		})
		response.Error(w, http.StatusInternalServerError, "Card lookup failed", err)
		return
	}

	// The storefront widget expects the bare array, not the API envelope.
	_ = response.WriteJSON(w, http.StatusOK, cards)
}

// logNotification ships the reconciliation outcome to OpenSearch for audit.
func (h *CallbackHandler) logNotification(r *http.Request, req gateway.CallbackRequest, result *gateway.Result) {
	if h.openSearchLogger == nil {
		return
	}

	channel := "server"
	if req.BrowserReturn {
		channel = "browser"
	}

	payload := make(map[string]string, len(req.Payload))
	for key, value := range req.Payload {
		payload[key] = opensearch.SanitizeForLog(value)
	}

	entry := opensearch.NotificationLog{
		Timestamp: time.Now().UTC(),
		Channel:   channel,
		Outcome:   string(result.Outcome),
		RequestID: middleware.GetReqID(r.Context()),
		ClientIP:  middle.GetClientIP(r),
		Payload:   payload,
	}
	if n := result.Notification; n != nil {
		entry.Operation = string(n.OperationType)
		entry.OrderInfo = &opensearch.OrderInfo{
			OrderID:       strconv.FormatInt(result.OrderID, 10),
			TransactionID: n.Tid,
			AmountCents:   n.AmountCents,
			Status:        string(n.Status),
		}
	}

	if err := h.openSearchLogger.LogNotification(context.Background(), entry); err != nil {
		logger.Warn("failed to index notification log", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
	}
}
