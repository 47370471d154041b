package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/easytransac/easytransac-bridge/gateway"
	"github.com/easytransac/easytransac-bridge/infra/response"
	"github.com/easytransac/easytransac-bridge/store"
)

// OrderHandler manages the shop-side order records the gateway reconciles
// against.
type OrderHandler struct {
	store    *store.Store
	gateway  *gateway.Gateway
	validate *validator.Validate
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(s *store.Store, g *gateway.Gateway, validate *validator.Validate) *OrderHandler {
	return &OrderHandler{
		store:    s,
		gateway:  g,
		validate: validate,
	}
}

// CreateOrderRequest registers a new order awaiting payment.
type CreateOrderRequest struct {
	UserID     int64              `json:"userId" validate:"gte=0"`
	TotalCents int64              `json:"totalCents" validate:"required,gt=0"`
	Currency   string             `json:"currency" validate:"omitempty,len=3"`
	Items      []OrderItemRequest `json:"items" validate:"dive"`
}

// OrderItemRequest is one purchased line.
type OrderItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// RefundRequest asks for a refund of an order. The amount must equal the
// order total; partial refunds are unsupported.
type RefundRequest struct {
	AmountCents int64 `json:"amountCents" validate:"required,gt=0"`
}

// CreateOrder handles POST /v1/orders.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	order := &store.Order{
		UserID:     req.UserID,
		TotalCents: req.TotalCents,
		Currency:   req.Currency,
	}
	if err := h.store.CreateOrder(ctx, order); err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to create order", err)
		return
	}
	for _, item := range req.Items {
		if err := h.store.AddOrderItem(ctx, store.OrderItem{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}); err != nil {
			response.Error(w, http.StatusInternalServerError, "Failed to record order items", err)
			return
		}
	}

	response.Success(w, http.StatusCreated, "Order created", orderPayload(order))
}

// GetOrder handles GET /v1/orders/{orderID}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrOrderNotFound) {
		response.Error(w, http.StatusNotFound, "Order not found", err)
		return
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load order", err)
		return
	}

	response.Success(w, http.StatusOK, "Order retrieved", orderPayload(order))
}

// GetOrderNotes handles GET /v1/orders/{orderID}/notes.
func (h *OrderHandler) GetOrderNotes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	if _, err := h.store.GetOrder(ctx, orderID); errors.Is(err, store.ErrOrderNotFound) {
		response.Error(w, http.StatusNotFound, "Order not found", err)
		return
	} else if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load order", err)
		return
	}

	notes, err := h.store.Notes(ctx, orderID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load order notes", err)
		return
	}
	if notes == nil {
		notes = []string{}
	}

	response.Success(w, http.StatusOK, "Order notes retrieved", map[string]any{
		"orderId": orderID,
		"notes":   notes,
	})
}

// RefundOrder handles POST /v1/orders/{orderID}/refund.
func (h *OrderHandler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	err := h.gateway.Refund(ctx, orderID, req.AmountCents)
	switch {
	case err == nil:
		response.Success(w, http.StatusOK, "Order refunded", map[string]any{"orderId": orderID})
	case errors.Is(err, store.ErrOrderNotFound):
		response.Error(w, http.StatusNotFound, "Order not found", err)
	case errors.Is(err, gateway.ErrPartialRefund):
		response.Error(w, http.StatusUnprocessableEntity, "Only full refunds are supported", err)
	case errors.Is(err, gateway.ErrNoTransactionID):
		response.Error(w, http.StatusUnprocessableEntity, "Order has no refundable transaction", err)
	default:
		response.Error(w, http.StatusInternalServerError, "Refund failed", err)
	}
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		response.Error(w, http.StatusBadRequest, "Invalid order ID", err)
		return 0, false
	}
	return orderID, true
}

func orderPayload(order *store.Order) map[string]any {
	return map[string]any{
		"id":            order.ID,
		"userId":        order.UserID,
		"totalCents":    order.TotalCents,
		"currency":      order.Currency,
		"status":        order.Status,
		"transactionId": order.TransactionID,
		"paymentMethod": order.PaymentMethod,
		"createdAt":     order.CreatedAt,
		"updatedAt":     order.UpdatedAt,
	}
}
