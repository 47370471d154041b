package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/easytransac/easytransac-bridge/easytransac"
	"github.com/easytransac/easytransac-bridge/gateway"
	"github.com/easytransac/easytransac-bridge/infra/response"
	"github.com/easytransac/easytransac-bridge/store"
)

// CheckoutHandler starts payments: hosted payment-page redirects and
// immediate one-click charges.
type CheckoutHandler struct {
	gateway  *gateway.Gateway
	validate *validator.Validate
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(g *gateway.Gateway, validate *validator.Validate) *CheckoutHandler {
	return &CheckoutHandler{
		gateway:  g,
		validate: validate,
	}
}

// CustomerRequest is the buyer's details on a checkout call.
type CustomerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Address   string `json:"address"`
	ZipCode   string `json:"zipCode"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

// SubscriptionRequest is the recurring-billing terms of the order.
type SubscriptionRequest struct {
	PriceCents        int64  `json:"priceCents" validate:"required,gt=0"`
	Period            string `json:"period" validate:"omitempty,oneof=day week month year"`
	Length            int    `json:"length" validate:"gte=0"`
	SignUpFeeCents    int64  `json:"signUpFeeCents" validate:"gte=0"`
	SignUpFeeTaxCents int64  `json:"signUpFeeTaxCents" validate:"gte=0"`
	FreeTrial         bool   `json:"freeTrial"`
}

// CouponRequest is a discount attached to the order.
type CouponRequest struct {
	Type             string `json:"type" validate:"required"`
	DiscountCents    int64  `json:"discountCents" validate:"gte=0"`
	DiscountTaxCents int64  `json:"discountTaxCents" validate:"gte=0"`
}

// CheckoutRequest starts a hosted payment-page transaction.
type CheckoutRequest struct {
	OrderID       int64                 `json:"orderId" validate:"required,gt=0"`
	Customer      CustomerRequest       `json:"customer" validate:"required"`
	Language      string                `json:"language"`
	VATNumber     string                `json:"vatNumber"`
	Subscriptions []SubscriptionRequest `json:"subscriptions" validate:"dive"`
	Coupons       []CouponRequest       `json:"coupons" validate:"dive"`
}

// OneClickRequest charges a stored card alias immediately.
type OneClickRequest struct {
	OrderID  int64           `json:"orderId" validate:"required,gt=0"`
	Alias    string          `json:"alias" validate:"required"`
	Customer CustomerRequest `json:"customer" validate:"required"`
	Language string          `json:"language"`
}

// Checkout handles POST /v1/checkout.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	pageURL, err := h.gateway.Checkout(ctx, toGatewayRequest(req))
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	response.Success(w, http.StatusCreated, "Payment page created", map[string]any{
		"paymentUrl": pageURL,
	})
}

// OneClick handles POST /v1/checkout/oneclick.
func (h *CheckoutHandler) OneClick(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req OneClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	outcome, notice, err := h.gateway.PayWithStoredCard(ctx, gateway.CheckoutRequest{
		OrderID:  req.OrderID,
		Customer: toCustomer(req.Customer),
		Language: req.Language,
	}, req.Alias)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	response.Success(w, http.StatusOK, "Payment processed", map[string]any{
		"outcome": string(outcome),
		"notice":  notice,
	})
}

func toGatewayRequest(req CheckoutRequest) gateway.CheckoutRequest {
	out := gateway.CheckoutRequest{
		OrderID:   req.OrderID,
		Customer:  toCustomer(req.Customer),
		Language:  req.Language,
		VATNumber: req.VATNumber,
	}
	for _, sub := range req.Subscriptions {
		out.Subscriptions = append(out.Subscriptions, gateway.Subscription{
			PriceCents:        sub.PriceCents,
			Period:            sub.Period,
			Length:            sub.Length,
			SignUpFeeCents:    sub.SignUpFeeCents,
			SignUpFeeTaxCents: sub.SignUpFeeTaxCents,
			FreeTrial:         sub.FreeTrial,
		})
	}
	for _, coupon := range req.Coupons {
		out.Coupons = append(out.Coupons, gateway.Coupon{
			Type:             coupon.Type,
			DiscountCents:    coupon.DiscountCents,
			DiscountTaxCents: coupon.DiscountTaxCents,
		})
	}
	return out
}

func toCustomer(req CustomerRequest) easytransac.Customer {
	return easytransac.Customer{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Address:   req.Address,
		ZipCode:   req.ZipCode,
		City:      req.City,
		Country:   req.Country,
		Phone:     req.Phone,
	}
}

// writeCheckoutError maps gateway errors onto HTTP statuses: unsupported
// flows are client errors, everything else is a processor/storage failure.
func writeCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		response.Error(w, http.StatusNotFound, "Order not found", err)
	case errors.Is(err, gateway.ErrFreeTrialUnsupported),
		errors.Is(err, gateway.ErrMultipleSubscriptions),
		errors.Is(err, gateway.ErrInvalidPhone),
		errors.Is(err, gateway.ErrOneClickSubscription),
		errors.Is(err, gateway.ErrNoStoredCards):
		response.Error(w, http.StatusUnprocessableEntity, "Unsupported payment flow", err)
	default:
		response.Error(w, http.StatusInternalServerError, "Payment initiation failed", err)
	}
}
