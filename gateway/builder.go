package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/easytransac/easytransac-bridge/easytransac"
	"github.com/easytransac/easytransac-bridge/infra/logger"
	"github.com/easytransac/easytransac-bridge/infra/validate"
	"github.com/easytransac/easytransac-bridge/store"
)

var (
	ErrFreeTrialUnsupported  = errors.New("gateway: free-trial subscriptions are not supported")
	ErrMultipleSubscriptions = errors.New("gateway: at most one subscription per order is supported")
	ErrInvalidPhone          = errors.New("gateway: phone number is invalid")
)

// CouponRecurringPercent is the coupon type whose discount applies to every
// recurring installment, not just the first.
const CouponRecurringPercent = "recurring_percent"

// Subscription is the recurring-billing terms of an order line. All amounts
// are in minor units.
type Subscription struct {
	// PriceCents is the recurring price per period, tax included.
	PriceCents int64
	// Period is the billing period unit: day, week, month, year or empty.
	Period string
	// Length is the fixed number of installments, 0 for open ended.
	Length int
	// SignUpFeeCents and SignUpFeeTaxCents are the one-time fee excluding
	// tax and its tax part.
	SignUpFeeCents    int64
	SignUpFeeTaxCents int64
	// FreeTrial marks a subscription starting with a free period.
	FreeTrial bool
}

// Coupon is a discount applied to the order.
type Coupon struct {
	Type string
	// DiscountCents and DiscountTaxCents are the per-period discount
	// excluding tax and its tax part.
	DiscountCents    int64
	DiscountTaxCents int64
}

// CheckoutRequest starts a payment for an existing order.
type CheckoutRequest struct {
	OrderID       int64
	Customer      easytransac.Customer
	Language      string
	VATNumber     string
	Subscriptions []Subscription
	Coupons       []Coupon
}

// Checkout builds and starts a hosted payment-page transaction for an order
// and returns the page URL the customer must be redirected to.
func (g *Gateway) Checkout(ctx context.Context, req CheckoutRequest) (string, error) {
	order, err := g.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		return "", err
	}

	tx, err := g.buildTransaction(order, req)
	if err != nil {
		return "", err
	}

	api, err := g.apiClient()
	if err != nil {
		return "", err
	}

	result, err := api.PaymentPage(ctx, tx)
	if err != nil {
		return "", err
	}

	if err := g.reduceStock(ctx, order.ID); err != nil {
		return "", err
	}

	logger.Info("payment page created", logger.LogContext{
		OrderID: strconv.FormatInt(order.ID, 10),
		Fields:  map[string]any{"tid": result.Tid},
	})
	return result.PageURL, nil
}

// buildTransaction maps an order and its checkout terms onto a processor
// transaction.
func (g *Gateway) buildTransaction(order *store.Order, req CheckoutRequest) (*easytransac.PaymentPageTransaction, error) {
	customer := req.Customer
	customer.Phone = strings.ReplaceAll(customer.Phone, "+", "00")
	if customer.Phone != "" && !validate.IsValidPhone(customer.Phone) {
		return nil, ErrInvalidPhone
	}

	tx := &easytransac.PaymentPageTransaction{
		Customer:    customer,
		AmountCents: order.TotalCents,
		OrderRef:    strconv.FormatInt(order.ID, 10),
		Description: fmt.Sprintf("Order %d", order.ID),
		Language:    languageCode(req.Language),
		Secure:      g.settings.Use3DSecure,
		OneClick:    g.settings.OneClickEnabled,
		ReturnURL:   g.settings.ReturnURL,
		CancelURL:   g.settings.CancelURL,
	}

	if len(req.Subscriptions) == 0 {
		return tx, nil
	}
	if len(req.Subscriptions) > 1 {
		return nil, ErrMultipleSubscriptions
	}

	sub := req.Subscriptions[0]
	if sub.FreeTrial {
		return nil, ErrFreeTrialUnsupported
	}

	// Card storage does not survive the subscription flow on the processor
	// side, so one-click is off for subscriptions.
	tx.OneClick = false

	discount := recurringDiscount(req.Coupons)
	recurring := sub.PriceCents - discount

	// One-time fee: tax included unless the buyer provided a VAT number.
	fee := sub.SignUpFeeCents
	if req.VATNumber == "" {
		fee += sub.SignUpFeeTaxCents
	}

	if sub.Length > 0 {
		amount := recurring*int64(sub.Length) + fee
		tx.AmountCents = amount
		tx.MultiplePayments = true
		tx.MultiplePaymentsRepeat = sub.Length

		// The processor requires the first installment to be at least 20%
		// of the lifetime value; only set it when an even split falls short.
		down := int64(math.Ceil(0.20 * float64(amount)))
		if down > amount/int64(sub.Length) {
			tx.DownPaymentCents = down
		}
		return tx, nil
	}

	tx.AmountCents = recurring
	tx.Rebill = true
	tx.Recurrence = recurrenceCode(sub.Period)
	if fee > 0 {
		tx.DownPaymentCents = recurring + fee
	}
	return tx, nil
}

func (g *Gateway) reduceStock(ctx context.Context, orderID int64) error {
	if g.settings.DisableStockReduce {
		return nil
	}
	return g.store.ReduceStock(ctx, orderID)
}

// recurringDiscount sums the per-period discount of every recurring-percent
// coupon, tax included.
func recurringDiscount(coupons []Coupon) int64 {
	var total int64
	for _, coupon := range coupons {
		if coupon.Type == CouponRecurringPercent {
			total += coupon.DiscountCents + coupon.DiscountTaxCents
		}
	}
	return total
}

func recurrenceCode(period string) string {
	switch period {
	case "day":
		return easytransac.RecurrenceDaily
	case "week":
		return easytransac.RecurrenceWeekly
	case "month":
		return easytransac.RecurrenceMonthly
	case "year":
		return easytransac.RecurrenceYearly
	default:
		return easytransac.RecurrenceMonthly
	}
}

func languageCode(language string) string {
	if strings.HasPrefix(strings.ToLower(language), "fr") {
		return "FRE"
	}
	return "ENG"
}
