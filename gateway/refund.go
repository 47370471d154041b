package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/easytransac/easytransac-bridge/infra/logger"
	"github.com/easytransac/easytransac-bridge/store"
)

var (
	ErrNoTransactionID = errors.New("gateway: order has no transaction ID to refund")
	ErrPartialRefund   = errors.New("gateway: only full refunds are supported")
)

// Refund refunds an order in full through the processor and marks it
// refunded. Partial amounts are rejected before any remote call is made.
func (g *Gateway) Refund(ctx context.Context, orderID, amountCents int64) error {
	order, err := g.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if order.TransactionID == "" {
		return ErrNoTransactionID
	}
	if amountCents != order.TotalCents {
		return ErrPartialRefund
	}

	api, err := g.apiClient()
	if err != nil {
		return err
	}
	if _, err := api.Refund(ctx, order.TransactionID); err != nil {
		return err
	}

	if err := g.store.UpdateStatus(ctx, order.ID, store.StatusRefunded); err != nil {
		return err
	}
	note := fmt.Sprintf("Refunded %s EUR via EasyTransac (Tid %s).",
		formatEuros(order.TotalCents), order.TransactionID)
	if err := g.store.AddNote(ctx, order.ID, note); err != nil {
		return err
	}

	logger.Info("order refunded", logger.LogContext{
		OrderID: strconv.FormatInt(order.ID, 10),
		Fields:  map[string]any{"tid": order.TransactionID},
	})
	return nil
}
