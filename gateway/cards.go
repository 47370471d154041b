package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/easytransac/easytransac-bridge/easytransac"
)

var (
	ErrNoStoredCards        = errors.New("gateway: user has no stored cards")
	ErrOneClickSubscription = errors.New("gateway: one-click cannot pay subscription orders")
)

// StoredCards returns the cards a user stored with the processor, empty
// (never nil) when the user has never completed a payment.
func (g *Gateway) StoredCards(ctx context.Context, userID int64) ([]easytransac.CreditCard, error) {
	clientID, err := g.store.ClientID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		return []easytransac.CreditCard{}, nil
	}

	api, err := g.apiClient()
	if err != nil {
		return nil, err
	}

	cards, err := api.ListCards(ctx, clientID)
	if err != nil {
		return nil, err
	}

	for i := range cards {
		if len(cards[i].Year) == 4 {
			cards[i].Year = cards[i].Year[2:]
		}
	}
	if cards == nil {
		cards = []easytransac.CreditCard{}
	}
	return cards, nil
}

// PayWithStoredCard charges an order immediately against a stored card
// alias and applies the resulting status the same way a notification would.
func (g *Gateway) PayWithStoredCard(ctx context.Context, req CheckoutRequest, alias string) (Outcome, string, error) {
	if len(req.Subscriptions) > 0 {
		return "", "", ErrOneClickSubscription
	}

	order, err := g.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		return "", "", err
	}

	clientID, err := g.store.ClientID(ctx, order.UserID)
	if err != nil {
		return "", "", err
	}
	if clientID == "" {
		return "", "", ErrNoStoredCards
	}

	customer := req.Customer
	customer.ClientID = clientID

	api, err := g.apiClient()
	if err != nil {
		return "", "", err
	}

	done, err := api.OneClickPayment(ctx, &easytransac.OneClickTransaction{
		Customer:    customer,
		Alias:       alias,
		AmountCents: order.TotalCents,
		OrderRef:    strconv.FormatInt(order.ID, 10),
		Description: fmt.Sprintf("Order %d", order.ID),
		Language:    languageCode(req.Language),
	})
	if err != nil {
		return "", "", err
	}

	notification := &easytransac.Notification{
		OperationType: easytransac.OperationPayment,
		Status:        done.Status,
		AmountCents:   order.TotalCents,
		OrderRef:      done.OrderRef,
		Tid:           done.Tid,
		ClientID:      done.Client.ID,
		Message:       done.Message,
	}

	outcome, notice, err := g.applyTransaction(ctx, order, notification)
	if err != nil {
		return "", "", err
	}

	if outcome == OutcomeApplied && done.Status == easytransac.StatusCaptured {
		if err := g.reduceStock(ctx, order.ID); err != nil {
			return "", "", err
		}
	}
	return outcome, notice, nil
}
