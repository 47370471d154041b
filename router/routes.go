// Package router wires the merchant API routes onto a chi router.
package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/easytransac/easytransac-bridge/handler"
)

// Handlers groups the handlers the merchant API mounts. The public callback
// endpoint is mounted separately in main, outside the authenticated tree.
type Handlers struct {
	Checkout *handler.CheckoutHandler
	Orders   *handler.OrderHandler
	Cards    *handler.CardsHandler
}

// Routes mounts the /v1 merchant API.
func Routes(r chi.Router, h Handlers) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/checkout", h.Checkout.Checkout)
		r.Post("/checkout/oneclick", h.Checkout.OneClick)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Orders.CreateOrder)
			r.Get("/{orderID}", h.Orders.GetOrder)
			r.Get("/{orderID}/notes", h.Orders.GetOrderNotes)
			r.Post("/{orderID}/refund", h.Orders.RefundOrder)
		})

		r.Get("/users/{userID}/cards", h.Cards.ListCards)
	})
}
