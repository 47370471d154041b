// Package handler provides the HTTP request handlers of the EasyTransac
// bridge.
//
// The handlers split along the two faces of the service:
//
//   - CallbackHandler: the single public endpoint the payment processor
//     posts notifications to and customers' browsers return through, plus
//     the stored-card lookup the checkout widget calls.
//   - CheckoutHandler, OrderHandler, CardsHandler: the authenticated
//     merchant API for creating orders, starting payments, refunding and
//     listing stored cards.
//   - HealthHandler: liveness and dependency checks.
//
// Handlers decode and validate requests, delegate to the gateway package
// and translate its outcomes into HTTP responses; no reconciliation logic
// lives here.
package handler
