// Package easytransacbridge hosts a standalone payment bridge between a
// shop's order store and the EasyTransac payment processor.
//
// # Overview
//
// The service owns the order-side state of a purchase (orders, notes, user
// card profiles, carts, stock) in SQLite and drives payments through the
// EasyTransac API: hosted payment pages, one-click charges on stored cards
// and full refunds. Its core is the notification reconciler, which receives
// the processor's asynchronous callbacks, validates them against local
// orders and applies exactly one status transition per payment event.
//
// # Layout
//
//   - cmd: service entry point
//   - easytransac: signed API client and notification verification
//   - gateway: reconciler, checkout builder, refunds, stored cards
//   - store: SQLite persistence for orders, notes, users, carts, products
//   - handler, router: HTTP surface (public callback + merchant API)
//   - infra: configuration, logging, OpenSearch audit, mail, middleware
package easytransacbridge
