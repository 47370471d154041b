// Package gateway implements the EasyTransac payment gateway: checkout
// request building, reconciliation of asynchronous payment notifications
// into order state, refunds and stored-card lookups.
package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/easytransac/easytransac-bridge/easytransac"
	"github.com/easytransac/easytransac-bridge/infra/config"
	"github.com/easytransac/easytransac-bridge/store"
)

// OrderStore is the shop-side state the gateway reads and mutates.
type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*store.Order, error)
	SetTransactionID(ctx context.Context, orderID int64, tid string) error
	UpdateStatus(ctx context.Context, orderID int64, status string) error
	TransitionStatus(ctx context.Context, orderID int64, status string) (bool, error)
	MarkPaid(ctx context.Context, orderID int64, tid string) (bool, error)
	AddNote(ctx context.Context, orderID int64, note string) error
	SetClientID(ctx context.Context, userID int64, clientID string) error
	ClientID(ctx context.Context, userID int64) (string, error)
	ClearCart(ctx context.Context, userID int64) error
	ReduceStock(ctx context.Context, orderID int64) error
}

// Mailer sends anomaly notifications to the configured operators.
type Mailer interface {
	Send(to []string, subject, body string) error
}

// ErrNotConfigured is returned by outbound operations when the gateway runs
// without an API key. Inbound callbacks degrade to a redirect instead.
var ErrNotConfigured = errors.New("gateway: EasyTransac API key is not configured")

// Gateway ties the processor API, the order store and the gateway settings
// together.
type Gateway struct {
	api      *easytransac.Client
	store    OrderStore
	mailer   Mailer
	settings config.GatewaySettings

	locks orderLocks
}

// New creates a Gateway. The mailer may be nil when no anomaly emails are
// configured.
func New(api *easytransac.Client, orderStore OrderStore, mailer Mailer, settings config.GatewaySettings) *Gateway {
	return &Gateway{
		api:      api,
		store:    orderStore,
		mailer:   mailer,
		settings: settings,
	}
}

func (g *Gateway) apiClient() (*easytransac.Client, error) {
	if g.api == nil {
		return nil, ErrNotConfigured
	}
	return g.api, nil
}

// orderLocks serializes reconciliation per order ID so that redelivered
// notifications cannot race between the status read and the status write.
type orderLocks struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the per-order lock and returns its release function.
func (l *orderLocks) lock(orderID int64) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[int64]*lockEntry)
	}
	entry, ok := l.entries[orderID]
	if !ok {
		entry = &lockEntry{}
		l.entries[orderID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, orderID)
		}
		l.mu.Unlock()
	}
}
