// Package store persists orders, order notes, user metadata, carts and
// product stock in SQLite. It is the shop-side state the payment gateway
// reconciles processor notifications against.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Order statuses. An order starts pending, moves to processing when a
// payment is captured and never leaves processing through reconciliation.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
	StatusCancelled  = "cancelled"
)

// metaKeyClientID is the user-meta key holding the processor-side client
// profile ID used for one-click payments.
const metaKeyClientID = "easytransac_client_id"

var (
	ErrOrderNotFound = errors.New("store: order not found")
)

// Order is a shop order as the gateway sees it. TotalCents is the grand
// total in minor units.
type Order struct {
	ID            int64
	UserID        int64
	TotalCents    int64
	Currency      string
	Status        string
	TransactionID string
	PaymentMethod string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem is a purchased line on an order.
type OrderItem struct {
	OrderID   int64
	ProductID int64
	Quantity  int64
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a Store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL DEFAULT 0,
			total_cents INTEGER NOT NULL,
			currency TEXT NOT NULL DEFAULT 'EUR',
			status TEXT NOT NULL DEFAULT 'pending',
			transaction_id TEXT NOT NULL DEFAULT '',
			payment_method TEXT NOT NULL DEFAULT 'easytransac',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id INTEGER NOT NULL REFERENCES orders(id),
			product_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS order_notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id INTEGER NOT NULL,
			note TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_meta (
			user_id INTEGER NOT NULL,
			meta_key TEXT NOT NULL,
			meta_value TEXT NOT NULL,
			PRIMARY KEY (user_id, meta_key)
		)`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			product_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			price_cents INTEGER NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL DEFAULT 0,
			manage_stock INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_notes_order ON order_notes(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cart_items_user ON cart_items(user_id)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migration failed: %w", err)
		}
	}
	return nil
}

// CreateOrder inserts an order and returns it with its assigned ID.
func (s *Store) CreateOrder(ctx context.Context, order *Order) error {
	if order.Currency == "" {
		order.Currency = "EUR"
	}
	if order.Status == "" {
		order.Status = StatusPending
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = "easytransac"
	}

	if order.ID != 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO orders (id, user_id, total_cents, currency, status, transaction_id, payment_method)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			order.ID, order.UserID, order.TotalCents, order.Currency, order.Status, order.TransactionID, order.PaymentMethod)
		if err != nil {
			return fmt.Errorf("store: failed to create order: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (user_id, total_cents, currency, status, transaction_id, payment_method)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		order.UserID, order.TotalCents, order.Currency, order.Status, order.TransactionID, order.PaymentMethod)
	if err != nil {
		return fmt.Errorf("store: failed to create order: %w", err)
	}

	order.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: failed to read order ID: %w", err)
	}
	return nil
}

// GetOrder loads an order by ID.
func (s *Store) GetOrder(ctx context.Context, id int64) (*Order, error) {
	var order Order
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, total_cents, currency, status, transaction_id, payment_method, created_at, updated_at
		 FROM orders WHERE id = ?`, id).
		Scan(&order.ID, &order.UserID, &order.TotalCents, &order.Currency, &order.Status,
			&order.TransactionID, &order.PaymentMethod, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to load order %d: %w", id, err)
	}
	return &order, nil
}

// SetTransactionID stores the processor transaction ID on an order.
func (s *Store) SetTransactionID(ctx context.Context, orderID int64, tid string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET transaction_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, tid, orderID)
	if err != nil {
		return fmt.Errorf("store: failed to set transaction ID on order %d: %w", orderID, err)
	}
	return ensureRowAffected(res)
}

// UpdateStatus sets an order status unconditionally.
func (s *Store) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("store: failed to update order %d status: %w", orderID, err)
	}
	return ensureRowAffected(res)
}

// TransitionStatus sets an order status unless the order is already
// processing, so a late or replayed notification cannot regress a paid
// order. Returns whether the status changed.
func (s *Store) TransitionStatus(ctx context.Context, orderID int64, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status != ?`, status, orderID, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("store: failed to transition order %d status: %w", orderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// MarkPaid moves an order to processing and records the transaction ID.
// Returns false without changing anything when the order is already
// processing.
func (s *Store) MarkPaid(ctx context.Context, orderID int64, tid string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, transaction_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status != ?`, StatusProcessing, tid, orderID, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("store: failed to mark order %d paid: %w", orderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// AddNote appends an order note.
func (s *Store) AddNote(ctx context.Context, orderID int64, note string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO order_notes (order_id, note) VALUES (?, ?)`, orderID, note); err != nil {
		return fmt.Errorf("store: failed to add note to order %d: %w", orderID, err)
	}
	return nil
}

// Notes returns the notes of an order, oldest first.
func (s *Store) Notes(ctx context.Context, orderID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note FROM order_notes WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to load notes of order %d: %w", orderID, err)
	}
	defer rows.Close()

	var notes []string
	for rows.Next() {
		var note string
		if err := rows.Scan(&note); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// SetClientID stores the processor client profile ID on a user.
func (s *Store) SetClientID(ctx context.Context, userID int64, clientID string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO user_meta (user_id, meta_key, meta_value) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		userID, metaKeyClientID, clientID); err != nil {
		return fmt.Errorf("store: failed to set client ID for user %d: %w", userID, err)
	}
	return nil
}

// ClientID returns the processor client profile ID of a user, empty when
// the user never paid through the processor.
func (s *Store) ClientID(ctx context.Context, userID int64) (string, error) {
	var clientID string
	err := s.db.QueryRowContext(ctx,
		`SELECT meta_value FROM user_meta WHERE user_id = ? AND meta_key = ?`,
		userID, metaKeyClientID).Scan(&clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: failed to load client ID for user %d: %w", userID, err)
	}
	return clientID, nil
}

// Product is a catalog entry, tracked here only for stock management.
type Product struct {
	ID          int64
	Name        string
	PriceCents  int64
	Stock       int64
	ManageStock bool
}

// CreateProduct inserts a product, honoring a preset ID.
func (s *Store) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID != 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO products (id, name, price_cents, stock, manage_stock) VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.PriceCents, p.Stock, p.ManageStock)
		if err != nil {
			return fmt.Errorf("store: failed to create product: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (name, price_cents, stock, manage_stock) VALUES (?, ?, ?, ?)`,
		p.Name, p.PriceCents, p.Stock, p.ManageStock)
	if err != nil {
		return fmt.Errorf("store: failed to create product: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: failed to read product ID: %w", err)
	}
	return nil
}

// ProductStock returns the current stock of a product.
func (s *Store) ProductStock(ctx context.Context, productID int64) (int64, error) {
	var stock int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT stock FROM products WHERE id = ?`, productID).Scan(&stock); err != nil {
		return 0, fmt.Errorf("store: failed to read stock of product %d: %w", productID, err)
	}
	return stock, nil
}

// AddCartItem appends a line to a user's cart.
func (s *Store) AddCartItem(ctx context.Context, userID, productID, quantity int64) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity) VALUES (?, ?, ?)`,
		userID, productID, quantity); err != nil {
		return fmt.Errorf("store: failed to add cart item for user %d: %w", userID, err)
	}
	return nil
}

// ClearCart empties a user's cart.
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("store: failed to clear cart of user %d: %w", userID, err)
	}
	return nil
}

// CartCount returns the number of cart lines of a user.
func (s *Store) CartCount(ctx context.Context, userID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cart_items WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: failed to count cart of user %d: %w", userID, err)
	}
	return count, nil
}

// AddOrderItem records a purchased line on an order.
func (s *Store) AddOrderItem(ctx context.Context, item OrderItem) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO order_items (order_id, product_id, quantity) VALUES (?, ?, ?)`,
		item.OrderID, item.ProductID, item.Quantity); err != nil {
		return fmt.Errorf("store: failed to add item to order %d: %w", item.OrderID, err)
	}
	return nil
}

// ReduceStock decrements product stock for every item of an order. Products
// without stock management are skipped.
func (s *Store) ReduceStock(ctx context.Context, orderID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock = stock - (
			SELECT SUM(quantity) FROM order_items
			WHERE order_items.order_id = ? AND order_items.product_id = products.id
		 )
		 WHERE manage_stock = 1 AND id IN (
			SELECT product_id FROM order_items WHERE order_id = ?
		 )`, orderID, orderID); err != nil {
		return fmt.Errorf("store: failed to reduce stock for order %d: %w", orderID, err)
	}
	return nil
}

func ensureRowAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
