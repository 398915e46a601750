// Package postgres provides a PostgreSQL implementation of the order store
// and transaction state handler. Cashback application uses a conditional
// UPDATE guarded by the idempotency marker, so concurrent settlement
// deliveries for the same order resolve to exactly one applied cashback.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flizpay/flizpay-go/pkg/flizpay"
)

// Storage implements flizpay.OrderStore and flizpay.TransactionStateHandler
// using PostgreSQL.
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Schema contains the DDL for the tables this adapter reads and writes.
// Price aggregates and custom fields are stored as JSONB so the tax
// decomposition survives round trips unchanged.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY,
	currency_iso  TEXT NOT NULL,
	price         JSONB NOT NULL,
	custom_fields JSONB,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS order_line_items (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	identifier TEXT NOT NULL,
	label      TEXT NOT NULL,
	type       TEXT NOT NULL,
	good       BOOLEAN NOT NULL,
	removable  BOOLEAN NOT NULL,
	stackable  BOOLEAN NOT NULL,
	quantity   INTEGER NOT NULL,
	position   INTEGER NOT NULL,
	price      JSONB NOT NULL,
	payload    JSONB
);

CREATE INDEX IF NOT EXISTS idx_line_items_order ON order_line_items(order_id);

CREATE TABLE IF NOT EXISTS order_transactions (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL DEFAULT 0,
	state      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_order ON order_transactions(order_id);
`

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool, config: config}, nil
}

// InitSchema creates the tables if they do not exist yet.
func (s *Storage) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// FindOrder implements flizpay.OrderStore
func (s *Storage) FindOrder(ctx context.Context, orderID string) (*flizpay.Order, error) {
	var order flizpay.Order
	var priceJSON, customFieldsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, currency_iso, price, custom_fields
			FROM orders WHERE id = $1`,
		orderID).Scan(&order.ID, &order.CurrencyISO, &priceJSON, &customFieldsJSON)

	if err == pgx.ErrNoRows {
		return nil, flizpay.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if err := json.Unmarshal(priceJSON, &order.Price); err != nil {
		return nil, fmt.Errorf("failed to decode order price: %w", err)
	}
	if len(customFieldsJSON) > 0 {
		if err := json.Unmarshal(customFieldsJSON, &order.CustomFields); err != nil {
			return nil, fmt.Errorf("failed to decode custom fields: %w", err)
		}
	}

	order.LineItems, err = s.lineItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	order.Transactions, err = s.transactions(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *Storage) lineItems(ctx context.Context, orderID string) ([]flizpay.LineItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, identifier, label, type, good, removable, stackable, quantity, position, price, payload
			FROM order_line_items WHERE order_id = $1 ORDER BY position`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var items []flizpay.LineItem
	for rows.Next() {
		var li flizpay.LineItem
		var priceJSON, payloadJSON []byte
		if err := rows.Scan(&li.ID, &li.Identifier, &li.Label, &li.Type,
			&li.Good, &li.Removable, &li.Stackable, &li.Quantity, &li.Position,
			&priceJSON, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		li.OrderID = orderID
		if err := json.Unmarshal(priceJSON, &li.Price); err != nil {
			return nil, fmt.Errorf("failed to decode line item price: %w", err)
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &li.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode line item payload: %w", err)
			}
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read line items: %w", err)
	}
	return items, nil
}

func (s *Storage) transactions(ctx context.Context, orderID string) ([]flizpay.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, state FROM order_transactions
			WHERE order_id = $1 ORDER BY position`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []flizpay.Transaction
	for rows.Next() {
		var tx flizpay.Transaction
		if err := rows.Scan(&tx.ID, &tx.State); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return txs, nil
}

// ApplyCashback implements flizpay.OrderStore. The price update and the
// idempotency marker are written by a single conditional UPDATE, so only
// one of several concurrent deliveries can win; the credit line item is
// inserted in the same transaction.
func (s *Storage) ApplyCashback(ctx context.Context, app *flizpay.CashbackApplication) (bool, error) {
	if app == nil || app.OrderID == "" {
		return false, fmt.Errorf("invalid cashback application")
	}

	priceJSON, err := json.Marshal(app.NewPrice)
	if err != nil {
		return false, fmt.Errorf("failed to encode order price: %w", err)
	}
	customFieldsJSON, err := json.Marshal(app.CustomFields)
	if err != nil {
		return false, fmt.Errorf("failed to encode custom fields: %w", err)
	}
	itemPriceJSON, err := json.Marshal(app.CreditLineItem.Price)
	if err != nil {
		return false, fmt.Errorf("failed to encode line item price: %w", err)
	}
	var itemPayloadJSON []byte
	if app.CreditLineItem.Payload != nil {
		itemPayloadJSON, err = json.Marshal(app.CreditLineItem.Payload)
		if err != nil {
			return false, fmt.Errorf("failed to encode line item payload: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE orders
			SET price = $2,
				custom_fields = COALESCE(custom_fields, '{}'::jsonb) || $3,
				updated_at = $4
			WHERE id = $1
				AND (custom_fields->>$5) IS NULL`,
		app.OrderID, priceJSON, customFieldsJSON, time.Now().UTC(),
		flizpay.CustomFieldCashbackApplied,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either the order is missing or cashback was already applied
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`,
			app.OrderID).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check order existence: %w", err)
		}
		if !exists {
			return false, flizpay.ErrOrderNotFound
		}
		return false, nil
	}

	li := app.CreditLineItem
	_, err = tx.Exec(ctx,
		`INSERT INTO order_line_items
				(id, order_id, identifier, label, type, good, removable, stackable, quantity, position, price, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		li.ID, app.OrderID, li.Identifier, li.Label, li.Type,
		li.Good, li.Removable, li.Stackable, li.Quantity, li.Position,
		itemPriceJSON, itemPayloadJSON,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert credit line item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}

	return true, nil
}

// TransitionToPaid implements flizpay.TransactionStateHandler
func (s *Storage) TransitionToPaid(ctx context.Context, transactionID string) error {
	return s.transition(ctx, transactionID, flizpay.TransactionStatePaid)
}

// TransitionToFailed implements flizpay.TransactionStateHandler
func (s *Storage) TransitionToFailed(ctx context.Context, transactionID string) error {
	return s.transition(ctx, transactionID, flizpay.TransactionStateFailed)
}

func (s *Storage) transition(ctx context.Context, transactionID string, to flizpay.TransactionState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE order_transactions
			SET state = $2, updated_at = $3
			WHERE id = $1 AND state IN ($4, $5)`,
		transactionID, string(to), time.Now().UTC(),
		string(flizpay.TransactionStateOpen), string(flizpay.TransactionStateInProgress),
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction state: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing updated: distinguish a missing transaction from a terminal state
	var current string
	err = s.pool.QueryRow(ctx,
		`SELECT state FROM order_transactions WHERE id = $1`,
		transactionID).Scan(&current)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("%w: %s", flizpay.ErrTransactionNotFound, transactionID)
	}
	if err != nil {
		return fmt.Errorf("failed to get transaction state: %w", err)
	}
	return fmt.Errorf("%w: transaction %s is %s", flizpay.ErrIllegalTransition, transactionID, current)
}

// PutOrder inserts or replaces an order with its line items and transactions.
// Intended for seeding test data and backfills.
func (s *Storage) PutOrder(ctx context.Context, order *flizpay.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("invalid order")
	}

	priceJSON, err := json.Marshal(order.Price)
	if err != nil {
		return fmt.Errorf("failed to encode order price: %w", err)
	}
	var customFieldsJSON []byte
	if order.CustomFields != nil {
		customFieldsJSON, err = json.Marshal(order.CustomFields)
		if err != nil {
			return fmt.Errorf("failed to encode custom fields: %w", err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, currency_iso, price, custom_fields, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				currency_iso = EXCLUDED.currency_iso,
				price = EXCLUDED.price,
				custom_fields = EXCLUDED.custom_fields,
				updated_at = EXCLUDED.updated_at`,
		order.ID, order.CurrencyISO, priceJSON, customFieldsJSON, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_line_items WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("failed to clear line items: %w", err)
	}
	for _, li := range order.LineItems {
		itemPriceJSON, err := json.Marshal(li.Price)
		if err != nil {
			return fmt.Errorf("failed to encode line item price: %w", err)
		}
		var payloadJSON []byte
		if li.Payload != nil {
			payloadJSON, err = json.Marshal(li.Payload)
			if err != nil {
				return fmt.Errorf("failed to encode line item payload: %w", err)
			}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO order_line_items
					(id, order_id, identifier, label, type, good, removable, stackable, quantity, position, price, payload)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			li.ID, order.ID, li.Identifier, li.Label, li.Type,
			li.Good, li.Removable, li.Stackable, li.Quantity, li.Position,
			itemPriceJSON, payloadJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to insert line item: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_transactions WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("failed to clear transactions: %w", err)
	}
	for i, t := range order.Transactions {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_transactions (id, order_id, position, state, updated_at)
				VALUES ($1, $2, $3, $4, $5)`,
			t.ID, order.ID, i, string(t.State), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	return tx.Commit(ctx)
}
