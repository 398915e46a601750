// Package memory provides in-memory implementations of the order store,
// transaction state handler and config store. Primarily intended for testing
// and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/flizpay/flizpay-go/pkg/flizpay"
)

// Store implements flizpay.OrderStore and flizpay.TransactionStateHandler
// using in-memory maps.
type Store struct {
	mu          sync.RWMutex
	orders      map[string]*flizpay.Order
	orderByTxID map[string]string
}

// New creates a new in-memory order store.
func New() *Store {
	return &Store{
		orders:      make(map[string]*flizpay.Order),
		orderByTxID: make(map[string]string),
	}
}

// PutOrder stores an order, replacing any previous version. Test fixtures
// and development seeds use this; the settlement core never creates orders.
func (s *Store) PutOrder(order *flizpay.Order) {
	if order == nil || order.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneOrder(order)
	s.orders[order.ID] = stored
	for _, tx := range stored.Transactions {
		s.orderByTxID[tx.ID] = order.ID
	}
}

// FindOrder implements flizpay.OrderStore
func (s *Store) FindOrder(ctx context.Context, orderID string) (*flizpay.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, flizpay.ErrOrderNotFound
	}

	// Return a copy to prevent external mutations
	return cloneOrder(order), nil
}

// ApplyCashback implements flizpay.OrderStore. The marker check and the
// write happen under one lock, so concurrent deliveries for the same order
// cannot both apply.
func (s *Store) ApplyCashback(ctx context.Context, app *flizpay.CashbackApplication) (bool, error) {
	if app == nil || app.OrderID == "" {
		return false, fmt.Errorf("invalid cashback application")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[app.OrderID]
	if !ok {
		return false, flizpay.ErrOrderNotFound
	}

	if order.CashbackApplied() {
		return false, nil
	}

	order.LineItems = append(order.LineItems, app.CreditLineItem)
	order.Price = app.NewPrice
	if order.CustomFields == nil {
		order.CustomFields = make(map[string]any, len(app.CustomFields))
	}
	for k, v := range app.CustomFields {
		order.CustomFields[k] = v
	}

	return true, nil
}

// TransitionToPaid implements flizpay.TransactionStateHandler
func (s *Store) TransitionToPaid(ctx context.Context, transactionID string) error {
	return s.transition(transactionID, flizpay.TransactionStatePaid)
}

// TransitionToFailed implements flizpay.TransactionStateHandler
func (s *Store) TransitionToFailed(ctx context.Context, transactionID string) error {
	return s.transition(transactionID, flizpay.TransactionStateFailed)
}

func (s *Store) transition(transactionID string, to flizpay.TransactionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID, ok := s.orderByTxID[transactionID]
	if !ok {
		return fmt.Errorf("%w: %s", flizpay.ErrTransactionNotFound, transactionID)
	}
	order := s.orders[orderID]

	for i := range order.Transactions {
		tx := &order.Transactions[i]
		if tx.ID != transactionID {
			continue
		}
		if tx.State.IsTerminal() {
			return fmt.Errorf("%w: transaction %s is %s", flizpay.ErrIllegalTransition, transactionID, tx.State)
		}
		tx.State = to
		return nil
	}

	return fmt.Errorf("%w: %s", flizpay.ErrTransactionNotFound, transactionID)
}

// TransactionState returns the current state of a transaction. Test helper.
func (s *Store) TransactionState(transactionID string) (flizpay.TransactionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orderID, ok := s.orderByTxID[transactionID]
	if !ok {
		return "", false
	}
	for _, tx := range s.orders[orderID].Transactions {
		if tx.ID == transactionID {
			return tx.State, true
		}
	}
	return "", false
}

func cloneOrder(order *flizpay.Order) *flizpay.Order {
	clone := *order
	clone.Transactions = append([]flizpay.Transaction(nil), order.Transactions...)
	clone.LineItems = make([]flizpay.LineItem, len(order.LineItems))
	for i, li := range order.LineItems {
		clone.LineItems[i] = cloneLineItem(li)
	}
	clone.Price = clonePrice(order.Price)
	if order.CustomFields != nil {
		clone.CustomFields = make(map[string]any, len(order.CustomFields))
		for k, v := range order.CustomFields {
			clone.CustomFields[k] = v
		}
	}
	return &clone
}

func cloneLineItem(li flizpay.LineItem) flizpay.LineItem {
	clone := li
	clone.Price.CalculatedTaxes = append([]flizpay.CalculatedTax(nil), li.Price.CalculatedTaxes...)
	clone.Price.TaxRules = append([]flizpay.TaxRule(nil), li.Price.TaxRules...)
	if li.Payload != nil {
		clone.Payload = make(map[string]any, len(li.Payload))
		for k, v := range li.Payload {
			clone.Payload[k] = v
		}
	}
	return clone
}

func clonePrice(p flizpay.OrderPrice) flizpay.OrderPrice {
	clone := p
	clone.CalculatedTaxes = append([]flizpay.CalculatedTax(nil), p.CalculatedTaxes...)
	clone.TaxRules = append([]flizpay.TaxRule(nil), p.TaxRules...)
	return clone
}

// ConfigStore implements flizpay.ConfigStore using an in-memory map.
type ConfigStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewConfigStore creates a new in-memory config store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{values: make(map[string]any)}
}

func configKey(key, salesChannelID string) string {
	if salesChannelID == "" {
		return key
	}
	return salesChannelID + "|" + key
}

// GetString implements flizpay.ConfigStore. Falls back to the merchant-wide
// scope when a sales-channel-scoped value is unset.
func (c *ConfigStore) GetString(ctx context.Context, key, salesChannelID string) (string, error) {
	v, ok := c.lookup(key, salesChannelID)
	if !ok {
		return "", nil
	}
	s, _ := v.(string)
	return s, nil
}

// GetBool implements flizpay.ConfigStore
func (c *ConfigStore) GetBool(ctx context.Context, key, salesChannelID string) (bool, error) {
	v, ok := c.lookup(key, salesChannelID)
	if !ok {
		return false, nil
	}
	b, _ := v.(bool)
	return b, nil
}

// Set implements flizpay.ConfigStore
func (c *ConfigStore) Set(ctx context.Context, key string, value any, salesChannelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[configKey(key, salesChannelID)] = value
	return nil
}

func (c *ConfigStore) lookup(key, salesChannelID string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if salesChannelID != "" {
		if v, ok := c.values[configKey(key, salesChannelID)]; ok {
			return v, true
		}
	}
	v, ok := c.values[key]
	return v, ok
}
