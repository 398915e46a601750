package flizpay

import "context"

// RateDiscount is one tax-rate bucket's share of a cashback discount.
type RateDiscount struct {
	TaxRate    float64
	Discount   float64
	Net        float64
	Tax        float64
	Proportion float64
}

// CashbackApplication is the computed result of apportioning a discount
// across an order. It is not persisted as its own entity: the order store
// commits it as one credit line item plus an order patch (new price
// aggregate and cashback custom fields).
type CashbackApplication struct {
	OrderID        string
	Discount       float64
	OriginalAmount float64
	FinalAmount    float64
	Percent        float64
	Currency       string
	PerRate        []RateDiscount
	CreditLineItem LineItem
	NewPrice       OrderPrice
	CustomFields   map[string]any
}

// OrderStore is the persistence gateway to the order subsystem.
type OrderStore interface {
	// FindOrder resolves an order by id with its transactions and line items
	// loaded. Returns ErrOrderNotFound when the order does not exist.
	FindOrder(ctx context.Context, orderID string) (*Order, error)

	// ApplyCashback commits a cashback application as a single conditional
	// write: the credit line item, the new price aggregate and the custom
	// fields are persisted only if the idempotency marker
	// (CustomFieldCashbackApplied) is still unset at write time.
	//
	// Returns (true, nil) when the application was committed, (false, nil)
	// when another delivery already applied cashback to the order. Two
	// concurrent deliveries for the same order must never both observe true.
	ApplyCashback(ctx context.Context, app *CashbackApplication) (bool, error)
}

// TransactionStateHandler transitions order transactions through the payment
// state machine (open -> in_progress -> paid | failed; paid and failed are
// terminal).
type TransactionStateHandler interface {
	// TransitionToPaid marks the transaction paid. Returns an error wrapping
	// ErrIllegalTransition when the current state disallows it and
	// ErrTransactionNotFound when the transaction does not exist.
	TransitionToPaid(ctx context.Context, transactionID string) error

	// TransitionToFailed marks the transaction failed, with the same error
	// contract as TransitionToPaid.
	TransitionToFailed(ctx context.Context, transactionID string) error
}
