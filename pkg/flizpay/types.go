package flizpay

// TaxStatus indicates whether an order's prices include tax.
type TaxStatus string

const (
	// TaxStatusGross means prices are tax-inclusive
	TaxStatusGross TaxStatus = "gross"
	// TaxStatusNet means prices exclude tax
	TaxStatusNet TaxStatus = "net"
	// TaxStatusFree means the order carries no tax at all
	TaxStatusFree TaxStatus = "tax-free"
)

// TransactionState is the payment state of an order transaction.
type TransactionState string

const (
	TransactionStateOpen       TransactionState = "open"
	TransactionStateInProgress TransactionState = "in_progress"
	TransactionStatePaid       TransactionState = "paid"
	TransactionStateFailed     TransactionState = "failed"
)

// IsTerminal reports whether no further state transitions are allowed.
func (s TransactionState) IsTerminal() bool {
	return s == TransactionStatePaid || s == TransactionStateFailed
}

// Line item types recognized by the order store.
const (
	LineItemTypeProduct = "product"
	LineItemTypeCredit  = "credit"
)

// Order custom-field keys written when cashback is applied.
// CustomFieldCashbackApplied is the durable idempotency marker: its presence
// means cashback has been committed for the order and must never be
// recomputed or reapplied.
const (
	CustomFieldCashbackApplied  = "flizpay_cashback_applied"
	CustomFieldCashbackPercent  = "flizpay_cashback_percent"
	CustomFieldCashbackCurrency = "flizpay_cashback_currency"
	CustomFieldOriginalAmount   = "flizpay_original_amount"
	CustomFieldCreditLineItemID = "flizpay_credit_line_item_id"
)

// CalculatedTax is one tax-rate bucket of a price aggregate.
// Price is the gross amount the bucket applies to, Tax the tax portion of it.
type CalculatedTax struct {
	Tax     float64 `json:"tax"`
	TaxRate float64 `json:"taxRate"`
	Price   float64 `json:"price"`
}

// TaxRule describes which share of a price a tax rate applies to.
type TaxRule struct {
	TaxRate    float64 `json:"taxRate"`
	Percentage float64 `json:"percentage"`
}

// OrderPrice is the order-level price aggregate.
type OrderPrice struct {
	NetPrice        float64         `json:"netPrice"`
	TotalPrice      float64         `json:"totalPrice"`
	PositionPrice   float64         `json:"positionPrice"`
	RawTotal        float64         `json:"rawTotal"`
	TaxStatus       TaxStatus       `json:"taxStatus"`
	CalculatedTaxes []CalculatedTax `json:"calculatedTaxes"`
	TaxRules        []TaxRule       `json:"taxRules"`
}

// LineItemPrice is the price of a single order line item.
type LineItemPrice struct {
	UnitPrice       float64         `json:"unitPrice"`
	TotalPrice      float64         `json:"totalPrice"`
	Quantity        int             `json:"quantity"`
	CalculatedTaxes []CalculatedTax `json:"calculatedTaxes"`
	TaxRules        []TaxRule       `json:"taxRules"`
}

// LineItem is one position of an order.
type LineItem struct {
	ID         string         `json:"id"`
	OrderID    string         `json:"orderId"`
	Identifier string         `json:"identifier"`
	Label      string         `json:"label"`
	Type       string         `json:"type"`
	Good       bool           `json:"good"`
	Removable  bool           `json:"removable"`
	Stackable  bool           `json:"stackable"`
	Quantity   int            `json:"quantity"`
	Position   int            `json:"position"`
	Price      LineItemPrice  `json:"price"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Transaction is a payment attempt associated with an order.
type Transaction struct {
	ID    string           `json:"id"`
	State TransactionState `json:"state"`
}

// Order is the slice of the shop's order entity this module reads and
// conditionally mutates. It is owned by the order subsystem; the settlement
// engine only ever appends one credit line item, patches the price aggregate
// and sets the cashback custom fields.
type Order struct {
	ID           string         `json:"id"`
	CurrencyISO  string         `json:"currencyIso"`
	Transactions []Transaction  `json:"transactions"`
	LineItems    []LineItem     `json:"lineItems"`
	Price        OrderPrice     `json:"price"`
	CustomFields map[string]any `json:"customFields,omitempty"`
}

// PrimaryTransaction returns the order's primary (first) transaction,
// or nil if the order has none.
func (o *Order) PrimaryTransaction() *Transaction {
	if o == nil || len(o.Transactions) == 0 {
		return nil
	}
	return &o.Transactions[0]
}

// CashbackApplied reports whether the idempotency marker is set on the order.
func (o *Order) CashbackApplied() bool {
	if o == nil || o.CustomFields == nil {
		return false
	}
	v, ok := o.CustomFields[CustomFieldCashbackApplied]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != "" && t != "0"
	default:
		return true
	}
}

// MaxLineItemPosition returns the highest position index among the order's
// line items, or 0 for an order without line items.
func (o *Order) MaxLineItemPosition() int {
	max := 0
	for _, li := range o.LineItems {
		if li.Position > max {
			max = li.Position
		}
	}
	return max
}
