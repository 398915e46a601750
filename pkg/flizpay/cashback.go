package flizpay

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed when a settlement payload omits the currency.
const DefaultCurrency = "EUR"

var (
	decimalOne     = decimal.NewFromInt(1)
	decimalHundred = decimal.NewFromInt(100)
)

// ComputeCashback apportions a provider-granted discount across an order and
// produces the credit line item and new price aggregate to persist.
//
// The discount is split across the order's tax-rate buckets proportionally to
// each bucket's share of the pre-discount gross total, so a mixed-VAT cart is
// reduced fairly instead of charging one rate for the whole discount. Splits
// are computed at full precision and rounded to 2 decimals at the point of
// storage; the final bucket absorbs the rounding remainder so the bucket
// discounts sum exactly to the total discount.
//
// The cashback percentage is informational only - the raw discount drives all
// arithmetic so display rounding never compounds.
func ComputeCashback(order *Order, originalAmount, finalAmount float64, currency string) (*CashbackApplication, error) {
	if order == nil {
		return nil, fmt.Errorf("order is required")
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	original := decimal.NewFromFloat(originalAmount)
	if original.Sign() <= 0 {
		return nil, fmt.Errorf("original amount must be positive, got %s", original)
	}

	discount := original.Sub(decimal.NewFromFloat(finalAmount)).Round(2)
	if discount.Sign() <= 0 {
		return nil, fmt.Errorf("discount must be positive, got %s", discount)
	}

	price := order.Price
	gross := decimal.NewFromFloat(price.TotalPrice)
	percent := discount.Div(original).Mul(decimalHundred)

	perRate := make([]RateDiscount, 0, len(price.CalculatedTaxes))
	totalNet := decimal.Zero
	remaining := discount

	for i, ct := range price.CalculatedTaxes {
		proportion := decimal.Zero
		if gross.Sign() > 0 {
			proportion = decimal.NewFromFloat(ct.Price).Div(gross)
		}

		var bucket decimal.Decimal
		if i == len(price.CalculatedTaxes)-1 {
			// Last bucket takes the remainder so the buckets sum to the
			// exact discount regardless of per-bucket rounding.
			bucket = remaining
		} else {
			bucket = discount.Mul(proportion).Round(2)
		}
		remaining = remaining.Sub(bucket)

		rate := decimal.NewFromFloat(ct.TaxRate)
		var net, tax decimal.Decimal
		switch {
		case price.TaxStatus == TaxStatusGross && ct.TaxRate > 0:
			net = bucket.Div(decimalOne.Add(rate.Div(decimalHundred))).Round(2)
			tax = bucket.Sub(net)
		case price.TaxStatus == TaxStatusNet && ct.TaxRate > 0:
			net = bucket
			tax = bucket.Mul(rate).Div(decimalHundred).Round(2)
		default:
			net = bucket
			tax = decimal.Zero
		}

		totalNet = totalNet.Add(net)
		perRate = append(perRate, RateDiscount{
			TaxRate:    ct.TaxRate,
			Discount:   bucket.InexactFloat64(),
			Net:        net.InexactFloat64(),
			Tax:        tax.InexactFloat64(),
			Proportion: proportion.InexactFloat64(),
		})
	}

	creditID := newHexID()
	percentStored := percent.Round(2).InexactFloat64()
	discountStored := discount.InexactFloat64()

	credit := LineItem{
		ID:         creditID,
		OrderID:    order.ID,
		Identifier: "flizpay-cashback-" + order.ID,
		Label:      fmt.Sprintf("FLIZpay Cashback (%d%%)", percent.Round(0).IntPart()),
		Type:       LineItemTypeCredit,
		Good:       false,
		Removable:  false,
		Stackable:  false,
		Quantity:   1,
		Position:   order.MaxLineItemPosition() + 1,
		Price: LineItemPrice{
			UnitPrice:       -discountStored,
			TotalPrice:      -discountStored,
			Quantity:        1,
			CalculatedTaxes: creditTaxes(perRate),
			TaxRules:        creditTaxRules(perRate),
		},
		Payload: map[string]any{
			"flizpay_cashback": true,
			"cashback_percent": percentStored,
			"original_amount":  originalAmount,
		},
	}

	newPrice := OrderPrice{
		NetPrice:        decimal.NewFromFloat(price.NetPrice).Sub(totalNet).Round(2).InexactFloat64(),
		TotalPrice:      gross.Sub(discount).Round(2).InexactFloat64(),
		PositionPrice:   decimal.NewFromFloat(price.PositionPrice).Sub(discount).Round(2).InexactFloat64(),
		TaxStatus:       price.TaxStatus,
		CalculatedTaxes: reducedTaxes(price.CalculatedTaxes, perRate),
		TaxRules:        append([]TaxRule(nil), price.TaxRules...),
	}
	newPrice.RawTotal = newPrice.TotalPrice

	return &CashbackApplication{
		OrderID:        order.ID,
		Discount:       discountStored,
		OriginalAmount: originalAmount,
		FinalAmount:    finalAmount,
		Percent:        percentStored,
		Currency:       currency,
		PerRate:        perRate,
		CreditLineItem: credit,
		NewPrice:       newPrice,
		CustomFields: map[string]any{
			CustomFieldCashbackApplied:  discountStored,
			CustomFieldCashbackPercent:  percentStored,
			CustomFieldCashbackCurrency: currency,
			CustomFieldOriginalAmount:   originalAmount,
			CustomFieldCreditLineItemID: creditID,
		},
	}, nil
}

// creditTaxes builds the negative per-bucket tax breakdown of the credit line item.
func creditTaxes(perRate []RateDiscount) []CalculatedTax {
	taxes := make([]CalculatedTax, 0, len(perRate))
	for _, rd := range perRate {
		taxes = append(taxes, CalculatedTax{
			Tax:     -rd.Tax,
			TaxRate: rd.TaxRate,
			Price:   -rd.Discount,
		})
	}
	return taxes
}

func creditTaxRules(perRate []RateDiscount) []TaxRule {
	rules := make([]TaxRule, 0, len(perRate))
	for _, rd := range perRate {
		rules = append(rules, TaxRule{
			TaxRate:    rd.TaxRate,
			Percentage: decimal.NewFromFloat(rd.Proportion).Mul(decimalHundred).Round(2).InexactFloat64(),
		})
	}
	return rules
}

// reducedTaxes shrinks each original tax bucket by its share of the discount.
func reducedTaxes(taxes []CalculatedTax, perRate []RateDiscount) []CalculatedTax {
	reduced := make([]CalculatedTax, 0, len(taxes))
	for _, ct := range taxes {
		var rd *RateDiscount
		for i := range perRate {
			if perRate[i].TaxRate == ct.TaxRate {
				rd = &perRate[i]
				break
			}
		}

		var discTax, discPrice float64
		if rd != nil {
			discTax = rd.Tax
			discPrice = rd.Discount
		}
		reduced = append(reduced, CalculatedTax{
			Tax:     decimal.NewFromFloat(ct.Tax).Sub(decimal.NewFromFloat(discTax)).Round(2).InexactFloat64(),
			TaxRate: ct.TaxRate,
			Price:   decimal.NewFromFloat(ct.Price).Sub(decimal.NewFromFloat(discPrice)).Round(2).InexactFloat64(),
		})
	}
	return reduced
}

// newHexID returns a random 32-character hex entity id, the format the order
// store uses for all entities.
func newHexID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
