package flizpay

import (
	"context"
	"errors"
	"net/http"
)

// SettlementEvent is the payment-settlement webhook payload. OriginalAmount
// and Amount are optional; when both are present and a positive discount
// results, cashback is applied before the transaction is marked paid.
type SettlementEvent struct {
	OrderID        string
	Status         string
	TransactionID  string
	Currency       string
	OriginalAmount *float64
	Amount         *float64
}

// ProcessSettlement applies a payment settlement to an order:
//
//  1. A non-completed status transitions the transaction to failed and stops.
//  2. A completed status applies cashback (when the payload grants one) and
//     then transitions the transaction to paid.
//
// Cashback is committed strictly before the paid transition because the paid
// transition is observed by downstream systems (order confirmation email)
// that must see the final totals. Redelivered webhooks are harmless: the
// idempotency marker short-circuits the cashback and illegal transitions on
// already-terminal transactions are swallowed as successful no-ops.
func (s *Service) ProcessSettlement(ctx context.Context, ev *SettlementEvent) *WebhookResult {
	if ev == nil || ev.OrderID == "" || ev.Status == "" {
		s.logger.Error("settlement webhook missing required fields",
			Field{Key: "has_order_id", Value: ev != nil && ev.OrderID != ""},
			Field{Key: "has_status", Value: ev != nil && ev.Status != ""},
		)
		s.metrics.RecordWebhookError("missing_fields")
		return errorResult(http.StatusBadRequest, "Missing orderId")
	}

	order, err := s.orders.FindOrder(ctx, ev.OrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			s.logger.Error("order not found", Field{Key: "order_id", Value: ev.OrderID})
			s.metrics.RecordWebhookError("not_found")
			return errorResult(http.StatusNotFound, "Order not found")
		}
		return s.internalError(ev, err)
	}

	transaction := order.PrimaryTransaction()
	if transaction == nil {
		s.logger.Error("transaction not found", Field{Key: "order_id", Value: ev.OrderID})
		s.metrics.RecordWebhookError("not_found")
		return errorResult(http.StatusNotFound, "Transaction not found")
	}

	if ev.Status != StatusCompleted {
		return s.settleFailed(ctx, ev, transaction)
	}

	// Idempotency guard: a set marker means this is a duplicate delivery.
	// Short-circuit before recomputing cashback and before any transition.
	if order.CashbackApplied() {
		s.logger.Info("duplicate webhook detected, cashback already applied",
			Field{Key: "order_id", Value: ev.OrderID},
			Field{Key: "previous_cashback", Value: order.CustomFields[CustomFieldCashbackApplied]},
		)
		// Still drive the transaction to paid: a delivery that crashed
		// between the cashback commit and the transition is completed by
		// the redelivery. An already-paid transaction is a swallowed no-op.
		if err := s.transitionTo(ctx, transaction.ID, ev.OrderID, TransactionStatePaid); err != nil {
			return s.internalError(ev, err)
		}
		return successResult()
	}

	if err := s.applyCashback(ctx, ev, order); err != nil {
		return s.internalError(ev, err)
	}

	if err := s.transitionTo(ctx, transaction.ID, ev.OrderID, TransactionStatePaid); err != nil {
		return s.internalError(ev, err)
	}

	s.logger.Info("payment completed successfully",
		Field{Key: "order_id", Value: ev.OrderID},
		Field{Key: "transaction_id", Value: ev.TransactionID},
	)

	return successResult()
}

// settleFailed handles every non-completed settlement status.
func (s *Service) settleFailed(ctx context.Context, ev *SettlementEvent, transaction *Transaction) *WebhookResult {
	s.logger.Info("payment not completed, marking as failed",
		Field{Key: "order_id", Value: ev.OrderID},
		Field{Key: "status", Value: ev.Status},
		Field{Key: "transaction_id", Value: ev.TransactionID},
	)

	if err := s.transitionTo(ctx, transaction.ID, ev.OrderID, TransactionStateFailed); err != nil {
		return s.internalError(ev, err)
	}

	return successResult()
}

// applyCashback computes and commits the cashback grant carried by the
// payload, if any. A missing or non-positive discount is a no-op, not an
// error.
func (s *Service) applyCashback(ctx context.Context, ev *SettlementEvent, order *Order) error {
	if ev.OriginalAmount == nil || ev.Amount == nil {
		s.logger.Warn("cashback fields missing from webhook payload",
			Field{Key: "order_id", Value: ev.OrderID},
			Field{Key: "has_original_amount", Value: ev.OriginalAmount != nil},
			Field{Key: "has_amount", Value: ev.Amount != nil},
		)
		return nil
	}

	discount := *ev.OriginalAmount - *ev.Amount
	if discount <= 0 {
		s.logger.Warn("no cashback discount detected",
			Field{Key: "order_id", Value: ev.OrderID},
			Field{Key: "original_amount", Value: *ev.OriginalAmount},
			Field{Key: "amount", Value: *ev.Amount},
		)
		return nil
	}

	app, err := ComputeCashback(order, *ev.OriginalAmount, *ev.Amount, ev.Currency)
	if err != nil {
		return err
	}

	applied, err := s.orders.ApplyCashback(ctx, app)
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent delivery won the conditional write. Same outcome as
		// the marker short-circuit, just detected at commit time.
		s.logger.Info("cashback already applied by concurrent delivery",
			Field{Key: "order_id", Value: ev.OrderID},
		)
		return nil
	}

	s.metrics.RecordCashbackApplied(app.Currency, app.Discount)
	s.logger.Info("cashback applied",
		Field{Key: "order_id", Value: ev.OrderID},
		Field{Key: "credit_line_item_id", Value: app.CreditLineItem.ID},
		Field{Key: "discount", Value: app.Discount},
		Field{Key: "cashback_percent", Value: app.Percent},
		Field{Key: "new_total", Value: app.NewPrice.TotalPrice},
		Field{Key: "currency", Value: app.Currency},
	)

	return nil
}

// transitionTo attempts a transaction state transition, swallowing illegal
// transitions: paying an already-paid transaction must read as success so
// webhook redelivery stays idempotent.
func (s *Service) transitionTo(ctx context.Context, transactionID, orderID string, state TransactionState) error {
	var err error
	switch state {
	case TransactionStatePaid:
		err = s.transactions.TransitionToPaid(ctx, transactionID)
	case TransactionStateFailed:
		err = s.transactions.TransitionToFailed(ctx, transactionID)
	default:
		return ErrIllegalTransition
	}

	if err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			s.logger.Info("transaction already in target state, skipping state transition",
				Field{Key: "order_id", Value: orderID},
				Field{Key: "transaction_id", Value: transactionID},
			)
			s.metrics.RecordTransactionTransition(string(state), "noop")
			return nil
		}
		return err
	}

	s.metrics.RecordTransactionTransition(string(state), "applied")
	s.logger.Info("transaction state changed",
		Field{Key: "order_id", Value: orderID},
		Field{Key: "transaction_id", Value: transactionID},
		Field{Key: "state", Value: string(state)},
	)

	return nil
}

// internalError logs an unexpected settlement failure with order context and
// reports a generic 500. The gateway retries on non-2xx; the engine itself
// never retries.
func (s *Service) internalError(ev *SettlementEvent, err error) *WebhookResult {
	s.logger.Error("failed to process payment webhook",
		Field{Key: "order_id", Value: ev.OrderID},
		Field{Key: "transaction_id", Value: ev.TransactionID},
		Field{Key: "error", Value: err.Error()},
	)
	s.metrics.RecordWebhookError("processing_error")
	return errorResult(http.StatusInternalServerError, "Processing failed")
}
