package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"marketplace/ledger"
	"marketplace/model"
	"marketplace/paymob"

	"gorm.io/gorm"
)

// Confirmations settles a payment the buyer reports as finished. The outcome is
// read back from the gateway; the caller only names the transaction.
type Confirmations struct {
	gateway Gateway
	ledger  *ledger.Ledger
	audit   *auditor
	retry   RetryPolicy
	logger  *slog.Logger
}

func NewConfirmations(db *gorm.DB, gateway Gateway, l *ledger.Ledger, retry RetryPolicy, logger *slog.Logger) *Confirmations {
	return &Confirmations{
		gateway: gateway,
		ledger:  l,
		audit:   &auditor{db: db, logger: logger, now: time.Now},
		retry:   retry,
		logger:  logger,
	}
}

func (c *Confirmations) Confirm(ctx context.Context, userID, paymentID uint, transactionID string) (Result, error) {
	payment, err := c.ledger.Get(ctx, ledger.ByID(paymentID))
	if err != nil {
		return Result{}, err
	}
	if payment.UserID != userID {
		return Result{}, ledger.ErrPaymentNotFound
	}
	if payment.Status.Terminal() {
		return Result{
			Accepted:  true,
			Reason:    ReasonAlreadyRecorded,
			PaymentID: payment.ID,
			Status:    payment.Status,
		}, nil
	}

	token, err := retry(ctx, c.retry, c.logger, "authenticate", func() (paymob.AuthToken, error) {
		return c.gateway.Authenticate(ctx)
	})
	if err != nil {
		return Result{}, fmt.Errorf("confirm payment %d: %w", payment.ID, err)
	}
	txn, err := retry(ctx, c.retry, c.logger, "get_transaction", func() (*paymob.Transaction, error) {
		return c.gateway.GetTransaction(ctx, transactionID, token)
	})
	if err != nil {
		return Result{}, fmt.Errorf("confirm payment %d: %w", payment.ID, err)
	}

	event := model.WebhookEvent{
		Source:         model.SourceConfirm,
		TransactionID:  strconv.FormatInt(txn.ID, 10),
		GatewayOrderID: &txn.Order.ID,
		PaymentID:      &payment.ID,
		SignatureValid: true,
	}
	payload, _ := json.Marshal(txn)
	event.Payload = auditPayload(payload)

	if txn.Order.ID != payment.GatewayOrderID {
		c.logger.WarnContext(ctx, "payment.confirm.mismatch",
			"payment_id", payment.ID, "gateway_order_id", payment.GatewayOrderID,
			"transaction_id", txn.ID, "transaction_order_id", txn.Order.ID)
		c.audit.record(ctx, &event, Result{Reason: ReasonMismatch})
		return Result{Reason: ReasonMismatch, PaymentID: payment.ID}, ErrTransactionMismatch
	}
	if txn.Pending {
		res := Result{Accepted: true, Reason: ReasonPending, PaymentID: payment.ID, Status: payment.Status}
		c.audit.record(ctx, &event, res)
		return res, nil
	}

	outcome := ledger.Failed(event.TransactionID)
	if txn.Success && !txn.ErrorOccured {
		outcome = ledger.Paid(event.TransactionID)
	}
	res, err := applyOutcome(ctx, c.ledger, c.logger, ledger.ByID(payment.ID), outcome)
	c.audit.record(ctx, &event, res)
	return res, err
}
