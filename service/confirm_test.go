package service

import (
	"context"
	"strconv"
	"testing"

	"marketplace/ledger"
	"marketplace/model"
	"marketplace/paymob"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatewayTransaction(id, gatewayOrderID int64, success, pending bool) func(string) (*paymob.Transaction, error) {
	return func(got string) (*paymob.Transaction, error) {
		if got != strconv.FormatInt(id, 10) {
			return nil, &paymob.RejectedError{Op: "get transaction", StatusCode: 404, Message: "not found"}
		}
		txn := &paymob.Transaction{ID: id, Success: success, Pending: pending, AmountCents: 10000}
		txn.Order.ID = gatewayOrderID
		return txn, nil
	}
}

func TestConfirmUsesGatewayOutcome(t *testing.T) {
	e := newEnv(t)
	order, payment := e.openSession(t)
	e.gateway.transaction = gatewayTransaction(192036465, payment.GatewayOrderID, true, false)

	res, err := e.confirmations.Confirm(context.Background(), order.UserID, payment.ID, "192036465")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, ReasonPaid, res.Reason)
	assert.Equal(t, model.OrderComplete, e.orderStatus(t, order.ID))

	events := e.auditEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, model.SourceConfirm, events[0].Source)
	assert.Equal(t, "192036465", events[0].TransactionID)
}

func TestConfirmDeclinedTransaction(t *testing.T) {
	e := newEnv(t)
	order, payment := e.openSession(t)
	e.gateway.transaction = gatewayTransaction(192036466, payment.GatewayOrderID, false, false)

	res, err := e.confirmations.Confirm(context.Background(), order.UserID, payment.ID, "192036466")
	require.NoError(t, err)
	assert.Equal(t, ReasonFailed, res.Reason)
	assert.Equal(t, model.OrderFailed, e.orderStatus(t, order.ID))
}

func TestConfirmPendingTransaction(t *testing.T) {
	e := newEnv(t)
	order, payment := e.openSession(t)
	e.gateway.transaction = gatewayTransaction(192036465, payment.GatewayOrderID, false, true)

	res, err := e.confirmations.Confirm(context.Background(), order.UserID, payment.ID, "192036465")
	require.NoError(t, err)
	assert.Equal(t, ReasonPending, res.Reason)
	assert.Equal(t, model.PaymentInitiated, res.Status)
	assert.Equal(t, model.OrderPending, e.orderStatus(t, order.ID))
}

func TestConfirmRejectsForeignTransaction(t *testing.T) {
	e := newEnv(t)
	order, payment := e.openSession(t)
	e.gateway.transaction = gatewayTransaction(192036465, payment.GatewayOrderID+1, true, false)

	res, err := e.confirmations.Confirm(context.Background(), order.UserID, payment.ID, "192036465")
	assert.ErrorIs(t, err, ErrTransactionMismatch)
	assert.False(t, res.Accepted)

	got, err := e.ledger.Get(context.Background(), ledger.ByID(payment.ID))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentInitiated, got.Status)

	events := e.auditEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, ReasonMismatch, events[0].Reason)
}

func TestConfirmOtherBuyersPayment(t *testing.T) {
	e := newEnv(t)
	order, payment := e.openSession(t)

	_, err := e.confirmations.Confirm(context.Background(), order.UserID+1, payment.ID, "192036465")
	assert.ErrorIs(t, err, ledger.ErrPaymentNotFound)

	_, err = e.confirmations.Confirm(context.Background(), order.UserID, payment.ID+10, "192036465")
	assert.ErrorIs(t, err, ledger.ErrPaymentNotFound)
	assert.Zero(t, e.gateway.Calls("transaction"))
}

func TestConfirmAfterWebhookSkipsGateway(t *testing.T) {
	e := newEnv(t)
	order, payment := e.openSession(t)

	body, sig := e.transactionBody(t, payment.GatewayOrderID, 192036465, txnOpts{success: true})
	_, err := e.reconciler.Handle(context.Background(), body, sig)
	require.NoError(t, err)

	res, err := e.confirmations.Confirm(context.Background(), order.UserID, payment.ID, "192036465")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, ReasonAlreadyRecorded, res.Reason)
	assert.Equal(t, model.PaymentPaid, res.Status)
	assert.Zero(t, e.gateway.Calls("transaction"))
}

func TestConfirmGatewayUnavailable(t *testing.T) {
	e := newEnv(t)
	order, payment := e.openSession(t)
	e.gateway.transaction = func(string) (*paymob.Transaction, error) {
		return nil, unavailable("get transaction")
	}

	_, err := e.confirmations.Confirm(context.Background(), order.UserID, payment.ID, "192036465")
	assert.ErrorIs(t, err, paymob.ErrGatewayUnavailable)
	assert.Equal(t, 3, e.gateway.Calls("transaction"))

	got, err := e.ledger.Get(context.Background(), ledger.ByID(payment.ID))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentInitiated, got.Status)
}
