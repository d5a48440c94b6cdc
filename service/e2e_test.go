package service

import (
	"context"
	"testing"

	"marketplace/database/dbtest"
	"marketplace/ledger"
	"marketplace/model"
	"marketplace/paymob"
	"marketplace/paymob/paymobtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type liveEnv struct {
	*env
	paymob *paymobtest.Server
}

// newLiveEnv wires the services to the real client talking to a fake Accept server.
func newLiveEnv(t *testing.T) *liveEnv {
	t.Helper()
	srv := paymobtest.NewServer(t)
	cfg := srv.Config()
	client := paymob.NewClient(cfg, discard)
	policy := RetryPolicy{Attempts: cfg.MaxAttempts, Backoff: cfg.RetryBackoff}

	db := dbtest.Open(t)
	l := ledger.New(db, discard)
	v := paymob.NewVerifier(paymob.TransactionV1, cfg.HMACKey)
	return &liveEnv{
		env: &env{
			db:            db,
			ledger:        l,
			verifier:      v,
			sessions:      NewSessions(db, client, l, cfg.IframeID, policy, discard),
			reconciler:    NewReconciler(db, v, l, discard),
			confirmations: NewConfirmations(db, client, l, policy, discard),
		},
		paymob: srv,
	}
}

func (e *liveEnv) session(t *testing.T, order model.Order) (*Session, *model.Payment) {
	t.Helper()
	session, err := e.sessions.CreateSession(context.Background(), order.UserID, order.ID, 10000)
	require.NoError(t, err)
	payment, err := e.ledger.Get(context.Background(), ledger.ByID(session.PaymentID))
	require.NoError(t, err)
	return session, payment
}

func TestEndToEndPaidCheckout(t *testing.T) {
	e := newLiveEnv(t)
	order := dbtest.SeedOrder(t, e.db, 42, 10000)

	session, payment := e.session(t, order)
	assert.Equal(t, int64(217503754), payment.GatewayOrderID)
	assert.Equal(t, "payment-key-217503754", session.PaymentKey)
	assert.Equal(t, e.paymob.URL+"/api/acceptance/iframes/830?payment_token=payment-key-217503754", session.IframeURL)

	txn := paymob.Transaction{ID: 192036465, Success: true, AmountCents: 10000}
	txn.Order.ID = payment.GatewayOrderID
	body, sig := paymobtest.Notification(t, e.verifier, txn)

	res, err := e.reconciler.Handle(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, ReasonPaid, res.Reason)
	assert.Equal(t, model.OrderComplete, e.orderStatus(t, order.ID))

	res, err = e.reconciler.Handle(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyRecorded, res.Reason)
}

func TestEndToEndDeclineThenContradictingSuccess(t *testing.T) {
	e := newLiveEnv(t)
	order := dbtest.SeedOrder(t, e.db, 42, 10000)
	_, payment := e.session(t, order)

	declined := paymob.Transaction{ID: 192036466, AmountCents: 10000}
	declined.Order.ID = payment.GatewayOrderID
	body, sig := paymobtest.Notification(t, e.verifier, declined)
	_, err := e.reconciler.Handle(context.Background(), body, sig)
	require.NoError(t, err)

	paid := paymob.Transaction{ID: 192036467, Success: true, AmountCents: 10000}
	paid.Order.ID = payment.GatewayOrderID
	body, sig = paymobtest.Notification(t, e.verifier, paid)
	_, err = e.reconciler.Handle(context.Background(), body, sig)
	assert.ErrorIs(t, err, ledger.ErrConflictingOutcome)
	assert.Equal(t, model.OrderFailed, e.orderStatus(t, order.ID))

	// The buyer retries the checkout with a fresh registration.
	_, retried := e.session(t, order)
	assert.NotEqual(t, payment.GatewayOrderID, retried.GatewayOrderID)
	assert.NotEqual(t, payment.MerchantOrderID, retried.MerchantOrderID)
}

func TestEndToEndGatewayDown(t *testing.T) {
	e := newLiveEnv(t)
	order := dbtest.SeedOrder(t, e.db, 42, 10000)
	e.paymob.SetDown(true)

	_, err := e.sessions.CreateSession(context.Background(), order.UserID, order.ID, 10000)
	assert.ErrorIs(t, err, paymob.ErrGatewayUnavailable)
	assert.Equal(t, 3, e.paymob.Calls("/auth/tokens"))
	assert.Zero(t, e.paymob.Calls("/ecommerce/orders"))

	var count int64
	require.NoError(t, e.db.Model(&model.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEndToEndForgedWebhook(t *testing.T) {
	e := newLiveEnv(t)
	order := dbtest.SeedOrder(t, e.db, 42, 10000)
	_, payment := e.session(t, order)

	txn := paymob.Transaction{ID: 192036465, Success: true, AmountCents: 10000}
	txn.Order.ID = payment.GatewayOrderID
	forger := paymob.NewVerifier(paymob.TransactionV1, "guessed-key")
	body, sig := paymobtest.Notification(t, forger, txn)

	_, err := e.reconciler.Handle(context.Background(), body, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, model.OrderPending, e.orderStatus(t, order.ID))
}

func TestEndToEndConfirm(t *testing.T) {
	e := newLiveEnv(t)
	order := dbtest.SeedOrder(t, e.db, 42, 10000)
	_, payment := e.session(t, order)

	txn := paymob.Transaction{ID: 192036465, Success: true, AmountCents: 10000}
	txn.Order.ID = payment.GatewayOrderID
	e.paymob.AddTransaction(txn)

	res, err := e.confirmations.Confirm(context.Background(), order.UserID, payment.ID, "192036465")
	require.NoError(t, err)
	assert.Equal(t, ReasonPaid, res.Reason)
	assert.Equal(t, model.OrderComplete, e.orderStatus(t, order.ID))

	// The webhook for the same transaction lands afterwards.
	body, sig := paymobtest.Notification(t, e.verifier, txn)
	res, err = e.reconciler.Handle(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyRecorded, res.Reason)
}
