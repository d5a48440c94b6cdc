package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"marketplace/database/dbtest"
	"marketplace/ledger"
	"marketplace/model"
	"marketplace/paymob"
	"marketplace/paymob/paymobtest"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	auth        func(call int) (paymob.AuthToken, error)
	register    func(call int) (paymob.RegisteredOrder, error)
	paymentKey  func(call int) (string, error)
	transaction func(id string) (*paymob.Transaction, error)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: map[string]int{}}
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op]++
	return g.calls[op]
}

func (g *fakeGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) Authenticate(context.Context) (paymob.AuthToken, error) {
	n := g.count("auth")
	if g.auth != nil {
		return g.auth(n)
	}
	return "auth-token", nil
}

func (g *fakeGateway) RegisterOrder(_ context.Context, orderID uint, _ int64, _ paymob.AuthToken) (paymob.RegisteredOrder, error) {
	n := g.count("register")
	if g.register != nil {
		return g.register(n)
	}
	return paymob.RegisteredOrder{ID: 217503753 + int64(n), MerchantOrderID: paymob.MerchantReference(orderID)}, nil
}

func (g *fakeGateway) CreatePaymentKey(context.Context, int64, int64, paymob.AuthToken, paymob.BillingData) (string, error) {
	n := g.count("payment_key")
	if g.paymentKey != nil {
		return g.paymentKey(n)
	}
	return "payment-key", nil
}

func (g *fakeGateway) GetTransaction(_ context.Context, id string, _ paymob.AuthToken) (*paymob.Transaction, error) {
	g.count("transaction")
	if g.transaction != nil {
		return g.transaction(id)
	}
	return nil, &paymob.RejectedError{Op: "get transaction", StatusCode: 404, Message: "not found"}
}

func (g *fakeGateway) IframeURL(iframeID, paymentKey string) string {
	return "https://accept.test/iframes/" + iframeID + "?payment_token=" + paymentKey
}

func (g *fakeGateway) Currency() string { return "EGP" }

type env struct {
	db            *gorm.DB
	gateway       *fakeGateway
	ledger        *ledger.Ledger
	verifier      *paymob.Verifier
	sessions      *Sessions
	reconciler    *Reconciler
	confirmations *Confirmations
}

func newEnv(t *testing.T, listeners ...ledger.Listener) *env {
	t.Helper()
	db := dbtest.Open(t)
	gw := newFakeGateway()
	l := ledger.New(db, discard, listeners...)
	v := paymob.NewVerifier(paymob.TransactionV1, paymobtest.HMACKey)
	policy := RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	return &env{
		db:            db,
		gateway:       gw,
		ledger:        l,
		verifier:      v,
		sessions:      NewSessions(db, gw, l, "830", policy, discard),
		reconciler:    NewReconciler(db, v, l, discard),
		confirmations: NewConfirmations(db, gw, l, policy, discard),
	}
}

// openSession seeds order 42 worth 100.00 and creates a session for it.
func (e *env) openSession(t *testing.T) (model.Order, *model.Payment) {
	t.Helper()
	order := dbtest.SeedOrder(t, e.db, 42, 10000)
	session, err := e.sessions.CreateSession(context.Background(), order.UserID, order.ID, 10000)
	require.NoError(t, err)
	payment, err := e.ledger.Get(context.Background(), ledger.ByID(session.PaymentID))
	require.NoError(t, err)
	return order, payment
}

type txnOpts struct {
	success      bool
	pending      bool
	errorOccured bool
	amountCents  int64
}

// transactionBody renders a signed processed-callback envelope.
func (e *env) transactionBody(t *testing.T, gatewayOrderID, transactionID int64, o txnOpts) ([]byte, string) {
	t.Helper()
	if o.amountCents == 0 {
		o.amountCents = 10000
	}
	txn := paymob.Transaction{
		ID:           transactionID,
		Success:      o.success,
		Pending:      o.pending,
		ErrorOccured: o.errorOccured,
		AmountCents:  o.amountCents,
	}
	txn.Order.ID = gatewayOrderID
	return paymobtest.Notification(t, e.verifier, txn)
}

func (e *env) orderStatus(t *testing.T, orderID uint) model.OrderPaymentStatus {
	t.Helper()
	var order model.Order
	require.NoError(t, e.db.First(&order, orderID).Error)
	return order.PaymentStatus
}

func (e *env) auditEvents(t *testing.T) []model.WebhookEvent {
	t.Helper()
	var events []model.WebhookEvent
	require.NoError(t, e.db.Order("id").Find(&events).Error)
	return events
}
