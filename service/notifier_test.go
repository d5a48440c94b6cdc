package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace/model"
	"marketplace/utils"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	message []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		cmd.SetErr(p.err)
		return cmd
	}
	p.sent = append(p.sent, published{channel: channel, message: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

type fakeMailer struct {
	enabled bool
	sent    chan utils.ReceiptData
	to      chan string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{enabled: true, sent: make(chan utils.ReceiptData, 4), to: make(chan string, 4)}
}

func (m *fakeMailer) Enabled() bool { return m.enabled }

func (m *fakeMailer) SendReceipt(to string, data utils.ReceiptData) error {
	m.to <- to
	m.sent <- data
	return nil
}

func TestStatusPublisherOnWebhook(t *testing.T) {
	pub := &fakePublisher{}
	e := newEnv(t, NewStatusPublisher(pub, discard))
	_, payment := e.openSession(t)

	body, sig := e.transactionBody(t, payment.GatewayOrderID, 192036465, txnOpts{success: true})
	_, err := e.reconciler.Handle(context.Background(), body, sig)
	require.NoError(t, err)
	// Redelivery applies nothing and publishes nothing.
	_, err = e.reconciler.Handle(context.Background(), body, sig)
	require.NoError(t, err)

	require.Len(t, pub.sent, 1)
	assert.Equal(t, StatusChannel(payment.ID), pub.sent[0].channel)

	var msg StatusMessage
	require.NoError(t, json.Unmarshal(pub.sent[0].message, &msg))
	assert.Equal(t, payment.ID, msg.PaymentID)
	assert.Equal(t, payment.OrderID, msg.OrderID)
	assert.Equal(t, model.PaymentPaid, msg.Status)
}

func TestStatusPublisherFailureDoesNotFailTransition(t *testing.T) {
	pub := &fakePublisher{err: errors.New("redis: connection refused")}
	e := newEnv(t, NewStatusPublisher(pub, discard))
	_, payment := e.openSession(t)

	body, sig := e.transactionBody(t, payment.GatewayOrderID, 192036465, txnOpts{success: true})
	res, err := e.reconciler.Handle(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, ReasonPaid, res.Reason)
}

func TestStatusChannel(t *testing.T) {
	assert.Equal(t, "payment:7", StatusChannel(7))
}

func TestReceiptSentWhenPaid(t *testing.T) {
	mailer := newFakeMailer()
	var notifier *ReceiptNotifier
	e := newEnv(t, listenerFunc(func(ctx context.Context, p model.Payment) {
		notifier.PaymentTransitioned(ctx, p)
	}))
	notifier = NewReceiptNotifier(e.db, mailer, "https://shop.example.com", discard)
	order, payment := e.openSession(t)

	body, sig := e.transactionBody(t, payment.GatewayOrderID, 192036465, txnOpts{success: true})
	_, err := e.reconciler.Handle(context.Background(), body, sig)
	require.NoError(t, err)

	select {
	case data := <-mailer.sent:
		assert.Equal(t, order.ID, data.OrderID)
		assert.Equal(t, payment.ID, data.PaymentID)
		assert.Equal(t, "100.00", data.Amount)
		assert.Equal(t, "EGP", data.Currency)
		assert.Equal(t, "192036465", data.TransactionID)
		assert.Equal(t, "https://shop.example.com/orders/42", data.DetailLink)
		assert.Equal(t, order.User.Email, <-mailer.to)
	case <-time.After(2 * time.Second):
		t.Fatal("receipt was not sent")
	}
}

func TestReceiptSkippedWhenFailedOrDisabled(t *testing.T) {
	mailer := newFakeMailer()
	notifier := NewReceiptNotifier(nil, mailer, "", discard)

	notifier.PaymentTransitioned(context.Background(), model.Payment{Status: model.PaymentFailed})
	mailer.enabled = false
	notifier.PaymentTransitioned(context.Background(), model.Payment{Status: model.PaymentPaid})

	select {
	case <-mailer.sent:
		t.Fatal("unexpected receipt")
	case <-time.After(50 * time.Millisecond):
	}
}

type listenerFunc func(ctx context.Context, p model.Payment)

func (f listenerFunc) PaymentTransitioned(ctx context.Context, p model.Payment) { f(ctx, p) }
