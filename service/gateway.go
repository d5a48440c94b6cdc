package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marketplace/paymob"
)

// Gateway is the subset of the Paymob client the services drive.
type Gateway interface {
	Authenticate(ctx context.Context) (paymob.AuthToken, error)
	RegisterOrder(ctx context.Context, orderID uint, amountCents int64, token paymob.AuthToken) (paymob.RegisteredOrder, error)
	CreatePaymentKey(ctx context.Context, gatewayOrderID, amountCents int64, token paymob.AuthToken, billing paymob.BillingData) (string, error)
	GetTransaction(ctx context.Context, transactionID string, token paymob.AuthToken) (*paymob.Transaction, error)
	IframeURL(iframeID, paymentKey string) string
	Currency() string
}

// RetryPolicy applies to gateway calls that fail with ErrGatewayUnavailable.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func retry[T any](ctx context.Context, p RetryPolicy, logger *slog.Logger, op string, fn func() (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)
	var (
		out T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err = fn()
		if err == nil || !errors.Is(err, paymob.ErrGatewayUnavailable) || attempt == attempts {
			return out, err
		}
		delay := p.Backoff << (attempt - 1)
		logger.WarnContext(ctx, "payment.gateway.retry", "op", op, "attempt", attempt, "delay", delay, "err", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return out, err
		}
	}
	return out, err
}
