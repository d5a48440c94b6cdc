package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"marketplace/ledger"
	"marketplace/model"
	"marketplace/paymob"

	"gorm.io/gorm"
)

// Session is what a buyer needs to open the hosted payment page.
type Session struct {
	PaymentID  uint   `json:"paymentId"`
	PaymentKey string `json:"paymentKey"`
	IframeID   string `json:"iframeId"`
	IframeURL  string `json:"iframeUrl"`
}

type Sessions struct {
	db       *gorm.DB
	gateway  Gateway
	ledger   *ledger.Ledger
	iframeID string
	retry    RetryPolicy
	logger   *slog.Logger
}

func NewSessions(db *gorm.DB, gateway Gateway, l *ledger.Ledger, iframeID string, retry RetryPolicy, logger *slog.Logger) *Sessions {
	return &Sessions{db: db, gateway: gateway, ledger: l, iframeID: iframeID, retry: retry, logger: logger}
}

// CreateSession registers the order with the gateway, obtains a payment key and records
// an INITIATED payment. Nothing is persisted unless every gateway step succeeded.
func (s *Sessions) CreateSession(ctx context.Context, userID, orderID uint, requestedAmountCents int64) (*Session, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("User").
		Where("id = ? AND user_id = ?", orderID, userID).
		Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if !order.Payable() {
		return nil, fmt.Errorf("%w: payment status is %s", ErrOrderNotPayable, order.PaymentStatus)
	}

	active, err := s.ledger.ActiveForOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("check active payment for order %d: %w", order.ID, err)
	}
	if active != nil {
		return nil, ledger.ErrDuplicateSession
	}

	amount := order.TotalCents()
	if amount <= 0 {
		return nil, fmt.Errorf("%w: order total is zero", ErrOrderNotPayable)
	}
	if requestedAmountCents != amount {
		s.logger.WarnContext(ctx, "payment.session.amount_mismatch",
			"order_id", order.ID, "requested_cents", requestedAmountCents, "order_total_cents", amount)
	}
	billing, err := paymob.BuildBillingData(order)
	if err != nil {
		return nil, err
	}

	token, err := retry(ctx, s.retry, s.logger, "authenticate", func() (paymob.AuthToken, error) {
		return s.gateway.Authenticate(ctx)
	})
	if err != nil {
		return nil, s.gatewayFailed(ctx, order.ID, err)
	}

	registered, err := retry(ctx, s.retry, s.logger, "register_order", func() (paymob.RegisteredOrder, error) {
		return s.gateway.RegisterOrder(ctx, order.ID, amount, token)
	})
	if err != nil {
		return nil, s.gatewayFailed(ctx, order.ID, err)
	}

	key, err := retry(ctx, s.retry, s.logger, "payment_key", func() (string, error) {
		return s.gateway.CreatePaymentKey(ctx, registered.ID, amount, token, billing)
	})
	if err != nil {
		return nil, s.gatewayFailed(ctx, order.ID, err)
	}

	payment, err := s.ledger.Create(ctx, order, userID, ledger.Registration{
		GatewayOrderID:  registered.ID,
		MerchantOrderID: registered.MerchantOrderID,
		PaymentKey:      key,
		AmountCents:     amount,
		Currency:        s.gateway.Currency(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment.session.created",
		"payment_id", payment.ID, "order_id", order.ID,
		"gateway_order_id", registered.ID, "amount_cents", amount)
	return &Session{
		PaymentID:  payment.ID,
		PaymentKey: key,
		IframeID:   s.iframeID,
		IframeURL:  s.gateway.IframeURL(s.iframeID, key),
	}, nil
}

func (s *Sessions) gatewayFailed(ctx context.Context, orderID uint, err error) error {
	s.logger.ErrorContext(ctx, "payment.session.gateway_failed", "order_id", orderID, "err", err)
	return fmt.Errorf("create session for order %d: %w", orderID, err)
}
