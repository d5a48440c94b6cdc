package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"marketplace/model"
	"marketplace/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatusChannel is the pub/sub channel carrying a payment's status changes.
func StatusChannel(paymentID uint) string {
	return fmt.Sprintf("payment:%d", paymentID)
}

// StatusMessage is published on StatusChannel after every applied transition.
type StatusMessage struct {
	PaymentID uint                `json:"paymentId"`
	OrderID   uint                `json:"orderId"`
	Status    model.PaymentStatus `json:"status"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// StatusPublisher pushes transitions to Redis for the websocket relay.
type StatusPublisher struct {
	rdb    publisher
	logger *slog.Logger
}

func NewStatusPublisher(rdb publisher, logger *slog.Logger) *StatusPublisher {
	return &StatusPublisher{rdb: rdb, logger: logger}
}

func (p *StatusPublisher) PaymentTransitioned(ctx context.Context, payment model.Payment) {
	msg, err := json.Marshal(StatusMessage{PaymentID: payment.ID, OrderID: payment.OrderID, Status: payment.Status})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.rdb.Publish(ctx, StatusChannel(payment.ID), msg).Err(); err != nil {
		p.logger.WarnContext(ctx, "payment.status.publish_failed", "payment_id", payment.ID, "err", err)
	}
}

type receiptSender interface {
	Enabled() bool
	SendReceipt(to string, data utils.ReceiptData) error
}

// ReceiptNotifier mails the buyer once a payment is PAID. Delivery is asynchronous
// and best effort.
type ReceiptNotifier struct {
	db          *gorm.DB
	mailer      receiptSender
	frontendURL string
	logger      *slog.Logger
}

func NewReceiptNotifier(db *gorm.DB, mailer receiptSender, frontendURL string, logger *slog.Logger) *ReceiptNotifier {
	return &ReceiptNotifier{db: db, mailer: mailer, frontendURL: frontendURL, logger: logger}
}

func (n *ReceiptNotifier) PaymentTransitioned(ctx context.Context, payment model.Payment) {
	if payment.Status != model.PaymentPaid || !n.mailer.Enabled() {
		return
	}
	var user model.User
	if err := n.db.WithContext(ctx).Select("id", "email").Take(&user, payment.UserID).Error; err != nil {
		n.logger.WarnContext(ctx, "payment.receipt.no_recipient", "payment_id", payment.ID, "err", err)
		return
	}

	data := utils.ReceiptData{
		OrderID:   payment.OrderID,
		PaymentID: payment.ID,
		Amount:    decimal.NewFromInt(payment.AmountCents).Shift(-2).StringFixed(2),
		Currency:  payment.Currency,
	}
	if payment.TransactionID != nil {
		data.TransactionID = *payment.TransactionID
	}
	if n.frontendURL != "" {
		data.DetailLink = fmt.Sprintf("%s/orders/%d", n.frontendURL, payment.OrderID)
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := n.mailer.SendReceipt(user.Email, data); err != nil {
			n.logger.WarnContext(ctx, "payment.receipt.failed", "payment_id", payment.ID, "err", err)
			return
		}
		n.logger.InfoContext(ctx, "payment.receipt.sent", "payment_id", payment.ID, "order_id", payment.OrderID)
	}()
}
