package model

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "INITIATED"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentFailed    PaymentStatus = "FAILED"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

// OrderStatus is the order payment status implied by a terminal payment status.
func (s PaymentStatus) OrderStatus() OrderPaymentStatus {
	switch s {
	case PaymentPaid:
		return OrderComplete
	case PaymentFailed:
		return OrderFailed
	}
	return OrderPending
}

// Payment is one gateway session attempt. At most one INITIATED payment exists per order.
type Payment struct {
	DTO
	OrderID         uint          `gorm:"not null;index;uniqueIndex:idx_payments_order_initiated,where:status = 'INITIATED'" json:"orderId"`
	UserID          uint          `gorm:"not null;index" json:"userId"`
	GatewayOrderID  int64         `gorm:"not null;uniqueIndex" json:"gatewayOrderId"`
	MerchantOrderID string        `gorm:"size:80;not null;uniqueIndex" json:"merchantOrderId"`
	PaymentKey      string        `gorm:"type:text;not null" json:"-"`
	AmountCents     int64         `gorm:"not null" json:"amountCents"`
	Currency        string        `gorm:"size:3;not null" json:"currency"`
	Status          PaymentStatus `gorm:"size:16;not null;default:INITIATED;index" json:"status"`
	TransactionID   *string       `gorm:"size:64" json:"transactionId"`

	Order Order `gorm:"foreignKey:OrderID" json:"-"`
}

type CreateSessionInput struct {
	OrderId     uint  `json:"orderId" validate:"required,gt=0"`
	AmountCents int64 `json:"amountCents" validate:"required,gt=0"`
}

type ConfirmPaymentInput struct {
	PaymentId     uint   `json:"paymentId" validate:"required,gt=0"`
	TransactionId string `json:"transactionId" validate:"required,numeric,max=64"`
}

type WebhookSource string

const (
	SourceWebhook  WebhookSource = "WEBHOOK"
	SourceRedirect WebhookSource = "REDIRECT"
	SourceConfirm  WebhookSource = "CONFIRM"
)

// WebhookEvent is the durable audit record of every inbound gateway notification.
type WebhookEvent struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Source         WebhookSource  `gorm:"size:16;not null" json:"source"`
	GatewayOrderID *int64         `gorm:"index" json:"gatewayOrderId"`
	TransactionID  string         `gorm:"size:64;index" json:"transactionId"`
	PaymentID      *uint          `json:"paymentId"`
	SignatureValid bool           `json:"signatureValid"`
	Accepted       bool           `json:"accepted"`
	Reason         string         `gorm:"size:64" json:"reason"`
	Payload        datatypes.JSON `json:"payload"`
	ReceivedAt     time.Time      `gorm:"not null;index" json:"receivedAt"`
}
