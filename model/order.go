package model

import "github.com/shopspring/decimal"

type OrderPaymentStatus string

const (
	OrderPending  OrderPaymentStatus = "PENDING"
	OrderComplete OrderPaymentStatus = "COMPLETE"
	OrderFailed   OrderPaymentStatus = "FAILED"
	OrderCanceled OrderPaymentStatus = "CANCELED"
)

// Order is owned by the order-management side; payments only read its amount and
// billing fields and write PaymentStatus.
type Order struct {
	DTO
	UserID          uint               `gorm:"not null;index" json:"userId"`
	User            *User              `json:"user,omitempty"`
	PaymentStatus   OrderPaymentStatus `gorm:"size:16;not null;default:PENDING" json:"paymentStatus"`
	ShippingAddress string             `json:"shippingAddress"`
	Phone           string             `json:"phone"`
	City            string             `json:"city"`
	State           string             `json:"state"`
	PostalCode      string             `json:"postalCode"`
	Country         string             `json:"country"`
	Items           []OrderItem        `gorm:"foreignKey:OrderID" json:"items"`
}

type OrderItem struct {
	DTO
	OrderID   uint            `gorm:"not null;index" json:"orderId"`
	ProductID *uint           `json:"productId"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Quantity  int             `gorm:"not null;default:1" json:"quantity"`
}

// Total sums price * quantity over the line items.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// TotalCents is Total in minor units, truncated toward zero.
func (o Order) TotalCents() int64 {
	return o.Total().Shift(2).IntPart()
}

// Payable reports whether a new payment session may be opened for the order.
func (o Order) Payable() bool {
	return o.PaymentStatus == OrderPending || o.PaymentStatus == OrderFailed
}
