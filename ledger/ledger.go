// Package ledger owns the Payment records and their single allowed transition,
// INITIATED to PAID or FAILED, cascading the owning order's payment status.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketplace/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrDuplicateSession   = errors.New("ledger: an initiated payment already exists for this order")
	ErrConflictingOutcome = errors.New("ledger: outcome conflicts with recorded outcome")
	ErrPaymentNotFound    = errors.New("ledger: payment not found")
)

// Lookup selects a payment by internal id or by gateway order id. Exactly one is set.
type Lookup struct {
	PaymentID      uint
	GatewayOrderID int64
}

func ByID(id uint) Lookup { return Lookup{PaymentID: id} }

func ByGatewayOrder(id int64) Lookup { return Lookup{GatewayOrderID: id} }

func (l Lookup) String() string {
	if l.PaymentID != 0 {
		return fmt.Sprintf("payment_id=%d", l.PaymentID)
	}
	return fmt.Sprintf("gateway_order_id=%d", l.GatewayOrderID)
}

type Outcome struct {
	Status        model.PaymentStatus
	TransactionID string
}

func Paid(transactionID string) Outcome {
	return Outcome{Status: model.PaymentPaid, TransactionID: transactionID}
}

// Failed may carry the gateway transaction id of the declined attempt, if any.
func Failed(transactionID string) Outcome {
	return Outcome{Status: model.PaymentFailed, TransactionID: transactionID}
}

type Result struct {
	Payment model.Payment
	// Applied is false when the payment was already in the requested terminal state.
	Applied bool
}

// Registration is what the gateway returned for a session, persisted by Create.
type Registration struct {
	GatewayOrderID  int64
	MerchantOrderID string
	PaymentKey      string
	AmountCents     int64
	Currency        string
}

// Listener is told about every applied transition, after commit.
type Listener interface {
	PaymentTransitioned(ctx context.Context, payment model.Payment)
}

type Ledger struct {
	db        *gorm.DB
	logger    *slog.Logger
	now       func() time.Time
	listeners []Listener
}

func New(db *gorm.DB, logger *slog.Logger, listeners ...Listener) *Ledger {
	return &Ledger{db: db, logger: logger, now: time.Now, listeners: listeners}
}

func (l *Ledger) Create(ctx context.Context, order model.Order, userID uint, reg Registration) (*model.Payment, error) {
	payment := model.Payment{
		OrderID:         order.ID,
		UserID:          userID,
		GatewayOrderID:  reg.GatewayOrderID,
		MerchantOrderID: reg.MerchantOrderID,
		PaymentKey:      reg.PaymentKey,
		AmountCents:     reg.AmountCents,
		Currency:        reg.Currency,
		Status:          model.PaymentInitiated,
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&model.Payment{}).
			Where("order_id = ? AND status = ?", order.ID, model.PaymentInitiated).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrDuplicateSession
		}
		return tx.Omit(clause.Associations).Create(&payment).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race on the partial unique index.
			err = ErrDuplicateSession
		}
		if !errors.Is(err, ErrDuplicateSession) {
			err = fmt.Errorf("ledger: create payment for order %d: %w", order.ID, err)
		}
		return nil, err
	}

	l.logger.InfoContext(ctx, "payment.ledger.created",
		"payment_id", payment.ID, "order_id", order.ID, "gateway_order_id", reg.GatewayOrderID)
	return &payment, nil
}

// Transition moves an INITIATED payment to the outcome's terminal state and cascades
// the order. A repeat of the recorded outcome succeeds without writing; a contradicting
// one fails with ErrConflictingOutcome. The conditional UPDATE is the only
// synchronization point between concurrent callers.
func (l *Ledger) Transition(ctx context.Context, key Lookup, outcome Outcome) (Result, error) {
	if !outcome.Status.Terminal() {
		return Result{}, fmt.Errorf("ledger: %s is not a terminal status", outcome.Status)
	}

	var result Result
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := find(tx, key)
		if err != nil {
			return err
		}

		if result.Applied, err = l.settle(tx, payment, outcome); err != nil {
			return err
		}

		if err := tx.First(&result.Payment, payment.ID).Error; err != nil {
			return err
		}
		if !result.Applied && result.Payment.Status != outcome.Status {
			return ErrConflictingOutcome
		}
		return nil
	})

	switch {
	case errors.Is(err, ErrConflictingOutcome):
		l.logger.ErrorContext(ctx, "payment.ledger.conflict",
			"lookup", key.String(), "payment_id", result.Payment.ID,
			"recorded", result.Payment.Status, "requested", outcome.Status)
		return result, err
	case errors.Is(err, ErrPaymentNotFound):
		return Result{}, err
	case err != nil:
		return Result{}, fmt.Errorf("ledger: transition %s: %w", key, err)
	}

	if result.Applied {
		l.logger.InfoContext(ctx, "payment.ledger.transitioned",
			"payment_id", result.Payment.ID, "order_id", result.Payment.OrderID,
			"gateway_order_id", result.Payment.GatewayOrderID, "status", result.Payment.Status)
		for _, listener := range l.listeners {
			listener.PaymentTransitioned(ctx, result.Payment)
		}
	} else {
		l.logger.InfoContext(ctx, "payment.ledger.idempotent",
			"payment_id", result.Payment.ID, "status", result.Payment.Status)
	}
	return result, nil
}

// settle writes the outcome only if the payment is still INITIATED in storage,
// whatever the caller's snapshot says, and cascades the order when it wins.
func (l *Ledger) settle(tx *gorm.DB, payment model.Payment, outcome Outcome) (bool, error) {
	updates := map[string]any{
		"status":     outcome.Status,
		"updated_at": l.now(),
	}
	if outcome.TransactionID != "" {
		updates["transaction_id"] = outcome.TransactionID
	}
	res := tx.Model(&model.Payment{}).
		Where("id = ? AND status = ?", payment.ID, model.PaymentInitiated).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := tx.Model(&model.Order{}).
		Where("id = ?", payment.OrderID).
		UpdateColumn("payment_status", outcome.Status.OrderStatus()).Error; err != nil {
		return false, err
	}
	return true, nil
}

func find(tx *gorm.DB, key Lookup) (model.Payment, error) {
	var payment model.Payment
	q := tx.Select("id", "order_id", "status")
	switch {
	case key.PaymentID != 0:
		q = q.Where("id = ?", key.PaymentID)
	case key.GatewayOrderID != 0:
		q = q.Where("gateway_order_id = ?", key.GatewayOrderID)
	default:
		return payment, ErrPaymentNotFound
	}
	if err := q.Take(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return payment, ErrPaymentNotFound
		}
		return payment, err
	}
	return payment, nil
}

func (l *Ledger) Get(ctx context.Context, key Lookup) (*model.Payment, error) {
	var payment model.Payment
	q := l.db.WithContext(ctx)
	switch {
	case key.PaymentID != 0:
		q = q.Where("id = ?", key.PaymentID)
	case key.GatewayOrderID != 0:
		q = q.Where("gateway_order_id = ?", key.GatewayOrderID)
	default:
		return nil, ErrPaymentNotFound
	}
	if err := q.Take(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// ActiveForOrder returns the order's INITIATED payment, or nil.
func (l *Ledger) ActiveForOrder(ctx context.Context, orderID uint) (*model.Payment, error) {
	var payment model.Payment
	err := l.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, model.PaymentInitiated).
		Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// StaleInitiated lists INITIATED payments created before the cutoff.
func (l *Ledger) StaleInitiated(ctx context.Context, cutoff time.Time) ([]model.Payment, error) {
	var payments []model.Payment
	err := l.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.PaymentInitiated, cutoff).
		Order("created_at").
		Find(&payments).Error
	return payments, err
}
