package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"marketplace/ledger"
	"marketplace/model"
	"marketplace/paymob"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Result is the verdict on one notification or confirmation.
type Result struct {
	Accepted  bool                `json:"accepted"`
	Reason    string              `json:"reason"`
	PaymentID uint                `json:"paymentId,omitempty"`
	Status    model.PaymentStatus `json:"status,omitempty"`
}

// Reconciler turns gateway notifications into ledger transitions. It is safe under
// redelivery and under any interleaving with the confirm path.
type Reconciler struct {
	verifier *paymob.Verifier
	ledger   *ledger.Ledger
	audit    *auditor
	logger   *slog.Logger
}

func NewReconciler(db *gorm.DB, verifier *paymob.Verifier, l *ledger.Ledger, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		verifier: verifier,
		ledger:   l,
		audit:    &auditor{db: db, logger: logger, now: time.Now},
		logger:   logger,
	}
}

// Handle processes a server-to-server processed callback body.
func (r *Reconciler) Handle(ctx context.Context, raw []byte, signature string) (Result, error) {
	event := model.WebhookEvent{Source: model.SourceWebhook, Payload: auditPayload(raw)}
	n, err := paymob.ParsePayload(raw, r.verifier.Scheme())
	return r.process(ctx, &event, n, err, signature)
}

// HandleRedirect processes the query string of the browser redirect. The signature
// travels in the hmac parameter.
func (r *Reconciler) HandleRedirect(ctx context.Context, query map[string]string) (Result, error) {
	payload, _ := json.Marshal(query)
	event := model.WebhookEvent{Source: model.SourceRedirect, Payload: auditPayload(payload)}
	n, err := paymob.ParseQuery(query, r.verifier.Scheme())
	return r.process(ctx, &event, n, err, query["hmac"])
}

func (r *Reconciler) process(ctx context.Context, event *model.WebhookEvent, n *paymob.Notification, parseErr error, signature string) (Result, error) {
	if parseErr != nil {
		r.logger.WarnContext(ctx, "payment.webhook.malformed", "source", event.Source, "err", parseErr)
		r.audit.record(ctx, event, Result{Reason: ReasonMalformed})
		return Result{Reason: ReasonMalformed}, ErrMalformedPayload
	}
	if !n.Transaction() {
		r.logger.InfoContext(ctx, "payment.webhook.ignored", "source", event.Source, "type", n.Type)
		res := Result{Accepted: true, Reason: ReasonIgnoredType}
		r.audit.record(ctx, event, res)
		return res, nil
	}

	event.TransactionID = n.TransactionID
	event.GatewayOrderID = &n.GatewayOrderID
	if !r.verifier.Verify(n.Fields, signature) {
		r.logger.WarnContext(ctx, "payment.webhook.rejected",
			"source", event.Source, "gateway_order_id", n.GatewayOrderID, "transaction_id", n.TransactionID)
		res := Result{Reason: ReasonBadSignature}
		r.audit.record(ctx, event, res)
		return res, ErrInvalidSignature
	}
	event.SignatureValid = true

	if n.Pending {
		r.logger.InfoContext(ctx, "payment.webhook.pending",
			"gateway_order_id", n.GatewayOrderID, "transaction_id", n.TransactionID)
		res := Result{Accepted: true, Reason: ReasonPending}
		r.audit.record(ctx, event, res)
		return res, nil
	}

	outcome := ledger.Failed(n.TransactionID)
	if n.Success && !n.ErrorOccured {
		outcome = ledger.Paid(n.TransactionID)
	}
	res, err := applyOutcome(ctx, r.ledger, r.logger, ledger.ByGatewayOrder(n.GatewayOrderID), outcome)
	if res.PaymentID != 0 {
		event.PaymentID = &res.PaymentID
	}
	r.audit.record(ctx, event, res)
	if err == nil && res.PaymentID != 0 {
		r.checkAmount(ctx, res.PaymentID, n)
	}
	return res, err
}

// checkAmount flags a notification whose amount differs from what was registered.
func (r *Reconciler) checkAmount(ctx context.Context, paymentID uint, n *paymob.Notification) {
	payment, err := r.ledger.Get(ctx, ledger.ByID(paymentID))
	if err != nil || payment.AmountCents == n.AmountCents {
		return
	}
	r.logger.WarnContext(ctx, "payment.webhook.amount_mismatch",
		"payment_id", paymentID, "gateway_order_id", n.GatewayOrderID,
		"registered_cents", payment.AmountCents, "notified_cents", n.AmountCents)
}

// applyOutcome runs a transition and maps its result onto a verdict. Every ledger
// outcome except a conflict is accepted; an unknown payment is acknowledged and
// left unapplied.
func applyOutcome(ctx context.Context, l *ledger.Ledger, logger *slog.Logger, key ledger.Lookup, outcome ledger.Outcome) (Result, error) {
	tr, err := l.Transition(ctx, key, outcome)
	switch {
	case errors.Is(err, ledger.ErrPaymentNotFound):
		logger.WarnContext(ctx, "payment.reconcile.unknown_payment", "lookup", key.String())
		return Result{Accepted: true, Reason: ReasonUnknownPayment}, nil
	case errors.Is(err, ledger.ErrConflictingOutcome):
		return Result{
			Reason:    ReasonConflict,
			PaymentID: tr.Payment.ID,
			Status:    tr.Payment.Status,
		}, err
	case err != nil:
		return Result{}, err
	}

	res := Result{Accepted: true, PaymentID: tr.Payment.ID, Status: tr.Payment.Status}
	switch {
	case !tr.Applied:
		res.Reason = ReasonAlreadyRecorded
	case tr.Payment.Status == model.PaymentPaid:
		res.Reason = ReasonPaid
	default:
		res.Reason = ReasonFailed
	}
	return res, nil
}

// auditPayload keeps a body that is not JSON as a JSON string.
func auditPayload(raw []byte) datatypes.JSON {
	if len(raw) > 0 && json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return datatypes.JSON(quoted)
}

type auditor struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// record stores the verdict. A failed audit write is logged and never fails the caller.
func (a *auditor) record(ctx context.Context, event *model.WebhookEvent, res Result) {
	event.Accepted = res.Accepted
	event.Reason = res.Reason
	event.ReceivedAt = a.now()
	if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
		a.logger.ErrorContext(ctx, "payment.audit.write_failed",
			"source", event.Source, "reason", res.Reason, "err", err)
	}
}
