package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"marketplace/constants"
	"marketplace/helper"
	"marketplace/ledger"
	"marketplace/model"
	"marketplace/service"
	"marketplace/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type PaymentHandler struct {
	Sessions      *service.Sessions
	Reconciler    *service.Reconciler
	Confirmations *service.Confirmations
	Ledger        *ledger.Ledger
	// IframeURL renders the hosted payment page for a payment key.
	IframeURL   func(paymentKey string) string
	Redis       *redis.Client
	FrontendURL string
	Logger      *slog.Logger
}

func (h *PaymentHandler) CreateSession(c *fiber.Ctx) error {
	user, err := helper.GetUserFromToken(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.UNAUTHORIZED, err)
	}
	input := c.Locals("input").(model.CreateSessionInput)

	session, err := h.Sessions.CreateSession(c.UserContext(), user.UserId, input.OrderId, input.AmountCents)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, session)
}

// Confirm settles a payment from the gateway's record of the named transaction.
func (h *PaymentHandler) Confirm(c *fiber.Ctx) error {
	user, err := helper.GetUserFromToken(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, constants.UNAUTHORIZED, err)
	}
	input := c.Locals("input").(model.ConfirmPaymentInput)

	res, err := h.Confirmations.Confirm(c.UserContext(), user.UserId, input.PaymentId, input.TransactionId)
	if err != nil {
		return h.fail(c, err)
	}
	status := fiber.StatusOK
	if res.Reason == service.ReasonPending {
		status = fiber.StatusAccepted
	}
	return utils.SuccessResponse(c, status, res)
}

// Webhook receives the gateway's processed callback. Anything the gateway should
// not redeliver is acknowledged with 202.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	signature := c.Query("hmac")
	if signature == "" {
		signature = c.Get("X-Paymob-Signature")
	}
	raw := append([]byte(nil), c.Body()...)

	res, err := h.Reconciler.Handle(c.UserContext(), raw, signature)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(res)
}

// Response handles the buyer's browser coming back from the hosted page and
// forwards it to the storefront with the verified outcome.
func (h *PaymentHandler) Response(c *fiber.Ctx) error {
	query := c.Queries()
	res, err := h.Reconciler.HandleRedirect(c.UserContext(), query)

	params := url.Values{}
	switch {
	case errors.Is(err, service.ErrInvalidSignature), errors.Is(err, service.ErrMalformedPayload):
		params.Set("status", "invalid")
	case err != nil && !errors.Is(err, ledger.ErrConflictingOutcome):
		params.Set("status", "error")
	case res.Reason == service.ReasonPending:
		params.Set("status", "pending")
	case res.Status == model.PaymentPaid:
		params.Set("status", "paid")
	default:
		params.Set("status", "failed")
	}
	if res.PaymentID != 0 {
		params.Set("paymentId", strconv.FormatUint(uint64(res.PaymentID), 10))
	}
	if err == nil || errors.Is(err, ledger.ErrConflictingOutcome) {
		if order := query["order"]; order != "" {
			params.Set("order", order)
		}
	}
	return c.Redirect(fmt.Sprintf("%s/payment-result?%s", h.FrontendURL, params.Encode()))
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	payment, err := h.ownedPayment(c)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, payment)
}

// PaymentQR renders the hosted payment page link of an open session as a PNG.
func (h *PaymentHandler) PaymentQR(c *fiber.Ctx) error {
	payment, err := h.ownedPayment(c)
	if err != nil {
		return h.fail(c, err)
	}
	if payment.Status != model.PaymentInitiated {
		return utils.ErrorResponse(c, fiber.StatusConflict, constants.ORDER_NOT_PAYABLE, nil)
	}

	png, err := utils.GenerateQRCode(h.IframeURL(payment.PaymentKey), 256)
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(png)
}

// ownedPayment loads the payment named by the route, hiding other buyers' payments.
func (h *PaymentHandler) ownedPayment(c *fiber.Ctx) (*model.Payment, error) {
	user, err := helper.GetUserFromToken(c)
	if err != nil {
		return nil, ledger.ErrPaymentNotFound
	}
	id := c.Locals("inputId").(uint)
	payment, err := h.Ledger.Get(c.UserContext(), ledger.ByID(id))
	if err != nil {
		return nil, err
	}
	if payment.UserID != user.UserId {
		return nil, ledger.ErrPaymentNotFound
	}
	return payment, nil
}
