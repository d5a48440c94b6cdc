package handler

import (
	"errors"
	"log/slog"

	"marketplace/constants"
	"marketplace/ledger"
	"marketplace/paymob"
	"marketplace/service"
	"marketplace/utils"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps a domain error onto an HTTP status and a client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrMalformedPayload):
		return fiber.StatusBadRequest, constants.PAYMENT_MALFORMED_PAYLOAD
	case errors.Is(err, service.ErrInvalidSignature):
		return fiber.StatusForbidden, constants.PAYMENT_INVALID_SIGNATURE
	case errors.Is(err, service.ErrOrderNotFound):
		return fiber.StatusNotFound, constants.ORDER_NOT_FOUND
	case errors.Is(err, ledger.ErrPaymentNotFound):
		return fiber.StatusNotFound, constants.PAYMENT_NOT_FOUND
	case errors.Is(err, service.ErrOrderNotPayable):
		return fiber.StatusConflict, constants.ORDER_NOT_PAYABLE
	case errors.Is(err, ledger.ErrDuplicateSession):
		return fiber.StatusConflict, constants.PAYMENT_SESSION_EXISTS
	case errors.Is(err, ledger.ErrConflictingOutcome):
		return fiber.StatusConflict, constants.PAYMENT_OUTCOME_CONFLICT
	case errors.Is(err, service.ErrTransactionMismatch):
		return fiber.StatusConflict, constants.PAYMENT_TXN_MISMATCH
	case errors.Is(err, paymob.ErrGatewayUnavailable):
		return fiber.StatusServiceUnavailable, constants.PAYMENT_GATEWAY_DOWN
	case errors.Is(err, paymob.ErrGatewayRejected):
		return fiber.StatusBadGateway, constants.PAYMENT_GATEWAY_REJECTED
	default:
		return fiber.StatusInternalServerError, constants.ERROR_INTERNAL_ERROR
	}
}

func (h *PaymentHandler) fail(c *fiber.Ctx, err error) error {
	status, message := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.Logger.ErrorContext(c.UserContext(), "http.request.failed", "path", c.Path(), "err", err)
		return utils.ErrorResponse(c, status, message, nil)
	}
	level := slog.LevelInfo
	if status >= fiber.StatusInternalServerError {
		level = slog.LevelWarn
	}
	h.Logger.Log(c.UserContext(), level, "http.request.rejected", "path", c.Path(), "status", status, "err", err)
	return utils.ErrorResponse(c, status, message, err)
}
