package router

import (
	"marketplace/handler"
	"marketplace/middleware"
	"marketplace/validate"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func SetupRoutes(app *fiber.App, h *handler.PaymentHandler) {
	api := app.Group("/api", logger.New())
	v1 := api.Group("/v1")

	payments := v1.Group("/payments")
	payments.Post("/sessions", middleware.Protected(), validate.CreateSession(), h.CreateSession)
	payments.Post("/confirm", middleware.Protected(), validate.ConfirmPayment(), h.Confirm)
	payments.Post("/webhook", h.Webhook)
	payments.Get("/response", h.Response)
	payments.Get("/:id", middleware.Protected(), validate.GetById("id"), h.GetPayment)
	payments.Get("/:id/qr", middleware.Protected(), validate.GetById("id"), h.PaymentQR)
	payments.Get("/:id/ws", middleware.Protected(), validate.GetById("id"), h.UpgradeStatusSocket, websocket.New(h.StatusSocket))
}
