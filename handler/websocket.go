package handler

import (
	"context"
	"encoding/json"
	"time"

	"marketplace/ledger"
	"marketplace/model"
	"marketplace/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const statusSocketLifetime = 30 * time.Minute

// UpgradeStatusSocket admits the websocket upgrade for the buyer's own payment.
func (h *PaymentHandler) UpgradeStatusSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	payment, err := h.ownedPayment(c)
	if err != nil {
		return h.fail(c, err)
	}
	c.Locals("payment", *payment)
	return c.Next()
}

// StatusSocket sends the current status, then relays transitions published on the
// payment's channel until the payment is terminal or the client goes away.
func (h *PaymentHandler) StatusSocket(c *websocket.Conn) {
	defer c.Close()
	payment := c.Locals("payment").(model.Payment)

	if err := c.WriteJSON(statusMessage(payment)); err != nil {
		return
	}
	if payment.Status.Terminal() || h.Redis == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusSocketLifetime)
	defer cancel()

	pubsub := h.Redis.Subscribe(ctx, service.StatusChannel(payment.ID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		h.Logger.WarnContext(ctx, "payment.socket.subscribe_failed", "payment_id", payment.ID, "err", err)
		return
	}

	// The transition may have landed before the subscription was active.
	if current, err := h.Ledger.Get(ctx, ledger.ByID(payment.ID)); err == nil && current.Status.Terminal() {
		_ = c.WriteJSON(statusMessage(*current))
		return
	}

	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
			var status service.StatusMessage
			if json.Unmarshal([]byte(msg.Payload), &status) == nil && status.Status.Terminal() {
				return
			}
		}
	}
}

func statusMessage(p model.Payment) service.StatusMessage {
	return service.StatusMessage{PaymentID: p.ID, OrderID: p.OrderID, Status: p.Status}
}
