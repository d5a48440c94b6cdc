package paymob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"marketplace/config"

	"github.com/google/uuid"
)

const maxResponseBytes = 1 << 20

// AuthToken is the short-lived bearer token. It formats as a placeholder so it
// cannot leak through a log line by accident.
type AuthToken string

func (AuthToken) String() string   { return "[redacted]" }
func (AuthToken) GoString() string { return "[redacted]" }

type RegisteredOrder struct {
	ID              int64
	MerchantOrderID string
}

// Transaction is the subset of a transaction record used to reconcile a payment.
type Transaction struct {
	ID           int64 `json:"id"`
	Success      bool  `json:"success"`
	Pending      bool  `json:"pending"`
	ErrorOccured bool  `json:"error_occured"`
	AmountCents  int64 `json:"amount_cents"`
	Order        struct {
		ID int64 `json:"id"`
	} `json:"order"`
}

// Client speaks the Accept API. It holds no state between calls and never retries.
type Client struct {
	baseURL       string
	apiKey        string
	integrationID int
	currency      string
	expiration    int
	http          *http.Client
	logger        *slog.Logger
}

func NewClient(cfg config.Paymob, logger *slog.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		integrationID: cfg.IntegrationID,
		currency:      cfg.Currency,
		expiration:    cfg.KeyExpiration,
		http:          &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
	}
}

func (c *Client) Currency() string {
	return c.currency
}

// IframeURL is the hosted payment page the buyer is sent to.
func (c *Client) IframeURL(iframeID, paymentKey string) string {
	return fmt.Sprintf("%s/acceptance/iframes/%s?payment_token=%s",
		c.baseURL, url.PathEscape(iframeID), url.QueryEscape(paymentKey))
}

// MerchantReference builds a merchant order id that is unique per registration call,
// so retrying the same order never collides at the gateway.
func MerchantReference(orderID uint) string {
	return fmt.Sprintf("%d-%s", orderID, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func (c *Client) Authenticate(ctx context.Context) (AuthToken, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"api_key": c.apiKey}
	if err := c.do(ctx, "authenticate", http.MethodPost, "/auth/tokens", "", body, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &RejectedError{Op: "authenticate", StatusCode: http.StatusOK, Message: "empty token"}
	}
	return AuthToken(out.Token), nil
}

type orderItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type registerOrderRequest struct {
	AuthToken       string      `json:"auth_token"`
	DeliveryNeeded  bool        `json:"delivery_needed"`
	AmountCents     int64       `json:"amount_cents"`
	Currency        string      `json:"currency"`
	MerchantOrderID string      `json:"merchant_order_id"`
	Items           []orderItem `json:"items"`
}

func (c *Client) RegisterOrder(ctx context.Context, orderID uint, amountCents int64, token AuthToken) (RegisteredOrder, error) {
	req := registerOrderRequest{
		AuthToken:       string(token),
		AmountCents:     amountCents,
		Currency:        c.currency,
		MerchantOrderID: MerchantReference(orderID),
		Items: []orderItem{{
			Name:        fmt.Sprintf("Order #%d", orderID),
			AmountCents: amountCents,
			Description: "Order payment",
			Quantity:    1,
		}},
	}

	var out struct {
		ID              int64  `json:"id"`
		MerchantOrderID string `json:"merchant_order_id"`
	}
	err := c.do(ctx, "register order", http.MethodPost, "/ecommerce/orders", token, req, &out)
	if err != nil {
		if IsDuplicate(err) {
			c.logger.WarnContext(ctx, "paymob.register.duplicate",
				"order_id", orderID, "merchant_order_id", req.MerchantOrderID)
		}
		return RegisteredOrder{}, err
	}
	if out.ID == 0 {
		return RegisteredOrder{}, &RejectedError{Op: "register order", StatusCode: http.StatusOK, Message: "missing order id"}
	}
	c.logger.InfoContext(ctx, "paymob.register.ok",
		"order_id", orderID, "gateway_order_id", out.ID, "merchant_order_id", req.MerchantOrderID)
	return RegisteredOrder{ID: out.ID, MerchantOrderID: req.MerchantOrderID}, nil
}

type paymentKeyRequest struct {
	AuthToken     string      `json:"auth_token"`
	AmountCents   int64       `json:"amount_cents"`
	Expiration    int         `json:"expiration"`
	OrderID       int64       `json:"order_id"`
	BillingData   BillingData `json:"billing_data"`
	Currency      string      `json:"currency"`
	IntegrationID int         `json:"integration_id"`
}

func (c *Client) CreatePaymentKey(ctx context.Context, gatewayOrderID, amountCents int64, token AuthToken, billing BillingData) (string, error) {
	req := paymentKeyRequest{
		AuthToken:     string(token),
		AmountCents:   amountCents,
		Expiration:    c.expiration,
		OrderID:       gatewayOrderID,
		BillingData:   billing,
		Currency:      c.currency,
		IntegrationID: c.integrationID,
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, "create payment key", http.MethodPost, "/acceptance/payment_keys", token, req, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &RejectedError{Op: "create payment key", StatusCode: http.StatusOK, Message: "empty payment key"}
	}
	return out.Token, nil
}

// GetTransaction fetches the gateway's own record of a transaction.
func (c *Client) GetTransaction(ctx context.Context, transactionID string, token AuthToken) (*Transaction, error) {
	if _, err := strconv.ParseInt(transactionID, 10, 64); err != nil {
		return nil, &RejectedError{Op: "get transaction", StatusCode: http.StatusBadRequest, Message: "invalid transaction id"}
	}
	var out Transaction
	path := "/acceptance/transactions/" + transactionID
	if err := c.do(ctx, "get transaction", http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, token AuthToken, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("paymob: %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("paymob: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+string(token))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &UnavailableError{Op: op, Err: transportCause(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &UnavailableError{Op: op, Err: transportCause(err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &RejectedError{Op: op, StatusCode: resp.StatusCode, Message: "undecodable response"}
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.WarnContext(ctx, "paymob.call.unavailable", "op", op, "status", resp.StatusCode)
		return &UnavailableError{Op: op, StatusCode: resp.StatusCode}
	default:
		msg := errorMessage(raw)
		c.logger.WarnContext(ctx, "paymob.call.rejected", "op", op, "status", resp.StatusCode, "message", msg)
		return &RejectedError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Duplicate:  resp.StatusCode == http.StatusUnprocessableEntity && strings.EqualFold(msg, "duplicate"),
		}
	}
}

// transportCause strips the request URL from net/http errors, keeping the cause.
func transportCause(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

const maxErrorMessage = 200

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// errorMessage extracts the gateway's short error message. Raw bodies are never
// echoed since they may repeat request fields.
func errorMessage(raw []byte) string {
	var body struct {
		Message any `json:"message"`
		Detail  any `json:"detail"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	for _, v := range []any{body.Message, body.Detail} {
		if s, ok := v.(string); ok && s != "" {
			return truncate(s, maxErrorMessage)
		}
	}
	return ""
}
