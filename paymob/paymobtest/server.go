// Package paymobtest runs an in-process fake of the Accept API for tests.
package paymobtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"marketplace/config"
	"marketplace/paymob"
)

const (
	APIKey        = "test-api-key"
	HMACKey       = "test-hmac-key"
	IntegrationID = 4421932
	IframeID      = "830"
	firstOrderID  = 217503754
)

// Server answers the authentication, order registration, payment key and
// transaction inquiry endpoints.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	down         bool
	nextOrder    int64
	transactions map[int64]paymob.Transaction
	calls        map[string]int
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		nextOrder:    firstOrderID,
		transactions: map[int64]paymob.Transaction{},
		calls:        map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/tokens", s.authenticate)
	mux.HandleFunc("POST /api/ecommerce/orders", s.registerOrder)
	mux.HandleFunc("POST /api/acceptance/payment_keys", s.paymentKey)
	mux.HandleFunc("GET /api/acceptance/transactions/{id}", s.transaction)
	s.Server = httptest.NewServer(s.track(mux))
	t.Cleanup(s.Close)
	return s
}

// Config points a client at the fake with fast retries.
func (s *Server) Config() config.Paymob {
	return config.Paymob{
		BaseURL:       s.URL + "/api",
		APIKey:        APIKey,
		HMACKey:       HMACKey,
		IntegrationID: IntegrationID,
		IframeID:      IframeID,
		Currency:      "EGP",
		HMACScheme:    paymob.TransactionV1.Name,
		KeyExpiration: 3600,
		Timeout:       time.Second,
		MaxAttempts:   3,
		RetryBackoff:  time.Millisecond,
	}
}

// SetDown makes every endpoint answer 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// AddTransaction makes a transaction visible to the inquiry endpoint.
func (s *Server) AddTransaction(txn paymob.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[txn.ID] = txn
}

// Calls counts requests whose path ends with suffix.
func (s *Server) Calls(suffix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for path, c := range s.calls {
		if strings.HasSuffix(path, suffix) {
			n += c
		}
	}
	return n
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		down := s.down
		s.mu.Unlock()
		if down {
			http.Error(w, `{"detail":"maintenance"}`, http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.APIKey != APIKey {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "incorrect credentials"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": "auth-token"})
}

func (s *Server) registerOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AmountCents     int64  `json:"amount_cents"`
		MerchantOrderID string `json:"merchant_order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AmountCents <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid order"})
		return
	}
	s.mu.Lock()
	id := s.nextOrder
	s.nextOrder++
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "merchant_order_id": body.MerchantOrderID})
}

func (s *Server) paymentKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderID       int64 `json:"order_id"`
		IntegrationID int   `json:"integration_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IntegrationID != IntegrationID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid integration"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": "payment-key-" + strconv.FormatInt(body.OrderID, 10)})
}

func (s *Server) transaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	s.mu.Lock()
	txn, ok := s.transactions[id]
	s.mu.Unlock()
	if err != nil || !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Notification renders a signed processed-callback envelope for a transaction.
func Notification(t testing.TB, verifier *paymob.Verifier, txn paymob.Transaction) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"type": paymob.TypeTransaction,
		"obj": map[string]any{
			"id":                     txn.ID,
			"pending":                txn.Pending,
			"amount_cents":           txn.AmountCents,
			"success":                txn.Success,
			"is_auth":                false,
			"is_capture":             false,
			"is_standalone_payment":  true,
			"is_voided":              false,
			"is_refunded":            false,
			"is_3d_secure":           true,
			"integration_id":         IntegrationID,
			"has_parent_transaction": false,
			"order":                  map[string]any{"id": txn.Order.ID},
			"created_at":             "2024-06-13T11:33:44.592345",
			"currency":               "EGP",
			"source_data":            map[string]any{"pan": "2346", "type": "card", "sub_type": "MasterCard"},
			"error_occured":          txn.ErrorOccured,
			"owner":                  302852,
		},
	})
	if err != nil {
		t.Fatalf("marshal notification: %v", err)
	}
	n, err := paymob.ParsePayload(body, verifier.Scheme())
	if err != nil {
		t.Fatalf("parse notification: %v", err)
	}
	return body, verifier.Sign(n.Fields)
}
