package paymob

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrMalformedNotification = errors.New("paymob: malformed notification")

const TypeTransaction = "TRANSACTION"

// fieldAliases maps a canonical field to the flat key some shapes use for it
// (the response callback sends the order id as "order").
var fieldAliases = map[string]string{
	"order.id": "order",
}

// Notification is a transaction callback normalized from any of the accepted shapes.
// Everything except Type is read from the signed field set.
type Notification struct {
	Type           string
	Fields         Fields
	TransactionID  string
	GatewayOrderID int64
	AmountCents    int64
	Success        bool
	Pending        bool
	ErrorOccured   bool
}

// Transaction reports whether the notification carries a transaction outcome.
func (n *Notification) Transaction() bool {
	return n.Type == TypeTransaction
}

// ParsePayload normalizes a processed-callback body. Both the envelope
// {"type": "...", "obj": {...}} and a bare transaction object are accepted.
func ParsePayload(raw []byte, scheme Scheme) (*Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedNotification)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after body", ErrMalformedNotification)
	}

	obj := body
	typ := TypeTransaction
	if inner, ok := body["obj"]; ok {
		m, ok := inner.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: obj is not an object", ErrMalformedNotification)
		}
		obj = m
		if t, ok := body["type"].(string); ok && t != "" {
			typ = strings.ToUpper(t)
		}
	}
	if typ != TypeTransaction {
		return &Notification{Type: typ}, nil
	}

	return build(scheme, func(path string) (string, bool) {
		return lookupJSON(obj, path)
	})
}

// ParseQuery normalizes a response-callback query string. The signature
// parameter itself is ignored.
func ParseQuery(query map[string]string, scheme Scheme) (*Notification, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query", ErrMalformedNotification)
	}
	return build(scheme, func(path string) (string, bool) {
		if v, ok := query[path]; ok {
			return v, true
		}
		if alias, ok := fieldAliases[path]; ok {
			v, ok := query[alias]
			return v, ok
		}
		return "", false
	})
}

func build(scheme Scheme, lookup func(string) (string, bool)) (*Notification, error) {
	fields := scheme.Collect(lookup)

	n := &Notification{Type: TypeTransaction, Fields: fields}
	n.TransactionID = valueOf(fields, "id")
	if n.TransactionID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", ErrMalformedNotification)
	}
	orderID, err := strconv.ParseInt(valueOf(fields, "order.id"), 10, 64)
	if err != nil || orderID <= 0 {
		return nil, fmt.Errorf("%w: missing or invalid order id", ErrMalformedNotification)
	}
	n.GatewayOrderID = orderID
	if amount := valueOf(fields, "amount_cents"); amount != "" {
		if n.AmountCents, err = strconv.ParseInt(amount, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: invalid amount_cents", ErrMalformedNotification)
		}
	}
	n.Success = valueOf(fields, "success") == "true"
	n.Pending = valueOf(fields, "pending") == "true"
	n.ErrorOccured = valueOf(fields, "error_occured") == "true"
	return n, nil
}

// lookupJSON resolves a dotted path, falling back to the flat alias.
func lookupJSON(obj map[string]any, path string) (string, bool) {
	if v, ok := obj[path]; ok {
		return render(v)
	}
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			cur = nil
			break
		}
		if cur, ok = m[part]; !ok {
			cur = nil
			break
		}
	}
	if cur != nil {
		return render(cur)
	}
	if alias, ok := fieldAliases[path]; ok {
		if v, ok := obj[alias]; ok {
			if _, nested := v.(map[string]any); !nested {
				return render(v)
			}
		}
	}
	return "", false
}

// render serializes a leaf value the way the gateway does before hashing.
func render(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case bool:
		return strconv.FormatBool(t), true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}
