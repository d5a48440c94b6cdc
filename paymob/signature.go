package paymob

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Fields is the signed field set of a notification, keyed by dotted path. Its
// insertion order is the order values are concatenated in; build it with
// Scheme.Collect.
type Fields = *orderedmap.OrderedMap[string, string]

func NewFields() Fields {
	return orderedmap.New[string, string]()
}

// Scheme pins the HMAC canonicalization: which fields are signed and with which hash.
type Scheme struct {
	Name   string
	Hash   func() hash.Hash
	fields []string
}

func NewScheme(name string, h func() hash.Hash, fields ...string) Scheme {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	return Scheme{Name: name, Hash: h, fields: sorted}
}

// Fields returns the signed field names in canonical (byte-wise sorted) order.
func (s Scheme) Fields() []string {
	return append([]string(nil), s.fields...)
}

// Collect reads every signed field through lookup, in canonical order. Absent
// fields are kept with an empty value.
func (s Scheme) Collect(lookup func(string) (string, bool)) Fields {
	fields := NewFields()
	for _, name := range s.fields {
		v, _ := lookup(name)
		fields.Set(name, v)
	}
	return fields
}

func (s Scheme) signs(name string) bool {
	i := sort.SearchStrings(s.fields, name)
	return i < len(s.fields) && s.fields[i] == name
}

// TransactionV1 is the Accept transaction-callback HMAC (processed and response callbacks).
var TransactionV1 = NewScheme("transaction-v1", sha512.New,
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
)

// TransactionV1SHA256 signs the same field set with SHA-256.
var TransactionV1SHA256 = NewScheme("transaction-v1-sha256", sha256.New, TransactionV1.fields...)

var schemes = map[string]Scheme{
	TransactionV1.Name:       TransactionV1,
	TransactionV1SHA256.Name: TransactionV1SHA256,
}

func LookupScheme(name string) (Scheme, bool) {
	s, ok := schemes[name]
	return s, ok
}

type Verifier struct {
	scheme Scheme
	key    []byte
}

func NewVerifier(scheme Scheme, key string) *Verifier {
	return &Verifier{scheme: scheme, key: []byte(key)}
}

func (v *Verifier) Scheme() Scheme {
	return v.scheme
}

// canonical concatenates the values of signed fields in insertion order. Keys
// outside the scheme are skipped.
func (v *Verifier) canonical(fields Fields) string {
	var b strings.Builder
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		if v.scheme.signs(pair.Key) {
			b.WriteString(pair.Value)
		}
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC of the canonical string, or "" when the
// verifier has no key.
func (v *Verifier) Sign(fields Fields) string {
	if v == nil || len(v.key) == 0 || v.scheme.Hash == nil || fields == nil {
		return ""
	}
	mac := hmac.New(v.scheme.Hash, v.key)
	mac.Write([]byte(v.canonical(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether received is the signature of fields. It never panics and
// treats every malformed input as a mismatch.
func (v *Verifier) Verify(fields Fields, received string) bool {
	if received == "" {
		return false
	}
	expected := v.Sign(fields)
	if expected == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(received))
}

func valueOf(fields Fields, name string) string {
	v, _ := fields.Get(name)
	return v
}
