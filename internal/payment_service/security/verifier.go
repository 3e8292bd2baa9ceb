// Package security verifies the authenticity of inbound provider webhooks.
package security

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

const (
	HeaderMTNSignature    = "X-MTN-Signature"
	HeaderAirtelSignature = "X-Auth-Signature"
	HeaderAirtelTimestamp = "X-Timestamp"
	HeaderZamtelSignature = "X-Zamtel-Signature"
)

// SignatureVerifier reports whether a webhook request is authentic. It never
// returns an error; every failure is logged and reported as false.
type SignatureVerifier interface {
	Verify(headers http.Header, body []byte) bool
}

// ErrMissingSecret is returned by NewVerifier when no signing secret is
// configured. A MAC keyed with an empty secret can be computed by anyone.
var ErrMissingSecret = errors.New("webhook signing secret is not configured")

// Credentials carries what the verifiers need for one provider.
type Credentials struct {
	ClientID string
	Secret   string
}

// NewVerifier resolves a provider name to its verifier.
func NewVerifier(provider string, creds Credentials, logger *slog.Logger) (SignatureVerifier, error) {
	p, err := domain.ParseProvider(provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(creds.Secret) == "" {
		return nil, fmt.Errorf("%w for %s", ErrMissingSecret, p)
	}
	switch p {
	case domain.ProviderMTN:
		return NewMTNVerifier(creds.Secret, logger), nil
	case domain.ProviderAirtel:
		return NewAirtelVerifier(creds.ClientID, creds.Secret, logger), nil
	case domain.ProviderZamtel:
		return NewZamtelVerifier(creds.Secret, logger), nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, provider)
}

func hmacSHA256(secret string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

func constantTimeEqual(expected, got string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// MTNVerifier checks X-MTN-Signature = hex(HMAC-SHA256(body, secret)).
type MTNVerifier struct {
	secret string
	logger *slog.Logger
}

func NewMTNVerifier(secret string, logger *slog.Logger) *MTNVerifier {
	return &MTNVerifier{secret: secret, logger: logger.With("component", "signature_verifier", "provider", domain.ProviderMTN)}
}

func (v *MTNVerifier) Sign(body []byte) string {
	return hex.EncodeToString(hmacSHA256(v.secret, body))
}

func (v *MTNVerifier) Verify(headers http.Header, body []byte) bool {
	if v.secret == "" {
		v.logger.Error("Webhook secret is empty; rejecting")
		return false
	}
	sig := strings.TrimSpace(headers.Get(HeaderMTNSignature))
	if sig == "" {
		v.logger.Warn("Missing webhook signature header", "header", HeaderMTNSignature)
		return false
	}
	if !constantTimeEqual(v.Sign(body), strings.ToLower(sig)) {
		v.logger.Warn("Webhook signature mismatch")
		return false
	}
	return true
}

// AirtelVerifier checks X-Auth-Signature =
// base64(HMAC-SHA256(X-Timestamp + clientID + body, secret)).
type AirtelVerifier struct {
	clientID string
	secret   string
	logger   *slog.Logger
}

func NewAirtelVerifier(clientID, secret string, logger *slog.Logger) *AirtelVerifier {
	return &AirtelVerifier{clientID: clientID, secret: secret, logger: logger.With("component", "signature_verifier", "provider", domain.ProviderAirtel)}
}

func (v *AirtelVerifier) Sign(timestamp string, body []byte) string {
	return base64.StdEncoding.EncodeToString(hmacSHA256(v.secret, []byte(timestamp), []byte(v.clientID), body))
}

func (v *AirtelVerifier) Verify(headers http.Header, body []byte) bool {
	if v.secret == "" {
		v.logger.Error("Webhook secret is empty; rejecting")
		return false
	}
	sig := strings.TrimSpace(headers.Get(HeaderAirtelSignature))
	ts := strings.TrimSpace(headers.Get(HeaderAirtelTimestamp))
	if sig == "" || ts == "" {
		v.logger.Warn("Missing webhook signature headers", "has_signature", sig != "", "has_timestamp", ts != "")
		return false
	}
	if !constantTimeEqual(v.Sign(ts, body), sig) {
		v.logger.Warn("Webhook signature mismatch", "timestamp", ts)
		return false
	}
	return true
}

// ZamtelVerifier checks X-Zamtel-Signature = hex(SHA-256(transaction_id +
// amount + secret)) where both fields come from the JSON body. The amount is
// taken verbatim from the payload so 100 and "100.00" sign differently.
type ZamtelVerifier struct {
	secret string
	logger *slog.Logger
}

func NewZamtelVerifier(secret string, logger *slog.Logger) *ZamtelVerifier {
	return &ZamtelVerifier{secret: secret, logger: logger.With("component", "signature_verifier", "provider", domain.ProviderZamtel)}
}

func (v *ZamtelVerifier) Sign(transactionID, amount string) string {
	sum := sha256.Sum256([]byte(transactionID + amount + v.secret))
	return hex.EncodeToString(sum[:])
}

func (v *ZamtelVerifier) Verify(headers http.Header, body []byte) bool {
	if v.secret == "" {
		v.logger.Error("Webhook secret is empty; rejecting")
		return false
	}
	sig := strings.TrimSpace(headers.Get(HeaderZamtelSignature))
	if sig == "" {
		v.logger.Warn("Missing webhook signature header", "header", HeaderZamtelSignature)
		return false
	}

	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		v.logger.Warn("Webhook body is not a JSON object", "error", err)
		return false
	}
	txID := scalarString(payload["transaction_id"])
	amount := scalarString(payload["amount"])
	if txID == "" || amount == "" {
		v.logger.Warn("Webhook body missing signed fields", "has_transaction_id", txID != "", "has_amount", amount != "")
		return false
	}

	if !constantTimeEqual(v.Sign(txID, amount), strings.ToLower(sig)) {
		v.logger.Warn("Webhook signature mismatch", "transaction_id", txID)
		return false
	}
	return true
}

// scalarString renders a decoded JSON scalar the way it appeared on the wire.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "1"
		}
		return ""
	default:
		return ""
	}
}
