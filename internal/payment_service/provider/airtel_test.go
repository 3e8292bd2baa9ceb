package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

type airtelServer struct {
	*httptest.Server
	payResponse  string
	pollResponse string
	lastAuth     map[string]any
	lastPayload  map[string]any
}

func newTestAirtel(t *testing.T) (*AirtelProvider, *airtelServer, *fixture) {
	s := &airtelServer{payResponse: `{"status":"pending","transaction":{"id":"AIR-1"}}`}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "airtel-id", user)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s.lastAuth))
		_, _ = w.Write([]byte(`{"access_token":"airtel-token","expires_in":3600}`))
	})
	mux.HandleFunc("/merchant/v1/payments/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer airtel-token", r.Header.Get("Authorization"))
		assert.Equal(t, "ZM", r.Header.Get("X-Country"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s.lastPayload))
		_, _ = w.Write([]byte(s.payResponse))
	})
	mux.HandleFunc("/standard/v1/payments/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/standard/v1/payments/AIR-1", r.URL.Path)
		_, _ = w.Write([]byte(s.pollResponse))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	f := newFixture(t, s.Server)
	p := NewAirtelProvider(Config{BaseURL: s.URL, APIKey: "airtel-id", APISecret: "airtel-secret"}, f.deps)
	return p, s, f
}

func airtelPayment() domain.PaymentRequest {
	return domain.PaymentRequest{PhoneNumber: "+260 97 123 4567", Amount: decimal.RequireFromString("10.5"), Reference: "INV-7"}
}

func TestAirtelProvider_Authenticate(t *testing.T) {
	p, server, _ := newTestAirtel(t)

	token, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "airtel-token", token)
	assert.Equal(t, map[string]any{
		"grant_type":    "client_credentials",
		"client_id":     "airtel-id",
		"client_secret": "airtel-secret",
	}, server.lastAuth)
}

func TestAirtelProvider_RequestPayment_Pending(t *testing.T) {
	p, server, f := newTestAirtel(t)

	result, err := p.RequestPayment(context.Background(), airtelPayment())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, result.Status)
	require.NotNil(t, result.ProviderTransactionID)
	assert.Equal(t, "AIR-1", *result.ProviderTransactionID)

	assert.Equal(t, result.TransactionID, server.lastPayload["reference"])
	assert.Equal(t, map[string]any{"country": "ZM", "currency": "ZMW", "msisdn": "260971234567"}, server.lastPayload["subscriber"])
	txn := server.lastPayload["transaction"].(map[string]any)
	assert.Equal(t, 10.5, txn["amount"])
	assert.NotEmpty(t, txn["id"])

	tx := f.get(t, result.TransactionID)
	assert.Equal(t, "INV-7", tx.Reference)
	assert.Equal(t, "260971234567", tx.PhoneNumber)
}

func TestAirtelProvider_RequestPayment_ImmediateSuccess(t *testing.T) {
	p, server, f := newTestAirtel(t)
	server.payResponse = `{"status":"success","transaction":{"id":"AIR-9"}}`

	result, err := p.RequestPayment(context.Background(), airtelPayment())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, result.Status)

	tx := f.get(t, result.TransactionID)
	assert.Equal(t, domain.StatusPaid, tx.Status)
	assert.NotNil(t, tx.PaidAt)
	require.Len(t, f.events.Events(), 1)
	assert.Equal(t, "request", f.events.Events()[0].Source)
}

func TestAirtelProvider_RequestPayment_FallsBackToSentID(t *testing.T) {
	p, server, _ := newTestAirtel(t)
	server.payResponse = `{"status":{"code":"200","message":"accepted"}}`

	result, err := p.RequestPayment(context.Background(), airtelPayment())
	require.NoError(t, err)
	require.NotNil(t, result.ProviderTransactionID)
	sent := server.lastPayload["transaction"].(map[string]any)["id"]
	assert.Equal(t, sent, *result.ProviderTransactionID)
	assert.Equal(t, domain.StatusPending, result.Status)
}

func TestAirtelProvider_CheckTransactionStatus_NestedStatus(t *testing.T) {
	p, server, _ := newTestAirtel(t)
	server.pollResponse = `{"data":{"transaction":{"id":"AIR-1","status":"SUCCESS"}},"status":{"code":"200"}}`
	ctx := context.Background()

	result, err := p.RequestPayment(ctx, airtelPayment())
	require.NoError(t, err)

	status, err := p.CheckTransactionStatus(ctx, result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, status.Status)
}

func TestAirtelProvider_ProcessCallback_Failed(t *testing.T) {
	p, _, f := newTestAirtel(t)
	ctx := context.Background()

	result, err := p.RequestPayment(ctx, airtelPayment())
	require.NoError(t, err)

	res, err := p.ProcessCallback(ctx, map[string]any{
		"transaction": map[string]any{"id": "AIR-1"},
		"status":      "Cancelled",
		"reason":      "Customer declined",
	})
	require.NoError(t, err)
	assert.Equal(t, &domain.CallbackResult{Success: true, TransactionID: result.TransactionID, Status: domain.StatusFailed}, res)

	tx := f.get(t, result.TransactionID)
	require.NotNil(t, tx.Message)
	assert.Equal(t, "Customer declined", *tx.Message)
	assert.Contains(t, string(tx.RawResponse), "Customer declined")
}

func TestAirtelProvider_ProcessCallback_DefaultFailureMessage(t *testing.T) {
	p, _, f := newTestAirtel(t)
	ctx := context.Background()

	result, err := p.RequestPayment(ctx, airtelPayment())
	require.NoError(t, err)

	_, err = p.ProcessCallback(ctx, map[string]any{"transaction": map[string]any{"id": "AIR-1"}, "status": "failed"})
	require.NoError(t, err)
	assert.Equal(t, "Payment failed", *f.get(t, result.TransactionID).Message)
}
