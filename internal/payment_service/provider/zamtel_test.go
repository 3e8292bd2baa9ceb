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

type zamtelServer struct {
	*httptest.Server
	payResponse string
	lastPayload map[string]any
}

func newTestZamtel(t *testing.T) (*ZamtelProvider, *zamtelServer, *fixture) {
	s := &zamtelServer{payResponse: `{"transaction_id":"ZT-1","status":"pending"}`}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"zamtel-token"}`))
	})
	mux.HandleFunc("/payments/request", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer zamtel-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s.lastPayload))
		_, _ = w.Write([]byte(s.payResponse))
	})
	mux.HandleFunc("/payments/status/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/status/ZT-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"transaction_id":"ZT-1","status":"completed"}`))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	f := newFixture(t, s.Server)
	p := NewZamtelProvider(Config{
		BaseURL:     s.URL,
		APIKey:      "zamtel-key",
		APISecret:   "zamtel-secret",
		CallbackURL: "https://shop.example/webhook/zamtel",
	}, f.deps)
	return p, s, f
}

func zamtelPayment() domain.PaymentRequest {
	return domain.PaymentRequest{
		PhoneNumber:         "0951234567",
		Amount:              decimal.RequireFromString("25.255"),
		Narration:           "Order 42",
		TransactionableType: "order",
		TransactionableID:   "42",
	}
}

func TestZamtelProvider_RequestPayment(t *testing.T) {
	p, server, f := newTestZamtel(t)

	result, err := p.RequestPayment(context.Background(), zamtelPayment())
	require.NoError(t, err)
	require.NotNil(t, result.ProviderTransactionID)
	assert.Equal(t, "ZT-1", *result.ProviderTransactionID)

	assert.Equal(t, map[string]any{
		"phone_number": "260951234567",
		"amount":       "25.26",
		"currency":     "ZMW",
		"reference":    result.TransactionID,
		"callback_url": "https://shop.example/webhook/zamtel",
		"narration":    "Order 42",
	}, server.lastPayload)

	tx := f.get(t, result.TransactionID)
	assert.Equal(t, "25.26", tx.Amount.StringFixed(2))
	require.NotNil(t, tx.TransactionableType)
	assert.Equal(t, "order", *tx.TransactionableType)
	assert.Equal(t, "42", *tx.TransactionableID)
}

func TestZamtelProvider_RequestPayment_NoReference(t *testing.T) {
	p, server, f := newTestZamtel(t)
	server.payResponse = `{"status":"queued"}`

	result, err := p.RequestPayment(context.Background(), zamtelPayment())
	require.NoError(t, err)
	assert.Nil(t, result.ProviderTransactionID)

	_, err = p.CheckTransactionStatus(context.Background(), result.TransactionID)
	requireWalletError(t, err, domain.KindInvalidTransaction)
	assert.Equal(t, domain.StatusPending, f.get(t, result.TransactionID).Status)
}

func TestZamtelProvider_CheckTransactionStatus(t *testing.T) {
	p, _, f := newTestZamtel(t)
	ctx := context.Background()

	result, err := p.RequestPayment(ctx, zamtelPayment())
	require.NoError(t, err)

	status, err := p.CheckTransactionStatus(ctx, result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, status.Status)
	assert.Contains(t, string(f.get(t, result.TransactionID).RawResponse), "completed")
}

func TestZamtelProvider_ProcessCallback_UnknownStatusStaysPending(t *testing.T) {
	p, _, f := newTestZamtel(t)
	ctx := context.Background()

	result, err := p.RequestPayment(ctx, zamtelPayment())
	require.NoError(t, err)

	res, err := p.ProcessCallback(ctx, map[string]any{"transaction_id": "ZT-1", "status": "processing"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.StatusPending, res.Status)
	assert.Equal(t, domain.StatusPending, f.get(t, result.TransactionID).Status)
}

func TestZamtelProvider_ProcessCallback_Successful(t *testing.T) {
	p, _, f := newTestZamtel(t)
	ctx := context.Background()

	result, err := p.RequestPayment(ctx, zamtelPayment())
	require.NoError(t, err)

	res, err := p.ProcessCallback(ctx, map[string]any{"transaction_id": "ZT-1", "status": "SUCCESSFUL", "amount": json.Number("25.26")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, res.Status)
	assert.Equal(t, domain.StatusPaid, f.get(t, result.TransactionID).Status)
}
