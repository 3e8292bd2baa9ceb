package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	adapter_http "github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/adapters/http"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/app"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

var testSecret = []byte("test-admin-secret")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) RequestPayment(ctx context.Context, provider string, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	args := m.Called(ctx, provider, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentResult), args.Error(1)
}

func (m *MockPaymentService) CheckTransactionStatus(ctx context.Context, provider, transactionID string) (*domain.StatusResult, error) {
	args := m.Called(ctx, provider, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StatusResult), args.Error(1)
}

type MockTransactionLookup struct {
	mock.Mock
}

func (m *MockTransactionLookup) GetByTransactionID(ctx context.Context, transactionID string, provider domain.Provider) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

type MockWebhookProcessor struct {
	mock.Mock
}

func (m *MockWebhookProcessor) Handle(ctx context.Context, provider string, header http.Header, body []byte) (*domain.CallbackResult, error) {
	args := m.Called(ctx, provider, header, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallbackResult), args.Error(1)
}

type MockAdminOperations struct {
	mock.Mock
}

func (m *MockAdminOperations) ListTransactions(ctx context.Context, f domain.TransactionFilter) (*app.TransactionPage, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*app.TransactionPage), args.Error(1)
}

func (m *MockAdminOperations) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockAdminOperations) UpdateStatus(ctx context.Context, transactionID string, status domain.Status, message *string) (*domain.Transaction, error) {
	args := m.Called(ctx, transactionID, status, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockAdminOperations) Report(ctx context.Context, f domain.TransactionFilter) (*app.Report, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*app.Report), args.Error(1)
}

type routerDeps struct {
	payments *MockPaymentService
	lookup   *MockTransactionLookup
	webhooks *MockWebhookProcessor
	admin    *MockAdminOperations
}

func newTestRouter(limits adapter_http.RateLimits) (http.Handler, routerDeps) {
	deps := routerDeps{
		payments: new(MockPaymentService),
		lookup:   new(MockTransactionLookup),
		webhooks: new(MockWebhookProcessor),
		admin:    new(MockAdminOperations),
	}
	router := adapter_http.NewRouter(adapter_http.RouterConfig{
		Payments:  deps.payments,
		Lookup:    deps.lookup,
		Webhooks:  deps.webhooks,
		Admin:     deps.admin,
		JWTSecret: testSecret,
		Limits:    limits,
		Logger:    testLogger(),
	})
	return router, deps
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}
