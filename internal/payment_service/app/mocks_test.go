package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockPaymentProvider struct {
	mock.Mock
	name domain.Provider
}

func (m *MockPaymentProvider) Name() domain.Provider { return m.name }

func (m *MockPaymentProvider) Authenticate(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentProvider) RequestPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentResult), args.Error(1)
}

func (m *MockPaymentProvider) CheckTransactionStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StatusResult), args.Error(1)
}

func (m *MockPaymentProvider) ProcessCallback(ctx context.Context, payload map[string]any) (*domain.CallbackResult, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallbackResult), args.Error(1)
}

type MockCallbackDispatcher struct {
	mock.Mock
}

func (m *MockCallbackDispatcher) ProcessCallback(ctx context.Context, provider string, payload map[string]any) (*domain.CallbackResult, error) {
	args := m.Called(ctx, provider, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CallbackResult), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishTransactionEvent(ctx context.Context, event domain.TransactionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}
