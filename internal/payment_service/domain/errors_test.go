package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWalletError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewPaymentRequestError(ProviderAirtel, "", map[string]any{"status": 500}, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindPaymentRequest, err.Kind)
	assert.Contains(t, err.Error(), "payment_request_failed")
	assert.Contains(t, err.Error(), "[airtel]")
}

func TestInvalidTransactionError_NotFoundMapsTo404(t *testing.T) {
	err := NewInvalidTransactionError(ProviderMTN, "Transaction not found", nil, ErrTransactionNotFound)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)

	err = NewInvalidTransactionError(ProviderMTN, "no reference", nil, nil)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
}

func TestToEnvelope(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", NewAuthenticationError(ProviderZamtel, "bad credentials", nil, nil))

	status, env := ToEnvelope(wrapped)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
	assert.Equal(t, KindAuthentication, env.Error.Code)
	assert.Equal(t, "bad credentials", env.Error.Message)
	assert.Equal(t, ProviderZamtel, env.Error.Provider)

	status, env = ToEnvelope(errors.New("pq: relation does not exist"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", env.Error.Message)
}

func TestWebhookError_InvalidSignatureIs403(t *testing.T) {
	err := NewWebhookError(ProviderMTN, MessageInvalidSignature, nil, ErrInvalidSignature)
	assert.Equal(t, http.StatusForbidden, err.HTTPStatus)
}
