package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
)

// ErrorKind is the machine-readable code serialized to API clients.
type ErrorKind string

const (
	KindAuthentication     ErrorKind = "authentication_failed"
	KindPaymentRequest     ErrorKind = "payment_request_failed"
	KindPaymentStatus      ErrorKind = "payment_status_failed"
	KindWebhook            ErrorKind = "webhook_error"
	KindInvalidTransaction ErrorKind = "invalid_transaction"
	KindAPIRequest         ErrorKind = "api_request_failed"
)

// WalletError is the error type surfaced by provider adapters.
type WalletError struct {
	Kind       ErrorKind
	Message    string
	Provider   Provider
	Details    any
	HTTPStatus int
	Err        error
}

func (e *WalletError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Provider != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Provider)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *WalletError) Unwrap() error { return e.Err }

func newWalletError(kind ErrorKind, status int, provider Provider, message string, details any, cause error) *WalletError {
	return &WalletError{Kind: kind, Message: message, Provider: provider, Details: details, HTTPStatus: status, Err: cause}
}

func NewAuthenticationError(provider Provider, message string, details any, cause error) *WalletError {
	if message == "" {
		message = "Authentication failed"
	}
	return newWalletError(KindAuthentication, http.StatusUnauthorized, provider, message, details, cause)
}

func NewPaymentRequestError(provider Provider, message string, details any, cause error) *WalletError {
	if message == "" {
		message = "Payment request failed"
	}
	return newWalletError(KindPaymentRequest, http.StatusBadRequest, provider, message, details, cause)
}

func NewPaymentStatusError(provider Provider, message string, details any, cause error) *WalletError {
	if message == "" {
		message = "Payment status check failed"
	}
	return newWalletError(KindPaymentStatus, http.StatusBadRequest, provider, message, details, cause)
}

func NewWebhookError(provider Provider, message string, details any, cause error) *WalletError {
	if message == "" {
		message = "Webhook processing failed"
	}
	status := http.StatusBadRequest
	if errors.Is(cause, ErrInvalidSignature) {
		status = http.StatusForbidden
	}
	return newWalletError(KindWebhook, status, provider, message, details, cause)
}

func NewInvalidTransactionError(provider Provider, message string, details any, cause error) *WalletError {
	if message == "" {
		message = "Invalid transaction"
	}
	status := http.StatusBadRequest
	if errors.Is(cause, ErrTransactionNotFound) {
		status = http.StatusNotFound
	}
	return newWalletError(KindInvalidTransaction, status, provider, message, details, cause)
}

func NewAPIRequestError(provider Provider, message string, details any, cause error) *WalletError {
	if message == "" {
		message = "API request failed"
	}
	return newWalletError(KindAPIRequest, http.StatusBadGateway, provider, message, details, cause)
}

// ErrorBody is the "error" member of the failure envelope.
type ErrorBody struct {
	Code     ErrorKind `json:"code"`
	Message  string    `json:"message"`
	Provider Provider  `json:"provider,omitempty"`
	Details  any       `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// ToEnvelope renders err as {success:false,error:{...}} with the HTTP status
// the boundary should use. Errors outside the taxonomy become a 500 without
// leaking their text.
func ToEnvelope(err error) (int, ErrorEnvelope) {
	var we *WalletError
	if errors.As(err, &we) {
		return we.HTTPStatus, ErrorEnvelope{Error: ErrorBody{Code: we.Kind, Message: we.Message, Provider: we.Provider, Details: we.Details}}
	}
	return http.StatusInternalServerError, ErrorEnvelope{Error: ErrorBody{Code: "internal_error", Message: "Internal server error"}}
}
