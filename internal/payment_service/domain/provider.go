package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentRequest is the caller's input to RequestPayment. Reference and
// Narration are defaulted when empty.
type PaymentRequest struct {
	PhoneNumber         string
	Amount              decimal.Decimal
	Reference           string
	Narration           string
	TransactionableType string
	TransactionableID   string
}

type PaymentResult struct {
	Success               bool    `json:"success"`
	TransactionID         string  `json:"transaction_id"`
	ProviderTransactionID *string `json:"provider_transaction_id"`
	Status                Status  `json:"status"`
}

type StatusResult struct {
	Success       bool           `json:"success"`
	TransactionID string         `json:"transaction_id"`
	Status        Status         `json:"status"`
	Details       map[string]any `json:"details"`
}

// CallbackResult is returned for every parsed webhook. Unknown transactions
// and malformed payloads produce Success=false with a Message, not an error.
type CallbackResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        Status `json:"status,omitempty"`
	Message       string `json:"message,omitempty"`
}

const (
	MessageInvalidPayload      = "Invalid payload"
	MessageTransactionNotFound = "Transaction not found"
	MessageInvalidSignature    = "Invalid webhook signature"
)

// PaymentProvider talks one operator's wire protocol.
type PaymentProvider interface {
	Name() Provider
	Authenticate(ctx context.Context) (string, error)
	RequestPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	CheckTransactionStatus(ctx context.Context, transactionID string) (*StatusResult, error)
	ProcessCallback(ctx context.Context, payload map[string]any) (*CallbackResult, error)
}
