package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionEvent is published when a transaction reaches a terminal state.
type TransactionEvent struct {
	TransactionID         string          `json:"transaction_id"`
	Provider              Provider        `json:"provider"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	Status                Status          `json:"status"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Message               *string         `json:"message,omitempty"`
	Source                string          `json:"source"` // request, poll, callback or admin
	OccurredAt            time.Time       `json:"occurred_at"`
}

func NewTransactionEvent(tx *Transaction, source string, at time.Time) TransactionEvent {
	return TransactionEvent{
		TransactionID:         tx.TransactionID,
		Provider:              tx.Provider,
		ProviderTransactionID: tx.ProviderTransactionID,
		Status:                tx.Status,
		Amount:                tx.Amount,
		Currency:              tx.Currency,
		Message:               tx.Message,
		Source:                source,
		OccurredAt:            at,
	}
}

type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, evt TransactionEvent) error
}

// NopEventPublisher drops events.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishTransactionEvent(context.Context, TransactionEvent) error { return nil }
