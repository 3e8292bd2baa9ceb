package domain

import (
	"context"
	"encoding/json"
	"time"
)

// TransactionRepository persists transactions. Transition must be atomic per
// transaction: of two racing terminal updates only the first is applied.
type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByTransactionID(ctx context.Context, transactionID string, provider Provider) (*Transaction, error)
	GetByProviderTransactionID(ctx context.Context, providerTransactionID string, provider Provider) (*Transaction, error)
	SaveRequest(ctx context.Context, transactionID string, rawRequest json.RawMessage) error
	// AttachProviderReference sets provider_transaction_id only when it is
	// still null, and stores rawResponse.
	AttachProviderReference(ctx context.Context, transactionID, providerTransactionID string, rawResponse json.RawMessage) error
	SaveResponse(ctx context.Context, transactionID string, rawResponse json.RawMessage) error
	// Transition applies a pending -> terminal move. It returns the stored
	// transaction and whether this call changed it. A conflicting terminal
	// status yields ErrInvalidTransition along with the stored row.
	Transition(ctx context.Context, transactionID string, to Status, message *string, at time.Time) (*Transaction, bool, error)
	List(ctx context.Context, filter TransactionFilter) ([]*Transaction, int, error)
	Summarize(ctx context.Context, filter TransactionFilter) (*TransactionSummary, error)
}
