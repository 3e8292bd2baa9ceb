package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies a mobile-money network operator.
type Provider string

const (
	ProviderMTN    Provider = "mtn"
	ProviderAirtel Provider = "airtel"
	ProviderZamtel Provider = "zamtel"
)

// Providers lists every supported provider in a stable order.
var Providers = []Provider{ProviderMTN, ProviderAirtel, ProviderZamtel}

// ParseProvider is case-insensitive.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProviderMTN, ProviderAirtel, ProviderZamtel:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
	}
}

// Status is the canonical transaction state.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

func (s Status) IsTerminal() bool { return s == StatusPaid || s == StatusFailed }

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(s)); st {
	case StatusPending, StatusPaid, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown transaction status %q", s)
	}
}

// Transaction is a single payment attempt against one provider.
type Transaction struct {
	TransactionID         string          `json:"transaction_id"`
	Provider              Provider        `json:"provider"`
	ProviderTransactionID *string         `json:"provider_transaction_id"`
	PhoneNumber           string          `json:"phone_number"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                Status          `json:"status"`
	Message               *string         `json:"message"`
	RawRequest            json.RawMessage `json:"raw_request,omitempty"`
	RawResponse           json.RawMessage `json:"raw_response,omitempty"`
	Reference             string          `json:"reference"`
	Narration             string          `json:"narration"`
	TransactionableType   *string         `json:"transactionable_type,omitempty"`
	TransactionableID     *string         `json:"transactionable_id,omitempty"`
	PaidAt                *time.Time      `json:"paid_at"`
	FailedAt              *time.Time      `json:"failed_at"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// ApplyStatus moves a pending transaction into a terminal state.
//
// It reports whether anything changed. Re-applying the current status, or
// applying pending, is a no-op. Moving between two different terminal states
// returns ErrInvalidTransition and leaves the transaction untouched.
func (t *Transaction) ApplyStatus(to Status, message *string, at time.Time) (bool, error) {
	if to == StatusPending || to == t.Status {
		return false, nil
	}
	if t.Status.IsTerminal() {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	switch to {
	case StatusPaid:
		t.PaidAt = &at
	case StatusFailed:
		t.FailedAt = &at
	default:
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	t.Status = to
	if message != nil {
		t.Message = message
	}
	t.UpdatedAt = at
	return true, nil
}

// AttachProviderReference records the provider's correlation id unless one
// is already set.
func (t *Transaction) AttachProviderReference(ref string) bool {
	if ref == "" || t.ProviderTransactionID != nil {
		return false
	}
	t.ProviderTransactionID = &ref
	return true
}

// Clone returns a deep copy so stores can hand out values without sharing state.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.ProviderTransactionID = cloneString(t.ProviderTransactionID)
	c.Message = cloneString(t.Message)
	c.TransactionableType = cloneString(t.TransactionableType)
	c.TransactionableID = cloneString(t.TransactionableID)
	c.PaidAt = cloneTime(t.PaidAt)
	c.FailedAt = cloneTime(t.FailedAt)
	if t.RawRequest != nil {
		c.RawRequest = append(json.RawMessage(nil), t.RawRequest...)
	}
	if t.RawResponse != nil {
		c.RawResponse = append(json.RawMessage(nil), t.RawResponse...)
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// MapStatus maps a provider status word onto the canonical vocabulary.
// Anything not listed stays pending.
func MapStatus(raw string, paid, failed []string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range paid {
		if s == p {
			return StatusPaid
		}
	}
	for _, f := range failed {
		if s == f {
			return StatusFailed
		}
	}
	return StatusPending
}

// TransactionFilter narrows List and Summarize queries. Zero values match everything.
type TransactionFilter struct {
	Provider    Provider
	Status      Status
	PhoneNumber string
	From        *time.Time
	To          *time.Time
	Page        int
	PerPage     int
}

const DefaultPerPage = 15

func (f TransactionFilter) Limit() int {
	if f.PerPage <= 0 {
		return DefaultPerPage
	}
	return f.PerPage
}

func (f TransactionFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit()
}

// StatusTotals aggregates one (provider, status) bucket.
type StatusTotals struct {
	Provider Provider        `json:"provider"`
	Status   Status          `json:"status"`
	Count    int             `json:"count"`
	Amount   decimal.Decimal `json:"amount"`
}

type TransactionSummary struct {
	TotalCount  int             `json:"total_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Buckets     []StatusTotals  `json:"buckets"`
}
