// Package memory is a process-local TransactionRepository for development
// and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

type TransactionRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.Transaction
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{byID: make(map[string]*domain.Transaction)}
}

func (r *TransactionRepository) Create(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[tx.TransactionID]; exists {
		return fmt.Errorf("transaction %s already exists", tx.TransactionID)
	}
	r.byID[tx.TransactionID] = tx.Clone()
	return nil
}

func (r *TransactionRepository) GetByTransactionID(_ context.Context, transactionID string, provider domain.Provider) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[transactionID]
	if !ok || (provider != "" && tx.Provider != provider) {
		return nil, domain.ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (r *TransactionRepository) GetByProviderTransactionID(_ context.Context, providerTransactionID string, provider domain.Provider) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.byID {
		if tx.Provider == provider && tx.ProviderTransactionID != nil && *tx.ProviderTransactionID == providerTransactionID {
			return tx.Clone(), nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *TransactionRepository) update(transactionID string, fn func(tx *domain.Transaction)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[transactionID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	fn(tx)
	tx.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *TransactionRepository) SaveRequest(_ context.Context, transactionID string, rawRequest json.RawMessage) error {
	return r.update(transactionID, func(tx *domain.Transaction) {
		tx.RawRequest = append(json.RawMessage(nil), rawRequest...)
	})
}

func (r *TransactionRepository) AttachProviderReference(_ context.Context, transactionID, providerTransactionID string, rawResponse json.RawMessage) error {
	return r.update(transactionID, func(tx *domain.Transaction) {
		tx.AttachProviderReference(providerTransactionID)
		tx.RawResponse = append(json.RawMessage(nil), rawResponse...)
	})
}

func (r *TransactionRepository) SaveResponse(_ context.Context, transactionID string, rawResponse json.RawMessage) error {
	return r.update(transactionID, func(tx *domain.Transaction) {
		tx.RawResponse = append(json.RawMessage(nil), rawResponse...)
	})
}

func (r *TransactionRepository) Transition(_ context.Context, transactionID string, to domain.Status, message *string, at time.Time) (*domain.Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[transactionID]
	if !ok {
		return nil, false, domain.ErrTransactionNotFound
	}
	changed, err := tx.ApplyStatus(to, message, at)
	return tx.Clone(), changed, err
}

func matches(tx *domain.Transaction, f domain.TransactionFilter) bool {
	if f.Provider != "" && tx.Provider != f.Provider {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.PhoneNumber != "" && !strings.Contains(tx.PhoneNumber, f.PhoneNumber) {
		return false
	}
	if f.From != nil && tx.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func (r *TransactionRepository) filtered(f domain.TransactionFilter) []*domain.Transaction {
	var out []*domain.Transaction
	for _, tx := range r.byID {
		if matches(tx, f) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TransactionID < out[j].TransactionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// List returns newest first.
func (r *TransactionRepository) List(_ context.Context, f domain.TransactionFilter) ([]*domain.Transaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.filtered(f)
	total := len(all)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit()
	if end > total {
		end = total
	}
	page := make([]*domain.Transaction, 0, end-start)
	for _, tx := range all[start:end] {
		page = append(page, tx.Clone())
	}
	return page, total, nil
}

func (r *TransactionRepository) Summarize(_ context.Context, f domain.TransactionFilter) (*domain.TransactionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type bucketKey struct {
		provider domain.Provider
		status   domain.Status
	}
	buckets := map[bucketKey]*domain.StatusTotals{}
	summary := &domain.TransactionSummary{TotalAmount: decimal.Zero, PaidAmount: decimal.Zero}
	for _, tx := range r.filtered(f) {
		k := bucketKey{tx.Provider, tx.Status}
		b, ok := buckets[k]
		if !ok {
			b = &domain.StatusTotals{Provider: tx.Provider, Status: tx.Status, Amount: decimal.Zero}
			buckets[k] = b
		}
		b.Count++
		b.Amount = b.Amount.Add(tx.Amount)
		summary.TotalCount++
		summary.TotalAmount = summary.TotalAmount.Add(tx.Amount)
		if tx.Status == domain.StatusPaid {
			summary.PaidAmount = summary.PaidAmount.Add(tx.Amount)
		}
	}
	for _, b := range buckets {
		summary.Buckets = append(summary.Buckets, *b)
	}
	sort.Slice(summary.Buckets, func(i, j int) bool {
		if summary.Buckets[i].Provider == summary.Buckets[j].Provider {
			return summary.Buckets[i].Status < summary.Buckets[j].Status
		}
		return summary.Buckets[i].Provider < summary.Buckets[j].Provider
	})
	return summary, nil
}
