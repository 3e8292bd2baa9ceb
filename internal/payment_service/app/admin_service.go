package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

const reportPageSize = 500

// TransactionPage is one page of an admin listing.
type TransactionPage struct {
	Data     []*domain.Transaction `json:"data"`
	Total    int                   `json:"total"`
	Page     int                   `json:"current_page"`
	PerPage  int                   `json:"per_page"`
	LastPage int                   `json:"last_page"`
}

// Report aggregates transactions created within [From, To].
type Report struct {
	From            time.Time             `json:"start_date"`
	To              time.Time             `json:"end_date"`
	Total           int                   `json:"total"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	PaidAmount      decimal.Decimal       `json:"paid_amount"`
	TotalSuccessful int                   `json:"total_successful"`
	TotalFailed     int                   `json:"total_failed"`
	TotalPending    int                   `json:"total_pending"`
	Buckets         []domain.StatusTotals `json:"buckets"`
	Transactions    []*domain.Transaction `json:"transactions"`
}

type AdminService struct {
	repo   domain.TransactionRepository
	events domain.EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

func NewAdminService(repo domain.TransactionRepository, events domain.EventPublisher, logger *slog.Logger) *AdminService {
	if events == nil {
		events = domain.NopEventPublisher{}
	}
	return &AdminService{
		repo:   repo,
		events: events,
		logger: logger.With("component", "admin_service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *AdminService) ListTransactions(ctx context.Context, f domain.TransactionFilter) (*TransactionPage, error) {
	txs, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	perPage := f.Limit()
	page := f.Page
	if page < 1 {
		page = 1
	}
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	return &TransactionPage{Data: txs, Total: total, Page: page, PerPage: perPage, LastPage: lastPage}, nil
}

func (s *AdminService) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	tx, err := s.repo.GetByTransactionID(ctx, transactionID, "")
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return nil, domain.NewInvalidTransactionError("", domain.MessageTransactionNotFound, map[string]any{"transaction_id": transactionID}, err)
	}
	return tx, err
}

// UpdateStatus applies a manual status change. Terminal transactions keep
// their state: asking for a different status returns a 409 error, asking for
// the same one is a no-op.
func (s *AdminService) UpdateStatus(ctx context.Context, transactionID string, status domain.Status, message *string) (*domain.Transaction, error) {
	current, err := s.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if status == domain.StatusPending {
		if current.Status.IsTerminal() {
			return nil, s.conflict(current, status)
		}
		return current, nil
	}

	updated, changed, err := s.repo.Transition(ctx, transactionID, status, message, s.now())
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return nil, s.conflict(updated, status)
	case err != nil:
		return nil, fmt.Errorf("updating transaction %s: %w", transactionID, err)
	}
	if changed {
		TransactionsCounter.WithLabelValues(string(updated.Provider), string(status)).Inc()
		s.logger.InfoContext(ctx, "Transaction status set manually", "transaction_id", transactionID, "status", status)
		if err := s.events.PublishTransactionEvent(ctx, domain.NewTransactionEvent(updated, "admin", s.now())); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish transaction event", "transaction_id", transactionID, "error", err)
		}
	}
	return updated, nil
}

func (s *AdminService) conflict(tx *domain.Transaction, requested domain.Status) error {
	we := domain.NewInvalidTransactionError(tx.Provider,
		fmt.Sprintf("Transaction is already %s", tx.Status),
		map[string]any{"transaction_id": tx.TransactionID, "status": tx.Status, "requested": requested},
		domain.ErrInvalidTransition)
	we.HTTPStatus = http.StatusConflict
	return we
}

// Report totals every transaction matching f. f.From and f.To are required.
func (s *AdminService) Report(ctx context.Context, f domain.TransactionFilter) (*Report, error) {
	if f.From == nil || f.To == nil {
		return nil, domain.NewInvalidTransactionError("", "start_date and end_date are required", nil, nil)
	}
	if f.To.Before(*f.From) {
		return nil, domain.NewInvalidTransactionError("", "end_date must not be before start_date", nil, nil)
	}

	summary, err := s.repo.Summarize(ctx, f)
	if err != nil {
		return nil, err
	}
	report := &Report{
		From:         *f.From,
		To:           *f.To,
		Total:        summary.TotalCount,
		TotalAmount:  summary.TotalAmount,
		PaidAmount:   summary.PaidAmount,
		Buckets:      summary.Buckets,
		Transactions: []*domain.Transaction{},
	}
	for _, b := range summary.Buckets {
		switch b.Status {
		case domain.StatusPaid:
			report.TotalSuccessful += b.Count
		case domain.StatusFailed:
			report.TotalFailed += b.Count
		case domain.StatusPending:
			report.TotalPending += b.Count
		}
	}

	f.PerPage = reportPageSize
	for f.Page = 1; ; f.Page++ {
		txs, total, err := s.repo.List(ctx, f)
		if err != nil {
			return nil, err
		}
		report.Transactions = append(report.Transactions, txs...)
		if len(txs) == 0 || len(report.Transactions) >= total {
			break
		}
	}
	return report, nil
}
