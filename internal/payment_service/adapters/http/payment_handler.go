package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

// PaymentService is the provider-facing part of app.Dispatcher.
type PaymentService interface {
	RequestPayment(ctx context.Context, provider string, req domain.PaymentRequest) (*domain.PaymentResult, error)
	CheckTransactionStatus(ctx context.Context, provider, transactionID string) (*domain.StatusResult, error)
}

// TransactionLookup resolves the provider of a transaction when the caller
// did not name one.
type TransactionLookup interface {
	GetByTransactionID(ctx context.Context, transactionID string, provider domain.Provider) (*domain.Transaction, error)
}

type PaymentHandler struct {
	payments PaymentService
	lookup   TransactionLookup
	validate *validator.Validate
	logger   *slog.Logger
}

func NewPaymentHandler(payments PaymentService, lookup TransactionLookup, validate *validator.Validate, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		lookup:   lookup,
		validate: validate,
		logger:   logger.With("component", "payment_handler"),
	}
}

// Initiate handles POST /api/mobile-wallet/payment.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var dto PaymentRequestDTO
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		logger.WarnContext(ctx, "Invalid payment request body", "error", err)
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	dto.normalize()
	if err := h.validate.StructCtx(ctx, dto); err != nil {
		writeValidation(w, err)
		return
	}

	result, err := h.payments.RequestPayment(ctx, dto.Provider, dto.toDomain())
	if err != nil {
		logger.WarnContext(ctx, "Payment initiation failed", "provider", dto.Provider, "error", err)
		writeError(w, r, logger, err)
		return
	}
	logger.InfoContext(ctx, "Payment initiated", "transaction_id", result.TransactionID, "status", result.Status)
	writeJSON(w, http.StatusOK, result)
}

// Status handles GET /api/mobile-wallet/payment/{transactionId}/status. The
// provider comes from ?provider= or, failing that, the stored transaction.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	transactionID := chi.URLParam(r, "transactionId")
	provider := r.URL.Query().Get("provider")

	if provider == "" && h.lookup != nil {
		tx, err := h.lookup.GetByTransactionID(ctx, transactionID, "")
		switch {
		case errors.Is(err, domain.ErrTransactionNotFound):
			writeError(w, r, logger, domain.NewInvalidTransactionError("", domain.MessageTransactionNotFound,
				map[string]any{"transaction_id": transactionID}, err))
			return
		case err != nil:
			writeError(w, r, logger, err)
			return
		}
		provider = string(tx.Provider)
	}

	result, err := h.payments.CheckTransactionStatus(ctx, provider, transactionID)
	if err != nil {
		logger.WarnContext(ctx, "Status check failed", "transaction_id", transactionID, "provider", provider, "error", err)
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
