package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

// WebhookProcessor verifies and applies a provider callback. Implemented by
// app.WebhookService.
type WebhookProcessor interface {
	Handle(ctx context.Context, provider string, header http.Header, body []byte) (*domain.CallbackResult, error)
}

type WebhookHandler struct {
	processor WebhookProcessor
	logger    *slog.Logger
}

func NewWebhookHandler(processor WebhookProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    logger.With("component", "webhook_handler"),
	}
}

// HandleWebhook receives POST /api/mobile-wallet/webhook/{provider}.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "provider", provider)

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read webhook request body", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large")
		} else {
			writeMessage(w, http.StatusBadRequest, "Error reading request body")
		}
		return
	}

	logger.InfoContext(ctx, "Received provider webhook", "remote_addr", r.RemoteAddr, "payload_size", len(body))

	result, err := h.processor.Handle(ctx, provider, r.Header, body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, domain.ErrUnsupportedProvider):
		writeMessage(w, http.StatusNotFound, "Unsupported provider")
	case errors.Is(err, domain.ErrInvalidSignature):
		writeMessage(w, http.StatusForbidden, domain.MessageInvalidSignature)
	default:
		writeError(w, r, logger, err)
	}
}
