package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/security"
)

const (
	outcomeProcessed      = "processed"
	outcomeIgnored        = "ignored"
	outcomeInvalidPayload = "invalid_payload"
	outcomeRejected       = "rejected"
	outcomeError          = "error"
)

// CallbackDispatcher is the part of Dispatcher the webhook path needs.
type CallbackDispatcher interface {
	ProcessCallback(ctx context.Context, provider string, payload map[string]any) (*domain.CallbackResult, error)
}

// WebhookService authenticates provider callbacks before handing them to the
// provider adapter.
type WebhookService struct {
	dispatcher CallbackDispatcher
	verifiers  map[domain.Provider]security.SignatureVerifier
	verify     bool
	logger     *slog.Logger
}

// NewWebhookService builds the service. With verify=false signatures are not
// checked at all.
func NewWebhookService(dispatcher CallbackDispatcher, verifiers map[domain.Provider]security.SignatureVerifier, verify bool, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		dispatcher: dispatcher,
		verifiers:  verifiers,
		verify:     verify,
		logger:     logger.With("component", "webhook_service"),
	}
}

// Handle verifies body against its signature headers, decodes it and settles
// the referenced transaction. A failed verification returns a 403
// WebhookError and nothing is read or written.
func (s *WebhookService) Handle(ctx context.Context, providerName string, header http.Header, body []byte) (*domain.CallbackResult, error) {
	provider, err := domain.ParseProvider(providerName)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("provider", string(provider))

	if s.verify {
		verifier, ok := s.verifiers[provider]
		if !ok || !verifier.Verify(header, body) {
			WebhooksCounter.WithLabelValues(string(provider), outcomeRejected).Inc()
			logger.WarnContext(ctx, "Rejected webhook with invalid signature", "verifier_configured", ok)
			return nil, domain.NewWebhookError(provider, domain.MessageInvalidSignature, nil, domain.ErrInvalidSignature)
		}
	}

	payload, ok := decodePayload(body)
	if !ok {
		WebhooksCounter.WithLabelValues(string(provider), outcomeInvalidPayload).Inc()
		logger.WarnContext(ctx, "Webhook body is not a JSON object", "size", len(body))
		return &domain.CallbackResult{Success: false, Message: domain.MessageInvalidPayload}, nil
	}

	result, err := s.dispatcher.ProcessCallback(ctx, string(provider), payload)
	if err != nil {
		WebhooksCounter.WithLabelValues(string(provider), outcomeError).Inc()
		logger.ErrorContext(ctx, "Webhook processing failed", "error", err)
		return nil, err
	}

	outcome := outcomeProcessed
	if !result.Success {
		outcome = outcomeIgnored
	}
	WebhooksCounter.WithLabelValues(string(provider), outcome).Inc()
	logger.InfoContext(ctx, "Webhook handled", "outcome", outcome, "transaction_id", result.TransactionID, "status", result.Status)
	return result, nil
}

func decodePayload(body []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return nil, false
	}
	return payload, true
}
