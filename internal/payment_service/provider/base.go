package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/app"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/tokencache"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/httpclient"
)

const defaultNarration = "Mobile wallet payment"

// Config holds one provider's endpoint and credentials plus the shared
// payment settings.
type Config struct {
	BaseURL         string
	APIKey          string
	APISecret       string
	Environment     string
	SubscriptionKey string
	Currency        string
	CountryCode     string
	DialingCode     string
	CallbackURL     string
}

// Deps are the collaborators shared by every adapter. HTTP, Tokens, Events,
// Now and NewID are optional.
type Deps struct {
	HTTP   *httpclient.Client
	Repo   domain.TransactionRepository
	Tokens *tokencache.Cache
	Events domain.EventPublisher
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

type vocabulary struct {
	paid   []string
	failed []string
}

func (v vocabulary) status(raw string) domain.Status {
	return domain.MapStatus(raw, v.paid, v.failed)
}

var standardVocabulary = vocabulary{
	paid:   []string{"success", "successful", "completed"},
	failed: []string{"failed", "cancelled", "rejected"},
}

type base struct {
	name   domain.Provider
	cfg    Config
	http   *httpclient.Client
	repo   domain.TransactionRepository
	tokens *tokencache.Cache
	events domain.EventPublisher
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func newBase(name domain.Provider, cfg Config, deps Deps) base {
	if cfg.Currency == "" {
		cfg.Currency = "ZMW"
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "ZM"
	}
	if cfg.DialingCode == "" {
		cfg.DialingCode = "260"
	}
	b := base{
		name:   name,
		cfg:    cfg,
		http:   deps.HTTP,
		repo:   deps.Repo,
		tokens: deps.Tokens,
		events: deps.Events,
		logger: deps.Logger.With("provider", string(name)),
		now:    deps.Now,
		newID:  deps.NewID,
	}
	if b.http == nil {
		b.http = httpclient.New(string(name), httpclient.DefaultConfig(), deps.Logger, httpclient.WithRetryHook(RetryMetricsHook(name)))
	}
	if b.events == nil {
		b.events = domain.NopEventPublisher{}
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	if b.newID == nil {
		b.newID = uuid.NewString
	}
	return b
}

func (b *base) Name() domain.Provider { return b.name }

// RetryMetricsHook counts retries per provider.
func RetryMetricsHook(name domain.Provider) httpclient.RetryHook {
	return func(_ int, reason string) {
		app.HTTPRetriesCounter.WithLabelValues(string(name), reason).Inc()
	}
}

func (b *base) observe(operation string) *prometheus.Timer {
	return prometheus.NewTimer(app.ProviderRequestDurationHist.WithLabelValues(string(b.name), operation))
}

// errorDetails exposes the provider's response body (decoded when it is JSON)
// for the error envelope.
func errorDetails(err error) any {
	var apiErr *httpclient.APIRequestError
	if !errors.As(err, &apiErr) {
		return nil
	}
	if apiErr.StatusCode == 0 {
		return map[string]any{"attempts": apiErr.Attempts}
	}
	resp := &httpclient.Response{Body: apiErr.Body}
	if m := resp.Map(); m != nil {
		return m
	}
	return map[string]any{"status": apiErr.StatusCode, "body": string(apiErr.Body)}
}

// failureMessage is the response body for HTTP failures, otherwise the
// error text.
func failureMessage(err error) string {
	var apiErr *httpclient.APIRequestError
	if errors.As(err, &apiErr) && len(apiErr.Body) > 0 {
		return string(apiErr.Body)
	}
	return err.Error()
}

// fetchToken runs a client-credentials request and extracts access_token.
func (b *base) fetchToken(ctx context.Context, req httpclient.Request) (string, error) {
	timer := b.observe("authenticate")
	defer timer.ObserveDuration()

	resp, err := b.http.Execute(ctx, req)
	if err != nil {
		b.logger.ErrorContext(ctx, "Authentication failed", "status", httpclient.StatusCode(err), "error", err)
		return "", domain.NewAuthenticationError(b.name, "", errorDetails(err), err)
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := resp.Decode(&body); err != nil || body.AccessToken == "" {
		b.logger.ErrorContext(ctx, "Authentication response had no access token", "status", resp.StatusCode)
		return "", domain.NewAuthenticationError(b.name, "Authentication response did not contain an access token", resp.Map(), err)
	}
	return body.AccessToken, nil
}

func (b *base) accessToken(ctx context.Context, auth tokencache.Authenticator) (string, error) {
	if b.tokens == nil {
		return auth.Authenticate(ctx)
	}
	return b.tokens.GetToken(ctx, string(b.name), tokencache.DefaultKey, auth)
}

// callWithToken sends a bearer-authenticated request. A 401 evicts the cached
// token and the call is repeated once with a fresh one.
func (b *base) callWithToken(ctx context.Context, auth tokencache.Authenticator, build func(token string) httpclient.Request) (*httpclient.Response, error) {
	token, err := b.accessToken(ctx, auth)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Execute(ctx, build(token))
	if b.tokens == nil || httpclient.StatusCode(err) != http.StatusUnauthorized {
		return resp, err
	}

	b.logger.WarnContext(ctx, "Provider rejected access token; re-authenticating")
	if ferr := b.tokens.Forget(ctx, string(b.name), tokencache.DefaultKey); ferr != nil {
		b.logger.WarnContext(ctx, "Failed to evict access token", "error", ferr)
	}
	if token, err = b.accessToken(ctx, auth); err != nil {
		return nil, err
	}
	return b.http.Execute(ctx, build(token))
}

func isAuthError(err error) bool {
	var we *domain.WalletError
	return errors.As(err, &we) && we.Kind == domain.KindAuthentication
}

// unreachable reports an outbound failure that never produced a response:
// transport errors, timeouts and an open circuit breaker.
func unreachable(err error) bool {
	var apiErr *httpclient.APIRequestError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 0
}

func (b *base) createTransaction(ctx context.Context, req domain.PaymentRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.NewInvalidTransactionError(b.name, "Amount must be greater than zero", map[string]any{"amount": req.Amount.String()}, nil)
	}
	amount := req.Amount.Round(2)
	now := b.now()
	tx := &domain.Transaction{
		TransactionID: b.newID(),
		Provider:      b.name,
		PhoneNumber:   domain.NormalizePhoneNumber(req.PhoneNumber, b.cfg.DialingCode),
		Amount:        amount,
		Currency:      b.cfg.Currency,
		Status:        domain.StatusPending,
		Reference:     req.Reference,
		Narration:     req.Narration,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if tx.Reference == "" {
		tx.Reference = fmt.Sprintf("Payment of %s %s", amount.StringFixed(2), b.cfg.Currency)
	}
	if tx.Narration == "" {
		tx.Narration = defaultNarration
	}
	if req.TransactionableType != "" && req.TransactionableID != "" {
		tx.TransactionableType = &req.TransactionableType
		tx.TransactionableID = &req.TransactionableID
	}
	if err := b.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("creating %s transaction: %w", b.name, err)
	}
	app.TransactionsCounter.WithLabelValues(string(b.name), string(domain.StatusPending)).Inc()
	b.logger.InfoContext(ctx, "Transaction created", "transaction_id", tx.TransactionID, "amount", amount.StringFixed(2))
	return tx, nil
}

// transition applies a terminal status. A conflicting status for a
// transaction that is already terminal is logged and ignored.
func (b *base) transition(ctx context.Context, tx *domain.Transaction, status domain.Status, reason, source string) (*domain.Transaction, error) {
	if !status.IsTerminal() {
		return tx, nil
	}
	var message *string
	if status == domain.StatusFailed {
		if reason == "" {
			reason = "Payment failed"
		}
		message = &reason
	}

	updated, changed, err := b.repo.Transition(ctx, tx.TransactionID, status, message, b.now())
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		b.logger.WarnContext(ctx, "Ignoring status for terminal transaction", "transaction_id", tx.TransactionID, "current", updated.Status, "received", status, "source", source)
		return updated, nil
	case err != nil:
		return nil, fmt.Errorf("updating transaction %s: %w", tx.TransactionID, err)
	}
	if changed {
		app.TransactionsCounter.WithLabelValues(string(b.name), string(status)).Inc()
		b.logger.InfoContext(ctx, "Transaction status changed", "transaction_id", tx.TransactionID, "status", status, "source", source)
		b.publish(ctx, updated, source)
	}
	return updated, nil
}

func (b *base) publish(ctx context.Context, tx *domain.Transaction, source string) {
	if err := b.events.PublishTransactionEvent(ctx, domain.NewTransactionEvent(tx, source, b.now())); err != nil {
		b.logger.WarnContext(ctx, "Failed to publish transaction event", "transaction_id", tx.TransactionID, "error", err)
	}
}

// settle applies status and stores raw as the latest provider response.
func (b *base) settle(ctx context.Context, tx *domain.Transaction, status domain.Status, reason string, raw json.RawMessage, source string) (*domain.Transaction, error) {
	updated, err := b.transition(ctx, tx, status, reason, source)
	if err != nil {
		return nil, err
	}
	if err := b.repo.SaveResponse(ctx, tx.TransactionID, raw); err != nil {
		return nil, fmt.Errorf("saving response for %s: %w", tx.TransactionID, err)
	}
	updated.RawResponse = raw
	return updated, nil
}

// failPayment marks the transaction failed with message and returns the
// error to surface. The transition is attempted before returning so the
// failure is recorded even when the caller drops the error.
func (b *base) failPayment(ctx context.Context, tx *domain.Transaction, message string, cause error) error {
	if _, err := b.transition(ctx, tx, domain.StatusFailed, message, "request"); err != nil {
		b.logger.ErrorContext(ctx, "Failed to mark transaction failed", "transaction_id", tx.TransactionID, "error", err)
	}
	if isAuthError(cause) {
		return cause
	}
	b.logger.ErrorContext(ctx, "Payment request failed", "transaction_id", tx.TransactionID, "status", httpclient.StatusCode(cause), "error", cause)
	if unreachable(cause) {
		return domain.NewAPIRequestError(b.name, "", errorDetails(cause), cause)
	}
	return domain.NewPaymentRequestError(b.name, "", errorDetails(cause), cause)
}

// outbound is a provider payment request: the body recorded as raw_request
// and a builder for the HTTP request given a bearer token.
type outbound struct {
	payload any
	request func(token string) httpclient.Request
}

type accepted struct {
	providerRef string
	rawResponse json.RawMessage
	status      domain.Status
}

func (b *base) requestPayment(
	ctx context.Context,
	req domain.PaymentRequest,
	auth tokencache.Authenticator,
	build func(tx *domain.Transaction) outbound,
	accept func(resp *httpclient.Response) accepted,
) (*domain.PaymentResult, error) {
	timer := b.observe("request_payment")
	defer timer.ObserveDuration()

	tx, err := b.createTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	out := build(tx)
	rawRequest, err := json.Marshal(out.payload)
	if err != nil {
		return nil, b.failPayment(ctx, tx, "could not encode request", err)
	}
	if err := b.repo.SaveRequest(ctx, tx.TransactionID, rawRequest); err != nil {
		return nil, fmt.Errorf("saving request for %s: %w", tx.TransactionID, err)
	}

	resp, err := b.callWithToken(ctx, auth, out.request)
	if err != nil {
		return nil, b.failPayment(ctx, tx, failureMessage(err), err)
	}

	acc := accept(resp)
	if err := b.repo.AttachProviderReference(ctx, tx.TransactionID, acc.providerRef, acc.rawResponse); err != nil {
		return nil, fmt.Errorf("recording provider reference for %s: %w", tx.TransactionID, err)
	}

	result := &domain.PaymentResult{Success: true, TransactionID: tx.TransactionID, Status: domain.StatusPending}
	if acc.providerRef != "" {
		ref := acc.providerRef
		result.ProviderTransactionID = &ref
	}
	if acc.status.IsTerminal() {
		updated, err := b.transition(ctx, tx, acc.status, "", "request")
		if err != nil {
			return nil, err
		}
		result.Status = updated.Status
	}
	b.logger.InfoContext(ctx, "Payment requested", "transaction_id", tx.TransactionID, "provider_transaction_id", acc.providerRef, "status", result.Status)
	return result, nil
}

// pollStatus queries the provider for tx's provider reference and settles the
// mapped status.
func (b *base) pollStatus(
	ctx context.Context,
	transactionID string,
	auth tokencache.Authenticator,
	build func(providerRef, token string) httpclient.Request,
	parse func(body map[string]any) (status, reason string),
	vocab vocabulary,
) (*domain.StatusResult, error) {
	timer := b.observe("check_status")
	defer timer.ObserveDuration()

	tx, err := b.repo.GetByTransactionID(ctx, transactionID, b.name)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return nil, domain.NewInvalidTransactionError(b.name, domain.MessageTransactionNotFound, map[string]any{"transaction_id": transactionID}, err)
	}
	if err != nil {
		return nil, err
	}
	if tx.ProviderTransactionID == nil {
		return nil, domain.NewInvalidTransactionError(b.name, "Transaction has no provider reference", map[string]any{"transaction_id": transactionID}, nil)
	}
	ref := *tx.ProviderTransactionID

	resp, err := b.callWithToken(ctx, auth, func(token string) httpclient.Request { return build(ref, token) })
	if err != nil {
		if isAuthError(err) {
			return nil, err
		}
		b.logger.ErrorContext(ctx, "Status check failed", "transaction_id", transactionID, "status", httpclient.StatusCode(err), "error", err)
		if unreachable(err) {
			return nil, domain.NewAPIRequestError(b.name, "", errorDetails(err), err)
		}
		return nil, domain.NewPaymentStatusError(b.name, "", errorDetails(err), err)
	}
	body := resp.Map()
	if body == nil {
		return nil, domain.NewPaymentStatusError(b.name, "Provider returned an unreadable status response", map[string]any{"body": string(resp.Body)}, nil)
	}

	raw, reason := parse(body)
	updated, err := b.settle(ctx, tx, vocab.status(raw), reason, resp.Body, "poll")
	if err != nil {
		return nil, err
	}
	return &domain.StatusResult{Success: true, TransactionID: tx.TransactionID, Status: updated.Status, Details: body}, nil
}

// handleCallback settles a webhook already reduced to the provider's
// reference and status word. Missing fields and unknown references are
// reported in the result rather than as errors.
func (b *base) handleCallback(ctx context.Context, payload map[string]any, providerRef, rawStatus, reason string, vocab vocabulary) (*domain.CallbackResult, error) {
	if providerRef == "" || rawStatus == "" {
		b.logger.WarnContext(ctx, "Callback missing reference or status")
		return &domain.CallbackResult{Success: false, Message: domain.MessageInvalidPayload}, nil
	}

	tx, err := b.repo.GetByProviderTransactionID(ctx, providerRef, b.name)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		b.logger.WarnContext(ctx, "Callback for unknown transaction", "provider_transaction_id", providerRef)
		return &domain.CallbackResult{Success: false, Message: domain.MessageTransactionNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewWebhookError(b.name, "", nil, err)
	}
	updated, err := b.settle(ctx, tx, vocab.status(rawStatus), reason, raw, "callback")
	if err != nil {
		return nil, err
	}
	return &domain.CallbackResult{Success: true, TransactionID: updated.TransactionID, Status: updated.Status}, nil
}
