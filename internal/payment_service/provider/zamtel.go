package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/httpclient"
)

// ZamtelProvider talks to the Zamtel Kwacha payments API.
type ZamtelProvider struct {
	base
}

func NewZamtelProvider(cfg Config, deps Deps) *ZamtelProvider {
	return &ZamtelProvider{base: newBase(domain.ProviderZamtel, cfg, deps)}
}

func (p *ZamtelProvider) url(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *ZamtelProvider) Authenticate(ctx context.Context) (string, error) {
	return p.fetchToken(ctx, httpclient.Request{
		Method:   http.MethodPost,
		URL:      p.url("/auth/token"),
		JSON:     map[string]string{"grant_type": "client_credentials"},
		Username: p.cfg.APIKey,
		Password: p.cfg.APISecret,
	})
}

func (p *ZamtelProvider) RequestPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	build := func(tx *domain.Transaction) outbound {
		payload := map[string]any{
			"phone_number": tx.PhoneNumber,
			"amount":       tx.Amount.StringFixed(2),
			"currency":     tx.Currency,
			"reference":    tx.TransactionID,
			"callback_url": p.cfg.CallbackURL,
			"narration":    tx.Narration,
		}
		return outbound{
			payload: payload,
			request: func(token string) httpclient.Request {
				return httpclient.Request{
					Method:      http.MethodPost,
					URL:         p.url("/payments/request"),
					JSON:        payload,
					BearerToken: token,
				}
			},
		}
	}

	accept := func(resp *httpclient.Response) accepted {
		body := resp.Map()
		acc := accepted{providerRef: stringAt(body, "transaction_id"), status: domain.StatusPending}
		if body != nil {
			acc.rawResponse = resp.Body
		}
		return acc
	}

	return p.requestPayment(ctx, req, p, build, accept)
}

func (p *ZamtelProvider) CheckTransactionStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	build := func(ref, token string) httpclient.Request {
		return httpclient.Request{
			Method:      http.MethodGet,
			URL:         p.url("/payments/status/" + ref),
			BearerToken: token,
		}
	}
	parse := func(body map[string]any) (string, string) {
		return stringAt(body, "status"), reasonFrom(body, "reason")
	}
	return p.pollStatus(ctx, transactionID, p, build, parse, standardVocabulary)
}

func (p *ZamtelProvider) ProcessCallback(ctx context.Context, payload map[string]any) (*domain.CallbackResult, error) {
	return p.handleCallback(ctx, payload,
		stringAt(payload, "transaction_id"),
		stringAt(payload, "status"),
		reasonFrom(payload, "reason"),
		standardVocabulary,
	)
}
