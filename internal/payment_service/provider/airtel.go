package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/httpclient"
)

// AirtelProvider talks to the Airtel Money merchant API.
type AirtelProvider struct {
	base
}

func NewAirtelProvider(cfg Config, deps Deps) *AirtelProvider {
	return &AirtelProvider{base: newBase(domain.ProviderAirtel, cfg, deps)}
}

func (p *AirtelProvider) url(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *AirtelProvider) header() http.Header {
	h := http.Header{}
	h.Set("X-Country", p.cfg.CountryCode)
	h.Set("X-Currency", p.cfg.Currency)
	return h
}

func (p *AirtelProvider) Authenticate(ctx context.Context) (string, error) {
	return p.fetchToken(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    p.url("/auth/oauth2/token"),
		JSON: map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     p.cfg.APIKey,
			"client_secret": p.cfg.APISecret,
		},
		Username: p.cfg.APIKey,
		Password: p.cfg.APISecret,
	})
}

func (p *AirtelProvider) RequestPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	sentID := p.newID()

	build := func(tx *domain.Transaction) outbound {
		payload := map[string]any{
			"reference": tx.TransactionID,
			"subscriber": map[string]any{
				"country":  p.cfg.CountryCode,
				"currency": tx.Currency,
				"msisdn":   tx.PhoneNumber,
			},
			"transaction": map[string]any{
				"amount":   json.Number(tx.Amount.StringFixed(2)),
				"currency": tx.Currency,
				"id":       sentID,
				"country":  p.cfg.CountryCode,
			},
		}
		return outbound{
			payload: payload,
			request: func(token string) httpclient.Request {
				return httpclient.Request{
					Method:      http.MethodPost,
					URL:         p.url("/merchant/v1/payments/"),
					Header:      p.header(),
					JSON:        payload,
					BearerToken: token,
				}
			},
		}
	}

	accept := func(resp *httpclient.Response) accepted {
		body := resp.Map()
		acc := accepted{
			providerRef: firstNonEmpty(stringAt(body, "transaction", "id"), stringAt(body, "data", "transaction", "id"), sentID),
			rawResponse: resp.Body,
			status:      domain.StatusPending,
		}
		if strings.EqualFold(stringAt(body, "status"), "success") {
			acc.status = domain.StatusPaid
		}
		if body == nil {
			acc.rawResponse = nil
		}
		return acc
	}

	return p.requestPayment(ctx, req, p, build, accept)
}

func (p *AirtelProvider) CheckTransactionStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	build := func(ref, token string) httpclient.Request {
		return httpclient.Request{
			Method:      http.MethodGet,
			URL:         p.url("/standard/v1/payments/" + ref),
			Header:      p.header(),
			BearerToken: token,
		}
	}
	parse := func(body map[string]any) (string, string) {
		status := firstNonEmpty(stringAt(body, "status"), stringAt(body, "data", "transaction", "status"))
		reason := firstNonEmpty(reasonFrom(body, "reason"), stringAt(body, "data", "transaction", "message"))
		return status, reason
	}
	return p.pollStatus(ctx, transactionID, p, build, parse, standardVocabulary)
}

func (p *AirtelProvider) ProcessCallback(ctx context.Context, payload map[string]any) (*domain.CallbackResult, error) {
	return p.handleCallback(ctx, payload,
		stringAt(payload, "transaction", "id"),
		firstNonEmpty(stringAt(payload, "status"), stringAt(payload, "transaction", "status")),
		firstNonEmpty(reasonFrom(payload, "reason"), stringAt(payload, "transaction", "message")),
		standardVocabulary,
	)
}
