package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/httpclient"
)

var (
	mtnPollVocabulary = vocabulary{
		paid:   []string{"successful"},
		failed: []string{"failed", "cancelled", "rejected"},
	}
	mtnCallbackVocabulary = vocabulary{
		paid:   []string{"successful", "completed"},
		failed: []string{"failed", "cancelled", "rejected"},
	}
)

// MTNProvider talks to the MTN MoMo collection API.
type MTNProvider struct {
	base
}

func NewMTNProvider(cfg Config, deps Deps) *MTNProvider {
	return &MTNProvider{base: newBase(domain.ProviderMTN, cfg, deps)}
}

func (p *MTNProvider) url(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *MTNProvider) header() http.Header {
	h := http.Header{}
	h.Set("Ocp-Apim-Subscription-Key", p.cfg.SubscriptionKey)
	if p.cfg.Environment != "" {
		h.Set("X-Target-Environment", p.cfg.Environment)
	}
	return h
}

func (p *MTNProvider) Authenticate(ctx context.Context) (string, error) {
	return p.fetchToken(ctx, httpclient.Request{
		Method:   http.MethodPost,
		URL:      p.url("/collection/token/"),
		Header:   p.header(),
		JSON:     map[string]string{"grant_type": "client_credentials"},
		Username: p.cfg.APIKey,
		Password: p.cfg.APISecret,
	})
}

func (p *MTNProvider) RequestPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	referenceID := p.newID()

	build := func(tx *domain.Transaction) outbound {
		payload := map[string]any{
			"amount":     tx.Amount.StringFixed(2),
			"currency":   tx.Currency,
			"externalId": tx.TransactionID,
			"payer": map[string]string{
				"partyIdType": "MSISDN",
				"partyId":     tx.PhoneNumber,
			},
			"payerMessage": tx.Narration,
			"payeeNote":    tx.Reference,
		}
		return outbound{
			payload: payload,
			request: func(token string) httpclient.Request {
				h := p.header()
				h.Set("X-Reference-Id", referenceID)
				if p.cfg.CallbackURL != "" {
					h.Set("X-Callback-Url", p.cfg.CallbackURL)
				}
				return httpclient.Request{
					Method:      http.MethodPost,
					URL:         p.url("/collection/v1_0/requesttopay"),
					Header:      h,
					JSON:        payload,
					BearerToken: token,
				}
			},
		}
	}

	// requesttopay answers 202 with an empty body; the reference we chose is
	// the correlation id.
	accept := func(resp *httpclient.Response) accepted {
		raw, _ := json.Marshal(map[string]any{
			"status_code": resp.StatusCode,
			"headers":     resp.Header,
		})
		return accepted{providerRef: referenceID, rawResponse: raw, status: domain.StatusPending}
	}

	return p.requestPayment(ctx, req, p, build, accept)
}

func (p *MTNProvider) CheckTransactionStatus(ctx context.Context, transactionID string) (*domain.StatusResult, error) {
	build := func(ref, token string) httpclient.Request {
		return httpclient.Request{
			Method:      http.MethodGet,
			URL:         p.url("/collection/v1_0/requesttopay/" + ref),
			Header:      p.header(),
			BearerToken: token,
		}
	}
	parse := func(body map[string]any) (string, string) {
		return stringAt(body, "status"), reasonFrom(body, "reason")
	}
	return p.pollStatus(ctx, transactionID, p, build, parse, mtnPollVocabulary)
}

func (p *MTNProvider) ProcessCallback(ctx context.Context, payload map[string]any) (*domain.CallbackResult, error) {
	return p.handleCallback(ctx, payload,
		stringAt(payload, "referenceId"),
		stringAt(payload, "status"),
		reasonFrom(payload, "reason"),
		mtnCallbackVocabulary,
	)
}
