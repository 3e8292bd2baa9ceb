package app

import (
	"context"
	"fmt"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

// Dispatcher routes operations to a registered provider, falling back to the
// default when no provider is named.
type Dispatcher struct {
	providers       map[domain.Provider]domain.PaymentProvider
	defaultProvider domain.Provider
}

func NewDispatcher(defaultProvider string, providers ...domain.PaymentProvider) (*Dispatcher, error) {
	d := &Dispatcher{providers: make(map[domain.Provider]domain.PaymentProvider, len(providers))}
	for _, p := range providers {
		d.providers[p.Name()] = p
	}
	def, err := d.resolve(defaultProvider)
	if err != nil {
		return nil, fmt.Errorf("default provider: %w", err)
	}
	d.defaultProvider = def
	return d, nil
}

func (d *Dispatcher) resolve(name string) (domain.Provider, error) {
	p, err := domain.ParseProvider(name)
	if err != nil {
		return "", err
	}
	if _, ok := d.providers[p]; !ok {
		return "", fmt.Errorf("%w: %s is not configured", domain.ErrUnsupportedProvider, p)
	}
	return p, nil
}

// Provider returns the adapter for name; an empty name selects the default.
func (d *Dispatcher) Provider(name string) (domain.PaymentProvider, error) {
	if name == "" {
		return d.providers[d.defaultProvider], nil
	}
	p, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return d.providers[p], nil
}

// WithProvider returns a dispatcher sharing the same adapters with name as
// its default.
func (d *Dispatcher) WithProvider(name string) (*Dispatcher, error) {
	p, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{providers: d.providers, defaultProvider: p}, nil
}

func (d *Dispatcher) Default() domain.Provider { return d.defaultProvider }

// Providers lists the configured providers in a stable order.
func (d *Dispatcher) Providers() []domain.Provider {
	var out []domain.Provider
	for _, p := range domain.Providers {
		if _, ok := d.providers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (d *Dispatcher) Authenticate(ctx context.Context, provider string) (string, error) {
	p, err := d.Provider(provider)
	if err != nil {
		return "", err
	}
	return p.Authenticate(ctx)
}

func (d *Dispatcher) RequestPayment(ctx context.Context, provider string, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	p, err := d.Provider(provider)
	if err != nil {
		return nil, err
	}
	return p.RequestPayment(ctx, req)
}

func (d *Dispatcher) CheckTransactionStatus(ctx context.Context, provider, transactionID string) (*domain.StatusResult, error) {
	p, err := d.Provider(provider)
	if err != nil {
		return nil, err
	}
	return p.CheckTransactionStatus(ctx, transactionID)
}

func (d *Dispatcher) ProcessCallback(ctx context.Context, provider string, payload map[string]any) (*domain.CallbackResult, error) {
	p, err := d.Provider(provider)
	if err != nil {
		return nil, err
	}
	return p.ProcessCallback(ctx, payload)
}
