package provider

import (
	"fmt"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

var (
	_ domain.PaymentProvider = (*MTNProvider)(nil)
	_ domain.PaymentProvider = (*AirtelProvider)(nil)
	_ domain.PaymentProvider = (*ZamtelProvider)(nil)
)

// New builds the adapter for name.
func New(name string, cfg Config, deps Deps) (domain.PaymentProvider, error) {
	p, err := domain.ParseProvider(name)
	if err != nil {
		return nil, err
	}
	switch p {
	case domain.ProviderMTN:
		return NewMTNProvider(cfg, deps), nil
	case domain.ProviderAirtel:
		return NewAirtelProvider(cfg, deps), nil
	case domain.ProviderZamtel:
		return NewZamtelProvider(cfg, deps), nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, name)
}
