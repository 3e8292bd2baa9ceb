package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/repository/memory"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/tokencache"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/httpclient"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TransactionEvent
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, e domain.TransactionEvent) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Events() []domain.TransactionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TransactionEvent(nil), p.events...)
}

type fixture struct {
	deps   Deps
	repo   *memory.TransactionRepository
	clock  *clock
	events *recordingPublisher
}

func newFixture(t *testing.T, server *httptest.Server) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := httpclient.DefaultConfig()
	cfg.Retries = 0
	cfg.BreakerMaxFailures = 0
	client := httpclient.New("test", cfg, logger,
		httpclient.WithHTTPClient(server.Client()),
		httpclient.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	f := &fixture{
		repo:   memory.NewTransactionRepository(),
		clock:  &clock{now: baseTime},
		events: &recordingPublisher{},
	}
	f.deps = Deps{
		HTTP:   client,
		Repo:   f.repo,
		Tokens: tokencache.New(tokencache.NewMemoryStore(), time.Hour, logger),
		Events: f.events,
		Logger: logger,
		Now:    f.clock.Now,
	}
	return f
}

func (f *fixture) only(t *testing.T) *domain.Transaction {
	t.Helper()
	txs, total, err := f.repo.List(context.Background(), domain.TransactionFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	return txs[0]
}

func (f *fixture) get(t *testing.T, id string) *domain.Transaction {
	t.Helper()
	tx, err := f.repo.GetByTransactionID(context.Background(), id, "")
	require.NoError(t, err)
	return tx
}

func requireWalletError(t *testing.T, err error, kind domain.ErrorKind) *domain.WalletError {
	t.Helper()
	require.Error(t, err)
	var we *domain.WalletError
	require.ErrorAs(t, err, &we)
	require.Equal(t, kind, we.Kind)
	return we
}
