package messagebroker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNatsClient_PublishHonoursCancelledContext(t *testing.T) {
	client := &NatsClient{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.Publish(ctx, "wallet.transaction.paid", []byte(`{}`))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNatsClient_CloseWithoutConnection(t *testing.T) {
	client := &NatsClient{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	assert.NotPanics(t, client.Close)
}

func TestNewNatsClient_Unreachable(t *testing.T) {
	_, err := NewNatsClient("nats://127.0.0.1:1", "payment-service-test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
