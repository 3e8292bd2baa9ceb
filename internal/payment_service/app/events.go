package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
)

// SubjectPrefix is the NATS subject root for transaction events; the status
// is appended, e.g. wallet.transaction.paid.
const SubjectPrefix = "wallet.transaction"

// MessagePublisher is satisfied by *messagebroker.NatsClient.
type MessagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

type NatsEventPublisher struct {
	client MessagePublisher
	logger *slog.Logger
}

func NewNatsEventPublisher(client MessagePublisher, logger *slog.Logger) *NatsEventPublisher {
	return &NatsEventPublisher{client: client, logger: logger.With("component", "event_publisher")}
}

func (p *NatsEventPublisher) PublishTransactionEvent(ctx context.Context, event domain.TransactionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding transaction event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", SubjectPrefix, event.Status)
	if err := p.client.Publish(ctx, subject, data); err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "Published transaction event", "subject", subject, "transaction_id", event.TransactionID)
	return nil
}
