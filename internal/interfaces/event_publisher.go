package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
)

// EventPublisher delivers payment lifecycle events to the configured broker
type EventPublisher interface {
	Publish(ctx context.Context, evt models.PaymentEvent) error
	Close() error
}
