package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
)

// InitiationCache stores initiation results under a client Idempotency-Key
type InitiationCache interface {
	Get(ctx context.Context, key string) (*models.InitiationResult, error)
	Set(ctx context.Context, key string, result *models.InitiationResult, ttl time.Duration) error
}

// Locker hands out short-lived exclusive locks across replicas
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
