package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/esewa-gateway/internal/interfaces"
)

const IdempotencyKey = "idempotency_key"

// reservationTTL bounds how long a crashed request can hold a key.
const reservationTTL = 30 * time.Second

// IdempotencyMiddleware replays a cached initiation result for a repeated
// Idempotency-Key. Requests without the header pass through; a cache outage
// is logged and the request proceeds.
//
// When a locker is configured, the first request for a key reserves it until
// the handler returns. A concurrent duplicate gets 409 Conflict instead of
// issuing a second transaction.
func IdempotencyMiddleware(cache interfaces.InitiationCache, locker interfaces.Locker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" || cache == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		if replay(c, cache, key, logger) {
			return
		}

		if locker != nil {
			lockKey := "idempotency:" + key
			ok, err := locker.Acquire(ctx, lockKey, reservationTTL)
			switch {
			case err != nil:
				logger.Warn("Idempotency lock unavailable", zap.String("idempotency_key", key), zap.Error(err))
			case !ok:
				c.JSON(http.StatusConflict, gin.H{"error": "a request with this Idempotency-Key is already in progress"})
				c.Abort()
				return
			default:
				defer func() {
					if err := locker.Release(context.WithoutCancel(ctx), lockKey); err != nil {
						logger.Warn("Failed to release idempotency lock", zap.String("idempotency_key", key), zap.Error(err))
					}
				}()
				// the previous holder may have finished between Get and Acquire
				if replay(c, cache, key, logger) {
					return
				}
			}
		}

		c.Set(IdempotencyKey, key)
		c.Next()
	}
}

func replay(c *gin.Context, cache interfaces.InitiationCache, key string, logger *zap.Logger) bool {
	cached, err := cache.Get(c.Request.Context(), key)
	if err != nil {
		logger.Warn("Idempotency cache unavailable", zap.String("idempotency_key", key), zap.Error(err))
	}
	if cached == nil {
		return false
	}
	c.Header("Idempotent-Replayed", "true")
	c.JSON(http.StatusOK, cached)
	c.Abort()
	return true
}
