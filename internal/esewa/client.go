package esewa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/esewa-gateway/internal/metrics"
)

type statusResponse struct {
	StatusCode int
	Body       []byte
}

// StatusClient issues the gateway status lookup. One GET per call, no retries.
type StatusClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

func NewStatusClient(name string, timeout time.Duration, logger *zap.Logger) *StatusClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(stateValue(to))
			logger.Warn("Circuit breaker state changed",
				zap.String("circuit", cbName),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &StatusClient{
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0),
		breaker: breaker,
	}
}

// Get returns the response body whatever the status code; a non-2xx answer is
// still reported as a TransportError so callers never parse it.
func (c *StatusClient) Get(ctx context.Context, endpoint string, params map[string]string) (statusResponse, error) {
	var resp statusResponse

	_, err := c.breaker.Execute(func() (interface{}, error) {
		r, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(endpoint)
		if r != nil {
			resp = statusResponse{StatusCode: r.StatusCode(), Body: r.Body()}
		}
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("circuit %s open: %w", c.breaker.Name(), err)
		}
		return resp, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	return resp, nil
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
