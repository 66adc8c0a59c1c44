package handlers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/esewa-gateway/internal/esewa"
	"github.com/akylbek/payment-system/esewa-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/esewa-gateway/internal/middleware"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
	"github.com/akylbek/payment-system/esewa-gateway/internal/signer"
)

const idempotencyTTL = 24 * time.Hour

// Coordinator is implemented by esewa.Service.
type Coordinator interface {
	Initiate(ctx context.Context, req models.TransactionRequest) models.InitiationResult
	Verify(ctx context.Context, req models.VerificationRequest) models.VerificationOutcome
	HandleCallback(ctx context.Context, query url.Values) models.VerificationOutcome
}

type PaymentHandler struct {
	service Coordinator
	cache   interfaces.InitiationCache
	logger  *zap.Logger
}

// NewPaymentHandler wires the payment routes. cache may be nil.
func NewPaymentHandler(service Coordinator, cache interfaces.InitiationCache, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		cache:   cache,
		logger:  logger,
	}
}

func (h *PaymentHandler) Initiate(c *gin.Context) {
	ctx := c.Request.Context()
	span := trace.SpanFromContext(ctx)

	var req models.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid payment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.InitiationResult{
			Success:   false,
			Message:   err.Error(),
			ErrorKind: esewa.KindValidation,
		})
		return
	}

	result := h.service.Initiate(ctx, req)

	h.logger.Info("Initiate request handled",
		zap.String("transaction_id", result.TransactionID),
		zap.Bool("success", result.Success),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	if key := c.GetString(middleware.IdempotencyKey); key != "" && result.Success && h.cache != nil {
		if err := h.cache.Set(ctx, key, &result, idempotencyTTL); err != nil {
			h.logger.Warn("Failed to cache initiation result", zap.String("idempotency_key", key), zap.Error(err))
		}
	}

	c.JSON(StatusFor(result.Success, result.ErrorKind), result)
}

func (h *PaymentHandler) Verify(c *gin.Context) {
	var req models.VerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.VerificationOutcome{
			Success:   false,
			Message:   "Transaction ID is required",
			Status:    esewa.StatusError,
			ErrorKind: esewa.KindValidation,
		})
		return
	}

	outcome := h.service.Verify(c.Request.Context(), req)
	c.JSON(StatusFor(outcome.Success, outcome.ErrorKind), outcome)
}

// Success handles the gateway's success redirect. The redirect only names
// the payment; settlement is confirmed with the status API before rendering.
func (h *PaymentHandler) Success(c *gin.Context) {
	outcome := h.service.HandleCallback(c.Request.Context(), c.Request.URL.Query())

	c.HTML(StatusFor(outcome.Success, outcome.ErrorKind), SuccessPage, successPageData{
		Verified:      outcome.Success,
		TransactionID: outcome.TransactionID,
		Amount:        signer.FormatAmount(outcome.Amount),
		RefID:         outcome.RefID,
		Status:        outcome.Status,
		Message:       outcome.Message,
	})
}

func (h *PaymentHandler) Failure(c *gin.Context) {
	data := failurePageData{
		ProductID: c.Query("pid"),
		Message:   c.Query("message"),
	}
	h.logger.Warn("Payment failure callback",
		zap.String("product_id", data.ProductID),
		zap.String("message", data.Message),
	)

	c.HTML(http.StatusOK, FailurePage, data)
}

// StatusFor maps a result to its HTTP status: client-fixable failures are 4xx,
// gateway failures 502, our own faults 500.
func StatusFor(success bool, kind string) int {
	if success {
		return http.StatusOK
	}
	switch kind {
	case esewa.KindValidation:
		return http.StatusBadRequest
	case esewa.KindConfiguration, esewa.KindPersistence, esewa.KindInternal:
		return http.StatusInternalServerError
	case esewa.KindTransport, esewa.KindParse:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}
