package esewa

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/esewa-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/esewa-gateway/internal/metrics"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
	"github.com/akylbek/payment-system/esewa-gateway/internal/telemetry"
)

// Service coordinates initiation and verification over one GatewayProtocol.
// It never returns an error: every failure becomes a result with Success=false.
//
// repo and publisher are optional. With a repository, Verify refuses ids it
// never issued and amounts that disagree with the stored record.
type Service struct {
	protocol    GatewayProtocol
	productCode string
	repo        interfaces.TransactionRepository
	publisher   interfaces.EventPublisher
	logger      *zap.Logger
}

func NewService(protocol GatewayProtocol, productCode string, repo interfaces.TransactionRepository, publisher interfaces.EventPublisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		protocol:    protocol,
		productCode: productCode,
		repo:        repo,
		publisher:   publisher,
		logger:      logger,
	}
}

func (s *Service) Protocol() string { return s.protocol.Name() }

func (s *Service) Initiate(ctx context.Context, req models.TransactionRequest) (result models.InitiationResult) {
	ctx, span := telemetry.Tracer().Start(ctx, "esewa.initiate")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result = s.initiationFailed(req, fmt.Errorf("panic: %v", r))
		}
		metrics.InitiationsTotal.WithLabelValues(s.protocol.Name(), resultLabel(result.Success, result.ErrorKind)).Inc()
		if !result.Success {
			span.SetStatus(codes.Error, result.Message)
		}
	}()

	txn, fields, err := s.protocol.Initiate(ctx, req)
	if err != nil {
		return s.initiationFailed(req, err)
	}
	span.SetAttributes(attribute.String("esewa.transaction_id", txn.ID))

	if s.repo != nil {
		if err := s.repo.Create(ctx, txn); err != nil {
			return s.initiationFailed(req, &PersistenceError{Err: err})
		}
	}

	s.publish(ctx, models.PaymentEvent{
		Type:          models.EventPaymentInitiated,
		TransactionID: txn.ID,
		Protocol:      txn.Protocol,
		Amount:        txn.TotalAmount,
		Status:        string(txn.Status),
		OccurredAt:    txn.CreatedAt,
	})

	s.logger.Info("Payment initiated",
		zap.String("transaction_id", txn.ID),
		zap.String("product_id", txn.ProductID),
		zap.String("total_amount", txn.TotalAmount.StringFixed(2)),
		zap.String("protocol", txn.Protocol),
	)

	return models.InitiationResult{
		Success:       true,
		Message:       "Payment initiated",
		TransactionID: txn.ID,
		PaymentURL:    s.protocol.PaymentURL(),
		FormFields:    fields,
	}
}

func (s *Service) initiationFailed(req models.TransactionRequest, err error) models.InitiationResult {
	kind := KindOf(err)
	if kind == KindValidation {
		s.logger.Warn("Invalid payment request", zap.String("product_id", req.ProductID), zap.Error(err))
	} else {
		s.logger.Error("eSewa payment initiation failed", zap.String("product_id", req.ProductID), zap.Error(err))
	}

	return models.InitiationResult{
		Success:   false,
		Message:   err.Error(),
		ErrorKind: kind,
	}
}

func (s *Service) Verify(ctx context.Context, req models.VerificationRequest) (outcome models.VerificationOutcome) {
	ctx, span := telemetry.Tracer().Start(ctx, "esewa.verify")
	defer span.End()
	span.SetAttributes(attribute.String("esewa.transaction_id", req.TransactionID))

	defer func() {
		if r := recover(); r != nil {
			outcome = s.verificationFailed(req, StatusError, fmt.Errorf("panic: %v", r))
		}
		metrics.VerificationsTotal.WithLabelValues(s.protocol.Name(), outcome.Status).Inc()
		span.SetAttributes(attribute.String("esewa.status", outcome.Status))
		if !outcome.Success {
			span.SetStatus(codes.Error, outcome.Message)
		}
	}()

	if strings.TrimSpace(req.TransactionID) == "" {
		return s.verificationFailed(req, StatusError, &ValidationError{Fields: []string{"transaction_id"}})
	}
	if req.ProductCode == "" {
		req.ProductCode = s.productCode
	}

	var stored *models.Transaction
	if s.repo != nil {
		var err error
		stored, err = s.repo.GetByID(ctx, req.TransactionID)
		switch {
		case errors.Is(err, interfaces.ErrTransactionNotFound):
			return s.verificationFailed(req, StatusNotFound, &ReconciliationMismatch{Status: StatusNotFound, Reason: "transaction was not issued here"})
		case err != nil:
			return s.verificationFailed(req, StatusError, &PersistenceError{Err: err})
		}

		if req.TotalAmount.IsZero() {
			req.TotalAmount = stored.TotalAmount
		}
		if !req.TotalAmount.Equal(stored.TotalAmount) {
			return s.verificationFailed(req, StatusMismatch, &ReconciliationMismatch{Status: StatusMismatch, Reason: "amount differs from issued transaction"})
		}
		if req.ProductCode != stored.ProductCode {
			return s.verificationFailed(req, StatusMismatch, &ReconciliationMismatch{Status: StatusMismatch, Reason: "product code differs from issued transaction"})
		}
		if req.RefID == "" {
			req.RefID = stored.RefID
		}
	}

	start := time.Now()
	result, err := s.protocol.Verify(ctx, req)
	metrics.VerificationDuration.WithLabelValues(s.protocol.Name()).Observe(time.Since(start).Seconds())

	if result == nil {
		result = &models.VerificationOutcome{TransactionID: req.TransactionID, Amount: req.TotalAmount, Status: StatusError}
	}
	outcome = *result
	if err != nil {
		outcome.Success = false
		outcome.ErrorKind = KindOf(err)
		if outcome.Message == "" {
			outcome.Message = err.Error()
		}
		s.logVerifyError(req, outcome, err)
	} else {
		s.logger.Info("eSewa payment verified",
			zap.String("transaction_id", outcome.TransactionID),
			zap.String("ref_id", outcome.RefID),
			zap.String("status", outcome.Status),
		)
	}

	if stored != nil {
		s.record(ctx, stored, outcome)
	}

	s.publish(ctx, models.PaymentEvent{
		Type:          models.EventPaymentVerified,
		TransactionID: outcome.TransactionID,
		Protocol:      s.protocol.Name(),
		Amount:        outcome.Amount,
		Status:        outcome.Status,
		RefID:         outcome.RefID,
		OccurredAt:    time.Now().UTC(),
	})

	return outcome
}

// HandleCallback verifies the payment named by a gateway success redirect.
// The redirect itself is never trusted as proof of settlement.
func (s *Service) HandleCallback(ctx context.Context, query url.Values) models.VerificationOutcome {
	cb, err := s.protocol.ParseCallback(query)
	if err != nil {
		s.logger.Warn("Rejected eSewa callback", zap.Error(err))
		metrics.VerificationsTotal.WithLabelValues(s.protocol.Name(), StatusError).Inc()
		return models.VerificationOutcome{
			Success:   false,
			Status:    StatusError,
			Message:   err.Error(),
			ErrorKind: KindOf(err),
		}
	}

	s.logger.Info("eSewa callback received",
		zap.String("transaction_id", cb.TransactionID),
		zap.String("ref_id", cb.RefID),
		zap.String("status", cb.Status),
	)

	return s.Verify(ctx, models.VerificationRequest{
		TransactionID: cb.TransactionID,
		ProductCode:   cb.ProductCode,
		TotalAmount:   cb.TotalAmount,
		RefID:         cb.RefID,
	})
}

func (s *Service) verificationFailed(req models.VerificationRequest, status string, err error) models.VerificationOutcome {
	outcome := models.VerificationOutcome{
		Success:       false,
		Status:        status,
		TransactionID: req.TransactionID,
		RefID:         req.RefID,
		Amount:        req.TotalAmount,
		Message:       err.Error(),
		ErrorKind:     KindOf(err),
	}
	s.logVerifyError(req, outcome, err)
	return outcome
}

func (s *Service) logVerifyError(req models.VerificationRequest, outcome models.VerificationOutcome, err error) {
	fields := []zap.Field{
		zap.String("transaction_id", req.TransactionID),
		zap.String("status", outcome.Status),
		zap.String("error_kind", outcome.ErrorKind),
		zap.Error(err),
	}

	switch outcome.ErrorKind {
	case KindReconciliation, KindValidation:
		s.logger.Warn("eSewa payment not verified", fields...)
	default:
		s.logger.Error("eSewa verification error", append(fields, zap.String("raw_response", outcome.RawResponse))...)
	}
}

// record stores the gateway's verdict. Transport and parse failures leave the
// stored status alone so the reconciler retries the lookup later.
func (s *Service) record(ctx context.Context, stored *models.Transaction, outcome models.VerificationOutcome) {
	status := stored.Status
	switch outcome.Status {
	case StatusComplete:
		status = models.TransactionCompleted
	case StatusPending, StatusAmbiguous:
		status = models.TransactionPending
	case StatusNotFound, StatusCanceled, StatusFailed, StatusFullRefund, StatusPartialRefund:
		// A transport failure says nothing about the payment, but a newly
		// learned reference is still kept.
		if outcome.ErrorKind != KindTransport {
			status = models.TransactionFailed
		}
	default:
		return
	}

	refID := outcome.RefID
	if refID == "" {
		refID = stored.RefID
	}
	if status == stored.Status && refID == stored.RefID {
		return
	}

	if err := s.repo.UpdateStatus(ctx, stored.ID, status, refID); err != nil {
		s.logger.Error("Failed to update transaction status",
			zap.String("transaction_id", stored.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, evt models.PaymentEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("Failed to publish payment event",
			zap.String("transaction_id", evt.TransactionID),
			zap.String("type", evt.Type),
			zap.Error(err),
		)
	}
}

func resultLabel(success bool, kind string) string {
	if success {
		return "success"
	}
	return kind
}
