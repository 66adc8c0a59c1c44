package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/esewa-gateway/internal/config"
	"github.com/akylbek/payment-system/esewa-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/esewa-gateway/internal/metrics"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
)

const lockTTL = 30 * time.Second

// Verifier is the part of esewa.Service the worker drives.
type Verifier interface {
	Protocol() string
	Verify(ctx context.Context, req models.VerificationRequest) models.VerificationOutcome
}

// Worker re-verifies transactions that never reached a final status, for
// example when the customer closed the browser before the success redirect.
type Worker struct {
	repo     interfaces.TransactionRepository
	verifier Verifier
	locker   interfaces.Locker
	cfg      config.ReconcilerConfig
	logger   *zap.Logger
}

// NewWorker builds a worker. locker may be nil for a single replica.
func NewWorker(repo interfaces.TransactionRepository, verifier Verifier, locker interfaces.Locker, cfg config.ReconcilerConfig, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		repo:     repo,
		verifier: verifier,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run ticks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("Reconciler started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Duration("grace", w.cfg.Grace),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconciler stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick verifies one batch of stale transactions and returns how many were
// sent to the gateway.
func (w *Worker) Tick(ctx context.Context) int {
	txns, err := w.repo.ListUnsettled(ctx, w.verifier.Protocol(), time.Now().UTC().Add(-w.cfg.Grace), w.cfg.Batch)
	if err != nil {
		w.logger.Error("Failed to list unsettled transactions", zap.Error(err))
		metrics.ReconcilerRuns.WithLabelValues("list_error").Inc()
		return 0
	}

	verified := 0
	for _, txn := range txns {
		if ctx.Err() != nil {
			break
		}
		if w.reconcile(ctx, txn) {
			verified++
		}
	}
	return verified
}

func (w *Worker) reconcile(ctx context.Context, txn *models.Transaction) bool {
	if txn.Protocol != w.verifier.Protocol() {
		return false
	}
	// legacy lookups need the reference id from the success redirect
	if txn.Protocol == config.ProtocolLegacy && txn.RefID == "" {
		return false
	}

	if w.locker != nil {
		ok, err := w.locker.Acquire(ctx, txn.ID, lockTTL)
		if err != nil {
			w.logger.Warn("Failed to acquire reconciler lock", zap.String("transaction_id", txn.ID), zap.Error(err))
			return false
		}
		if !ok {
			return false
		}
		defer func() {
			if err := w.locker.Release(ctx, txn.ID); err != nil {
				w.logger.Warn("Failed to release reconciler lock", zap.String("transaction_id", txn.ID), zap.Error(err))
			}
		}()
	}

	outcome := w.verifier.Verify(ctx, models.VerificationRequest{
		TransactionID: txn.ID,
		ProductCode:   txn.ProductCode,
		TotalAmount:   txn.TotalAmount,
		RefID:         txn.RefID,
	})
	metrics.ReconcilerRuns.WithLabelValues(outcome.Status).Inc()

	w.logger.Info("Reconciled transaction",
		zap.String("transaction_id", txn.ID),
		zap.String("previous_status", string(txn.Status)),
		zap.String("status", outcome.Status),
	)
	return true
}
