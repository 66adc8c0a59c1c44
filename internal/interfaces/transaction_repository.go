package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionRepository defines the contract for issued transaction storage
type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, refID string) error
	// ListUnsettled returns INITIATED or PENDING transactions of protocol created
	// before olderThan, oldest first. Legacy rows without a ref_id are skipped.
	ListUnsettled(ctx context.Context, protocol string, olderThan time.Time, limit int) ([]*models.Transaction, error)
}
