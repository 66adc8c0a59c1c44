package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/akylbek/payment-system/esewa-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the transaction store and checks the connection.
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS esewa_transactions (
			id VARCHAR(64) PRIMARY KEY,
			protocol VARCHAR(16) NOT NULL,
			product_code VARCHAR(64) NOT NULL,
			product_id VARCHAR(255) NOT NULL,
			amount DECIMAL(15,2) NOT NULL,
			tax_amount DECIMAL(15,2) NOT NULL,
			service_charge DECIMAL(15,2) NOT NULL,
			delivery_charge DECIMAL(15,2) NOT NULL,
			total_amount DECIMAL(15,2) NOT NULL,
			signature VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(32) NOT NULL,
			ref_id VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_esewa_transactions_status ON esewa_transactions(status, created_at)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO esewa_transactions (id, protocol, product_code, product_id, amount, tax_amount,
			service_charge, delivery_charge, total_amount, signature, status, ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, txn.ID, txn.Protocol, txn.ProductCode, txn.ProductID, txn.Amount, txn.TaxAmount,
		txn.ServiceCharge, txn.DeliveryCharge, txn.TotalAmount, txn.Signature, string(txn.Status),
		txn.RefID, txn.CreatedAt.UTC())
	return err
}

const selectTransaction = `
	SELECT id, protocol, product_code, product_id, amount, tax_amount, service_charge,
		delivery_charge, total_amount, signature, status, ref_id, created_at
	FROM esewa_transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		txn    models.Transaction
		status string
	)
	err := row.Scan(&txn.ID, &txn.Protocol, &txn.ProductCode, &txn.ProductID, &txn.Amount,
		&txn.TaxAmount, &txn.ServiceCharge, &txn.DeliveryCharge, &txn.TotalAmount,
		&txn.Signature, &status, &txn.RefID, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}
	txn.Status = models.TransactionStatus(status)
	return &txn, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	txn, err := scanTransaction(r.db.QueryRowContext(ctx, selectTransaction+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, refID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE esewa_transactions SET status = $1, ref_id = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3`,
		string(status), refID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return interfaces.ErrTransactionNotFound
	}
	return nil
}

// ListUnsettled returns initiated or pending transactions of one protocol
// created before olderThan, oldest first. Legacy rows are only returned once
// they carry a gateway reference, since legacy verification needs one.
func (r *TransactionRepository) ListUnsettled(ctx context.Context, protocol string, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, selectTransaction+`
		WHERE status IN ('INITIATED', 'PENDING')
			AND protocol = $1
			AND (protocol <> 'legacy' OR ref_id <> '')
			AND created_at < $2
		ORDER BY created_at
		LIMIT $3`, protocol, olderThan.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}
