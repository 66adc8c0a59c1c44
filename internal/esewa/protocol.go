package esewa

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/esewa-gateway/internal/config"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
)

// GatewayProtocol is one wire dialect of the eSewa integration.
//
// Initiate never performs I/O. Verify always returns a non-nil outcome, with
// the raw body attached, alongside any TransportError, ParseError or
// ReconciliationMismatch.
type GatewayProtocol interface {
	Name() string
	PaymentURL() string
	Initiate(ctx context.Context, req models.TransactionRequest) (*models.Transaction, map[string]string, error)
	Verify(ctx context.Context, req models.VerificationRequest) (*models.VerificationOutcome, error)
	ParseCallback(query url.Values) (*models.Callback, error)
}

// NewProtocol picks the dialect named by cfg.Protocol.
func NewProtocol(cfg config.EsewaConfig, logger *zap.Logger) (GatewayProtocol, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := NewStatusClient("esewa-"+cfg.Protocol, cfg.VerifyTimeout, logger)

	switch cfg.Protocol {
	case config.ProtocolLegacy:
		return NewLegacyProtocol(cfg, client), nil
	default:
		return NewV2Protocol(cfg, client), nil
	}
}

func validateTransactionRequest(req models.TransactionRequest) error {
	var fields []string

	if !req.Amount.IsPositive() {
		fields = append(fields, "amount")
	}
	if req.TaxAmount.IsNegative() {
		fields = append(fields, "tax_amount")
	}
	if req.ServiceCharge.IsNegative() {
		fields = append(fields, "service_charge")
	}
	if req.DeliveryCharge.IsNegative() {
		fields = append(fields, "delivery_charge")
	}
	if strings.TrimSpace(req.ProductID) == "" {
		fields = append(fields, "product_id")
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields, Reason: "amounts must be non-negative, amount positive and product id set"}
	}
	return nil
}

// TotalAmount sums the four components and rounds to two decimals. Every
// place that needs the total must go through here so signing and the form agree.
func TotalAmount(amount, tax, service, delivery decimal.Decimal) decimal.Decimal {
	return amount.Add(tax).Add(service).Add(delivery).Round(2)
}

// newTransactionID returns 32 lowercase hex characters from a random (v4) UUID.
func newTransactionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newTransaction rounds each component first and sums the rounded values, so
// total_amount always equals the sum of the amounts sent on the form.
func newTransaction(req models.TransactionRequest, productCode, protocol string) *models.Transaction {
	txn := &models.Transaction{
		ID:             newTransactionID(),
		Protocol:       protocol,
		ProductCode:    productCode,
		ProductID:      req.ProductID,
		Amount:         req.Amount.Round(2),
		TaxAmount:      req.TaxAmount.Round(2),
		ServiceCharge:  req.ServiceCharge.Round(2),
		DeliveryCharge: req.DeliveryCharge.Round(2),
		Status:         models.TransactionInitiated,
		CreatedAt:      time.Now().UTC(),
	}
	txn.TotalAmount = TotalAmount(txn.Amount, txn.TaxAmount, txn.ServiceCharge, txn.DeliveryCharge)
	return txn
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""))
	if err != nil {
		return decimal.Zero, &ValidationError{Fields: []string{field}, Reason: "not a decimal amount"}
	}
	return amount, nil
}
