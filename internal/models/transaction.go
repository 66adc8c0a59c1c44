package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionInitiated TransactionStatus = "INITIATED"
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETE"
	TransactionFailed    TransactionStatus = "FAILED"
)

// TransactionRequest is the caller's payment intent. Amounts carry two decimal places.
type TransactionRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ServiceCharge  decimal.Decimal `json:"service_charge"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	ProductID      string          `json:"product_id" binding:"required"`
	ProductName    string          `json:"product_name"`
	CustomerEmail  string          `json:"customer_email"`
	CustomerPhone  string          `json:"customer_phone"`
}

type Transaction struct {
	ID             string            `json:"id"`
	Protocol       string            `json:"protocol"`
	ProductCode    string            `json:"product_code"`
	ProductID      string            `json:"product_id"`
	Amount         decimal.Decimal   `json:"amount"`
	TaxAmount      decimal.Decimal   `json:"tax_amount"`
	ServiceCharge  decimal.Decimal   `json:"service_charge"`
	DeliveryCharge decimal.Decimal   `json:"delivery_charge"`
	TotalAmount    decimal.Decimal   `json:"total_amount"`
	Signature      string            `json:"signature,omitempty"`
	Status         TransactionStatus `json:"status"`
	RefID          string            `json:"ref_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

type InitiationResult struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	TransactionID string            `json:"transaction_id,omitempty"`
	PaymentURL    string            `json:"payment_url,omitempty"`
	FormFields    map[string]string `json:"form_fields,omitempty"`
	ErrorKind     string            `json:"error_kind,omitempty"`
}
