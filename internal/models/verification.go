package models

import "github.com/shopspring/decimal"

type VerificationRequest struct {
	TransactionID string          `json:"transaction_id" binding:"required"`
	ProductCode   string          `json:"product_code"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	// RefID is required by the legacy status API only.
	RefID string `json:"ref_id"`
}

type VerificationOutcome struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id"`
	RefID         string          `json:"ref_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	RawResponse   string          `json:"raw_response,omitempty"`
	ErrorKind     string          `json:"error_kind,omitempty"`
}

// Callback is what the gateway hands back on the success redirect.
type Callback struct {
	TransactionID string          `json:"transaction_uuid"`
	ProductCode   string          `json:"product_code"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	RefID         string          `json:"ref_id"`
	Status        string          `json:"status"`
}
