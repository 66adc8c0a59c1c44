package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventPaymentInitiated = "payment.initiated"
	EventPaymentVerified  = "payment.verified"
)

type PaymentEvent struct {
	Type          string          `json:"type"`
	TransactionID string          `json:"transaction_id"`
	Protocol      string          `json:"protocol"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	RefID         string          `json:"ref_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
