package esewa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/esewa-gateway/internal/config"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
	"github.com/akylbek/payment-system/esewa-gateway/internal/signer"
)

// V2Protocol is the ePay v2 dialect: HMAC-signed form fields and a JSON status API.
type V2Protocol struct {
	cfg        config.EsewaConfig
	fieldNames []string
	client     *StatusClient
}

type v2StatusResponse struct {
	ProductCode     string              `json:"product_code"`
	TransactionUUID string              `json:"transaction_uuid"`
	TotalAmount     decimal.NullDecimal `json:"total_amount"`
	Status          *string             `json:"status"`
	RefID           *string             `json:"ref_id"`
}

func NewV2Protocol(cfg config.EsewaConfig, client *StatusClient) *V2Protocol {
	return &V2Protocol{
		cfg:        cfg,
		fieldNames: signer.ParseFieldNames(cfg.SignedFieldNames),
		client:     client,
	}
}

func (p *V2Protocol) Name() string { return config.ProtocolV2 }

func (p *V2Protocol) PaymentURL() string { return p.cfg.PaymentURL }

func (p *V2Protocol) Initiate(ctx context.Context, req models.TransactionRequest) (*models.Transaction, map[string]string, error) {
	if err := validateTransactionRequest(req); err != nil {
		return nil, nil, err
	}
	if p.cfg.SecretKey == "" {
		return nil, nil, &ConfigurationError{Field: "esewa.secret_key"}
	}

	txn := newTransaction(req, p.cfg.ProductCode, p.Name())

	fields := map[string]string{
		"amount":                  signer.FormatAmount(txn.Amount),
		"tax_amount":              signer.FormatAmount(txn.TaxAmount),
		"total_amount":            signer.FormatAmount(txn.TotalAmount),
		"transaction_uuid":        txn.ID,
		"product_code":            txn.ProductCode,
		"product_service_charge":  signer.FormatAmount(txn.ServiceCharge),
		"product_delivery_charge": signer.FormatAmount(txn.DeliveryCharge),
		"success_url":             p.cfg.SuccessURL,
		"failure_url":             p.cfg.FailureURL,
	}

	message, err := signer.Message(p.fieldNames, fields)
	if err != nil {
		return nil, nil, fmt.Errorf("build signing message: %w", &ConfigurationError{Field: "esewa.signed_field_names"})
	}

	signature, err := signer.Sign(message, []byte(p.cfg.SecretKey))
	if err != nil {
		if errors.Is(err, signer.ErrEmptySecretKey) {
			return nil, nil, &ConfigurationError{Field: "esewa.secret_key"}
		}
		return nil, nil, err
	}

	fields["signed_field_names"] = strings.Join(p.fieldNames, ",")
	fields["signature"] = signature
	txn.Signature = signature

	return txn, fields, nil
}

func (p *V2Protocol) Verify(ctx context.Context, req models.VerificationRequest) (*models.VerificationOutcome, error) {
	productCode := req.ProductCode
	if productCode == "" {
		productCode = p.cfg.ProductCode
	}

	resp, err := p.client.Get(ctx, p.cfg.VerificationURL, map[string]string{
		"product_code":     productCode,
		"total_amount":     signer.FormatAmount(req.TotalAmount),
		"transaction_uuid": req.TransactionID,
	})

	outcome := &models.VerificationOutcome{
		TransactionID: req.TransactionID,
		Amount:        req.TotalAmount,
		RawResponse:   string(resp.Body),
	}

	if err != nil {
		outcome.Status = StatusFailed
		outcome.Message = "Verification API failed"
		return outcome, err
	}

	var body v2StatusResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		outcome.Status = StatusError
		outcome.Message = "Malformed verification response"
		return outcome, &ParseError{Err: err}
	}
	if body.Status == nil {
		outcome.Status = StatusError
		outcome.Message = "Verification response has no status"
		return outcome, &ParseError{Err: errors.New("missing status field")}
	}

	if body.TransactionUUID != "" {
		outcome.TransactionID = body.TransactionUUID
	}
	if body.RefID != nil {
		outcome.RefID = *body.RefID
	}

	status := normalizeStatus(*body.Status)
	outcome.Status = status

	switch {
	case body.TransactionUUID != "" && body.TransactionUUID != req.TransactionID:
		outcome.Status = StatusMismatch
		outcome.Message = "Gateway answered for a different transaction"
		return outcome, &ReconciliationMismatch{Status: StatusMismatch, Reason: "transaction_uuid differs"}
	case body.TotalAmount.Valid && !body.TotalAmount.Decimal.Equal(req.TotalAmount):
		outcome.Status = StatusMismatch
		outcome.Message = "Gateway reports a different amount"
		return outcome, &ReconciliationMismatch{Status: StatusMismatch, Reason: "total_amount differs"}
	case !isSettled(status):
		outcome.Message = "Payment not completed"
		return outcome, &ReconciliationMismatch{Status: status}
	}

	outcome.Success = true
	outcome.Message = "Payment verified successfully"
	return outcome, nil
}

// ParseCallback decodes the base64 JSON "data" parameter of the success
// redirect and checks its signature over the payload's own signed_field_names.
func (p *V2Protocol) ParseCallback(query url.Values) (*models.Callback, error) {
	data := query.Get("data")
	if data == "" {
		return nil, &ValidationError{Fields: []string{"data"}}
	}
	// '+' in an unescaped query value arrives as a space
	data = strings.ReplaceAll(data, " ", "+")

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(data); err != nil {
			return nil, &ValidationError{Fields: []string{"data"}, Reason: "not base64"}
		}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ValidationError{Fields: []string{"data"}, Reason: "not a JSON object"}
	}

	values := make(map[string]string, len(payload))
	for name, rawValue := range payload {
		values[name] = jsonScalar(rawValue)
	}

	names := signer.ParseFieldNames(values["signed_field_names"])
	message, err := signer.Message(names, values)
	if err != nil {
		return nil, &ValidationError{Fields: []string{"signed_field_names"}, Reason: err.Error()}
	}
	if !signer.Verify(message, []byte(p.cfg.SecretKey), values["signature"]) {
		return nil, &ValidationError{Fields: []string{"signature"}, Reason: "callback signature mismatch"}
	}

	amount, err := parseAmount("total_amount", values["total_amount"])
	if err != nil {
		return nil, err
	}

	return &models.Callback{
		TransactionID: values["transaction_uuid"],
		ProductCode:   values["product_code"],
		TotalAmount:   amount,
		RefID:         values["transaction_code"],
		Status:        values["status"],
	}, nil
}

// jsonScalar renders a JSON value the way it appeared on the wire: strings
// unquoted, numbers and literals verbatim.
func jsonScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
