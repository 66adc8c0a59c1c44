package esewa

import (
	"context"
	"encoding/xml"
	"errors"
	"net/url"
	"strings"

	"github.com/akylbek/payment-system/esewa-gateway/internal/config"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
	"github.com/akylbek/payment-system/esewa-gateway/internal/signer"
)

// LegacyProtocol is the original ePay dialect: unsigned form fields
// (amt, txAmt, psc, pdc, tAmt, pid, scd, su, fu) and the XML transrec API,
// which needs the gateway reference id to look a payment up.
type LegacyProtocol struct {
	cfg    config.EsewaConfig
	client *StatusClient
}

type legacyStatusResponse struct {
	XMLName      xml.Name `xml:"response"`
	ResponseCode *string  `xml:"response_code"`
}

func NewLegacyProtocol(cfg config.EsewaConfig, client *StatusClient) *LegacyProtocol {
	return &LegacyProtocol{cfg: cfg, client: client}
}

func (p *LegacyProtocol) Name() string { return config.ProtocolLegacy }

func (p *LegacyProtocol) PaymentURL() string { return p.cfg.PaymentURL }

func (p *LegacyProtocol) Initiate(ctx context.Context, req models.TransactionRequest) (*models.Transaction, map[string]string, error) {
	if err := validateTransactionRequest(req); err != nil {
		return nil, nil, err
	}

	txn := newTransaction(req, p.cfg.ProductCode, p.Name())

	fields := map[string]string{
		"amt":   signer.FormatAmount(txn.Amount),
		"txAmt": signer.FormatAmount(txn.TaxAmount),
		"psc":   signer.FormatAmount(txn.ServiceCharge),
		"pdc":   signer.FormatAmount(txn.DeliveryCharge),
		"tAmt":  signer.FormatAmount(txn.TotalAmount),
		"pid":   txn.ID,
		"scd":   txn.ProductCode,
		"su":    p.cfg.SuccessURL,
		"fu":    p.cfg.FailureURL,
	}

	return txn, fields, nil
}

func (p *LegacyProtocol) Verify(ctx context.Context, req models.VerificationRequest) (*models.VerificationOutcome, error) {
	outcome := &models.VerificationOutcome{
		TransactionID: req.TransactionID,
		RefID:         req.RefID,
		Amount:        req.TotalAmount,
	}

	if strings.TrimSpace(req.RefID) == "" {
		outcome.Status = StatusError
		outcome.Message = "Reference id is required"
		return outcome, &ValidationError{Fields: []string{"ref_id"}}
	}

	productCode := req.ProductCode
	if productCode == "" {
		productCode = p.cfg.ProductCode
	}

	resp, err := p.client.Get(ctx, p.cfg.VerificationURL, map[string]string{
		"amt": signer.FormatAmount(req.TotalAmount),
		"scd": productCode,
		"pid": req.TransactionID,
		"rid": req.RefID,
	})
	outcome.RawResponse = string(resp.Body)

	if err != nil {
		outcome.Status = StatusFailed
		outcome.Message = "Verification API failed"
		return outcome, err
	}

	var body legacyStatusResponse
	if err := xml.Unmarshal(resp.Body, &body); err != nil {
		outcome.Status = StatusError
		outcome.Message = "Malformed verification response"
		return outcome, &ParseError{Err: err}
	}
	if body.ResponseCode == nil {
		outcome.Status = StatusError
		outcome.Message = "Verification response has no response_code"
		return outcome, &ParseError{Err: errors.New("missing response_code element")}
	}

	status := legacyStatus(*body.ResponseCode)
	outcome.Status = status
	if !isSettled(status) {
		outcome.Message = "Payment not completed"
		return outcome, &ReconciliationMismatch{Status: status}
	}

	outcome.Success = true
	outcome.Message = "Payment verified successfully"
	return outcome, nil
}

// ParseCallback reads the oid/amt/refId query the legacy gateway appends to su.
func (p *LegacyProtocol) ParseCallback(query url.Values) (*models.Callback, error) {
	var missing []string
	for _, name := range []string{"oid", "amt", "refId"} {
		if strings.TrimSpace(query.Get(name)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}

	amount, err := parseAmount("amt", query.Get("amt"))
	if err != nil {
		return nil, err
	}

	return &models.Callback{
		TransactionID: query.Get("oid"),
		TotalAmount:   amount,
		RefID:         query.Get("refId"),
	}, nil
}
