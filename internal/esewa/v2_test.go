package esewa

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/esewa-gateway/internal/config"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
	"github.com/akylbek/payment-system/esewa-gateway/internal/signer"
)

const testSecret = "8gBm/:&EnhH.1/q"

func testV2Config(verificationURL string) config.EsewaConfig {
	return config.EsewaConfig{
		Protocol:         config.ProtocolV2,
		ProductCode:      "EPAYTEST",
		SecretKey:        testSecret,
		PaymentURL:       "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
		VerificationURL:  verificationURL,
		SuccessURL:       "https://merchant.example/success",
		FailureURL:       "https://merchant.example/failure",
		SignedFieldNames: "total_amount,transaction_uuid,product_code",
		VerifyTimeout:    time.Second,
	}
}

func newTestV2(verificationURL string) *V2Protocol {
	cfg := testV2Config(verificationURL)
	return NewV2Protocol(cfg, NewStatusClient("test-v2", cfg.VerifyTimeout, zap.NewNop()))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestV2Protocol_Initiate(t *testing.T) {
	p := newTestV2("http://unused")

	txn, fields, err := p.Initiate(context.Background(), models.TransactionRequest{
		Amount:    dec("100.00"),
		TaxAmount: dec("13.00"),
		ProductID: "P1",
	})
	require.NoError(t, err)

	require.Equal(t, "113.00", fields["total_amount"])
	require.Equal(t, "100.00", fields["amount"])
	require.Equal(t, "13.00", fields["tax_amount"])
	require.Equal(t, "0.00", fields["product_service_charge"])
	require.Equal(t, "0.00", fields["product_delivery_charge"])
	require.Equal(t, "EPAYTEST", fields["product_code"])
	require.Equal(t, "https://merchant.example/success", fields["success_url"])
	require.Equal(t, "https://merchant.example/failure", fields["failure_url"])
	require.Equal(t, "total_amount,transaction_uuid,product_code", fields["signed_field_names"])
	require.Equal(t, txn.ID, fields["transaction_uuid"])
	require.Regexp(t, hexID, txn.ID)
	require.Len(t, fields, 11)

	raw, err := base64.StdEncoding.DecodeString(fields["signature"])
	require.NoError(t, err)
	require.Len(t, raw, 32)

	message, err := signer.Message(signer.ParseFieldNames(fields["signed_field_names"]), fields)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("total_amount=113.00,transaction_uuid=%s,product_code=EPAYTEST", txn.ID), message)

	expected, err := signer.Sign(message, []byte(testSecret))
	require.NoError(t, err)
	require.Equal(t, expected, fields["signature"])
	require.Equal(t, expected, txn.Signature)
	require.True(t, txn.TotalAmount.Equal(dec("113")))
	require.Equal(t, models.TransactionInitiated, txn.Status)
}

func TestV2Protocol_Initiate_TotalIsSumOfComponents(t *testing.T) {
	p := newTestV2("http://unused")

	var tests = []struct {
		amount, tax, service, delivery, total string
	}{
		{"100.00", "13.00", "0", "0", "113.00"},
		{"0.01", "0.02", "0.03", "0.04", "0.10"},
		{"999999.99", "0.01", "10.50", "5.25", "1000015.75"},
		{"10.10", "0.20", "0.30", "0.40", "11.00"},
		{"0.005", "0.005", "0", "0", "0.02"},
		{"10.004", "1.004", "0.004", "0.004", "11.00"},
		{"1.115", "2.225", "0.335", "0.445", "4.14"},
	}

	for _, tt := range tests {
		txn, fields, err := p.Initiate(context.Background(), models.TransactionRequest{
			Amount:         dec(tt.amount),
			TaxAmount:      dec(tt.tax),
			ServiceCharge:  dec(tt.service),
			DeliveryCharge: dec(tt.delivery),
			ProductID:      "P1",
		})
		require.NoError(t, err)
		require.Equal(t, tt.total, fields["total_amount"])
		require.Equal(t, tt.total, signer.FormatAmount(txn.TotalAmount))

		sum := decimal.Zero
		for _, name := range []string{"amount", "tax_amount", "product_service_charge", "product_delivery_charge"} {
			sum = sum.Add(dec(fields[name]))
		}
		require.Equal(t, fields["total_amount"], signer.FormatAmount(sum), "form components must add up to total_amount")
	}
}

func TestV2Protocol_Initiate_UniqueIDs(t *testing.T) {
	p := newTestV2("http://unused")
	req := models.TransactionRequest{Amount: dec("10"), ProductID: "P1"}

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		txn, _, err := p.Initiate(context.Background(), req)
		require.NoError(t, err)
		_, dup := seen[txn.ID]
		require.False(t, dup, "transaction id reused: %s", txn.ID)
		seen[txn.ID] = struct{}{}
	}
}

func TestV2Protocol_Initiate_Errors(t *testing.T) {
	var tests = []struct {
		name           string
		req            models.TransactionRequest
		mutate         func(c *config.EsewaConfig)
		expectedKind   string
		expectedFields []string
	}{
		{
			name:           "missing product",
			req:            models.TransactionRequest{Amount: dec("10")},
			expectedKind:   KindValidation,
			expectedFields: []string{"product_id"},
		},
		{
			name:           "negative components",
			req:            models.TransactionRequest{Amount: dec("10"), TaxAmount: dec("-1"), DeliveryCharge: dec("-0.01"), ProductID: "P1"},
			expectedKind:   KindValidation,
			expectedFields: []string{"tax_amount", "delivery_charge"},
		},
		{
			name:           "zero amount",
			req:            models.TransactionRequest{ProductID: "P1"},
			expectedKind:   KindValidation,
			expectedFields: []string{"amount"},
		},
		{
			name:         "missing secret",
			req:          models.TransactionRequest{Amount: dec("10"), ProductID: "P1"},
			mutate:       func(c *config.EsewaConfig) { c.SecretKey = "" },
			expectedKind: KindConfiguration,
		},
		{
			name:         "signed field without value",
			req:          models.TransactionRequest{Amount: dec("10"), ProductID: "P1"},
			mutate:       func(c *config.EsewaConfig) { c.SignedFieldNames = "total_amount,merchant_secret" },
			expectedKind: KindConfiguration,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testV2Config("http://unused")
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			p := NewV2Protocol(cfg, nil)

			txn, fields, err := p.Initiate(context.Background(), tt.req)
			require.Error(t, err)
			require.Nil(t, txn)
			require.Nil(t, fields)
			require.Equal(t, tt.expectedKind, KindOf(err))

			if tt.expectedFields != nil {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				require.Equal(t, tt.expectedFields, vErr.Fields)
			}
		})
	}
}

func TestV2Protocol_Verify(t *testing.T) {
	var tests = []struct {
		name            string
		code            int
		body            string
		expectedSuccess bool
		expectedStatus  string
		expectedKind    string
		expectedRefID   string
	}{
		{
			name:            "complete",
			code:            http.StatusOK,
			body:            `{"status":"COMPLETE","transaction_uuid":"abc123"}`,
			expectedSuccess: true,
			expectedStatus:  StatusComplete,
		},
		{
			name:            "complete with ref id and amount",
			code:            http.StatusOK,
			body:            `{"product_code":"EPAYTEST","transaction_uuid":"abc123","total_amount":113.0,"status":"COMPLETE","ref_id":"0001TS9"}`,
			expectedSuccess: true,
			expectedStatus:  StatusComplete,
			expectedRefID:   "0001TS9",
		},
		{
			name:           "pending",
			code:           http.StatusOK,
			body:           `{"status":"PENDING","transaction_uuid":"abc123","ref_id":null}`,
			expectedStatus: StatusPending,
			expectedKind:   KindReconciliation,
		},
		{
			name:           "unrecognized status",
			code:           http.StatusOK,
			body:           `{"status":"SETTLED_MAYBE","transaction_uuid":"abc123"}`,
			expectedStatus: StatusUnknown,
			expectedKind:   KindReconciliation,
		},
		{
			name:            "lowercase complete is normalized",
			code:            http.StatusOK,
			body:            `{"status":"complete","transaction_uuid":"abc123"}`,
			expectedSuccess: true,
			expectedStatus:  StatusComplete,
		},
		{
			name:           "server error",
			code:           http.StatusInternalServerError,
			body:           `upstream exploded`,
			expectedStatus: StatusFailed,
			expectedKind:   KindTransport,
		},
		{
			name:           "empty server error",
			code:           http.StatusInternalServerError,
			body:           ``,
			expectedStatus: StatusFailed,
			expectedKind:   KindTransport,
		},
		{
			name:           "bad request",
			code:           http.StatusBadRequest,
			body:           `{"code":0,"error_message":"Invalid payload signature."}`,
			expectedStatus: StatusFailed,
			expectedKind:   KindTransport,
		},
		{
			name:           "malformed body",
			code:           http.StatusOK,
			body:           `{"status":`,
			expectedStatus: StatusError,
			expectedKind:   KindParse,
		},
		{
			name:           "missing status",
			code:           http.StatusOK,
			body:           `{"transaction_uuid":"abc123"}`,
			expectedStatus: StatusError,
			expectedKind:   KindParse,
		},
		{
			name:           "other transaction",
			code:           http.StatusOK,
			body:           `{"status":"COMPLETE","transaction_uuid":"zzz999"}`,
			expectedStatus: StatusMismatch,
			expectedKind:   KindReconciliation,
		},
		{
			name:           "other amount",
			code:           http.StatusOK,
			body:           `{"status":"COMPLETE","transaction_uuid":"abc123","total_amount":"1.00"}`,
			expectedStatus: StatusMismatch,
			expectedKind:   KindReconciliation,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var query url.Values
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				query = r.URL.Query()
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := newTestV2(srv.URL)
			outcome, err := p.Verify(context.Background(), models.VerificationRequest{
				TransactionID: "abc123",
				TotalAmount:   dec("113.00"),
			})

			require.NotNil(t, outcome)
			require.Equal(t, tt.expectedSuccess, outcome.Success)
			require.Equal(t, tt.expectedStatus, outcome.Status)
			require.Equal(t, tt.body, outcome.RawResponse)
			require.Equal(t, tt.expectedRefID, outcome.RefID)
			require.True(t, outcome.Amount.Equal(dec("113")))
			require.Equal(t, tt.expectedKind, KindOf(err))

			require.Equal(t, "EPAYTEST", query.Get("product_code"))
			require.Equal(t, "113.00", query.Get("total_amount"))
			require.Equal(t, "abc123", query.Get("transaction_uuid"))
		})
	}
}

func TestV2Protocol_Verify_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte(`{"status":"COMPLETE"}`))
	}))
	defer srv.Close()
	defer close(release)

	cfg := testV2Config(srv.URL)
	cfg.VerifyTimeout = 50 * time.Millisecond
	p := NewV2Protocol(cfg, NewStatusClient("test-timeout", cfg.VerifyTimeout, zap.NewNop()))

	outcome, err := p.Verify(context.Background(), models.VerificationRequest{TransactionID: "abc123", TotalAmount: dec("1")})
	require.Error(t, err)
	require.Equal(t, KindTransport, KindOf(err))
	require.False(t, outcome.Success)
	require.Equal(t, StatusFailed, outcome.Status)
}

func TestV2Protocol_Verify_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	outcome, err := newTestV2(endpoint).Verify(context.Background(), models.VerificationRequest{TransactionID: "abc123", TotalAmount: dec("1")})
	require.Equal(t, KindTransport, KindOf(err))
	require.False(t, outcome.Success)
	require.Equal(t, StatusFailed, outcome.Status)
	require.Empty(t, outcome.RawResponse)
}

func signedCallback(t *testing.T, secret string, txnID, amountLiteral string) string {
	t.Helper()
	names := "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names"
	values := map[string]string{
		"transaction_code":   "000AWEO",
		"status":             "COMPLETE",
		"total_amount":       amountLiteral,
		"transaction_uuid":   txnID,
		"product_code":       "EPAYTEST",
		"signed_field_names": names,
	}
	message, err := signer.Message(signer.ParseFieldNames(names), values)
	require.NoError(t, err)
	signature, err := signer.Sign(message, []byte(secret))
	require.NoError(t, err)

	payload := fmt.Sprintf(`{"transaction_code":"000AWEO","status":"COMPLETE","total_amount":%s,"transaction_uuid":"%s","product_code":"EPAYTEST","signed_field_names":"%s","signature":"%s"}`,
		amountLiteral, txnID, names, signature)
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestV2Protocol_ParseCallback(t *testing.T) {
	p := newTestV2("http://unused")

	t.Run("valid", func(t *testing.T) {
		data := signedCallback(t, testSecret, "abc123", "1000.0")
		cb, err := p.ParseCallback(url.Values{"data": {data}})
		require.NoError(t, err)
		require.Equal(t, "abc123", cb.TransactionID)
		require.Equal(t, "000AWEO", cb.RefID)
		require.Equal(t, "COMPLETE", cb.Status)
		require.Equal(t, "EPAYTEST", cb.ProductCode)
		require.True(t, cb.TotalAmount.Equal(dec("1000")))
	})

	t.Run("plus decoded as space", func(t *testing.T) {
		data := signedCallback(t, testSecret, "abc123", "1000.0")
		cb, err := p.ParseCallback(url.Values{"data": {regexp.MustCompile(`\+`).ReplaceAllString(data, " ")}})
		require.NoError(t, err)
		require.Equal(t, "abc123", cb.TransactionID)
	})

	t.Run("wrong secret", func(t *testing.T) {
		data := signedCallback(t, "someone-else", "abc123", "1000.0")
		_, err := p.ParseCallback(url.Values{"data": {data}})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Equal(t, []string{"signature"}, vErr.Fields)
	})

	t.Run("missing data", func(t *testing.T) {
		_, err := p.ParseCallback(url.Values{})
		require.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := p.ParseCallback(url.Values{"data": {"%%%not-base64"}})
		require.Equal(t, KindValidation, KindOf(err))
	})
}
