package signer

import (
	"encoding/base64"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	var tests = []struct {
		name        string
		message     string
		key         string
		expected    string
		expectedErr error
	}{
		{
			name:     "rfc4231 case 2",
			message:  "what do ya want for nothing?",
			key:      "Jefe",
			expected: "W9zBRr9gdU5qBCQmCJV1x1oAPwidJzmDnexYuWTsOEM=",
		},
		{
			name:     "esewa sandbox key",
			message:  "total_amount=113.00,transaction_uuid=abc123,product_code=EPAYTEST",
			key:      "8gBm/:&EnhH.1/q",
			expected: "p1DrkRh3+viDMWnJgocNioB6K9Od/xtmVt1dKJ+Cu9o=",
		},
		{
			name:        "empty key",
			message:     "total_amount=1.00",
			key:         "",
			expectedErr: ErrEmptySecretKey,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sig, err := Sign(tt.message, []byte(tt.key))
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, sig)

			again, err := Sign(tt.message, []byte(tt.key))
			require.NoError(t, err)
			require.Equal(t, sig, again)

			raw, err := base64.StdEncoding.DecodeString(sig)
			require.NoError(t, err)
			require.Len(t, raw, 32)
		})
	}
}

func TestMessage(t *testing.T) {
	values := map[string]string{
		"total_amount":     "113.00",
		"transaction_uuid": "abc123",
		"product_code":     "EPAYTEST",
	}

	msg, err := Message(DefaultSignedFieldNames, values)
	require.NoError(t, err)
	require.Equal(t, "total_amount=113.00,transaction_uuid=abc123,product_code=EPAYTEST", msg)

	msg, err = Message([]string{"product_code", "total_amount"}, values)
	require.NoError(t, err)
	require.Equal(t, "product_code=EPAYTEST,total_amount=113.00", msg)

	_, err = Message([]string{"total_amount", "missing"}, values)
	require.Error(t, err)

	_, err = Message(nil, values)
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	key := []byte("8gBm/:&EnhH.1/q")
	msg := "total_amount=113.00,transaction_uuid=abc123,product_code=EPAYTEST"

	require.True(t, Verify(msg, key, "p1DrkRh3+viDMWnJgocNioB6K9Od/xtmVt1dKJ+Cu9o="))
	require.False(t, Verify(msg, key, "p1DrkRh3+viDMWnJgocNioB6K9Od/xtmVt1dKJ+Cu9p="))
	require.False(t, Verify(msg, nil, "p1DrkRh3+viDMWnJgocNioB6K9Od/xtmVt1dKJ+Cu9o="))
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "113.00", FormatAmount(decimal.RequireFromString("113")))
	require.Equal(t, "0.00", FormatAmount(decimal.Zero))
	require.Equal(t, "1000000.50", FormatAmount(decimal.RequireFromString("1000000.5")))
	require.Equal(t, "10.13", FormatAmount(decimal.RequireFromString("10.125")))
}

func TestParseFieldNames(t *testing.T) {
	require.Equal(t, []string{"total_amount", "transaction_uuid", "product_code"},
		ParseFieldNames("total_amount, transaction_uuid,product_code,"))
	require.Nil(t, ParseFieldNames(""))
}
