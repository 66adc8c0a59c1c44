package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrEmptySecretKey = errors.New("signer: secret key is empty")

// DefaultSignedFieldNames is the field order eSewa v2 recomputes the signature over.
var DefaultSignedFieldNames = []string{"total_amount", "transaction_uuid", "product_code"}

// FormatAmount renders an amount the way the gateway expects it on the wire:
// exactly two decimals, no grouping, no currency symbol.
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// Message builds the canonical "name=value,name=value" string in the given order.
func Message(names []string, values map[string]string) (string, error) {
	if len(names) == 0 {
		return "", errors.New("signer: no signed field names")
	}

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		value, ok := values[name]
		if !ok {
			return "", fmt.Errorf("signer: no value for signed field %q", name)
		}
		pairs = append(pairs, name+"="+value)
	}

	return strings.Join(pairs, ","), nil
}

// Sign returns base64(HMAC-SHA256(secretKey, message)).
func Sign(message string, secretKey []byte) (string, error) {
	if len(secretKey) == 0 {
		return "", ErrEmptySecretKey
	}

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(message))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature for message and compares it in constant time.
func Verify(message string, secretKey []byte, signature string) bool {
	expected, err := Sign(message, secretKey)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseFieldNames splits a "a,b,c" signed_field_names value.
func ParseFieldNames(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
