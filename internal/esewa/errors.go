package esewa

import (
	"errors"
	"fmt"
	"strings"

	"github.com/akylbek/payment-system/esewa-gateway/internal/config"
)

// Error kinds carried on results so the HTTP layer can tell client-fixable
// failures from operator-fixable ones.
const (
	KindValidation     = "validation"
	KindConfiguration  = "configuration"
	KindTransport      = "transport"
	KindParse          = "parse"
	KindReconciliation = "reconciliation"
	KindPersistence    = "persistence"
	KindInternal       = "internal"
)

type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing or invalid"
	}
	return fmt.Sprintf("validation failed: %s: %s", strings.Join(e.Fields, ", "), reason)
}

type ConfigurationError = config.ConfigurationError

// TransportError covers network failures, timeouts, an open circuit and non-2xx answers.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway transport: HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("gateway response: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// ReconciliationMismatch is a legitimate negative outcome, not a fault: the
// gateway answered but the payment is not settled, or does not match our record.
type ReconciliationMismatch struct {
	Status string
	Reason string
}

func (e *ReconciliationMismatch) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("payment not settled: %s: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("payment not settled: %s", e.Status)
}

// PersistenceError wraps transaction store failures.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("transaction store: %v", e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

func KindOf(err error) string {
	var (
		validationErr     *ValidationError
		configurationErr  *ConfigurationError
		transportErr      *TransportError
		parseErr          *ParseError
		reconciliationErr *ReconciliationMismatch
		persistenceErr    *PersistenceError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &configurationErr):
		return KindConfiguration
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &reconciliationErr):
		return KindReconciliation
	case errors.As(err, &persistenceErr):
		return KindPersistence
	default:
		return KindInternal
	}
}
