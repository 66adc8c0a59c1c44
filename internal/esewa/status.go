package esewa

import "strings"

// Closed status vocabulary of a VerificationOutcome. The first group mirrors
// the v2 status API; the rest are local markers.
const (
	StatusComplete      = "COMPLETE"
	StatusPending       = "PENDING"
	StatusFullRefund    = "FULL_REFUND"
	StatusPartialRefund = "PARTIAL_REFUND"
	StatusAmbiguous     = "AMBIGUOUS"
	StatusNotFound      = "NOT_FOUND"
	StatusCanceled      = "CANCELED"

	StatusFailed   = "FAILED"
	StatusError    = "ERROR"
	StatusUnknown  = "UNKNOWN"
	StatusMismatch = "MISMATCH"
)

var gatewayStatuses = map[string]struct{}{
	StatusComplete:      {},
	StatusPending:       {},
	StatusFullRefund:    {},
	StatusPartialRefund: {},
	StatusAmbiguous:     {},
	StatusNotFound:      {},
	StatusCanceled:      {},
}

// normalizeStatus maps a v2 status field onto the vocabulary; anything not
// recognized becomes UNKNOWN, never COMPLETE.
func normalizeStatus(raw string) string {
	status := strings.ToUpper(strings.TrimSpace(raw))
	if _, ok := gatewayStatuses[status]; ok {
		return status
	}
	return StatusUnknown
}

// legacyStatus maps the transrec response_code.
func legacyStatus(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "success":
		return StatusComplete
	case "failure":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

func isSettled(status string) bool {
	return status == StatusComplete
}
