package facilitator

import (
	"regexp"
	"strings"

	x402 "github.com/aeon-xyz/x402-go"
	"github.com/aeon-xyz/x402-go/mechanisms/evm"
)

// The facilitator contract reverts with 4-byte custom errors. Both verify's
// gas simulation and settle's submission map them onto the protocol's closed
// reason taxonomy.
var revertSelectorReasons = map[string]string{
	evm.SelectorInsufficientAllowance: x402.ReasonInsufficientFunds,
	evm.SelectorInvalidOperator:       x402.ReasonInvalidSignature,
	evm.SelectorAuthNotYetValid:       x402.ReasonAuthValidAfter,
	evm.SelectorAuthExpired:           x402.ReasonAuthValidBefore,
	evm.SelectorNonceUsed:             x402.ReasonNonceUsed,
	evm.SelectorInvalidSignature:      x402.ReasonInvalidSignature,
}

var selectorPattern = regexp.MustCompile(`0x[0-9a-fA-F]{8}`)

// classifyRevert extracts a known 4-byte error selector from an RPC error and
// returns the mapped reason. The second result is false when the error does
// not carry a selector from the table.
func classifyRevert(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	for _, match := range selectorPattern.FindAllString(err.Error(), -1) {
		if reason, ok := revertSelectorReasons[strings.ToLower(match)]; ok {
			return reason, true
		}
	}
	return "", false
}

// Nonce-conflict classes for the sponsored submission retry loop.
type nonceConflict int

const (
	nonceConflictNone nonceConflict = iota
	nonceConflictTooLow
	nonceConflictTooHigh
	nonceConflictAlreadyUsed
	nonceConflictOther
)

// classifyNonceError buckets an RPC submission error by nonce-conflict class.
func classifyNonceError(err error) nonceConflict {
	if err == nil {
		return nonceConflictNone
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low"):
		return nonceConflictTooLow
	case strings.Contains(msg, "nonce too high"):
		return nonceConflictTooHigh
	case strings.Contains(msg, "already used") || strings.Contains(msg, "already known"):
		return nonceConflictAlreadyUsed
	case strings.Contains(msg, "nonce"):
		return nonceConflictOther
	default:
		return nonceConflictNone
	}
}

// isTimeoutError reports whether an error is a receipt-wait timeout whose
// message should be preserved verbatim so callers can still observe the hash.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded")
}
