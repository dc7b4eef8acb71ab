package x402

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	// ProtocolVersion is the current x402 protocol version
	ProtocolVersion = 2

	// ProtocolVersionV1 is the legacy x402 protocol version
	ProtocolVersionV1 = 1
)

// Network represents a blockchain network identifier in CAIP-2 format
// Format: namespace:reference (e.g., "eip155:56" for BNB Smart Chain)
type Network string

// Parse splits the network into namespace and reference components
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match checks if this network matches a pattern (supports wildcards)
// e.g., "eip155:56" matches "eip155:*" and "eip155:*" matches "eip155:56"
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}

	nStr := string(n)
	patternStr := string(pattern)

	if strings.HasSuffix(patternStr, ":*") {
		prefix := strings.TrimSuffix(patternStr, "*")
		return strings.HasPrefix(nStr, prefix)
	}

	// Bidirectional matching: n may itself be the pattern
	if strings.HasSuffix(nStr, ":*") {
		prefix := strings.TrimSuffix(nStr, "*")
		return strings.HasPrefix(patternStr, prefix)
	}

	return false
}

// PaymentRequirements defines what payment is acceptable for a resource.
//
// The amount can be given either directly in atomic units (Amount) or as a
// human-readable amount plus token decimals (AmountRequired + TokenDecimals).
// AtomicAmount resolves whichever form is present.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	NetworkID         string                 `json:"networkId,omitempty"`
	Asset             string                 `json:"asset"`
	PayTo             string                 `json:"payTo"`
	Amount            string                 `json:"amount,omitempty"`
	AmountRequired    string                 `json:"amountRequired,omitempty"`
	TokenDecimals     int                    `json:"tokenDecimals,omitempty"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Resource          string                 `json:"resource,omitempty"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`

	// V1 compatibility field; holds atomic units like Amount
	MaxAmountRequired string `json:"maxAmountRequired,omitempty"`
}

// AtomicAmount returns the required amount in atomic units.
// Amount (or the legacy MaxAmountRequired) takes precedence; otherwise
// AmountRequired is scaled by 10^TokenDecimals.
func (r PaymentRequirements) AtomicAmount() (*big.Int, error) {
	raw := r.Amount
	if raw == "" {
		raw = r.MaxAmountRequired
	}
	if raw != "" {
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount: %s", raw)
		}
		return v, nil
	}

	if r.AmountRequired == "" {
		return nil, fmt.Errorf("payment requirements carry no amount")
	}
	human, ok := new(big.Float).SetPrec(256).SetString(r.AmountRequired)
	if !ok {
		return nil, fmt.Errorf("invalid amountRequired: %s", r.AmountRequired)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(r.TokenDecimals)), nil)
	scaled := new(big.Float).Mul(human, new(big.Float).SetPrec(256).SetInt(scale))
	v, _ := scaled.Int(nil)
	return v, nil
}

// ResourceInfo describes the resource being accessed
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentPayload contains the signed payment authorization from a client.
//
// V2 payloads carry scheme/network inside Accepted; V1 payloads carry them at
// the top level. DecodePaymentPayload normalizes V1 headers into Accepted so
// downstream code reads one place.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirements    `json:"accepted,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`

	// V1 compatibility: scheme/network at top level
	Scheme  string  `json:"scheme,omitempty"`
	Network Network `json:"network,omitempty"`
}

// SchemeID returns the payload's scheme, preferring the V2 accepted block.
func (p PaymentPayload) SchemeID() string {
	if p.Accepted.Scheme != "" {
		return p.Accepted.Scheme
	}
	return p.Scheme
}

// NetworkID returns the payload's network, preferring the V2 accepted block.
func (p PaymentPayload) NetworkID() Network {
	if p.Accepted.Network != "" {
		return p.Accepted.Network
	}
	return p.Network
}

// PartialPaymentPayload is what a mechanism-specific client produces; the
// x402Client wraps it with the accepted requirements and resource info.
type PartialPaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
}

// PaymentRequired is the 402 response sent to clients
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Resource    *ResourceInfo         `json:"resource,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// VerifyRequest contains the payment to verify
type VerifyRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse contains the verification result
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleRequest contains the payment to settle
type SettleRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// SettleResponse contains the settlement result
type SettleResponse struct {
	Success      bool    `json:"success"`
	ErrorReason  string  `json:"errorReason,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	Payer        string  `json:"payer,omitempty"`
	Transaction  string  `json:"transaction"`
	Network      Network `json:"network"`
}

// SupportedKind represents a single supported payment configuration
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse describes what payment kinds a facilitator supports
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
