package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodePaymentPayload serializes a payment payload to the base64(JSON)
// wire form carried in the X-PAYMENT / payment-signature headers.
func EncodePaymentPayload(p PaymentPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentPayload decodes the base64(JSON) wire form of a payment
// payload. V1 payloads that carry scheme/network at the top level are
// normalized into the Accepted block.
func DecodePaymentPayload(encoded string) (PaymentPayload, error) {
	var payload PaymentPayload
	if encoded == "" {
		return payload, fmt.Errorf("empty payment header")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return payload, fmt.Errorf("invalid base64 payment header: %w", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("invalid payment payload JSON: %w", err)
	}

	if payload.Accepted.Scheme == "" && payload.Scheme != "" {
		payload.Accepted.Scheme = payload.Scheme
	}
	if payload.Accepted.Network == "" && payload.Network != "" {
		payload.Accepted.Network = payload.Network
	}

	return payload, nil
}

// EncodePaymentRequired serializes a 402 response body / payment-required
// header to base64(JSON).
func EncodePaymentRequired(r PaymentRequired) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment required: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentRequired decodes a base64(JSON) payment-required header.
func DecodePaymentRequired(encoded string) (PaymentRequired, error) {
	var required PaymentRequired
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return required, fmt.Errorf("invalid base64 payment-required header: %w", err)
	}
	if err := json.Unmarshal(data, &required); err != nil {
		return required, fmt.Errorf("invalid payment-required JSON: %w", err)
	}
	return required, nil
}

// EncodeSettleResponse serializes a settlement result for the
// X-PAYMENT-RESPONSE header.
func EncodeSettleResponse(r SettleResponse) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settle response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettleResponse decodes the X-PAYMENT-RESPONSE header back into a
// settlement result.
func DecodeSettleResponse(encoded string) (SettleResponse, error) {
	var resp SettleResponse
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return resp, fmt.Errorf("invalid base64 payment response header: %w", err)
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("invalid payment response JSON: %w", err)
	}
	return resp, nil
}
