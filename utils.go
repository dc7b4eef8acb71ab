package x402

import "fmt"

// ValidatePaymentPayload performs basic structural validation on a payment payload
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.X402Version < 1 || p.X402Version > 2 {
		return fmt.Errorf("unsupported x402 version: %d", p.X402Version)
	}
	if p.SchemeID() == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if p.NetworkID() == "" {
		return fmt.Errorf("payment network is required")
	}
	if p.Payload == nil {
		return fmt.Errorf("payment payload is required")
	}
	return nil
}

// ValidatePaymentRequirements performs basic structural validation on payment requirements
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	if _, err := r.AtomicAmount(); err != nil {
		return err
	}
	return nil
}

// MatchRequirements returns the requirement in accepts whose scheme, network
// and networkId equal the payload's accepted entry, or nil when none match.
// The middleware relies on this to re-select the requirement it advertised.
func MatchRequirements(accepts []PaymentRequirements, payload PaymentPayload) *PaymentRequirements {
	for i := range accepts {
		r := &accepts[i]
		if r.Scheme != payload.SchemeID() {
			continue
		}
		if r.Network != payload.NetworkID() {
			continue
		}
		if r.NetworkID != "" && payload.Accepted.NetworkID != "" && r.NetworkID != payload.Accepted.NetworkID {
			continue
		}
		return r
	}
	return nil
}
