package x402

import (
	"context"
	"sync"
)

// Facilitator routes verify/settle requests to the scheme mechanism
// registered for the payload's (scheme, network) pair.
type Facilitator struct {
	mu      sync.RWMutex
	schemes map[Network]map[string]SchemeNetworkFacilitator
	extras  map[Network]map[string]interface{}
}

// NewFacilitator creates an empty facilitator registry.
func NewFacilitator() *Facilitator {
	return &Facilitator{
		schemes: make(map[Network]map[string]SchemeNetworkFacilitator),
		extras:  make(map[Network]map[string]interface{}),
	}
}

// Register adds a mechanism for a network (exact or wildcard, e.g. "eip155:*").
func (f *Facilitator) Register(network Network, facilitator SchemeNetworkFacilitator, extra ...interface{}) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.schemes[network] == nil {
		f.schemes[network] = make(map[string]SchemeNetworkFacilitator)
	}
	f.schemes[network][facilitator.Scheme()] = facilitator

	if len(extra) > 0 {
		if f.extras[network] == nil {
			f.extras[network] = make(map[string]interface{})
		}
		f.extras[network][facilitator.Scheme()] = extra[0]
	}
	return f
}

// Verify routes a verification request to the matching mechanism.
// An unroutable payload yields an invalid result, not an error.
func (f *Facilitator) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error) {
	if payload.X402Version != 1 && payload.X402Version != 2 {
		return &VerifyResponse{IsValid: false, InvalidReason: ReasonInvalidX402Version}, nil
	}

	mechanism := f.find(payload.SchemeID(), requirements.Network)
	if mechanism == nil {
		return &VerifyResponse{IsValid: false, InvalidReason: ReasonUnsupportedScheme}, nil
	}
	return mechanism.Verify(ctx, payload, requirements)
}

// Settle routes a settlement request to the matching mechanism.
func (f *Facilitator) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error) {
	mechanism := f.find(payload.SchemeID(), requirements.Network)
	if mechanism == nil {
		return &SettleResponse{
			Success:     false,
			ErrorReason: ReasonUnsupportedScheme,
			Network:     requirements.Network,
		}, nil
	}
	return mechanism.Settle(ctx, payload, requirements)
}

// Supported lists every (scheme, network) kind the registry can handle.
func (f *Facilitator) Supported(ctx context.Context) (*SupportedResponse, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	resp := &SupportedResponse{Kinds: []SupportedKind{}}
	for network, schemeMap := range f.schemes {
		for scheme, mechanism := range schemeMap {
			extra := mechanism.GetExtra(network)
			if registered, ok := f.extras[network][scheme].(map[string]interface{}); ok {
				extra = registered
			}
			resp.Kinds = append(resp.Kinds, SupportedKind{
				X402Version: 2,
				Scheme:      scheme,
				Network:     network,
				Extra:       extra,
			})
		}
	}
	return resp, nil
}

// find locates a mechanism for a scheme/network pair, trying an exact network
// match before wildcard patterns.
func (f *Facilitator) find(scheme string, network Network) SchemeNetworkFacilitator {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if schemeMap, exists := f.schemes[network]; exists {
		if mechanism, exists := schemeMap[scheme]; exists {
			return mechanism
		}
	}

	for registered, schemeMap := range f.schemes {
		if network.Match(registered) || registered.Match(network) {
			if mechanism, exists := schemeMap[scheme]; exists {
				return mechanism
			}
		}
	}

	return nil
}
