package x402

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// Client manages client-side payment mechanisms and turns 402 responses into
// signed payment payloads.
type Client struct {
	mu sync.RWMutex

	// version -> network -> scheme -> mechanism
	schemes map[int]map[Network]map[string]SchemeNetworkClient

	selector PaymentRequirementsSelector
}

// PaymentRequirementsSelector chooses which payment option to use when a 402
// response offers several.
type PaymentRequirementsSelector func(version int, requirements []PaymentRequirements) PaymentRequirements

// ClientOption configures the client.
type ClientOption func(*Client)

// WithPaymentSelector sets a custom payment requirements selector.
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *Client) { c.selector = selector }
}

// NewClient creates a payment client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		schemes:  make(map[int]map[Network]map[string]SchemeNetworkClient),
		selector: defaultPaymentSelector,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// defaultPaymentSelector chooses the first available payment option.
func defaultPaymentSelector(version int, requirements []PaymentRequirements) PaymentRequirements {
	return requirements[0]
}

// NewFilteringSelector builds a selector restricted to a scheme and network
// pattern with an optional atomic-unit ceiling. Entries exceeding maxValue
// are skipped; when nothing qualifies the first offered entry wins so the
// caller still gets a deterministic answer.
func NewFilteringSelector(scheme string, network Network, maxValue *big.Int) PaymentRequirementsSelector {
	return func(version int, requirements []PaymentRequirements) PaymentRequirements {
		for _, req := range requirements {
			if scheme != "" && req.Scheme != scheme {
				continue
			}
			if network != "" && !req.Network.Match(network) {
				continue
			}
			if maxValue != nil {
				amount, err := req.AtomicAmount()
				if err != nil || amount.Cmp(maxValue) > 0 {
					continue
				}
			}
			return req
		}
		return requirements[0]
	}
}

// RegisterScheme registers a payment mechanism for protocol v2.
func (c *Client) RegisterScheme(network Network, client SchemeNetworkClient) *Client {
	return c.registerScheme(ProtocolVersion, network, client)
}

// RegisterSchemeV1 registers a payment mechanism for protocol v1.
func (c *Client) RegisterSchemeV1(network Network, client SchemeNetworkClient) *Client {
	return c.registerScheme(ProtocolVersionV1, network, client)
}

func (c *Client) registerScheme(version int, network Network, client SchemeNetworkClient) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemes[version] == nil {
		c.schemes[version] = make(map[Network]map[string]SchemeNetworkClient)
	}
	if c.schemes[version][network] == nil {
		c.schemes[version][network] = make(map[string]SchemeNetworkClient)
	}
	c.schemes[version][network][client.Scheme()] = client
	return c
}

// SelectPaymentRequirements filters the offered requirements to those a
// registered mechanism can fulfill, then applies the selector.
func (c *Client) SelectPaymentRequirements(version int, requirements []PaymentRequirements) (PaymentRequirements, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versionSchemes, exists := c.schemes[version]
	if !exists {
		return PaymentRequirements{}, fmt.Errorf("no schemes registered for x402 version %d", version)
	}

	var supported []PaymentRequirements
	for _, req := range requirements {
		if c.findMechanism(versionSchemes, req.Scheme, req.Network) != nil {
			supported = append(supported, req)
		}
	}
	if len(supported) == 0 {
		return PaymentRequirements{}, fmt.Errorf("no supported payment schemes available")
	}

	return c.selector(version, supported), nil
}

// CreatePaymentPayload creates a signed payment payload for the selected
// requirements. V2 payloads carry the accepted block and resource info; V1
// payloads stay minimal.
func (c *Client) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirements PaymentRequirements,
	resource *ResourceInfo,
) (PaymentPayload, error) {
	if err := ValidatePaymentRequirements(requirements); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment requirements: %w", err)
	}

	c.mu.RLock()
	versionSchemes, exists := c.schemes[version]
	var mechanism SchemeNetworkClient
	if exists {
		mechanism = c.findMechanism(versionSchemes, requirements.Scheme, requirements.Network)
	}
	c.mu.RUnlock()

	if mechanism == nil {
		return PaymentPayload{}, fmt.Errorf(
			"no client registered for scheme %s on network %s for version %d",
			requirements.Scheme, requirements.Network, version,
		)
	}

	partial, err := mechanism.CreatePaymentPayload(ctx, version, requirements)
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("failed to create payment payload: %w", err)
	}

	full := PaymentPayload{
		X402Version: partial.X402Version,
		Payload:     partial.Payload,
		Accepted:    requirements,
	}
	if partial.X402Version >= ProtocolVersion {
		full.Resource = resource
	}

	if err := ValidatePaymentPayload(full); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment payload created: %w", err)
	}
	return full, nil
}

// CreatePaymentForRequired creates a payment for a 402 PaymentRequired
// response, selecting among its accepts entries.
func (c *Client) CreatePaymentForRequired(ctx context.Context, required PaymentRequired) (PaymentPayload, error) {
	selected, err := c.SelectPaymentRequirements(required.X402Version, required.Accepts)
	if err != nil {
		return PaymentPayload{}, err
	}
	return c.CreatePaymentPayload(ctx, required.X402Version, selected, required.Resource)
}

// findMechanism locates a client mechanism, trying an exact network match
// before wildcard patterns.
func (c *Client) findMechanism(
	versionSchemes map[Network]map[string]SchemeNetworkClient,
	scheme string,
	network Network,
) SchemeNetworkClient {
	if schemeMap, exists := versionSchemes[network]; exists {
		if mechanism, exists := schemeMap[scheme]; exists {
			return mechanism
		}
	}
	for registered, schemeMap := range versionSchemes {
		if network.Match(registered) || registered.Match(network) {
			if mechanism, exists := schemeMap[scheme]; exists {
				return mechanism
			}
		}
	}
	return nil
}
