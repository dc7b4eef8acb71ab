package x402

import "context"

// SchemeNetworkFacilitator is implemented by facilitator-side payment
// mechanisms. One instance serves every network it is registered for.
type SchemeNetworkFacilitator interface {
	Scheme() string

	// CaipFamily returns the CAIP family pattern this facilitator supports,
	// e.g. "eip155:*" for EVM mechanisms.
	CaipFamily() string

	// GetExtra returns mechanism-specific extra data for the supported kinds
	// endpoint, or nil when there is none.
	GetExtra(network Network) map[string]interface{}

	// GetSigners returns the signer addresses this facilitator settles from
	// on the given network. Multiple addresses support key rotation.
	GetSigners(network Network) []string

	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error)
}

// SchemeNetworkClient is implemented by client-side payment mechanisms. It
// produces the scheme-specific payload; the x402Client wraps it into a full
// PaymentPayload.
type SchemeNetworkClient interface {
	Scheme() string
	CreatePaymentPayload(ctx context.Context, version int, requirements PaymentRequirements) (PartialPaymentPayload, error)
}

// FacilitatorClient is the middleware's view of a facilitator, local or
// remote. pkg/facilitatorclient implements it over HTTP; the service package
// implements it in-process over the registry.
type FacilitatorClient interface {
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error)
	Supported(ctx context.Context) (*SupportedResponse, error)
}
