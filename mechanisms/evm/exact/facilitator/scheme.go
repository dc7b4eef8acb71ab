package facilitator

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	x402 "github.com/aeon-xyz/x402-go"
	"github.com/aeon-xyz/x402-go/mechanisms/evm"
	"github.com/aeon-xyz/x402-go/paymaster"
	"github.com/aeon-xyz/x402-go/scan"
)

// ExactEvmFacilitator implements the exact scheme for EVM networks. It owns
// the facilitator signer and probe cache for the lifetime of each
// verify/settle pair.
type ExactEvmFacilitator struct {
	signer             evm.FacilitatorSigner
	cache              *evm.ProbeCache
	sponsor            *paymaster.Client
	sink               *scan.Sink
	deployWithEIP6492  bool
	nonceRetryAttempts int
	facilitatorAddress string
	logger             *log.Logger
}

// Option configures an ExactEvmFacilitator.
type Option func(*ExactEvmFacilitator)

// WithPaymaster enables the sponsored/gasless settlement path.
func WithPaymaster(client *paymaster.Client) Option {
	return func(f *ExactEvmFacilitator) { f.sponsor = client }
}

// WithScanSink enables fire-and-forget settlement telemetry.
func WithScanSink(sink *scan.Sink) Option {
	return func(f *ExactEvmFacilitator) { f.sink = sink }
}

// WithERC4337Deployment enables smart wallet deployment from ERC-6492
// signatures before settlement.
func WithERC4337Deployment(enabled bool) Option {
	return func(f *ExactEvmFacilitator) { f.deployWithEIP6492 = enabled }
}

// WithFacilitatorAddress overrides the facilitator contract address.
func WithFacilitatorAddress(address string) Option {
	return func(f *ExactEvmFacilitator) { f.facilitatorAddress = address }
}

// WithNonceRetryAttempts overrides the sponsored-path nonce retry budget.
func WithNonceRetryAttempts(attempts int) Option {
	return func(f *ExactEvmFacilitator) { f.nonceRetryAttempts = attempts }
}

// WithLogger overrides the engine logger.
func WithLogger(logger *log.Logger) Option {
	return func(f *ExactEvmFacilitator) { f.logger = logger }
}

// NewExactEvmFacilitator creates the exact-EVM scheme engine.
func NewExactEvmFacilitator(signer evm.FacilitatorSigner, opts ...Option) *ExactEvmFacilitator {
	f := &ExactEvmFacilitator{
		signer:             signer,
		cache:              evm.NewProbeCache(),
		nonceRetryAttempts: evm.DefaultNonceRetryAttempts,
		facilitatorAddress: evm.FacilitatorContractAddress,
		logger:             log.New(os.Stderr, "[exact-evm] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Scheme returns the scheme identifier
func (f *ExactEvmFacilitator) Scheme() string {
	return evm.SchemeExact
}

// CaipFamily returns the CAIP family this mechanism serves.
func (f *ExactEvmFacilitator) CaipFamily() string {
	return "eip155:*"
}

// GetExtra returns supported-kind extra data; none for EVM.
func (f *ExactEvmFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	return nil
}

// GetSigners returns the facilitator signer addresses.
func (f *ExactEvmFacilitator) GetSigners(network x402.Network) []string {
	return f.signer.GetAddresses()
}

// verifyContext bundles the decoded inputs the checks share.
type verifyContext struct {
	payload        *evm.ExactPayload
	signature      []byte
	chainID        *big.Int
	requiredAmount *big.Int
	supports3009   bool
}

// Verify validates a payment payload against the requirements without
// mutating chain state. Checks run in a fixed order; the first failure wins.
func (f *ExactEvmFacilitator) Verify(
	ctx context.Context,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
) (*x402.VerifyResponse, error) {
	if requirements.MaxTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(requirements.MaxTimeoutSeconds)*time.Second)
		defer cancel()
	}

	// 1. Scheme and version guards
	if payload.X402Version != 1 && payload.X402Version != 2 {
		return invalid(x402.ReasonInvalidX402Version, ""), nil
	}
	if payload.SchemeID() != evm.SchemeExact || requirements.Scheme != evm.SchemeExact {
		return invalid(x402.ReasonUnsupportedScheme, ""), nil
	}

	// 2. Network match
	if payload.NetworkID() != requirements.Network {
		return invalid(x402.ReasonNetworkMismatch, ""), nil
	}

	evmPayload, err := evm.PayloadFromMap(payload.Payload)
	if err != nil {
		return invalid(x402.ReasonInvalidPayload, ""), nil
	}
	payer := evm.ChecksumAddress(evmPayload.Authorization.From)

	signature, err := evm.HexToBytes(evmPayload.Signature)
	if err != nil || len(signature) == 0 {
		return invalid(x402.ReasonInvalidSignature, payer), nil
	}

	requiredAmount, err := requirements.AtomicAmount()
	if err != nil {
		return invalid(x402.ReasonInvalidPayload, payer), nil
	}

	chainID := evm.ChainID(string(requirements.Network))

	vc := &verifyContext{
		payload:        evmPayload,
		signature:      signature,
		chainID:        chainID,
		requiredAmount: requiredAmount,
	}

	// 3. Capability probe: does the asset implement EIP-3009?
	supports3009, err := evm.SupportsEIP3009(ctx, f.signer, f.cache, chainID, requirements.Asset)
	if err != nil {
		return invalid(x402.ReasonUnexpectedVerifyError, payer), nil
	}
	vc.supports3009 = supports3009

	if supports3009 && !hasEIP712Domain(requirements) {
		return invalid(x402.ReasonMissingEIP712Domain, payer), nil
	}

	// 4. Authorization gas simulation against the facilitator contract
	if resp := f.simulateAuthorization(ctx, vc, requirements, payer); resp != nil {
		return resp, nil
	}

	// 6. Field-level semantic checks
	if resp := f.checkAuthorizationFields(ctx, vc, requirements, payer); resp != nil {
		return resp, nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// simulateAuthorization estimates gas for the settlement call and interprets
// failures. A revert carrying a known selector is terminal; anything else
// falls through to smart-wallet analysis (step 5).
func (f *ExactEvmFacilitator) simulateAuthorization(
	ctx context.Context,
	vc *verifyContext,
	requirements x402.PaymentRequirements,
	payer string,
) *x402.VerifyResponse {
	data, err := f.encodeSettleCall(requirements.Asset, vc.payload.Authorization, !vc.supports3009, vc.signature)
	if err != nil {
		return invalid(x402.ReasonInvalidPayload, payer)
	}

	operator := f.signer.GetAddresses()[0]
	_, estErr := f.signer.EstimateGas(ctx, operator, f.facilitatorAddress, data)
	if estErr == nil {
		return nil
	}

	if reason, ok := classifyRevert(estErr); ok {
		return invalid(reason, payer)
	}

	// 5. Smart-wallet / EIP-6492 analysis for long signatures
	if len(vc.signature) > 65 {
		return f.analyzeSmartWallet(ctx, vc, payer)
	}

	return invalid(x402.ReasonInvalidSignature, payer)
}

// analyzeSmartWallet handles gas-simulation failures for contract-wallet
// signatures. An undeployed wallet is acceptable only when its ERC-6492
// envelope carries deployment data; deployment itself is deferred to settle.
func (f *ExactEvmFacilitator) analyzeSmartWallet(
	ctx context.Context,
	vc *verifyContext,
	payer string,
) *x402.VerifyResponse {
	code, err := f.signer.GetCode(ctx, vc.payload.Authorization.From)
	if err != nil {
		return invalid(x402.ReasonUnexpectedVerifyError, payer)
	}

	if len(code) == 0 {
		parsed, err := evm.ParseERC6492Signature(vc.signature)
		if err != nil || !parsed.HasDeployment() {
			return invalid(x402.ReasonUndeployedSmartWallet, payer)
		}
		return nil
	}

	return invalid(x402.ReasonInvalidSignature, payer)
}

// checkAuthorizationFields performs the field-level semantic checks.
func (f *ExactEvmFacilitator) checkAuthorizationFields(
	ctx context.Context,
	vc *verifyContext,
	requirements x402.PaymentRequirements,
	payer string,
) *x402.VerifyResponse {
	auth := vc.payload.Authorization

	if !strings.EqualFold(evm.ChecksumAddress(auth.To), evm.ChecksumAddress(requirements.PayTo)) {
		return invalid(x402.ReasonRecipientMismatch, payer)
	}

	now := time.Now().Unix()

	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok || validBefore.Cmp(big.NewInt(now+evm.BlockTimeBuffer)) < 0 {
		return invalid(x402.ReasonAuthValidBefore, payer)
	}

	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok || validAfter.Cmp(big.NewInt(now)) > 0 {
		return invalid(x402.ReasonAuthValidAfter, payer)
	}

	// Balance read failures are tolerated; the settlement call re-checks
	// funds on-chain anyway.
	balance, err := f.signer.GetBalance(ctx, auth.From, requirements.Asset)
	if err == nil && balance.Cmp(vc.requiredAmount) < 0 {
		return invalid(x402.ReasonInsufficientFunds, payer)
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok || value.Cmp(vc.requiredAmount) < 0 {
		return invalid(x402.ReasonAuthValue, payer)
	}

	return nil
}

// encodeSettleCall packs the facilitator contract settlement calldata.
func (f *ExactEvmFacilitator) encodeSettleCall(
	asset string,
	auth evm.ExactAuthorization,
	needApprove bool,
	signature []byte,
) ([]byte, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value: %s", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter: %s", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore: %s", auth.ValidBefore)
	}
	nonce, err := evm.NonceBytes32(auth.Nonce)
	if err != nil {
		return nil, err
	}

	return evm.PackFacilitatorCall(
		asset,
		auth.From,
		auth.To,
		value,
		validAfter,
		validBefore,
		nonce,
		needApprove,
		signature,
	)
}

func hasEIP712Domain(requirements x402.PaymentRequirements) bool {
	if requirements.Extra == nil {
		return false
	}
	name, _ := requirements.Extra["name"].(string)
	version, _ := requirements.Extra["version"].(string)
	return name != "" && version != ""
}

func invalid(reason, payer string) *x402.VerifyResponse {
	return &x402.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}
}
