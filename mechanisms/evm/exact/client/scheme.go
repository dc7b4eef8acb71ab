// Package client builds exact-scheme payment payloads for EVM networks.
package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	x402 "github.com/aeon-xyz/x402-go"
	"github.com/aeon-xyz/x402-go/mechanisms/evm"
)

// defaultValidityWindow bounds the authorization lifetime when the
// requirements carry no timeout.
const defaultValidityWindow = time.Hour

// ChainAccess is the optional chain capability the client uses for the
// capability probe and the allowance/approve flow. The payer-side signer
// gateway satisfies it.
type ChainAccess interface {
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)
	WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error)
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*evm.TransactionReceipt, error)
}

// ExactEvmClient implements x402.SchemeNetworkClient for exact EVM payments.
//
// Without chain access it signs the facilitator-contract variant and assumes
// the allowance is already in place. With chain access it probes the token
// for EIP-3009 and runs the approve flow when needed.
type ExactEvmClient struct {
	signer             evm.ClientSigner
	chain              ChainAccess
	cache              *evm.ProbeCache
	facilitatorAddress string
}

// ClientOption configures an ExactEvmClient.
type ClientOption func(*ExactEvmClient)

// WithChainAccess enables the capability probe and the approve flow.
func WithChainAccess(chain ChainAccess) ClientOption {
	return func(c *ExactEvmClient) { c.chain = chain }
}

// WithFacilitatorAddress overrides the facilitator contract address.
func WithFacilitatorAddress(address string) ClientOption {
	return func(c *ExactEvmClient) { c.facilitatorAddress = address }
}

// NewExactEvmClient creates a client-side exact-EVM mechanism.
func NewExactEvmClient(signer evm.ClientSigner, opts ...ClientOption) *ExactEvmClient {
	c := &ExactEvmClient{
		signer:             signer,
		cache:              evm.NewProbeCache(),
		facilitatorAddress: evm.FacilitatorContractAddress,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scheme returns the scheme identifier
func (c *ExactEvmClient) Scheme() string {
	return evm.SchemeExact
}

// CreatePaymentPayload builds and signs the transfer authorization.
func (c *ExactEvmClient) CreatePaymentPayload(
	ctx context.Context,
	version int,
	requirements x402.PaymentRequirements,
) (x402.PartialPaymentPayload, error) {
	networkStr := string(requirements.Network)
	if !evm.IsValidNetwork(networkStr) {
		return x402.PartialPaymentPayload{}, fmt.Errorf("unsupported network: %s", requirements.Network)
	}
	chainID := evm.ChainID(networkStr)
	assetInfo := evm.GetAssetInfo(networkStr, requirements.Asset)

	value, err := requirements.AtomicAmount()
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	nonce, err := evm.CreateNonce()
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	window := defaultValidityWindow
	if requirements.MaxTimeoutSeconds > 0 {
		window = time.Duration(requirements.MaxTimeoutSeconds) * time.Second
	}
	validAfter, validBefore := evm.CreateValidityWindow(window)

	authorization := evm.ExactAuthorization{
		From:        c.signer.Address(),
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	supports3009 := c.probe(ctx, chainID, assetInfo.Address)

	var signature []byte
	if supports3009 {
		signature, err = c.signEIP3009(ctx, authorization, chainID, assetInfo, requirements.Extra)
	} else {
		if err := c.ensureAllowance(ctx, assetInfo.Address, value); err != nil {
			return x402.PartialPaymentPayload{}, err
		}
		signature, err = c.signFacilitator(ctx, authorization, chainID, assetInfo.Address)
	}
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to sign authorization: %w", err)
	}

	evmPayload := &evm.ExactPayload{
		Signature:     evm.BytesToHex(signature),
		Authorization: authorization,
	}

	return x402.PartialPaymentPayload{
		X402Version: version,
		Payload:     evmPayload.ToMap(),
	}, nil
}

// probe checks EIP-3009 support when chain access is available. Without it
// the facilitator-contract variant is assumed; that path settles any ERC-20.
func (c *ExactEvmClient) probe(ctx context.Context, chainID *big.Int, asset string) bool {
	if c.chain == nil {
		return false
	}
	supported, err := evm.SupportsEIP3009(ctx, c.chain, c.cache, chainID, asset)
	if err != nil {
		return false
	}
	return supported
}

// signEIP3009 signs TransferWithAuthorization under the token's own domain.
func (c *ExactEvmClient) signEIP3009(
	ctx context.Context,
	authorization evm.ExactAuthorization,
	chainID *big.Int,
	assetInfo evm.AssetInfo,
	extra map[string]interface{},
) ([]byte, error) {
	tokenName := assetInfo.Name
	tokenVersion := assetInfo.Version
	if extra != nil {
		if name, ok := extra["name"].(string); ok && name != "" {
			tokenName = name
		}
		if version, ok := extra["version"].(string); ok && version != "" {
			tokenVersion = version
		}
	}

	domain := evm.TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: assetInfo.Address,
	}
	message, err := authorizationSigningMessage(authorization)
	if err != nil {
		return nil, err
	}

	return c.signer.SignTypedData(ctx, domain, evm.TransferWithAuthorizationTypes, "TransferWithAuthorization", message)
}

// signFacilitator signs tokenTransferWithAuthorization under the facilitator
// contract's domain, folding the token and approval flag into the message.
func (c *ExactEvmClient) signFacilitator(
	ctx context.Context,
	authorization evm.ExactAuthorization,
	chainID *big.Int,
	asset string,
) ([]byte, error) {
	domain := evm.TypedDataDomain{
		Name:              evm.FacilitatorDomainName,
		Version:           evm.FacilitatorDomainVersion,
		ChainID:           chainID,
		VerifyingContract: c.facilitatorAddress,
	}
	message, err := authorizationSigningMessage(authorization)
	if err != nil {
		return nil, err
	}
	message["token"] = evm.ChecksumAddress(asset)
	message["needApprove"] = true

	return c.signer.SignTypedData(ctx, domain, evm.TokenTransferWithAuthorizationTypes, "tokenTransferWithAuthorization", message)
}

// ensureAllowance makes sure the facilitator contract can pull the payment.
// Tokens that reject non-zero-to-non-zero allowance changes (USDT) get an
// approve-to-zero first, then the real approval.
func (c *ExactEvmClient) ensureAllowance(ctx context.Context, asset string, value *big.Int) error {
	if c.chain == nil {
		return nil
	}

	owner := c.signer.Address()
	result, err := c.chain.ReadContract(ctx, asset, evm.ERC20AllowanceABI, "allowance",
		addressArg(owner), addressArg(c.facilitatorAddress))
	if err != nil {
		return fmt.Errorf("allowance check failed: %w", err)
	}
	allowance, ok := result.(*big.Int)
	if !ok {
		return fmt.Errorf("allowance returned unexpected type %T", result)
	}
	if allowance.Cmp(value) >= 0 {
		return nil
	}

	if err := c.approve(ctx, asset, math.MaxBig256); err != nil {
		if !isAllowanceResetError(err) {
			return err
		}
		if err := c.approve(ctx, asset, big.NewInt(0)); err != nil {
			return err
		}
		if err := c.approve(ctx, asset, math.MaxBig256); err != nil {
			return err
		}
	}
	return nil
}

func (c *ExactEvmClient) approve(ctx context.Context, asset string, amount *big.Int) error {
	txHash, err := c.chain.WriteContract(ctx, asset, evm.ERC20ApproveABI, "approve",
		addressArg(c.facilitatorAddress), amount)
	if err != nil {
		return fmt.Errorf("approve failed: %w", err)
	}
	receipt, err := c.chain.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return fmt.Errorf("approve receipt wait failed: %w", err)
	}
	if receipt.Status != evm.TxStatusSuccess {
		return fmt.Errorf("approve transaction %s reverted", txHash)
	}
	return nil
}

// isAllowanceResetError spots the USDT-style revert on changing a non-zero
// allowance without zeroing it first.
func isAllowanceResetError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "zero") || strings.Contains(msg, "reverted")
}

func addressArg(s string) common.Address {
	return common.HexToAddress(s)
}

func authorizationSigningMessage(authorization evm.ExactAuthorization) (map[string]interface{}, error) {
	value, ok := new(big.Int).SetString(authorization.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value: %s", authorization.Value)
	}
	validAfter, ok := new(big.Int).SetString(authorization.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter: %s", authorization.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(authorization.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore: %s", authorization.ValidBefore)
	}
	nonceBytes, err := evm.HexToBytes(authorization.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	return map[string]interface{}{
		"from":        authorization.From,
		"to":          authorization.To,
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonceBytes,
	}, nil
}
