package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ProbeCache memoizes per-(chain, asset) EIP-3009 support. Entries are
// populated once and never invalidated within the process lifetime.
type ProbeCache struct {
	entries sync.Map // "chainID:asset" -> bool
}

// NewProbeCache creates an empty probe cache.
func NewProbeCache() *ProbeCache {
	return &ProbeCache{}
}

func probeCacheKey(chainID *big.Int, asset string) string {
	return fmt.Sprintf("%s:%s", chainID.String(), strings.ToLower(asset))
}

// Get returns the cached probe result, if any.
func (c *ProbeCache) Get(chainID *big.Int, asset string) (bool, bool) {
	v, ok := c.entries.Load(probeCacheKey(chainID, asset))
	if !ok {
		return false, false
	}
	return v.(bool), true
}

// Put stores a probe result. First write wins so the result stays
// deterministic over the process lifetime.
func (c *ProbeCache) Put(chainID *big.Int, asset string, supported bool) bool {
	actual, _ := c.entries.LoadOrStore(probeCacheKey(chainID, asset), supported)
	return actual.(bool)
}

// Revert fragments produced by EIP-3009 tokens rejecting a zero-argument
// call: the function exists, the arguments are garbage.
var eip3009PresentFragments = []string{
	"authorization is expired",
	"authorization expired",
	"authorization is used",
	"authorization is not yet valid",
	"invalid signature",
	"invalid signature length",
}

// Revert fragments indicating the selector is unknown to the contract.
var eip3009AbsentFragments = []string{
	"function does not exist",
	"function selector was not recognized",
	"is not a function",
	"unknown selector",
}

// SupportsEIP3009 probes whether the asset contract implements
// transferWithAuthorization, caching the outcome per (chain, asset).
//
// The probe issues a view call with zero arguments and classifies the revert:
// a complaint about the arguments means the function exists; an unknown
// selector (or anything ambiguous) means it does not.
func SupportsEIP3009(
	ctx context.Context,
	caller ContractCaller,
	cache *ProbeCache,
	chainID *big.Int,
	asset string,
) (bool, error) {
	if supported, ok := cache.Get(chainID, asset); ok {
		return supported, nil
	}

	data, err := encodeProbeCall()
	if err != nil {
		return false, err
	}

	_, callErr := caller.CallContract(ctx, asset, data)
	if callErr != nil && !isRevertError(callErr) {
		// Transport failure, not a contract answer. Leave the cache empty so
		// the next probe gets a fresh look at the token.
		return false, fmt.Errorf("eip-3009 probe call failed: %w", callErr)
	}
	supported := classifyProbeError(callErr)

	return cache.Put(chainID, asset, supported), nil
}

// isRevertError reports whether the probe error came from the contract rather
// than the RPC transport.
func isRevertError(err error) bool {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "revert") {
		return true
	}
	for _, fragment := range eip3009AbsentFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	for _, fragment := range eip3009PresentFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// encodeProbeCall packs transferWithAuthorization with zero/empty arguments.
func encodeProbeCall() ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(string(TransferWithAuthorizationBytesABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse probe ABI: %w", err)
	}
	var zeroNonce [32]byte
	return parsed.Pack(
		FunctionTransferWithAuthorization,
		common.Address{},
		common.Address{},
		big.NewInt(0),
		big.NewInt(0),
		big.NewInt(0),
		zeroNonce,
		[]byte{},
	)
}

// classifyProbeError maps a probe call error to EIP-3009 support.
// Ambiguous errors are treated as unsupported so settlement falls back to
// the facilitator contract, which works for any ERC-20.
func classifyProbeError(err error) bool {
	if err == nil {
		// A zero-value call that does not revert is not a real EIP-3009
		// implementation; route it through the facilitator contract.
		return false
	}

	msg := strings.ToLower(err.Error())

	for _, fragment := range eip3009AbsentFragments {
		if strings.Contains(msg, fragment) {
			return false
		}
	}
	for _, fragment := range eip3009PresentFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
