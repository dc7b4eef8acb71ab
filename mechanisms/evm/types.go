package evm

import (
	"context"
	"math/big"
)

// ExactAuthorization is the signed transfer intent. Every numeric field is a
// decimal string in atomic units or unix seconds; nonce is 32 random bytes hex.
type ExactAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayload is the exact-scheme payment payload for EVM networks.
type ExactPayload struct {
	Signature     string             `json:"signature,omitempty"`
	Authorization ExactAuthorization `json:"authorization"`
}

// ToMap converts an ExactPayload to a map for JSON marshaling
func (p *ExactPayload) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"authorization": map[string]interface{}{
			"from":        p.Authorization.From,
			"to":          p.Authorization.To,
			"value":       p.Authorization.Value,
			"validAfter":  p.Authorization.ValidAfter,
			"validBefore": p.Authorization.ValidBefore,
			"nonce":       p.Authorization.Nonce,
		},
	}
	if p.Signature != "" {
		result["signature"] = p.Signature
	}
	return result
}

// PayloadFromMap creates an ExactPayload from a decoded payload map
func PayloadFromMap(data map[string]interface{}) (*ExactPayload, error) {
	payload := &ExactPayload{}

	if sig, ok := data["signature"].(string); ok {
		payload.Signature = sig
	}

	auth, ok := data["authorization"].(map[string]interface{})
	if !ok {
		return nil, errMissingAuthorization
	}
	if from, ok := auth["from"].(string); ok {
		payload.Authorization.From = from
	}
	if to, ok := auth["to"].(string); ok {
		payload.Authorization.To = to
	}
	if value, ok := auth["value"].(string); ok {
		payload.Authorization.Value = value
	}
	if validAfter, ok := auth["validAfter"].(string); ok {
		payload.Authorization.ValidAfter = validAfter
	}
	if validBefore, ok := auth["validBefore"].(string); ok {
		payload.Authorization.ValidBefore = validBefore
	}
	if nonce, ok := auth["nonce"].(string); ok {
		payload.Authorization.Nonce = nonce
	}

	return payload, nil
}

// TypedDataDomain represents the EIP-712 domain separator
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField represents a field in EIP-712 typed data
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransactionReceipt represents the receipt of a mined transaction
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// ERC6492SignatureData holds the parsed components of an ERC-6492 wrapped
// signature: the CREATE2 factory and calldata that deploy the wallet, and the
// inner EIP-1271 (or EOA) signature.
type ERC6492SignatureData struct {
	Factory         [20]byte
	FactoryCalldata []byte
	InnerSignature  []byte
}

// ClientSigner is the client-side signing capability: an address plus
// EIP-712 typed-data signing.
type ClientSigner interface {
	Address() string
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// ContractCaller is the minimal chain-read capability the capability probe
// needs. FacilitatorSigner satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)
}

// FacilitatorSigner is the chain gateway the scheme engine settles through.
// It owns the facilitator's key material; transaction nonces are always
// refetched from the chain, never counted in memory.
type FacilitatorSigner interface {
	// GetAddresses returns the addresses this facilitator signs from.
	GetAddresses() []string

	// GetChainID returns the chain ID of the connected network.
	GetChainID(ctx context.Context) (*big.Int, error)

	// ReadContract performs a view call and unpacks the result.
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)

	// CallContract performs a raw eth_call with pre-encoded calldata.
	// Used by the EIP-3009 capability probe, which classifies the revert.
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)

	// EstimateGas simulates a state-changing call from the given sender.
	EstimateGas(ctx context.Context, from string, to string, data []byte) (uint64, error)

	// WriteContract signs and broadcasts a contract transaction, returning
	// the transaction hash.
	WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error)

	// SendTransaction signs and broadcasts a transaction with pre-encoded
	// calldata. Used for smart wallet factory deployment.
	SendTransaction(ctx context.Context, to string, data []byte) (string, error)

	// SendRawTransaction signs a transaction with an explicit nonce and gas
	// price and broadcasts it. The sponsored path uses gasPrice zero.
	SendRawTransaction(ctx context.Context, to string, data []byte, nonce uint64, gasPrice *big.Int) (string, error)

	// PendingNonce returns the account nonce including pending transactions.
	PendingNonce(ctx context.Context, address string) (uint64, error)

	// LatestNonce returns the account nonce at the latest block.
	LatestNonce(ctx context.Context, address string) (uint64, error)

	// WaitForTransactionReceipt polls until the transaction is mined or the
	// context is cancelled. The hash stays observable through the error path.
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)

	// GetBalance returns the ERC-20 balance of an address.
	GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error)

	// GetCode returns the bytecode at an address; empty for EOAs.
	GetCode(ctx context.Context, address string) ([]byte, error)
}
