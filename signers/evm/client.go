// Package evm provides go-ethereum backed signers: a client-side EIP-712
// signer and the facilitator's chain gateway.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	x402evm "github.com/aeon-xyz/x402-go/mechanisms/evm"
)

// ClientSigner implements x402evm.ClientSigner using an ECDSA private key.
// This provides client-side EIP-712 signing for creating payment payloads.
type ClientSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewClientSignerFromPrivateKey creates a client signer from a hex-encoded
// private key (with or without "0x" prefix).
func NewClientSignerFromPrivateKey(privateKeyHex string) (x402evm.ClientSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &ClientSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address returns the Ethereum address of the signer.
func (s *ClientSigner) Address() string {
	return s.address.Hex()
}

// SignTypedData signs EIP-712 typed data and returns a 65-byte (r, s, v)
// signature with the Ethereum v offset applied.
func (s *ClientSigner) SignTypedData(
	ctx context.Context,
	domain x402evm.TypedDataDomain,
	types map[string][]x402evm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	digest, err := x402evm.HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Recovery ID 0/1 becomes 27/28
	signature[64] += 27

	return signature, nil
}

// ReadTokenDomain fetches an ERC-20 token's name for EIP-712 domain
// construction when the requirements omit it.
func ReadTokenDomain(ctx context.Context, client *ethclient.Client, tokenAddress string) (string, error) {
	nameABI := `[{"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}]`
	parsed, err := abi.JSON(strings.NewReader(nameABI))
	if err != nil {
		return "", err
	}
	data, err := parsed.Pack("name")
	if err != nil {
		return "", err
	}
	addr := common.HexToAddress(tokenAddress)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("token name call failed: %w", err)
	}
	outputs, err := parsed.Unpack("name", result)
	if err != nil {
		return "", err
	}
	name, ok := outputs[0].(string)
	if !ok {
		return "", fmt.Errorf("token name is not a string")
	}
	return name, nil
}
