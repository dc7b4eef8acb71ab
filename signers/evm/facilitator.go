package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	x402evm "github.com/aeon-xyz/x402-go/mechanisms/evm"
)

const (
	receiptPollInterval = 2 * time.Second
	receiptWaitTimeout  = 120 * time.Second

	// Gas limit headroom over the estimate
	gasLimitNumerator   = 120
	gasLimitDenominator = 100
)

// FacilitatorSigner is the go-ethereum backed chain gateway. It signs from a
// single operator key and always refetches transaction nonces from the chain.
type FacilitatorSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	client     *ethclient.Client
	chainID    *big.Int
}

// NewFacilitatorSigner creates a facilitator signer from a hex-encoded
// private key and a connected ethclient.
func NewFacilitatorSigner(privateKeyHex string, client *ethclient.Client) (*FacilitatorSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to query chain ID: %w", err)
	}

	return &FacilitatorSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		client:     client,
		chainID:    chainID,
	}, nil
}

// NewFacilitatorSignerFromURL dials an RPC endpoint and creates the signer.
func NewFacilitatorSignerFromURL(privateKeyHex, rpcURL string) (*FacilitatorSigner, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	return NewFacilitatorSigner(privateKeyHex, client)
}

// GetAddresses returns the operator address.
func (s *FacilitatorSigner) GetAddresses() []string {
	return []string{s.address.Hex()}
}

// GetChainID returns the chain ID of the connected network.
func (s *FacilitatorSigner) GetChainID(ctx context.Context) (*big.Int, error) {
	return s.chainID, nil
}

// ReadContract performs a view call and unpacks the result.
func (s *FacilitatorSigner) ReadContract(
	ctx context.Context,
	address string,
	abiBytes []byte,
	functionName string,
	args ...interface{},
) (interface{}, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	result, err := s.CallContract(ctx, address, data)
	if err != nil {
		return nil, err
	}

	outputs, err := contractABI.Unpack(functionName, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	if len(outputs) == 0 {
		return nil, nil
	}
	if len(outputs) == 1 {
		return outputs[0], nil
	}
	return outputs, nil
}

// CallContract performs a raw eth_call with pre-encoded calldata.
func (s *FacilitatorSigner) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	addr := common.HexToAddress(to)
	return s.client.CallContract(ctx, ethereum.CallMsg{
		From: s.address,
		To:   &addr,
		Data: data,
	}, nil)
}

// EstimateGas simulates a state-changing call from the given sender.
func (s *FacilitatorSigner) EstimateGas(ctx context.Context, from string, to string, data []byte) (uint64, error) {
	addr := common.HexToAddress(to)
	return s.client.EstimateGas(ctx, ethereum.CallMsg{
		From: common.HexToAddress(from),
		To:   &addr,
		Data: data,
	})
}

// WriteContract signs and broadcasts a contract transaction, returning the
// transaction hash.
func (s *FacilitatorSigner) WriteContract(
	ctx context.Context,
	address string,
	abiBytes []byte,
	functionName string,
	args ...interface{},
) (string, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiBytes)))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack method call: %w", err)
	}

	return s.SendTransaction(ctx, address, data)
}

// SendTransaction signs and broadcasts a transaction with pre-encoded
// calldata, fetching nonce and gas price from the chain.
func (s *FacilitatorSigner) SendTransaction(ctx context.Context, to string, data []byte) (string, error) {
	nonce, err := s.PendingNonce(ctx, s.address.Hex())
	if err != nil {
		return "", fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch gas price: %w", err)
	}

	return s.SendRawTransaction(ctx, to, data, nonce, gasPrice)
}

// SendRawTransaction signs a transaction with an explicit nonce and gas price
// and broadcasts it. Gas price zero is valid on sponsored chains.
func (s *FacilitatorSigner) SendRawTransaction(
	ctx context.Context,
	to string,
	data []byte,
	nonce uint64,
	gasPrice *big.Int,
) (string, error) {
	addr := common.HexToAddress(to)

	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     s.address,
		To:       &addr,
		Data:     data,
		GasPrice: gasPrice,
	})
	if err != nil {
		return "", fmt.Errorf("gas estimation failed: %w", err)
	}
	gasLimit = gasLimit * gasLimitNumerator / gasLimitDenominator

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &addr,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", err
	}

	return signedTx.Hash().Hex(), nil
}

// PendingNonce returns the account nonce including pending transactions.
func (s *FacilitatorSigner) PendingNonce(ctx context.Context, address string) (uint64, error) {
	return s.client.PendingNonceAt(ctx, common.HexToAddress(address))
}

// LatestNonce returns the account nonce at the latest block.
func (s *FacilitatorSigner) LatestNonce(ctx context.Context, address string) (uint64, error) {
	return s.client.NonceAt(ctx, common.HexToAddress(address), nil)
}

// WaitForTransactionReceipt polls until the transaction is mined, the wait
// budget runs out, or the context is cancelled. The hash is embedded in the
// timeout error so it stays observable.
func (s *FacilitatorSigner) WaitForTransactionReceipt(ctx context.Context, txHash string) (*x402evm.TransactionReceipt, error) {
	hash := common.HexToHash(txHash)

	deadline := time.Now().Add(receiptWaitTimeout)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return &x402evm.TransactionReceipt{
				Status:      receipt.Status,
				BlockNumber: receipt.BlockNumber.Uint64(),
				TxHash:      txHash,
			}, nil
		}
		if err != ethereum.NotFound {
			return nil, fmt.Errorf("receipt query failed for %s: %w", txHash, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("transaction %s timed out waiting for receipt", txHash)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s wait cancelled: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetBalance returns the ERC-20 balance of an address.
func (s *FacilitatorSigner) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	result, err := s.ReadContract(ctx, tokenAddress, x402evm.ERC20BalanceOfABI, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	balance, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned unexpected type %T", result)
	}
	return balance, nil
}

// GetCode returns the bytecode at an address; empty for EOAs.
func (s *FacilitatorSigner) GetCode(ctx context.Context, address string) ([]byte, error) {
	return s.client.CodeAt(ctx, common.HexToAddress(address), nil)
}
