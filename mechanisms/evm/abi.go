package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// PackFacilitatorCall encodes the facilitator contract's
// tokenTransferWithAuthorization calldata. The same encoding serves the
// verify-time gas simulation and the settle-time submission.
func PackFacilitatorCall(
	token string,
	from string,
	to string,
	value *big.Int,
	validAfter *big.Int,
	validBefore *big.Int,
	nonce [32]byte,
	needApprove bool,
	signature []byte,
) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(string(FacilitatorABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse facilitator ABI: %w", err)
	}
	return parsed.Pack(
		FunctionTokenTransferWithAuthorization,
		common.HexToAddress(token),
		common.HexToAddress(from),
		common.HexToAddress(to),
		value,
		validAfter,
		validBefore,
		nonce,
		needApprove,
		signature,
	)
}

// PackTransferWithAuthorization encodes the EIP-3009 entrypoint with a bytes
// signature for direct token settlement.
func PackTransferWithAuthorization(
	from string,
	to string,
	value *big.Int,
	validAfter *big.Int,
	validBefore *big.Int,
	nonce [32]byte,
	signature []byte,
) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(string(TransferWithAuthorizationBytesABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse transfer ABI: %w", err)
	}
	return parsed.Pack(
		FunctionTransferWithAuthorization,
		common.HexToAddress(from),
		common.HexToAddress(to),
		value,
		validAfter,
		validBefore,
		nonce,
		signature,
	)
}
