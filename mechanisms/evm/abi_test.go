package evm

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

func packArgs() (value, validAfter, validBefore *big.Int, nonce [32]byte, signature []byte) {
	value = big.NewInt(1000)
	validAfter = big.NewInt(1700000000)
	validBefore = big.NewInt(1700000600)
	for i := range nonce {
		nonce[i] = byte(i)
	}
	signature = []byte{0xaa, 0xbb, 0xcc}
	return
}

func TestPackFacilitatorCall(t *testing.T) {
	value, validAfter, validBefore, nonce, signature := packArgs()

	data, err := PackFacilitatorCall(
		"0x55d398326f99059fF775485246999027B3197955",
		"0x34B78542283C26FE993EDF97AD90E1889e1AF510",
		"0x2EC8A9A227c2bD64F20eC400a16DE1F8d2E53628",
		value, validAfter, validBefore, nonce, true, signature,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	selector := crypto.Keccak256([]byte("tokenTransferWithAuthorization(address,address,address,uint256,uint256,uint256,bytes32,bool,bytes)"))[:4]
	if len(data) < 4 {
		t.Fatal("calldata too short")
	}
	for i := range selector {
		if data[i] != selector[i] {
			t.Fatalf("wrong selector: got %x, want %x", data[:4], selector)
		}
	}

	parsed, err := abi.JSON(strings.NewReader(string(FacilitatorABI)))
	if err != nil {
		t.Fatal(err)
	}
	unpacked, err := parsed.Methods[FunctionTokenTransferWithAuthorization].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("calldata does not round trip: %v", err)
	}
	if got := unpacked[3].(*big.Int); got.Cmp(value) != 0 {
		t.Fatalf("value corrupted: %s", got)
	}
	if got := unpacked[7].(bool); !got {
		t.Fatal("needApprove corrupted")
	}
}

func TestPackTransferWithAuthorization(t *testing.T) {
	value, validAfter, validBefore, nonce, signature := packArgs()

	data, err := PackTransferWithAuthorization(
		"0x34B78542283C26FE993EDF97AD90E1889e1AF510",
		"0x2EC8A9A227c2bD64F20eC400a16DE1F8d2E53628",
		value, validAfter, validBefore, nonce, signature,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	selector := crypto.Keccak256([]byte("transferWithAuthorization(address,address,uint256,uint256,uint256,bytes32,bytes)"))[:4]
	for i := range selector {
		if data[i] != selector[i] {
			t.Fatalf("wrong selector: got %x, want %x", data[:4], selector)
		}
	}
}
