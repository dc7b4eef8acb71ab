package evm

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func wrapERC6492(t *testing.T, factory common.Address, calldata, inner []byte) []byte {
	t.Helper()

	addressTy, _ := abi.NewType("address", "", nil)
	bytesTy, _ := abi.NewType("bytes", "", nil)
	arguments := abi.Arguments{{Type: addressTy}, {Type: bytesTy}, {Type: bytesTy}}

	packed, err := arguments.Pack(factory, calldata, inner)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	return append(packed, erc6492MagicBytes...)
}

func TestIsERC6492Signature(t *testing.T) {
	plain := make([]byte, 65)
	if IsERC6492Signature(plain) {
		t.Fatal("plain signature misdetected as ERC-6492")
	}
	if IsERC6492Signature([]byte{0x01}) {
		t.Fatal("short signature misdetected")
	}

	wrapped := wrapERC6492(t, common.HexToAddress("0x1"), []byte{0xde, 0xad}, plain)
	if !IsERC6492Signature(wrapped) {
		t.Fatal("wrapped signature not detected")
	}
}

func TestParseERC6492Signature(t *testing.T) {
	inner := bytes.Repeat([]byte{0xab}, 65)
	factory := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	calldata := []byte{0x01, 0x02, 0x03}

	parsed, err := ParseERC6492Signature(wrapERC6492(t, factory, calldata, inner))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !bytes.Equal(parsed.InnerSignature, inner) {
		t.Fatal("inner signature mismatch")
	}
	if !bytes.Equal(parsed.FactoryCalldata, calldata) {
		t.Fatal("factory calldata mismatch")
	}
	if !bytes.Equal(parsed.Factory[:], factory.Bytes()) {
		t.Fatal("factory address mismatch")
	}
	if !parsed.HasDeployment() {
		t.Fatal("expected deployment data present")
	}
}

func TestParseERC6492Passthrough(t *testing.T) {
	plain := bytes.Repeat([]byte{0xcd}, 65)
	parsed, err := ParseERC6492Signature(plain)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !bytes.Equal(parsed.InnerSignature, plain) {
		t.Fatal("expected passthrough inner signature")
	}
	if parsed.HasDeployment() {
		t.Fatal("plain signature should carry no deployment")
	}
}

func TestHasDeploymentZeroFactory(t *testing.T) {
	inner := bytes.Repeat([]byte{0xab}, 65)

	parsed, err := ParseERC6492Signature(wrapERC6492(t, common.Address{}, []byte{0x01}, inner))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.HasDeployment() {
		t.Fatal("zero factory must not count as deployable")
	}

	parsed, err = ParseERC6492Signature(wrapERC6492(t, common.HexToAddress("0x1"), nil, inner))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.HasDeployment() {
		t.Fatal("empty calldata must not count as deployable")
	}
}

func TestParseERC6492Garbage(t *testing.T) {
	garbage := append(bytes.Repeat([]byte{0xff}, 40), erc6492MagicBytes...)
	if _, err := ParseERC6492Signature(garbage); err == nil {
		t.Fatal("expected error for undecodable envelope")
	}
}
