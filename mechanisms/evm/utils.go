package evm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HexToBytes decodes a hex string, tolerating a 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}
	return data, nil
}

// BytesToHex encodes bytes as a 0x-prefixed hex string.
func BytesToHex(data []byte) string {
	return "0x" + hex.EncodeToString(data)
}

// CreateNonce returns a random 32-byte authorization nonce as 0x hex.
func CreateNonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return BytesToHex(nonce), nil
}

// CreateValidityWindow returns validAfter/validBefore bounds around now.
// validAfter is backdated one minute to tolerate clock skew.
func CreateValidityWindow(lifetime time.Duration) (validAfter, validBefore *big.Int) {
	now := time.Now().Unix()
	return big.NewInt(now - 60), big.NewInt(now + int64(lifetime.Seconds()))
}

// ChecksumAddress normalizes an address to its EIP-55 checksummed form.
func ChecksumAddress(address string) string {
	return common.HexToAddress(address).Hex()
}

// NonceBytes32 parses an authorization nonce into a fixed 32-byte array.
func NonceBytes32(nonce string) ([32]byte, error) {
	var out [32]byte
	data, err := HexToBytes(nonce)
	if err != nil {
		return out, err
	}
	if len(data) != 32 {
		return out, fmt.Errorf("authorization nonce must be 32 bytes, got %d", len(data))
	}
	copy(out[:], data)
	return out, nil
}
