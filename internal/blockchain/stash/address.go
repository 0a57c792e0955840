package stash

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// ConvertToBytes32 converts a stash bech32 address to the bytes32 mint
// recipient format EVM messenger contracts expect: decode bech32, convert
// back to 8-bit bytes, left-pad to 32 bytes.
func ConvertToBytes32(addr string) ([32]byte, error) {
	var result [32]byte

	if addr == "" {
		return result, fmt.Errorf("stash address cannot be empty")
	}

	_, data5bit, err := bech32.Decode(addr)
	if err != nil {
		return result, fmt.Errorf("failed to decode bech32 address: %w", err)
	}

	data8bit, err := bech32.ConvertBits(data5bit, 5, 8, false)
	if err != nil {
		return result, fmt.Errorf("failed to convert address bits: %w", err)
	}

	if len(data8bit) > 32 {
		return result, fmt.Errorf("address too long: %d bytes (max 32)", len(data8bit))
	}

	copy(result[32-len(data8bit):], data8bit)

	return result, nil
}

// ConvertBytes32ToHex converts a [32]byte array to a hex string with 0x prefix
func ConvertBytes32ToHex(bytes32 [32]byte) string {
	return "0x" + hex.EncodeToString(bytes32[:])
}
