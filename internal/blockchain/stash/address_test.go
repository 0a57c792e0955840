package stash

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func encodeStashAddress(t *testing.T, raw []byte) string {
	t.Helper()

	data5bit, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		t.Fatalf("failed to convert bits: %v", err)
	}
	addr, err := bech32.Encode(Bech32Prefix, data5bit)
	if err != nil {
		t.Fatalf("failed to encode bech32: %v", err)
	}
	return addr
}

func TestConvertToBytes32(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := encodeStashAddress(t, raw)

	result, err := ConvertToBytes32(addr)
	if err != nil {
		t.Fatalf("ConvertToBytes32 failed: %v", err)
	}

	// 20-byte address should be left-padded with 12 zero bytes
	if !bytes.Equal(result[:12], make([]byte, 12)) {
		t.Errorf("expected 12 leading zero bytes, got %x", result[:12])
	}
	if !bytes.Equal(result[12:], raw) {
		t.Errorf("expected trailing bytes %x, got %x", raw, result[12:])
	}
}

func TestConvertToBytes32ContractAddress(t *testing.T) {
	// Contract addresses are 32 bytes and need no padding
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(0xFF - i)
	}
	addr := encodeStashAddress(t, raw)

	result, err := ConvertToBytes32(addr)
	if err != nil {
		t.Fatalf("ConvertToBytes32 failed: %v", err)
	}

	if !bytes.Equal(result[:], raw) {
		t.Errorf("expected %x, got %x", raw, result[:])
	}
}

func TestConvertToBytes32Errors(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"empty address", ""},
		{"not bech32", "0x1234567890abcdef"},
		{"bad checksum", "stash1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ConvertToBytes32(tt.addr); err == nil {
				t.Errorf("expected error for %q", tt.addr)
			}
		})
	}
}

func TestConvertBytes32ToHex(t *testing.T) {
	var input [32]byte
	input[31] = 0xAB

	got := ConvertBytes32ToHex(input)
	want := "0x00000000000000000000000000000000000000000000000000000000000000ab"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
