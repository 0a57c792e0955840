package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the wallet capability supplied by the calling layer: the sending
// address plus transaction signing for one EVM source chain. The service
// never sees key material beyond this interface.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// PrivateKeySigner signs with an in-memory secp256k1 key
type PrivateKeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewPrivateKeySigner parses a hex-encoded private key (0x prefix optional)
func NewPrivateKeySigner(privateKeyHex string) (*PrivateKeySigner, error) {
	trimmed := strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKey, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return &PrivateKeySigner{
		key:  key,
		addr: crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// Address returns the signer's address
func (s *PrivateKeySigner) Address() common.Address {
	return s.addr
}

// SignTx signs a transaction for the given chain ID
func (s *PrivateKeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

var _ Signer = (*PrivateKeySigner)(nil)
