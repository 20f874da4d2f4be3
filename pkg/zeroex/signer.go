package zeroex

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds a secp256k1 key pair and produces typed 0x signatures.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// NewSignerFromHex creates a signer from a hex private key, with or without
// the 0x prefix.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address returns the Ethereum address derived from the key.
func (s *Signer) Address() common.Address { return s.address }

// PrivateKeyHex returns the private key as hex without the 0x prefix.
// Keep this out of logs.
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.privateKey))
}

// SignDigest signs a typed-data digest and returns the 66-byte signature
// v || r || s || type. For EthSign the digest is wrapped in the signed
// message preamble before signing.
func (s *Signer) SignDigest(digest common.Hash, sigType SignatureType) ([]byte, error) {
	hash, err := signingHash(digest, sigType)
	if err != nil {
		return nil, err
	}
	ecSig, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	signature := make([]byte, SignatureLength)
	signature[0] = ecSig[64] + 27
	copy(signature[1:33], ecSig[0:32])
	copy(signature[33:65], ecSig[32:64])
	signature[65] = byte(sigType)
	return signature, nil
}
