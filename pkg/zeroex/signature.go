package zeroex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureType is the tag carried in the trailing byte of a 66-byte 0x
// signature (v || r || s || type).
type SignatureType uint8

const (
	// EIP712Signature and EthSignSignature tag maker and taker signatures
	// over typed-data digests.
	EIP712Signature  SignatureType = 0x02
	EthSignSignature SignatureType = 0x03

	// ApprovalSignature tags coordinator fill-approval signatures.
	ApprovalSignature SignatureType = 0x05
)

// SignatureLength is the size of a typed 0x signature.
const SignatureLength = 66

var ethSignPrefix = []byte("\x19Ethereum Signed Message:\n32")

// SignatureTypeOf returns the trailing type tag of a typed signature.
func SignatureTypeOf(signature []byte) (SignatureType, error) {
	if len(signature) != SignatureLength {
		return 0, fmt.Errorf("invalid signature length: got %d, want %d", len(signature), SignatureLength)
	}
	return SignatureType(signature[SignatureLength-1]), nil
}

// signingHash maps a typed-data digest to the hash that is actually signed
// for a given signature type. EthSign wraps the digest in the Ethereum
// signed-message preamble; the other supported types sign the digest as is.
func signingHash(digest common.Hash, sigType SignatureType) (common.Hash, error) {
	switch sigType {
	case EIP712Signature, ApprovalSignature:
		return digest, nil
	case EthSignSignature:
		return common.BytesToHash(keccak256(ethSignPrefix, digest.Bytes())), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported signature type: 0x%02x", uint8(sigType))
	}
}

// ecSignature converts v || r || s || type into the 65-byte r || s || v
// layout secp256k1 recovery expects.
func ecSignature(signature []byte) ([]byte, error) {
	if len(signature) != SignatureLength {
		return nil, fmt.Errorf("invalid signature length: got %d, want %d", len(signature), SignatureLength)
	}
	ec := make([]byte, 65)
	copy(ec[0:32], signature[1:33])
	copy(ec[32:64], signature[33:65])
	v := signature[0]
	if v >= 27 {
		v -= 27
	}
	ec[64] = v
	return ec, nil
}

// RecoverSigner returns the address that produced the typed signature over
// the given typed-data digest.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	sigType, err := SignatureTypeOf(signature)
	if err != nil {
		return common.Address{}, err
	}
	hash, err := signingHash(digest, sigType)
	if err != nil {
		return common.Address{}, err
	}
	ecSig, err := ecSignature(signature)
	if err != nil {
		return common.Address{}, err
	}
	pubBytes, err := crypto.Ecrecover(hash.Bytes(), ecSig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	pub, err := crypto.UnmarshalPubkey(pubBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature reports whether the typed signature over the digest was
// produced by the given address.
func VerifySignature(address common.Address, digest common.Hash, signature []byte) bool {
	recovered, err := RecoverSigner(digest, signature)
	if err != nil {
		return false
	}
	return recovered == address
}
