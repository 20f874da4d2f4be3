package zeroex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/crypto/sha3"
)

// The coordinator deals with two EIP-712 signing domains: the exchange
// domain covers orders and meta-transactions, the coordinator domain covers
// fill approvals.
const (
	ExchangeDomainName    = "0x Protocol"
	ExchangeDomainVersion = "3.0.0"

	CoordinatorDomainName    = "0x Protocol Coordinator"
	CoordinatorDomainVersion = "1.0.0"
)

var eip712DomainTypes = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

func exchangeDomain(chainID *big.Int, exchangeAddress common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              ExchangeDomainName,
		Version:           ExchangeDomainVersion,
		ChainId:           (*math.HexOrDecimal256)(chainID),
		VerifyingContract: exchangeAddress.Hex(),
	}
}

func coordinatorDomain(chainID *big.Int, coordinatorAddress common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              CoordinatorDomainName,
		Version:           CoordinatorDomainVersion,
		ChainId:           (*math.HexOrDecimal256)(chainID),
		VerifyingContract: coordinatorAddress.Hex(),
	}
}

// hashTypedData computes keccak256("\x19\x01" || domainSeparator || structHash).
func hashTypedData(typedData apitypes.TypedData) (common.Hash, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash %s: %w", typedData.PrimaryType, err)
	}
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(structHash)))
	return crypto.Keccak256Hash(rawData), nil
}

func keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		_, _ = d.Write(b)
	}
	return d.Sum(nil)
}
