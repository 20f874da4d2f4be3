package zeroex

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// CoordinatorApproval authorizes a txOrigin to settle specific order fills
// before a deadline. The coordinator contract verifies its hash on-chain, so
// the hash must match the contract's EIP-712 encoding exactly.
type CoordinatorApproval struct {
	ChainID            *big.Int
	CoordinatorAddress common.Address

	OrderHashes                   []common.Hash
	TxOrigin                      common.Address
	ApprovalExpirationTimeSeconds *big.Int
}

var eip712ApprovalTypes = apitypes.Types{
	"EIP712Domain": eip712DomainTypes,
	"CoordinatorApproval": {
		{Name: "zeroxOrderHashes", Type: "bytes32[]"},
		{Name: "txOrigin", Type: "address"},
		{Name: "approvalExpirationTimeSeconds", Type: "uint256"},
	},
}

// Hash computes the EIP-712 hash of the approval under the coordinator
// domain. Order hashes are encoded in the order given, so callers fix the
// calldata ordering before hashing.
func (a *CoordinatorApproval) Hash() (common.Hash, error) {
	if a.ChainID == nil {
		return common.Hash{}, errors.New("approval chainId not set")
	}
	orderHashes := make([]string, len(a.OrderHashes))
	for i, h := range a.OrderHashes {
		orderHashes[i] = h.Hex()
	}
	typedData := apitypes.TypedData{
		Types:       eip712ApprovalTypes,
		PrimaryType: "CoordinatorApproval",
		Domain:      coordinatorDomain(a.ChainID, a.CoordinatorAddress),
		Message: apitypes.TypedDataMessage{
			"zeroxOrderHashes":              orderHashes,
			"txOrigin":                      a.TxOrigin.Hex(),
			"approvalExpirationTimeSeconds": a.ApprovalExpirationTimeSeconds.String(),
		},
	}
	hash, err := hashTypedData(typedData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash approval: %w", err)
	}
	return hash, nil
}
