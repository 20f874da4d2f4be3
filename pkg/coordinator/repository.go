package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
)

// ErrTransactionSeen marks an insert whose transaction hash already exists.
var ErrTransactionSeen = errors.New("transaction hash already recorded")

// Repository persists coordinator state. All writes must be durable before
// the engine returns a response built on them. Implementations are safe for
// concurrent use; ReserveFill in particular must be atomic.
type Repository interface {
	// SoftCancel marks order hashes as soft-cancelled. Idempotent.
	SoftCancel(chainID int64, orderHashes []common.Hash) error
	// SoftCancelled reports whether one order hash is soft-cancelled.
	SoftCancelled(chainID int64, orderHash common.Hash) (bool, error)
	// FilterSoftCancelled returns the subset of hashes that are
	// soft-cancelled, preserving input order.
	FilterSoftCancelled(chainID int64, orderHashes []common.Hash) ([]common.Hash, error)

	// RequestedFillAmount returns the cumulative taker-asset amount this
	// taker has been granted against the order. Zero when unseen.
	RequestedFillAmount(chainID int64, orderHash common.Hash, taker common.Address) (*big.Int, error)
	// ReserveFill atomically adds delta to the taker's cumulative fill if
	// the result stays within max. Returns false, without writing, when
	// the reservation would overshoot.
	ReserveFill(chainID int64, orderHash common.Hash, taker common.Address, delta, max *big.Int) (bool, error)

	// HasTransaction reports whether a transaction hash was ever approved.
	HasTransaction(chainID int64, txHash common.Hash) (bool, error)
	// InsertTransaction records an approved transaction. Returns
	// ErrTransactionSeen if the hash is already present.
	InsertTransaction(chainID int64, record *TransactionRecord) error
	// OutstandingFillApprovals returns, for each given order hash, the
	// recorded approvals that have not expired as of now (unix seconds).
	OutstandingFillApprovals(chainID int64, orderHashes []common.Hash, now int64) ([]FillApprovalRecord, error)
}

// TransactionRecord is the persisted outcome of an approved fill request.
// It retains everything needed to audit the approval digest later.
type TransactionRecord struct {
	TransactionHash               common.Hash
	TxOrigin                      common.Address
	SignerAddress                 common.Address
	ExpirationTimeSeconds         *big.Int
	ApprovalExpirationTimeSeconds int64
	ApprovedOrderHashes           []common.Hash
	ApprovedFillAmounts           []*big.Int
	ApprovalSignatures            []string
	FunctionName                  string
	Orders                        []*zeroex.SignedOrder
	TakerAssetFillAmounts         []*big.Int
}

// FillAmountFor returns the approved fill amount recorded for an order
// hash, or zero when the order was not part of the approval.
func (r *TransactionRecord) FillAmountFor(orderHash common.Hash) *big.Int {
	for i, h := range r.ApprovedOrderHashes {
		if h == orderHash && i < len(r.ApprovedFillAmounts) {
			return r.ApprovedFillAmounts[i]
		}
	}
	return new(big.Int)
}

type transactionRecordJSON struct {
	TransactionHash               string                `json:"transactionHash"`
	TxOrigin                      string                `json:"txOrigin"`
	SignerAddress                 string                `json:"signerAddress"`
	ExpirationTimeSeconds         string                `json:"expirationTimeSeconds"`
	ApprovalExpirationTimeSeconds int64                 `json:"approvalExpirationTimeSeconds"`
	ApprovedOrderHashes           []string              `json:"approvedOrderHashes"`
	ApprovedFillAmounts           []string              `json:"approvedFillAmounts"`
	ApprovalSignatures            []string              `json:"approvalSignatures"`
	FunctionName                  string                `json:"functionName"`
	Orders                        []*zeroex.SignedOrder `json:"orders"`
	TakerAssetFillAmounts         []string              `json:"takerAssetFillAmounts"`
}

// MarshalJSON implements json.Marshaler.
func (r TransactionRecord) MarshalJSON() ([]byte, error) {
	exp := "0"
	if r.ExpirationTimeSeconds != nil {
		exp = r.ExpirationTimeSeconds.String()
	}
	return json.Marshal(transactionRecordJSON{
		TransactionHash:               r.TransactionHash.Hex(),
		TxOrigin:                      strings.ToLower(r.TxOrigin.Hex()),
		SignerAddress:                 strings.ToLower(r.SignerAddress.Hex()),
		ExpirationTimeSeconds:         exp,
		ApprovalExpirationTimeSeconds: r.ApprovalExpirationTimeSeconds,
		ApprovedOrderHashes:           hashesToHex(r.ApprovedOrderHashes),
		ApprovedFillAmounts:           bigsToStrings(r.ApprovedFillAmounts),
		ApprovalSignatures:            r.ApprovalSignatures,
		FunctionName:                  r.FunctionName,
		Orders:                        r.Orders,
		TakerAssetFillAmounts:         bigsToStrings(r.TakerAssetFillAmounts),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *TransactionRecord) UnmarshalJSON(data []byte) error {
	var raw transactionRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	exp, ok := new(big.Int).SetString(raw.ExpirationTimeSeconds, 10)
	if !ok {
		return fmt.Errorf("invalid expirationTimeSeconds: %q", raw.ExpirationTimeSeconds)
	}
	approvedAmounts, err := bigsFromStrings(raw.ApprovedFillAmounts)
	if err != nil {
		return fmt.Errorf("invalid approvedFillAmounts: %w", err)
	}
	fillAmounts, err := bigsFromStrings(raw.TakerAssetFillAmounts)
	if err != nil {
		return fmt.Errorf("invalid takerAssetFillAmounts: %w", err)
	}
	r.TransactionHash = common.HexToHash(raw.TransactionHash)
	r.TxOrigin = common.HexToAddress(raw.TxOrigin)
	r.SignerAddress = common.HexToAddress(raw.SignerAddress)
	r.ExpirationTimeSeconds = exp
	r.ApprovalExpirationTimeSeconds = raw.ApprovalExpirationTimeSeconds
	r.ApprovedOrderHashes = hashesFromHex(raw.ApprovedOrderHashes)
	r.ApprovedFillAmounts = approvedAmounts
	r.ApprovalSignatures = raw.ApprovalSignatures
	r.FunctionName = raw.FunctionName
	r.Orders = raw.Orders
	r.TakerAssetFillAmounts = fillAmounts
	return nil
}

// FillApprovalRecord is the wire form of one outstanding approval against an
// order, as returned by soft-cancel responses.
type FillApprovalRecord struct {
	OrderHash             string   `json:"orderHash"`
	ApprovalSignatures    []string `json:"approvalSignatures"`
	ExpirationTimeSeconds int64    `json:"expirationTimeSeconds"`
	TakerAssetFillAmount  string   `json:"takerAssetFillAmount"`
}

func hashesToHex(hashes []common.Hash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.Hex()
	}
	return out
}

func hashesFromHex(hexes []string) []common.Hash {
	out := make([]common.Hash, len(hexes))
	for i, s := range hexes {
		out[i] = common.HexToHash(s)
	}
	return out
}

func bigsToStrings(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = "0"
			continue
		}
		out[i] = v.String()
	}
	return out
}

func bigsFromStrings(values []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, s := range values {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("not a valid integer: %q", s)
		}
		out[i] = v
	}
	return out, nil
}
