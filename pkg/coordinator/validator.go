package coordinator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/util"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
)

// RefusalReason explains why one order was refused approval. Refusals are
// response data, never request errors.
type RefusalReason string

const (
	RefusalSoftCancelled  RefusalReason = "SoftCancelled"
	RefusalExpired        RefusalReason = "Expired"
	RefusalRedundant      RefusalReason = "Redundant"
	RefusalLedgerExceeded RefusalReason = "LedgerExceeded"
)

// OrderRefusal pairs an order hash with the reason approval was refused.
type OrderRefusal struct {
	OrderHash common.Hash
	Reason    RefusalReason
}

// ApprovedFill is an order that passed validation, together with the
// taker-asset amount the request commits to.
type ApprovedFill struct {
	Order      *zeroex.SignedOrder
	OrderHash  common.Hash
	FillAmount *big.Int
}

// Validator applies the per-order validation contract: soft-cancel state,
// expiration, fill redundancy and the request-time ledger bound, checked in
// that order so each order reports its first failing condition.
type Validator struct {
	repo  Repository
	clock util.Clock
}

func NewValidator(repo Repository, clock util.Clock) *Validator {
	return &Validator{repo: repo, clock: clock}
}

// ValidateFills partitions orders into approvals and refusals. The ledger
// check here is advisory; the engine re-applies it atomically when it
// reserves the fills. The only error path is repository I/O.
func (v *Validator) ValidateFills(chainID int64, taker common.Address, orders []*zeroex.SignedOrder, fillAmounts []*big.Int) ([]ApprovedFill, []OrderRefusal, error) {
	now := v.clock.Now().Unix()
	approved := make([]ApprovedFill, 0, len(orders))
	refusals := []OrderRefusal{}

	for i, order := range orders {
		orderHash, err := order.Hash()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash order %d: %w", i, err)
		}

		cancelled, err := v.repo.SoftCancelled(chainID, orderHash)
		if err != nil {
			return nil, nil, fmt.Errorf("soft-cancel lookup: %w", err)
		}
		if cancelled {
			refusals = append(refusals, OrderRefusal{OrderHash: orderHash, Reason: RefusalSoftCancelled})
			continue
		}

		if order.ExpirationTimeSeconds.Cmp(big.NewInt(now)) < 0 {
			refusals = append(refusals, OrderRefusal{OrderHash: orderHash, Reason: RefusalExpired})
			continue
		}

		if fillAmounts[i].Sign() == 0 {
			refusals = append(refusals, OrderRefusal{OrderHash: orderHash, Reason: RefusalRedundant})
			continue
		}

		prior, err := v.repo.RequestedFillAmount(chainID, orderHash, taker)
		if err != nil {
			return nil, nil, fmt.Errorf("fill ledger lookup: %w", err)
		}
		if new(big.Int).Add(prior, fillAmounts[i]).Cmp(order.TakerAssetAmount) > 0 {
			refusals = append(refusals, OrderRefusal{OrderHash: orderHash, Reason: RefusalLedgerExceeded})
			continue
		}

		approved = append(approved, ApprovedFill{Order: order, OrderHash: orderHash, FillAmount: fillAmounts[i]})
	}
	return approved, refusals, nil
}
