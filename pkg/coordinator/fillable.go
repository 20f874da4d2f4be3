package coordinator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
)

// TraderState is a point-in-time snapshot of the on-chain balances,
// allowances and fill progress relevant to one order and one taker. All
// values are read at the same block on a best-effort basis; the approval
// ledger, not this snapshot, is what the coordinator actually enforces.
type TraderState struct {
	MakerBalance      *big.Int
	MakerAllowance    *big.Int
	MakerFeeBalance   *big.Int
	MakerFeeAllowance *big.Int

	TakerBalance      *big.Int
	TakerAllowance    *big.Int
	TakerFeeBalance   *big.Int
	TakerFeeAllowance *big.Int

	OrderTakerAssetFilledAmount *big.Int
}

// StateReader reads trader state from the chain. Implementations respect the
// context deadline.
type StateReader interface {
	TraderState(ctx context.Context, order *zeroex.SignedOrder, taker common.Address) (*TraderState, error)
}

// GetTakerFillAmount converts a maker-asset amount into taker-asset units at
// the order's exchange rate, rounding down.
func GetTakerFillAmount(order *zeroex.Order, makerFillAmount *big.Int) *big.Int {
	return mulDiv(makerFillAmount, order.TakerAssetAmount, order.MakerAssetAmount)
}

// GetMakerFillAmount converts a taker-asset amount into maker-asset units at
// the order's exchange rate, rounding down.
func GetMakerFillAmount(order *zeroex.Order, takerFillAmount *big.Int) *big.Int {
	return mulDiv(takerFillAmount, order.MakerAssetAmount, order.TakerAssetAmount)
}

// RemainingFillable computes the taker-asset amount the order can still
// absorb: the unfilled remainder, bounded by every funding constraint the
// snapshot exposes. Fee constraints only apply when the order charges that
// fee, and the taker-side balance constraint only applies to orders that
// pin a taker address.
func RemainingFillable(order *zeroex.Order, state *TraderState) *big.Int {
	remaining := new(big.Int).Sub(order.TakerAssetAmount, state.OrderTakerAssetFilledAmount)

	if order.TakerAddress != (common.Address{}) {
		remaining = bigMin(remaining, bigMin(state.TakerBalance, state.TakerAllowance))
	}
	makerFunding := bigMin(state.MakerBalance, state.MakerAllowance)
	remaining = bigMin(remaining, GetTakerFillAmount(order, makerFunding))
	if order.TakerFee.Sign() > 0 {
		takerFeeFunding := bigMin(state.TakerFeeBalance, state.TakerFeeAllowance)
		remaining = bigMin(remaining, mulDiv(takerFeeFunding, order.TakerAssetAmount, order.TakerFee))
	}
	if order.MakerFee.Sign() > 0 {
		makerFeeFunding := bigMin(state.MakerFeeBalance, state.MakerFeeAllowance)
		remaining = bigMin(remaining, mulDiv(makerFeeFunding, order.TakerAssetAmount, order.MakerFee))
	}

	if remaining.Sign() < 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(remaining)
}

func bigMin(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// mulDiv computes floor(a * b / c). A zero denominator yields zero rather
// than dividing; degenerate orders then derive zero fills and get refused
// as redundant instead of crashing the request.
func mulDiv(a, b, c *big.Int) *big.Int {
	if c.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}
