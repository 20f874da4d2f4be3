package coordinator

import (
	"fmt"
	"math/big"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex/decoder"
)

// CallKind buckets the exchange methods the coordinator serves.
type CallKind int

const (
	KindFill CallKind = iota
	KindMarketSell
	KindMarketBuy
	KindCancel
)

// coordinatedMethods maps every exchange method the coordinator will approve
// to its kind. A decodable method outside this set fails classification.
var coordinatedMethods = map[string]CallKind{
	"fillOrder":                  KindFill,
	"fillOrKillOrder":            KindFill,
	"batchFillOrders":            KindFill,
	"batchFillOrKillOrders":      KindFill,
	"batchFillOrdersNoThrow":     KindFill,
	"marketSellOrdersNoThrow":    KindMarketSell,
	"marketSellOrdersFillOrKill": KindMarketSell,
	"marketBuyOrdersNoThrow":     KindMarketBuy,
	"marketBuyOrdersFillOrKill":  KindMarketBuy,
	"cancelOrder":                KindCancel,
	"batchCancelOrders":          KindCancel,
}

// Classify buckets a decoded exchange call into its coordinated kind.
func Classify(call *decoder.ExchangeCall) (CallKind, error) {
	kind, ok := coordinatedMethods[call.FunctionName]
	if !ok {
		return 0, newRequestError(CodeInvalidFunctionCall, "signedTransaction.data",
			fmt.Sprintf("exchange method %q cannot be coordinated", call.FunctionName))
	}
	return kind, nil
}

// DeriveMarketSellFillAmounts splits a taker-asset total across orders in
// calldata order. Each order absorbs as much of the remaining total as its
// capacity allows; later orders see only what is left.
func DeriveMarketSellFillAmounts(total *big.Int, capacities []*big.Int) []*big.Int {
	remaining := new(big.Int).Set(total)
	fills := make([]*big.Int, len(capacities))
	for i, capacity := range capacities {
		fills[i] = new(big.Int).Set(bigMin(remaining, capacity))
		remaining.Sub(remaining, fills[i])
	}
	return fills
}

// DeriveMarketBuyFillAmounts converts a maker-asset total into per-order
// taker-asset fills in calldata order. The whole remaining total converts
// through each order's rate; whatever its capacity cannot absorb converts
// back and rolls to the next order.
func DeriveMarketBuyFillAmounts(orders []*zeroex.SignedOrder, total *big.Int, capacities []*big.Int) []*big.Int {
	remaining := new(big.Int).Set(total)
	fills := make([]*big.Int, len(orders))
	for i, order := range orders {
		takerWanted := GetTakerFillAmount(&order.Order, remaining)
		fills[i] = new(big.Int).Set(bigMin(takerWanted, capacities[i]))
		unfilled := new(big.Int).Sub(takerWanted, fills[i])
		remaining = GetMakerFillAmount(&order.Order, unfilled)
	}
	return fills
}
