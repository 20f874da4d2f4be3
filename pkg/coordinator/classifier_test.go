package coordinator

import (
	"errors"
	"math/big"
	"testing"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex/decoder"
)

func TestClassifyKinds(t *testing.T) {
	cases := map[string]CallKind{
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
	for name, want := range cases {
		kind, err := Classify(&decoder.ExchangeCall{FunctionName: name})
		if err != nil {
			t.Fatalf("Classify(%s): %v", name, err)
		}
		if kind != want {
			t.Fatalf("Classify(%s) = %v, want %v", name, kind, want)
		}
	}
	t.Logf("✓ all eleven coordinated methods classify")
}

func TestClassifyRejectsUncoordinated(t *testing.T) {
	for _, name := range []string{"matchOrders", "cancelOrdersUpTo", "preSign"} {
		_, err := Classify(&decoder.ExchangeCall{FunctionName: name})
		var rerr *RequestError
		if !errors.As(err, &rerr) {
			t.Fatalf("Classify(%s) err = %v, want RequestError", name, err)
		}
		if rerr.Code != CodeInvalidFunctionCall {
			t.Fatalf("Classify(%s) code = %s, want %s", name, rerr.Code, CodeInvalidFunctionCall)
		}
	}
	t.Logf("✓ uncoordinated methods fail classification")
}

func bigs(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func assertBigs(t *testing.T, got []*big.Int, want ...int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d amounts, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Cmp(big.NewInt(want[i])) != 0 {
			t.Fatalf("amount[%d] = %s, want %d", i, got[i], want[i])
		}
	}
}

func TestDeriveMarketSellFillAmounts(t *testing.T) {
	// The total spills across orders in sequence.
	assertBigs(t, DeriveMarketSellFillAmounts(big.NewInt(150), bigs(100, 100)), 100, 50)

	// Capacity order matters: earlier orders absorb first.
	assertBigs(t, DeriveMarketSellFillAmounts(big.NewInt(50), bigs(30, 100)), 30, 20)
	assertBigs(t, DeriveMarketSellFillAmounts(big.NewInt(50), bigs(100, 30)), 50, 0)

	// Oversubscribed: everything fillable is used, nothing more.
	assertBigs(t, DeriveMarketSellFillAmounts(big.NewInt(500), bigs(100, 100)), 100, 100)

	// Undersubscribed: the sum of fills equals the requested total.
	fills := DeriveMarketSellFillAmounts(big.NewInt(120), bigs(100, 100, 100))
	sum := new(big.Int)
	for _, f := range fills {
		sum.Add(sum, f)
	}
	if sum.Cmp(big.NewInt(120)) != 0 {
		t.Fatalf("fills sum to %s, want the requested 120", sum)
	}
	t.Logf("✓ market sell split is sequential and total-preserving")
}

func marketOrder(makerAmount, takerAmount int64) *zeroex.SignedOrder {
	return &zeroex.SignedOrder{Order: zeroex.Order{
		MakerAssetAmount: big.NewInt(makerAmount),
		TakerAssetAmount: big.NewInt(takerAmount),
		MakerFee:         big.NewInt(0),
		TakerFee:         big.NewInt(0),
	}}
}

func TestDeriveMarketBuyFillAmounts(t *testing.T) {
	// Order 1 trades 1000 maker for 100 taker, order 2 trades 600 for 300.
	orders := []*zeroex.SignedOrder{marketOrder(1000, 100), marketOrder(600, 300)}

	// Buying 500 maker units: order 1 wants 50 taker units but can absorb
	// only 30; the 20-unit shortfall converts back to 200 maker units,
	// which order 2 fills at its own rate (100 taker units).
	assertBigs(t, DeriveMarketBuyFillAmounts(orders, big.NewInt(500), bigs(30, 300)), 30, 100)

	// Ample capacity: the first order absorbs the whole total.
	assertBigs(t, DeriveMarketBuyFillAmounts(orders, big.NewInt(500), bigs(100, 300)), 50, 0)

	// Conversion floors: 15 maker units at 1000:100 is 1 taker unit.
	assertBigs(t, DeriveMarketBuyFillAmounts(orders[:1], big.NewInt(15), bigs(100)), 1)
	t.Logf("✓ market buy converts through each order's own rate")
}
