package decoder

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
)

var (
	testChainID  = int64(1337)
	testExchange = common.HexToAddress("0x48bacb9266a570d521063ef5dd96e61686dbe788")
)

func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := New(testChainID, testExchange)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func makeSignedOrder(t *testing.T, salt int64) *zeroex.SignedOrder {
	t.Helper()
	sig := make([]byte, zeroex.SignatureLength)
	sig[0] = 0x1b
	sig[zeroex.SignatureLength-1] = byte(zeroex.EthSignSignature)
	sig[1] = byte(salt)
	return &zeroex.SignedOrder{
		Order: zeroex.Order{
			ChainID:               big.NewInt(testChainID),
			ExchangeAddress:       testExchange,
			MakerAddress:          common.HexToAddress("0x6ecbe1db9ef729cbe972c83fb886247691fb6beb"),
			TakerAddress:          common.Address{},
			SenderAddress:         common.Address{},
			FeeRecipientAddress:   common.HexToAddress("0x5409ed021d9299bf6814279a6a1411a7e866a631"),
			MakerAssetData:        common.Hex2Bytes("f47261b00000000000000000000000000b1ba0af832d7c05fd64161e0db78e85978e8082"),
			TakerAssetData:        common.Hex2Bytes("f47261b0000000000000000000000000871dd7c5b4b25e1aefb5dbe1cf2b8b648c916233"),
			MakerFeeAssetData:     []byte{},
			TakerFeeAssetData:     []byte{},
			MakerAssetAmount:      big.NewInt(1000),
			TakerAssetAmount:      big.NewInt(100),
			MakerFee:              big.NewInt(0),
			TakerFee:              big.NewInt(0),
			ExpirationTimeSeconds: big.NewInt(1900000000),
			Salt:                  big.NewInt(salt),
		},
		Signature: sig,
	}
}

func sameOrder(t *testing.T, got, want *zeroex.SignedOrder) {
	t.Helper()
	gotHash, err := got.Hash()
	if err != nil {
		t.Fatalf("hash decoded order: %v", err)
	}
	wantHash, err := want.Hash()
	if err != nil {
		t.Fatalf("hash source order: %v", err)
	}
	if gotHash != wantHash {
		t.Fatalf("order hash mismatch: got %s, want %s", gotHash.Hex(), wantHash.Hex())
	}
	if !bytes.Equal(got.Signature, want.Signature) {
		t.Fatal("order signature mismatch")
	}
}

func TestDecodeFillOrder(t *testing.T) {
	d := newTestDecoder(t)
	order := makeSignedOrder(t, 1)
	amount := big.NewInt(40)

	data, err := d.PackFillOrder(order, amount)
	if err != nil {
		t.Fatalf("PackFillOrder: %v", err)
	}
	call, err := d.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if call.FunctionName != "fillOrder" {
		t.Fatalf("function = %q, want fillOrder", call.FunctionName)
	}
	if len(call.Orders) != 1 || len(call.TakerAssetFillAmounts) != 1 {
		t.Fatalf("got %d orders, %d amounts", len(call.Orders), len(call.TakerAssetFillAmounts))
	}
	sameOrder(t, call.Orders[0], order)
	if call.TakerAssetFillAmounts[0].Cmp(amount) != 0 {
		t.Fatalf("fill amount = %s, want %s", call.TakerAssetFillAmounts[0], amount)
	}
	t.Logf("✓ fillOrder round-trips through calldata")
}

func TestDecodeBatchFillOrders(t *testing.T) {
	d := newTestDecoder(t)
	orders := []*zeroex.SignedOrder{makeSignedOrder(t, 1), makeSignedOrder(t, 2), makeSignedOrder(t, 3)}
	amounts := []*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(30)}

	data, err := d.PackBatchFillOrders(orders, amounts)
	if err != nil {
		t.Fatalf("PackBatchFillOrders: %v", err)
	}
	call, err := d.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if call.FunctionName != "batchFillOrders" {
		t.Fatalf("function = %q", call.FunctionName)
	}
	if len(call.Orders) != 3 {
		t.Fatalf("got %d orders, want 3", len(call.Orders))
	}
	for i := range orders {
		sameOrder(t, call.Orders[i], orders[i])
		if call.TakerAssetFillAmounts[i].Cmp(amounts[i]) != 0 {
			t.Fatalf("amount[%d] = %s, want %s", i, call.TakerAssetFillAmounts[i], amounts[i])
		}
	}
	t.Logf("✓ batchFillOrders preserves calldata ordering")
}

func TestDecodeBatchArityMismatch(t *testing.T) {
	d := newTestDecoder(t)
	orders := []*zeroex.SignedOrder{makeSignedOrder(t, 1), makeSignedOrder(t, 2)}
	amounts := []*big.Int{big.NewInt(10)}

	data, err := d.PackBatchFillOrders(orders, amounts)
	if err != nil {
		t.Fatalf("PackBatchFillOrders: %v", err)
	}
	if _, err := d.Decode(data); err == nil {
		t.Fatal("expected a decode error for mismatched batch arrays")
	}
	t.Logf("✓ mismatched batch arrays are rejected")
}

func TestDecodeMarketSell(t *testing.T) {
	d := newTestDecoder(t)
	orders := []*zeroex.SignedOrder{makeSignedOrder(t, 1), makeSignedOrder(t, 2)}
	total := big.NewInt(150)

	data, err := d.PackMarketSellOrdersNoThrow(orders, total)
	if err != nil {
		t.Fatalf("PackMarketSellOrdersNoThrow: %v", err)
	}
	call, err := d.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if call.FunctionName != "marketSellOrdersNoThrow" {
		t.Fatalf("function = %q", call.FunctionName)
	}
	if call.TakerAssetFillAmount == nil || call.TakerAssetFillAmount.Cmp(total) != 0 {
		t.Fatalf("taker total = %v, want %s", call.TakerAssetFillAmount, total)
	}
	if call.TakerAssetFillAmounts != nil {
		t.Fatal("market sell must not set per-order amounts")
	}
	t.Logf("✓ market sell carries a single taker-asset total")
}

func TestDecodeMarketBuy(t *testing.T) {
	d := newTestDecoder(t)
	orders := []*zeroex.SignedOrder{makeSignedOrder(t, 1)}
	total := big.NewInt(500)

	data, err := d.PackMarketBuyOrdersNoThrow(orders, total)
	if err != nil {
		t.Fatalf("PackMarketBuyOrdersNoThrow: %v", err)
	}
	call, err := d.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if call.FunctionName != "marketBuyOrdersNoThrow" {
		t.Fatalf("function = %q", call.FunctionName)
	}
	if call.MakerAssetFillAmount == nil || call.MakerAssetFillAmount.Cmp(total) != 0 {
		t.Fatalf("maker total = %v, want %s", call.MakerAssetFillAmount, total)
	}
	t.Logf("✓ market buy carries a single maker-asset total")
}

func TestDecodeCancels(t *testing.T) {
	d := newTestDecoder(t)
	order := makeSignedOrder(t, 1)

	data, err := d.PackCancelOrder(order)
	if err != nil {
		t.Fatalf("PackCancelOrder: %v", err)
	}
	call, err := d.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if call.FunctionName != "cancelOrder" || len(call.Orders) != 1 {
		t.Fatalf("function = %q, orders = %d", call.FunctionName, len(call.Orders))
	}
	if len(call.Orders[0].Signature) != 0 {
		t.Fatal("cancelOrder calldata carries no signature")
	}

	orders := []*zeroex.SignedOrder{makeSignedOrder(t, 1), makeSignedOrder(t, 2)}
	data, err = d.PackBatchCancelOrders(orders)
	if err != nil {
		t.Fatalf("PackBatchCancelOrders: %v", err)
	}
	call, err = d.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if call.FunctionName != "batchCancelOrders" || len(call.Orders) != 2 {
		t.Fatalf("function = %q, orders = %d", call.FunctionName, len(call.Orders))
	}
	t.Logf("✓ cancel methods decode without signatures")
}

func TestDecodeUnknownSelector(t *testing.T) {
	d := newTestDecoder(t)
	if _, err := d.Decode([]byte{0xde, 0xad, 0xbe, 0xef}); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("err = %v, want ErrUnknownMethod", err)
	}
	if _, err := d.Decode([]byte{0x01}); err == nil {
		t.Fatal("expected an error for truncated calldata")
	}
	t.Logf("✓ unknown selectors and truncated calldata are rejected")
}

func TestDecodeUncoordinatedMethod(t *testing.T) {
	d := newTestDecoder(t)
	data, err := d.PackCancelOrdersUpTo(big.NewInt(7))
	if err != nil {
		t.Fatalf("PackCancelOrdersUpTo: %v", err)
	}
	call, err := d.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if call.FunctionName != "cancelOrdersUpTo" {
		t.Fatalf("function = %q", call.FunctionName)
	}
	if len(call.Orders) != 0 {
		t.Fatal("cancelOrdersUpTo carries no orders")
	}
	t.Logf("✓ known but uncoordinated methods still decode")
}
