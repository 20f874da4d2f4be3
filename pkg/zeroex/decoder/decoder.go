// Package decoder parses 0x exchange calldata into typed calls and packs
// typed calls back into calldata.
package decoder

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
)

// ErrUnknownMethod marks calldata whose selector is not in the exchange ABI.
var ErrUnknownMethod = errors.New("unknown exchange method")

// abiOrder mirrors the LibOrder.Order tuple for abi unpacking.
type abiOrder struct {
	MakerAddress          common.Address
	TakerAddress          common.Address
	FeeRecipientAddress   common.Address
	SenderAddress         common.Address
	MakerAssetAmount      *big.Int
	TakerAssetAmount      *big.Int
	MakerFee              *big.Int
	TakerFee              *big.Int
	ExpirationTimeSeconds *big.Int
	Salt                  *big.Int
	MakerAssetData        []byte
	TakerAssetData        []byte
	MakerFeeAssetData     []byte
	TakerFeeAssetData     []byte
}

// ExchangeCall is a decoded exchange method invocation. Exactly one of the
// fill amount fields is populated, depending on the method family:
// TakerAssetFillAmounts for direct fills (aligned with Orders),
// TakerAssetFillAmount for market sells, MakerAssetFillAmount for market
// buys. Cancellations populate none.
type ExchangeCall struct {
	FunctionName          string
	Orders                []*zeroex.SignedOrder
	TakerAssetFillAmounts []*big.Int
	TakerAssetFillAmount  *big.Int
	MakerAssetFillAmount  *big.Int
}

// Decoder translates between exchange calldata and typed calls for one
// chain. Orders parsed from calldata carry no chain context of their own,
// so the decoder decorates them with its chain id and exchange address.
type Decoder struct {
	abi             abi.ABI
	chainID         *big.Int
	exchangeAddress common.Address
}

// New builds a decoder bound to a chain id and its exchange contract.
func New(chainID int64, exchangeAddress common.Address) (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(exchangeABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse exchange abi: %w", err)
	}
	return &Decoder{
		abi:             parsed,
		chainID:         big.NewInt(chainID),
		exchangeAddress: exchangeAddress,
	}, nil
}

// Decode parses exchange calldata into a typed call.
func (d *Decoder) Decode(data []byte) (*ExchangeCall, error) {
	if len(data) < 4 {
		return nil, errors.New("calldata shorter than a method selector")
	}
	method, err := d.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: selector 0x%x", ErrUnknownMethod, data[:4])
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method.Name, err)
	}

	call := &ExchangeCall{FunctionName: method.Name}
	switch method.Name {
	case "fillOrder", "fillOrKillOrder":
		order := d.signedOrder(values[0], values[2].([]byte))
		call.Orders = []*zeroex.SignedOrder{order}
		call.TakerAssetFillAmounts = []*big.Int{values[1].(*big.Int)}

	case "batchFillOrders", "batchFillOrKillOrders", "batchFillOrdersNoThrow":
		amounts := values[1].([]*big.Int)
		orders, err := d.signedOrders(values[0], values[2].([][]byte))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method.Name, err)
		}
		if len(amounts) != len(orders) {
			return nil, fmt.Errorf("%s: %d orders but %d fill amounts", method.Name, len(orders), len(amounts))
		}
		call.Orders = orders
		call.TakerAssetFillAmounts = amounts

	case "marketSellOrdersNoThrow", "marketSellOrdersFillOrKill":
		orders, err := d.signedOrders(values[0], values[2].([][]byte))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method.Name, err)
		}
		call.Orders = orders
		call.TakerAssetFillAmount = values[1].(*big.Int)

	case "marketBuyOrdersNoThrow", "marketBuyOrdersFillOrKill":
		orders, err := d.signedOrders(values[0], values[2].([][]byte))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method.Name, err)
		}
		call.Orders = orders
		call.MakerAssetFillAmount = values[1].(*big.Int)

	case "cancelOrder":
		call.Orders = []*zeroex.SignedOrder{d.signedOrder(values[0], nil)}

	case "batchCancelOrders":
		orders, err := d.signedOrders(values[0], nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method.Name, err)
		}
		call.Orders = orders
	}
	return call, nil
}

func (d *Decoder) signedOrder(value interface{}, signature []byte) *zeroex.SignedOrder {
	raw := abi.ConvertType(value, new(abiOrder)).(*abiOrder)
	return d.decorate(raw, signature)
}

// signedOrders converts an unpacked tuple[] plus its parallel signatures.
// Cancellations carry no signatures; nil is accepted for them.
func (d *Decoder) signedOrders(value interface{}, signatures [][]byte) ([]*zeroex.SignedOrder, error) {
	raw := *abi.ConvertType(value, new([]abiOrder)).(*[]abiOrder)
	if signatures != nil && len(signatures) != len(raw) {
		return nil, fmt.Errorf("%d orders but %d signatures", len(raw), len(signatures))
	}
	orders := make([]*zeroex.SignedOrder, len(raw))
	for i := range raw {
		var sig []byte
		if signatures != nil {
			sig = signatures[i]
		}
		orders[i] = d.decorate(&raw[i], sig)
	}
	return orders, nil
}

func (d *Decoder) decorate(raw *abiOrder, signature []byte) *zeroex.SignedOrder {
	return &zeroex.SignedOrder{
		Order: zeroex.Order{
			ChainID:               d.chainID,
			ExchangeAddress:       d.exchangeAddress,
			MakerAddress:          raw.MakerAddress,
			TakerAddress:          raw.TakerAddress,
			FeeRecipientAddress:   raw.FeeRecipientAddress,
			SenderAddress:         raw.SenderAddress,
			MakerAssetAmount:      raw.MakerAssetAmount,
			TakerAssetAmount:      raw.TakerAssetAmount,
			MakerFee:              raw.MakerFee,
			TakerFee:              raw.TakerFee,
			ExpirationTimeSeconds: raw.ExpirationTimeSeconds,
			Salt:                  raw.Salt,
			MakerAssetData:        raw.MakerAssetData,
			TakerAssetData:        raw.TakerAssetData,
			MakerFeeAssetData:     raw.MakerFeeAssetData,
			TakerFeeAssetData:     raw.TakerFeeAssetData,
		},
		Signature: signature,
	}
}

func toABIOrder(o *zeroex.Order) abiOrder {
	return abiOrder{
		MakerAddress:          o.MakerAddress,
		TakerAddress:          o.TakerAddress,
		FeeRecipientAddress:   o.FeeRecipientAddress,
		SenderAddress:         o.SenderAddress,
		MakerAssetAmount:      o.MakerAssetAmount,
		TakerAssetAmount:      o.TakerAssetAmount,
		MakerFee:              o.MakerFee,
		TakerFee:              o.TakerFee,
		ExpirationTimeSeconds: o.ExpirationTimeSeconds,
		Salt:                  o.Salt,
		MakerAssetData:        o.MakerAssetData,
		TakerAssetData:        o.TakerAssetData,
		MakerFeeAssetData:     o.MakerFeeAssetData,
		TakerFeeAssetData:     o.TakerFeeAssetData,
	}
}

func toABIOrders(orders []*zeroex.SignedOrder) ([]abiOrder, [][]byte) {
	raw := make([]abiOrder, len(orders))
	sigs := make([][]byte, len(orders))
	for i, o := range orders {
		raw[i] = toABIOrder(&o.Order)
		sigs[i] = o.Signature
	}
	return raw, sigs
}

// PackFillOrder builds fillOrder calldata.
func (d *Decoder) PackFillOrder(order *zeroex.SignedOrder, takerAssetFillAmount *big.Int) ([]byte, error) {
	return d.abi.Pack("fillOrder", toABIOrder(&order.Order), takerAssetFillAmount, order.Signature)
}

// PackFillOrKillOrder builds fillOrKillOrder calldata.
func (d *Decoder) PackFillOrKillOrder(order *zeroex.SignedOrder, takerAssetFillAmount *big.Int) ([]byte, error) {
	return d.abi.Pack("fillOrKillOrder", toABIOrder(&order.Order), takerAssetFillAmount, order.Signature)
}

// PackBatchFillOrders builds batchFillOrders calldata.
func (d *Decoder) PackBatchFillOrders(orders []*zeroex.SignedOrder, takerAssetFillAmounts []*big.Int) ([]byte, error) {
	raw, sigs := toABIOrders(orders)
	return d.abi.Pack("batchFillOrders", raw, takerAssetFillAmounts, sigs)
}

// PackMarketSellOrdersNoThrow builds marketSellOrdersNoThrow calldata.
func (d *Decoder) PackMarketSellOrdersNoThrow(orders []*zeroex.SignedOrder, takerAssetFillAmount *big.Int) ([]byte, error) {
	raw, sigs := toABIOrders(orders)
	return d.abi.Pack("marketSellOrdersNoThrow", raw, takerAssetFillAmount, sigs)
}

// PackMarketBuyOrdersNoThrow builds marketBuyOrdersNoThrow calldata.
func (d *Decoder) PackMarketBuyOrdersNoThrow(orders []*zeroex.SignedOrder, makerAssetFillAmount *big.Int) ([]byte, error) {
	raw, sigs := toABIOrders(orders)
	return d.abi.Pack("marketBuyOrdersNoThrow", raw, makerAssetFillAmount, sigs)
}

// PackCancelOrder builds cancelOrder calldata. Cancellations carry no order
// signature.
func (d *Decoder) PackCancelOrder(order *zeroex.SignedOrder) ([]byte, error) {
	return d.abi.Pack("cancelOrder", toABIOrder(&order.Order))
}

// PackBatchCancelOrders builds batchCancelOrders calldata.
func (d *Decoder) PackBatchCancelOrders(orders []*zeroex.SignedOrder) ([]byte, error) {
	raw, _ := toABIOrders(orders)
	return d.abi.Pack("batchCancelOrders", raw)
}

// PackCancelOrdersUpTo builds cancelOrdersUpTo calldata. The coordinator
// refuses it at classification; the packer exists for tests and tooling.
func (d *Decoder) PackCancelOrdersUpTo(targetOrderEpoch *big.Int) ([]byte, error) {
	return d.abi.Pack("cancelOrdersUpTo", targetOrderEpoch)
}
