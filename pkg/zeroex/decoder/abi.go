package decoder

import "strings"

// orderComponents is the LibOrder.Order tuple layout shared by every
// exchange method that takes orders.
const orderComponents = `[
	{"name":"makerAddress","type":"address"},
	{"name":"takerAddress","type":"address"},
	{"name":"feeRecipientAddress","type":"address"},
	{"name":"senderAddress","type":"address"},
	{"name":"makerAssetAmount","type":"uint256"},
	{"name":"takerAssetAmount","type":"uint256"},
	{"name":"makerFee","type":"uint256"},
	{"name":"takerFee","type":"uint256"},
	{"name":"expirationTimeSeconds","type":"uint256"},
	{"name":"salt","type":"uint256"},
	{"name":"makerAssetData","type":"bytes"},
	{"name":"takerAssetData","type":"bytes"},
	{"name":"makerFeeAssetData","type":"bytes"},
	{"name":"takerFeeAssetData","type":"bytes"}
]`

// exchangeABIJSON covers the exchange v3 surface the coordinator recognizes.
// matchOrders and cancelOrdersUpTo are decodable but not coordinated, so a
// transaction naming them fails classification rather than decoding.
var exchangeABIJSON = strings.ReplaceAll(`[
	{"type":"function","name":"fillOrder","inputs":[{"name":"order","type":"tuple","components":@ORDER@},{"name":"takerAssetFillAmount","type":"uint256"},{"name":"signature","type":"bytes"}]},
	{"type":"function","name":"fillOrKillOrder","inputs":[{"name":"order","type":"tuple","components":@ORDER@},{"name":"takerAssetFillAmount","type":"uint256"},{"name":"signature","type":"bytes"}]},
	{"type":"function","name":"batchFillOrders","inputs":[{"name":"orders","type":"tuple[]","components":@ORDER@},{"name":"takerAssetFillAmounts","type":"uint256[]"},{"name":"signatures","type":"bytes[]"}]},
	{"type":"function","name":"batchFillOrKillOrders","inputs":[{"name":"orders","type":"tuple[]","components":@ORDER@},{"name":"takerAssetFillAmounts","type":"uint256[]"},{"name":"signatures","type":"bytes[]"}]},
	{"type":"function","name":"batchFillOrdersNoThrow","inputs":[{"name":"orders","type":"tuple[]","components":@ORDER@},{"name":"takerAssetFillAmounts","type":"uint256[]"},{"name":"signatures","type":"bytes[]"}]},
	{"type":"function","name":"marketSellOrdersNoThrow","inputs":[{"name":"orders","type":"tuple[]","components":@ORDER@},{"name":"takerAssetFillAmount","type":"uint256"},{"name":"signatures","type":"bytes[]"}]},
	{"type":"function","name":"marketSellOrdersFillOrKill","inputs":[{"name":"orders","type":"tuple[]","components":@ORDER@},{"name":"takerAssetFillAmount","type":"uint256"},{"name":"signatures","type":"bytes[]"}]},
	{"type":"function","name":"marketBuyOrdersNoThrow","inputs":[{"name":"orders","type":"tuple[]","components":@ORDER@},{"name":"makerAssetFillAmount","type":"uint256"},{"name":"signatures","type":"bytes[]"}]},
	{"type":"function","name":"marketBuyOrdersFillOrKill","inputs":[{"name":"orders","type":"tuple[]","components":@ORDER@},{"name":"makerAssetFillAmount","type":"uint256"},{"name":"signatures","type":"bytes[]"}]},
	{"type":"function","name":"cancelOrder","inputs":[{"name":"order","type":"tuple","components":@ORDER@}]},
	{"type":"function","name":"batchCancelOrders","inputs":[{"name":"orders","type":"tuple[]","components":@ORDER@}]},
	{"type":"function","name":"matchOrders","inputs":[{"name":"leftOrder","type":"tuple","components":@ORDER@},{"name":"rightOrder","type":"tuple","components":@ORDER@},{"name":"leftSignature","type":"bytes"},{"name":"rightSignature","type":"bytes"}]},
	{"type":"function","name":"cancelOrdersUpTo","inputs":[{"name":"targetOrderEpoch","type":"uint256"}]}
]`, "@ORDER@", orderComponents)
