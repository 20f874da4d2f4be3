package oracle

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// erc20ProxyID is the 4-byte asset proxy selector for ERC20Token(address).
var erc20ProxyID = []byte{0xf4, 0x72, 0x61, 0xb0}

const erc20AssetDataLength = 36

// EncodeERC20AssetData builds asset data for an ERC-20 token: the proxy id
// followed by the token address ABI-encoded as a 32-byte word.
func EncodeERC20AssetData(token common.Address) []byte {
	data := make([]byte, erc20AssetDataLength)
	copy(data, erc20ProxyID)
	copy(data[16:], token.Bytes())
	return data
}

// ERC20Token extracts the token address from ERC-20 asset data. Other proxy
// families (ERC-721, multi-asset) are not priced by this oracle.
func ERC20Token(assetData []byte) (common.Address, error) {
	if len(assetData) != erc20AssetDataLength {
		return common.Address{}, fmt.Errorf("asset data is %d bytes, want %d", len(assetData), erc20AssetDataLength)
	}
	if !bytes.Equal(assetData[:4], erc20ProxyID) {
		return common.Address{}, fmt.Errorf("unsupported asset proxy id %#x", assetData[:4])
	}
	return common.BytesToAddress(assetData[16:]), nil
}
