// Package oracle reads the on-chain state a fill approval depends on:
// ERC-20 balances and allowances of the traders, and how much of each
// order the exchange has already filled. Reads are advisory; the fill
// ledger in storage is what the coordinator enforces.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/coordinator"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
)

const callTimeout = 10 * time.Second

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const exchangeFilledABIJSON = `[
	{"constant":true,"inputs":[{"name":"orderHash","type":"bytes32"}],"name":"filled","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// Client reads trader state over JSON-RPC.
type Client struct {
	eth             *ethclient.Client
	erc20ABI        abi.ABI
	exchangeABI     abi.ABI
	exchangeAddress common.Address
	erc20Proxy      common.Address
	log             *zap.SugaredLogger
}

var _ coordinator.StateReader = (*Client)(nil)

// Dial connects to an Ethereum JSON-RPC endpoint. Allowance reads are made
// against the ERC-20 asset proxy, the contract traders approve to move funds.
func Dial(rpcURL string, exchangeAddress, erc20Proxy common.Address, logger *zap.SugaredLogger) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	exchangeABI, err := abi.JSON(strings.NewReader(exchangeFilledABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse exchange abi: %w", err)
	}
	logger.Infow("oracle_connected", "rpc_url", rpcURL, "exchange", exchangeAddress.Hex())
	return &Client{
		eth:             eth,
		erc20ABI:        erc20ABI,
		exchangeABI:     exchangeABI,
		exchangeAddress: exchangeAddress,
		erc20Proxy:      erc20Proxy,
		log:             logger,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// TraderState snapshots balances, allowances and fill progress for one order
// and one prospective taker. Fee-side reads are skipped for orders that
// charge no fee; those fields come back zero and never constrain the fill.
func (c *Client) TraderState(ctx context.Context, order *zeroex.SignedOrder, taker common.Address) (*coordinator.TraderState, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	makerToken, err := ERC20Token(order.MakerAssetData)
	if err != nil {
		return nil, fmt.Errorf("maker asset data: %w", err)
	}
	takerToken, err := ERC20Token(order.TakerAssetData)
	if err != nil {
		return nil, fmt.Errorf("taker asset data: %w", err)
	}

	state := &coordinator.TraderState{
		MakerFeeBalance:   new(big.Int),
		MakerFeeAllowance: new(big.Int),
		TakerFeeBalance:   new(big.Int),
		TakerFeeAllowance: new(big.Int),
	}

	if state.MakerBalance, err = c.balanceOf(ctx, makerToken, order.MakerAddress); err != nil {
		return nil, err
	}
	if state.MakerAllowance, err = c.allowance(ctx, makerToken, order.MakerAddress); err != nil {
		return nil, err
	}
	if state.TakerBalance, err = c.balanceOf(ctx, takerToken, taker); err != nil {
		return nil, err
	}
	if state.TakerAllowance, err = c.allowance(ctx, takerToken, taker); err != nil {
		return nil, err
	}

	if order.MakerFee.Sign() > 0 {
		feeToken, err := ERC20Token(order.MakerFeeAssetData)
		if err != nil {
			return nil, fmt.Errorf("maker fee asset data: %w", err)
		}
		if state.MakerFeeBalance, err = c.balanceOf(ctx, feeToken, order.MakerAddress); err != nil {
			return nil, err
		}
		if state.MakerFeeAllowance, err = c.allowance(ctx, feeToken, order.MakerAddress); err != nil {
			return nil, err
		}
	}
	if order.TakerFee.Sign() > 0 {
		feeToken, err := ERC20Token(order.TakerFeeAssetData)
		if err != nil {
			return nil, fmt.Errorf("taker fee asset data: %w", err)
		}
		if state.TakerFeeBalance, err = c.balanceOf(ctx, feeToken, taker); err != nil {
			return nil, err
		}
		if state.TakerFeeAllowance, err = c.allowance(ctx, feeToken, taker); err != nil {
			return nil, err
		}
	}

	orderHash, err := order.Hash()
	if err != nil {
		return nil, fmt.Errorf("order hash: %w", err)
	}
	if state.OrderTakerAssetFilledAmount, err = c.filled(ctx, orderHash); err != nil {
		return nil, err
	}
	return state, nil
}

func (c *Client) balanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callUint256(ctx, token, c.erc20ABI, "balanceOf", owner)
}

func (c *Client) allowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callUint256(ctx, token, c.erc20ABI, "allowance", owner, c.erc20Proxy)
}

func (c *Client) filled(ctx context.Context, orderHash common.Hash) (*big.Int, error) {
	return c.callUint256(ctx, c.exchangeAddress, c.exchangeABI, "filled", orderHash)
}

func (c *Client) callUint256(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	results, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, want *big.Int", method, results[0])
	}
	return value, nil
}
