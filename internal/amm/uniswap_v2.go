package amm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"amm-entrypoint-bot/internal/chain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const routerABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

// UniswapV2 实现了 Router 接口，通过 go-ethereum 调用链上的 Uniswap V2 路由合约。
type UniswapV2 struct {
	sender *chain.Sender
	abi    abi.ABI
	router common.Address
}

// NewUniswapV2 binds the router contract at `router`.
func NewUniswapV2(sender *chain.Sender, router common.Address) (*UniswapV2, error) {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	return &UniswapV2{sender: sender, abi: parsed, router: router}, nil
}

func (v *UniswapV2) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := v.abi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	raw, err := v.sender.Call(ctx, v.router, data)
	if err != nil {
		return nil, err
	}
	outs, err := v.abi.Methods["getAmountsOut"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, errors.New("decode getAmountsOut")
	}
	amounts, ok := outs[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, errors.New("bad amounts length")
	}
	return amounts, nil
}

func (v *UniswapV2) SwapExactTokensForTokens(ctx context.Context, from common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline time.Time) (string, error) {
	if from != v.sender.From() {
		return "", fmt.Errorf("v2 router: swap from %s but signer is %s", from.Hex(), v.sender.From().Hex())
	}
	if amountOutMin == nil {
		amountOutMin = big.NewInt(0)
	}
	data, err := v.abi.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, to, big.NewInt(deadline.Unix()))
	if err != nil {
		return "", fmt.Errorf("pack swapExactTokensForTokens: %w", err)
	}
	return v.sender.Send(ctx, v.router, data)
}
