package amm

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Router 定义了外部 AMM 路由的接口 (Uniswap V2 兼容)。
// 这使得入口可以在模拟池子和链上路由之间轻松切换。
type Router interface {
	// GetAmountsOut quotes the output of every hop along path for amountIn.
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	// SwapExactTokensForTokens pulls amountIn of path[0] from `from` (which
	// must have approved the router) and sends the output to `to`. The swap
	// reverts if the output is below amountOutMin or the deadline passed.
	SwapExactTokensForTokens(ctx context.Context, from common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline time.Time) (txHash string, err error)
}

var (
	ErrExpired                  = errors.New("UniswapV2Router: EXPIRED")
	ErrInsufficientOutputAmount = errors.New("UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")
	ErrInsufficientInputAmount  = errors.New("UniswapV2Library: INSUFFICIENT_INPUT_AMOUNT")
	ErrInsufficientLiquidity    = errors.New("UniswapV2Library: INSUFFICIENT_LIQUIDITY")
	ErrInvalidPath              = errors.New("UniswapV2Library: INVALID_PATH")
	ErrPairNotFound             = errors.New("UniswapV2: pair not found")
)

// GetAmountOut applies the constant-product formula with a 0.3% fee.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(997))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(1000))
	denominator.Add(denominator, amountInWithFee)
	return numerator.Quo(numerator, denominator), nil
}
