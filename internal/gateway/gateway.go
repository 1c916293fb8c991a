package gateway

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"amm-entrypoint-bot/internal/amm"
	"amm-entrypoint-bot/internal/custody"
	"amm-entrypoint-bot/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const DefaultDeadlineTTL = 5 * time.Minute

// DeadlinePolicy decides the deadline handed to the router for a swap.
type DeadlinePolicy struct {
	TTL time.Duration
}

func (p DeadlinePolicy) deadline(now time.Time) time.Time {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultDeadlineTTL
	}
	return now.Add(ttl)
}

// Options configures the gateway. The zero value accepts any router output.
type Options struct {
	SlippageFloor models.SlippageFloor
}

// Result describes a completed swap.
type Result struct {
	AmountOut *big.Int
	TxHash    string
	// Estimated is set when the post-swap balance could not be read and
	// AmountOut is the pre-swap quote.
	Estimated bool
}

// Gateway 是外部 AMM 路由之上的一层薄适配器。
type Gateway struct {
	router  amm.Router
	address common.Address
	custody *custody.Custody
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a gateway that routes swaps through the router deployed at
// routerAddress, funding them from c.
func New(router amm.Router, routerAddress common.Address, c *custody.Custody, opts Options, logger *zap.Logger) *Gateway {
	return &Gateway{
		router:  router,
		address: routerAddress,
		custody: c,
		opts:    opts,
		now:     time.Now,
		logger:  logger,
	}
}

// QuoteOut is a read-only, non-binding estimate of swapping amountIn.
func (g *Gateway) QuoteOut(ctx context.Context, from, to common.Address, amountIn *big.Int) (*big.Int, error) {
	if err := validate(from, to, amountIn); err != nil {
		return nil, err
	}
	amounts, err := g.router.GetAmountsOut(ctx, amountIn, []common.Address{from, to})
	if err != nil {
		return nil, fmt.Errorf("%w: quote: %v", models.ErrSwapFailed, err)
	}
	if len(amounts) < 2 || amounts[len(amounts)-1] == nil {
		return nil, fmt.Errorf("%w: quote returned %d amounts", models.ErrSwapFailed, len(amounts))
	}
	return amounts[len(amounts)-1], nil
}

// SwapExactIn swaps amountIn of `from` held in custody into `to`, delivered
// to recipient. The realized output is the live balance delta observed at
// the recipient, not the router's own report.
func (g *Gateway) SwapExactIn(ctx context.Context, from, to common.Address, amountIn *big.Int, recipient common.Address, policy DeadlinePolicy) (*Result, error) {
	if err := validate(from, to, amountIn); err != nil {
		return nil, err
	}
	if err := g.custody.Ensure(ctx, from, amountIn); err != nil {
		return nil, err
	}

	quote, minOut, err := g.bounds(ctx, from, to, amountIn)
	if err != nil {
		return nil, err
	}

	before, err := g.balanceAt(ctx, to, recipient)
	if err != nil {
		return nil, err
	}

	if err := g.custody.ApproveSpender(ctx, from, g.address, amountIn); err != nil {
		return nil, err
	}

	txHash, err := g.router.SwapExactTokensForTokens(ctx, g.custody.Self(), amountIn, minOut, []common.Address{from, to}, recipient, policy.deadline(g.now()))
	if err != nil {
		g.resetAllowance(ctx, from)
		return nil, fmt.Errorf("%w: %v", models.ErrSwapFailed, err)
	}

	// The swap is committed from here on; a failed read must not turn it
	// into a reported failure.
	after, err := g.balanceAt(ctx, to, recipient)
	if err != nil {
		estimate := quote
		if estimate == nil || estimate.Cmp(minOut) < 0 {
			estimate = minOut
		}
		g.logger.Warn("could not read balance after swap, recording the pre-swap estimate",
			zap.String("to", to.Hex()),
			zap.String("estimate", estimate.String()),
			zap.String("tx", txHash),
			zap.Error(err))
		return &Result{AmountOut: new(big.Int).Set(estimate), TxHash: txHash, Estimated: true}, nil
	}
	out := new(big.Int).Sub(after, before)
	if out.Sign() <= 0 {
		g.resetAllowance(ctx, from)
		return nil, fmt.Errorf("%w: router reported success but delivered %s", models.ErrSwapFailed, out)
	}

	g.logger.Debug("swap executed",
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", out.String()),
		zap.String("min_out", minOut.String()),
		zap.String("tx", txHash))
	return &Result{AmountOut: out, TxHash: txHash}, nil
}

// bounds quotes the swap and derives the minimum output. minOut is zero
// unless the slippage floor is enabled, in which case it is the quote
// reduced by MaxSlippageBps. Without a floor a failed quote is tolerated
// and quote is nil.
func (g *Gateway) bounds(ctx context.Context, from, to common.Address, amountIn *big.Int) (quote, minOut *big.Int, err error) {
	floor := g.opts.SlippageFloor
	quote, err = g.QuoteOut(ctx, from, to, amountIn)
	if err != nil {
		if floor.Enabled {
			return nil, nil, err
		}
		g.logger.Debug("pre-swap quote unavailable", zap.Error(err))
		quote = nil
	}
	if !floor.Enabled {
		return quote, big.NewInt(0), nil
	}
	minOut = new(big.Int).Mul(quote, big.NewInt(int64(10_000-floor.MaxSlippageBps)))
	return quote, minOut.Quo(minOut, big.NewInt(10_000)), nil
}

func (g *Gateway) balanceAt(ctx context.Context, asset, holder common.Address) (*big.Int, error) {
	return g.custody.BalanceOfHolder(ctx, asset, holder)
}

func (g *Gateway) resetAllowance(ctx context.Context, asset common.Address) {
	if err := g.custody.ApproveSpender(ctx, asset, g.address, big.NewInt(0)); err != nil {
		g.logger.Warn("failed to reset router allowance after failed swap", zap.String("asset", asset.Hex()), zap.Error(err))
	}
}

func validate(from, to common.Address, amountIn *big.Int) error {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amountIn must be positive", models.ErrInvalidSwap)
	}
	if from == to {
		return fmt.Errorf("%w: from and to are both %s", models.ErrInvalidSwap, from.Hex())
	}
	return nil
}
