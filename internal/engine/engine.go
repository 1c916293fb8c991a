package engine

import (
	"context"
	"fmt"
	"math/big"

	"amm-entrypoint-bot/internal/accesscontrol"
	"amm-entrypoint-bot/internal/custody"
	"amm-entrypoint-bot/internal/gateway"
	"amm-entrypoint-bot/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultProfitMultipleBps 表示报价收益超过投入的两倍时才卖出
const DefaultProfitMultipleBps = 20_000

// State is the position state for one target asset, derived from the live
// target balance.
type State int

const (
	Idle State = iota
	Positioned
)

func (s State) String() string {
	if s == Positioned {
		return "POSITIONED"
	}
	return "IDLE"
}

// Policy holds the tunable parts of the engine.
type Policy struct {
	// ProfitMultipleBps is the sell trigger as a multiple of the fixed
	// investment, in basis points.
	ProfitMultipleBps int
	Deadline          gateway.DeadlinePolicy
}

// Engine orchestrates buy and sell using the role registry for
// authorization, custody for funding and the gateway for execution.
// Engine itself is not synchronized.
type Engine struct {
	cfg     models.TradeConfig
	roles   *accesscontrol.Registry
	custody *custody.Custody
	gateway *gateway.Gateway
	policy  Policy
	logger  *zap.Logger
}

// New creates an engine. A non-positive ProfitMultipleBps falls back to the
// doubling trigger.
func New(cfg models.TradeConfig, roles *accesscontrol.Registry, c *custody.Custody, gw *gateway.Gateway, policy Policy, logger *zap.Logger) *Engine {
	if policy.ProfitMultipleBps <= 0 {
		policy.ProfitMultipleBps = DefaultProfitMultipleBps
	}
	return &Engine{cfg: cfg, roles: roles, custody: c, gateway: gw, policy: policy, logger: logger}
}

// Buy swaps the fixed investment of base asset into target. Repeated buys
// add to the held balance.
func (e *Engine) Buy(ctx context.Context, caller models.Principal, target common.Address) (*models.TradeRecord, error) {
	if err := e.roles.Check(caller, models.RoleBot, models.RoleAdmin); err != nil {
		return nil, err
	}
	amountIn := new(big.Int).Set(e.cfg.FixedInvestment)
	res, err := e.gateway.SwapExactIn(ctx, e.cfg.BaseAsset, target, amountIn, e.custody.Self(), e.policy.Deadline)
	if err != nil {
		return nil, fmt.Errorf("buy %s: %w", target.Hex(), err)
	}
	e.logger.Info("bought target asset",
		zap.String("caller", caller.Hex()),
		zap.String("target", target.Hex()),
		zap.String("spent", amountIn.String()),
		zap.String("received", res.AmountOut.String()))
	return &models.TradeRecord{
		Side:      models.Buy,
		Caller:    caller,
		FromAsset: e.cfg.BaseAsset,
		ToAsset:   target,
		AmountIn:  amountIn,
		AmountOut: res.AmountOut,
		TxHash:    res.TxHash,
		Estimated: res.Estimated,
	}, nil
}

// Sell swaps the entire live balance of target back into the base asset.
func (e *Engine) Sell(ctx context.Context, caller models.Principal, target common.Address) (*models.TradeRecord, error) {
	if err := e.roles.Check(caller, models.RoleBot, models.RoleAdmin); err != nil {
		return nil, models.ErrOnlyBotOrAdmin
	}
	if target == e.cfg.BaseAsset {
		return nil, fmt.Errorf("%w: cannot sell the base asset", models.ErrInvalidSwap)
	}
	balance, err := e.custody.BalanceOf(ctx, target)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, fmt.Errorf("%w in %s", models.ErrNoPosition, target.Hex())
	}
	res, err := e.gateway.SwapExactIn(ctx, target, e.cfg.BaseAsset, balance, e.custody.Self(), e.policy.Deadline)
	if err != nil {
		return nil, fmt.Errorf("sell %s: %w", target.Hex(), err)
	}
	e.logger.Info("sold target asset",
		zap.String("caller", caller.Hex()),
		zap.String("target", target.Hex()),
		zap.String("sold", balance.String()),
		zap.String("received", res.AmountOut.String()))
	return &models.TradeRecord{
		Side:      models.Sell,
		Caller:    caller,
		FromAsset: target,
		ToAsset:   e.cfg.BaseAsset,
		AmountIn:  balance,
		AmountOut: res.AmountOut,
		TxHash:    res.TxHash,
		Estimated: res.Estimated,
	}, nil
}

// ShouldSell reports whether the quoted base-asset proceeds of the whole
// target balance exceed the fixed investment times the profit multiple.
// It never mutates state.
func (e *Engine) ShouldSell(ctx context.Context, target common.Address) (bool, error) {
	if target == e.cfg.BaseAsset {
		return false, fmt.Errorf("%w: target is the base asset", models.ErrInvalidSwap)
	}
	balance, err := e.custody.BalanceOf(ctx, target)
	if err != nil {
		return false, err
	}
	if balance.Sign() == 0 {
		return false, nil
	}
	proceeds, err := e.gateway.QuoteOut(ctx, target, e.cfg.BaseAsset, balance)
	if err != nil {
		return false, err
	}
	return exceedsThreshold(proceeds, e.cfg.FixedInvestment, e.policy.ProfitMultipleBps), nil
}

// State derives the position state for target from its live balance.
func (e *Engine) State(ctx context.Context, target common.Address) (State, error) {
	balance, err := e.custody.BalanceOf(ctx, target)
	if err != nil {
		return Idle, err
	}
	if balance.Sign() > 0 {
		return Positioned, nil
	}
	return Idle, nil
}

// exceedsThreshold: proceeds * 10000 > investment * multipleBps
func exceedsThreshold(proceeds, investment *big.Int, multipleBps int) bool {
	lhs := new(big.Int).Mul(proceeds, big.NewInt(10_000))
	rhs := new(big.Int).Mul(investment, big.NewInt(int64(multipleBps)))
	return lhs.Cmp(rhs) > 0
}
