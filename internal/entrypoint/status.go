package entrypoint

import (
	"context"
	"math/big"

	"amm-entrypoint-bot/internal/engine"
	"amm-entrypoint-bot/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Position is the live view of one target asset.
type Position struct {
	Asset      common.Address
	Balance    *big.Int
	State      engine.State
	Quote      *big.Int // base-asset proceeds of selling Balance now; nil when idle
	ShouldSell bool
}

// Status is a point-in-time view used by the reporter.
type Status struct {
	Config       models.TradeConfig
	BaseBalance  *big.Int
	Positions    []Position
	Admins       []models.Principal
	Bots         []models.Principal
	RecentTrades []models.TradeRecord
}

// Status reads live balances and quotes for each target. It never mutates
// state.
func (e *Entrypoint) Status(ctx context.Context, targets ...common.Address) (*Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	base, err := e.custody.BalanceOfSelf(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{
		Config:       e.configCopy(),
		BaseBalance:  base,
		Admins:       e.roles.Members(models.RoleAdmin),
		Bots:         e.roles.Members(models.RoleBot),
		RecentTrades: append([]models.TradeRecord(nil), e.trades...),
	}

	for _, target := range targets {
		state, err := e.engine.State(ctx, target)
		if err != nil {
			return nil, err
		}
		bal, err := e.custody.BalanceOf(ctx, target)
		if err != nil {
			return nil, err
		}
		pos := Position{Asset: target, Balance: bal, State: state}
		if state == engine.Positioned {
			if pos.Quote, err = e.gateway.QuoteOut(ctx, target, e.cfg.BaseAsset, bal); err != nil {
				return nil, err
			}
			if pos.ShouldSell, err = e.engine.ShouldSell(ctx, target); err != nil {
				return nil, err
			}
		}
		st.Positions = append(st.Positions, pos)
	}
	return st, nil
}
