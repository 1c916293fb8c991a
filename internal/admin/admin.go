package admin

import (
	"context"
	"math/big"

	"amm-entrypoint-bot/internal/accesscontrol"
	"amm-entrypoint-bot/internal/custody"
	"amm-entrypoint-bot/internal/models"

	"go.uber.org/zap"
)

// Ops 提供仅限 ADMIN 的资金操作
type Ops struct {
	roles   *accesscontrol.Registry
	custody *custody.Custody
	cfg     models.TradeConfig
	logger  *zap.Logger
}

func New(cfg models.TradeConfig, roles *accesscontrol.Registry, c *custody.Custody, logger *zap.Logger) *Ops {
	return &Ops{roles: roles, custody: c, cfg: cfg, logger: logger}
}

// Redeem withdraws amount of the base asset to the calling admin.
func (o *Ops) Redeem(ctx context.Context, caller models.Principal, amount *big.Int) (*models.TradeRecord, error) {
	if err := o.roles.Check(caller, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := o.custody.TransferOut(ctx, caller, amount); err != nil {
		return nil, err
	}
	o.logger.Info("redeemed base asset", zap.String("admin", caller.Hex()), zap.String("amount", amount.String()))
	return &models.TradeRecord{
		Side:      models.Redeem,
		Caller:    caller,
		FromAsset: o.cfg.BaseAsset,
		ToAsset:   o.cfg.BaseAsset,
		AmountIn:  new(big.Int).Set(amount),
		AmountOut: new(big.Int).Set(amount),
	}, nil
}
