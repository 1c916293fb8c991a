package custody

import (
	"context"
	"fmt"
	"math/big"

	"amm-entrypoint-bot/internal/ledger"
	"amm-entrypoint-bot/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Custody tracks and moves the entrypoint's holdings through the external
// ledger. It keeps no balance of its own: every query and every check
// re-reads the ledger.
type Custody struct {
	ledger    ledger.Ledger
	self      common.Address
	baseAsset common.Address
}

// New binds custody of baseAsset held by self.
func New(l ledger.Ledger, self, baseAsset common.Address) *Custody {
	return &Custody{ledger: l, self: self, baseAsset: baseAsset}
}

// Self returns the account that holds the entrypoint's funds.
func (c *Custody) Self() common.Address { return c.self }

// BalanceOfSelf reads the live base-asset balance.
func (c *Custody) BalanceOfSelf(ctx context.Context) (*big.Int, error) {
	return c.BalanceOf(ctx, c.baseAsset)
}

// BalanceOf reads the live balance of any asset held by the entrypoint.
func (c *Custody) BalanceOf(ctx context.Context, asset common.Address) (*big.Int, error) {
	return c.BalanceOfHolder(ctx, asset, c.self)
}

// BalanceOfHolder reads the live balance of asset held by another account.
func (c *Custody) BalanceOfHolder(ctx context.Context, asset, holder common.Address) (*big.Int, error) {
	bal, err := c.ledger.BalanceOf(ctx, asset, holder)
	if err != nil {
		return nil, fmt.Errorf("%w: balanceOf %s: %v", models.ErrLedger, asset.Hex(), err)
	}
	return bal, nil
}

// TransferOut moves amount of the base asset to `to`.
func (c *Custody) TransferOut(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: transfer amount %v", models.ErrInvalidAmount, amount)
	}
	if err := c.Ensure(ctx, c.baseAsset, amount); err != nil {
		return err
	}
	if err := c.ledger.Transfer(ctx, c.baseAsset, c.self, to, amount); err != nil {
		return fmt.Errorf("%w: transfer to %s: %v", models.ErrLedger, to.Hex(), err)
	}
	return nil
}

// ApproveSpender sets spender's allowance over asset to amount.
func (c *Custody) ApproveSpender(ctx context.Context, asset, spender common.Address, amount *big.Int) error {
	if err := c.ledger.Approve(ctx, asset, c.self, spender, amount); err != nil {
		return fmt.Errorf("%w: approve %s: %v", models.ErrLedger, spender.Hex(), err)
	}
	return nil
}

// Ensure fails with ErrInsufficientBalance unless the live balance of asset
// covers amount.
func (c *Custody) Ensure(ctx context.Context, asset common.Address, amount *big.Int) error {
	bal, err := c.BalanceOf(ctx, asset)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, want %s", models.ErrInsufficientBalance, bal, amount)
	}
	return nil
}
