package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger 定义了外部同质化代币账本的最小接口 (balanceOf / transfer / approve)。
// 同一个接口同时服务于模拟账本和链上 ERC20 合约。
type Ledger interface {
	BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error)
	// Transfer moves amount of asset from `from` to `to`. It fails when from's
	// balance is insufficient.
	Transfer(ctx context.Context, asset, from, to common.Address, amount *big.Int) error
	// Approve sets (does not add to) spender's allowance over owner's asset.
	Approve(ctx context.Context, asset, owner, spender common.Address, amount *big.Int) error
}
