package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestMemoryLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Mint(weth, alice, big.NewInt(100))

	require.NoError(t, l.Transfer(ctx, weth, alice, bob, big.NewInt(40)))

	a, _ := l.BalanceOf(ctx, weth, alice)
	b, _ := l.BalanceOf(ctx, weth, bob)
	assert.Equal(t, int64(60), a.Int64())
	assert.Equal(t, int64(40), b.Int64())

	err := l.Transfer(ctx, weth, alice, bob, big.NewInt(61))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	a, _ = l.BalanceOf(ctx, weth, alice)
	assert.Equal(t, int64(60), a.Int64(), "failed transfer must not move funds")

	assert.ErrorIs(t, l.Transfer(ctx, weth, alice, common.Address{}, big.NewInt(1)), ErrZeroAddress)
}

func TestMemoryLedgerApproveSetsAllowance(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	require.NoError(t, l.Approve(ctx, weth, alice, bob, big.NewInt(10)))
	require.NoError(t, l.Approve(ctx, weth, alice, bob, big.NewInt(7)))
	assert.Equal(t, int64(7), l.Allowance(weth, alice, bob).Int64(), "approve sets, it does not add")
}

func TestMemoryLedgerTransferFromConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Mint(weth, alice, big.NewInt(100))
	require.NoError(t, l.Approve(ctx, weth, alice, bob, big.NewInt(30)))

	err := l.TransferFrom(ctx, weth, bob, alice, bob, big.NewInt(31))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, l.TransferFrom(ctx, weth, bob, alice, bob, big.NewInt(20)))
	assert.Equal(t, int64(10), l.Allowance(weth, alice, bob).Int64())
	b, _ := l.BalanceOf(ctx, weth, bob)
	assert.Equal(t, int64(20), b.Int64())
}

func TestMemoryLedgerBalanceIsCopy(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Mint(weth, alice, big.NewInt(5))

	bal, _ := l.BalanceOf(ctx, weth, alice)
	bal.SetInt64(1000)

	again, _ := l.BalanceOf(ctx, weth, alice)
	assert.Equal(t, int64(5), again.Int64())
}
