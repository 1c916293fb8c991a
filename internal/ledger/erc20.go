package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"amm-entrypoint-bot/internal/chain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
 {"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// ErrNotSigner is returned when a write is requested for an account the
// ledger holds no key for.
var ErrNotSigner = errors.New("ledger: owner is not the configured signer")

// ERC20Ledger 通过 go-ethereum 与链上 ERC20 合约交互。
// 写操作只能以 sender 的账户发起。
type ERC20Ledger struct {
	sender *chain.Sender
	abi    abi.ABI
}

// NewERC20Ledger creates a ledger bound to the sender's account.
func NewERC20Ledger(sender *chain.Sender) (*ERC20Ledger, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20Ledger{sender: sender, abi: parsed}, nil
}

func (l *ERC20Ledger) BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error) {
	data, err := l.abi.Pack("balanceOf", holder)
	if err != nil {
		return nil, err
	}
	raw, err := l.sender.Call(ctx, asset, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", asset.Hex(), err)
	}
	outs, err := l.abi.Methods["balanceOf"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, errors.New("decode balanceOf")
	}
	bal, ok := outs[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected balanceOf type")
	}
	return bal, nil
}

func (l *ERC20Ledger) Transfer(ctx context.Context, asset, from, to common.Address, amount *big.Int) error {
	if from != l.sender.From() {
		return ErrNotSigner
	}
	data, err := l.abi.Pack("transfer", to, amount)
	if err != nil {
		return err
	}
	if _, err := l.sender.Send(ctx, asset, data); err != nil {
		return fmt.Errorf("transfer %s: %w", asset.Hex(), err)
	}
	return nil
}

func (l *ERC20Ledger) Approve(ctx context.Context, asset, owner, spender common.Address, amount *big.Int) error {
	if owner != l.sender.From() {
		return ErrNotSigner
	}
	data, err := l.abi.Pack("approve", spender, amount)
	if err != nil {
		return err
	}
	if _, err := l.sender.Send(ctx, asset, data); err != nil {
		return fmt.Errorf("approve %s: %w", asset.Hex(), err)
	}
	return nil
}

// Decimals reads the asset's decimals.
func (l *ERC20Ledger) Decimals(ctx context.Context, asset common.Address) (int32, error) {
	data, _ := l.abi.Pack("decimals")
	raw, err := l.sender.Call(ctx, asset, data)
	if err != nil {
		return 0, err
	}
	outs, err := l.abi.Methods["decimals"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return 0, errors.New("decode decimals")
	}
	switch x := outs[0].(type) {
	case uint8:
		return int32(x), nil
	case *big.Int:
		return int32(x.Int64()), nil
	default:
		return 0, errors.New("unexpected decimals type")
	}
}
