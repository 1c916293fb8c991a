package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds     = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("transfer to the zero address")
	ErrNegativeAmount        = errors.New("negative amount")
)

type allowanceKey struct {
	owner, spender common.Address
}

// MemoryLedger 实现了 Ledger 接口，用于模拟多个 ERC20 资产的余额与授权。
type MemoryLedger struct {
	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int

	// FailTransfers forces Transfer/TransferFrom to fail, for fault injection.
	FailTransfers bool
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[allowanceKey]*big.Int),
	}
}

// Mint credits amount of asset to holder.
func (l *MemoryLedger) Mint(asset, holder common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balance(asset, holder)
	l.setBalance(asset, holder, new(big.Int).Add(bal, amount))
}

func (l *MemoryLedger) BalanceOf(_ context.Context, asset, holder common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(asset, holder)), nil
}

func (l *MemoryLedger) Transfer(_ context.Context, asset, from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(asset, from, to, amount)
}

func (l *MemoryLedger) Approve(_ context.Context, asset, owner, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.allowances[asset]
	if !ok {
		set = make(map[allowanceKey]*big.Int)
		l.allowances[asset] = set
	}
	set[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns spender's remaining allowance over owner's asset.
func (l *MemoryLedger) Allowance(asset, owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.allowance(asset, owner, spender))
}

// TransferFrom moves owner's funds on behalf of spender, consuming allowance.
func (l *MemoryLedger) TransferFrom(_ context.Context, asset, spender, from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	allowed := l.allowance(asset, from, spender)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientAllowance, allowed, amount)
	}
	if err := l.move(asset, from, to, amount); err != nil {
		return err
	}
	l.allowances[asset][allowanceKey{from, spender}] = new(big.Int).Sub(allowed, amount)
	return nil
}

// move 必须在持有锁的情况下调用
func (l *MemoryLedger) move(asset, from, to common.Address, amount *big.Int) error {
	if l.FailTransfers {
		return errors.New("transfer disabled")
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal := l.balance(asset, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientFunds, fromBal, amount)
	}
	l.setBalance(asset, from, new(big.Int).Sub(fromBal, amount))
	l.setBalance(asset, to, new(big.Int).Add(l.balance(asset, to), amount))
	return nil
}

func (l *MemoryLedger) balance(asset, holder common.Address) *big.Int {
	if bal, ok := l.balances[asset][holder]; ok {
		return bal
	}
	return new(big.Int)
}

func (l *MemoryLedger) setBalance(asset, holder common.Address, amount *big.Int) {
	set, ok := l.balances[asset]
	if !ok {
		set = make(map[common.Address]*big.Int)
		l.balances[asset] = set
	}
	set[holder] = amount
}

func (l *MemoryLedger) allowance(asset, owner, spender common.Address) *big.Int {
	if a, ok := l.allowances[asset][allowanceKey{owner, spender}]; ok {
		return a
	}
	return new(big.Int)
}
