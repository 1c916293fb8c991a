package amm

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"amm-entrypoint-bot/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type pairKey struct {
	token0, token1 common.Address
}

type pool struct {
	reserve0, reserve1 *big.Int
}

// SimRouter 实现了 Router 接口，用于模拟恒定乘积池子以进行回测和测试。
// 池子的资产以 Address 的名义记在 MemoryLedger 上。
type SimRouter struct {
	Address common.Address

	mu     sync.Mutex
	ledger *ledger.MemoryLedger
	pools  map[pairKey]*pool
	now    func() time.Time
	nonce  uint64

	// FailNext makes the next swap revert with this error.
	FailNext error
	swaps    int
}

// NewSimRouter creates a router whose pools are held by address on l.
func NewSimRouter(address common.Address, l *ledger.MemoryLedger) *SimRouter {
	return &SimRouter{
		Address: address,
		ledger:  l,
		pools:   make(map[pairKey]*pool),
		now:     time.Now,
	}
}

// SetClock overrides the clock used for deadline checks.
func (r *SimRouter) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// AddLiquidity seeds or tops up the tokenA/tokenB pool.
func (r *SimRouter) AddLiquidity(tokenA, tokenB common.Address, amountA, amountB *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, flipped := sortPair(tokenA, tokenB)
	p, ok := r.pools[key]
	if !ok {
		p = &pool{reserve0: new(big.Int), reserve1: new(big.Int)}
		r.pools[key] = p
	}
	if flipped {
		amountA, amountB = amountB, amountA
	}
	p.reserve0.Add(p.reserve0, amountA)
	p.reserve1.Add(p.reserve1, amountB)
	r.ledger.Mint(key.token0, r.Address, amountA)
	r.ledger.Mint(key.token1, r.Address, amountB)
}

// Reserves returns the reserves of tokenIn and tokenOut in that order.
func (r *SimRouter) Reserves(tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, out, err := r.reserves(tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(in), new(big.Int).Set(out), nil
}

// SwapCount returns how many swaps were attempted, reverted ones included.
func (r *SimRouter) SwapCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swaps
}

func (r *SimRouter) GetAmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.amountsOut(amountIn, path)
}

func (r *SimRouter) SwapExactTokensForTokens(ctx context.Context, from common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swaps++

	if err := r.FailNext; err != nil {
		r.FailNext = nil
		return "", err
	}
	if r.now().After(deadline) {
		return "", ErrExpired
	}
	amounts, err := r.amountsOut(amountIn, path)
	if err != nil {
		return "", err
	}
	amountOut := amounts[len(amounts)-1]
	if amountOut.Sign() == 0 {
		return "", ErrInsufficientOutputAmount
	}
	if amountOutMin != nil && amountOut.Cmp(amountOutMin) < 0 {
		return "", fmt.Errorf("%w: got %s, min %s", ErrInsufficientOutputAmount, amountOut, amountOutMin)
	}

	tokenIn, tokenOut := path[0], path[len(path)-1]
	if err := r.ledger.TransferFrom(ctx, tokenIn, r.Address, from, r.Address, amountIn); err != nil {
		return "", fmt.Errorf("UniswapV2: TRANSFER_FROM_FAILED: %w", err)
	}
	if err := r.ledger.Transfer(ctx, tokenOut, r.Address, to, amountOut); err != nil {
		// undo the pull so the swap is all-or-nothing
		_ = r.ledger.Transfer(ctx, tokenIn, r.Address, from, amountIn)
		allowance := r.ledger.Allowance(tokenIn, from, r.Address)
		_ = r.ledger.Approve(ctx, tokenIn, from, r.Address, allowance.Add(allowance, amountIn))
		return "", fmt.Errorf("UniswapV2: TRANSFER_FAILED: %w", err)
	}

	for i := 0; i < len(path)-1; i++ {
		in, out, _ := r.reserves(path[i], path[i+1])
		in.Add(in, amounts[i])
		out.Sub(out, amounts[i+1])
	}

	r.nonce++
	return r.txHash(from, r.nonce), nil
}

// ExternalSwap simulates a third-party trade that moves the price of the
// pool. The output is sent to a sink account so ledger balances stay
// consistent with the reserves.
func (r *SimRouter) ExternalSwap(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	amounts, err := r.amountsOut(amountIn, []common.Address{tokenIn, tokenOut})
	if err != nil {
		return nil, err
	}
	sink := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	r.ledger.Mint(tokenIn, r.Address, amountIn)
	if err := r.ledger.Transfer(context.Background(), tokenOut, r.Address, sink, amounts[1]); err != nil {
		return nil, err
	}
	in, out, _ := r.reserves(tokenIn, tokenOut)
	in.Add(in, amountIn)
	out.Sub(out, amounts[1])
	return amounts[1], nil
}

// amountsOut 必须在持有锁的情况下调用
func (r *SimRouter) amountsOut(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		in, out, err := r.reserves(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		amounts[i+1], err = GetAmountOut(amounts[i], in, out)
		if err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

// reserves returns live pointers into the pool, ordered (in, out).
func (r *SimRouter) reserves(tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	if tokenIn == tokenOut {
		return nil, nil, ErrInvalidPath
	}
	key, flipped := sortPair(tokenIn, tokenOut)
	p, ok := r.pools[key]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrPairNotFound, tokenIn.Hex(), tokenOut.Hex())
	}
	if flipped {
		return p.reserve1, p.reserve0, nil
	}
	return p.reserve0, p.reserve1, nil
}

func (r *SimRouter) txHash(from common.Address, nonce uint64) string {
	buf := make([]byte, 0, 2*common.AddressLength+8)
	buf = append(buf, r.Address.Bytes()...)
	buf = append(buf, from.Bytes()...)
	buf = append(buf, new(big.Int).SetUint64(nonce).Bytes()...)
	return crypto.Keccak256Hash(buf).Hex()
}

func sortPair(a, b common.Address) (pairKey, bool) {
	if bytes.Compare(a[:], b[:]) < 0 {
		return pairKey{a, b}, false
	}
	return pairKey{b, a}, true
}
