package bot

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"amm-entrypoint-bot/internal/amm"
	"amm-entrypoint-bot/internal/engine"
	"amm-entrypoint-bot/internal/entrypoint"
	"amm-entrypoint-bot/internal/ledger"
	"amm-entrypoint-bot/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	weth       = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	token      = common.HexToAddress("0x9d68f97e656AFEFAf63f200FB1C4518Cf2b24A78")
	routerAddr = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	self       = common.HexToAddress("0x00000000000000000000000000000000000e0e0e")
	deployer   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	botAddr    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newSimEntrypoint(t *testing.T, funding *big.Int) (*entrypoint.Entrypoint, *amm.SimRouter) {
	t.Helper()
	l := ledger.NewMemoryLedger()
	r := amm.NewSimRouter(routerAddr, l)
	r.AddLiquidity(weth, token, ether(100), ether(1_000_000))
	l.Mint(weth, self, funding)

	ep, err := entrypoint.New(context.Background(), entrypoint.Deps{
		Config:   models.TradeConfig{Router: routerAddr, BaseAsset: weth, FixedInvestment: big.NewInt(1e17)},
		Deployer: deployer,
		Self:     self,
		Ledger:   l,
		Router:   r,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	require.NoError(t, ep.GrantRole(deployer, models.RoleBot, botAddr))
	return ep, r
}

func TestTickRunsAFullCycle(t *testing.T) {
	ctx := context.Background()
	ep, r := newSimEntrypoint(t, ether(1))

	pump := false
	b := NewTradingBot(ep, botAddr, token, Options{BeforeTick: func() {
		if pump {
			_, err := r.ExternalSwap(weth, token, ether(100))
			require.NoError(t, err)
			pump = false
		}
	}}, zap.NewNop())

	action, err := b.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionBought, action)

	action, err = b.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, action)

	pump = true
	action, err = b.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionSold, action)

	st, err := ep.Status(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 1, st.BaseBalance.Cmp(ether(1)), "selling after the pump is profitable")
	assert.Equal(t, engine.Idle, st.Positions[0].State)

	action, err = b.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, ActionBought, action, "a new cycle starts once idle")
}

func TestTickSkipsWhenUnderfunded(t *testing.T) {
	ep, r := newSimEntrypoint(t, big.NewInt(1))
	b := NewTradingBot(ep, botAddr, token, Options{}, zap.NewNop())

	action, err := b.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, action)
	assert.Equal(t, 0, r.SwapCount())
}

func TestTickSurfacesAuthorizationFailure(t *testing.T) {
	ep, _ := newSimEntrypoint(t, ether(1))
	require.NoError(t, ep.RevokeRole(deployer, models.RoleBot, botAddr))
	b := NewTradingBot(ep, botAddr, token, Options{}, zap.NewNop())

	_, err := b.Tick(context.Background())
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

// countingTrader is a Trader that always reports an idle position.
type countingTrader struct {
	mu    sync.Mutex
	buys  int
	calls int
}

func (c *countingTrader) Buy(context.Context, models.Principal, common.Address) (*models.TradeRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buys++
	return &models.TradeRecord{ID: "x", AmountOut: big.NewInt(1)}, nil
}

func (c *countingTrader) Sell(context.Context, models.Principal, common.Address) (*models.TradeRecord, error) {
	return nil, models.ErrNoPosition
}

func (c *countingTrader) ShouldSell(context.Context, common.Address) (bool, error) {
	return false, nil
}

func (c *countingTrader) Status(_ context.Context, targets ...common.Address) (*entrypoint.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	st := &entrypoint.Status{
		Config:      models.TradeConfig{Router: routerAddr, BaseAsset: weth, FixedInvestment: big.NewInt(1)},
		BaseBalance: big.NewInt(10),
	}
	for _, target := range targets {
		st.Positions = append(st.Positions, entrypoint.Position{Asset: target, Balance: new(big.Int)})
	}
	return st, nil
}

func (c *countingTrader) buyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buys
}

func TestStartStop(t *testing.T) {
	trader := &countingTrader{}
	b := NewTradingBot(trader, botAddr, token, Options{PollInterval: 5 * time.Millisecond}, zap.NewNop())

	require.NoError(t, b.Start(context.Background()))
	assert.Error(t, b.Start(context.Background()), "a running bot cannot be started twice")

	assert.Eventually(t, func() bool { return trader.buyCount() >= 3 }, time.Second, 5*time.Millisecond)
	b.Stop()
	b.Stop()

	n := trader.buyCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, trader.buyCount(), "no ticks after Stop")
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	ep, _ := newSimEntrypoint(t, ether(1))
	b := NewTradingBot(ep, botAddr, token, Options{Report: &buf, Decimals: 18}, zap.NewNop())

	_, err := b.Tick(context.Background())
	require.NoError(t, err)
	b.PrintStatus(context.Background())

	assert.Contains(t, buf.String(), "POSITIONED")
	assert.Contains(t, buf.String(), "0.9")
}
