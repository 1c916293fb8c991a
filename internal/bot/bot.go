package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"amm-entrypoint-bot/internal/entrypoint"
	"amm-entrypoint-bot/internal/models"
	"amm-entrypoint-bot/internal/reporter"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Trader is the part of the entrypoint the bot drives.
type Trader interface {
	Buy(ctx context.Context, caller models.Principal, target common.Address) (*models.TradeRecord, error)
	Sell(ctx context.Context, caller models.Principal, target common.Address) (*models.TradeRecord, error)
	ShouldSell(ctx context.Context, target common.Address) (bool, error)
	Status(ctx context.Context, targets ...common.Address) (*entrypoint.Status, error)
}

// Action 描述一次 tick 的结果
type Action string

const (
	ActionBought  Action = "BOUGHT"
	ActionSold    Action = "SOLD"
	ActionHold    Action = "HOLD"
	ActionSkipped Action = "SKIPPED" // 余额不足等可恢复的情况
)

// Options 配置机器人的节奏
type Options struct {
	PollInterval   time.Duration
	StatusInterval time.Duration
	// Decimals of the base asset, used by the status report.
	Decimals int32
	// BeforeTick runs before each strategy tick; simulation mode uses it to
	// move the pool price.
	BeforeTick func()
	// Report receives the periodic status table; nil disables it.
	Report io.Writer
}

// TradingBot 在空仓时按固定投入买入目标资产, 持仓时轮询 shouldSell 并在触发时全部卖出
type TradingBot struct {
	trader  Trader
	account models.Principal
	target  common.Address
	opts    Options

	mutex       sync.Mutex
	isRunning   bool
	stopChannel chan struct{}
	wg          sync.WaitGroup
	logger      *zap.Logger
}

func NewTradingBot(trader Trader, account models.Principal, target common.Address, opts Options, logger *zap.Logger) *TradingBot {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = time.Minute
	}
	return &TradingBot{
		trader:  trader,
		account: account,
		target:  target,
		opts:    opts,
		logger:  logger.With(zap.String("bot", account.Hex()), zap.String("target", target.Hex())),
	}
}

// Tick runs one strategy step: buy when idle, otherwise sell once the
// profit trigger fires. Authorization failures are returned since the bot
// cannot recover from them; insufficient funds only skip the step.
func (b *TradingBot) Tick(ctx context.Context) (Action, error) {
	if b.opts.BeforeTick != nil {
		b.opts.BeforeTick()
	}

	st, err := b.trader.Status(ctx, b.target)
	if err != nil {
		return ActionSkipped, fmt.Errorf("read status: %w", err)
	}
	if len(st.Positions) != 1 {
		return ActionSkipped, fmt.Errorf("status returned %d positions", len(st.Positions))
	}
	pos := st.Positions[0]

	if pos.Balance.Sign() == 0 {
		rec, err := b.trader.Buy(ctx, b.account, b.target)
		if errors.Is(err, models.ErrInsufficientBalance) {
			b.logger.Warn("not enough base asset to open a position", zap.String("balance", st.BaseBalance.String()))
			return ActionSkipped, nil
		}
		if err != nil {
			return ActionSkipped, err
		}
		b.logger.Info("opened position", zap.String("trade", rec.ID), zap.String("received", rec.AmountOut.String()))
		return ActionBought, nil
	}

	sell, err := b.trader.ShouldSell(ctx, b.target)
	if err != nil {
		return ActionSkipped, err
	}
	if !sell {
		b.logger.Debug("holding", zap.String("balance", pos.Balance.String()), zap.Stringer("quote", quoteOrZero(pos.Quote)))
		return ActionHold, nil
	}

	rec, err := b.trader.Sell(ctx, b.account, b.target)
	if err != nil {
		return ActionSkipped, err
	}
	b.logger.Info("closed position", zap.String("trade", rec.ID), zap.String("proceeds", rec.AmountOut.String()))
	return ActionSold, nil
}

// Start launches the strategy and status loops.
func (b *TradingBot) Start(ctx context.Context) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.isRunning {
		return errors.New("bot is already running")
	}
	b.isRunning = true
	b.stopChannel = make(chan struct{})

	b.wg.Add(2)
	go b.strategyLoop(ctx)
	go b.monitorStatus(ctx)
	b.logger.Info("trading bot started", zap.Duration("poll", b.opts.PollInterval))
	return nil
}

// Stop waits for the loops to finish their current step.
func (b *TradingBot) Stop() {
	b.mutex.Lock()
	if !b.isRunning {
		b.mutex.Unlock()
		return
	}
	b.isRunning = false
	close(b.stopChannel)
	b.mutex.Unlock()

	b.wg.Wait()
	b.logger.Info("trading bot stopped")
}

func (b *TradingBot) strategyLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChannel:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.Tick(ctx); err != nil {
				b.logger.Error("strategy tick failed", zap.Error(err))
			}
		}
	}
}

func (b *TradingBot) monitorStatus(ctx context.Context) {
	defer b.wg.Done()
	if b.opts.Report == nil {
		return
	}
	ticker := time.NewTicker(b.opts.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChannel:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.PrintStatus(ctx)
		}
	}
}

// PrintStatus writes the status report to opts.Report.
func (b *TradingBot) PrintStatus(ctx context.Context) {
	if b.opts.Report == nil {
		return
	}
	st, err := b.trader.Status(ctx, b.target)
	if err != nil {
		b.logger.Warn("could not read status", zap.Error(err))
		return
	}
	reporter.GenerateReport(b.opts.Report, st, b.opts.Decimals)
}

func quoteOrZero(q *big.Int) *big.Int {
	if q == nil {
		return new(big.Int)
	}
	return q
}
