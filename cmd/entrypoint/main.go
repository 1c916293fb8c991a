package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"amm-entrypoint-bot/internal/amm"
	"amm-entrypoint-bot/internal/bot"
	"amm-entrypoint-bot/internal/chain"
	"amm-entrypoint-bot/internal/config"
	"amm-entrypoint-bot/internal/engine"
	"amm-entrypoint-bot/internal/entrypoint"
	"amm-entrypoint-bot/internal/gateway"
	"amm-entrypoint-bot/internal/ledger"
	"amm-entrypoint-bot/internal/logger"
	"amm-entrypoint-bot/internal/metrics"
	"amm-entrypoint-bot/internal/models"
	"amm-entrypoint-bot/internal/persistence"
	"amm-entrypoint-bot/internal/reporter"
	"amm-entrypoint-bot/internal/statemanager"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 模拟模式下未配置私钥时使用的固定身份
var (
	simDeployer = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	simBot      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	simSelf     = common.HexToAddress("0x000000000000000000000000000000000000e0e0")
)

// venue 是 sim/live 两种模式共同产出的交易环境
type venue struct {
	ledger   ledger.Ledger
	router   amm.Router
	self     common.Address
	deployer models.Principal
	bot      models.Principal
	decimals int32
	// beforeTick moves the simulated price; nil in live mode.
	beforeTick func()
}

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "", "running mode: sim or live (overrides the config file)")
	reportInterval := flag.Duration("report", time.Minute, "interval between status reports, 0 disables them")
	journal := flag.Int("journal", 0, "print the last N journaled trades and exit, -1 prints all")
	flag.Parse()

	// 先用默认配置初始化日志, 以便记录加载配置时的错误
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err := config.Validate(cfg); err != nil {
		logger.S().Fatalf("配置无效: %v", err)
	}

	log := logger.InitLogger(cfg.LogConfig)
	defer log.Sync()

	if *journal != 0 {
		if err := printJournal(cfg, *journal); err != nil {
			log.Fatal("failed to read trade journal", zap.Error(err))
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *reportInterval, log); err != nil {
		log.Fatal("entrypoint exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *models.Config, reportInterval time.Duration, log *zap.Logger) error {
	tradeCfg, err := config.TradeConfig(cfg)
	if err != nil {
		return err
	}
	target := common.HexToAddress(cfg.TargetAssetAddress)

	var v *venue
	switch cfg.Mode {
	case "sim":
		v, err = simVenue(cfg, tradeCfg, target, log)
	case "live":
		v, err = liveVenue(ctx, cfg, tradeCfg, log)
	default:
		err = fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if err != nil {
		return err
	}

	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	restored, err := repo.LoadState()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	initial := restored
	if initial == nil {
		initial = &models.EntrypointState{
			Version: models.CurrentStateVersion,
			Config:  tradeCfg,
			Roles:   map[models.Role][]models.Principal{models.RoleAdmin: {v.deployer}},
		}
	}
	sm := statemanager.NewStateManager(initial, repo, log)
	sm.Start()
	defer sm.Stop()

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	metrics.Serve(ctx, cfg.MetricsAddr, reg, log)

	ep, err := entrypoint.New(ctx, entrypoint.Deps{
		Config:   tradeCfg,
		Deployer: v.deployer,
		Self:     v.self,
		Ledger:   v.ledger,
		Router:   v.router,
		Policy: engine.Policy{
			ProfitMultipleBps: cfg.ProfitMultipleBps,
			Deadline:          gateway.DeadlinePolicy{TTL: time.Duration(cfg.DeadlineTTLSec) * time.Second},
		},
		GatewayOptions: gateway.Options{SlippageFloor: cfg.SlippageFloor},
		BaseDecimals:   v.decimals,
		Restored:       restored,
		State:          sm,
		Metrics:        m,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	if !ep.HasRole(models.RoleBot, v.bot) {
		if err := ep.GrantRole(v.deployer, models.RoleBot, v.bot); err != nil {
			return fmt.Errorf("grant bot role to %s: %w", v.bot.Hex(), err)
		}
	}

	opts := bot.Options{
		PollInterval:   time.Duration(cfg.PollIntervalSec) * time.Second,
		StatusInterval: reportInterval,
		Decimals:       v.decimals,
		BeforeTick:     v.beforeTick,
	}
	if reportInterval > 0 {
		opts.Report = os.Stdout
	}
	tradingBot := bot.NewTradingBot(ep, v.bot, target, opts, log)

	// 有限 tick 的模拟直接同步执行, 结束后打印报告
	if cfg.Mode == "sim" && cfg.Sim.Ticks > 0 {
		for i := 0; i < cfg.Sim.Ticks && ctx.Err() == nil; i++ {
			action, err := tradingBot.Tick(ctx)
			if err != nil {
				return err
			}
			log.Debug("tick", zap.Int("n", i+1), zap.String("action", string(action)))
		}
		st, err := ep.Status(ctx, target)
		if err != nil {
			return err
		}
		reporter.GenerateReport(os.Stdout, st, v.decimals)
		return nil
	}

	if err := tradingBot.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info("shutdown signal received")
	tradingBot.Stop()
	tradingBot.PrintStatus(context.Background())
	return nil
}

// printJournal dumps the persisted trade journal without starting the bot.
func printJournal(cfg *models.Config, limit int) error {
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	trades, err := repo.ListTrades(limit)
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	reporter.GenerateJournal(os.Stdout, trades, cfg.BaseAssetDecimals)
	return nil
}

// simVenue seeds a constant-product pool and funds the entrypoint, the same
// fixture the contract's fork tests used.
func simVenue(cfg *models.Config, tradeCfg models.TradeConfig, target common.Address, log *zap.Logger) (*venue, error) {
	decimals := cfg.BaseAssetDecimals
	funding, err := models.ParseUnits(cfg.Sim.InitialFunding, decimals)
	if err != nil {
		return nil, err
	}
	baseReserve, err := models.ParseUnits(cfg.Sim.BaseReserve, decimals)
	if err != nil {
		return nil, err
	}
	targetReserve, err := models.ParseUnits(cfg.Sim.TargetReserve, cfg.Sim.TargetDecimals)
	if err != nil {
		return nil, err
	}

	deployer, botAccount := simDeployer, simBot
	if cfg.DeployerKey != "" {
		if deployer, err = chain.AddressFromKey(cfg.DeployerKey); err != nil {
			return nil, err
		}
	}
	if cfg.BotKey != "" {
		if botAccount, err = chain.AddressFromKey(cfg.BotKey); err != nil {
			return nil, err
		}
	}

	l := ledger.NewMemoryLedger()
	r := amm.NewSimRouter(tradeCfg.Router, l)
	r.AddLiquidity(tradeCfg.BaseAsset, target, baseReserve, targetReserve)
	l.Mint(tradeCfg.BaseAsset, simSelf, funding)

	drift := decimal.NewFromFloat(cfg.Sim.PriceDriftPerMin)
	beforeTick := func() {
		if !drift.IsPositive() {
			return
		}
		reserve, _, err := r.Reserves(tradeCfg.BaseAsset, target)
		if err != nil {
			return
		}
		amount := decimal.NewFromBigInt(reserve, 0).Mul(drift).BigInt()
		if amount.Sign() == 0 {
			return
		}
		if _, err := r.ExternalSwap(tradeCfg.BaseAsset, target, amount); err != nil {
			log.Warn("simulated market buy failed", zap.Error(err))
		}
	}

	log.Info("simulation venue ready",
		zap.String("funding", cfg.Sim.InitialFunding),
		zap.String("base_reserve", cfg.Sim.BaseReserve),
		zap.String("target_reserve", cfg.Sim.TargetReserve),
		zap.Float64("drift", cfg.Sim.PriceDriftPerMin))

	return &venue{
		ledger:     l,
		router:     r,
		self:       simSelf,
		deployer:   deployer,
		bot:        botAccount,
		decimals:   decimals,
		beforeTick: beforeTick,
	}, nil
}

// liveVenue talks to a real chain. The deployer key signs every approve,
// transfer and swap, so the deployer's account is the custody account.
func liveVenue(ctx context.Context, cfg *models.Config, tradeCfg models.TradeConfig, log *zap.Logger) (*venue, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	sender, err := chain.NewSender(ec, cfg.DeployerKey, big.NewInt(cfg.ChainID), cfg.GasLimit,
		time.Duration(cfg.ReceiptTimeoutSec)*time.Second, log)
	if err != nil {
		return nil, err
	}
	botAccount, err := chain.AddressFromKey(cfg.BotKey)
	if err != nil {
		return nil, err
	}

	erc20, err := ledger.NewERC20Ledger(sender)
	if err != nil {
		return nil, err
	}
	router, err := amm.NewUniswapV2(sender, tradeCfg.Router)
	if err != nil {
		return nil, err
	}

	decimals := cfg.BaseAssetDecimals
	if onChain, err := erc20.Decimals(ctx, tradeCfg.BaseAsset); err == nil {
		decimals = onChain
	} else {
		log.Warn("could not read base asset decimals, using config", zap.Error(err))
	}

	log.Info("live venue ready", zap.String("rpc", cfg.RPCURL), zap.Int64("chain_id", cfg.ChainID), zap.String("custody", sender.From().Hex()))
	return &venue{
		ledger:   erc20,
		router:   router,
		self:     sender.From(),
		deployer: sender.From(),
		bot:      botAccount,
		decimals: decimals,
	}, nil
}
