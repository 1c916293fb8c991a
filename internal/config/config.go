package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"amm-entrypoint-bot/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// 默认参数取自入口合约的部署脚本 (Goerli)
const (
	DefaultRouterAddress    = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	DefaultBaseAssetAddress = "0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6"
	DefaultFixedInvestment  = "0.005"
	DefaultChainID          = 5
)

// Defaults 返回一份带默认值的配置, JSON 文件中的字段会覆盖它们
func Defaults() *models.Config {
	return &models.Config{
		Mode:              "sim",
		DBPath:            "data/entrypoint",
		ChainID:           DefaultChainID,
		RouterAddress:     DefaultRouterAddress,
		BaseAssetAddress:  DefaultBaseAssetAddress,
		BaseAssetDecimals: models.DefaultDecimals,
		FixedInvestment:   DefaultFixedInvestment,
		ProfitMultipleBps: 20_000,
		DeadlineTTLSec:    300,
		PollIntervalSec:   15,
		ReceiptTimeoutSec: 120,
		GasLimit:          300_000,
		Sim: models.SimConfig{
			InitialFunding:   "1",
			BaseReserve:      "100",
			TargetReserve:    "1000000",
			TargetDecimals:   models.DefaultDecimals,
			PriceDriftPerMin: 0.05,
		},
		LogConfig: models.LogConfig{
			Level:      "info",
			Output:     "console",
			File:       "logs/entrypoint.log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// LoadConfig 从指定路径加载JSON配置文件, 然后读取 .env 与 ENTRYPOINT_* 环境变量覆盖敏感字段。
// 返回的配置尚未校验, 调用方需要调用 Validate。
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := Defaults()
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	// .env 不存在时静默忽略
	_ = godotenv.Load()
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *models.Config) {
	setStr(&cfg.Mode, "ENTRYPOINT_MODE")
	setStr(&cfg.RPCURL, "ENTRYPOINT_RPC_URL")
	setInt64(&cfg.ChainID, "ENTRYPOINT_CHAIN_ID")
	setStr(&cfg.DeployerKey, "ENTRYPOINT_DEPLOYER_KEY")
	setStr(&cfg.BotKey, "ENTRYPOINT_BOT_KEY")
	setStr(&cfg.RouterAddress, "ENTRYPOINT_ROUTER_ADDRESS")
	setStr(&cfg.BaseAssetAddress, "ENTRYPOINT_BASE_ASSET_ADDRESS")
	setStr(&cfg.TargetAssetAddress, "ENTRYPOINT_TARGET_ASSET_ADDRESS")
	setStr(&cfg.FixedInvestment, "ENTRYPOINT_FIXED_INVESTMENT")
	setStr(&cfg.DBPath, "ENTRYPOINT_DB_PATH")
	setStr(&cfg.MetricsAddr, "ENTRYPOINT_METRICS_ADDR")
	setStr(&cfg.LogConfig.Level, "ENTRYPOINT_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

// Validate checks everything the entrypoint needs before it is constructed.
func Validate(cfg *models.Config) error {
	if cfg.Mode != "sim" && cfg.Mode != "live" {
		return fmt.Errorf("%w: mode must be sim or live, got %q", models.ErrInvalidConfig, cfg.Mode)
	}
	for name, addr := range map[string]string{
		"router_address":       cfg.RouterAddress,
		"base_asset_address":   cfg.BaseAssetAddress,
		"target_asset_address": cfg.TargetAssetAddress,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: %s %q is not a hex address", models.ErrInvalidConfig, name, addr)
		}
	}
	if common.HexToAddress(cfg.TargetAssetAddress) == common.HexToAddress(cfg.BaseAssetAddress) {
		return fmt.Errorf("%w: target asset equals base asset", models.ErrInvalidConfig)
	}
	if _, err := TradeConfig(cfg); err != nil {
		return err
	}
	if cfg.ProfitMultipleBps <= 0 {
		return fmt.Errorf("%w: profit_multiple_bps must be positive", models.ErrInvalidConfig)
	}
	if f := cfg.SlippageFloor; f.Enabled && (f.MaxSlippageBps < 0 || f.MaxSlippageBps >= 10_000) {
		return fmt.Errorf("%w: max_slippage_bps must be in [0, 10000)", models.ErrInvalidConfig)
	}
	if cfg.PollIntervalSec <= 0 || cfg.DeadlineTTLSec <= 0 {
		return fmt.Errorf("%w: poll_interval_sec and deadline_ttl_sec must be positive", models.ErrInvalidConfig)
	}

	if cfg.Mode == "live" {
		if cfg.RPCURL == "" {
			return fmt.Errorf("%w: live mode requires rpc_url", models.ErrInvalidConfig)
		}
		if cfg.DeployerKey == "" || cfg.BotKey == "" {
			return fmt.Errorf("%w: live mode requires deployer and bot keys (ENTRYPOINT_DEPLOYER_KEY / ENTRYPOINT_BOT_KEY)", models.ErrInvalidConfig)
		}
		return nil
	}

	for name, amount := range map[string]string{
		"sim.initial_funding": cfg.Sim.InitialFunding,
		"sim.base_reserve":    cfg.Sim.BaseReserve,
		"sim.target_reserve":  cfg.Sim.TargetReserve,
	} {
		if _, err := models.ParseUnits(amount, cfg.BaseAssetDecimals); err != nil {
			return fmt.Errorf("%w: %s: %v", models.ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// TradeConfig converts the human readable settings into the immutable
// construction parameters of the entrypoint.
func TradeConfig(cfg *models.Config) (models.TradeConfig, error) {
	investment, err := models.ParseUnits(cfg.FixedInvestment, cfg.BaseAssetDecimals)
	if err != nil {
		return models.TradeConfig{}, fmt.Errorf("%w: fixed_investment: %v", models.ErrInvalidConfig, err)
	}
	if investment.Sign() <= 0 {
		return models.TradeConfig{}, fmt.Errorf("%w: fixed_investment must be positive", models.ErrInvalidConfig)
	}
	return models.TradeConfig{
		Router:          common.HexToAddress(cfg.RouterAddress),
		BaseAsset:       common.HexToAddress(cfg.BaseAssetAddress),
		FixedInvestment: investment,
	}, nil
}
