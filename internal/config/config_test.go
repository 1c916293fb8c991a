package config

import (
	"os"
	"path/filepath"
	"testing"

	"amm-entrypoint-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const target = "0x9d68f97e656AFEFAf63f200FB1C4518Cf2b24A78"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"target_asset_address": "`+target+`", "log": {"level": "debug"}}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sim", cfg.Mode)
	assert.Equal(t, DefaultRouterAddress, cfg.RouterAddress)
	assert.Equal(t, DefaultFixedInvestment, cfg.FixedInvestment)
	assert.Equal(t, 20_000, cfg.ProfitMultipleBps)
	assert.Equal(t, "debug", cfg.LogConfig.Level)
	assert.Equal(t, "console", cfg.LogConfig.Output, "fields absent from the file keep their defaults")
	require.NoError(t, Validate(cfg))

	tc, err := TradeConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "5000000000000000", tc.FixedInvestment.String())
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"grid_spacing": 0.01}`))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENTRYPOINT_MODE", "live")
	t.Setenv("ENTRYPOINT_RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("ENTRYPOINT_CHAIN_ID", "31337")
	t.Setenv("ENTRYPOINT_DEPLOYER_KEY", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	t.Setenv("ENTRYPOINT_BOT_KEY", "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")

	cfg, err := LoadConfig(writeConfig(t, `{"target_asset_address": "`+target+`"}`))
	require.NoError(t, err)
	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, int64(31337), cfg.ChainID)
	assert.NoError(t, Validate(cfg))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(cfg *models.Config)
	}{
		{"bad mode", func(cfg *models.Config) { cfg.Mode = "paper" }},
		{"bad router", func(cfg *models.Config) { cfg.RouterAddress = "uniswap" }},
		{"missing target", func(cfg *models.Config) { cfg.TargetAssetAddress = "" }},
		{"target is base", func(cfg *models.Config) { cfg.TargetAssetAddress = cfg.BaseAssetAddress }},
		{"zero investment", func(cfg *models.Config) { cfg.FixedInvestment = "0" }},
		{"negative investment", func(cfg *models.Config) { cfg.FixedInvestment = "-1" }},
		{"too precise investment", func(cfg *models.Config) { cfg.FixedInvestment = "0.0000000000000000001" }},
		{"zero profit multiple", func(cfg *models.Config) { cfg.ProfitMultipleBps = 0 }},
		{"slippage out of range", func(cfg *models.Config) {
			cfg.SlippageFloor = models.SlippageFloor{Enabled: true, MaxSlippageBps: 10_000}
		}},
		{"live without rpc", func(cfg *models.Config) { cfg.Mode = "live" }},
		{"bad sim reserve", func(cfg *models.Config) { cfg.Sim.BaseReserve = "lots" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.TargetAssetAddress = target
			tc.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), models.ErrInvalidConfig)
		})
	}
}
