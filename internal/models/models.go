package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config 结构体定义了入口合约及机器人的所有配置参数
type Config struct {
	Mode    string `json:"mode"`    // 运行模式: "sim" 或 "live"
	DBPath  string `json:"db_path"` // BadgerDB 数据目录
	RPCURL  string `json:"rpc_url"` // live 模式下的以太坊节点地址 (http/ws)
	ChainID int64  `json:"chain_id,omitempty"`

	RouterAddress      string `json:"router_address"`       // AMM 路由合约地址 (Uniswap V2 兼容)
	BaseAssetAddress   string `json:"base_asset_address"`   // 基础资产地址, 例如 WETH
	BaseAssetDecimals  int32  `json:"base_asset_decimals"`  // 基础资产精度, 默认 18
	FixedInvestment    string `json:"fixed_investment"`     // 每次买入的固定投入 (人类可读, 如 "0.1")
	TargetAssetAddress string `json:"target_asset_address"` // 机器人默认交易的目标资产

	DeployerKey string `json:"deployer_key,omitempty"` // 部署者私钥 (建议通过环境变量注入)
	BotKey      string `json:"bot_key,omitempty"`      // 机器人私钥

	ProfitMultipleBps int           `json:"profit_multiple_bps"` // 卖出触发倍数 (基点), 20000 = 翻倍
	SlippageFloor     SlippageFloor `json:"slippage_floor"`      // 可选的最小成交量保护
	DeadlineTTLSec    int           `json:"deadline_ttl_sec"`    // swap 截止时间 (秒)
	PollIntervalSec   int           `json:"poll_interval_sec"`   // 机器人轮询 shouldSell 的间隔
	ReceiptTimeoutSec int           `json:"receipt_timeout_sec"` // 等待交易回执的超时
	GasLimit          uint64        `json:"gas_limit,omitempty"`

	MetricsAddr string    `json:"metrics_addr"` // Prometheus 监听地址, 为空则不启用
	Sim         SimConfig `json:"sim"`          // 模拟模式参数
	LogConfig   LogConfig `json:"log"`          // 日志配置
}

// SlippageFloor 定义了 swap 的最小输出保护
type SlippageFloor struct {
	Enabled        bool `json:"enabled"`
	MaxSlippageBps int  `json:"max_slippage_bps"`
}

// SimConfig 定义了模拟模式下的初始流动性与资金
type SimConfig struct {
	InitialFunding   string  `json:"initial_funding"`     // 入口合约初始持有的基础资产
	BaseReserve      string  `json:"base_reserve"`        // 池子中的基础资产储备
	TargetReserve    string  `json:"target_reserve"`      // 池子中的目标资产储备
	TargetDecimals   int32   `json:"target_decimals"`     // 目标资产精度
	PriceDriftPerMin float64 `json:"price_drift_per_min"` // 每次轮询注入的外部买盘比例, 用于模拟价格上涨
	Ticks            int     `json:"ticks"`               // 模拟轮询次数, 0 表示直到中断
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// TradeConfig 是入口创建时确定的交易参数, 生命周期内【不可变】
type TradeConfig struct {
	Router          common.Address `json:"router"`
	BaseAsset       common.Address `json:"base_asset"`
	FixedInvestment *big.Int       `json:"fixed_investment"`
}

// Side 定义了交易方向的类型
type Side string

const (
	Buy    Side = "BUY"
	Sell   Side = "SELL"
	Redeem Side = "REDEEM"
)

// TradeRecord 记录一次已执行的资金移动 (买入/卖出/赎回)
type TradeRecord struct {
	ID        string         `json:"id"`
	Side      Side           `json:"side"`
	Caller    Principal      `json:"caller"`
	FromAsset common.Address `json:"from_asset"`
	ToAsset   common.Address `json:"to_asset"`
	AmountIn  *big.Int       `json:"amount_in"`
	AmountOut *big.Int       `json:"amount_out"`
	TxHash    string         `json:"tx_hash,omitempty"`
	Estimated bool           `json:"estimated,omitempty"` // AmountOut 为成交前报价, 成交后余额读取失败
	Time      time.Time      `json:"time"`
}
