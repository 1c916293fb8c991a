package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇总入口合约与机器人的 Prometheus 指标
type Metrics struct {
	TradesTotal      *prometheus.CounterVec   // 成功的资金操作, 按 side 区分 (BUY/SELL/REDEEM)
	OperationErrors  *prometheus.CounterVec   // 失败的操作, 按 op 与 reason 区分
	SwapDuration     *prometheus.HistogramVec // buy/sell 的端到端耗时
	ShouldSellChecks *prometheus.CounterVec   // shouldSell 的判定结果
	RoleChanges      *prometheus.CounterVec   // 角色授予/撤销次数
	BaseBalance      prometheus.Gauge         // 最近一次观察到的基础资产余额 (人类可读单位)
}

// New registers the metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics on registerer, so tests can use an
// isolated registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypoint_trades_total",
			Help: "Executed buys, sells and redeems",
		}, []string{"side"}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypoint_operation_errors_total",
			Help: "Failed entrypoint operations by reason",
		}, []string{"op", "reason"}),
		SwapDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entrypoint_swap_duration_seconds",
			Help:    "Time from authorization to realized output",
			Buckets: prometheus.DefBuckets,
		}, []string{"side"}),
		ShouldSellChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypoint_should_sell_checks_total",
			Help: "shouldSell evaluations by result",
		}, []string{"result"}),
		RoleChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "entrypoint_role_changes_total",
			Help: "Role grants and revocations",
		}, []string{"role", "action"}),
		BaseBalance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "entrypoint_base_balance",
			Help: "Last observed base asset balance held in custody",
		}),
	}
}

// The helpers below accept a nil receiver so components can run without metrics.

func (m *Metrics) ObserveTrade(side string, started time.Time) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(side).Inc()
	if side != "REDEEM" {
		m.SwapDuration.WithLabelValues(side).Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) ObserveError(op, reason string) {
	if m == nil {
		return
	}
	m.OperationErrors.WithLabelValues(op, reason).Inc()
}

func (m *Metrics) ObserveShouldSell(result bool) {
	if m == nil {
		return
	}
	label := "hold"
	if result {
		label = "sell"
	}
	m.ShouldSellChecks.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveRoleChange(role, action string) {
	if m == nil {
		return
	}
	m.RoleChanges.WithLabelValues(role, action).Inc()
}

func (m *Metrics) SetBaseBalance(v float64) {
	if m == nil {
		return
	}
	m.BaseBalance.Set(v)
}
