package entrypoint

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"amm-entrypoint-bot/internal/accesscontrol"
	"amm-entrypoint-bot/internal/admin"
	"amm-entrypoint-bot/internal/amm"
	"amm-entrypoint-bot/internal/custody"
	"amm-entrypoint-bot/internal/engine"
	"amm-entrypoint-bot/internal/gateway"
	"amm-entrypoint-bot/internal/ledger"
	"amm-entrypoint-bot/internal/metrics"
	"amm-entrypoint-bot/internal/models"
	"amm-entrypoint-bot/internal/statemanager"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jxskiss/base62"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Deps 是构造入口所需的全部依赖, 可选项为 nil 时对应功能关闭
type Deps struct {
	Config   models.TradeConfig
	Deployer models.Principal
	// Self is the account holding the entrypoint's funds on the ledger.
	Self   common.Address
	Ledger ledger.Ledger
	Router amm.Router

	Policy         engine.Policy
	GatewayOptions gateway.Options
	// BaseDecimals is only used to render balances for metrics.
	BaseDecimals int32

	Restored *models.EntrypointState
	State    *statemanager.StateManager
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Entrypoint is the custodial trade-execution surface. Every operation,
// reads included, runs under one mutex so calls are totally ordered.
type Entrypoint struct {
	mu sync.Mutex

	cfg      models.TradeConfig
	decimals int32
	roles    *accesscontrol.Registry
	custody  *custody.Custody
	gateway  *gateway.Gateway
	engine   *engine.Engine
	admin    *admin.Ops

	state   *statemanager.StateManager
	metrics *metrics.Metrics
	logger  *zap.Logger

	seq    uint64
	trades []models.TradeRecord
}

// New validates the trade config, grants ADMIN to the deployer and, when a
// persisted state is supplied, restores its role table and recent trades.
func New(ctx context.Context, deps Deps) (*Entrypoint, error) {
	if err := validateConfig(deps.Config); err != nil {
		return nil, err
	}
	if deps.Ledger == nil || deps.Router == nil {
		return nil, fmt.Errorf("%w: ledger and router are required", models.ErrInvalidConfig)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	decimals := deps.BaseDecimals
	if decimals == 0 {
		decimals = models.DefaultDecimals
	}

	cfg := models.TradeConfig{
		Router:          deps.Config.Router,
		BaseAsset:       deps.Config.BaseAsset,
		FixedInvestment: new(big.Int).Set(deps.Config.FixedInvestment),
	}
	roles := accesscontrol.NewRegistry(deps.Deployer)
	c := custody.New(deps.Ledger, deps.Self, cfg.BaseAsset)
	gw := gateway.New(deps.Router, cfg.Router, c, deps.GatewayOptions, logger)

	e := &Entrypoint{
		cfg:      cfg,
		decimals: decimals,
		roles:    roles,
		custody:  c,
		gateway:  gw,
		engine:   engine.New(cfg, roles, c, gw, deps.Policy, logger),
		admin:    admin.New(cfg, roles, c, logger),
		state:    deps.State,
		metrics:  deps.Metrics,
		logger:   logger,
	}

	if r := deps.Restored; r != nil {
		if !sameConfig(r.Config, cfg) {
			return nil, fmt.Errorf("%w: persisted state belongs to a different entrypoint (router %s, base %s, investment %s)",
				models.ErrInvalidConfig, r.Config.Router.Hex(), r.Config.BaseAsset.Hex(), r.Config.FixedInvestment)
		}
		if err := roles.Restore(r.Roles); err != nil {
			return nil, err
		}
		e.trades = append(e.trades, r.Trades...)
		e.seq = uint64(len(r.Trades))
		logger.Info("restored entrypoint state",
			zap.Int("admins", len(roles.Members(models.RoleAdmin))),
			zap.Int("bots", len(roles.Members(models.RoleBot))),
			zap.Time("last_update", r.LastUpdateTime))
	}

	if bal, err := c.BalanceOfSelf(ctx); err == nil {
		e.observeBalance(bal)
	} else {
		logger.Warn("could not read initial base balance", zap.Error(err))
	}

	logger.Info("entrypoint ready",
		zap.String("router", cfg.Router.Hex()),
		zap.String("base_asset", cfg.BaseAsset.Hex()),
		zap.String("fixed_investment", models.FormatUnits(cfg.FixedInvestment, decimals)),
		zap.String("deployer", deps.Deployer.Hex()))
	return e, nil
}

// Snapshot is the durable part of the entrypoint, suitable as the initial
// state of a StateManager.
func (e *Entrypoint) Snapshot() *models.EntrypointState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &models.EntrypointState{
		Version:        models.CurrentStateVersion,
		Config:         e.configCopy(),
		Roles:          e.roles.Snapshot(),
		Trades:         append([]models.TradeRecord(nil), e.trades...),
		LastUpdateTime: time.Now(),
	}
}

func (e *Entrypoint) GrantRole(caller models.Principal, role models.Role, account models.Principal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.GrantRole(caller, role, account); err != nil {
		e.metrics.ObserveError("grant_role", reason(err))
		return err
	}
	e.logger.Info("role granted", zap.String("role", string(role)), zap.String("account", account.Hex()), zap.String("by", caller.Hex()))
	e.metrics.ObserveRoleChange(string(role), "grant")
	e.dispatchRoles()
	return nil
}

func (e *Entrypoint) RevokeRole(caller models.Principal, role models.Role, account models.Principal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.RevokeRole(caller, role, account); err != nil {
		e.metrics.ObserveError("revoke_role", reason(err))
		return err
	}
	e.logger.Info("role revoked", zap.String("role", string(role)), zap.String("account", account.Hex()), zap.String("by", caller.Hex()))
	e.metrics.ObserveRoleChange(string(role), "revoke")
	e.dispatchRoles()
	return nil
}

func (e *Entrypoint) HasRole(role models.Role, account models.Principal) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roles.HasRole(role, account)
}

// Buy spends the fixed investment of base asset on target.
func (e *Entrypoint) Buy(ctx context.Context, caller models.Principal, target common.Address) (*models.TradeRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	rec, err := e.engine.Buy(ctx, caller, target)
	if err != nil {
		e.fail("buy", err, caller)
		return nil, err
	}
	e.record(ctx, rec, started)
	return rec, nil
}

// Sell swaps the entire target balance back into the base asset.
func (e *Entrypoint) Sell(ctx context.Context, caller models.Principal, target common.Address) (*models.TradeRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	rec, err := e.engine.Sell(ctx, caller, target)
	if err != nil {
		e.fail("sell", err, caller)
		return nil, err
	}
	e.record(ctx, rec, started)
	return rec, nil
}

// ShouldSell is open to any caller and never mutates state.
func (e *Entrypoint) ShouldSell(ctx context.Context, target common.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok, err := e.engine.ShouldSell(ctx, target)
	if err != nil {
		e.metrics.ObserveError("should_sell", reason(err))
		return false, err
	}
	e.metrics.ObserveShouldSell(ok)
	return ok, nil
}

// Redeem withdraws base asset to the calling admin.
func (e *Entrypoint) Redeem(ctx context.Context, caller models.Principal, amount *big.Int) (*models.TradeRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	rec, err := e.admin.Redeem(ctx, caller, amount)
	if err != nil {
		e.fail("redeem", err, caller)
		return nil, err
	}
	e.record(ctx, rec, started)
	return rec, nil
}

func (e *Entrypoint) Router() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Router
}

func (e *Entrypoint) BaseAsset() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.BaseAsset
}

// FixedInvestment returns a copy; the configured amount cannot be changed.
func (e *Entrypoint) FixedInvestment() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.cfg.FixedInvestment)
}

// record assigns an ID and timestamp, then fans the trade out to logs,
// metrics and the state manager.
func (e *Entrypoint) record(ctx context.Context, rec *models.TradeRecord, started time.Time) {
	e.seq++
	rec.Time = time.Now().UTC()
	rec.ID = tradeID(rec.Time, e.seq)

	e.trades = append(e.trades, copyRecord(*rec))
	if n := len(e.trades); n > statemanager.MaxRecentTrades {
		e.trades = append([]models.TradeRecord(nil), e.trades[n-statemanager.MaxRecentTrades:]...)
	}

	e.logger.Info("trade executed",
		zap.String("id", rec.ID),
		zap.String("side", string(rec.Side)),
		zap.String("caller", rec.Caller.Hex()),
		zap.String("amount_in", rec.AmountIn.String()),
		zap.String("amount_out", rec.AmountOut.String()),
		zap.String("tx", rec.TxHash),
		zap.Bool("estimated", rec.Estimated))
	e.metrics.ObserveTrade(string(rec.Side), started)
	if bal, err := e.custody.BalanceOfSelf(ctx); err == nil {
		e.observeBalance(bal)
	}

	if e.state != nil {
		e.state.DispatchEvent(statemanager.NormalizedEvent{
			Type:      statemanager.TradeExecutedEvent,
			Timestamp: rec.Time,
			Data:      copyRecord(*rec),
		})
	}
}

func (e *Entrypoint) dispatchRoles() {
	if e.state == nil {
		return
	}
	e.state.DispatchEvent(statemanager.NormalizedEvent{
		Type:      statemanager.RoleChangedEvent,
		Timestamp: time.Now(),
		Data:      statemanager.RoleChangedEventData{Roles: e.roles.Snapshot()},
	})
}

func (e *Entrypoint) fail(op string, err error, caller models.Principal) {
	r := reason(err)
	e.metrics.ObserveError(op, r)
	if r == "unauthorized" {
		e.logger.Warn("rejected unauthorized call", zap.String("op", op), zap.String("caller", caller.Hex()))
		return
	}
	e.logger.Error("operation failed", zap.String("op", op), zap.String("caller", caller.Hex()), zap.Error(err))
}

func (e *Entrypoint) observeBalance(bal *big.Int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SetBaseBalance(decimal.NewFromBigInt(bal, -e.decimals).InexactFloat64())
}

func (e *Entrypoint) configCopy() models.TradeConfig {
	return models.TradeConfig{
		Router:          e.cfg.Router,
		BaseAsset:       e.cfg.BaseAsset,
		FixedInvestment: new(big.Int).Set(e.cfg.FixedInvestment),
	}
}

func validateConfig(cfg models.TradeConfig) error {
	if cfg.Router == (common.Address{}) || cfg.BaseAsset == (common.Address{}) {
		return fmt.Errorf("%w: router and base asset must be set", models.ErrInvalidConfig)
	}
	if cfg.FixedInvestment == nil || cfg.FixedInvestment.Sign() <= 0 {
		return fmt.Errorf("%w: fixed investment must be positive", models.ErrInvalidConfig)
	}
	return nil
}

func sameConfig(a, b models.TradeConfig) bool {
	return a.Router == b.Router && a.BaseAsset == b.BaseAsset &&
		a.FixedInvestment != nil && a.FixedInvestment.Cmp(b.FixedInvestment) == 0
}

// tradeID encodes the execution time and sequence number in base62.
func tradeID(t time.Time, seq uint64) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(t.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], seq)
	return base62.EncodeToString(buf[:])
}

func copyRecord(r models.TradeRecord) models.TradeRecord {
	r.AmountIn = new(big.Int).Set(r.AmountIn)
	r.AmountOut = new(big.Int).Set(r.AmountOut)
	return r
}

// reason maps an error onto a low-cardinality metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, models.ErrLastAdmin):
		return "last_admin"
	case errors.Is(err, models.ErrUnknownRole):
		return "unknown_role"
	case errors.Is(err, models.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, models.ErrNoPosition):
		return "no_position"
	case errors.Is(err, models.ErrInvalidSwap):
		return "invalid_swap"
	case errors.Is(err, models.ErrSwapFailed):
		return "swap_failed"
	case errors.Is(err, models.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, models.ErrLedger):
		return "ledger"
	default:
		return "other"
	}
}
