// Package keeper owns the top-level check cycle: cooldown gate, price
// discovery, direction selection, simulation, profitability gate, execution.
// A check never propagates an error upward; any failure inside a cycle is
// logged, counted and reported as a non-executed result so a single bad cycle
// cannot take the host process down.
package keeper

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/KalyCoinProject/kusd-keeper/internal/config"
	"github.com/KalyCoinProject/kusd-keeper/internal/cooldown"
	"github.com/KalyCoinProject/kusd-keeper/internal/feed"
	"github.com/KalyCoinProject/kusd-keeper/internal/metrics"
	"github.com/KalyCoinProject/kusd-keeper/internal/oracle"
	"github.com/KalyCoinProject/kusd-keeper/internal/peg"
	"github.com/KalyCoinProject/kusd-keeper/internal/sim"
	"github.com/KalyCoinProject/kusd-keeper/internal/types"
)

type PriceSource interface {
	Price(ctx context.Context) (float64, error)
}

type Simulator interface {
	Simulate(ctx context.Context, action types.Action, balance *big.Int) (*types.TradePlan, error)
}

type Gate interface {
	Allow(plan *types.TradePlan) bool
}

type Engine interface {
	Execute(ctx context.Context, plan *types.TradePlan) (*big.Int, error)
}

type BalanceReader interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
}

type Publisher interface {
	PublishCheck(ctx context.Context, ev feed.CheckEvent) error
}

type Deps struct {
	Price    PriceSource
	Sim      Simulator
	Gate     Gate
	Engine   Engine
	Cooldown *cooldown.Tracker
	Gem      BalanceReader
	Owner    common.Address
	Pub      Publisher // optional
	Now      func() time.Time
}

type Keeper struct {
	cfg  *config.Config
	log  *zap.Logger
	deps Deps

	// inFlight serializes checks against the wallet: a second concurrent
	// invocation could double-spend the same balance across two plans.
	inFlight sync.Mutex
}

func New(cfg *config.Config, deps Deps, log *zap.Logger) *Keeper {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Keeper{cfg: cfg, deps: deps, log: log}
}

// Check is the single operation exposed upward. The trigger (timer, webhook,
// block listener) lives outside this package.
func (k *Keeper) Check(ctx context.Context) types.Result {
	if !k.inFlight.TryLock() {
		k.log.Warn("check skipped: another check is in flight")
		return types.NotExecuted()
	}
	defer k.inFlight.Unlock()

	started := k.deps.Now()
	metrics.ChecksTotal.Inc()
	defer func() {
		metrics.CheckDuration.Observe(time.Since(started).Seconds())
	}()

	if rem, err := k.deps.Cooldown.Remaining(ctx, started); err != nil {
		k.log.Error("cooldown read failed", zap.Error(err))
		return types.NotExecuted()
	} else if rem > 0 {
		k.log.Debug("cooldown active", zap.Duration("remaining", rem))
		return types.NotExecuted()
	}

	price, err := k.deps.Price.Price(ctx)
	if err != nil {
		metrics.FailuresTotal.WithLabelValues("oracle").Inc()
		if errors.Is(err, oracle.ErrZeroQuote) {
			k.log.Warn("degenerate price quote", zap.Error(err))
		} else {
			k.log.Error("price query failed", zap.Error(err))
		}
		return types.NotExecuted()
	}
	deviation := peg.DeviationPct(price)
	metrics.Price.Set(price)
	metrics.DeviationPct.Set(deviation)

	action := peg.Evaluate(price, k.cfg)
	k.log.Info("peg check",
		zap.Float64("price", price),
		zap.Float64("deviation_pct", deviation),
		zap.String("action", string(action)),
	)
	if action == types.NoAction {
		return k.finish(ctx, price, deviation, action, types.NotExecuted())
	}

	balance, err := k.deps.Gem.BalanceOf(ctx, k.deps.Owner)
	if err != nil {
		metrics.FailuresTotal.WithLabelValues("simulation").Inc()
		k.log.Error("balance query failed", zap.Error(err))
		return k.finish(ctx, price, deviation, action, types.NotExecuted())
	}

	plan, err := k.deps.Sim.Simulate(ctx, action, balance)
	if err != nil {
		if errors.Is(err, sim.ErrNoBalance) {
			k.log.Info("no collateral balance, nothing to trade")
		} else {
			metrics.FailuresTotal.WithLabelValues("simulation").Inc()
			k.log.Error("simulation failed", zap.Error(err))
		}
		return k.finish(ctx, price, deviation, action, types.NotExecuted())
	}

	if !k.deps.Gate.Allow(plan) {
		k.log.Info("plan rejected by profitability gate",
			zap.String("expected_profit", plan.ExpectedProfit.String()),
			zap.Float64("profit_pct", plan.ProfitPct),
			zap.Float64("min_profit_pct", k.cfg.Trade.MinProfitPercentage),
		)
		return k.finish(ctx, price, deviation, action, types.NotExecuted())
	}

	if k.cfg.DryRun {
		k.log.Warn("DRY-RUN: plan approved but not executed",
			zap.String("direction", string(plan.Direction)),
			zap.String("input", plan.InputAmount.String()),
			zap.String("expected_profit", plan.ExpectedProfit.String()),
		)
		return k.finish(ctx, price, deviation, action, types.NotExecuted())
	}

	profit, err := k.deps.Engine.Execute(ctx, plan)
	if err != nil {
		// Cooldown stays untouched so the next cycle may retry.
		metrics.FailuresTotal.WithLabelValues("execution").Inc()
		k.log.Error("execution failed", zap.Error(err))
		return k.finish(ctx, price, deviation, action, types.NotExecuted())
	}

	if err := k.deps.Cooldown.RecordExecution(ctx, k.deps.Now()); err != nil {
		k.log.Error("cooldown record failed", zap.Error(err))
	}
	metrics.ExecutionsTotal.Inc()
	profitF, _ := new(big.Float).SetInt(profit).Float64()
	metrics.LastProfit.Set(profitF)

	return k.finish(ctx, price, deviation, action, types.Result{Executed: true, Profit: profit})
}

func (k *Keeper) finish(ctx context.Context, price, deviation float64, action types.Action, res types.Result) types.Result {
	if k.deps.Pub != nil {
		ev := feed.CheckEvent{
			Ts:           k.deps.Now(),
			Price:        price,
			DeviationPct: deviation,
			Action:       action,
			Executed:     res.Executed,
			Profit:       res.Profit.String(),
		}
		if err := k.deps.Pub.PublishCheck(ctx, ev); err != nil {
			k.log.Warn("feed publish failed", zap.Error(err))
		}
	}
	return res
}
