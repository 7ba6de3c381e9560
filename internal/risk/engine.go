// Package risk gates simulated plans before execution. The gate evaluates
// simulated amounts; actual fills can still differ by the time the trade
// lands, which is what the slippage floor is for.
package risk

import (
	"github.com/KalyCoinProject/kusd-keeper/internal/config"
	"github.com/KalyCoinProject/kusd-keeper/internal/types"
)

type Engine struct{ cfg *config.Config }

func NewEngine(cfg *config.Config) *Engine { return &Engine{cfg: cfg} }

// Allow rejects any plan that is not strictly profitable. The sign check runs
// first so a negative profit never passes on a nominally-clearing percentage.
func (e *Engine) Allow(plan *types.TradePlan) bool {
	if plan == nil || plan.ExpectedProfit == nil || plan.ExpectedProfit.Sign() <= 0 {
		return false
	}
	return plan.ProfitPct >= e.cfg.Trade.MinProfitPercentage
}
