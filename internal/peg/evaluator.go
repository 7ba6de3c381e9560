// Package peg decides whether an observed KUSD price warrants a trade.
package peg

import (
	"math"

	"github.com/KalyCoinProject/kusd-keeper/internal/config"
	"github.com/KalyCoinProject/kusd-keeper/internal/types"
)

// DeviationPct is the absolute deviation from the 1.0 peg in percent.
func DeviationPct(price float64) float64 {
	return math.Abs(price-1.0) * 100
}

// Evaluate picks a trade direction for the observed price. The deviation
// filter runs before the band check: a deviation too small to plausibly cover
// costs is dropped without a simulation, even if it sits outside the band.
// The band edges are configured independently of the profit threshold.
func Evaluate(price float64, cfg *config.Config) types.Action {
	if DeviationPct(price) < cfg.Trade.MinProfitPercentage {
		return types.NoAction
	}
	switch {
	case price > cfg.Trade.PegUpperLimit:
		return types.RaiseSupply
	case price < cfg.Trade.PegLowerLimit:
		return types.ReduceSupply
	default:
		return types.NoAction
	}
}
