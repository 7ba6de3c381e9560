// Package sim builds trade plans by pushing candidate amounts through both
// venues without submitting anything. Amounts stay in integer base units end
// to end; floats appear only in the profit-percentage figure.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/KalyCoinProject/kusd-keeper/internal/config"
	"github.com/KalyCoinProject/kusd-keeper/internal/types"
	"github.com/KalyCoinProject/kusd-keeper/internal/venue"
)

// ErrNoBalance distinguishes an empty wallet from a failed simulation; the
// caller treats it as no-action, not as an error cycle.
var ErrNoBalance = errors.New("no collateral balance")

// WAD is the PSM's fixed-point base for fee ratios.
var WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type Simulator struct {
	cfg     *config.Config
	quoter  venue.QuoteProvider
	psm     venue.PegConverter
	gem     common.Address
	kusd    common.Address
	gemDec  int
	kusdDec int
	log     *zap.Logger
}

func New(cfg *config.Config, quoter venue.QuoteProvider, psm venue.PegConverter,
	gem, kusd common.Address, gemDec, kusdDec int, log *zap.Logger) *Simulator {
	return &Simulator{
		cfg:     cfg,
		quoter:  quoter,
		psm:     psm,
		gem:     gem,
		kusd:    kusd,
		gemDec:  gemDec,
		kusdDec: kusdDec,
		log:     log,
	}
}

// Simulate sizes the trade at min(balance, maxTradeAmount) and computes the
// expected amounts through both legs of the chosen direction.
func (s *Simulator) Simulate(ctx context.Context, action types.Action, balance *big.Int) (*types.TradePlan, error) {
	if balance == nil || balance.Sign() == 0 {
		return nil, ErrNoBalance
	}
	input := TradeSize(balance, s.cfg.MaxTrade())

	switch action {
	case types.RaiseSupply:
		return s.simulateRaise(ctx, input)
	case types.ReduceSupply:
		return s.simulateReduce(ctx, input)
	default:
		return nil, fmt.Errorf("no executable direction: %s", action)
	}
}

// simulateRaise: mint KUSD against gem (1:1 decimal-scaled, no fee on this
// leg), then sell the KUSD back to gem on the market.
func (s *Simulator) simulateRaise(ctx context.Context, input *big.Int) (*types.TradePlan, error) {
	kusdOut := new(big.Int).Mul(input, ConversionFactor(s.gemDec, s.kusdDec))
	gemOut, err := s.quoter.QuoteOutput(ctx, kusdOut, []common.Address{s.kusd, s.gem})
	if err != nil {
		return nil, fmt.Errorf("quote kusd->collateral: %w", err)
	}
	profit := new(big.Int).Sub(gemOut, input)
	plan := &types.TradePlan{
		Direction:      types.RaiseSupply,
		InputAmount:    input,
		KUSDAmount:     kusdOut,
		ExpectedOut:    gemOut,
		ExpectedProfit: profit,
		ProfitPct:      profitPct(profit, input),
		MinSwapOut:     MinOut(gemOut, s.cfg.SlippageBps()),
		Ts:             time.Now(),
	}
	s.logPlan(plan)
	return plan, nil
}

// simulateReduce: buy KUSD with gem on the market, then redeem it through the
// PSM, which charges the tout fee on this side.
func (s *Simulator) simulateReduce(ctx context.Context, input *big.Int) (*types.TradePlan, error) {
	kusdOut, err := s.quoter.QuoteOutput(ctx, input, []common.Address{s.gem, s.kusd})
	if err != nil {
		return nil, fmt.Errorf("quote collateral->kusd: %w", err)
	}
	tout, err := s.psm.RedemptionFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("read redemption fee: %w", err)
	}
	gemOut := RedeemableGem(kusdOut, ConversionFactor(s.gemDec, s.kusdDec), tout)
	profit := new(big.Int).Sub(gemOut, input)
	plan := &types.TradePlan{
		Direction:      types.ReduceSupply,
		InputAmount:    input,
		KUSDAmount:     kusdOut,
		ExpectedOut:    gemOut,
		ExpectedProfit: profit,
		ProfitPct:      profitPct(profit, input),
		MinSwapOut:     MinOut(kusdOut, s.cfg.SlippageBps()),
		Ts:             time.Now(),
	}
	s.logPlan(plan)
	return plan, nil
}

func (s *Simulator) logPlan(p *types.TradePlan) {
	s.log.Debug("simulated plan",
		zap.String("direction", string(p.Direction)),
		zap.String("input", p.InputAmount.String()),
		zap.String("kusd", p.KUSDAmount.String()),
		zap.String("expected_out", p.ExpectedOut.String()),
		zap.String("expected_profit", p.ExpectedProfit.String()),
		zap.Float64("profit_pct", p.ProfitPct),
		zap.String("min_swap_out", p.MinSwapOut.String()),
	)
}

// TradeSize caps the input at the configured maximum.
func TradeSize(balance, maxTrade *big.Int) *big.Int {
	if balance.Cmp(maxTrade) < 0 {
		return new(big.Int).Set(balance)
	}
	return new(big.Int).Set(maxTrade)
}

// ConversionFactor scales between the two token precisions:
// 10^(kusdDecimals - gemDecimals).
func ConversionFactor(gemDec, kusdDec int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(kusdDec-gemDec)), nil)
}

// RedeemableGem applies the PSM redemption formula:
// gemOut = kusdAmt * WAD / (conversionFactor * (WAD + tout)).
// The execution engine reuses it against the actual post-swap balance.
func RedeemableGem(kusdAmt, convFactor, tout *big.Int) *big.Int {
	denom := new(big.Int).Add(WAD, tout)
	denom.Mul(denom, convFactor)
	out := new(big.Int).Mul(kusdAmt, WAD)
	return out.Div(out, denom)
}

// MinOut floors an expected output by the slippage tolerance in integer
// basis-point arithmetic: floor(expected * (10000 - bps) / 10000).
func MinOut(expected *big.Int, slippageBps int64) *big.Int {
	out := new(big.Int).Mul(expected, big.NewInt(10_000-slippageBps))
	return out.Div(out, big.NewInt(10_000))
}

// profitPct is only ever compared against a configured threshold; it never
// feeds an amount that moves funds.
func profitPct(profit, input *big.Int) float64 {
	if input.Sign() == 0 {
		return 0
	}
	pct := new(big.Float).SetInt(profit)
	pct.Quo(pct, new(big.Float).SetInt(input))
	pct.Mul(pct, big.NewFloat(100))
	v, _ := pct.Float64()
	return v
}
