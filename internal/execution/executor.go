// Package execution performs the ordered approval and trade sequence for an
// approved plan. Every state-changing step blocks on durable confirmation,
// and every leg works from the actual balance left by the previous leg rather
// than the simulated estimate, because the market can move between simulation
// and execution. A failed step aborts the rest of the sequence; there is no
// rollback, and no leg ever spends more than the wallet already holds.
package execution

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/KalyCoinProject/kusd-keeper/internal/config"
	"github.com/KalyCoinProject/kusd-keeper/internal/sim"
	"github.com/KalyCoinProject/kusd-keeper/internal/types"
	"github.com/KalyCoinProject/kusd-keeper/internal/venue"
)

// swapDeadline bounds the validity window of the market swap, not the wait
// for its confirmation.
const swapDeadline = 60 * time.Second

type Executor struct {
	cfg     *config.Config
	gem     venue.TokenAccount
	kusd    venue.TokenAccount
	psm     venue.PegConverter
	router  venue.SwapExecutor
	owner   common.Address
	gemDec  int
	kusdDec int
	log     *zap.Logger
	now     func() time.Time
}

func NewExecutor(cfg *config.Config, gem, kusd venue.TokenAccount, psm venue.PegConverter,
	router venue.SwapExecutor, owner common.Address, gemDec, kusdDec int, log *zap.Logger) *Executor {
	return &Executor{
		cfg:     cfg,
		gem:     gem,
		kusd:    kusd,
		psm:     psm,
		router:  router,
		owner:   owner,
		gemDec:  gemDec,
		kusdDec: kusdDec,
		log:     log,
		now:     time.Now,
	}
}

// Execute runs the sequence for the plan's direction and returns the realized
// profit as the collateral balance delta, which may differ from the simulated
// figure.
func (e *Executor) Execute(ctx context.Context, plan *types.TradePlan) (*big.Int, error) {
	balBefore, err := e.gem.BalanceOf(ctx, e.owner)
	if err != nil {
		return nil, fmt.Errorf("read collateral balance: %w", err)
	}

	switch plan.Direction {
	case types.RaiseSupply:
		err = e.raiseSupply(ctx, plan)
	case types.ReduceSupply:
		err = e.reduceSupply(ctx, plan)
	default:
		return nil, fmt.Errorf("no executable direction: %s", plan.Direction)
	}
	if err != nil {
		return nil, err
	}

	balAfter, err := e.gem.BalanceOf(ctx, e.owner)
	if err != nil {
		return nil, fmt.Errorf("read collateral balance after trade: %w", err)
	}
	profit := new(big.Int).Sub(balAfter, balBefore)
	e.log.Info("trade executed",
		zap.String("direction", string(plan.Direction)),
		zap.String("realized_profit", profit.String()),
		zap.String("expected_profit", plan.ExpectedProfit.String()),
	)
	return profit, nil
}

// raiseSupply: approve PSM, mint KUSD, re-read the KUSD actually received,
// approve the router for that amount and sell it back to collateral.
func (e *Executor) raiseSupply(ctx context.Context, plan *types.TradePlan) error {
	if _, err := e.gem.Authorize(ctx, e.psm.Address(), plan.InputAmount); err != nil {
		return fmt.Errorf("approve psm: %w", err)
	}
	if _, err := e.psm.SellCollateral(ctx, e.owner, plan.InputAmount); err != nil {
		return fmt.Errorf("mint kusd: %w", err)
	}

	// The mint estimate was a pure decimal-scaled figure; the module may
	// round, so the sell leg sizes itself from the balance on hand.
	kusdBal, err := e.kusd.BalanceOf(ctx, e.owner)
	if err != nil {
		return fmt.Errorf("read kusd balance after mint: %w", err)
	}
	if kusdBal.Sign() == 0 {
		return fmt.Errorf("mint produced no kusd")
	}
	if _, err := e.kusd.Authorize(ctx, e.router.Address(), kusdBal); err != nil {
		return fmt.Errorf("approve router: %w", err)
	}
	path := []common.Address{e.kusd.Address(), e.gem.Address()}
	if _, err := e.router.SwapExactInput(ctx, kusdBal, plan.MinSwapOut, path, e.now().Add(swapDeadline)); err != nil {
		return fmt.Errorf("sell kusd: %w", err)
	}
	return nil
}

// reduceSupply: approve the router, buy KUSD, re-read the KUSD actually
// received, recompute the redeemable collateral from that amount with the
// current fee, approve the PSM and redeem.
func (e *Executor) reduceSupply(ctx context.Context, plan *types.TradePlan) error {
	if _, err := e.gem.Authorize(ctx, e.router.Address(), plan.InputAmount); err != nil {
		return fmt.Errorf("approve router: %w", err)
	}
	path := []common.Address{e.gem.Address(), e.kusd.Address()}
	if _, err := e.router.SwapExactInput(ctx, plan.InputAmount, plan.MinSwapOut, path, e.now().Add(swapDeadline)); err != nil {
		return fmt.Errorf("buy kusd: %w", err)
	}

	kusdBal, err := e.kusd.BalanceOf(ctx, e.owner)
	if err != nil {
		return fmt.Errorf("read kusd balance after swap: %w", err)
	}
	if kusdBal.Sign() == 0 {
		return fmt.Errorf("swap produced no kusd")
	}
	if _, err := e.kusd.Authorize(ctx, e.psm.Address(), kusdBal); err != nil {
		return fmt.Errorf("approve psm: %w", err)
	}

	tout, err := e.psm.RedemptionFee(ctx)
	if err != nil {
		return fmt.Errorf("read redemption fee: %w", err)
	}
	gemOut := sim.RedeemableGem(kusdBal, sim.ConversionFactor(e.gemDec, e.kusdDec), tout)
	if gemOut.Sign() == 0 {
		return fmt.Errorf("nothing redeemable from %s kusd", kusdBal.String())
	}
	if _, err := e.psm.BuyCollateral(ctx, e.owner, gemOut); err != nil {
		return fmt.Errorf("redeem collateral: %w", err)
	}
	return nil
}
