package types

import (
	"math/big"
	"time"
)

type Action string

const (
	NoAction     Action = "NO_ACTION"
	RaiseSupply  Action = "RAISE_SUPPLY_OF_STABLECOIN"
	ReduceSupply Action = "REDUCE_SUPPLY"
)

// Direction is an Action restricted to the two executable values; NoAction
// never appears on a plan.
type Direction = Action

// TradePlan is the output of a simulation pass. All amounts are integer base
// units (collateral in gem decimals, the intermediate amount in KUSD
// decimals). A plan is rebuilt on every check and never persisted.
type TradePlan struct {
	Direction      Direction
	InputAmount    *big.Int // gem spent on the first leg
	KUSDAmount     *big.Int // expected KUSD through the middle of the route
	ExpectedOut    *big.Int // gem expected back after the final leg
	ExpectedProfit *big.Int // ExpectedOut - InputAmount, may be negative
	ProfitPct      float64
	MinSwapOut     *big.Int // slippage floor applied to the market-swap leg output
	Ts             time.Time
}

// Result is what a single check invocation reports upward.
type Result struct {
	Executed bool
	Profit   *big.Int // realized gem delta, zero when not executed
}

func NotExecuted() Result {
	return Result{Executed: false, Profit: big.NewInt(0)}
}
