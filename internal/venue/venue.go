// Package venue holds the on-chain collaborators the keeper trades against:
// the ERC20 token accounts, the peg-stability module and the market router.
// Each is modeled as a small capability interface so the simulator and the
// execution engine can run against fakes.
package venue

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Backend is the slice of chain.Client the venue clients need.
type Backend interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Submit(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	From() common.Address
}

// TokenAccount is an ERC20 seen from the keeper wallet.
type TokenAccount interface {
	Authorize(ctx context.Context, spender common.Address, amount *big.Int) (common.Hash, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context) (int, error)
	Address() common.Address
}

// PegConverter is the fixed-rate PSM. SellCollateral mints stablecoin against
// gem 1:1 (decimal-scaled, no fee); BuyCollateral releases gem and pulls
// stablecoin plus the tout redemption fee.
type PegConverter interface {
	SellCollateral(ctx context.Context, to common.Address, gemAmount *big.Int) (common.Hash, error)
	BuyCollateral(ctx context.Context, to common.Address, gemAmount *big.Int) (common.Hash, error)
	RedemptionFee(ctx context.Context) (*big.Int, error)
	Address() common.Address
}

// QuoteProvider answers read-only exact-input quotes along a swap path.
type QuoteProvider interface {
	QuoteOutput(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)
}

// SwapExecutor submits an exact-input swap with a minimum-output floor and a
// validity deadline, blocking until the transaction is durably confirmed.
type SwapExecutor interface {
	SwapExactInput(ctx context.Context, amountIn, minOut *big.Int, path []common.Address, deadline time.Time) (common.Hash, error)
	Address() common.Address
}
