package execution

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KalyCoinProject/kusd-keeper/internal/config"
	"github.com/KalyCoinProject/kusd-keeper/internal/sim"
	"github.com/KalyCoinProject/kusd-keeper/internal/types"
)

var (
	gemAddr    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	kusdAddr   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	psmAddr    = common.HexToAddress("0x000000000000000000000000000000000000000a")
	routerAddr = common.HexToAddress("0x000000000000000000000000000000000000000b")
	ownerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

type step struct {
	op     string
	amount *big.Int
	target common.Address
}

type recorder struct{ steps []step }

func (r *recorder) add(op string, amount *big.Int, target common.Address) {
	r.steps = append(r.steps, step{op: op, amount: new(big.Int).Set(amount), target: target})
}

func (r *recorder) ops() []string {
	out := make([]string, 0, len(r.steps))
	for _, s := range r.steps {
		out = append(out, s.op)
	}
	return out
}

type fakeToken struct {
	rec      *recorder
	name     string
	addr     common.Address
	balances []*big.Int // successive BalanceOf results
	authErr  error
}

func (f *fakeToken) Authorize(_ context.Context, spender common.Address, amount *big.Int) (common.Hash, error) {
	f.rec.add(f.name+".approve", amount, spender)
	return common.Hash{}, f.authErr
}

func (f *fakeToken) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	if len(f.balances) == 0 {
		return big.NewInt(0), nil
	}
	b := f.balances[0]
	if len(f.balances) > 1 {
		f.balances = f.balances[1:]
	}
	return new(big.Int).Set(b), nil
}

func (f *fakeToken) Decimals(context.Context) (int, error) { return 0, nil }
func (f *fakeToken) Address() common.Address               { return f.addr }

type fakePSM struct {
	rec  *recorder
	tout *big.Int
}

func (f *fakePSM) SellCollateral(_ context.Context, to common.Address, gemAmount *big.Int) (common.Hash, error) {
	f.rec.add("psm.sellGem", gemAmount, to)
	return common.Hash{}, nil
}

func (f *fakePSM) BuyCollateral(_ context.Context, to common.Address, gemAmount *big.Int) (common.Hash, error) {
	f.rec.add("psm.buyGem", gemAmount, to)
	return common.Hash{}, nil
}

func (f *fakePSM) RedemptionFee(context.Context) (*big.Int, error) { return f.tout, nil }
func (f *fakePSM) Address() common.Address                         { return psmAddr }

type fakeRouter struct {
	rec      *recorder
	err      error
	gotIn    *big.Int
	gotMin   *big.Int
	gotPath  []common.Address
	deadline time.Time
}

func (f *fakeRouter) SwapExactInput(_ context.Context, amountIn, minOut *big.Int, path []common.Address, deadline time.Time) (common.Hash, error) {
	f.rec.add("swap", amountIn, path[0])
	f.gotIn = new(big.Int).Set(amountIn)
	f.gotMin = new(big.Int).Set(minOut)
	f.gotPath = path
	f.deadline = deadline
	return common.Hash{}, f.err
}

func (f *fakeRouter) Address() common.Address { return routerAddr }

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Trade.MaxTradeAmount = "100000000"
	cfg.Trade.SlippageTolerance = 0.005
	return cfg
}

func kusdUnits(gemUnits int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(gemUnits), sim.ConversionFactor(6, 18))
}

func TestExecuteRaiseSupply(t *testing.T) {
	rec := &recorder{}
	// Minted amount comes back slightly under the pure scaling estimate; the
	// sell leg must use the actual balance.
	actualKUSD := kusdUnits(99_950_000)
	gem := &fakeToken{rec: rec, name: "gem", addr: gemAddr,
		balances: []*big.Int{big.NewInt(1_000_000_000), big.NewInt(1_000_600_000)}}
	kusd := &fakeToken{rec: rec, name: "kusd", addr: kusdAddr,
		balances: []*big.Int{actualKUSD}}
	psm := &fakePSM{rec: rec, tout: big.NewInt(0)}
	router := &fakeRouter{rec: rec}

	e := NewExecutor(newTestConfig(), gem, kusd, psm, router, ownerAddr, 6, 18, zap.NewNop())
	t0 := time.Unix(1_700_000_000, 0)
	e.now = func() time.Time { return t0 }

	plan := &types.TradePlan{
		Direction:   types.RaiseSupply,
		InputAmount: big.NewInt(100_000_000),
		KUSDAmount:  kusdUnits(100_000_000),
		MinSwapOut:  big.NewInt(99_500_000),
	}
	plan.ExpectedProfit = big.NewInt(600_000)

	profit, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"gem.approve", "psm.sellGem", "kusd.approve", "swap"}, rec.ops())
	assert.Equal(t, psmAddr, rec.steps[0].target)
	assert.Equal(t, big.NewInt(100_000_000), rec.steps[0].amount)
	assert.Equal(t, ownerAddr, rec.steps[1].target)
	assert.Equal(t, routerAddr, rec.steps[2].target)
	assert.Equal(t, actualKUSD, rec.steps[2].amount)

	assert.Equal(t, actualKUSD, router.gotIn)
	assert.Equal(t, big.NewInt(99_500_000), router.gotMin)
	assert.Equal(t, []common.Address{kusdAddr, gemAddr}, router.gotPath)
	assert.Equal(t, t0.Add(60*time.Second), router.deadline)

	// Realized profit is the balance delta, not the simulated figure.
	assert.Equal(t, big.NewInt(600_000), profit)
}

func TestExecuteReduceSupply(t *testing.T) {
	rec := &recorder{}
	actualKUSD := kusdUnits(50_500_000) // 50.5 KUSD landed after the swap
	gem := &fakeToken{rec: rec, name: "gem", addr: gemAddr,
		balances: []*big.Int{big.NewInt(1_000_000_000), big.NewInt(1_000_500_000)}}
	kusd := &fakeToken{rec: rec, name: "kusd", addr: kusdAddr,
		balances: []*big.Int{actualKUSD}}
	psm := &fakePSM{rec: rec, tout: big.NewInt(0)}
	router := &fakeRouter{rec: rec}

	e := NewExecutor(newTestConfig(), gem, kusd, psm, router, ownerAddr, 6, 18, zap.NewNop())

	minKUSD := sim.MinOut(kusdUnits(50_400_000), 50)
	plan := &types.TradePlan{
		Direction:      types.ReduceSupply,
		InputAmount:    big.NewInt(50_000_000),
		KUSDAmount:     kusdUnits(50_400_000),
		MinSwapOut:     minKUSD,
		ExpectedProfit: big.NewInt(400_000),
	}

	profit, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"gem.approve", "swap", "kusd.approve", "psm.buyGem"}, rec.ops())
	assert.Equal(t, routerAddr, rec.steps[0].target)
	assert.Equal(t, big.NewInt(50_000_000), router.gotIn)
	assert.Equal(t, minKUSD, router.gotMin)
	assert.Equal(t, []common.Address{gemAddr, kusdAddr}, router.gotPath)

	// Approval and redemption are sized from the actual balance, with the
	// gem amount recomputed through the fee formula.
	assert.Equal(t, psmAddr, rec.steps[2].target)
	assert.Equal(t, actualKUSD, rec.steps[2].amount)
	assert.Equal(t, big.NewInt(50_500_000), rec.steps[3].amount)
	assert.Equal(t, ownerAddr, rec.steps[3].target)

	assert.Equal(t, big.NewInt(500_000), profit)
}

func TestExecuteReduceSupplyWithFee(t *testing.T) {
	rec := &recorder{}
	actualKUSD := kusdUnits(50_500_000)
	gem := &fakeToken{rec: rec, name: "gem", addr: gemAddr,
		balances: []*big.Int{big.NewInt(1_000_000_000), big.NewInt(1_000_000_000)}}
	kusd := &fakeToken{rec: rec, name: "kusd", addr: kusdAddr,
		balances: []*big.Int{actualKUSD}}
	tout := new(big.Int).Div(sim.WAD, big.NewInt(100)) // 1%
	psm := &fakePSM{rec: rec, tout: tout}
	router := &fakeRouter{rec: rec}

	e := NewExecutor(newTestConfig(), gem, kusd, psm, router, ownerAddr, 6, 18, zap.NewNop())
	plan := &types.TradePlan{
		Direction:      types.ReduceSupply,
		InputAmount:    big.NewInt(50_000_000),
		MinSwapOut:     big.NewInt(0),
		ExpectedProfit: big.NewInt(1),
	}

	_, err := e.Execute(context.Background(), plan)
	require.NoError(t, err)

	// 50.5 / 1.01 = 50 gem requested from the PSM.
	last := rec.steps[len(rec.steps)-1]
	assert.Equal(t, "psm.buyGem", last.op)
	assert.Equal(t, big.NewInt(50_000_000), last.amount)
}

func TestExecuteAbortsOnSwapFailure(t *testing.T) {
	rec := &recorder{}
	gem := &fakeToken{rec: rec, name: "gem", addr: gemAddr,
		balances: []*big.Int{big.NewInt(1_000_000_000)}}
	kusd := &fakeToken{rec: rec, name: "kusd", addr: kusdAddr}
	psm := &fakePSM{rec: rec, tout: big.NewInt(0)}
	boom := errors.New("deadline expired")
	router := &fakeRouter{rec: rec, err: boom}

	e := NewExecutor(newTestConfig(), gem, kusd, psm, router, ownerAddr, 6, 18, zap.NewNop())
	plan := &types.TradePlan{
		Direction:      types.ReduceSupply,
		InputAmount:    big.NewInt(50_000_000),
		MinSwapOut:     big.NewInt(0),
		ExpectedProfit: big.NewInt(1),
	}

	_, err := e.Execute(context.Background(), plan)
	assert.ErrorIs(t, err, boom)
	// No redemption leg after a failed swap, and no rollback either.
	assert.Equal(t, []string{"gem.approve", "swap"}, rec.ops())
}

func TestExecuteRaiseFailsOnEmptyMint(t *testing.T) {
	rec := &recorder{}
	gem := &fakeToken{rec: rec, name: "gem", addr: gemAddr,
		balances: []*big.Int{big.NewInt(1_000_000_000)}}
	kusd := &fakeToken{rec: rec, name: "kusd", addr: kusdAddr} // balance stays zero
	psm := &fakePSM{rec: rec, tout: big.NewInt(0)}
	router := &fakeRouter{rec: rec}

	e := NewExecutor(newTestConfig(), gem, kusd, psm, router, ownerAddr, 6, 18, zap.NewNop())
	plan := &types.TradePlan{
		Direction:      types.RaiseSupply,
		InputAmount:    big.NewInt(100_000_000),
		MinSwapOut:     big.NewInt(0),
		ExpectedProfit: big.NewInt(1),
	}

	_, err := e.Execute(context.Background(), plan)
	assert.Error(t, err)
	assert.Equal(t, []string{"gem.approve", "psm.sellGem"}, rec.ops())
}
