package sim

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KalyCoinProject/kusd-keeper/internal/config"
	"github.com/KalyCoinProject/kusd-keeper/internal/types"
)

var (
	gemAddr  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	kusdAddr = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

type fakeQuoter struct {
	out     *big.Int
	err     error
	gotIn   *big.Int
	gotPath []common.Address
}

func (f *fakeQuoter) QuoteOutput(_ context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	f.gotIn = amountIn
	f.gotPath = path
	return f.out, f.err
}

type fakePSM struct {
	tout *big.Int
	err  error
}

func (f *fakePSM) SellCollateral(context.Context, common.Address, *big.Int) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakePSM) BuyCollateral(context.Context, common.Address, *big.Int) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakePSM) RedemptionFee(context.Context) (*big.Int, error) { return f.tout, f.err }
func (f *fakePSM) Address() common.Address                         { return common.Address{} }

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Trade.MaxTradeAmount = "100000000" // 100 gem at 6 decimals
	cfg.Trade.MinProfitPercentage = 0.5
	cfg.Trade.SlippageTolerance = 0.005
	return cfg
}

func newSimulator(q *fakeQuoter, p *fakePSM) *Simulator {
	return New(newTestConfig(), q, p, gemAddr, kusdAddr, 6, 18, zap.NewNop())
}

func TestTradeSize(t *testing.T) {
	max := big.NewInt(100_000_000)
	assert.Equal(t, big.NewInt(50_000_000), TradeSize(big.NewInt(50_000_000), max))
	assert.Equal(t, big.NewInt(100_000_000), TradeSize(big.NewInt(1_000_000_000), max))
	assert.Equal(t, max, TradeSize(big.NewInt(100_000_000), max))
}

func TestMinOutExactFloor(t *testing.T) {
	// 100e6 at 0.5% tolerance floors to exactly 99,500,000.
	assert.Equal(t, big.NewInt(99_500_000), MinOut(big.NewInt(100_000_000), 50))
	assert.Equal(t, big.NewInt(100_000_000), MinOut(big.NewInt(100_000_000), 0))
	// Rounding is always downward.
	assert.Equal(t, big.NewInt(99), MinOut(big.NewInt(100), 50))
}

func TestRedeemableGem(t *testing.T) {
	conv := ConversionFactor(6, 18)
	require.Equal(t, new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil), conv)

	// No fee: exact 1:1 after decimal conversion.
	kusd := new(big.Int).Mul(big.NewInt(123_456_789), conv)
	assert.Equal(t, big.NewInt(123_456_789), RedeemableGem(kusd, conv, big.NewInt(0)))

	// 1% fee: out ~ in/1.01 within a base unit of rounding.
	tout := new(big.Int).Div(WAD, big.NewInt(100))
	kusd = new(big.Int).Mul(big.NewInt(101_000_000), conv) // 101 KUSD
	got := RedeemableGem(kusd, conv, tout)
	assert.Equal(t, big.NewInt(100_000_000), got)
}

func TestSimulateNoBalance(t *testing.T) {
	s := newSimulator(&fakeQuoter{}, &fakePSM{tout: big.NewInt(0)})

	_, err := s.Simulate(context.Background(), types.RaiseSupply, big.NewInt(0))
	assert.ErrorIs(t, err, ErrNoBalance)
	_, err = s.Simulate(context.Background(), types.ReduceSupply, nil)
	assert.ErrorIs(t, err, ErrNoBalance)
}

func TestSimulateRaiseSupply(t *testing.T) {
	q := &fakeQuoter{out: big.NewInt(100_600_000)} // 100.6 gem back
	s := newSimulator(q, &fakePSM{tout: big.NewInt(0)})

	plan, err := s.Simulate(context.Background(), types.RaiseSupply, big.NewInt(1_000_000_000))
	require.NoError(t, err)

	// Input capped at maxTradeAmount, minted KUSD is a pure decimal scaling.
	assert.Equal(t, big.NewInt(100_000_000), plan.InputAmount)
	wantKUSD := new(big.Int).Mul(big.NewInt(100_000_000), ConversionFactor(6, 18))
	assert.Equal(t, wantKUSD, plan.KUSDAmount)
	assert.Equal(t, wantKUSD, q.gotIn)
	assert.Equal(t, []common.Address{kusdAddr, gemAddr}, q.gotPath)

	assert.Equal(t, big.NewInt(600_000), plan.ExpectedProfit)
	assert.InDelta(t, 0.6, plan.ProfitPct, 1e-9)
	assert.Equal(t, MinOut(big.NewInt(100_600_000), 50), plan.MinSwapOut)
}

func TestSimulateReduceSupply(t *testing.T) {
	kusdOut := new(big.Int).Mul(big.NewInt(50_500_000), ConversionFactor(6, 18)) // 50.5 KUSD
	q := &fakeQuoter{out: kusdOut}
	s := newSimulator(q, &fakePSM{tout: big.NewInt(0)})

	plan, err := s.Simulate(context.Background(), types.ReduceSupply, big.NewInt(50_000_000))
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(50_000_000), plan.InputAmount)
	assert.Equal(t, big.NewInt(50_000_000), q.gotIn)
	assert.Equal(t, []common.Address{gemAddr, kusdAddr}, q.gotPath)

	assert.Equal(t, big.NewInt(50_500_000), plan.ExpectedOut)
	assert.Equal(t, big.NewInt(500_000), plan.ExpectedProfit)
	assert.InDelta(t, 1.0, plan.ProfitPct, 1e-9)
	// The slippage floor binds the swap leg, i.e. the KUSD output.
	assert.Equal(t, MinOut(kusdOut, 50), plan.MinSwapOut)
}

func TestSimulateReduceSupplyFeeEatsProfit(t *testing.T) {
	kusdOut := new(big.Int).Mul(big.NewInt(50_500_000), ConversionFactor(6, 18))
	q := &fakeQuoter{out: kusdOut}
	tout := new(big.Int).Div(WAD, big.NewInt(100)) // 1%
	s := newSimulator(q, &fakePSM{tout: tout})

	plan, err := s.Simulate(context.Background(), types.ReduceSupply, big.NewInt(50_000_000))
	require.NoError(t, err)
	// 50.5 / 1.01 = 50 gem back, all edge gone.
	assert.Equal(t, big.NewInt(50_000_000), plan.ExpectedOut)
	assert.Equal(t, int64(0), plan.ExpectedProfit.Int64())
}

func TestSimulateQuoteFailure(t *testing.T) {
	boom := errors.New("execution reverted")
	s := newSimulator(&fakeQuoter{err: boom}, &fakePSM{tout: big.NewInt(0)})

	_, err := s.Simulate(context.Background(), types.RaiseSupply, big.NewInt(1_000_000))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoBalance)
}

func TestSimulateNoDirection(t *testing.T) {
	s := newSimulator(&fakeQuoter{}, &fakePSM{tout: big.NewInt(0)})
	_, err := s.Simulate(context.Background(), types.NoAction, big.NewInt(1))
	assert.Error(t, err)
}
