// Package oracle derives the KUSD market price from the exchange venue.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/KalyCoinProject/kusd-keeper/internal/venue"
)

// ErrZeroQuote means the venue quoted zero KUSD for one collateral unit,
// which would otherwise turn into a division by zero.
var ErrZeroQuote = errors.New("zero quote from market venue")

// Adapter prices one KUSD in collateral units by asking the router how much
// KUSD one normalized collateral unit buys and inverting the result.
type Adapter struct {
	quoter  venue.QuoteProvider
	gem     common.Address
	kusd    common.Address
	gemDec  int
	kusdDec int
	log     *zap.Logger
}

func New(quoter venue.QuoteProvider, gem, kusd common.Address, gemDec, kusdDec int, log *zap.Logger) *Adapter {
	return &Adapter{quoter: quoter, gem: gem, kusd: kusd, gemDec: gemDec, kusdDec: kusdDec, log: log}
}

// Price is a read-only call with no side effects.
func (a *Adapter) Price(ctx context.Context) (float64, error) {
	oneGem := pow10(a.gemDec)
	out, err := a.quoter.QuoteOutput(ctx, oneGem, []common.Address{a.gem, a.kusd})
	if err != nil {
		return 0, fmt.Errorf("quote collateral->kusd: %w", err)
	}
	if out == nil || out.Sign() == 0 {
		return 0, ErrZeroQuote
	}

	kusdPerGem := new(big.Float).SetPrec(256).SetInt(out)
	kusdPerGem.Quo(kusdPerGem, new(big.Float).SetPrec(256).SetInt(pow10(a.kusdDec)))
	price := new(big.Float).SetPrec(256).Quo(big.NewFloat(1), kusdPerGem)

	p, _ := price.Float64()
	a.log.Debug("price sample", zap.Float64("price", p), zap.String("kusd_out", out.String()))
	return p, nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
