package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Maker-style PSM surface: sellGem mints KUSD against gem, buyGem releases
// gem and pulls KUSD plus the tout fee, tout is the WAD-scaled redemption fee.
const psmABI = `[
 {"inputs":[{"internalType":"address","name":"usr","type":"address"},{"internalType":"uint256","name":"gemAmt","type":"uint256"}],"name":"sellGem","outputs":[],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"internalType":"address","name":"usr","type":"address"},{"internalType":"uint256","name":"gemAmt","type":"uint256"}],"name":"buyGem","outputs":[],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[],"name":"tout","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

type PSM struct {
	be   Backend
	abi  abi.ABI
	addr common.Address
}

func NewPSM(be Backend, addr common.Address) (*PSM, error) {
	parsed, err := abi.JSON(strings.NewReader(psmABI))
	if err != nil {
		return nil, fmt.Errorf("parse psm abi: %w", err)
	}
	return &PSM{be: be, abi: parsed, addr: addr}, nil
}

func (p *PSM) Address() common.Address { return p.addr }

func (p *PSM) SellCollateral(ctx context.Context, to common.Address, gemAmount *big.Int) (common.Hash, error) {
	data, err := p.abi.Pack("sellGem", to, gemAmount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack sellGem: %w", err)
	}
	hash, err := p.be.Submit(ctx, p.addr, data)
	if err != nil {
		return hash, fmt.Errorf("sellGem: %w", err)
	}
	return hash, nil
}

func (p *PSM) BuyCollateral(ctx context.Context, to common.Address, gemAmount *big.Int) (common.Hash, error) {
	data, err := p.abi.Pack("buyGem", to, gemAmount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack buyGem: %w", err)
	}
	hash, err := p.be.Submit(ctx, p.addr, data)
	if err != nil {
		return hash, fmt.Errorf("buyGem: %w", err)
	}
	return hash, nil
}

func (p *PSM) RedemptionFee(ctx context.Context) (*big.Int, error) {
	data, err := p.abi.Pack("tout")
	if err != nil {
		return nil, fmt.Errorf("pack tout: %w", err)
	}
	raw, err := p.be.Call(ctx, p.addr, data)
	if err != nil {
		return nil, fmt.Errorf("call tout: %w", err)
	}
	outs, err := p.abi.Methods["tout"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, errors.New("decode tout")
	}
	fee, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected tout type %T", outs[0])
	}
	return fee, nil
}
