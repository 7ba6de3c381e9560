package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
 {"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"internalType":"address","name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

type ERC20 struct {
	be   Backend
	abi  abi.ABI
	addr common.Address

	decOnce sync.Once
	dec     int
	decErr  error
}

func NewERC20(be Backend, addr common.Address) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20{be: be, abi: parsed, addr: addr}, nil
}

func (t *ERC20) Address() common.Address { return t.addr }

func (t *ERC20) Authorize(ctx context.Context, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := t.abi.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack approve: %w", err)
	}
	hash, err := t.be.Submit(ctx, t.addr, data)
	if err != nil {
		return hash, fmt.Errorf("approve %s: %w", spender.Hex(), err)
	}
	return hash, nil
}

func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := t.abi.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	raw, err := t.be.Call(ctx, t.addr, data)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	outs, err := t.abi.Methods["balanceOf"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, errors.New("decode balanceOf")
	}
	bal, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", outs[0])
	}
	return bal, nil
}

func (t *ERC20) Decimals(ctx context.Context) (int, error) {
	t.decOnce.Do(func() {
		t.dec, t.decErr = t.fetchDecimals(ctx)
	})
	return t.dec, t.decErr
}

func (t *ERC20) fetchDecimals(ctx context.Context) (int, error) {
	data, err := t.abi.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	raw, err := t.be.Call(ctx, t.addr, data)
	if err != nil {
		return 0, fmt.Errorf("call decimals: %w", err)
	}
	outs, err := t.abi.Methods["decimals"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return 0, errors.New("decode decimals")
	}
	switch v := outs[0].(type) {
	case uint8:
		return int(v), nil
	case *big.Int:
		return int(v.Int64()), nil
	default:
		return 0, fmt.Errorf("unexpected decimals type %T", v)
	}
}
