package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const routerABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

// Router is a UniswapV2-style market venue (KalySwap). Quotes go through
// getAmountsOut; swaps through swapExactTokensForTokens with the recipient
// fixed to the keeper wallet.
type Router struct {
	be   Backend
	abi  abi.ABI
	addr common.Address
}

func NewRouter(be Backend, addr common.Address) (*Router, error) {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	return &Router{be: be, abi: parsed, addr: addr}, nil
}

func (r *Router) Address() common.Address { return r.addr }

func (r *Router) QuoteOutput(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := r.abi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	raw, err := r.be.Call(ctx, r.addr, data)
	if err != nil {
		return nil, fmt.Errorf("call getAmountsOut: %w", err)
	}
	outs, err := r.abi.Methods["getAmountsOut"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, errors.New("decode getAmountsOut")
	}
	amounts, ok := outs[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, errors.New("bad amounts length")
	}
	return amounts[len(amounts)-1], nil
}

func (r *Router) SwapExactInput(ctx context.Context, amountIn, minOut *big.Int, path []common.Address, deadline time.Time) (common.Hash, error) {
	data, err := r.abi.Pack("swapExactTokensForTokens",
		amountIn, minOut, path, r.be.From(), big.NewInt(deadline.Unix()))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack swapExactTokensForTokens: %w", err)
	}
	hash, err := r.be.Submit(ctx, r.addr, data)
	if err != nil {
		return hash, fmt.Errorf("swapExactTokensForTokens: %w", err)
	}
	return hash, nil
}
