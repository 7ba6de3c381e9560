package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// receiptPollInterval bounds how often we ask the node for a pending receipt.
const receiptPollInterval = 2 * time.Second

var ErrTxReverted = errors.New("transaction reverted")

// Client wraps an ethclient with the keeper's signing capability. The private
// key is injected once at construction and never exposed.
type Client struct {
	ec       *ethclient.Client
	log      *zap.Logger
	priv     *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
}

func Dial(ctx context.Context, rpcURL, pkHex string, gasLimit uint64, log *zap.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(pkHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("bad private key: %w", err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if gasLimit == 0 {
		gasLimit = 400_000
	}
	return &Client{
		ec:       ec,
		log:      log,
		priv:     key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		gasLimit: gasLimit,
	}, nil
}

func (c *Client) From() common.Address { return c.from }

// Call performs a read-only eth_call against the latest block.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.ec.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
}

// Submit signs and sends a state-changing call, then blocks until the
// transaction is mined. A reverted receipt is an error: callers sequence
// dependent steps on top of this and must not proceed past a failed leg.
func (c *Client) Submit(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	signed, err := c.sign(ctx, to, data)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	hash := signed.Hash()
	c.log.Debug("tx submitted", zap.String("tx", hash.Hex()), zap.String("to", to.Hex()))
	if err := c.waitMined(ctx, hash); err != nil {
		return hash, err
	}
	return hash, nil
}

func (c *Client) sign(ctx context.Context, to common.Address, data []byte) (*gethtypes.Transaction, error) {
	nonce, err := c.ec.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	tip, err := c.ec.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		tip = big.NewInt(2_000_000_000)
	}
	var baseFee *big.Int
	if h, _ := c.ec.HeaderByNumber(ctx, nil); h != nil && h.BaseFee != nil {
		baseFee = h.BaseFee
	} else if sp, _ := c.ec.SuggestGasPrice(ctx); sp != nil {
		baseFee = sp
	} else {
		baseFee = big.NewInt(5_000_000_000)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	gas, err := c.ec.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data})
	if err != nil || gas == 0 {
		gas = c.gasLimit
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		To:        &to,
		Gas:       gas,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
		Value:     big.NewInt(0),
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(c.chainID), c.priv)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) error {
	t := time.NewTicker(receiptPollInterval)
	defer t.Stop()
	for {
		rcpt, err := c.ec.TransactionReceipt(ctx, hash)
		if err == nil && rcpt != nil {
			if rcpt.Status != gethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex())
			}
			return nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.log.Debug("receipt poll failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait receipt %s: %w", hash.Hex(), ctx.Err())
		case <-t.C:
		}
	}
}
