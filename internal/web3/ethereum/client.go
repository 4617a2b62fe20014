package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"AgentKit-Chat/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Network      web3.Network
	PollInterval time.Duration
}

// backend is the subset of ethclient used by the client. The simulated
// backend client satisfies it too.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Client implements web3.Client for EVM compatible chains.
type Client struct {
	network      web3.Network
	backend      backend
	closer       func()
	pollInterval time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the network RPC endpoint.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.Network.RPCURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("网络 %s 未配置 RPC 地址", cfg.Network.ID)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 节点失败: %w", cfg.Network.ID, err)
	}
	return newClient(cfg, eth, eth.Close), nil
}

// NewBackendClient wraps an already connected backend, typically the client of
// a go-ethereum simulated backend in tests.
func NewBackendClient(cfg Config, b backend) *Client {
	return newClient(cfg, b, nil)
}

func newClient(cfg Config, b backend, closer func()) *Client {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	c := &Client{
		network:      cfg.Network,
		backend:      b,
		closer:       closer,
		pollInterval: interval,
	}
	if cfg.Network.ChainID > 0 {
		c.chainID = big.NewInt(cfg.Network.ChainID)
	}
	return c
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closer != nil {
		c.closer()
		c.closer = nil
	}
}

// ChainID returns the configured chain id, asking the node when unknown.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// BalanceAt returns the latest native balance of address in wei.
func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// CallContract executes a read only call against the latest block.
func (c *Client) CallContract(ctx context.Context, from, to common.Address, data []byte) ([]byte, error) {
	out, err := c.backend.CallContract(ctx, gethcore.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用合约 %s 失败: %w", to.Hex(), err)
	}
	return out, nil
}

// PrepareTransaction fills nonce, fees and gas for an EIP-1559 transaction.
// The returned transaction is unsigned.
func (c *Client) PrepareTransaction(ctx context.Context, from common.Address, req web3.TxRequest) (*coretypes.Transaction, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("查询交易计数失败: %w", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("估算小费失败: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("获取最新区块失败: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))

	to := req.To
	gas, err := c.backend.EstimateGas(ctx, gethcore.CallMsg{
		From:      from,
		To:        &to,
		GasFeeCap: feeCap,
		GasTipCap: tip,
		Value:     value,
		Data:      req.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("估算 gas 失败: %w", err)
	}

	return coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	}), nil
}

// WaitForReceipt polls until the transaction is mined or ctx is done.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, gethcore.NotFound) {
			return nil, fmt.Errorf("查询交易回执失败: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ web3.Client = (*Client)(nil)
