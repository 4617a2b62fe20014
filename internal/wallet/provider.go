package wallet

import (
	"context"
	"math/big"

	"AgentKit-Chat/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Provider 是智能体工具操作钱包所依赖的适配层。
type Provider interface {
	Name() string
	Address() string
	NetworkID() string
	Network() web3.Network
	ChainID(ctx context.Context) (*big.Int, error)
	NativeBalance(ctx context.Context) (*big.Int, error)
	ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	SendTransaction(ctx context.Context, req web3.TxRequest) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	RequestFaucet(ctx context.Context, token string) (string, error)
	// Close 释放底层连接，被替换或初始化失败的提供者都会被关闭。
	Close()
}

// ProviderConfig 是构建钱包提供者所需的输入，凭证应已清洗。
type ProviderConfig struct {
	APIKeyID       string
	APIKeySecret   string
	WalletSecret   string
	NetworkID      string
	Address        string
	IdempotencyKey string
}

// ProviderFactory 根据配置创建钱包提供者。
type ProviderFactory func(ctx context.Context, cfg ProviderConfig) (Provider, error)
