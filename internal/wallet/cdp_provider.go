package wallet

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"AgentKit-Chat/internal/cdp"
	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/web3"
	"AgentKit-Chat/internal/web3/ethereum"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// AccountAPI 是 CDPProvider 需要的 CDP 账户接口，*cdp.Client 实现了它。
type AccountAPI interface {
	CreateEVMAccount(ctx context.Context, name, idempotencyKey string) (*cdp.EVMAccount, error)
	GetEVMAccount(ctx context.Context, address string) (*cdp.EVMAccount, error)
	RequestFaucet(ctx context.Context, network, address, token string) (string, error)
	SendEVMTransaction(ctx context.Context, address, network, rawTx string) (string, error)
}

// CDPProvider 使用 CDP 托管账户签名，通过 RPC 节点读取链上状态。
type CDPProvider struct {
	api     AccountAPI
	chain   web3.Client
	network web3.Network
	address common.Address
}

// NewCDPProvider 解析或创建账户。给出地址时确认账户存在，否则新建账户。
func NewCDPProvider(ctx context.Context, cfg ProviderConfig, api AccountAPI, chain web3.Client, network web3.Network) (*CDPProvider, error) {
	if api == nil || chain == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "钱包提供者缺少依赖")
	}

	var account *cdp.EVMAccount
	var err error
	if address := strings.TrimSpace(cfg.Address); address != "" {
		if !common.IsHexAddress(address) {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "钱包地址 %q 不合法", address)
		}
		account, err = api.GetEVMAccount(ctx, address)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取 CDP 账户失败")
		}
	} else {
		account, err = api.CreateEVMAccount(ctx, "", cfg.IdempotencyKey)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "创建 CDP 账户失败")
		}
	}
	if account == nil || !common.IsHexAddress(account.Address) {
		return nil, xerrors.New(xerrors.CodeWalletFailure, "CDP 返回的账户地址无效")
	}

	return &CDPProvider{
		api:     api,
		chain:   chain,
		network: network,
		address: common.HexToAddress(account.Address),
	}, nil
}

// NewCDPProviderFactory 返回一个基于真实 CDP API 与 RPC 节点的 ProviderFactory。
func NewCDPProviderFactory(networks web3.Networks, baseURL, rpcOverride string, httpClient *http.Client) ProviderFactory {
	return func(ctx context.Context, cfg ProviderConfig) (Provider, error) {
		network, err := networks.Lookup(cfg.NetworkID)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "网络配置无效")
		}
		if rpcOverride != "" {
			network.RPCURL = rpcOverride
		}

		api, err := cdp.NewClient(cdp.Config{
			APIKeyID:     cfg.APIKeyID,
			APIKeySecret: cfg.APIKeySecret,
			WalletSecret: cfg.WalletSecret,
			BaseURL:      baseURL,
			HTTPClient:   httpClient,
		})
		if err != nil {
			return nil, err
		}

		chain, err := ethereum.NewClient(ctx, ethereum.Config{Network: network})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "连接区块链节点失败")
		}

		provider, err := NewCDPProvider(ctx, cfg, api, chain, network)
		if err != nil {
			chain.Close()
			return nil, err
		}
		return provider, nil
	}
}

// Name 返回提供者名称。
func (p *CDPProvider) Name() string { return "cdp_evm_wallet_provider" }

// Address 返回钱包地址。
func (p *CDPProvider) Address() string { return p.address.Hex() }

// NetworkID 返回网络 ID。
func (p *CDPProvider) NetworkID() string { return p.network.ID }

// Network 返回网络定义。
func (p *CDPProvider) Network() web3.Network { return p.network }

// ChainID 返回链 ID。
func (p *CDPProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return p.chain.ChainID(ctx)
}

// NativeBalance 返回原生代币余额（wei）。
func (p *CDPProvider) NativeBalance(ctx context.Context) (*big.Int, error) {
	balance, err := p.chain.BalanceAt(ctx, p.address)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "查询余额失败")
	}
	return balance, nil
}

// ReadContract 以钱包地址为 from 执行只读调用。
func (p *CDPProvider) ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := p.chain.CallContract(ctx, p.address, to, data)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "合约调用失败")
	}
	return out, nil
}

// SendTransaction 在本地构造 EIP-1559 交易，交由 CDP 签名并广播。
func (p *CDPProvider) SendTransaction(ctx context.Context, req web3.TxRequest) (common.Hash, error) {
	tx, err := p.chain.PrepareTransaction(ctx, p.address, req)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "构造交易失败")
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "编码交易失败")
	}
	hash, err := p.api.SendEVMTransaction(ctx, p.Address(), p.network.ID, hexutil.Encode(raw))
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "发送交易失败")
	}
	return common.HexToHash(hash), nil
}

// WaitForReceipt 等待交易上链。
func (p *CDPProvider) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := p.chain.WaitForReceipt(ctx, hash)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeWalletFailure, err, "等待交易回执失败")
	}
	return receipt, nil
}

// RequestFaucet 在测试网上申请测试代币，返回交易哈希。
func (p *CDPProvider) RequestFaucet(ctx context.Context, token string) (string, error) {
	if !p.network.IsTestnet() {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "网络 %s 不支持水龙头", p.network.ID)
	}
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		token = "eth"
	}
	supported := false
	for _, candidate := range p.network.FaucetTokens {
		if candidate == token {
			supported = true
			break
		}
	}
	if !supported {
		return "", xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("水龙头不支持代币 %s，可选: %s", token, strings.Join(p.network.FaucetTokens, ", ")))
	}
	hash, err := p.api.RequestFaucet(ctx, p.network.ID, p.Address(), token)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletFailure, err, "申请水龙头资金失败")
	}
	return hash, nil
}

// Close 释放 RPC 连接。
func (p *CDPProvider) Close() {
	p.chain.Close()
}
