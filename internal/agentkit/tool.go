package agentkit

import (
	"context"
	"encoding/json"
	"strings"

	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/wallet"
	"AgentKit-Chat/internal/web3"
)

// Tool 是暴露给智能体的一项可调用能力。
type Tool interface {
	Name() string
	// Description 可以为空，表示该工具没有描述。
	Description() string
	// Parameters 返回参数的 JSON Schema。
	Parameters() json.RawMessage
	// Invoke 以原始 JSON 参数执行工具，返回文本结果。
	Invoke(ctx context.Context, args string) (string, error)
}

// ActionProvider 为某个钱包提供一组工具。
type ActionProvider interface {
	Name() string
	SupportsNetwork(network web3.Network) bool
	Actions(w wallet.Provider) []Tool
}

// Action 是 Tool 的通用实现。
type Action struct {
	ActionName        string
	ActionDescription string
	Schema            json.RawMessage
	Handler           func(ctx context.Context, args json.RawMessage) (string, error)
}

// Name 实现 Tool。
func (a *Action) Name() string { return a.ActionName }

// Description 实现 Tool。
func (a *Action) Description() string { return a.ActionDescription }

// Parameters 实现 Tool。
func (a *Action) Parameters() json.RawMessage {
	if len(a.Schema) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return a.Schema
}

// Invoke 实现 Tool，空参数视为空对象。
func (a *Action) Invoke(ctx context.Context, args string) (string, error) {
	raw := strings.TrimSpace(args)
	if raw == "" {
		raw = "{}"
	}
	if !json.Valid([]byte(raw)) {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "工具 %s 的参数不是合法 JSON", a.ActionName)
	}
	return a.Handler(ctx, json.RawMessage(raw))
}

// decodeArgs 把参数解析到 dst。
func decodeArgs(name string, raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 "+name+" 参数失败")
	}
	return nil
}

// AgentKit 将钱包与一组动作提供者组合为工具集。
type AgentKit struct {
	wallet    wallet.Provider
	providers []ActionProvider
}

// New 创建工具集。
func New(w wallet.Provider, providers ...ActionProvider) *AgentKit {
	return &AgentKit{wallet: w, providers: providers}
}

// DefaultProviders 返回默认启用的动作提供者。
func DefaultProviders(pythBaseURL string) []ActionProvider {
	return []ActionProvider{
		CDPAPIProvider(),
		ERC20Provider(),
		PythProvider(pythBaseURL, nil),
		WalletProvider(),
		WETHProvider(),
	}
}

// Wallet 返回底层钱包。
func (k *AgentKit) Wallet() wallet.Provider { return k.wallet }

// Tools 返回所有支持当前网络的提供者的工具，顺序与提供者顺序一致。
func (k *AgentKit) Tools() []Tool {
	if k == nil || k.wallet == nil {
		return nil
	}
	network := k.wallet.Network()
	var tools []Tool
	for _, provider := range k.providers {
		if !provider.SupportsNetwork(network) {
			continue
		}
		tools = append(tools, provider.Actions(k.wallet)...)
	}
	return tools
}
