package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"AgentKit-Chat/internal/agent"
	"AgentKit-Chat/internal/agentkit"
	"AgentKit-Chat/internal/config"
	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/wallet"
	"AgentKit-Chat/pkg/logger"
)

// Status 值用于 WalletInfo。
const (
	StatusConnected      = "connected"
	StatusNotInitialized = "not_initialized"
)

// Config 是构建智能体所需的原始配置，凭证在 Setup 时统一清洗。
type Config struct {
	NetworkID    string
	APIKeyID     string
	APIKeySecret string
	WalletSecret string
	ModelAPIKey  string
	Model        string

	// ExplicitAddress 优先级最高，通常来自命令行。
	ExplicitAddress string
	// EnvAddress 是 ADDRESS 环境变量，仅在没有持久化地址时使用。
	EnvAddress     string
	IdempotencyKey string
}

// Handle 聚合智能体、钱包与工具集。
type Handle struct {
	Agent  *agent.Agent
	Wallet wallet.Provider
	Kit    *agentkit.AgentKit
}

// WalletInfo 是钱包状态的对外描述。
type WalletInfo struct {
	Address   *string `json:"address"`
	NetworkID *string `json:"network_id"`
	Status    string  `json:"status"`
}

// ToolInfo 是工具的对外描述，Description 为空时输出 null。
type ToolInfo struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Service 负责初始化并持有当前的智能体。
type Service struct {
	cfg         Config
	store       wallet.Store
	newProvider wallet.ProviderFactory
	actions     []agentkit.ActionProvider
	log         *slog.Logger
	now         func() time.Time

	// initMu 串行化 Setup；mu 只保护 handle 指针。
	initMu sync.Mutex
	mu     sync.RWMutex
	handle *Handle
}

// NewService 创建 Service。
func NewService(cfg Config, store wallet.Store, newProvider wallet.ProviderFactory, actions []agentkit.ActionProvider) *Service {
	if strings.TrimSpace(cfg.NetworkID) == "" {
		cfg.NetworkID = config.DefaultNetworkID
	}
	return &Service{
		cfg:         cfg,
		store:       store,
		newProvider: newProvider,
		actions:     actions,
		log:         logger.Named("bootstrap"),
		now:         time.Now,
	}
}

// NetworkID 返回配置的网络。
func (s *Service) NetworkID() string { return s.cfg.NetworkID }

// Setup 重新构建钱包与智能体，并覆盖写入钱包记录。
func (s *Service) Setup(ctx context.Context) (*Handle, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.setupLocked(ctx)
}

// Handle 返回当前的智能体，首次调用时执行 Setup。
func (s *Service) Handle(ctx context.Context) (*Handle, error) {
	if h := s.Current(); h != nil {
		return h, nil
	}
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if h := s.Current(); h != nil {
		return h, nil
	}
	return s.setupLocked(ctx)
}

// Current 返回已初始化的智能体，未初始化时返回 nil。
func (s *Service) Current() *Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// WalletInfo 返回当前钱包状态，不会触发初始化。
func (s *Service) WalletInfo() WalletInfo {
	h := s.Current()
	if h == nil || h.Wallet == nil {
		return WalletInfo{Status: StatusNotInitialized}
	}
	address := h.Wallet.Address()
	network := s.cfg.NetworkID
	return WalletInfo{Address: &address, NetworkID: &network, Status: StatusConnected}
}

// Tools 列出当前智能体的工具，未初始化时返回空列表。
func (s *Service) Tools() []ToolInfo {
	h := s.Current()
	if h == nil || h.Agent == nil {
		return []ToolInfo{}
	}
	infos := make([]ToolInfo, 0, len(h.Agent.Tools))
	for _, tool := range h.Agent.Tools {
		info := ToolInfo{Name: tool.Name()}
		if description := tool.Description(); description != "" {
			info.Description = &description
		}
		infos = append(infos, info)
	}
	return infos
}

func (s *Service) setupLocked(ctx context.Context) (*Handle, error) {
	networkID := s.cfg.NetworkID
	s.log.Info("开始初始化智能体", "network_id", networkID)

	// 清洗并校验凭证。
	apiKeyID := config.CleanSecret(s.cfg.APIKeyID)
	apiKeySecret := config.CleanSecret(s.cfg.APIKeySecret)
	if apiKeyID == "" || apiKeySecret == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration,
			"CDP_API_KEY_ID and CDP_API_KEY_SECRET must be set. Get them from: https://portal.cdp.coinbase.com/access/api")
	}
	if config.CleanSecret(s.cfg.ModelAPIKey) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "OPENAI_API_KEY must be set")
	}
	apiKeySecret = config.CleanPrivateKey(s.cfg.APIKeySecret)
	walletSecret := config.CleanSecret(s.cfg.WalletSecret)

	// 读取已有的钱包记录。
	var record *wallet.Record
	if s.store != nil {
		loaded, err := s.store.Load(ctx, networkID)
		if err != nil {
			return nil, err
		}
		record = loaded
		if record != nil {
			s.log.Info("加载已有钱包记录", "network_id", networkID, "address", record.AddressValue())
		}
	}

	address := firstNonEmpty(s.cfg.ExplicitAddress, record.AddressValue(), s.cfg.EnvAddress)
	idempotencyKey := ""
	if address == "" {
		idempotencyKey = strings.TrimSpace(s.cfg.IdempotencyKey)
	}

	if s.newProvider == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未配置钱包提供者")
	}
	provider, err := s.newProvider(ctx, wallet.ProviderConfig{
		APIKeyID:       apiKeyID,
		APIKeySecret:   apiKeySecret,
		WalletSecret:   walletSecret,
		NetworkID:      networkID,
		Address:        address,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		s.log.Error("初始化钱包提供者失败", "network_id", networkID, "error", err)
		return nil, err
	}

	kit := agentkit.New(provider, s.actions...)
	ag := agent.New(agentTools(kit.Tools()))
	if model := strings.TrimSpace(s.cfg.Model); model != "" {
		ag.Model = model
	}

	// 首次创建时记录时间，之后保持不变。
	createdAt := s.now().Format(wallet.TimestampLayout)
	if record != nil && record.CreatedAt != "" {
		createdAt = record.CreatedAt
	}
	walletAddress := provider.Address()
	if s.store != nil {
		if err := s.store.Save(ctx, wallet.Record{Address: &walletAddress, NetworkID: networkID, CreatedAt: createdAt}); err != nil {
			provider.Close()
			return nil, err
		}
	}

	handle := &Handle{Agent: ag, Wallet: provider, Kit: kit}
	s.mu.Lock()
	previous := s.handle
	s.handle = handle
	s.mu.Unlock()
	if previous != nil && previous.Wallet != nil {
		previous.Wallet.Close()
	}

	s.log.Info("智能体初始化完成", "network_id", networkID, "address", walletAddress, "tools", len(ag.Tools))
	return handle, nil
}

func agentTools(tools []agentkit.Tool) []agent.Tool {
	out := make([]agent.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, tool)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
