package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultNetworkID 是未配置 NETWORK_ID 时使用的测试网。
const DefaultNetworkID = "base-sepolia"

// DefaultOriginPattern 匹配本地开发与内部域名的前端来源。
const DefaultOriginPattern = `^https?://(localhost|emergence\.fmr\.com)(:\d+)?$`

// DefaultOrigins 是默认允许的本地前端地址。
var DefaultOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"http://localhost:3000",
}

// Config 描述了服务在启动阶段需要加载的全部配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Network   NetworkConfig   `json:"network"`
	CDP       CDPConfig       `json:"cdp"`
	LLM       LLMConfig       `json:"llm"`
	Storage   StorageConfig   `json:"storage"`
	Events    EventsConfig    `json:"events"`
	Log       LogConfig       `json:"log"`
	Runtime   RuntimeConfig   `json:"runtime"`
	configDir string
}

// ServerConfig 控制 HTTP 服务监听地址与跨域策略。
type ServerConfig struct {
	Address        string   `json:"address"`
	AllowedOrigins []string `json:"allowed_origins"`
	OriginPattern  string   `json:"origin_pattern"`
}

// NetworkConfig 指定钱包所在网络以及可选的节点覆盖。
type NetworkConfig struct {
	ID              string `json:"id"`
	DefinitionsPath string `json:"definitions_path"`
	RPCURL          string `json:"rpc_url"`
}

// CDPConfig 保存 Coinbase Developer Platform 的凭证。
type CDPConfig struct {
	APIKeyID       string `json:"api_key_id"`
	APIKeySecret   string `json:"api_key_secret"`
	WalletSecret   string `json:"wallet_secret"`
	Address        string `json:"address"`
	IdempotencyKey string `json:"idempotency_key"`
	BaseURL        string `json:"base_url"`
}

// LLMConfig 配置智能体使用的大模型。
type LLMConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	MaxTurns       int    `json:"max_turns"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// StorageConfig 选择钱包记录与对话记录的存储后端。
type StorageConfig struct {
	WalletStore     string      `json:"wallet_store"`
	TranscriptStore string      `json:"transcript_store"`
	MySQLDSN        string      `json:"mysql_dsn"`
	Redis           RedisConfig `json:"redis"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// EventsConfig 控制对话事件的投递方式。
type EventsConfig struct {
	Driver      string `json:"driver"`
	Queue       string `json:"queue"`
	RabbitMQURL string `json:"rabbitmq_url"`
}

// LogConfig 对应 pkg/logger 的配置。
type LogConfig struct {
	Level   string   `json:"level"`
	Format  string   `json:"format"`
	Outputs []string `json:"outputs"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// LoadDotEnv 加载工作目录及其上级目录中的 .env 文件，文件不存在时忽略。
func LoadDotEnv(dir string) error {
	for _, candidate := range []string{filepath.Join(dir, ".env"), filepath.Join(dir, "..", ".env")} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("加载 %s 失败: %w", candidate, err)
		}
	}
	return nil
}

// Load 解析可选的 JSON 配置文件，再叠加环境变量与默认值。
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(content, cfg); err != nil {
				return nil, fmt.Errorf("解析配置失败: %w", err)
			}
			cfg.configDir = filepath.Dir(path)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv 用环境变量覆盖配置文件中的值。
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = parsed
			}
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitList(v)
		}
	}

	str("AGENTKIT_ADDR", &c.Server.Address)
	list("CORS_ORIGINS", &c.Server.AllowedOrigins)
	str("CORS_ORIGIN_PATTERN", &c.Server.OriginPattern)

	str("NETWORK_ID", &c.Network.ID)
	str("NETWORKS_FILE", &c.Network.DefinitionsPath)
	str("RPC_URL", &c.Network.RPCURL)

	// 凭证保留原始值，由 CleanSecret 统一清洗。
	raw := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	raw("CDP_API_KEY_ID", &c.CDP.APIKeyID)
	raw("CDP_API_KEY_SECRET", &c.CDP.APIKeySecret)
	raw("CDP_WALLET_SECRET", &c.CDP.WalletSecret)
	str("ADDRESS", &c.CDP.Address)
	str("IDEMPOTENCY_KEY", &c.CDP.IdempotencyKey)
	str("CDP_API_BASE_URL", &c.CDP.BaseURL)

	raw("OPENAI_API_KEY", &c.LLM.APIKey)
	str("OPENAI_BASE_URL", &c.LLM.BaseURL)
	str("OPENAI_MODEL", &c.LLM.Model)
	num("AGENT_MAX_TURNS", &c.LLM.MaxTurns)

	str("WALLET_STORE", &c.Storage.WalletStore)
	str("TRANSCRIPT_STORE", &c.Storage.TranscriptStore)
	str("MYSQL_DSN", &c.Storage.MySQLDSN)
	str("REDIS_ADDR", &c.Storage.Redis.Address)
	str("REDIS_PASSWORD", &c.Storage.Redis.Password)
	num("REDIS_DB", &c.Storage.Redis.DB)

	str("EVENTS_DRIVER", &c.Events.Driver)
	str("EVENTS_QUEUE", &c.Events.Queue)
	str("RABBITMQ_URL", &c.Events.RabbitMQURL)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	list("LOG_OUTPUTS", &c.Log.Outputs)

	str("AGENTKIT_DATA_DIR", &c.Runtime.DataDir)
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8000"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = append([]string(nil), DefaultOrigins...)
	}
	if c.Server.OriginPattern == "" {
		c.Server.OriginPattern = DefaultOriginPattern
	}
	if c.Network.ID == "" {
		c.Network.ID = DefaultNetworkID
	}
	if c.Network.DefinitionsPath != "" {
		c.Network.DefinitionsPath = c.resolve(c.Network.DefinitionsPath)
	}
	if c.CDP.BaseURL == "" {
		c.CDP.BaseURL = "https://api.cdp.coinbase.com/platform"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.MaxTurns <= 0 {
		c.LLM.MaxTurns = 10
	}
	if c.Storage.WalletStore == "" {
		c.Storage.WalletStore = "file"
	}
	if c.Storage.TranscriptStore == "" {
		c.Storage.TranscriptStore = "memory"
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Events.Queue == "" {
		c.Events.Queue = "agentkit.turns"
	}
	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = "."
	}
	c.Runtime.DataDir = c.resolve(c.Runtime.DataDir)
}

// resolve 将相对路径解释为相对配置文件所在目录。
func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.configDir == "" {
		return path
	}
	return filepath.Join(c.configDir, path)
}

// CleanSecret 去除凭证两侧的空白与引号，与 shell 中常见的写法兼容。
func CleanSecret(value string) string {
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"`)
	value = strings.Trim(value, `'`)
	return value
}

// CleanPrivateKey 在 CleanSecret 的基础上把字面量 \n 还原为换行，便于在单行环境变量里写 PEM。
func CleanPrivateKey(value string) string {
	return strings.ReplaceAll(CleanSecret(value), `\n`, "\n")
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
