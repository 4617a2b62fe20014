package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AgentKit-Chat/internal/agent"
	"AgentKit-Chat/internal/agentkit"
	"AgentKit-Chat/internal/api"
	"AgentKit-Chat/internal/bootstrap"
	"AgentKit-Chat/internal/config"
	"AgentKit-Chat/internal/llm"
	"AgentKit-Chat/internal/llm/openai"
	"AgentKit-Chat/internal/storage/mysql"
	"AgentKit-Chat/internal/storage/redis"
	"AgentKit-Chat/internal/transcript"
	"AgentKit-Chat/internal/wallet"
	"AgentKit-Chat/internal/web3"
	"AgentKit-Chat/pkg/logger"
)

// main 是 agentkitd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("agentkitd 运行失败: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("agentkitd", flag.ContinueOnError)
	configPath := flags.String("config", defaultConfigPath(), "JSON 配置文件路径，文件不存在时只使用环境变量")
	addr := flags.String("addr", "", "监听地址，覆盖配置")
	address := flags.String("address", "", "使用已有的钱包地址，优先级高于持久化记录与 ADDRESS")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := config.LoadDotEnv("."); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.Outputs,
	}); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("agentkitd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	networks, err := web3.LoadNetworks(cfg.Network.DefinitionsPath)
	if err != nil {
		return err
	}
	if _, err := networks.Lookup(cfg.Network.ID); err != nil {
		return err
	}

	// 钱包记录存储。
	var store wallet.Store
	switch cfg.Storage.WalletStore {
	case "file", "":
		store = wallet.NewFileStore(cfg.Runtime.DataDir)
	case "redis":
		redisStore, err := redis.NewWalletStore(ctx, redis.Config{
			Address:  cfg.Storage.Redis.Address,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer redisStore.Close()
		store = redisStore
	default:
		return fmt.Errorf("未知的钱包存储: %s", cfg.Storage.WalletStore)
	}

	recorder, err := newRecorder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Warn("关闭对话记录失败", "error", err)
		}
	}()

	// 缺少模型密钥时服务仍然启动，智能体保持未初始化。
	var model llm.Client
	if client, err := openai.NewClient(openai.Config{
		APIKey:  config.CleanSecret(cfg.LLM.APIKey),
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}); err != nil {
		log.Warn("大模型客户端未配置", "error", err)
	} else {
		model = client
	}
	runner := agent.NewRunner(model,
		agent.WithMaxTurns(cfg.LLM.MaxTurns),
		agent.WithModelTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
	)

	service := bootstrap.NewService(bootstrap.Config{
		NetworkID:       cfg.Network.ID,
		APIKeyID:        cfg.CDP.APIKeyID,
		APIKeySecret:    cfg.CDP.APIKeySecret,
		WalletSecret:    cfg.CDP.WalletSecret,
		ModelAPIKey:     cfg.LLM.APIKey,
		Model:           cfg.LLM.Model,
		ExplicitAddress: *address,
		EnvAddress:      cfg.CDP.Address,
		IdempotencyKey:  cfg.CDP.IdempotencyKey,
	}, store, wallet.NewCDPProviderFactory(networks, cfg.CDP.BaseURL, cfg.Network.RPCURL, nil), agentkit.DefaultProviders(""))
	defer func() {
		if handle := service.Current(); handle != nil {
			handle.Wallet.Close()
		}
	}()

	// 启动时初始化失败只记录日志，后续请求会再次尝试。
	if _, err := service.Setup(ctx); err != nil {
		log.Error("智能体初始化失败，服务以未初始化状态启动", "error", err)
	}

	server, err := api.NewServer(cfg.Server.Address, service, runner,
		api.WithRecorder(recorder),
		api.WithCORS(cfg.Server.AllowedOrigins, cfg.Server.OriginPattern),
	)
	if err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("agentkitd 已退出")
	return nil
}

func defaultConfigPath() string {
	if path := os.Getenv("AGENTKIT_CONFIG"); path != "" {
		return path
	}
	return filepath.Join("configs", "agentkit.json")
}

// newRecorder 根据配置组装对话记录仓库与投递器。
func newRecorder(ctx context.Context, cfg *config.Config) (*transcript.Recorder, error) {
	var repo transcript.Repository
	switch cfg.Storage.TranscriptStore {
	case "memory", "":
		memory, err := transcript.NewMemoryRepository(cfg.Runtime.DataDir)
		if err != nil {
			return nil, err
		}
		repo = memory
	case "mysql":
		sqlRepo, err := mysql.NewTranscriptRepository(ctx, mysql.Config{DSN: cfg.Storage.MySQLDSN})
		if err != nil {
			return nil, err
		}
		repo = sqlRepo
	case "none":
	default:
		return nil, fmt.Errorf("未知的对话记录存储: %s", cfg.Storage.TranscriptStore)
	}

	var publisher transcript.Publisher
	switch cfg.Events.Driver {
	case "none", "":
	case "redis":
		pub, err := transcript.NewRedisPublisher(ctx, transcript.RedisPublisherConfig{
			Address:  cfg.Storage.Redis.Address,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Queue:    cfg.Events.Queue,
		})
		if err != nil {
			closeRepo(repo)
			return nil, err
		}
		publisher = pub
	case "rabbitmq":
		pub, err := transcript.NewRabbitMQPublisher(transcript.RabbitMQConfig{
			URL:     cfg.Events.RabbitMQURL,
			Queue:   cfg.Events.Queue,
			Durable: true,
		})
		if err != nil {
			closeRepo(repo)
			return nil, err
		}
		publisher = pub
	default:
		closeRepo(repo)
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Events.Driver)
	}

	return transcript.NewRecorder(repo, publisher), nil
}

func closeRepo(repo transcript.Repository) {
	if repo != nil {
		_ = repo.Close()
	}
}
