package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/wallet"
	"AgentKit-Chat/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agentkit:wallet:"

// Config 描述 Redis 连接参数。
type Config struct {
	Address  string
	Password string
	DB       int
}

// WalletStore 以 JSON 字符串保存每个网络的钱包记录。
type WalletStore struct {
	client redis.UniversalClient
	log    *slog.Logger
}

// NewWalletStore 连接 Redis 并检查可用性。
func NewWalletStore(ctx context.Context, cfg Config) (*WalletStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return NewWalletStoreWithClient(client), nil
}

// NewWalletStoreWithClient 使用已有的客户端。
func NewWalletStoreWithClient(client redis.UniversalClient) *WalletStore {
	return &WalletStore{client: client, log: logger.Named("wallet")}
}

// Key 返回网络对应的 Redis key。
func Key(networkID string) string {
	return keyPrefix + networkID
}

// Load 读取记录。key 不存在返回 nil；内容不是合法 JSON 时记录警告并返回 nil。
func (s *WalletStore) Load(ctx context.Context, networkID string) (*wallet.Record, error) {
	raw, err := s.client.Get(ctx, Key(networkID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 钱包记录失败")
	}

	var record wallet.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		s.log.Warn("Redis 钱包记录不是合法 JSON，忽略", "key", Key(networkID), "error", err)
		return nil, nil
	}
	return &record, nil
}

// Save 覆盖写入记录，不设置过期时间。
func (s *WalletStore) Save(ctx context.Context, record wallet.Record) error {
	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化钱包记录失败")
	}
	if err := s.client.Set(ctx, Key(record.NetworkID), encoded, 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("写入 Redis key %s 失败", Key(record.NetworkID)))
	}
	s.log.Info("已保存钱包记录", "key", Key(record.NetworkID))
	return nil
}

// Close 关闭 Redis 连接。
func (s *WalletStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ wallet.Store = (*WalletStore)(nil)
