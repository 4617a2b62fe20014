package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	xerrors "AgentKit-Chat/internal/errors"

	"github.com/redis/go-redis/v9"
)

// RedisPublisherConfig 描述 Redis 队列的连接参数。
type RedisPublisherConfig struct {
	Address  string
	Password string
	DB       int
	Queue    string
}

// RedisPublisher 使用 Redis list 投递对话记录，消费者可通过 BRPOP 读取。
type RedisPublisher struct {
	client *redis.Client
	queue  string
}

// NewRedisPublisher 创建 Redis 投递器并检查连接。
func NewRedisPublisher(ctx context.Context, cfg RedisPublisherConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "agentkit:turns"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisPublisher{client: client, queue: queue}, nil
}

// Publish 将对话记录以 JSON 形式 LPUSH 到队列。
func (p *RedisPublisher) Publish(ctx context.Context, turn Turn) error {
	encoded, err := json.Marshal(turn)
	if err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "序列化对话记录失败")
	}
	if err := p.client.LPush(ctx, p.queue, encoded).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "Redis 投递对话记录失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
