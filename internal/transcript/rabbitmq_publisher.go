package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	xerrors "AgentKit-Chat/internal/errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL     string
	Queue   string
	Durable bool
}

// RabbitMQPublisher 使用 RabbitMQ 默认交换机投递对话记录。
type RabbitMQPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQPublisher 连接 RabbitMQ 并声明队列。
func NewRabbitMQPublisher(cfg RabbitMQConfig) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "agentkit.turns"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, queue: queue}, nil
}

// Publish 将对话记录投递到 RabbitMQ。amqp channel 不支持并发发布，因此加锁。
func (p *RabbitMQPublisher) Publish(ctx context.Context, turn Turn) error {
	if p == nil || p.ch == nil {
		return xerrors.New(xerrors.CodePublishFailure, "RabbitMQ 队列未初始化")
	}
	encoded, err := json.Marshal(turn)
	if err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "序列化对话记录失败")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    turn.ID,
		Body:         encoded,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "RabbitMQ 投递对话记录失败")
	}
	return nil
}

// Close 关闭 RabbitMQ 连接。
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
