package transcript

import (
	"context"
	"encoding/json"
)

// Channel 表示对话来源。
type Channel string

const (
	ChannelHTTP      Channel = "http"
	ChannelWebSocket Channel = "ws"
)

const (
	ToolEventCall   = "tool_call"
	ToolEventOutput = "tool_output"
)

// ToolEvent 是一次对话中的工具调用或工具输出。
type ToolEvent struct {
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// MarshalJSON 按类型输出字段：tool_call 只含 name 与 arguments，tool_output 只含 output。
func (e ToolEvent) MarshalJSON() ([]byte, error) {
	if e.Type == ToolEventCall {
		return json.Marshal(struct {
			Type      string `json:"type"`
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		}{e.Type, e.Name, e.Arguments})
	}
	return json.Marshal(struct {
		Type   string `json:"type"`
		Output string `json:"output"`
	}{e.Type, e.Output})
}

// Turn 是一轮完成的对话。
type Turn struct {
	ID         string      `json:"id"`
	Channel    Channel     `json:"channel"`
	SessionID  string      `json:"session_id,omitempty"`
	Message    string      `json:"message"`
	Response   string      `json:"response"`
	ToolEvents []ToolEvent `json:"tool_calls,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
	CreatedAt  int64       `json:"created_at"`
}

// Repository 抽象对话记录的持久化接口。
type Repository interface {
	Save(ctx context.Context, turn Turn) error
	ListLatest(ctx context.Context, limit int) ([]Turn, error)
	Close() error
}

// Publisher 将对话记录投递到外部队列。
type Publisher interface {
	Publish(ctx context.Context, turn Turn) error
	Close() error
}
