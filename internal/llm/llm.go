package llm

import (
	"context"
	"encoding/json"
)

// Role 是对话消息的角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message 是发送给大模型的一条对话消息。
type Message struct {
	Role    Role
	Content string
	// ToolCalls 仅在 assistant 消息中出现。
	ToolCalls []ToolCall
	// ToolCallID 仅在 tool 消息中出现，对应触发它的调用。
	ToolCallID string
}

// ToolCall 是大模型请求执行的一次函数调用，Arguments 为原始 JSON 文本。
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolSpec 描述可供大模型调用的函数。
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Request 描述一次推理请求。Model 为空时使用客户端的默认模型。
type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolSpec
}

// Response 是大模型的一次回复：文本、函数调用，或二者兼有。
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
