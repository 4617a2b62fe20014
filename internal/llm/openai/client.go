package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/llm"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client 通过 go-openai 调用 Chat Completions，支持函数调用。
type Client struct {
	api   *goopenai.Client
	model string
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未提供 OpenAI API Key")
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	return &Client{api: goopenai.NewClientWithConfig(clientCfg), model: model}, nil
}

// Model 返回默认模型名称。
func (c *Client) Model() string { return c.model }

// Generate 发送对话与可用函数，返回文本回复或函数调用。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}

	chatReq := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return nil, xerrors.Wrap(xerrors.CodeAgentFailure, err, "OpenAI 返回错误")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "OpenAI 请求超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeAgentFailure, err, "请求 OpenAI 失败")
	}
	if len(resp.Choices) == 0 {
		return nil, xerrors.New(xerrors.CodeAgentFailure, "OpenAI 响应中没有有效的 choices")
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out, nil
}

func convertMessages(messages []llm.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted := goopenai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, goopenai.ToolCall{
				ID:   call.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out = append(out, converted)
	}
	return out
}

func convertTools(specs []llm.ToolSpec) []goopenai.Tool {
	tools := make([]goopenai.Tool, 0, len(specs))
	for _, spec := range specs {
		params := spec.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		tools = append(tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}
