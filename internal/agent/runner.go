package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/llm"
	"AgentKit-Chat/pkg/logger"
)

// DefaultMaxTurns 是一次运行中模型调用次数的默认上限。
const DefaultMaxTurns = 10

// ToolErrorPrefix 是工具执行失败时交给模型的输出前缀。
const ToolErrorPrefix = "An error occurred while running the tool. Please try again. Error: "

// RunResult 汇总一次运行的结果。
type RunResult struct {
	Input       string
	NewItems    []Item
	FinalOutput string
}

// Runner 驱动模型与工具的交替调用。
type Runner struct {
	model        llm.Client
	maxTurns     int
	modelTimeout time.Duration
	log          *slog.Logger
}

// Option 定义可选的 Runner 配置。
type Option func(*Runner)

// WithMaxTurns 设置一次运行中模型调用的上限。
func WithMaxTurns(turns int) Option {
	return func(r *Runner) {
		if turns > 0 {
			r.maxTurns = turns
		}
	}
}

// WithModelTimeout 设置单次模型调用的超时时间。
func WithModelTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.modelTimeout = timeout
		}
	}
}

// NewRunner 创建一个 Runner。
func NewRunner(model llm.Client, opts ...Option) *Runner {
	r := &Runner{
		model:    model,
		maxTurns: DefaultMaxTurns,
		log:      logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run 同步执行智能体，直到模型不再请求工具。
func (r *Runner) Run(ctx context.Context, agent *Agent, input string) (*RunResult, error) {
	return r.run(ctx, agent, input, func(StreamEvent) bool { return true })
}

// StreamedRun 是一次流式运行。Events 关闭后 Err 与 Result 可用。
type StreamedRun struct {
	events chan StreamEvent

	mu     sync.Mutex
	result *RunResult
	err    error
}

// Events 返回按产生顺序排列的事件，运行结束时关闭。
func (s *StreamedRun) Events() <-chan StreamEvent { return s.events }

// Err 返回运行错误，仅在 Events 关闭后有意义。
func (s *StreamedRun) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Result 返回运行结果，仅在 Events 关闭后有意义。
func (s *StreamedRun) Result() *RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// RunStreamed 在后台执行智能体并以事件流的形式返回过程。
// 调用方需要读完 Events，或取消 ctx。
func (r *Runner) RunStreamed(ctx context.Context, agent *Agent, input string) *StreamedRun {
	stream := &StreamedRun{events: make(chan StreamEvent, 16)}
	go func() {
		defer close(stream.events)
		result, err := r.run(ctx, agent, input, func(event StreamEvent) bool {
			select {
			case stream.events <- event:
				return true
			case <-ctx.Done():
				return false
			}
		})
		stream.mu.Lock()
		stream.result, stream.err = result, err
		stream.mu.Unlock()
	}()
	return stream
}

func (r *Runner) run(ctx context.Context, agent *Agent, input string, emit func(StreamEvent) bool) (*RunResult, error) {
	// 验证必要的组件是否已配置。
	if r.model == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未配置大模型客户端")
	}
	if agent == nil {
		return nil, xerrors.New(xerrors.CodeNotInitialized, "")
	}

	result := &RunResult{Input: input}
	if !emit(AgentUpdatedEvent{Agent: agent}) {
		return nil, ctx.Err()
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: agent.Instructions},
		{Role: llm.RoleUser, Content: input},
	}
	specs := toolSpecs(agent.Tools)

	for turn := 0; turn < r.maxTurns; turn++ {
		resp, err := r.generate(ctx, llm.Request{Model: agent.Model, Messages: messages, Tools: specs})
		if err != nil {
			return nil, err
		}

		if resp.Content != "" {
			item := MessageItem{Parts: []ContentPart{{Type: ContentOutputText, Text: resp.Content}}}
			result.NewItems = append(result.NewItems, item)
			if !emit(MessageOutputEvent{Item: item}) {
				return nil, ctx.Err()
			}
		}

		if len(resp.ToolCalls) == 0 {
			result.FinalOutput = resp.Content
			return result, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

		// 依次执行工具调用，输出回填给模型。
		for _, call := range resp.ToolCalls {
			callItem := ToolCallItem{CallID: call.ID, Name: call.Name, Arguments: call.Arguments}
			result.NewItems = append(result.NewItems, callItem)
			if !emit(ToolCalledEvent{Item: callItem}) {
				return nil, ctx.Err()
			}

			output := r.invoke(ctx, agent, call)
			outputItem := ToolCallOutputItem{CallID: call.ID, Output: &output, Raw: ToolOutputRaw{Output: output}}
			result.NewItems = append(result.NewItems, outputItem)
			if !emit(ToolOutputEvent{Item: outputItem}) {
				return nil, ctx.Err()
			}

			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: output, ToolCallID: call.ID})
		}
	}

	return nil, xerrors.Newf(xerrors.CodeMaxTurnsExceeded, "Max turns (%d) exceeded", r.maxTurns)
}

func (r *Runner) generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	callCtx := ctx
	if r.modelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.modelTimeout)
		defer cancel()
	}

	resp, err := r.model.Generate(callCtx, req)
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeAgentFailure, err, "大模型推理失败")
	}
	if resp == nil {
		return nil, xerrors.New(xerrors.CodeAgentFailure, "大模型返回空响应")
	}
	return resp, nil
}

// invoke 执行工具。工具错误不会中断运行，而是作为输出交给模型处理。
func (r *Runner) invoke(ctx context.Context, agent *Agent, call llm.ToolCall) string {
	tool, ok := agent.tool(call.Name)
	if !ok {
		r.log.Warn("模型请求了不存在的工具", "tool", call.Name)
		return fmt.Sprintf("Tool %s not found in agent %s", call.Name, agent.Name)
	}

	started := time.Now()
	output, err := tool.Invoke(ctx, call.Arguments)
	if err != nil {
		r.log.Warn("工具执行失败", "tool", call.Name, "error", err, "code", xerrors.CodeOf(err))
		return ToolErrorPrefix + err.Error()
	}
	r.log.Debug("工具执行完成", "tool", call.Name, "duration", time.Since(started))
	return output
}

func toolSpecs(tools []Tool) []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(tools))
	for _, tool := range tools {
		specs = append(specs, llm.ToolSpec{
			Name:        tool.Name(),
			Description: strings.TrimSpace(tool.Description()),
			Parameters:  tool.Parameters(),
		})
	}
	return specs
}
