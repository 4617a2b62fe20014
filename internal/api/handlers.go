package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AgentKit-Chat/internal/agent"
	"AgentKit-Chat/internal/observability/metrics"
	"AgentKit-Chat/internal/transcript"
)

// EmptyMessageReply 是空消息时 /chat 的固定回复。
const EmptyMessageReply = "Please provide a message."

// ChatResponse 是 /chat 的响应，没有工具调用时 tool_calls 为 null。
type ChatResponse struct {
	Response  string                 `json:"response"`
	ToolCalls []transcript.ToolEvent `json:"tool_calls"`
}

const maxChatBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWallet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agents.WalletInfo())
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agents.Tools())
}

// handleChat 同步执行智能体。智能体侧的失败以 "Error: ..." 文本返回，状态码仍为 200。
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	// 解析请求体。
	body, err := io.ReadAll(io.LimitReader(r.Body, maxChatBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "读取请求体失败")
		return
	}
	message, ok := decodeMessage(body)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}
	if strings.TrimSpace(message) == "" {
		writeJSON(w, http.StatusOK, ChatResponse{Response: EmptyMessageReply})
		return
	}

	// 获取智能体并同步运行。
	started := time.Now()
	ctx := r.Context()
	resp, runErr := s.runChat(ctx, message)
	outcome := metrics.OutcomeSuccess
	if runErr != nil {
		outcome = metrics.OutcomeError
		s.log.Error("同步对话失败", "error", runErr)
		resp = ChatResponse{Response: "Error: " + runErr.Error()}
	}
	duration := time.Since(started)
	s.metrics.ObserveAgentRun(string(transcript.ChannelHTTP), outcome, duration)

	turn := transcript.Turn{
		Channel:    transcript.ChannelHTTP,
		Message:    message,
		Response:   resp.Response,
		ToolEvents: resp.ToolCalls,
		DurationMS: duration.Milliseconds(),
	}
	if runErr != nil {
		turn.Error = runErr.Error()
	}
	s.recorder.Record(context.WithoutCancel(ctx), turn)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runChat(ctx context.Context, message string) (ChatResponse, error) {
	handle, err := s.agents.Handle(ctx)
	if err != nil {
		return ChatResponse{}, err
	}
	result, err := s.runner.Run(ctx, handle.Agent, message)
	if err != nil {
		return ChatResponse{}, err
	}

	// 按出现顺序收集工具调用与输出。
	var events []transcript.ToolEvent
	current := ""
	for _, item := range result.NewItems {
		switch it := item.(type) {
		case agent.ToolCallItem:
			current = it.Name
			events = append(events, transcript.ToolEvent{Type: transcript.ToolEventCall, Name: it.Name, Arguments: it.Arguments})
		case agent.ToolCallOutputItem:
			output := it.Raw.Output
			if it.Output != nil && *it.Output != "" {
				output = *it.Output
			}
			s.metrics.ObserveToolCall(current, toolOutcome(output))
			current = ""
			events = append(events, transcript.ToolEvent{Type: transcript.ToolEventOutput, Output: output})
		}
	}
	return ChatResponse{Response: result.FinalOutput, ToolCalls: events}, nil
}

// handleHistory 返回最近的对话记录。
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	turns, err := s.recorder.Latest(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// decodeMessage 解析 {"message": ...}。非对象返回 false；message 缺失或不是字符串视为空。
func decodeMessage(data []byte) (string, bool) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		return "", false
	}
	var message string
	if raw, ok := payload["message"]; ok {
		if err := json.Unmarshal(raw, &message); err != nil {
			return "", true
		}
	}
	return message, true
}
