package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"AgentKit-Chat/internal/agent"
	"AgentKit-Chat/internal/observability/metrics"
	"AgentKit-Chat/internal/transcript"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame 类型。
const (
	FrameStatus     = "status"
	FrameToolCall   = "tool_call"
	FrameToolOutput = "tool_output"
	FrameMessage    = "message"
	FrameDone       = "done"
	FrameError      = "error"
)

// MaxToolOutput 是 tool_output 帧中输出的最大字符数。
const MaxToolOutput = 5000

// Frame 是服务端发送的 WebSocket 消息。
type Frame struct {
	Type      string
	Content   string
	Name      string
	Arguments string
	Output    string
}

// MarshalJSON 按帧类型输出字段。
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameToolCall:
		return json.Marshal(struct {
			Type      string `json:"type"`
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		}{f.Type, f.Name, f.Arguments})
	case FrameToolOutput:
		return json.Marshal(struct {
			Type   string `json:"type"`
			Name   string `json:"name"`
			Output string `json:"output"`
		}{f.Type, f.Name, f.Output})
	case FrameDone:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{f.Type})
	default:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}{f.Type, f.Content})
	}
}

// relay 是单个连接上的会话，轮次严格串行。
type relay struct {
	server    *Server
	conn      *websocket.Conn
	sessionID string
	log       *slog.Logger
	// closed 表示发送失败，之后不再写帧。
	closed bool
}

func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket 升级失败", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxChatBody)

	sessionID := uuid.NewString()
	session := &relay{server: s, conn: conn, sessionID: sessionID, log: s.log.With("session_id", sessionID)}
	s.metrics.WebSocketOpened()
	defer s.metrics.WebSocketClosed()
	session.log.Info("WebSocket 客户端已连接", "remote_addr", conn.RemoteAddr().String())

	// 客户端断开后不取消进行中的运行。
	session.serve(context.WithoutCancel(r.Context()))
	session.log.Info("WebSocket 客户端已断开")
}

func (c *relay) serve(ctx context.Context) {
	for !c.closed {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		c.handleMessage(ctx, data)
	}
}

func (c *relay) handleMessage(ctx context.Context, data []byte) {
	message, ok := decodeMessage(data)
	if !ok {
		c.send(Frame{Type: FrameError, Content: "Invalid JSON"})
		return
	}
	message = strings.TrimSpace(message)
	if message == "" {
		c.send(Frame{Type: FrameError, Content: "Empty message"})
		return
	}

	handle, err := c.server.agents.Handle(ctx)
	if err != nil {
		c.log.Error("获取智能体失败", "error", err)
		c.send(Frame{Type: FrameError, Content: err.Error()})
		return
	}
	c.send(Frame{Type: FrameStatus, Content: "thinking"})

	started := time.Now()
	turn := transcript.Turn{Channel: transcript.ChannelWebSocket, SessionID: c.sessionID, Message: message}
	var reply strings.Builder
	current := ""

	stream := c.server.runner.RunStreamed(ctx, handle.Agent, message)
	// 发送失败后仍然读完事件，让运行在服务端完成。
	for event := range stream.Events() {
		switch ev := event.(type) {
		case agent.ToolCalledEvent:
			current = ev.Item.Name
			turn.ToolEvents = append(turn.ToolEvents, transcript.ToolEvent{Type: transcript.ToolEventCall, Name: ev.Item.Name, Arguments: ev.Item.Arguments})
			c.send(Frame{Type: FrameToolCall, Name: ev.Item.Name, Arguments: prettyArguments(ev.Item.Arguments)})
		case agent.ToolOutputEvent:
			name := current
			if name == "" {
				name = "unknown"
			}
			output := ev.Item.Text()
			c.server.metrics.ObserveToolCall(name, toolOutcome(output))
			turn.ToolEvents = append(turn.ToolEvents, transcript.ToolEvent{Type: transcript.ToolEventOutput, Output: output})
			c.send(Frame{Type: FrameToolOutput, Name: name, Output: truncate(output, MaxToolOutput)})
			current = ""
		case agent.MessageOutputEvent:
			if text := ev.Item.Text(); text != "" {
				reply.WriteString(text)
				c.send(Frame{Type: FrameMessage, Content: text})
			}
		}
	}

	// 先落盘再发送结束帧，客户端收到 done 时记录已可查询。
	final := Frame{Type: FrameDone}
	outcome := metrics.OutcomeSuccess
	if err := stream.Err(); err != nil {
		outcome = metrics.OutcomeError
		turn.Error = err.Error()
		final = Frame{Type: FrameError, Content: err.Error()}
		c.log.Error("流式对话失败", "error", err)
	} else if result := stream.Result(); result != nil {
		turn.Response = result.FinalOutput
	} else {
		turn.Response = reply.String()
	}

	duration := time.Since(started)
	turn.DurationMS = duration.Milliseconds()
	c.server.metrics.ObserveAgentRun(string(transcript.ChannelWebSocket), outcome, duration)
	c.server.recorder.Record(ctx, turn)
	c.send(final)
}

// send 写出一帧；连接失效后静默丢弃。
func (c *relay) send(frame Frame) {
	if c.closed {
		return
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		c.log.Info("发送 WebSocket 消息失败，停止输出", "error", err)
		c.closed = true
	}
}

// prettyArguments 将 JSON 参数按两个空格缩进，无法解析时原样返回。
func prettyArguments(arguments string) string {
	trimmed := strings.TrimSpace(arguments)
	if trimmed == "" {
		return arguments
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return arguments
	}
	return buf.String()
}

// truncate 按字符截断。
func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

func toolOutcome(output string) string {
	if strings.HasPrefix(output, agent.ToolErrorPrefix) {
		return metrics.OutcomeError
	}
	return metrics.OutcomeSuccess
}
