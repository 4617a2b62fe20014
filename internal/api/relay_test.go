package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"AgentKit-Chat/internal/llm"
	"AgentKit-Chat/internal/transcript"

	"github.com/gorilla/websocket"
)

type wireFrame struct {
	Type      string  `json:"type"`
	Content   *string `json:"content"`
	Name      *string `json:"name"`
	Arguments *string `json:"arguments"`
	Output    *string `json:"output"`
}

func dial(t *testing.T, baseURL, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame wireFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// readTurn 读取直到 done 或 error 帧。
func readTurn(t *testing.T, conn *websocket.Conn) []wireFrame {
	t.Helper()
	var frames []wireFrame
	for {
		frame := readFrame(t, conn)
		frames = append(frames, frame)
		if frame.Type == FrameDone || frame.Type == FrameError {
			return frames
		}
	}
}

func types(frames []wireFrame) string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type)
	}
	return strings.Join(out, ",")
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestRelayRejectsBadInputAndStaysOpen(t *testing.T) {
	ts, _ := newTestServer(t, connectedAgents(), &scriptedLLM{responses: []*llm.Response{{Content: "hello"}}})
	conn := dial(t, ts.URL, "/ws/chat")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Type != FrameError || deref(frame.Content) != "Invalid JSON" {
		t.Fatalf("unexpected frame %+v", frame)
	}

	if err := conn.WriteJSON(map[string]string{"message": "   "}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame = readFrame(t, conn)
	if frame.Type != FrameError || deref(frame.Content) != "Empty message" {
		t.Fatalf("unexpected frame %+v", frame)
	}

	if err := conn.WriteJSON(map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frames := readTurn(t, conn)
	if got := types(frames); got != "status,message,done" {
		t.Fatalf("unexpected frame sequence %s", got)
	}
	if deref(frames[0].Content) != "thinking" || deref(frames[1].Content) != "hello" {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if frames[2].Content != nil {
		t.Fatalf("done frame must only carry type")
	}
}

func TestRelayClosesOnOversizedFrame(t *testing.T) {
	agents := connectedAgents()
	ts, _ := newTestServer(t, agents, &scriptedLLM{responses: []*llm.Response{{Content: "hello"}}})
	conn := dial(t, ts.URL, "/ws/chat")

	payload := `{"message":"` + strings.Repeat("a", maxChatBody) + `"}`
	_ = conn.WriteMessage(websocket.TextMessage, []byte(payload))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected connection to be closed")
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseMessageTooBig {
		t.Fatalf("unexpected close code %d", closeErr.Code)
	}
	if agents.calls.Load() != 0 {
		t.Fatalf("agent must not run for oversized frames")
	}
}

func TestRelayStreamsToolEvents(t *testing.T) {
	long := strings.Repeat("é", MaxToolOutput+10)
	model := &scriptedLLM{responses: []*llm.Response{
		toolCall("c1", "echo", `{"to":"0xabc","value":"1"}`),
		toolCall("c2", "big", `not-json`),
		{Content: "finished"},
	}}
	agents := connectedAgents(
		stubTool{name: "echo", output: echo},
		stubTool{name: "big", output: func(string) string { return long }},
	)
	recorder := transcript.NewRecorder(newMemoryRepo(t), nil)
	ts, collector := newTestServer(t, agents, model, WithRecorder(recorder))
	conn := dial(t, ts.URL, "/api/ws/chat")

	if err := conn.WriteJSON(map[string]string{"message": " send it "}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frames := readTurn(t, conn)
	if got := types(frames); got != "status,tool_call,tool_output,tool_call,tool_output,message,done" {
		t.Fatalf("unexpected frame sequence %s", got)
	}

	call := frames[1]
	if deref(call.Name) != "echo" || deref(call.Arguments) != "{\n  \"to\": \"0xabc\",\n  \"value\": \"1\"\n}" {
		t.Fatalf("unexpected tool_call frame %+v", call)
	}
	if frames[2].Content != nil || deref(frames[2].Name) != "echo" || deref(frames[2].Output) != `echo:{"to":"0xabc","value":"1"}` {
		t.Fatalf("unexpected tool_output frame %+v", frames[2])
	}
	if deref(frames[3].Arguments) != "not-json" {
		t.Fatalf("raw arguments must pass through, got %q", deref(frames[3].Arguments))
	}
	if out := []rune(deref(frames[4].Output)); len(out) != MaxToolOutput {
		t.Fatalf("expected output truncated to %d characters, got %d", MaxToolOutput, len(out))
	}
	if deref(frames[5].Content) != "finished" {
		t.Fatalf("unexpected message frame %+v", frames[5])
	}

	turns, err := recorder.Latest(t.Context(), 1)
	if err != nil || len(turns) != 1 {
		t.Fatalf("expected recorded turn, got %v %v", turns, err)
	}
	if turns[0].Channel != transcript.ChannelWebSocket || turns[0].Message != "send it" || len(turns[0].ToolEvents) != 4 {
		t.Fatalf("unexpected turn %+v", turns[0])
	}
	if !strings.Contains(collector.Render(), "agentkit_websocket_connections 1") {
		t.Fatalf("expected one open connection")
	}
}

func TestRelayProcessesTurnsSequentially(t *testing.T) {
	model := &scriptedLLM{responses: []*llm.Response{{Content: "first"}, {Content: "second"}}}
	ts, _ := newTestServer(t, connectedAgents(), model)
	conn := dial(t, ts.URL, "/ws/chat")

	for _, msg := range []string{"hi", "bye"} {
		if err := conn.WriteJSON(map[string]string{"message": msg}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	first := readTurn(t, conn)
	second := readTurn(t, conn)
	if types(first) != "status,message,done" || deref(first[1].Content) != "first" {
		t.Fatalf("unexpected first turn %+v", first)
	}
	if types(second) != "status,message,done" || deref(second[1].Content) != "second" {
		t.Fatalf("unexpected second turn %+v", second)
	}
}

func TestRelayReportsUnknownTools(t *testing.T) {
	model := &scriptedLLM{responses: []*llm.Response{toolCall("c1", "missing", `{}`), {Content: "sorry"}}}
	ts, _ := newTestServer(t, connectedAgents(stubTool{name: "echo", output: echo}), model)
	conn := dial(t, ts.URL, "/ws/chat")

	if err := conn.WriteJSON(map[string]string{"message": "call it"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frames := readTurn(t, conn)
	if got := types(frames); got != "status,tool_call,tool_output,message,done" {
		t.Fatalf("unexpected frame sequence %s", got)
	}
	if got := deref(frames[2].Output); got != "Tool missing not found in agent CDP Agent" {
		t.Fatalf("unexpected tool output %q", got)
	}
}

func TestRelayReportsRunErrorsWithoutClosing(t *testing.T) {
	ts, collector := newTestServer(t, connectedAgents(), &scriptedLLM{err: errors.New("rate limited")})
	conn := dial(t, ts.URL, "/ws/chat")

	if err := conn.WriteJSON(map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frames := readTurn(t, conn)
	if got := types(frames); got != "status,error" {
		t.Fatalf("unexpected frame sequence %s", got)
	}
	if !strings.Contains(deref(frames[1].Content), "rate limited") {
		t.Fatalf("unexpected error frame %+v", frames[1])
	}

	// 连接仍然可用。
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if frame := readFrame(t, conn); deref(frame.Content) != "Invalid JSON" {
		t.Fatalf("unexpected frame %+v", frame)
	}
	if !strings.Contains(collector.Render(), `agentkit_agent_runs_total{channel="ws",outcome="error"} 1`) {
		t.Fatalf("missing error run metric")
	}
}

func TestRelaySetupFailureSendsError(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAgents{err: errors.New("not configured")}, &scriptedLLM{})
	conn := dial(t, ts.URL, "/ws/chat")

	if err := conn.WriteJSON(map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Type != FrameError || deref(frame.Content) != "not configured" {
		t.Fatalf("unexpected frame %+v", frame)
	}
}

func TestRelayRejectsForeignOrigin(t *testing.T) {
	ts, _ := newTestServer(t, connectedAgents(), &scriptedLLM{}, WithCORS([]string{"http://localhost:5173"}, ""))
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}

	header.Set("Origin", "http://localhost:5173")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}

func TestPrettyArgumentsAndTruncate(t *testing.T) {
	if got := prettyArguments(`{}`); got != "{}" {
		t.Fatalf("unexpected %q", got)
	}
	if got := prettyArguments(""); got != "" {
		t.Fatalf("unexpected %q", got)
	}
	cases := []struct {
		in   string
		want int
	}{
		{strings.Repeat("a", MaxToolOutput-1), MaxToolOutput - 1},
		{strings.Repeat("a", MaxToolOutput), MaxToolOutput},
		{strings.Repeat("a", MaxToolOutput+1), MaxToolOutput},
		{strings.Repeat("é", MaxToolOutput+1), MaxToolOutput},
	}
	for _, tc := range cases {
		got := truncate(tc.in, MaxToolOutput)
		if n := utf8.RuneCountInString(got); n != tc.want || !strings.HasPrefix(tc.in, got) {
			t.Fatalf("truncate %d runes: got %d", utf8.RuneCountInString(tc.in), n)
		}
	}
}
