package agentkit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL+"/api", srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("ftp://example.com", nil); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestWalletAndChat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/wallet", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":null,"network_id":null,"status":"not_initialized"}`))
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["message"] != "hi" {
			t.Errorf("unexpected body %v (%v)", body, err)
		}
		_, _ = w.Write([]byte(`{"response":"hello","tool_calls":[{"type":"tool_call","name":"get_wallet_details","arguments":"{}"},{"type":"tool_output","output":"ok"}]}`))
	})
	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[{"id":"t1","channel":"ws","message":"hi","response":"hello","duration_ms":3,"created_at":1}]`))
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	info, err := client.Wallet(ctx)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if info.Status != "not_initialized" || info.Address != nil {
		t.Fatalf("unexpected wallet %+v", info)
	}

	resp, err := client.Chat(ctx, "hi")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Response != "hello" || len(resp.ToolCalls) != 2 || resp.ToolCalls[0].Name != "get_wallet_details" {
		t.Fatalf("unexpected chat response %+v", resp)
	}

	turns, err := client.History(ctx, 2)
	if err != nil || len(turns) != 1 || turns[0].Channel != "ws" {
		t.Fatalf("unexpected history %+v (%v)", turns, err)
	}
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"请求体解析失败"}`))
	}))

	_, err := client.Chat(context.Background(), "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "请求体解析失败" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestStreamReadsUntilDone(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws/chat", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var msg map[string]string
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["message"] == "fail" {
				_ = conn.WriteJSON(Frame{Type: FrameStatus, Content: "thinking"})
				_ = conn.WriteJSON(Frame{Type: FrameError, Content: "boom"})
				continue
			}
			_ = conn.WriteJSON(Frame{Type: FrameStatus, Content: "thinking"})
			_ = conn.WriteJSON(Frame{Type: FrameToolCall, Name: "get_wallet_details", Arguments: "{}"})
			_ = conn.WriteJSON(Frame{Type: FrameToolOutput, Name: "get_wallet_details", Output: "ok"})
			_ = conn.WriteJSON(Frame{Type: FrameMessage, Content: "echo " + msg["message"]})
			_ = conn.WriteJSON(Frame{Type: FrameDone})
		}
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	var frames []Frame
	err := client.Stream(ctx, "hi", func(f Frame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(frames) != 5 || frames[3].Content != "echo hi" || frames[4].Type != FrameDone {
		t.Fatalf("unexpected frames %+v", frames)
	}

	session, err := client.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer session.Close()

	var streamErr *StreamError
	if err := session.Send(ctx, "fail", nil); !errors.As(err, &streamErr) || streamErr.Message != "boom" {
		t.Fatalf("expected StreamError, got %v", err)
	}
	// 错误之后会话仍可继续使用。
	var last Frame
	if err := session.Send(ctx, "again", func(f Frame) error { last = f; return nil }); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if last.Type != FrameDone {
		t.Fatalf("unexpected last frame %+v", last)
	}
}
