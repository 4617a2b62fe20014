package agentkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types sent by the streaming endpoint.
const (
	FrameStatus     = "status"
	FrameToolCall   = "tool_call"
	FrameToolOutput = "tool_output"
	FrameMessage    = "message"
	FrameDone       = "done"
	FrameError      = "error"
)

// Frame is one server frame of the streaming chat protocol.
type Frame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// StreamError is returned when the server ends a turn with an error frame.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "agentkit stream error: " + e.Message }

// Session is a WebSocket connection to the streaming endpoint. Turns on a
// session are processed sequentially, so Send must not be called concurrently.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial opens a streaming session.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	u := c.endpoint("/ws/chat")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return &Session{conn: conn}, nil
}

// Send sends one message and passes every frame of the turn to fn, up to and
// including the terminating done or error frame. An error frame is returned
// as *StreamError; an error from fn aborts reading.
func (s *Session) Send(ctx context.Context, message string, fn func(Frame) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Unblock the read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	if err := s.conn.WriteJSON(map[string]string{"message": message}); err != nil {
		return fmt.Errorf("send message: %w", contextErr(ctx, err))
	}
	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read frame: %w", contextErr(ctx, err))
		}
		if fn != nil {
			if err := fn(frame); err != nil {
				return err
			}
		}
		switch frame.Type {
		case FrameDone:
			return nil
		case FrameError:
			return &StreamError{Message: frame.Content}
		}
	}
}

// Close closes the session.
func (s *Session) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}

// Stream opens a session, runs one turn and closes the session.
func (c *Client) Stream(ctx context.Context, message string, fn func(Frame) error) error {
	session, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Send(ctx, message, fn)
}

func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
