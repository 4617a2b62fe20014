// Package agentkit is a Go client for the AgentKit chat API.
package agentkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Agent runs can take a while, so it is longer than a
// typical REST timeout.
const DefaultHTTPTimeout = 2 * time.Minute

// Client wraps the HTTP and WebSocket interactions with the chat API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// WalletInfo describes the wallet backing the agent. Address and NetworkID
// are nil until the agent has been initialized.
type WalletInfo struct {
	Address   *string `json:"address"`
	NetworkID *string `json:"network_id"`
	Status    string  `json:"status"`
}

// ToolInfo describes one tool bound to the agent.
type ToolInfo struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// ToolEvent is a tool call or a tool output reported by the chat endpoint.
type ToolEvent struct {
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// ChatResponse is the result of a synchronous chat.
type ChatResponse struct {
	Response  string      `json:"response"`
	ToolCalls []ToolEvent `json:"tool_calls"`
}

// Turn is a recorded conversation turn.
type Turn struct {
	ID         string      `json:"id"`
	Channel    string      `json:"channel"`
	SessionID  string      `json:"session_id,omitempty"`
	Message    string      `json:"message"`
	Response   string      `json:"response"`
	ToolEvents []ToolEvent `json:"tool_calls,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
	CreatedAt  int64       `json:"created_at"`
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("agentkit api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the API rooted at rawURL, e.g.
// "http://localhost:8000/api". When httpClient is nil, a default client is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Health calls the health endpoint and returns the reported status.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Wallet returns the wallet state.
func (c *Client) Wallet(ctx context.Context) (WalletInfo, error) {
	var info WalletInfo
	err := c.get(ctx, "/wallet", &info)
	return info, err
}

// Tools lists the tools bound to the agent.
func (c *Client) Tools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	err := c.get(ctx, "/tools", &tools)
	return tools, err
}

// Chat runs the agent synchronously.
func (c *Client) Chat(ctx context.Context, message string) (ChatResponse, error) {
	var resp ChatResponse
	err := c.post(ctx, "/chat", map[string]string{"message": message}, &resp)
	return resp, err
}

// History returns up to limit recent turns, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]Turn, error) {
	endpoint := "/history"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var turns []Turn
	err := c.get(ctx, endpoint, &turns)
	return turns, err
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) endpoint(endpoint string) *url.URL {
	rel, query, _ := strings.Cut(endpoint, "?")
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, rel)
	u.RawQuery = query
	return &u
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(endpoint).String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		_ = json.Unmarshal(data, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
