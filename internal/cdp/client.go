package cdp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "AgentKit-Chat/internal/errors"
)

const defaultBaseURL = "https://api.cdp.coinbase.com/platform"

// Config describes the credentials and endpoint of the CDP API.
type Config struct {
	APIKeyID     string
	APIKeySecret string
	WalletSecret string
	BaseURL      string
	HTTPClient   *http.Client
}

// Client calls the CDP v2 EVM account endpoints.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	api        *apiSigner
	wallet     *walletSigner
	now        func() time.Time
}

// EVMAccount is a server managed EVM account.
type EVMAccount struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// NewClient validates credentials and builds a client.
func NewClient(cfg Config) (*Client, error) {
	api, err := newAPISigner(cfg.APIKeyID, cfg.APIKeySecret)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "CDP API 凭证无效")
	}

	var wallet *walletSigner
	if strings.TrimSpace(cfg.WalletSecret) != "" {
		wallet, err = newWalletSigner(cfg.WalletSecret)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "CDP wallet secret 无效")
		}
	}

	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		raw = defaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "CDP API 地址无效")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		api:        api,
		wallet:     wallet,
		now:        time.Now,
	}, nil
}

// CreateEVMAccount creates a new account. idempotencyKey may be empty.
func (c *Client) CreateEVMAccount(ctx context.Context, name, idempotencyKey string) (*EVMAccount, error) {
	body := map[string]any{}
	if name != "" {
		body["name"] = name
	}
	var account EVMAccount
	err := c.do(ctx, http.MethodPost, "/v2/evm/accounts", body, requestOptions{
		walletAuth:     true,
		idempotencyKey: idempotencyKey,
	}, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetEVMAccount fetches an existing account by address.
func (c *Client) GetEVMAccount(ctx context.Context, address string) (*EVMAccount, error) {
	var account EVMAccount
	if err := c.do(ctx, http.MethodGet, "/v2/evm/accounts/"+address, nil, requestOptions{}, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// RequestFaucet asks the testnet faucet to send token to address.
func (c *Client) RequestFaucet(ctx context.Context, network, address, token string) (string, error) {
	body := map[string]any{"network": network, "address": address, "token": token}
	var resp struct {
		TransactionHash string `json:"transactionHash"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/evm/faucet", body, requestOptions{}, &resp); err != nil {
		return "", err
	}
	return resp.TransactionHash, nil
}

// SendEVMTransaction signs and broadcasts an RLP encoded EIP-1559 transaction
// from address.
func (c *Client) SendEVMTransaction(ctx context.Context, address, network, rawTx string) (string, error) {
	body := map[string]any{"network": network, "transaction": rawTx}
	var resp struct {
		TransactionHash string `json:"transactionHash"`
	}
	path := "/v2/evm/accounts/" + address + "/send/transaction"
	if err := c.do(ctx, http.MethodPost, path, body, requestOptions{walletAuth: true}, &resp); err != nil {
		return "", err
	}
	return resp.TransactionHash, nil
}

type requestOptions struct {
	walletAuth     bool
	idempotencyKey string
}

func (c *Client) do(ctx context.Context, method, path string, body any, opts requestOptions, out any) error {
	fullPath := strings.TrimRight(c.baseURL.Path, "/") + path
	endpoint := *c.baseURL
	endpoint.Path = fullPath

	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化 CDP 请求失败: %w", err)
		}
		payload = encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("构建 CDP 请求失败: %w", err)
	}
	now := c.now()

	token, err := c.api.sign(method, c.baseURL.Host, fullPath, now)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeConfiguration, err, "签发 CDP API token 失败")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.walletAuth && c.wallet != nil {
		walletToken, err := c.wallet.sign(method, c.baseURL.Host, fullPath, payload, now)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeConfiguration, err, "签发 wallet auth token 失败")
		}
		req.Header.Set("X-Wallet-Auth", walletToken)
	}
	if opts.idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", opts.idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "请求 CDP 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return xerrors.Newf(xerrors.CodeUpstreamFailure, "CDP 返回错误状态 %d: %s", resp.StatusCode, apiErrorMessage(excerpt))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析 CDP 响应失败")
	}
	return nil
}

// apiErrorMessage extracts errorMessage from the CDP error envelope, falling
// back to the raw body.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		ErrorType    string `json:"errorType"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.ErrorMessage != "" {
		if envelope.ErrorType != "" {
			return envelope.ErrorType + ": " + envelope.ErrorMessage
		}
		return envelope.ErrorMessage
	}
	return strings.TrimSpace(string(body))
}
