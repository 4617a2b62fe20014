package agentkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/wallet"
	"AgentKit-Chat/internal/web3"
)

// DefaultHermesURL 是 Pyth Hermes 价格服务的公共地址。
const DefaultHermesURL = "https://hermes.pyth.network"

type pythProvider struct {
	baseURL    string
	httpClient *http.Client
}

// PythProvider 通过 Pyth Hermes 查询价格源与最新价格。baseURL 为空时使用公共地址。
func PythProvider(baseURL string, httpClient *http.Client) ActionProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultHermesURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &pythProvider{baseURL: baseURL, httpClient: httpClient}
}

func (p *pythProvider) Name() string                     { return "pyth" }
func (p *pythProvider) SupportsNetwork(web3.Network) bool { return true }

func (p *pythProvider) Actions(wallet.Provider) []Tool {
	return []Tool{
		&Action{
			ActionName: "fetch_price_feed",
			ActionDescription: "Fetch the price feed ID for a given token symbol from Pyth. " +
				"Inputs: token_symbol, the token symbol to fetch the price feed ID for, e.g. BTC, ETH.",
			Schema: json.RawMessage(`{"type":"object","properties":{` +
				`"token_symbol":{"type":"string","description":"The token symbol to fetch the price feed ID for"}},` +
				`"required":["token_symbol"]}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					TokenSymbol string `json:"token_symbol"`
				}
				if err := decodeArgs("fetch_price_feed", raw, &args); err != nil {
					return "", err
				}
				return p.fetchPriceFeed(ctx, args.TokenSymbol)
			},
		},
		&Action{
			ActionName: "fetch_price",
			ActionDescription: "Fetch the price of a given price feed from Pyth. " +
				"Inputs: price_feed_id, the price feed ID to fetch the price for. " +
				"A price feed ID can be obtained with fetch_price_feed.",
			Schema: json.RawMessage(`{"type":"object","properties":{` +
				`"price_feed_id":{"type":"string","description":"The price feed ID to fetch the price for"}},` +
				`"required":["price_feed_id"]}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					PriceFeedID string `json:"price_feed_id"`
				}
				if err := decodeArgs("fetch_price", raw, &args); err != nil {
					return "", err
				}
				return p.fetchPrice(ctx, args.PriceFeedID)
			},
		},
	}
}

type priceFeed struct {
	ID         string `json:"id"`
	Attributes struct {
		Base          string `json:"base"`
		QuoteCurrency string `json:"quote_currency"`
		AssetType     string `json:"asset_type"`
	} `json:"attributes"`
}

func (p *pythProvider) fetchPriceFeed(ctx context.Context, symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "token_symbol 不能为空")
	}

	query := url.Values{}
	query.Set("query", symbol)
	query.Set("asset_type", "crypto")

	var feeds []priceFeed
	if err := p.get(ctx, "/v2/price_feeds?"+query.Encode(), &feeds); err != nil {
		return "", err
	}
	for _, feed := range feeds {
		if strings.EqualFold(feed.Attributes.Base, symbol) && strings.EqualFold(feed.Attributes.QuoteCurrency, "USD") {
			return feed.ID, nil
		}
	}
	return "", xerrors.Newf(xerrors.CodeToolFailure, "No price feed found for %s", symbol)
}

func (p *pythProvider) fetchPrice(ctx context.Context, feedID string) (string, error) {
	feedID = strings.TrimSpace(feedID)
	if feedID == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "price_feed_id 不能为空")
	}

	query := url.Values{}
	query.Add("ids[]", feedID)

	var resp struct {
		Parsed []struct {
			ID    string `json:"id"`
			Price struct {
				Price string `json:"price"`
				Expo  int    `json:"expo"`
			} `json:"price"`
		} `json:"parsed"`
	}
	if err := p.get(ctx, "/v2/updates/price/latest?"+query.Encode(), &resp); err != nil {
		return "", err
	}
	if len(resp.Parsed) == 0 {
		return "", xerrors.Newf(xerrors.CodeToolFailure, "No price data found for %s", feedID)
	}

	entry := resp.Parsed[0].Price
	raw, ok := new(big.Int).SetString(entry.Price, 10)
	if !ok {
		return "", xerrors.Newf(xerrors.CodeToolFailure, "价格 %q 无法解析", entry.Price)
	}
	return scalePrice(raw, entry.Expo), nil
}

// scalePrice 返回 raw * 10^expo 的十进制表示。
func scalePrice(raw *big.Int, expo int) string {
	if expo >= 0 {
		return new(big.Int).Mul(raw, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(expo)), nil)).String()
	}
	return web3.FormatUnits(raw, -expo)
}

func (p *pythProvider) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("构建 Pyth 请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "请求 Pyth 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return xerrors.Newf(xerrors.CodeUpstreamFailure, "Pyth 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析 Pyth 响应失败")
	}
	return nil
}
