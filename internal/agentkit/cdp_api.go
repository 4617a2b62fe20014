package agentkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"AgentKit-Chat/internal/wallet"
	"AgentKit-Chat/internal/web3"
)

type cdpAPIProvider struct{}

// CDPAPIProvider 提供测试网水龙头。
func CDPAPIProvider() ActionProvider { return cdpAPIProvider{} }

func (cdpAPIProvider) Name() string { return "cdp_api" }

// SupportsNetwork 仅在有水龙头的测试网上启用。
func (cdpAPIProvider) SupportsNetwork(network web3.Network) bool { return network.IsTestnet() }

func (cdpAPIProvider) Actions(w wallet.Provider) []Tool {
	tokens := strings.Join(w.Network().FaucetTokens, ", ")
	return []Tool{
		&Action{
			ActionName: "request_faucet_funds",
			ActionDescription: "This tool will request test tokens from the faucet for the default address in the wallet. " +
				"It takes the wallet and asset ID as input. If no asset ID is provided the faucet defaults to ETH. " +
				"Faucet is only allowed on testnets. Supported assets: " + tokens + ".",
			Schema: json.RawMessage(`{"type":"object","properties":{` +
				`"asset_id":{"type":"string","description":"The optional asset ID to request from faucet"}}}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					AssetID string `json:"asset_id"`
				}
				if err := decodeArgs("request_faucet_funds", raw, &args); err != nil {
					return "", err
				}
				token := strings.ToLower(strings.TrimSpace(args.AssetID))
				if token == "" {
					token = "eth"
				}
				hash, err := w.RequestFaucet(ctx, token)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Received %s from the faucet. Transaction hash: %s", token, hash), nil
			},
		},
	}
}
