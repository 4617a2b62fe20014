package agentkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/wallet"
	"AgentKit-Chat/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

type walletProvider struct{}

// WalletProvider 提供钱包详情与原生代币转账。
func WalletProvider() ActionProvider { return walletProvider{} }

func (walletProvider) Name() string                     { return "wallet" }
func (walletProvider) SupportsNetwork(web3.Network) bool { return true }

func (walletProvider) Actions(w wallet.Provider) []Tool {
	return []Tool{
		&Action{
			ActionName: "get_wallet_details",
			ActionDescription: "This tool will return the details of the connected wallet including:\n" +
				"- Wallet address\n- Network information (protocol family, network ID, chain ID)\n" +
				"- Native token balance\n- Wallet provider name",
			Handler: func(ctx context.Context, _ json.RawMessage) (string, error) {
				return walletDetails(ctx, w)
			},
		},
		&Action{
			ActionName: "native_transfer",
			ActionDescription: "This tool will transfer native tokens from the wallet to another onchain address.\n\n" +
				"It takes the following inputs:\n- to: The destination address to receive the funds\n" +
				"- value: The amount to transfer in whole units e.g. 1 ETH or 0.00001 ETH\n\n" +
				"Important notes:\n- Ensure sufficient balance of the input asset before transferring",
			Schema: json.RawMessage(`{"type":"object","properties":{` +
				`"to":{"type":"string","description":"The destination address to receive the funds"},` +
				`"value":{"type":"string","description":"The amount to transfer in whole units e.g. 1 ETH or 0.00001 ETH"}},` +
				`"required":["to","value"]}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					To    string `json:"to"`
					Value string `json:"value"`
				}
				if err := decodeArgs("native_transfer", raw, &args); err != nil {
					return "", err
				}
				return nativeTransfer(ctx, w, args.To, args.Value)
			},
		},
	}
}

func walletDetails(ctx context.Context, w wallet.Provider) (string, error) {
	chainID, err := w.ChainID(ctx)
	if err != nil {
		return "", err
	}
	balance, err := w.NativeBalance(ctx)
	if err != nil {
		return "", err
	}
	network := w.Network()
	symbol := network.NativeSymbol
	if symbol == "" {
		symbol = "ETH"
	}

	var b strings.Builder
	b.WriteString("Wallet Details:\n")
	fmt.Fprintf(&b, "- Provider: %s\n", w.Name())
	fmt.Fprintf(&b, "- Address: %s\n", w.Address())
	b.WriteString("- Network:\n")
	b.WriteString("  * Protocol Family: evm\n")
	fmt.Fprintf(&b, "  * Network ID: %s\n", w.NetworkID())
	fmt.Fprintf(&b, "  * Chain ID: %s\n", chainID.String())
	fmt.Fprintf(&b, "- Native Balance: %s WEI (%s %s)", balance.String(), web3.FormatUnits(balance, 18), symbol)
	return b.String(), nil
}

func nativeTransfer(ctx context.Context, w wallet.Provider, to, value string) (string, error) {
	if !common.IsHexAddress(to) {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "目标地址 %q 不合法", to)
	}
	amount, err := web3.ParseUnits(strings.TrimSpace(value), 18)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "转账金额无效")
	}
	if amount.Sign() <= 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "转账金额必须大于 0")
	}

	hash, err := w.SendTransaction(ctx, web3.TxRequest{To: common.HexToAddress(to), Value: amount})
	if err != nil {
		return "", err
	}
	if _, err := w.WaitForReceipt(ctx, hash); err != nil {
		return "", err
	}
	return fmt.Sprintf("Transferred %s ETH to %s\nTransaction hash for the transfer: %s", value, to, hash.Hex()), nil
}
