package agentkit

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/wallet"
	"AgentKit-Chat/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

type wethProvider struct{}

// WETHProvider 提供把 ETH 包装为 WETH 的能力。
func WETHProvider() ActionProvider { return wethProvider{} }

func (wethProvider) Name() string { return "weth" }

// SupportsNetwork 仅在已知 WETH 合约的网络上启用。
func (wethProvider) SupportsNetwork(network web3.Network) bool { return network.HasWETH() }

func (wethProvider) Actions(w wallet.Provider) []Tool {
	return []Tool{
		&Action{
			ActionName: "wrap_eth",
			ActionDescription: "This tool can only be used to wrap ETH to WETH.\n\n" +
				"Inputs:\n- Amount of ETH to wrap in wei.\n\n" +
				"Important notes:\n- The amount is a string and cannot have any decimal points, " +
				"since the unit of measurement is wei.\n- Make sure to use the exact amount provided, " +
				"and if there's any doubt, check by getting more information before continuing with the action.\n" +
				"- 1 wei = 0.000000000000000001 WETH\n- Minimum purchase amount is 100000000000 wei (0.0000001 WETH)",
			Schema: json.RawMessage(`{"type":"object","properties":{` +
				`"amount_to_wrap":{"type":"string","description":"Amount of ETH to wrap in wei"}},` +
				`"required":["amount_to_wrap"]}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					AmountToWrap string `json:"amount_to_wrap"`
				}
				if err := decodeArgs("wrap_eth", raw, &args); err != nil {
					return "", err
				}
				return wrapETH(ctx, w, args.AmountToWrap)
			},
		},
	}
}

var minWrapAmount = big.NewInt(100_000_000_000)

func wrapETH(ctx context.Context, w wallet.Provider, amount string) (string, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok || value.Sign() <= 0 {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "包装金额 %q 必须是正整数 wei", amount)
	}
	if value.Cmp(minWrapAmount) < 0 {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "包装金额不能小于 %s wei", minWrapAmount.String())
	}

	data, err := wethABI.Pack("deposit")
	if err != nil {
		return "", err
	}
	contract := common.HexToAddress(w.Network().WETHAddress)
	hash, err := w.SendTransaction(ctx, web3.TxRequest{To: contract, Value: value, Data: data})
	if err != nil {
		return "", err
	}
	if _, err := w.WaitForReceipt(ctx, hash); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrapped ETH with transaction hash: %s", hash.Hex()), nil
}
