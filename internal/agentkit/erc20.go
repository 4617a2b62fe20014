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

type erc20Provider struct{}

// ERC20Provider 提供 ERC20 余额查询与转账。
func ERC20Provider() ActionProvider { return erc20Provider{} }

func (erc20Provider) Name() string                     { return "erc20" }
func (erc20Provider) SupportsNetwork(web3.Network) bool { return true }

func (erc20Provider) Actions(w wallet.Provider) []Tool {
	return []Tool{
		&Action{
			ActionName: "get_balance",
			ActionDescription: "This tool will get the balance of an ERC20 asset in the wallet. " +
				"It takes the contract address as input.",
			Schema: json.RawMessage(`{"type":"object","properties":{` +
				`"contract_address":{"type":"string","description":"The contract address of the token to get the balance for"}},` +
				`"required":["contract_address"]}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					ContractAddress string `json:"contract_address"`
				}
				if err := decodeArgs("get_balance", raw, &args); err != nil {
					return "", err
				}
				return erc20Balance(ctx, w, args.ContractAddress)
			},
		},
		&Action{
			ActionName: "transfer",
			ActionDescription: "This tool will transfer an ERC20 token from the wallet to another onchain address.\n\n" +
				"It takes the following inputs:\n- amount: The amount to transfer in whole units e.g. 10.5 USDC\n" +
				"- contract_address: The contract address of the token to transfer\n" +
				"- destination: The destination to transfer the funds\n\n" +
				"Important notes:\n- Ensure sufficient balance of the input asset before transferring",
			Schema: json.RawMessage(`{"type":"object","properties":{` +
				`"amount":{"type":"string","description":"The amount of the asset to transfer in whole units"},` +
				`"contract_address":{"type":"string","description":"The contract address of the token to transfer"},` +
				`"destination":{"type":"string","description":"The destination to transfer the funds"}},` +
				`"required":["amount","contract_address","destination"]}`),
			Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					Amount          string `json:"amount"`
					ContractAddress string `json:"contract_address"`
					Destination     string `json:"destination"`
				}
				if err := decodeArgs("transfer", raw, &args); err != nil {
					return "", err
				}
				return erc20Transfer(ctx, w, args.Amount, args.ContractAddress, args.Destination)
			},
		},
	}
}

type tokenInfo struct {
	address  common.Address
	symbol   string
	decimals int
}

func loadToken(ctx context.Context, w wallet.Provider, contract string) (*tokenInfo, error) {
	if !common.IsHexAddress(contract) {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "合约地址 %q 不合法", contract)
	}
	address := common.HexToAddress(contract)

	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return nil, err
	}
	out, err := w.ReadContract(ctx, address, data)
	if err != nil {
		return nil, err
	}
	decimals, err := unpackBigInt(erc20ABI, "decimals", out)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeToolFailure, err, "读取代币精度失败")
	}

	info := &tokenInfo{address: address, decimals: int(decimals.Int64())}
	if data, err = erc20ABI.Pack("symbol"); err == nil {
		if out, err := w.ReadContract(ctx, address, data); err == nil {
			if symbol, err := unpackString(erc20ABI, "symbol", out); err == nil {
				info.symbol = symbol
			}
		}
	}
	if info.symbol == "" {
		info.symbol = address.Hex()
	}
	return info, nil
}

func erc20Balance(ctx context.Context, w wallet.Provider, contract string) (string, error) {
	token, err := loadToken(ctx, w, contract)
	if err != nil {
		return "", err
	}
	data, err := erc20ABI.Pack("balanceOf", common.HexToAddress(w.Address()))
	if err != nil {
		return "", err
	}
	out, err := w.ReadContract(ctx, token.address, data)
	if err != nil {
		return "", err
	}
	balance, err := unpackBigInt(erc20ABI, "balanceOf", out)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeToolFailure, err, "读取代币余额失败")
	}
	return fmt.Sprintf("Balance of %s (%s) at address %s is %s",
		token.symbol, token.address.Hex(), w.Address(), web3.FormatUnits(balance, token.decimals)), nil
}

func erc20Transfer(ctx context.Context, w wallet.Provider, amount, contract, destination string) (string, error) {
	if !common.IsHexAddress(destination) {
		return "", xerrors.Newf(xerrors.CodeInvalidArgument, "目标地址 %q 不合法", destination)
	}
	token, err := loadToken(ctx, w, contract)
	if err != nil {
		return "", err
	}
	value, err := web3.ParseUnits(strings.TrimSpace(amount), token.decimals)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "转账金额无效")
	}
	if value.Sign() <= 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "转账金额必须大于 0")
	}

	data, err := erc20ABI.Pack("transfer", common.HexToAddress(destination), value)
	if err != nil {
		return "", err
	}
	hash, err := w.SendTransaction(ctx, web3.TxRequest{To: token.address, Data: data})
	if err != nil {
		return "", err
	}
	if _, err := w.WaitForReceipt(ctx, hash); err != nil {
		return "", err
	}
	return fmt.Sprintf("Transferred %s of %s to %s.\nTransaction hash for the transfer: %s",
		amount, token.symbol, destination, hash.Hex()), nil
}
