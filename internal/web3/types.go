package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxRequest is an unsigned call the wallet provider should send.
type TxRequest struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Client is the chain access contract used by the wallet provider. The signing
// side lives with the provider; this interface only reads and prepares.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
	CallContract(ctx context.Context, from common.Address, to common.Address, data []byte) ([]byte, error)
	PrepareTransaction(ctx context.Context, from common.Address, req TxRequest) (*types.Transaction, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Close()
}

// FormatUnits renders amount scaled down by decimals without trailing zeros,
// e.g. FormatUnits(1500000000000000000, 18) == "1.5".
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}
	rat := new(big.Rat).SetFrac(amount, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	text := rat.FloatString(decimals)
	for len(text) > 1 && text[len(text)-1] == '0' {
		text = text[:len(text)-1]
	}
	if text[len(text)-1] == '.' {
		text = text[:len(text)-1]
	}
	return text
}

// ParseUnits converts a decimal string like "0.01" into base units. Fractional
// digits beyond decimals are rejected.
func ParseUnits(value string, decimals int) (*big.Int, error) {
	rat, ok := new(big.Rat).SetString(value)
	if !ok || rat.Sign() < 0 {
		return nil, &UnitsError{Value: value, Reason: "不是合法的非负数"}
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	if !scaled.IsInt() {
		return nil, &UnitsError{Value: value, Reason: "小数位超过精度"}
	}
	return new(big.Int).Set(scaled.Num()), nil
}

// UnitsError reports an amount that cannot be converted to base units.
type UnitsError struct {
	Value  string
	Reason string
}

func (e *UnitsError) Error() string {
	return "金额 " + e.Value + " " + e.Reason
}
