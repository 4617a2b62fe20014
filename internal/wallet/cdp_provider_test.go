package wallet

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"AgentKit-Chat/internal/cdp"
	xerrors "AgentKit-Chat/internal/errors"
	"AgentKit-Chat/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const testAddress = "0x2222222222222222222222222222222222222222"

type fakeAccountAPI struct {
	created     int
	gotIdemKey  string
	fetched     []string
	sentRaw     string
	sentNetwork string
}

func (f *fakeAccountAPI) CreateEVMAccount(_ context.Context, _ string, key string) (*cdp.EVMAccount, error) {
	f.created++
	f.gotIdemKey = key
	return &cdp.EVMAccount{Address: testAddress}, nil
}

func (f *fakeAccountAPI) GetEVMAccount(_ context.Context, address string) (*cdp.EVMAccount, error) {
	f.fetched = append(f.fetched, address)
	return &cdp.EVMAccount{Address: address}, nil
}

func (f *fakeAccountAPI) RequestFaucet(_ context.Context, network, address, token string) (string, error) {
	return "0xfeed", nil
}

func (f *fakeAccountAPI) SendEVMTransaction(_ context.Context, address, network, rawTx string) (string, error) {
	f.sentRaw = rawTx
	f.sentNetwork = network
	return "0x" + strings.Repeat("ab", 32), nil
}

type fakeChain struct{}

func (fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(84532), nil }
func (fakeChain) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(42), nil
}
func (fakeChain) CallContract(context.Context, common.Address, common.Address, []byte) ([]byte, error) {
	return []byte{1}, nil
}
func (fakeChain) PrepareTransaction(_ context.Context, _ common.Address, req web3.TxRequest) (*types.Transaction, error) {
	to := req.To
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(84532),
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     req.Value,
	}), nil
}
func (fakeChain) WaitForReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}
func (fakeChain) Close() {}

func TestNewCDPProviderUsesExistingAddress(t *testing.T) {
	api := &fakeAccountAPI{}
	provider, err := NewCDPProvider(context.Background(), ProviderConfig{Address: testAddress, IdempotencyKey: "ignored"},
		api, fakeChain{}, web3.DefaultNetworks()["base-sepolia"])
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if api.created != 0 || len(api.fetched) != 1 {
		t.Fatalf("expected lookup only, created=%d fetched=%v", api.created, api.fetched)
	}
	if !strings.EqualFold(provider.Address(), testAddress) {
		t.Fatalf("unexpected address %s", provider.Address())
	}
}

func TestNewCDPProviderCreatesAccount(t *testing.T) {
	api := &fakeAccountAPI{}
	provider, err := NewCDPProvider(context.Background(), ProviderConfig{IdempotencyKey: "idem"},
		api, fakeChain{}, web3.DefaultNetworks()["base-sepolia"])
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if api.created != 1 || api.gotIdemKey != "idem" {
		t.Fatalf("expected account creation with idempotency key, got %+v", api)
	}
	if provider.NetworkID() != "base-sepolia" {
		t.Fatalf("unexpected network %s", provider.NetworkID())
	}
}

func TestNewCDPProviderRejectsBadAddress(t *testing.T) {
	_, err := NewCDPProvider(context.Background(), ProviderConfig{Address: "nope"},
		&fakeAccountAPI{}, fakeChain{}, web3.DefaultNetworks()["base-sepolia"])
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestSendTransactionEncodesDynamicFeeTx(t *testing.T) {
	api := &fakeAccountAPI{}
	provider, err := NewCDPProvider(context.Background(), ProviderConfig{Address: testAddress},
		api, fakeChain{}, web3.DefaultNetworks()["base-sepolia"])
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	hash, err := provider.SendTransaction(context.Background(), web3.TxRequest{
		To:    common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Value: big.NewInt(1000),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if hash == (common.Hash{}) {
		t.Fatalf("expected non-zero hash")
	}
	if !strings.HasPrefix(api.sentRaw, "0x02") {
		t.Fatalf("expected EIP-1559 envelope, got %s", api.sentRaw)
	}
	if api.sentNetwork != "base-sepolia" {
		t.Fatalf("unexpected network %s", api.sentNetwork)
	}
}

func TestRequestFaucetRules(t *testing.T) {
	api := &fakeAccountAPI{}
	mainnet, _ := NewCDPProvider(context.Background(), ProviderConfig{Address: testAddress},
		api, fakeChain{}, web3.DefaultNetworks()["base-mainnet"])
	if _, err := mainnet.RequestFaucet(context.Background(), "eth"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected mainnet faucet to be rejected, got %v", err)
	}

	testnet, _ := NewCDPProvider(context.Background(), ProviderConfig{Address: testAddress},
		api, fakeChain{}, web3.DefaultNetworks()["base-sepolia"])
	if _, err := testnet.RequestFaucet(context.Background(), "doge"); err == nil {
		t.Fatalf("expected unsupported token error")
	}
	hash, err := testnet.RequestFaucet(context.Background(), "")
	if err != nil || hash != "0xfeed" {
		t.Fatalf("unexpected faucet result %q %v", hash, err)
	}
}
