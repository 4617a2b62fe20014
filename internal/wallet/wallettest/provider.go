// Package wallettest provides an in-memory wallet.Provider for tests.
package wallettest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"AgentKit-Chat/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Provider records every transaction it is asked to send and answers reads
// from canned responses.
type Provider struct {
	Addr    string
	Net     web3.Network
	Balance *big.Int

	// Calls maps a contract address to a function returning the call result
	// for the given calldata.
	Calls map[common.Address]func(data []byte) ([]byte, error)

	mu      sync.Mutex
	Sent    []web3.TxRequest
	Faucets []string
	closed  int
}

// Name implements wallet.Provider.
func (p *Provider) Name() string { return "test_wallet_provider" }

// Address implements wallet.Provider.
func (p *Provider) Address() string { return p.Addr }

// NetworkID implements wallet.Provider.
func (p *Provider) NetworkID() string { return p.Net.ID }

// Network implements wallet.Provider.
func (p *Provider) Network() web3.Network { return p.Net }

// ChainID implements wallet.Provider.
func (p *Provider) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(p.Net.ChainID), nil
}

// NativeBalance implements wallet.Provider.
func (p *Provider) NativeBalance(context.Context) (*big.Int, error) {
	if p.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(p.Balance), nil
}

// ReadContract implements wallet.Provider.
func (p *Provider) ReadContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	fn, ok := p.Calls[to]
	if !ok {
		return nil, fmt.Errorf("no canned call for %s", to.Hex())
	}
	return fn(data)
}

// SendTransaction implements wallet.Provider; the returned hash encodes the
// sequence number of the transaction.
func (p *Provider) SendTransaction(_ context.Context, req web3.TxRequest) (common.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Sent = append(p.Sent, req)
	return common.BigToHash(big.NewInt(int64(len(p.Sent)))), nil
}

// WaitForReceipt implements wallet.Provider with an immediately successful receipt.
func (p *Provider) WaitForReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}

// RequestFaucet implements wallet.Provider.
func (p *Provider) RequestFaucet(_ context.Context, token string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Faucets = append(p.Faucets, token)
	return fmt.Sprintf("0xfaucet%d", len(p.Faucets)), nil
}

// SentRequests returns a copy of the sent transactions.
func (p *Provider) SentRequests() []web3.TxRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]web3.TxRequest(nil), p.Sent...)
}

// Close implements wallet.Provider and counts how often it was called.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
}

// Closed reports how many times Close was called.
func (p *Provider) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
