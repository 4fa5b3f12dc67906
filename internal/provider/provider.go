// Package provider is the read side of a wallet session: chain id,
// accounts, balances and the other chain queries signing and sending
// depend on. Every read goes to the wallet; nothing chain-dependent is
// cached except the opt-in stale balance view.
package provider

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/tether/internal/broker"
	"github.com/mrz1836/tether/internal/cache"
	"github.com/mrz1836/tether/internal/chain"
	"github.com/mrz1836/tether/internal/erc20"
	"github.com/mrz1836/tether/internal/metrics"
	"github.com/mrz1836/tether/internal/wallet"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Network is the active chain as reported by the wallet.
type Network struct {
	ChainID *big.Int `json:"chainId"`
	Name    string   `json:"name"`
	Symbol  string   `json:"symbol"`
	Testnet bool     `json:"testnet"`
}

// Provider reads chain state through one session's wallet connection.
type Provider struct {
	session   *broker.Session
	transport *wallet.Transport
	guard     *chain.ReadGuard
	balances  *cache.BalanceCache
	metrics   *metrics.Metrics

	lastChainID atomic.Pointer[big.Int]
}

// Option configures a Provider.
type Option func(*Provider)

// WithGuard routes reads through g. Without a guard reads run unthrottled.
func WithGuard(g *chain.ReadGuard) Option {
	return func(p *Provider) { p.guard = g }
}

// WithBalanceCache records fresh balances into c for CachedBalance.
func WithBalanceCache(c *cache.BalanceCache) Option {
	return func(p *Provider) { p.balances = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// New derives a provider from s.
func New(s *broker.Session, opts ...Option) *Provider {
	p := &Provider{
		session:   s,
		transport: s.Handle.Transport(),
		balances:  cache.NewBalanceCache(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Session returns the session this provider reads through.
func (p *Provider) Session() *broker.Session {
	return p.session
}

// Address is the primary account granted at connect time.
func (p *Provider) Address() common.Address {
	return p.session.Handle.Signer().Address()
}

// Account is the wallet's primary account now, which differs from
// Address after the user switches accounts in the wallet.
func (p *Provider) Account(ctx context.Context) (common.Address, error) {
	return p.session.Handle.Signer().Account(ctx)
}

// Signer returns the wallet's signer.
func (p *Provider) Signer() wallet.Signer {
	return p.session.Handle.Signer()
}

func (p *Provider) endpoint() string {
	return p.transport.Endpoint()
}

func classify(err error) error {
	return wallet.Classify(err, tethererr.ErrUserRejected, tethererr.ErrNetworkUnavailable)
}

// ChainID returns the wallet's active chain id.
func (p *Provider) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := chain.Once(ctx, p.guard, p.endpoint(), "chain_id", p.transport.ChainID)
	if err != nil {
		return nil, err
	}
	p.lastChainID.Store(new(big.Int).Set(id))
	return id, nil
}

// Accounts lists the accounts the wallet currently exposes.
func (p *Provider) Accounts(ctx context.Context) ([]common.Address, error) {
	return chain.Once(ctx, p.guard, p.endpoint(), "accounts", p.transport.Accounts)
}

// Balance returns the native balance of addr in wei. Transient failures
// are retried. The result is recorded for CachedBalance under the chain
// id read right after it.
func (p *Provider) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := chain.Retried(ctx, p.guard, p.endpoint(), "balance", func(ctx context.Context) (*big.Int, error) {
		b, err := p.transport.Eth().BalanceAt(ctx, addr, nil)
		return b, classify(err)
	})
	if err != nil {
		return nil, err
	}

	if p.balances == nil {
		return bal, nil
	}
	if id, err := p.ChainID(ctx); err == nil {
		n := chain.LookupNetwork(id)
		p.balances.Set(cache.BalanceCacheEntry{
			ChainID:  id.String(),
			Address:  addr.Hex(),
			Balance:  bal,
			Symbol:   n.Symbol,
			Decimals: n.Decimals,
		})
	}
	return bal, nil
}

// CachedBalance returns the last fresh Balance result for addr on the
// most recently observed chain. It never queries the wallet.
func (p *Provider) CachedBalance(addr common.Address) (*cache.BalanceCacheEntry, bool) {
	id := p.lastChainID.Load()
	if id == nil || p.balances == nil {
		p.metrics.RecordCacheMiss()
		return nil, false
	}

	entry, ok, _ := p.balances.Get(id, addr.Hex(), "")
	if ok {
		p.metrics.RecordCacheHit()
	} else {
		p.metrics.RecordCacheMiss()
	}
	return entry, ok
}

// Network describes the active chain. Transient failures are retried.
func (p *Provider) Network(ctx context.Context) (*Network, error) {
	id, err := chain.Retried(ctx, p.guard, p.endpoint(), "network", p.transport.ChainID)
	if err != nil {
		return nil, err
	}
	p.lastChainID.Store(new(big.Int).Set(id))

	n := chain.LookupNetwork(id)
	return &Network{ChainID: id, Name: n.Name, Symbol: n.Symbol, Testnet: n.Testnet}, nil
}

// GasPrice returns the wallet's suggested gas price.
func (p *Provider) GasPrice(ctx context.Context) (*big.Int, error) {
	return chain.Once(ctx, p.guard, p.endpoint(), "gas_price", func(ctx context.Context) (*big.Int, error) {
		v, err := p.transport.Eth().SuggestGasPrice(ctx)
		return v, classify(err)
	})
}

// Receipt returns the receipt for hash, or ErrTransactionNotFound while it
// is unknown or pending.
func (p *Provider) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return chain.Once(ctx, p.guard, p.endpoint(), "receipt", func(ctx context.Context) (*types.Receipt, error) {
		r, err := p.transport.Eth().TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, tethererr.WithDetails(tethererr.ErrTransactionNotFound, map[string]string{"hash": hash.Hex()})
		}
		return r, classify(err)
	})
}

// Code returns the contract code at addr; empty for plain accounts.
func (p *Provider) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	return chain.Retried(ctx, p.guard, p.endpoint(), "code", func(ctx context.Context) ([]byte, error) {
		c, err := p.transport.Eth().CodeAt(ctx, addr, nil)
		return c, classify(err)
	})
}

// Call runs a read-only contract call.
func (p *Provider) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return chain.Once(ctx, p.guard, p.endpoint(), "call", func(ctx context.Context) ([]byte, error) {
		out, err := p.transport.Eth().CallContract(ctx, msg, nil)
		return out, classify(err)
	})
}

// EstimateGas asks the wallet's node for a gas limit for msg.
func (p *Provider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return chain.Once(ctx, p.guard, p.endpoint(), "estimate_gas", func(ctx context.Context) (uint64, error) {
		g, err := p.transport.Eth().EstimateGas(ctx, msg)
		return g, classify(err)
	})
}

// TokenBalance returns holder's ERC-20 balance of token.
func (p *Provider) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := erc20.EncodeBalanceOf(holder)
	if err != nil {
		return nil, err
	}
	out, err := chain.Retried(ctx, p.guard, p.endpoint(), "token_balance", func(ctx context.Context) ([]byte, error) {
		out, err := p.transport.Eth().CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		return out, classify(err)
	})
	if err != nil {
		return nil, err
	}
	return erc20.DecodeBalance(out)
}
