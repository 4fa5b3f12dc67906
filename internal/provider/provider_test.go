package provider_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tether/internal/broker"
	"github.com/mrz1836/tether/internal/chain"
	"github.com/mrz1836/tether/internal/provider"
	"github.com/mrz1836/tether/internal/wallet"
	"github.com/mrz1836/tether/internal/wallettest"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

func connect(t *testing.T, w *wallettest.Wallet) *broker.Session {
	t.Helper()
	c := &wallet.InjectedConnector{Endpoint: w.URL()}
	h, err := c.Connect(context.Background(), wallet.ConnectRequest{Mode: wallet.Interactive})
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return &broker.Session{ID: "test", Kind: h.Kind(), Handle: h, ConnectedAt: time.Now()}
}

func fastGuard(failures uint32) *chain.ReadGuard {
	return chain.NewReadGuard(chain.GuardConfig{
		Retry:         chain.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		RatePerSecond: 0,
		Breaker:       chain.BreakerConfig{ConsecutiveFailures: failures, OpenTimeout: time.Minute},
	}, nil)
}

func TestProvider_ChainIDFollowsWallet(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithChainID(1))
	p := provider.New(connect(t, w))
	ctx := context.Background()

	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.Int64())

	w.SetChainID(137)
	n, err := p.Network(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(137), n.ChainID.Int64())
	assert.Equal(t, "Polygon", n.Name)
	assert.Equal(t, "POL", n.Symbol)
	assert.False(t, n.Testnet)
}

func TestProvider_Accounts(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t)
	p := provider.New(connect(t, w))

	accounts, err := p.Accounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{w.Address()}, accounts)
	assert.Equal(t, w.Address(), p.Address())
}

func TestProvider_BalanceAndCachedBalance(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(big.NewInt(5_000)))
	p := provider.New(connect(t, w))

	_, ok := p.CachedBalance(w.Address())
	assert.False(t, ok)

	bal, err := p.Balance(context.Background(), w.Address())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5_000), bal)

	w.SetBalance(w.Address(), big.NewInt(1))
	entry, ok := p.CachedBalance(w.Address())
	require.True(t, ok)
	assert.Equal(t, big.NewInt(5_000), entry.Balance)
	assert.Equal(t, "ETH", entry.Symbol)

	bal, err = p.Balance(context.Background(), w.Address())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), bal)
}

func TestProvider_Unreachable(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t)
	p := provider.New(connect(t, w), provider.WithGuard(fastGuard(0)))
	w.SetDown(true)
	ctx := context.Background()

	_, err := p.ChainID(ctx)
	require.ErrorIs(t, err, tethererr.ErrNetworkUnavailable)

	_, err = p.Balance(ctx, w.Address())
	require.ErrorIs(t, err, tethererr.ErrNetworkUnavailable)
	assert.Equal(t, "2", tethererr.DetailsOf(err)["attempts"])
}

func TestProvider_BreakerOpens(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t)
	g := fastGuard(2)
	p := provider.New(connect(t, w), provider.WithGuard(g))
	w.SetDown(true)
	ctx := context.Background()

	for range 2 {
		_, err := p.GasPrice(ctx)
		require.ErrorIs(t, err, tethererr.ErrNetworkUnavailable)
	}

	w.SetDown(false)
	_, err := p.GasPrice(ctx)
	require.ErrorIs(t, err, tethererr.ErrNetworkUnavailable)
	assert.Equal(t, "open", tethererr.DetailsOf(err)["breaker"])
}

func TestProvider_ReceiptNotFound(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t)
	p := provider.New(connect(t, w))

	_, err := p.Receipt(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, tethererr.ErrTransactionNotFound)
}

func TestProvider_TokenBalance(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t)
	token := common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063")
	w.SetTokenBalance(token, w.Address(), big.NewInt(777))
	p := provider.New(connect(t, w))

	bal, err := p.TokenBalance(context.Background(), token, w.Address())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(777), bal)
}

func TestProvider_Code(t *testing.T) {
	t.Parallel()

	plain := wallettest.New(t)
	code, err := provider.New(connect(t, plain)).Code(context.Background(), plain.Address())
	require.NoError(t, err)
	assert.Empty(t, code)

	contract := wallettest.New(t, wallettest.WithContractWallet())
	sess := &wallet.SessionConnector{URL: contract.URL()}
	h, err := sess.Connect(context.Background(), wallet.ConnectRequest{Mode: wallet.Interactive})
	require.NoError(t, err)
	defer h.Close()

	p := provider.New(&broker.Session{Kind: h.Kind(), Handle: h})
	code, err = p.Code(context.Background(), contract.Address())
	require.NoError(t, err)
	assert.NotEmpty(t, code)
}

func TestProvider_GasAndEstimate(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t)
	p := provider.New(connect(t, w))

	price, err := p.GasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(wallettest.DefaultGasPrice), price)
}
