package txexec_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tether/internal/broker"
	"github.com/mrz1836/tether/internal/provider"
	"github.com/mrz1836/tether/internal/txexec"
	"github.com/mrz1836/tether/internal/wallet"
	"github.com/mrz1836/tether/internal/wallettest"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

var (
	oneEther = big.NewInt(1_000_000_000_000_000_000)
	token    = common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063")
)

func randomAddress(t *testing.T) common.Address {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey)
}

func newExecutor(t *testing.T, w *wallettest.Wallet, cfg txexec.Config) *txexec.Executor {
	t.Helper()
	conn := &wallet.InjectedConnector{Endpoint: w.URL()}
	h, err := conn.Connect(context.Background(), wallet.ConnectRequest{Mode: wallet.Interactive})
	require.NoError(t, err)
	t.Cleanup(h.Close)

	p := provider.New(&broker.Session{ID: "test", Kind: h.Kind(), Handle: h, ConnectedAt: time.Now()})
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	return txexec.New(p.Signer(), p, cfg)
}

func TestSendNative(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther))
	e := newExecutor(t, w, txexec.Config{})
	to := randomAddress(t)
	amount := big.NewInt(250_000_000_000_000_000)

	r, err := e.SendNative(context.Background(), to, amount, 0x55555)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, r.Status)
	assert.Equal(t, amount.String(), w.Balance(to).String())
	assert.Equal(t, 1, w.Broadcasts())
	assert.Zero(t, w.Calls("eth_estimateGas"))
}

func TestSendNative_EstimatesZeroGasLimit(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther))
	e := newExecutor(t, w, txexec.Config{})

	p, err := e.SubmitNative(context.Background(), randomAddress(t), big.NewInt(1), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(wallettest.GasNativeTransfer), p.Request.GasLimit)
	assert.Equal(t, 1, w.Calls("eth_estimateGas"))
}

func TestSendNative_InsufficientFunds(t *testing.T) {
	t.Parallel()
	balance := big.NewInt(1_000_000)
	w := wallettest.New(t, wallettest.WithBalance(balance))
	e := newExecutor(t, w, txexec.Config{})
	to := randomAddress(t)

	_, err := e.SendNative(context.Background(), to, oneEther, 21000)
	require.ErrorIs(t, err, tethererr.ErrInsufficientFunds)

	details := tethererr.DetailsOf(err)
	assert.Equal(t, balance.String(), details["available"])
	assert.NotEmpty(t, details["required"])
	assert.Zero(t, w.Broadcasts())
	assert.Zero(t, w.Calls("eth_sendTransaction"))
	assert.Zero(t, w.Balance(to).Sign())
}

func TestSendNative_AfterAccountSwitch(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther))
	e := newExecutor(t, w, txexec.Config{})
	ctx := context.Background()
	first := w.Address()
	switched := w.SwitchAccount(t)
	to := randomAddress(t)

	_, err := e.SubmitNative(ctx, to, big.NewInt(1), 21000)
	require.ErrorIs(t, err, tethererr.ErrInsufficientFunds)
	assert.Zero(t, w.Broadcasts())

	w.SetBalance(switched, oneEther)
	r, err := e.SendNative(ctx, to, big.NewInt(1000), 21000)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, r.Status)
	assert.Equal(t, oneEther.String(), w.Balance(first).String())
	assert.Equal(t, -1, w.Balance(switched).Cmp(oneEther))
}

func TestSendNative_InvalidAmount(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther))
	e := newExecutor(t, w, txexec.Config{})

	_, err := e.SubmitNative(context.Background(), randomAddress(t), big.NewInt(-1), 21000)
	require.ErrorIs(t, err, tethererr.ErrInvalidAmount)
	assert.Zero(t, w.Broadcasts())
}

func TestSendNative_Rejected(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther))
	e := newExecutor(t, w, txexec.Config{})
	w.SetConsent(wallettest.Reject)

	_, err := e.SendNative(context.Background(), randomAddress(t), big.NewInt(1), 21000)
	require.ErrorIs(t, err, tethererr.ErrUserRejected)
	assert.Zero(t, w.Broadcasts())
}

func TestSendTokenTransfer(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther))
	e := newExecutor(t, w, txexec.Config{})
	to := randomAddress(t)
	w.SetTokenBalance(token, w.Address(), big.NewInt(10))

	r, err := e.SendTokenTransfer(context.Background(), token, to, big.NewInt(4), 0x55555)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, r.Status)
	assert.Equal(t, "4", w.TokenBalance(token, to).String())
	assert.Equal(t, "6", w.TokenBalance(token, w.Address()).String())
}

func TestSendTokenTransfer_InsufficientTokens(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther))
	e := newExecutor(t, w, txexec.Config{})
	w.SetTokenBalance(token, w.Address(), big.NewInt(3))

	_, err := e.SendTokenTransfer(context.Background(), token, randomAddress(t), big.NewInt(5), 0x55555)
	require.ErrorIs(t, err, tethererr.ErrInsufficientFunds)
	assert.Equal(t, token.Hex(), tethererr.DetailsOf(err)["token"])
	assert.Equal(t, "3", tethererr.DetailsOf(err)["available"])
	assert.Zero(t, w.Broadcasts())
}

func TestSendTokenTransfer_NoGasMoney(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t)
	e := newExecutor(t, w, txexec.Config{})
	w.SetTokenBalance(token, w.Address(), big.NewInt(10))

	_, err := e.SendTokenTransfer(context.Background(), token, randomAddress(t), big.NewInt(1), 0)
	require.ErrorIs(t, err, tethererr.ErrInsufficientFunds)
	assert.Equal(t, "0", tethererr.DetailsOf(err)["available"])
	assert.Zero(t, w.Broadcasts())
}

func TestSendTokenTransfer_Reverted(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther))
	e := newExecutor(t, w, txexec.Config{})
	w.SetTokenBalance(token, w.Address(), big.NewInt(10))
	w.SetConsent(wallettest.Hold)

	type result struct {
		r   *types.Receipt
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := e.SendTokenTransfer(context.Background(), token, randomAddress(t), big.NewInt(10), 0x55555)
		done <- result{r, err}
	}()

	// The balance drains while the user is looking at the prompt.
	for m := range w.Prompts() {
		if m == "eth_sendTransaction" {
			break
		}
	}
	w.SetTokenBalance(token, w.Address(), big.NewInt(0))
	w.Release(wallettest.Approve)

	res := <-done
	require.ErrorIs(t, res.err, tethererr.ErrTxReverted)
	require.NotNil(t, res.r)
	assert.Equal(t, types.ReceiptStatusFailed, res.r.Status)
}

func TestWait_ManualMining(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther), wallettest.WithManualMining())
	e := newExecutor(t, w, txexec.Config{})
	ctx := context.Background()

	p, err := e.SubmitNative(ctx, randomAddress(t), big.NewInt(1), 21000)
	require.NoError(t, err)

	_, err = e.Receipt(ctx, p.Hash)
	require.ErrorIs(t, err, tethererr.ErrTransactionNotFound)

	go func() {
		time.Sleep(20 * time.Millisecond)
		w.Mine()
	}()

	r, err := e.Wait(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, p.Hash, r.TxHash)
	assert.Positive(t, w.Calls("eth_getTransactionReceipt"))
}

func TestWait_ConfirmationTimeout(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther), wallettest.WithManualMining())
	e := newExecutor(t, w, txexec.Config{ConfirmationTimeout: 50 * time.Millisecond})

	p, err := e.SubmitNative(context.Background(), randomAddress(t), big.NewInt(1), 21000)
	require.NoError(t, err)

	_, err = e.Wait(context.Background(), p)
	require.ErrorIs(t, err, tethererr.ErrConfirmationTimeout)
	assert.Equal(t, p.Hash.Hex(), tethererr.DetailsOf(err)["hash"])

	// The transaction is still there for a later lookup.
	w.Mine()
	r, err := e.Receipt(context.Background(), p.Hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, r.Status)
}

func TestWait_UnboundedHonoursContext(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithBalance(oneEther), wallettest.WithManualMining())
	e := newExecutor(t, w, txexec.Config{})

	p, err := e.SubmitNative(context.Background(), randomAddress(t), big.NewInt(1), 21000)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, err = e.Wait(ctx, p)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, tethererr.ErrConfirmationTimeout)
}

// stubReader fails receipts with a fixed error.
type stubReader struct {
	receiptErr error
}

func (s stubReader) Balance(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}

func (s stubReader) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}

func (s stubReader) GasPrice(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (s stubReader) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (s stubReader) Receipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, s.receiptErr
}

func TestWait_PropagatesUnexpectedErrors(t *testing.T) {
	t.Parallel()
	e := txexec.New(nil, stubReader{receiptErr: tethererr.ErrUserRejected}, txexec.Config{PollInterval: time.Millisecond})

	_, err := e.Wait(context.Background(), &txexec.Pending{Hash: common.HexToHash("0x01"), Type: txexec.TypeNative})
	require.ErrorIs(t, err, tethererr.ErrUserRejected)
}
