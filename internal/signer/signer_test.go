package signer_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tether/internal/broker"
	"github.com/mrz1836/tether/internal/provider"
	"github.com/mrz1836/tether/internal/signer"
	"github.com/mrz1836/tether/internal/wallet"
	"github.com/mrz1836/tether/internal/wallettest"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

func newFacade(t *testing.T, w *wallettest.Wallet, conn wallet.Connector) *signer.Facade {
	t.Helper()
	h, err := conn.Connect(context.Background(), wallet.ConnectRequest{Mode: wallet.Interactive})
	require.NoError(t, err)
	t.Cleanup(h.Close)

	p := provider.New(&broker.Session{ID: "test", Kind: h.Kind(), Handle: h, ConnectedAt: time.Now()})
	return signer.New(p.Signer(), p, nil)
}

func injectedFacade(t *testing.T, opts ...wallettest.Option) (*signer.Facade, *wallettest.Wallet) {
	t.Helper()
	w := wallettest.New(t, opts...)
	return newFacade(t, w, &wallet.InjectedConnector{Endpoint: w.URL()}), w
}

func TestHashMessage(t *testing.T) {
	t.Parallel()
	msg := []byte("hello")
	assert.Equal(t, accounts.TextHash(msg), signer.HashMessage(msg))
}

func TestSignMessage_RoundTrip(t *testing.T) {
	t.Parallel()
	f, w := injectedFacade(t)
	ctx := context.Background()

	signed, err := f.SignMessage(ctx, signer.DemoMessage)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), signed.Signer)
	assert.Len(t, signed.Signature, 65)

	require.NoError(t, f.VerifySigned(ctx, signed))

	ok, err := f.Verify(ctx, w.Address(), []byte("a different message"), signed.Signature)
	require.NoError(t, err)
	assert.False(t, ok)

	tampered := *signed
	tampered.Message = []byte("tampered")
	require.ErrorIs(t, f.VerifySigned(ctx, &tampered), tethererr.ErrVerificationMismatch)
}

func TestSignMessage_Rejected(t *testing.T) {
	t.Parallel()
	f, w := injectedFacade(t)
	w.SetConsent(wallettest.Reject)

	_, err := f.SignMessage(context.Background(), "hi")
	require.ErrorIs(t, err, tethererr.ErrUserRejected)
}

func TestSignMessage_AfterAccountSwitch(t *testing.T) {
	t.Parallel()
	f, w := injectedFacade(t)
	ctx := context.Background()
	first := w.Address()
	switched := w.SwitchAccount(t)

	signed, err := f.SignMessage(ctx, signer.DemoMessage)
	require.NoError(t, err)
	assert.Equal(t, switched, signed.Signer)
	require.NoError(t, f.VerifySigned(ctx, signed))

	ok, err := f.Verify(ctx, first, signed.Message, signed.Signature)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignMessage_ContractWallet(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithContractWallet())
	f := newFacade(t, w, &wallet.SessionConnector{URL: w.URL()})
	ctx := context.Background()

	signed, err := f.SignMessage(ctx, "hello from a smart wallet")
	require.NoError(t, err)
	assert.Equal(t, w.Address(), signed.Signer)

	require.NoError(t, f.VerifySigned(ctx, signed))
	assert.Positive(t, w.Calls("eth_call"))

	ok, err := f.Verify(ctx, w.Address(), []byte("something else"), signed.Signature)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignTypedData_FillsLiveChainID(t *testing.T) {
	t.Parallel()
	f, w := injectedFacade(t, wallettest.WithChainID(1))
	ctx := context.Background()

	w.SetChainID(137)
	domain, types, primary, message := signer.DemoTypedData()
	signed, err := f.SignTypedData(ctx, domain, types, primary, message)
	require.NoError(t, err)

	require.NotNil(t, signed.TypedData)
	assert.Equal(t, int64(137), (*big.Int)(signed.TypedData.Domain.ChainId).Int64())
	require.NoError(t, f.VerifySigned(ctx, signed))
}

func TestSignTypedData_ContractWallet(t *testing.T) {
	t.Parallel()
	w := wallettest.New(t, wallettest.WithContractWallet(), wallettest.WithChainID(137))
	f := newFacade(t, w, &wallet.SessionConnector{URL: w.URL()})
	ctx := context.Background()

	domain, types, primary, message := signer.DemoTypedData()
	signed, err := f.SignTypedData(ctx, domain, types, primary, message)
	require.NoError(t, err)
	require.NoError(t, f.VerifySigned(ctx, signed))
}

func TestSignTypedData_ChainMismatch(t *testing.T) {
	t.Parallel()
	f, w := injectedFacade(t, wallettest.WithChainID(10))

	domain, types, primary, message := signer.DemoTypedData()
	domain.ChainId = math.NewHexOrDecimal256(1)

	_, err := f.SignTypedData(context.Background(), domain, types, primary, message)
	require.ErrorIs(t, err, tethererr.ErrChainMismatch)
	assert.Equal(t, "10", tethererr.DetailsOf(err)["active"])
	assert.Zero(t, w.Calls("eth_signTypedData_v4"))
}

func TestBuildTypedData_Validation(t *testing.T) {
	t.Parallel()
	_, types, primary, message := signer.DemoTypedData()

	tests := []struct {
		name    string
		domain  apitypes.TypedDataDomain
		primary string
		missing string
	}{
		{"no name", apitypes.TypedDataDomain{Version: "1", VerifyingContract: "0x01"}, primary, "name"},
		{"no version", apitypes.TypedDataDomain{Name: "n", VerifyingContract: "0x01"}, primary, "version"},
		{"no contract", apitypes.TypedDataDomain{Name: "n", Version: "1"}, primary, "verifyingContract"},
		{"unknown primary", apitypes.TypedDataDomain{Name: "n", Version: "1", VerifyingContract: "0x01"}, "Mail", "primaryType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := signer.BuildTypedData(tt.domain, types, tt.primary, message, big.NewInt(1))
			require.ErrorIs(t, err, tethererr.ErrInvalidInput)
			assert.Contains(t, tethererr.DetailsOf(err), tt.missing)
		})
	}
}

func TestBuildTypedData_DomainType(t *testing.T) {
	t.Parallel()
	domain, types, primary, message := signer.DemoTypedData()
	domain.Salt = "0x0000000000000000000000000000000000000000000000000000000000000001"

	typed, err := signer.BuildTypedData(domain, types, primary, message, big.NewInt(5))
	require.NoError(t, err)

	var names []string
	for _, f := range typed.Types["EIP712Domain"] {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"name", "version", "chainId", "verifyingContract", "salt"}, names)
	assert.Equal(t, int64(5), (*big.Int)(typed.Domain.ChainId).Int64())
	_, hasDomain := types["EIP712Domain"]
	assert.False(t, hasDomain)
}
